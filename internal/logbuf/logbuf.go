// Package logbuf keeps the most recent log entries in memory so the
// dashboard and chat commands can show what the watcher has been doing.
package logbuf

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultSize is the number of entries kept when New is given size <= 0.
const DefaultSize = 500

// Entry is a single log entry captured from slog.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Line renders e as "[15:04:05] message k=v ...", keys sorted.
func (e Entry) Line() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(e.Time.Format(time.TimeOnly))
	b.WriteString("] ")
	b.WriteString(e.Message)
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Attrs[k])
	}
	return b.String()
}

func (e Entry) level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(e.Level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Buffer is a fixed-size ring of entries, safe for concurrent use.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	pos     int
	count   int
}

// New creates a buffer that holds up to size entries.
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{entries: make([]Entry, size)}
}

// Write appends e, overwriting the oldest entry when full.
func (b *Buffer) Write(e Entry) {
	b.mu.Lock()
	b.entries[b.pos] = e
	b.pos = (b.pos + 1) % len(b.entries)
	if b.count < len(b.entries) {
		b.count++
	}
	b.mu.Unlock()
}

// Reset drops every entry.
func (b *Buffer) Reset() {
	b.mu.Lock()
	clear(b.entries)
	b.pos, b.count = 0, 0
	b.mu.Unlock()
}

// Len returns the number of stored entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Query returns entries at or above minLevel newer than since, oldest first.
// A zero since matches everything; limit <= 0 means no limit, otherwise
// the newest limit entries are kept.
func (b *Buffer) Query(since time.Time, minLevel slog.Level, limit int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := 0
	if b.count == len(b.entries) {
		start = b.pos
	}
	var out []Entry
	for i := 0; i < b.count; i++ {
		e := b.entries[(start+i)%len(b.entries)]
		if !since.IsZero() && e.Time.Before(since) {
			continue
		}
		if e.level() < minLevel {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Lines returns the newest limit entries at Info or above, formatted.
func (b *Buffer) Lines(limit int) []string {
	entries := b.Query(time.Time{}, slog.LevelInfo, limit)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Line()
	}
	return out
}
