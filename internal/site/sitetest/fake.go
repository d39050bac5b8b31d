// Package sitetest provides an in-memory site.Adapter for tests.
package sitetest

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/h1v3-io/seatwatch/internal/site"
	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

// Item is one candidate slot; a non-nil Err models a malformed element.
type Item struct {
	site.Candidate
	Err error
}

// Page is the content served for one URL.
type Page struct {
	Items         []Item
	Controls      []*Control
	Categories    []protocol.Category
	CategoriesErr error
}

// Control is a scripted page control.
type Control struct {
	Text       string
	Enabled    bool
	EnabledErr error
	ClickErr   error

	mu     sync.Mutex
	clicks int
}

func (c *Control) Label() string { return c.Text }

func (c *Control) IsEnabled(context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.EnabledErr != nil {
		return false, c.EnabledErr
	}
	return c.Enabled, nil
}

// SetEnabled changes the enabled state while the control is in use.
func (c *Control) SetEnabled(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Enabled = v
}

func (c *Control) Click(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clicks++
	return c.ClickErr
}

// Clicks returns how many times Click was called.
func (c *Control) Clicks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clicks
}

// Adapter serves scripted pages. It implements site.CategoryReader.
type Adapter struct {
	mu            sync.Mutex
	pages         map[string]*Page
	navigateErr   map[string]error
	candidatesErr error
	current       string
	visits        []string
	closed        bool
}

// New creates an adapter with no pages.
func New() *Adapter {
	return &Adapter{
		pages:       make(map[string]*Page),
		navigateErr: make(map[string]error),
	}
}

// SetPage registers content for url.
func (a *Adapter) SetPage(url string, p *Page) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pages[url] = p
	return a
}

// FailNavigate makes navigation to url return err.
func (a *Adapter) FailNavigate(url string, err error) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.navigateErr[url] = err
	return a
}

// FailCandidates makes Candidates return err.
func (a *Adapter) FailCandidates(err error) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.candidatesErr = err
	return a
}

// Visits returns every URL navigated to, in order.
func (a *Adapter) Visits() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.visits...)
}

// Closed reports whether Close was called.
func (a *Adapter) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *Adapter) Navigate(_ context.Context, url string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.visits = append(a.visits, url)
	if err := a.navigateErr[url]; err != nil {
		return err
	}
	if _, ok := a.pages[url]; !ok {
		return fmt.Errorf("sitetest: no page for %s: %w", url, site.ErrTransientIO)
	}
	a.current = url
	return nil
}

func (a *Adapter) PageURL() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *Adapter) page() *Page {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pages[a.current]
}

func (a *Adapter) Candidates(_ context.Context, _ string, limit int) (iter.Seq2[site.Candidate, error], error) {
	a.mu.Lock()
	err := a.candidatesErr
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	p := a.page()
	return func(yield func(site.Candidate, error) bool) {
		if p == nil {
			return
		}
		for i, it := range p.Items {
			if limit > 0 && i >= limit {
				return
			}
			if !yield(it.Candidate, it.Err) {
				return
			}
		}
	}, nil
}

func (a *Adapter) FindControl(_ context.Context, rule site.ControlRule) (site.Control, error) {
	p := a.page()
	if p == nil {
		return nil, nil
	}
	for _, c := range p.Controls {
		label := strings.ToLower(strings.TrimSpace(c.Text))
		for _, want := range rule.Labels {
			want = strings.ToLower(want)
			if rule.Exact && label == want || !rule.Exact && strings.Contains(label, want) {
				return c, nil
			}
		}
	}
	return nil, nil
}

func (a *Adapter) ReadCategories(context.Context, site.CategoryRule) ([]protocol.Category, error) {
	p := a.page()
	if p == nil {
		return nil, site.ErrExtraction
	}
	if p.CategoriesErr != nil {
		return nil, p.CategoriesErr
	}
	return p.Categories, nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

// Factory returns a site.Factory that always yields a.
func Factory(a site.Adapter) site.Factory {
	return func(context.Context) (site.Adapter, error) { return a, nil }
}
