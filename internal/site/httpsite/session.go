// Package httpsite is a site.Adapter for server-rendered ticketing pages.
// One Session is one cookie-jar browsing context and can be at one page
// at a time.
package httpsite

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/h1v3-io/seatwatch/internal/site"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultTimeout   = 30 * time.Second
	maxPageSize      = 4 << 20

	defaultCandidateSelector = "a[href]"
	defaultControlSelector   = "button, a, input[type=submit]"
)

// Options configures new sessions.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Session implements site.Adapter and site.CategoryReader over plain HTTP.
type Session struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger

	mu      sync.Mutex
	closed  bool
	pageURL *url.URL
	doc     *html.Node
	raw     []byte
}

var (
	_ site.Adapter        = (*Session)(nil)
	_ site.CategoryReader = (*Session)(nil)
)

// New creates a session with its own cookie jar.
func New(opts Options) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("httpsite: cookie jar: %w: %w", site.ErrAdapterUnavailable, err)
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{
		client:    &http.Client{Jar: jar, Timeout: opts.Timeout, Transport: opts.Transport},
		userAgent: opts.UserAgent,
		logger:    opts.Logger,
	}, nil
}

// Factory returns a site.Factory creating independent sessions.
func Factory(opts Options) site.Factory {
	return func(context.Context) (site.Adapter, error) {
		return New(opts)
	}
}

func (s *Session) Navigate(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("httpsite: bad url %q: %w", rawURL, site.ErrTransientIO)
	}
	return s.load(req)
}

func (s *Session) load(req *http.Request) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("httpsite: session closed: %w", site.ErrAdapterUnavailable)
	}

	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("httpsite: %s %s: %w: %w", req.Method, req.URL, site.ErrTransientIO, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("httpsite: %s %s: HTTP %d: %w", req.Method, req.URL, resp.StatusCode, site.ErrTransientIO)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return fmt.Errorf("httpsite: read %s: %w: %w", req.URL, site.ErrTransientIO, err)
	}
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("httpsite: parse %s: %w: %w", req.URL, site.ErrExtraction, err)
	}

	s.mu.Lock()
	s.pageURL = resp.Request.URL
	s.doc = doc
	s.raw = raw
	s.mu.Unlock()
	s.logger.Debug("page loaded", "url", resp.Request.URL.String(), "bytes", len(raw))
	return nil
}

func (s *Session) PageURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pageURL == nil {
		return ""
	}
	return s.pageURL.String()
}

// current returns the loaded page. The document is never mutated after
// parsing, so callers may walk it without the lock.
func (s *Session) current() (*html.Node, *url.URL, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, nil, nil, fmt.Errorf("httpsite: no page loaded: %w", site.ErrTransientIO)
	}
	return s.doc, s.pageURL, s.raw, nil
}

func (s *Session) Candidates(_ context.Context, selectorHint string, limit int) (iter.Seq2[site.Candidate, error], error) {
	doc, base, _, err := s.current()
	if err != nil {
		return nil, err
	}
	if selectorHint == "" {
		selectorHint = defaultCandidateSelector
	}
	sel, err := cascadia.Compile(selectorHint)
	if err != nil {
		return nil, fmt.Errorf("httpsite: selector %q: %w: %w", selectorHint, site.ErrExtraction, err)
	}
	nodes := sel.MatchAll(doc)

	return func(yield func(site.Candidate, error) bool) {
		for i, n := range nodes {
			if limit > 0 && i >= limit {
				return
			}
			c, err := candidateFrom(n, base)
			if !yield(c, err) {
				return
			}
		}
	}, nil
}

func candidateFrom(n *html.Node, base *url.URL) (site.Candidate, error) {
	title := nodeText(n)
	if title == "" {
		title = strings.TrimSpace(attr(n, "title"))
	}
	href := resolve(base, attr(n, "href"))
	if title == "" || href == "" {
		return site.Candidate{}, site.ErrExtraction
	}
	return site.Candidate{Text: title, Href: href}, nil
}

func (s *Session) FindControl(_ context.Context, rule site.ControlRule) (site.Control, error) {
	doc, _, _, err := s.current()
	if err != nil {
		return nil, err
	}
	selector := rule.Selector
	if selector == "" {
		selector = defaultControlSelector
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("httpsite: selector %q: %w: %w", selector, site.ErrExtraction, err)
	}
	for _, n := range sel.MatchAll(doc) {
		label := controlLabel(n)
		if len(rule.Labels) == 0 || labelMatches(label, rule.Labels, rule.Exact) {
			return &control{session: s, node: n, label: label}, nil
		}
	}
	return nil, nil
}

func labelMatches(label string, want []string, exact bool) bool {
	l := strings.ToLower(strings.TrimSpace(label))
	for _, w := range want {
		if w == "" {
			continue
		}
		w = strings.ToLower(w)
		if exact && l == w || !exact && strings.Contains(l, w) {
			return true
		}
	}
	return false
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.doc, s.raw = nil, nil
	s.client.CloseIdleConnections()
	return nil
}
