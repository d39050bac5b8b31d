package httpsite

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/h1v3-io/seatwatch/internal/site"
)

// control is an element on the session's current page.
type control struct {
	session *Session
	node    *html.Node
	label   string
}

func (c *control) Label() string { return c.label }

func (c *control) IsEnabled(context.Context) (bool, error) {
	return isEnabled(c.node), nil
}

func isEnabled(n *html.Node) bool {
	if hasAttr(n, "disabled") {
		return false
	}
	if strings.EqualFold(attr(n, "aria-disabled"), "true") {
		return false
	}
	for _, cls := range strings.Fields(attr(n, "class")) {
		if strings.EqualFold(cls, "disabled") {
			return false
		}
	}
	return true
}

// Click follows a link or submits the enclosing form. Script-driven
// controls have nothing to request over HTTP; for those Click succeeds
// without changing the page and the operator continues in a browser.
func (c *control) Click(ctx context.Context) error {
	s := c.session
	_, base, _, err := s.current()
	if err != nil {
		return err
	}

	if c.node.Data == "a" {
		href := attr(c.node, "href")
		if followable(href) {
			return s.Navigate(ctx, resolve(base, href))
		}
		return nil
	}

	form := enclosingForm(c.node)
	if form == nil || isNonSubmit(c.node) {
		return nil
	}
	req, err := formRequest(ctx, form, c.node, base)
	if err != nil {
		return err
	}
	return s.load(req)
}

func followable(href string) bool {
	h := strings.TrimSpace(strings.ToLower(href))
	return h != "" && !strings.HasPrefix(h, "#") && !strings.HasPrefix(h, "javascript:")
}

func isNonSubmit(n *html.Node) bool {
	t := strings.ToLower(attr(n, "type"))
	return n.Data == "button" && (t == "button" || t == "reset")
}

func enclosingForm(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && p.Data == "form" {
			return p
		}
	}
	return nil
}

// formRequest builds the request a browser would send when submitter is
// clicked inside form.
func formRequest(ctx context.Context, form, submitter *html.Node, base *url.URL) (*http.Request, error) {
	values := url.Values{}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			name := attr(n, "name")
			switch n.Data {
			case "input":
				t := strings.ToLower(attr(n, "type"))
				checked := hasAttr(n, "checked")
				switch {
				case name == "" || hasAttr(n, "disabled"):
				case t == "submit" || t == "button" || t == "image" || t == "reset":
				case (t == "checkbox" || t == "radio") && !checked:
				default:
					values.Add(name, attr(n, "value"))
				}
			case "select":
				if name != "" {
					values.Add(name, selectedOption(n))
				}
			case "textarea":
				if name != "" {
					values.Add(name, nodeText(n))
				}
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(form)
	if name := attr(submitter, "name"); name != "" {
		values.Add(name, attr(submitter, "value"))
	}

	action := resolve(base, attr(form, "action"))
	if action == "" && base != nil {
		action = base.String()
	}
	method := strings.ToUpper(attr(form, "method"))
	if method != http.MethodPost {
		u, err := url.Parse(action)
		if err != nil {
			return nil, fmt.Errorf("httpsite: form action %q: %w", action, site.ErrExtraction)
		}
		u.RawQuery = values.Encode()
		return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("httpsite: form action %q: %w", action, site.ErrExtraction)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}

func selectedOption(sel *html.Node) string {
	var first, chosen *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "option" {
			if first == nil {
				first = n
			}
			if chosen == nil && hasAttr(n, "selected") {
				chosen = n
			}
		}
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
	}
	walk(sel)
	if chosen == nil {
		chosen = first
	}
	if chosen == nil {
		return ""
	}
	if hasAttr(chosen, "value") {
		return attr(chosen, "value")
	}
	return nodeText(chosen)
}
