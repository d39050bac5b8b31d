package httpsite

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"codeberg.org/readeck/go-readability/v2"

	"github.com/h1v3-io/seatwatch/internal/site"
	"github.com/h1v3-io/seatwatch/pkg/protocol"
)

const maxCategoryName = 80

// priceLine matches "General Stand ₹800", "Pavilion - Rs. 2,500" and
// "VIP Box: INR 5000".
var priceLine = regexp.MustCompile(`(?i)^(.*?[\p{L}\p{N})])\s*[:|\-–]?\s*(?:₹|rs\.?|inr)\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)

// ReadCategories extracts ticket categories from the current page. Both the
// block structure of the document and the readable article text are
// scanned; the richer result wins, the document on a tie.
func (s *Session) ReadCategories(_ context.Context, rule site.CategoryRule) ([]protocol.Category, error) {
	doc, base, raw, err := s.current()
	if err != nil {
		return nil, err
	}
	currency := rule.Currency
	if currency == "" {
		currency = "₹"
	}

	cats := parseCategories(textLines(doc), currency)
	if readable := s.readableCategories(raw, base, currency); len(readable) > len(cats) {
		cats = readable
	}
	if len(cats) == 0 {
		return nil, fmt.Errorf("httpsite: no categories on %s: %w", base, site.ErrExtraction)
	}
	return cats, nil
}

func (s *Session) readableCategories(raw []byte, base *url.URL, currency string) []protocol.Category {
	article, err := readability.FromReader(bytes.NewReader(raw), base)
	if err != nil {
		s.logger.Debug("readability failed", "url", base.String(), "error", err)
		return nil
	}
	var buf bytes.Buffer
	if err := article.RenderText(&buf); err != nil {
		return nil
	}
	return parseCategories(splitLines(buf.String()), currency)
}

func parseCategories(lines []string, currency string) []protocol.Category {
	var out []protocol.Category
	seen := make(map[string]bool)
	for _, line := range lines {
		m := priceLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if name == "" || len(name) > maxCategoryName {
			continue
		}
		price := currency + strings.ReplaceAll(m[2], ",", "")
		key := strings.ToLower(name) + "|" + price
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, protocol.Category{Name: name, Price: price})
	}
	return out
}
