package telegram

import (
	"regexp"
	"strings"
)

var (
	reLink   = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	reBold   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reItalic = regexp.MustCompile(`\*([^*]+?)\*`)
	reCode   = regexp.MustCompile("`([^`]+)`")
)

// MarkdownToTelegramHTML converts the Markdown used in notices (bold,
// italic, inline code, links) to Telegram's HTML subset.
func MarkdownToTelegramHTML(md string) string {
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		lines[i] = inlineHTML(line)
	}
	return strings.Join(lines, "\n")
}

func inlineHTML(line string) string {
	// Links first, so their URLs are not touched by emphasis rules. URLs
	// are stashed and restored after escaping.
	var urls []string
	line = reLink.ReplaceAllStringFunc(line, func(m string) string {
		sub := reLink.FindStringSubmatch(m)
		urls = append(urls, sub[2])
		return "\x00" + sub[1] + "\x01"
	})

	line = escapeHTML(line)
	line = reCode.ReplaceAllString(line, "<code>$1</code>")
	line = reBold.ReplaceAllString(line, "<b>$1</b>")
	line = reItalic.ReplaceAllString(line, "<i>$1</i>")

	for _, u := range urls {
		start := strings.IndexByte(line, '\x00')
		end := strings.IndexByte(line, '\x01')
		if start < 0 || end < start {
			break
		}
		line = line[:start] + `<a href="` + escapeHTML(u) + `">` + line[start+1:end] + "</a>" + line[end+1:]
	}
	return line
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return strings.ReplaceAll(s, `"`, "&quot;")
}

// StripMarkdown removes Markdown markers, keeping link URLs in parentheses.
func StripMarkdown(md string) string {
	s := reLink.ReplaceAllString(md, "$1 ($2)")
	s = reBold.ReplaceAllString(s, "$1")
	s = reItalic.ReplaceAllString(s, "$1")
	return reCode.ReplaceAllString(s, "$1")
}
