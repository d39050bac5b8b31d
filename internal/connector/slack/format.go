package slackconn

import (
	"regexp"
	"strings"
)

var (
	mdLink   = regexp.MustCompile(`\[([^\]]+)\]\(([^)\s]+)\)`)
	mdBold   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdItalic = regexp.MustCompile(`\*([^*]+?)\*`)
)

// MarkdownToMrkdwn converts notice Markdown to Slack mrkdwn: **bold** to
// *bold*, *italic* to _italic_, ~~strike~~ to ~strike~ and [text](url) to
// <url|text>. Text inside backticks is left alone.
func MarkdownToMrkdwn(md string) string {
	parts := strings.Split(md, "`")
	for i := 0; i < len(parts); i += 2 { // even parts are outside code
		parts[i] = convertSpan(parts[i])
	}
	return strings.Join(parts, "`")
}

func convertSpan(s string) string {
	// Placeholders keep bold output from being read as italic.
	s = mdBold.ReplaceAllString(s, "\x00$1\x00")
	s = mdItalic.ReplaceAllString(s, "_${1}_")
	s = strings.ReplaceAll(s, "\x00", "*")
	s = strings.ReplaceAll(s, "~~", "~")
	return mdLink.ReplaceAllString(s, "<$2|$1>")
}
