package dashboard

import (
	"html/template"
	"strings"

	"gitlab.com/golang-commonmark/markdown"
)

// Raw HTML in model output is escaped, not passed through.
var renderer = markdown.New(
	markdown.XHTMLOutput(true),
	markdown.HTML(false),
	markdown.Linkify(true),
	markdown.Tables(true),
)

// RenderMarkdown converts a report or chat answer to HTML.
func RenderMarkdown(src string) template.HTML {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	return template.HTML(renderer.RenderToString([]byte(src)))
}
