// Package dashboard renders the browser UI: a report generator tab and a
// follow-up assistant tab over the latest report.
package dashboard

import (
	_ "embed"
	"html/template"
	"io"
	"time"
)

//go:embed templates/index.html
var indexHTML string

var page = template.Must(template.New("index").Parse(indexHTML))

// Report is a finished run shown on first load.
type Report struct {
	RunID      string
	Question   string
	FinishedAt time.Time
	HTML       template.HTML
}

type PageData struct {
	Title           string
	DefaultQuestion string
	Latest          *Report
}

// Render writes the dashboard page.
func Render(w io.Writer, data PageData) error {
	if data.Title == "" {
		data.Title = "World Economics AI"
	}
	return page.Execute(w, data)
}
