// Package webpage fetches a page and returns its main content as markdown.
package webpage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"

	"worldeconomics/internal/tools"
)

const (
	ToolName = "read_webpage"

	DefaultUserAgent = "Mozilla/5.0 (compatible; worldeconomics-reader/1.0)"
	defaultMaxChars  = 20000
	maxBodyBytes     = 4 << 20
)

var (
	ErrInvalidURL  = errors.New("webpage: url must be absolute http(s)")
	ErrUnsupported = errors.New("webpage: unsupported content type")
)

var blankLines = regexp.MustCompile(`\n{3,}`)

// Page is the reader output.
type Page struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Content     string `json:"content"`
	Truncated   bool   `json:"truncated,omitempty"`
}

// Reader downloads pages and converts them to markdown.
type Reader struct {
	HTTPClient *http.Client
	UserAgent  string
	// MaxChars caps the returned content; zero uses a default.
	MaxChars int
}

func NewReader() *Reader {
	return &Reader{HTTPClient: &http.Client{Timeout: 30 * time.Second}, UserAgent: DefaultUserAgent, MaxChars: defaultMaxChars}
}

// Read fetches rawURL and extracts its main content.
func (r *Reader) Read(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.ParseRequestURI(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	ua := r.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webpage: fetch %s: %w", u.Host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webpage: fetch %s: HTTP %d", u.Host, resp.StatusCode)
	}
	body := io.LimitReader(resp.Body, maxBodyBytes)

	ctype := strings.ToLower(resp.Header.Get("Content-Type"))
	page := &Page{URL: u.String()}
	switch {
	case ctype == "" || strings.Contains(ctype, "html"):
		if err := r.fromHTML(body, u, page); err != nil {
			return nil, err
		}
	case strings.HasPrefix(ctype, "text/"):
		b, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		page.Content = strings.TrimSpace(string(b))
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupported, ctype)
	}
	page.Content, page.Truncated = truncate(page.Content, r.maxChars())
	return page, nil
}

func (r *Reader) maxChars() int {
	if r.MaxChars > 0 {
		return r.MaxChars
	}
	return defaultMaxChars
}

func (r *Reader) fromHTML(body io.Reader, u *url.URL, page *Page) error {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return fmt.Errorf("webpage: parse html: %w", err)
	}
	page.Title = strings.TrimSpace(doc.Find("head title").First().Text())
	if d, ok := doc.Find("meta[name='description']").Attr("content"); ok {
		page.Description = strings.TrimSpace(d)
	}

	doc.Find("script, style, noscript, nav, header, footer, aside, form, iframe").Remove()
	html := ""
	for _, sel := range []string{"main", "article", "#content, #main", ".content, .main", "body"} {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		if h, err := s.Html(); err == nil && strings.TrimSpace(h) != "" {
			html = h
			break
		}
	}
	if html == "" {
		html, _ = doc.Html()
	}
	md, err := htmltomarkdown.ConvertString(html, converter.WithDomain(u.Scheme+"://"+u.Host))
	if err != nil {
		return fmt.Errorf("webpage: convert: %w", err)
	}
	page.Content = cleanMarkdown(md)
	return nil
}

func cleanMarkdown(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

// truncate cuts s to at most max runes.
func truncate(s string, max int) (string, bool) {
	runes := []rune(s)
	if len(runes) <= max {
		return s, false
	}
	return string(runes[:max]) + "\n\n[content truncated]", true
}

// Tool adapts a Reader to the tool registry.
type Tool struct {
	reader *Reader
}

var _ tools.Tool = (*Tool)(nil)

func NewTool(r *Reader) *Tool {
	if r == nil {
		r = NewReader()
	}
	return &Tool{reader: r}
}

func (t *Tool) Spec() tools.ToolSpec {
	return tools.ToolSpec{
		Name:        ToolName,
		Description: "Fetch a web page found through web_search and return its main text as markdown.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"url":{"type":"string","description":"Absolute http(s) URL"}},"required":["url"]}`),
		OutputSchema: json.RawMessage(`{"type":"object","properties":{"url":{"type":"string"},"title":{"type":"string"},` +
			`"description":{"type":"string"},"content":{"type":"string"},"truncated":{"type":"boolean"}}}`),
	}
}

func (t *Tool) Call(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("webpage: invalid input: %w", err)
	}
	page, err := t.reader.Read(ctx, in.URL)
	if err != nil {
		return nil, err
	}
	return json.Marshal(page)
}
