// Package scraper walks paginated listing categories of both sources and
// coordinates the run.
package scraper

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page is a fetched document. Browser pages are live and may change while a
// challenge clears; static pages never change.
type Page interface {
	URL() string
	Title(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Fetcher loads a listing page. Implementations are shared by every source
// pipeline and may block while their underlying resources are busy.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
	Close() error
}

type staticer interface {
	Static() bool
}

func isStatic(p Page) bool {
	s, ok := p.(staticer)
	return ok && s.Static()
}

// staticPage is a fully downloaded document.
type staticPage struct {
	url    string
	status int
	body   string
	title  string
}

func newStaticPage(url string, status int, body []byte) *staticPage {
	p := &staticPage{url: url, status: status, body: string(body)}
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.body)); err == nil {
		p.title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	return p
}

func (p *staticPage) URL() string                           { return p.url }
func (p *staticPage) Title(context.Context) (string, error) { return p.title, nil }
func (p *staticPage) HTML(context.Context) (string, error)  { return p.body, nil }
func (p *staticPage) Close() error                          { return nil }
func (p *staticPage) Static() bool                          { return true }
