package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/catalog-harvester/config"
	"github.com/aluiziolira/catalog-harvester/models"
)

const (
	shopTestTemplate      = "{locator}page-{page}/?items_per_page={size}"
	farmTestFirstTemplate = "http://farm.test/genDet/?FarmID={locator}"
	farmTestPageTemplate  = "http://farm.test/genDet/?FarmID={locator}&page={page}"
)

type fakeResponse struct {
	html string
	err  error
	page Page
}

// fakeFetcher serves canned documents by URL and records every request.
type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]fakeResponse
	calls  []string
	closed bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: make(map[string]fakeResponse)}
}

func (f *fakeFetcher) serve(url, html string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = fakeResponse{html: html}
}

func (f *fakeFetcher) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = fakeResponse{err: err}
}

func (f *fakeFetcher) servePage(url string, page Page) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[url] = fakeResponse{page: page}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	resp, ok := f.pages[url]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch {
	case !ok:
		return nil, ErrNotFound{Err: fmt.Errorf("no fixture for %s", url)}
	case resp.err != nil:
		return nil, resp.err
	case resp.page != nil:
		return resp.page, nil
	}
	return newStaticPage(url, http.StatusOK, []byte(resp.html)), nil
}

func (f *fakeFetcher) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) callsTo(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}

// livePage is a page whose title changes over time, like a browser tab
// sitting on an interstitial.
type livePage struct {
	url     string
	mu      sync.Mutex
	titles  []string
	body    string
	reads   int
	closed  bool
	htmlErr error
}

func (p *livePage) URL() string { return p.url }

func (p *livePage) Title(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := min(p.reads, len(p.titles)-1)
	p.reads++
	return p.titles[i], nil
}

func (p *livePage) HTML(context.Context) (string, error) {
	if p.htmlErr != nil {
		return "", p.htmlErr
	}
	return p.body, nil
}

func (p *livePage) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// stopAfter requests a stop once the fetcher has served n requests.
type stopAfter struct {
	fetcher *fakeFetcher
	n       int
}

func (s stopAfter) StopRequested() bool {
	return s.fetcher.callCount() >= s.n
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.ShopBaseURL = "http://shop.test/ka/"
	cfg.ShopPageTemplate = shopTestTemplate
	cfg.FarmFirstPageTemplate = farmTestFirstTemplate
	cfg.FarmPageTemplate = farmTestPageTemplate
	cfg.Timeout = 2 * time.Second
	cfg.ChallengeTimeout = 50 * time.Millisecond
	cfg.ChallengePoll = 5 * time.Millisecond
	cfg.ChallengeSettle = 0
	cfg.PageCooldown = 0
	cfg.CategoryCooldown = 0
	cfg.MaxRetries = 0
	cfg.CheckpointFile = ""
	return cfg
}

func testDetector() *Detector {
	return NewDetector(testConfig(), nil)
}

func testWalker(f Fetcher, stop StopSignal) *Walker {
	cfg := testConfig()
	return &Walker{
		Fetcher:          f,
		Detector:         testDetector(),
		Sources:          SourcesFromConfig(cfg),
		Stop:             stop,
		FetchTimeout:     cfg.Timeout,
		ChallengeTimeout: cfg.ChallengeTimeout,
	}
}

func shopTask(locator string, end, size int) models.CategoryTask {
	return models.CategoryTask{
		SourceID:  models.SiteA,
		Locator:   "http://shop.test/ka/" + locator + "/",
		StartPage: 1,
		EndPage:   end,
		PageSize:  size,
	}
}

func farmTask(id string, end int) models.CategoryTask {
	return models.CategoryTask{
		SourceID:  models.SiteB,
		Locator:   id,
		StartPage: 1,
		EndPage:   end,
		Label:     "Farm " + id,
	}
}

func shopURL(task models.CategoryTask, page int) string {
	return ShopSource(testConfig()).PageURL(task, page)
}

func farmURL(task models.CategoryTask, page int) string {
	return FarmSource(testConfig()).PageURL(task, page)
}

// shopHTML renders a tile grid with n products whose codes start at first.
func shopHTML(first, n int) string {
	var b strings.Builder
	b.WriteString("<html><head><title>Aversi shop</title></head><body><div class=\"grid\">")
	for i := range n {
		code := first + i
		fmt.Fprintf(&b, "<div class=\"col-tile\">")
		fmt.Fprintf(&b, "<input type=\"hidden\" name=\"product_data[%d][product_code]\" value=\"%d\">", code, code)
		fmt.Fprintf(&b, "<a class=\"product-title\">Product %d</a>", code)
		fmt.Fprintf(&b, "<span class=\"ty-price-num\">%d.50</span>", code%100)
		b.WriteString("</div>")
	}
	b.WriteString("</div></body></html>")
	return b.String()
}

// farmHTML renders a card listing with n products and pagination up to
// maxPage.
func farmHTML(first, n, maxPage int) string {
	var b strings.Builder
	b.WriteString("<html><head><title>Aversi</title></head><body>")
	for i := range n {
		code := first + i
		fmt.Fprintf(&b, "<div class=\"product\" data-matid=\"%d\"><h3 class=\"product-title\">Drug %d</h3>", code, code)
		b.WriteString("<div class=\"price\"><ins>4,20</ins><del>5,00</del></div></div>")
	}
	if maxPage > 1 {
		b.WriteString("<ul class=\"pagination\">")
		for p := 1; p <= maxPage; p++ {
			fmt.Fprintf(&b, "<li><a>%d</a></li>", p)
		}
		b.WriteString("<li><a>&raquo;</a></li></ul>")
	}
	b.WriteString("</body></html>")
	return b.String()
}

const challengeHTML = `<html><head><title>Just a moment...</title></head><body>checking</body></html>`

const blockedHTML = `<html><head><title>Attention</title></head><body>Please unblock challenges.cloudflare.com to proceed.</body></html>`
