package parser

import (
	"net/url"
	"slices"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/catalog-harvester/models"
)

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

const shopPage = `<html><body><div class="grid">
<div class="col-tile">
  <a class="product-title">Nurofen
     200mg  #24</a>
  <span class="ty-strike"><span class="ty-list-price">old</span><span class="ty-list-price">12,40 ₾</span></span>
  <span class="ty-price-num">9.9</span>
  <input type="hidden" name="product_data[4411][product_code]" value=" 0012345 ">
</div>
<div class="col-tile">
  <a class="product-title">   </a>
  <span class="ty-price-num">1.00</span>
</div>
<div class="col-tile">
  <a class="product-title">No Code Cream</a>
  <span class="ty-price-num">n/a</span>
</div>
</div></body></html>`

func TestShopRulesetExtract(t *testing.T) {
	task := models.CategoryTask{SourceID: models.SiteA, Locator: "https://shop.example/ka/medication/", StartPage: 1, EndPage: 5, PageSize: 192}
	records := slices.Collect(ShopRuleset().Extract(mustDoc(t, shopPage), task, 3))

	if len(records) != 2 {
		t.Fatalf("records=%d, want 2 (blank titles dropped)", len(records))
	}

	first := records[0]
	if first.Title != "Nurofen 200mg #24" {
		t.Errorf("title=%q", first.Title)
	}
	if first.IdentityKey != "0012345" {
		t.Errorf("key=%q", first.IdentityKey)
	}
	if first.Price != "9.90" {
		t.Errorf("price=%q, want 9.90", first.Price)
	}
	if first.PriceOriginal != "12.40" {
		t.Errorf("price original=%q, want 12.40", first.PriceOriginal)
	}
	if first.PageIndex != "3" || first.CategoryLabel != task.Locator || first.SourceID != models.SiteA {
		t.Errorf("provenance = %q/%q/%q", first.PageIndex, first.CategoryLabel, first.SourceID)
	}
	if first.ObservedAt.IsZero() {
		t.Errorf("observedAt should be set")
	}
	if first.FarmID != "" {
		t.Errorf("shop record farmID=%q, want empty", first.FarmID)
	}

	second := records[1]
	if second.IdentityKey != "" {
		t.Errorf("missing key should stay empty, got %q", second.IdentityKey)
	}
	if second.Price != "" {
		t.Errorf("unparseable price should be empty, got %q", second.Price)
	}
}

const farmPage = `<html><body>
<div class="product" data-matid="501"><h3 class="product-title">Ibuprofen</h3>
  <div class="price"><ins>5,50</ins><del>7,00</del></div></div>
<div class="product"><span data-matid="502"></span><h3 class="product-title">Cough Syrup</h3>
  <div class="price"><ins>3.1</ins></div></div>
<div class="product"><a href="/ka/aversi/act/drugDet/?MatID=503&amp;x=1">link</a>
  <h3 class="product-title">Bandage</h3></div>
<div class="product"><h3 class="product-title">Keyless Item</h3></div>
<ul class="pagination"><li><a>1</a></li><li><a>2</a></li><li><a>7</a></li><li><a>&raquo;</a></li></ul>
</body></html>`

func TestFarmRulesetExtract(t *testing.T) {
	task := models.CategoryTask{SourceID: models.SiteB, Locator: "88", Label: "Painkillers", StartPage: 1, EndPage: 7}
	rs := FarmRuleset()
	doc := mustDoc(t, farmPage)
	records := slices.Collect(rs.Extract(doc, task, 1))

	keys := make([]string, 0, len(records))
	for _, r := range records {
		keys = append(keys, r.IdentityKey)
	}
	if !slices.Equal(keys, []string{"501", "502", "503"}) {
		t.Fatalf("keys=%v, want [501 502 503] (keyless node dropped)", keys)
	}
	if records[0].Price != "5.50" || records[0].PriceOriginal != "7.00" {
		t.Errorf("prices=%q/%q", records[0].Price, records[0].PriceOriginal)
	}
	if records[1].PriceOriginal != "" {
		t.Errorf("missing original price should be empty, got %q", records[1].PriceOriginal)
	}
	if records[0].CategoryLabel != "FarmID 88 - Painkillers" {
		t.Errorf("label=%q", records[0].CategoryLabel)
	}
	for _, r := range records {
		if r.FarmID != "88" {
			t.Errorf("record %s farmID=%q, want 88", r.IdentityKey, r.FarmID)
		}
	}
	if got := rs.MaxPage(doc); got != 7 {
		t.Errorf("MaxPage=%d, want 7", got)
	}
}

func TestExtractStopsWhenConsumerStops(t *testing.T) {
	task := models.CategoryTask{SourceID: models.SiteB, Locator: "88", Label: "x"}
	seen := 0
	for range FarmRuleset().Extract(mustDoc(t, farmPage), task, 1) {
		seen++
		break
	}
	if seen != 1 {
		t.Fatalf("seen=%d, want 1", seen)
	}
}

func TestMaxPageWithoutPagination(t *testing.T) {
	if got := FarmRuleset().MaxPage(mustDoc(t, "<html><body></body></html>")); got != 1 {
		t.Fatalf("MaxPage=%d, want 1", got)
	}
	if got := ShopRuleset().MaxPage(mustDoc(t, farmPage)); got != 1 {
		t.Fatalf("ruleset without pagination selector should report 1, got %d", got)
	}
}

func TestExtractNilDocument(t *testing.T) {
	records := slices.Collect(ShopRuleset().Extract(nil, models.CategoryTask{}, 1))
	if len(records) != 0 {
		t.Fatalf("records=%d, want 0", len(records))
	}
}

func TestRulesetFor(t *testing.T) {
	tests := []struct {
		source    models.SourceID
		wantItems string
		wantOK    bool
	}{
		{source: models.SiteA, wantItems: ".col-tile", wantOK: true},
		{source: models.SiteB, wantItems: ".product", wantOK: true},
		{source: "pharmacy.example", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(string(tt.source), func(t *testing.T) {
			rs, ok := RulesetFor(tt.source)
			if ok != tt.wantOK {
				t.Fatalf("RulesetFor(%q) ok=%v, want %v", tt.source, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if rs.Source != tt.source || rs.Items != tt.wantItems {
				t.Errorf("ruleset = %s/%q, want %s/%q", rs.Source, rs.Items, tt.source, tt.wantItems)
			}
		})
	}
}

func TestDiscoverCategoryLinks(t *testing.T) {
	html := `<ul>
<li class="ty-menu__submenu-item"><a class="ty-menu__submenu-link" href="https://shop.example/ka/medication/antibiotics/">a</a></li>
<li class="ty-menu__submenu-item"><a class="ty-menu__submenu-link" href="/ka/medication/vitamins/">b</a></li>
<li class="ty-menu__submenu-item"><a class="ty-menu__submenu-link" href="https://shop.example/ka/medication/for-cardiovascular-diseases/">c</a></li>
<li class="ty-menu__submenu-item"><a class="ty-menu__submenu-link" href="https://shop.example/ka/care-products/">d</a></li>
<li class="ty-menu__submenu-item"><a class="ty-menu__submenu-link" href="https://shop.example/en/medication/x/">e</a></li>
<li class="ty-menu__submenu-item"><a class="ty-menu__submenu-link" href="https://shop.example/ka/medication/antibiotics/">dup</a></li>
</ul>`
	base, _ := url.Parse("https://shop.example/ka/")
	got := DiscoverCategoryLinks(mustDoc(t, html), base, ShopMenuRules())
	want := []string{
		"https://shop.example/ka/medication/antibiotics/",
		"https://shop.example/ka/medication/vitamins/",
	}
	if !slices.Equal(got, want) {
		t.Fatalf("links=%v, want %v", got, want)
	}
}
