package parser

import (
	"iter"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/catalog-harvester/models"
)

// Field names a role a value plays in a product record.
type Field string

const (
	FieldKey           Field = "identity_key"
	FieldTitle         Field = "title"
	FieldPrice         Field = "price"
	FieldPriceOriginal Field = "price_original"
)

// FieldReader reads one raw value from an item node.
type FieldReader interface {
	Read(item *goquery.Selection) string
}

// Text reads the combined text of the nodes matching Selector below the
// item. Last restricts the match to the final node.
type Text struct {
	Selector string
	Last     bool
}

func (t Text) Read(item *goquery.Selection) string {
	sel := scope(item, t.Selector)
	if t.Last {
		sel = sel.Last()
	}
	return sel.Text()
}

// Attr reads an attribute from the first node matching Selector, or from
// the item itself when Selector is empty.
type Attr struct {
	Selector string
	Name     string
}

func (a Attr) Read(item *goquery.Selection) string {
	value, _ := scope(item, a.Selector).First().Attr(a.Name)
	return value
}

// AttrPattern reads an attribute and returns the first capture group of
// Pattern, or "" when it does not match.
type AttrPattern struct {
	Selector string
	Name     string
	Pattern  *regexp.Regexp
}

func (a AttrPattern) Read(item *goquery.Selection) string {
	value := Attr{Selector: a.Selector, Name: a.Name}.Read(item)
	if value == "" || a.Pattern == nil {
		return ""
	}
	m := a.Pattern.FindStringSubmatch(value)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// FirstOf tries readers in order and returns the first non-blank value.
type FirstOf []FieldReader

func (f FirstOf) Read(item *goquery.Selection) string {
	for _, r := range f {
		if v := r.Read(item); strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func scope(item *goquery.Selection, selector string) *goquery.Selection {
	if selector == "" {
		return item
	}
	return item.Find(selector)
}

// Ruleset describes how to locate product nodes for one source and how to
// read each field from them. Adding a source means adding a Ruleset.
type Ruleset struct {
	Source models.SourceID
	Items  string
	Fields map[Field]FieldReader
	// RequireKey drops nodes without an identity key.
	RequireKey bool
	// Pagination selects the links whose text carries page numbers.
	Pagination string
	// Label composes the category label stored on every record.
	Label func(task models.CategoryTask) string
	// FarmID, when set, stamps the task's listing id on every record.
	FarmID func(task models.CategoryTask) string
}

// Extract yields the normalized records found in doc. Nodes without a
// title, and nodes without a key when RequireKey is set, are dropped.
func (rs *Ruleset) Extract(doc *goquery.Document, task models.CategoryTask, page int) iter.Seq[models.ProductRecord] {
	label := task.Locator
	if rs.Label != nil {
		label = rs.Label(task)
	}
	var farmID string
	if rs.FarmID != nil {
		farmID = rs.FarmID(task)
	}
	pageIndex := strconv.Itoa(page)
	observedAt := time.Now().UTC()

	return func(yield func(models.ProductRecord) bool) {
		if doc == nil {
			return
		}
		nodes := doc.Find(rs.Items)
		for i := range nodes.Length() {
			item := nodes.Eq(i)
			rec := models.ProductRecord{
				IdentityKey:   NormalizeText(rs.read(FieldKey, item)),
				Title:         NormalizeText(rs.read(FieldTitle, item)),
				Price:         NormalizePrice(rs.read(FieldPrice, item)),
				PriceOriginal: NormalizePrice(rs.read(FieldPriceOriginal, item)),
				CategoryLabel: label,
				PageIndex:     pageIndex,
				SourceID:      rs.Source,
				ObservedAt:    observedAt,
				FarmID:        farmID,
			}
			if rs.RequireKey && rec.IdentityKey == "" {
				continue
			}
			if ValidateRecord(&rec) != nil {
				continue
			}
			if !yield(rec) {
				return
			}
		}
	}
}

func (rs *Ruleset) read(f Field, item *goquery.Selection) string {
	r, ok := rs.Fields[f]
	if !ok || r == nil {
		return ""
	}
	return r.Read(item)
}

// MaxPage returns the highest page number advertised by the pagination
// controls, or 1 when there are none.
func (rs *Ruleset) MaxPage(doc *goquery.Document) int {
	if doc == nil || rs.Pagination == "" {
		return 1
	}
	highest := 1
	doc.Find(rs.Pagination).Each(func(_ int, s *goquery.Selection) {
		n, err := strconv.Atoi(strings.TrimSpace(s.Text()))
		if err == nil && n > highest {
			highest = n
		}
	})
	return highest
}

var matIDPattern = regexp.MustCompile(`MatID=(\d+)`)

// ShopRuleset reads the tile grid: current and previous price nodes and a
// hidden form field carrying the product code.
func ShopRuleset() *Ruleset {
	return &Ruleset{
		Source: models.SiteA,
		Items:  ".col-tile",
		Fields: map[Field]FieldReader{
			FieldKey:           Attr{Selector: `input[name$="[product_code]"]`, Name: "value"},
			FieldTitle:         Text{Selector: ".product-title"},
			FieldPrice:         Text{Selector: ".ty-price-num"},
			FieldPriceOriginal: Text{Selector: ".ty-list-price:last-child"},
		},
	}
}

// FarmRuleset reads the card layout keyed by the site's numeric MatID,
// found either in a data attribute or in a product link.
func FarmRuleset() *Ruleset {
	return &Ruleset{
		Source: models.SiteB,
		Items:  ".product",
		Fields: map[Field]FieldReader{
			FieldKey: FirstOf{
				Attr{Name: "data-matid"},
				Attr{Selector: "[data-matid]", Name: "data-matid"},
				AttrPattern{Selector: `a[href*="MatID="]`, Name: "href", Pattern: matIDPattern},
			},
			FieldTitle:         Text{Selector: ".product-title"},
			FieldPrice:         Text{Selector: ".price ins"},
			FieldPriceOriginal: Text{Selector: ".price del"},
		},
		RequireKey: true,
		Pagination: ".pagination li a",
		Label: func(task models.CategoryTask) string {
			return "FarmID " + task.Locator + " - " + task.DisplayName()
		},
		FarmID: func(task models.CategoryTask) string {
			return task.Locator
		},
	}
}

// RulesetFor returns the built-in ruleset for a source.
func RulesetFor(source models.SourceID) (*Ruleset, bool) {
	switch source {
	case models.SiteA:
		return ShopRuleset(), true
	case models.SiteB:
		return FarmRuleset(), true
	default:
		return nil, false
	}
}
