package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// MenuRules selects category links from a site navigation menu.
type MenuRules struct {
	Links      string
	PathPrefix string
	Include    []string
	Exclude    []string
}

// ShopMenuRules matches the shop's submenu links for medication
// categories.
func ShopMenuRules() MenuRules {
	return MenuRules{
		Links:      ".ty-menu__submenu-item .ty-menu__submenu-link",
		PathPrefix: "/ka/",
		Include:    []string{"medication"},
		Exclude:    []string{"for-cardiovascular-diseases"},
	}
}

// DiscoverCategoryLinks returns the absolute, de-duplicated category URLs
// in menu order. Relative links resolve against base.
func DiscoverCategoryLinks(doc *goquery.Document, base *url.URL, rules MenuRules) []string {
	if doc == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var out []string
	doc.Find(rules.Links).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		if !matchesMenu(href, rules) {
			return
		}
		if base != nil {
			if ref, err := url.Parse(href); err == nil {
				href = base.ResolveReference(ref).String()
			}
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		out = append(out, href)
	})
	return out
}

func matchesMenu(href string, rules MenuRules) bool {
	if rules.PathPrefix != "" {
		idx := strings.Index(href, rules.PathPrefix)
		if idx < 0 {
			return false
		}
		rest := href[idx+len(rules.PathPrefix):]
		if rest == "" || strings.HasPrefix(rest, "/") {
			return false
		}
	}
	if len(rules.Include) > 0 && !containsAny(href, rules.Include) {
		return false
	}
	return !containsAny(href, rules.Exclude)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}
