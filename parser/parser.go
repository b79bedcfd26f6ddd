package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/aluiziolira/catalog-harvester/models"
)

// ValidateRecord ensures the extractor captured the required fields.
func ValidateRecord(r *models.ProductRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("record missing title")
	}
	return nil
}

// NormalizeText collapses whitespace runs into single spaces, trims the
// ends and drops extra whitespace before '#', so "Item  #123" reads
// "Item #123".
func NormalizeText(raw string) string {
	fields := strings.FieldsFunc(raw, isSpace)
	if len(fields) == 0 {
		return ""
	}
	return strings.Join(fields, " ")
}

// isSpace reports Unicode whitespace and the byte order mark.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\uFEFF'
}

// NormalizeValue renders arbitrary extracted values as normalized text.
func NormalizeValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return NormalizeText(t)
	case fmt.Stringer:
		return NormalizeText(t.String())
	default:
		return NormalizeText(fmt.Sprint(t))
	}
}

var currencyTokens = []string{"ლარი", "GEL", "₾", "$", "€", "£"}

// NormalizePrice converts a displayed price into a canonical decimal with
// exactly two fraction digits. Unparseable input yields "", which callers
// must read as unknown rather than zero.
func NormalizePrice(raw string) string {
	price := strings.Map(func(r rune) rune {
		if isSpace(r) {
			return -1
		}
		return r
	}, raw)
	for _, token := range currencyTokens {
		price = strings.ReplaceAll(price, token, "")
	}
	if price == "" {
		return ""
	}

	if strings.Contains(price, ",") && !strings.Contains(price, ".") {
		price = strings.Replace(price, ",", ".", 1)
	} else {
		price = strings.ReplaceAll(price, ",", "")
	}

	value, ok := leadingDecimal(price)
	if !ok {
		return ""
	}
	cents := math.Floor(value*100 + 0.5)
	return strconv.FormatFloat(cents/100, 'f', 2, 64)
}

// leadingDecimal parses the longest numeric prefix of s, so trailing unit
// text such as "12.50/ც" still yields a value.
func leadingDecimal(s string) (float64, bool) {
	end := 0
	seenDigit, seenDot := false, false
scan:
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			seenDigit = true
			end = i + 1
		case r == '.' && !seenDot:
			seenDot = true
			end = i + 1
		case (r == '-' || r == '+') && i == 0:
			end = i + 1
		default:
			break scan
		}
	}
	if !seenDigit {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.TrimSuffix(s[:end], "."), 64)
	if err != nil || math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, false
	}
	return value, true
}
