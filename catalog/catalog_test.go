package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/catalog-harvester/models"
)

func rec(key, title, price string) models.ProductRecord {
	return models.ProductRecord{IdentityKey: key, Title: title, Price: price, SourceID: models.SiteA}
}

func asMap(records []models.ProductRecord) map[string]models.ProductRecord {
	out := make(map[string]models.ProductRecord, len(records))
	for _, r := range records {
		out[r.IdentityKey] = r
	}
	return out
}

func TestMergeLastWriteWins(t *testing.T) {
	existing := []models.ProductRecord{rec("1", "A", "1.00"), rec("2", "B", "2.00")}
	batch := []models.ProductRecord{rec("2", "B", "2.50"), rec("3", "C", "3.00")}

	merged := Merge(existing, batch)
	if len(merged) != 3 {
		t.Fatalf("merged=%d, want 3", len(merged))
	}
	if merged[1].IdentityKey != "2" || merged[1].Price != "2.50" {
		t.Fatalf("key 2 = %+v, want newer price at original position", merged[1])
	}
	if merged[2].IdentityKey != "3" {
		t.Fatalf("new key appended last, got %+v", merged[2])
	}
}

func TestMergeDropsBlankKeys(t *testing.T) {
	existing := []models.ProductRecord{rec("", "Same", "1.00")}
	batch := []models.ProductRecord{rec("", "Same", "1.00"), rec("   ", "Spaces", "1.00"), rec("9", "Kept", "")}

	if got := len(existing) + len(batch); got != 4 {
		t.Fatalf("pre-merge concatenation = %d", got)
	}
	merged := Merge(existing, batch)
	if len(merged) != 1 || merged[0].IdentityKey != "9" {
		t.Fatalf("merged=%+v, want only key 9", merged)
	}
	if n := Keyless(append(existing, batch...)); n != 3 {
		t.Fatalf("Keyless=%d, want 3", n)
	}
}

func TestMergeIdempotentWithEmptyBatch(t *testing.T) {
	c := Merge(nil, []models.ProductRecord{rec("1", "A", "1.00"), rec("2", "B", ""), rec("1", "A2", "1.10")})
	again := Merge(c, nil)
	if !reflect.DeepEqual(asMap(c), asMap(again)) {
		t.Fatalf("merge(C, []) != C: %+v vs %+v", c, again)
	}
	if !reflect.DeepEqual(c, Merge(again, []models.ProductRecord{})) {
		t.Fatalf("repeated empty merges changed the catalog")
	}
}

func TestMergeAssociative(t *testing.T) {
	c := []models.ProductRecord{rec("1", "A", "1.00"), rec("2", "B", "2.00")}
	b1 := []models.ProductRecord{rec("2", "B", "2.20"), rec("", "K", ""), rec("3", "C", "3.00")}
	b2 := []models.ProductRecord{rec("3", "C", "3.30"), rec("1", "A", "0.90"), rec("4", "D", "")}

	stepwise := Merge(Merge(c, b1), b2)
	combined := Merge(c, append(append([]models.ProductRecord{}, b1...), b2...))
	if !reflect.DeepEqual(asMap(stepwise), asMap(combined)) {
		t.Fatalf("stepwise=%+v combined=%+v", stepwise, combined)
	}
	if !reflect.DeepEqual(stepwise, combined) {
		t.Fatalf("order differs: %+v vs %+v", stepwise, combined)
	}
}

func TestStoreLoadMissingIsEmpty(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing", "products.json"))
	records, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records=%d, want 0", len(records))
	}
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "products.json")
	store := NewStore(path)
	observed := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	in := []models.ProductRecord{
		{IdentityKey: "1", Title: "A", Price: "1.00", PriceOriginal: "1.50", CategoryLabel: "c", PageIndex: "1", SourceID: models.SiteA, ObservedAt: observed},
		{IdentityKey: "2", Title: "B", SourceID: models.SiteB},
	}
	if err := store.Save(in); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n in=%+v\nout=%+v", in, out)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestStoreLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := NewStore(path).Load()
	if !errors.Is(err, ErrCorruptCatalog) {
		t.Fatalf("expected ErrCorruptCatalog, got %v", err)
	}
}

func TestStoreLoadLegacyFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.json")
	legacy := `[{"productCode":"77","title":"Old","price":"1.00","priceOld":"","category":"https://x/ka/medication/","pageNum":"2","source":"shop.aversi.ge"}]`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	records, err := NewStore(path).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 1 || records[0].IdentityKey != "77" || records[0].SourceID != models.SiteA || !records[0].ObservedAt.IsZero() {
		t.Fatalf("records=%+v", records)
	}
}

func TestStoreKeepsFarmIDAcrossResave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aversi_products.json")
	legacy := `[{"productCode":"501","title":"Ibuprofen","price":"5.50","priceOld":"7.00","category":"FarmID 88 - Painkillers","pageNum":"1","source":"aversi.ge","farmID":"88"}]`
	if err := os.WriteFile(path, []byte(legacy), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store := NewStore(path)
	records, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 1 || records[0].FarmID != "88" {
		t.Fatalf("records=%+v", records)
	}
	if err := store.Save(records); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"farmID": "88"`) {
		t.Fatalf("farmID lost on save:\n%s", data)
	}
}

func TestSummarize(t *testing.T) {
	records := []models.ProductRecord{
		{IdentityKey: "1", Title: "A", Price: "1.00", PriceOriginal: "2.00", CategoryLabel: "https://x/ka/medication/a/", SourceID: models.SiteA},
		{IdentityKey: "2", Title: "B", Price: "1.00", PriceOriginal: "1.00", CategoryLabel: "https://x/ka/care-products/b/", SourceID: models.SiteA},
		{IdentityKey: "3", Title: "C", CategoryLabel: "FarmID 1 - X", SourceID: models.SiteB},
	}
	result := &models.RunResult{
		PerSource: map[models.SourceID]models.SourceSummary{
			models.SiteA: {PagesCompleted: 3},
			models.SiteB: {PagesCompleted: 2},
		},
		Categories: []models.CategorySummary{{FailedPages: []string{"x-1"}}},
	}
	stats := Summarize(records, result, 90*time.Second)

	if stats.TotalProducts != 3 || stats.WithPrice != 2 || stats.WithDiscount != 1 || stats.WithProductCode != 3 {
		t.Fatalf("stats=%+v", stats)
	}
	if stats.MedicationProducts != 1 || stats.CareProducts != 1 {
		t.Fatalf("groups=%d/%d", stats.MedicationProducts, stats.CareProducts)
	}
	if stats.PerSource[models.SiteA] != 2 || stats.PerSource[models.SiteB] != 1 {
		t.Fatalf("per source=%v", stats.PerSource)
	}
	if stats.PagesScraped != 5 || stats.FailedPages != 1 || stats.Duration != "1.50" {
		t.Fatalf("pages=%d failed=%d duration=%s", stats.PagesScraped, stats.FailedPages, stats.Duration)
	}
}
