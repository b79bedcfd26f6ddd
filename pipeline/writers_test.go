package pipeline

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tealeg/xlsx/v2"

	"github.com/aluiziolira/catalog-harvester/config"
	"github.com/aluiziolira/catalog-harvester/models"
)

func sampleRecords() []*models.ProductRecord {
	observed := time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC)
	return []*models.ProductRecord{
		{
			IdentityKey:   "24517",
			Title:         "Ibuprofen 200mg N20",
			Price:         "4.20",
			PriceOriginal: "5.00",
			CategoryLabel: "https://shop.aversi.ge/ka/medication/analgesics/",
			PageIndex:     "1",
			SourceID:      models.SiteA,
			ObservedAt:    observed,
		},
		{
			IdentityKey:   "88012",
			Title:         "Hand cream 75ml",
			Price:         "12.90",
			CategoryLabel: "https://shop.aversi.ge/ka/care-products/hands/",
			PageIndex:     "2",
			SourceID:      models.SiteA,
			ObservedAt:    observed,
		},
		{
			IdentityKey:   "5521",
			Title:         "Aspirin Cardio 100mg",
			Price:         "6.75",
			CategoryLabel: "Cardiology",
			PageIndex:     "3",
			SourceID:      models.SiteB,
			ObservedAt:    observed,
		},
	}
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}

	if err := writer.Write(sampleRecords()[:1]); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if records[0][0] != "product_code" || records[0][1] != "title" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][0] != "24517" || records[1][3] != "5.00" || records[1][7] != "2025-11-04T13:09:13Z" {
		t.Fatalf("unexpected row: %v", records[1])
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	if err := writer.Write(sampleRecords()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		var decoded models.ProductRecord
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		if decoded.IdentityKey == "" {
			t.Fatalf("decoded record lost its product code: %s", scanner.Text())
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if count != 3 {
		t.Fatalf("json lines=%d, want 3", count)
	}
}

func TestXLSXWriterSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "products.xlsx")

	writer, err := NewXLSXWriter(path)
	if err != nil {
		t.Fatalf("create xlsx writer: %v", err)
	}
	if err := writer.Validate(); err == nil {
		t.Fatal("expected validate to fail before close")
	}
	if err := writer.Write(sampleRecords()); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close xlsx: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate xlsx: %v", err)
	}

	f, err := xlsx.OpenFile(path)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}

	want := map[string]int{
		SheetAll:        3,
		SheetMedication: 1,
		SheetCare:       1,
		SheetOldSite:    1,
	}
	if len(f.Sheets) != len(want) {
		t.Fatalf("sheets=%d, want %d", len(f.Sheets), len(want))
	}
	for name, rows := range want {
		sheet, ok := f.Sheet[name]
		if !ok {
			t.Fatalf("missing sheet %q", name)
		}
		if got := len(sheet.Rows) - 1; got != rows {
			t.Fatalf("sheet %q rows=%d, want %d", name, got, rows)
		}
		if header := sheet.Rows[0].Cells[0].String(); header != "productCode" {
			t.Fatalf("sheet %q header=%q", name, header)
		}
	}
	if code := f.Sheet[SheetOldSite].Rows[1].Cells[0].String(); code != "5521" {
		t.Fatalf("old site product code=%q, want 5521", code)
	}
}

func TestXLSXWriterOmitsEmptyOldSiteSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.xlsx")

	writer, err := NewXLSXWriter(path)
	if err != nil {
		t.Fatalf("create xlsx writer: %v", err)
	}
	if err := writer.Write(sampleRecords()[:2]); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close xlsx: %v", err)
	}

	f, err := xlsx.OpenFile(path)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	if _, ok := f.Sheet[SheetOldSite]; ok {
		t.Fatalf("unexpected %q sheet", SheetOldSite)
	}
}

func TestMultiWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "products.csv")
	jsonPath := filepath.Join(dir, "products.jsonl")

	csvWriter, err := NewCSVWriter(csvPath)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	jsonWriter, err := NewJSONWriter(jsonPath)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	writer := NewMultiWriter(
		NamedWriter{Format: config.FormatCSV, Writer: csvWriter},
		NamedWriter{Format: config.FormatJSONL, Writer: jsonWriter},
	)

	if err := writer.Write(sampleRecords()); err != nil {
		t.Fatalf("write multi: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multi: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate multi: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

func TestExport(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ExportDir = filepath.Join(t.TempDir(), "output")
	cfg.ExportFormats = []string{config.FormatCSV, config.FormatJSONL, config.FormatXLSX}

	var records []models.ProductRecord
	for _, r := range sampleRecords() {
		records = append(records, *r)
	}
	// A repeated code is written once.
	records = append(records, records[0])

	files, err := Export(context.Background(), records, cfg)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("files=%v, want 3 formats", files)
	}
	for _, format := range cfg.ExportFormats {
		if files[format] != ExportFile(cfg.ExportDir, format) {
			t.Fatalf("%s path=%q", format, files[format])
		}
	}

	f, err := os.Open(files[config.FormatCSV])
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("csv rows=%d, want header plus 3", len(rows))
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ExportDir = t.TempDir()
	cfg.ExportFormats = []string{"pdf"}

	if _, err := Export(context.Background(), nil, cfg); err == nil {
		t.Fatal("expected unsupported format error")
	}
}
