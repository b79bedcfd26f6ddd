package pipeline

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tealeg/xlsx/v2"

	"github.com/aluiziolira/catalog-harvester/models"
)

var xlsxHeader = []string{"productCode", "title", "price", "priceOld", "category", "pageNum", "source"}

// Sheet names of the spreadsheet export.
const (
	SheetAll        = "All Products"
	SheetMedication = "Medications"
	SheetCare       = "Care Products"
	SheetOldSite    = "Old Site Products"
)

type sheetSpec struct {
	name      string
	match     func(*models.ProductRecord) bool
	skipEmpty bool
}

var xlsxSheets = []sheetSpec{
	{name: SheetAll, match: func(*models.ProductRecord) bool { return true }},
	{name: SheetMedication, match: func(r *models.ProductRecord) bool { return strings.Contains(r.CategoryLabel, "medication") }},
	{name: SheetCare, match: func(r *models.ProductRecord) bool { return strings.Contains(r.CategoryLabel, "care-products") }},
	{name: SheetOldSite, match: func(r *models.ProductRecord) bool { return r.SourceID == models.SiteB }, skipEmpty: true},
}

// XLSXWriter collects records and saves a workbook with one sheet per
// product group on Close.
type XLSXWriter struct {
	filename string
	records  []*models.ProductRecord
	saved    bool
	mu       sync.Mutex
}

// NewXLSXWriter prepares a workbook writer for filename.
func NewXLSXWriter(filename string) (*XLSXWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &XLSXWriter{filename: filename}, nil
}

// Write buffers records for the workbook.
func (xw *XLSXWriter) Write(records []*models.ProductRecord) error {
	xw.mu.Lock()
	defer xw.mu.Unlock()
	if xw.saved {
		return fmt.Errorf("xlsx writer already closed")
	}
	xw.records = append(xw.records, records...)
	return nil
}

// Close builds the workbook and saves it.
func (xw *XLSXWriter) Close() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()
	if xw.saved {
		return nil
	}

	f := xlsx.NewFile()
	for _, sheetDef := range xlsxSheets {
		var rows []*models.ProductRecord
		for _, r := range xw.records {
			if sheetDef.match(r) {
				rows = append(rows, r)
			}
		}
		if sheetDef.skipEmpty && len(rows) == 0 {
			continue
		}
		sheet, err := f.AddSheet(sheetDef.name)
		if err != nil {
			return fmt.Errorf("add sheet %q: %w", sheetDef.name, err)
		}
		addRow(sheet, xlsxHeader)
		for _, r := range rows {
			addRow(sheet, []string{
				r.IdentityKey,
				r.Title,
				r.Price,
				r.PriceOriginal,
				r.CategoryLabel,
				r.PageIndex,
				string(r.SourceID),
			})
		}
	}

	if err := f.Save(xw.filename); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	xw.saved = true
	return nil
}

// Validate ensures the workbook was saved.
func (xw *XLSXWriter) Validate() error {
	xw.mu.Lock()
	saved := xw.saved
	xw.mu.Unlock()
	if !saved {
		return fmt.Errorf("xlsx workbook not saved")
	}
	return validateFile(xw.filename, "xlsx")
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
