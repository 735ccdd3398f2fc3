// Package export renders ledger reports into downloadable documents.
package export

import (
	"fmt"
	"strings"
	"time"

	appinv "github.com/dairyflow/backend/internal/application/inventory"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// XLSXContentType is the MIME type of generated workbooks
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const registerSheet = "Spoilage Register"

var registerHeader = []any{
	"Detected At", "Batch Code", "Reason", "Status", "Quantity", "Unit Cost", "Total Loss",
	"FIFO Bypassed", "Approved At", "Written Off At", "Notes",
}

// XLSXRegisterRenderer renders the spoilage register as an Excel workbook
type XLSXRegisterRenderer struct {
	location *time.Location
	title    cases.Caser
}

// NewXLSXRegisterRenderer creates a renderer printing timestamps in loc
// (UTC when nil)
func NewXLSXRegisterRenderer(loc *time.Location) *XLSXRegisterRenderer {
	if loc == nil {
		loc = time.UTC
	}
	return &XLSXRegisterRenderer{location: loc, title: cases.Title(language.English)}
}

// ContentType implements appinv.SpoilageRegisterRenderer
func (r *XLSXRegisterRenderer) ContentType() string { return XLSXContentType }

// FileExtension implements appinv.SpoilageRegisterRenderer
func (r *XLSXRegisterRenderer) FileExtension() string { return ".xlsx" }

// RenderSpoilageRegister writes one row per record followed by a totals row
func (r *XLSXRegisterRenderer) RenderSpoilageRegister(records []appinv.SpoilageRecordResponse, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", registerSheet); err != nil {
		return nil, err
	}

	title := fmt.Sprintf("Spoilage register generated %s", r.formatTime(generatedAt))
	if err := f.SetCellValue(registerSheet, "A1", title); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(registerSheet, "A3", &registerHeader); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(registerSheet, "A3", "K3", bold); err != nil {
		return nil, err
	}

	totalQty, totalLoss := decimal.Zero, decimal.Zero
	row := 4
	for _, rec := range records {
		values := []any{
			r.formatTime(rec.DetectedAt),
			rec.BatchCode,
			r.title.String(strings.ToLower(string(rec.Reason))),
			string(rec.Status),
			rec.QuantitySpoiled.InexactFloat64(),
			rec.UnitCost.InexactFloat64(),
			rec.TotalLoss.InexactFloat64(),
			yesNo(rec.FifoBypassed),
			r.formatOptional(rec.ApprovedAt),
			r.formatOptional(rec.WrittenOffAt),
			rec.Notes,
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(registerSheet, cell, &values); err != nil {
			return nil, err
		}
		totalQty = totalQty.Add(rec.QuantitySpoiled)
		totalLoss = totalLoss.Add(rec.TotalLoss)
		row++
	}

	totals := []any{"Total", "", "", "", totalQty.InexactFloat64(), "", totalLoss.InexactFloat64()}
	cell, _ := excelize.CoordinatesToCellName(1, row)
	if err := f.SetSheetRow(registerSheet, cell, &totals); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(registerSheet, cell, fmt.Sprintf("K%d", row), bold); err != nil {
		return nil, err
	}

	if err := f.SetColWidth(registerSheet, "A", "B", 22); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(registerSheet, "K", "K", 48); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write spoilage register: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *XLSXRegisterRenderer) formatTime(t time.Time) string {
	return t.In(r.location).Format("2006-01-02 15:04")
}

func (r *XLSXRegisterRenderer) formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return r.formatTime(*t)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

var _ appinv.SpoilageRegisterRenderer = (*XLSXRegisterRenderer)(nil)
