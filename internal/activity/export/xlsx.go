// Package export renders activity logs as an XLSX workbook.
package export

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"certhub/internal/activity/models"
)

const sheetName = "Activity"

var header = []any{
	"ID", "Created At", "Action", "Category", "Status", "User ID", "Institution ID",
	"Certificate ID", "Description", "IP Address", "User Agent", "Metadata",
}

// ContentType is the MIME type of the generated workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Filename returns a dated download name.
func Filename(now time.Time) string {
	return "activity-logs-" + now.UTC().Format("20060102-150405") + ".xlsx"
}

// WriteXLSX writes records as a single-sheet workbook to w.
func WriteXLSX(w io.Writer, records []*models.Record) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetRowStyle(sheetName, 1, 1, bold)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		row := []any{
			r.ID.String(),
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.Action,
			string(r.Category),
			string(r.Status),
			optional(r.UserID),
			optional(r.InstitutionID),
			optional(r.CertificateID),
			r.Description,
			r.IPAddress,
			r.UserAgent,
			flatten(r.Metadata),
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "B", 22)
	_ = f.SetColWidth(sheetName, "I", "I", 60)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func optional[T fmt.Stringer](v *T) string {
	if v == nil {
		return ""
	}
	return (*v).String()
}

// flatten renders metadata as sorted key=value pairs.
func flatten(meta map[string]any) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, meta[k]))
	}
	return strings.Join(parts, "; ")
}
