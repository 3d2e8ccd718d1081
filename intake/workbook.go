package intake

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// TemplateFileName is the suggested name for the import template download.
const TemplateFileName = "template_users.xlsx"

var templateRows = [][]any{
	{"name", "email"},
	{"Juan Pérez", "juan@example.com"},
	{"María García", "maria@example.com"},
}

// Sheets lists sheet names of a local .xlsx file. Legacy .xls files are not readable locally.
func Sheets(path string) ([]string, error) {
	if strings.ToLower(filepath.Ext(path)) != ".xlsx" {
		return nil, fmt.Errorf("local sheet listing supports .xlsx only")
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}
	return sheets, nil
}

// WriteTemplate writes the import template workbook to w.
func WriteTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range templateRows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write template row %d: %w", i+1, err)
		}
	}
	if err := f.SetColWidth(sheet, "A", "B", 28); err != nil {
		return fmt.Errorf("failed to size template columns: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	return nil
}
