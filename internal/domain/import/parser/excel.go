package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/smb-ledger/internal/domain/import/sniffer"
)

// ParseExcel reads the first worksheet holding data, or opts.Sheet when set.
// Cells are read raw so dates arrive as serial numbers instead of
// locale-formatted text.
func ParseExcel(reader io.Reader, opts Options) (*Result, error) {
	f, err := excelize.OpenReader(reader, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet, records, err := pickSheet(f, opts.Sheet)
	if err != nil {
		return nil, err
	}

	headerIdx := opts.HeaderRow - 1
	if headerIdx < 0 {
		headerIdx = sniffer.HeaderIndex(records)
	}
	if headerIdx < 0 || headerIdx >= len(records) {
		return nil, fmt.Errorf("sheet %s: %w", sheet, sniffer.ErrNoHeadersFound)
	}

	headers := make([]string, len(records[headerIdx]))
	for i, h := range records[headerIdx] {
		headers[i] = strings.TrimSpace(h)
	}

	result, err := build(headers, records[headerIdx+1:], opts.MaxRows)
	if err != nil {
		return nil, err
	}
	result.Format = FormatXLSX
	result.Sheet = sheet
	result.HeaderRow = headerIdx + 1
	return result, nil
}

// pickSheet returns the named sheet, or the first one with any rows.
func pickSheet(f *excelize.File, name string) (string, [][]string, error) {
	if name != "" {
		records, err := f.GetRows(name)
		if err != nil {
			return "", nil, fmt.Errorf("failed to read sheet %s: %w", name, err)
		}
		return name, records, nil
	}

	for _, sheet := range f.GetSheetList() {
		records, err := f.GetRows(sheet)
		if err != nil {
			return "", nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		if len(records) > 0 {
			return sheet, records, nil
		}
	}
	return "", nil, fmt.Errorf("no sheet with data: %w", sniffer.ErrEmptyFile)
}
