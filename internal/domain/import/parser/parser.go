// Package parser turns uploaded CSV/TSV and XLSX files into raw rows keyed by
// column label. Columns without a header get generated placeholder labels.
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/FACorreiaa/smb-ledger/internal/domain/import/rows"
	"github.com/FACorreiaa/smb-ledger/internal/domain/import/sniffer"
)

// Format identifies the file container.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrTooManyRows       = errors.New("file exceeds the row limit")
)

// Options configures parsing. The zero value auto-detects everything.
type Options struct {
	// HeaderRow is the 1-based header line; 0 auto-detects.
	HeaderRow int
	Delimiter rune
	// Sheet selects an Excel worksheet by name.
	Sheet string
	// MaxRows caps data rows; 0 means no limit.
	MaxRows int
}

// Result is a parsed file.
type Result struct {
	Format      Format
	Sheet       string
	Headers     []string // labels as used in Rows, placeholders included
	Fingerprint string
	HeaderRow   int // 1-based
	Rows        []rows.Row
}

// Parse dispatches on the file format.
func Parse(data []byte, filename string, opts Options) (*Result, error) {
	format, err := DetectFormat(filename, data)
	if err != nil {
		return nil, err
	}
	if format == FormatXLSX {
		return ParseExcel(bytes.NewReader(data), opts)
	}
	return ParseCSV(data, opts)
}

// DetectFormat looks at the zip signature first and the extension second.
func DetectFormat(filename string, data []byte) (Format, error) {
	if bytes.HasPrefix(data, []byte("PK\x03\x04")) {
		return FormatXLSX, nil
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv", ".tsv", ".txt", "":
		return FormatCSV, nil
	case ".xls":
		return "", fmt.Errorf("%w: legacy .xls, save the sheet as .xlsx or .csv", ErrUnsupportedFormat)
	}
	if utf8.Valid(data) {
		return FormatCSV, nil
	}
	return "", ErrUnsupportedFormat
}

// ParseCSV reads delimited text.
func ParseCSV(data []byte, opts Options) (*Result, error) {
	data = normalizeCSVBytes(data)

	detect := &sniffer.DetectOptions{HeaderRowIndex: opts.HeaderRow - 1, Delimiter: opts.Delimiter}
	cfg, err := sniffer.DetectConfigWithOptions(data, detect)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file layout: %w", err)
	}

	lines := strings.SplitAfter(string(data), "\n")
	body := strings.Join(lines[cfg.SkipLines+1:], "")

	reader := csv.NewReader(strings.NewReader(body))
	reader.Comma = cfg.Delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read line: %w", err)
		}
		records = append(records, record)
	}

	result, err := build(cfg.Headers, records, opts.MaxRows)
	if err != nil {
		return nil, err
	}
	result.Format = FormatCSV
	result.HeaderRow = cfg.SkipLines + 1
	return result, nil
}

// build labels the header and turns records into rows. Records with no
// content are dropped.
func build(headers []string, records [][]string, maxRows int) (*Result, error) {
	width := len(headers)
	for _, r := range records {
		width = max(width, len(r))
	}
	padded := make([]string, width)
	copy(padded, headers)
	labels := Labels(padded)

	out := make([]rows.Row, 0, len(records))
	for _, record := range records {
		cells := make([]any, len(labels))
		filled := false
		for i := range labels {
			if i >= len(record) {
				continue
			}
			if v := strings.TrimSpace(record[i]); v != "" {
				cells[i] = v
				filled = true
			}
		}
		if !filled {
			continue
		}
		if maxRows > 0 && len(out) >= maxRows {
			return nil, fmt.Errorf("%w (%d)", ErrTooManyRows, maxRows)
		}
		out = append(out, rows.New(labels, cells))
	}

	return &Result{
		Headers:     labels,
		Fingerprint: sniffer.Fingerprint(headers),
		Rows:        out,
	}, nil
}

// Labels trims header cells, names blank ones __EMPTY, __EMPTY_1, ... and
// suffixes repeated names with _1, _2, ...
func Labels(headers []string) []string {
	labels := make([]string, len(headers))
	used := make(map[string]bool, len(headers))
	empties := 0

	for i, h := range headers {
		base := strings.TrimSpace(h)
		if base == "" {
			base = rows.PlaceholderMarker
			if empties > 0 {
				base = fmt.Sprintf("%s_%d", rows.PlaceholderMarker, empties)
			}
			empties++
		}

		label := base
		for n := 1; used[label]; n++ {
			label = fmt.Sprintf("%s_%d", base, n)
		}
		used[label] = true
		labels[i] = label
	}
	return labels
}

func normalizeCSVBytes(data []byte) []byte {
	data = bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF"))
	if utf8.Valid(data) {
		return data
	}
	return decodeLatin1(data)
}

// decodeLatin1 widens every byte to its code point; spreadsheets exported on
// Windows arrive this way.
func decodeLatin1(data []byte) []byte {
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return []byte(string(runes))
}
