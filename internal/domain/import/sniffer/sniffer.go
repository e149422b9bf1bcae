// Package sniffer provides automatic detection of CSV/TSV file layouts.
// It identifies delimiters and header rows, and fingerprints header sets so
// saved column mappings can be recognised on the next upload.
package sniffer

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"unicode"
)

// Header keywords for ledger spreadsheets (Spanish and English)
var headerKeywords = []string{
	// Spanish
	"fecha", "concepto", "descripción", "descripcion", "monto", "importe", "total", "cliente",
	"proveedor", "nombre", "correo", "teléfono", "telefono", "rfc", "dirección", "direccion",
	"categoría", "categoria", "precio", "costo", "existencia", "cantidad", "referencia", "factura",
	"método", "metodo", "forma de pago",
	// English
	"date", "description", "amount", "customer", "vendor", "supplier", "name", "email", "phone",
	"address", "category", "price", "cost", "stock", "quantity", "sku", "reference", "invoice",
	"payment",
}

// FileConfig holds the detected configuration for a CSV/TSV file
type FileConfig struct {
	Delimiter   rune       // The field delimiter (';', ',', '\t', '|')
	SkipLines   int        // Number of title lines before headers
	Headers     []string   // Detected header names
	Fingerprint string     // SHA256 hash of normalized headers
	SampleRows  [][]string // First few data rows for preview
}

// DetectOptions allows callers to override header row or delimiter detection.
type DetectOptions struct {
	// HeaderRowIndex is a 0-based index for the header row. Set to -1 to auto-detect.
	HeaderRowIndex int
	// Delimiter overrides the detected delimiter when non-zero.
	Delimiter rune
}

var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrNoHeadersFound   = errors.New("could not find data headers")
	ErrInvalidDelimiter = errors.New("could not detect valid delimiter")
)

const (
	maxHeaderSearch = 20
	sampleSize      = 5
)

// DetectConfig analyzes a CSV/TSV file and returns its configuration
func DetectConfig(data []byte) (*FileConfig, error) {
	return DetectConfigWithOptions(data, nil)
}

// DetectConfigWithOptions analyzes a CSV/TSV file with optional overrides.
func DetectConfigWithOptions(data []byte, opts *DetectOptions) (*FileConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}
	lines := strings.Split(string(data), "\n")

	var (
		delimiter rune
		skipLines int
		err       error
	)
	if opts != nil && opts.HeaderRowIndex >= 0 {
		if opts.HeaderRowIndex >= len(lines) {
			return nil, ErrNoHeadersFound
		}
		skipLines = opts.HeaderRowIndex
		if opts.Delimiter != 0 {
			delimiter = opts.Delimiter
		} else {
			delimiter, _ = detectDelimiter(cleanLine(lines[skipLines], skipLines == 0))
			if delimiter == 0 {
				return nil, ErrInvalidDelimiter
			}
		}
	} else {
		delimiter, skipLines, err = findHeaderRow(lines)
		if err != nil {
			return nil, err
		}
		if opts != nil && opts.Delimiter != 0 {
			delimiter = opts.Delimiter
		}
	}

	reader := csv.NewReader(strings.NewReader(cleanLine(lines[skipLines], skipLines == 0)))
	reader.Comma = delimiter
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		return nil, err
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	return &FileConfig{
		Delimiter:   delimiter,
		SkipLines:   skipLines,
		Headers:     headers,
		Fingerprint: Fingerprint(headers),
		SampleRows:  getSampleRows(data, delimiter, skipLines+1, sampleSize),
	}, nil
}

// HeaderIndex picks the header row of an already tabulated sheet, such as an
// Excel worksheet. Rows carrying header keywords win; otherwise the widest of
// the first rows is used. It returns -1 when every row is empty.
func HeaderIndex(records [][]string) int {
	keywordIndex, keywordScore := -1, 0
	fallbackIndex, fallbackCount := -1, 0

	for i, record := range records {
		if i > maxHeaderSearch {
			break
		}
		filled := 0
		var line strings.Builder
		for _, cell := range record {
			if strings.TrimSpace(cell) != "" {
				filled++
				line.WriteString(strings.ToLower(cell))
				line.WriteByte('|')
			}
		}
		if filled == 0 {
			continue
		}

		if matches := countKeywords(line.String()); matches > 0 {
			score := filled*10 + matches
			if score > keywordScore {
				keywordIndex, keywordScore = i, score
			}
		} else if filled > fallbackCount {
			fallbackIndex, fallbackCount = i, filled
		}
	}

	if keywordIndex >= 0 && keywordScore >= 20 {
		return keywordIndex
	}
	if fallbackIndex >= 0 {
		return fallbackIndex
	}
	return keywordIndex
}

// findHeaderRow locates the header row and its delimiter
func findHeaderRow(lines []string) (rune, int, error) {
	fallbackIndex := -1
	fallbackDelimiter := rune(0)
	fallbackCount := 0

	keywordIndex := -1
	keywordDelimiter := rune(0)
	keywordCount := 0
	keywordScore := 0
	firstLine := -1

	for i, line := range lines {
		if i > maxHeaderSearch {
			break
		}
		line = cleanLine(line, i == 0)
		if line == "" {
			continue
		}
		if firstLine < 0 {
			firstLine = i
		}

		delimiter, count := detectDelimiter(line)
		if count < 1 {
			continue
		}

		// Title lines have few columns, real headers have many.
		if matches := countKeywords(strings.ToLower(line)); matches > 0 {
			score := count*10 + matches
			if keywordIndex == -1 || score > keywordScore {
				keywordIndex, keywordDelimiter = i, delimiter
				keywordCount, keywordScore = count, score
			}
		} else if count > fallbackCount {
			fallbackIndex, fallbackDelimiter, fallbackCount = i, delimiter, count
		}
	}

	if keywordIndex >= 0 && keywordCount >= 1 {
		return keywordDelimiter, keywordIndex, nil
	}
	if fallbackIndex >= 0 {
		return fallbackDelimiter, fallbackIndex, nil
	}
	// Single column files carry no delimiter at all.
	if firstLine >= 0 {
		return ',', firstLine, nil
	}
	return 0, 0, ErrNoHeadersFound
}

func countKeywords(lower string) int {
	matches := 0
	for _, kw := range headerKeywords {
		if strings.Contains(lower, kw) {
			matches++
		}
	}
	return matches
}

func cleanLine(line string, firstLine bool) string {
	line = strings.TrimRight(line, "\r")
	if firstLine {
		line = strings.TrimPrefix(line, "\uFEFF")
	}
	return strings.TrimSpace(line)
}

func detectDelimiter(line string) (rune, int) {
	delimiters := []rune{';', '\t', ',', '|'}
	bestDelimiter := rune(0)
	bestCount := 0
	for _, d := range delimiters {
		if count := strings.Count(line, string(d)); count > bestCount {
			bestCount = count
			bestDelimiter = d
		}
	}
	return bestDelimiter, bestCount
}

// Fingerprint hashes normalized header names. Order matters; case,
// punctuation and blank headers do not.
func Fingerprint(headers []string) string {
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, h)
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}

	hash := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(hash[:])
}

// getSampleRows returns the first N data rows after the header
func getSampleRows(data []byte, delimiter rune, startLine, maxRows int) [][]string {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var rows [][]string
	lineNum := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if lineNum >= startLine {
			rows = append(rows, record)
			if len(rows) >= maxRows {
				break
			}
		}
		lineNum++
	}
	return rows
}
