package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/FACorreiaa/smb-ledger/internal/domain/import/parser"
	"github.com/FACorreiaa/smb-ledger/internal/domain/import/repository"
	"github.com/FACorreiaa/smb-ledger/internal/domain/import/resolver"
	"github.com/FACorreiaa/smb-ledger/internal/domain/import/rows"
	"github.com/FACorreiaa/smb-ledger/internal/domain/import/sniffer"
)

const (
	sampleRows      = 5
	maxHintDistance = 2
)

// AnalyzeRequest carries either a file or the headers of one.
type AnalyzeRequest struct {
	Type      EntityType
	CompanyID uuid.UUID
	UserID    uuid.UUID
	FileName  string
	Data      []byte
	Headers   []string
	Options   parser.Options
}

// FieldHint proposes a field for a header that matched nothing by name.
type FieldHint struct {
	Header   string
	Field    string
	Distance int
}

// Analysis describes how a sheet would be imported.
type Analysis struct {
	Format      parser.Format
	HeaderRow   int
	Headers     []string
	Fingerprint string
	RowCount    int
	SampleRows  []rows.Row
	// Suggestions maps a canonical field to the column it would be read from.
	Suggestions map[string]string
	Hints       []FieldHint
	// SavedMapping is set when the company saved a mapping for these headers.
	SavedMapping *repository.MappingTemplate
}

// Analyze previews an import: detected layout, suggested columns per field
// and the saved mapping for the header fingerprint, if any.
func (s *ImportService) Analyze(ctx context.Context, req AnalyzeRequest) (*Analysis, error) {
	if err := s.validate(req.Type, req.CompanyID); err != nil {
		return nil, err
	}

	a := &Analysis{Headers: req.Headers}
	if len(req.Data) > 0 {
		parsed, err := s.parse(req.Data, req.FileName, req.Options)
		if err != nil {
			return nil, err
		}
		a.Format = parsed.Format
		a.HeaderRow = parsed.HeaderRow
		a.Headers = parsed.Headers
		a.RowCount = len(parsed.Rows)
		a.SampleRows = parsed.Rows[:min(sampleRows, len(parsed.Rows))]
	}
	if len(a.Headers) == 0 {
		return nil, ErrNoHeaders
	}
	a.Fingerprint = sniffer.Fingerprint(a.Headers)

	company, err := s.company(ctx, req.CompanyID, req.UserID)
	if err != nil {
		return nil, err
	}

	a.Suggestions = SuggestColumns(req.Type, a.Headers)
	a.Hints = fieldHints(req.Type, a.Headers, a.Suggestions)

	tpl, err := s.repo.GetMapping(ctx, company.ID, string(req.Type), a.Fingerprint)
	switch {
	case err == nil:
		a.SavedMapping = tpl
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to lookup mapping: %w", err)
	}
	return a, nil
}

// SuggestColumns runs name matching for every field of the entity type
// against the headers alone.
func SuggestColumns(t EntityType, headers []string) map[string]string {
	probe := rows.Row{Columns: headers, Values: make(map[string]any, len(headers))}
	for _, h := range headers {
		probe.Values[h] = h
	}

	out := make(map[string]string)
	for _, f := range entityFields[t] {
		v, ok := resolver.NameSimilarity{}.Attempt(f.request(probe, nil, resolver.Text, false))
		if ok {
			out[f.name] = v.Column
		}
	}
	return out
}

// fieldHints ranks the still unmatched fields against the headers nothing
// claimed, using subsequence matching first and edit distance second.
func fieldHints(t EntityType, headers []string, suggested map[string]string) []FieldHint {
	used := make(map[string]bool, len(suggested))
	for _, col := range suggested {
		used[col] = true
	}

	var targets []string
	fieldOf := make(map[string]string)
	for _, f := range entityFields[t] {
		if _, done := suggested[f.name]; done {
			continue
		}
		for _, key := range append([]string{f.name}, f.keys...) {
			k := resolver.NormalizeLabel(key)
			if _, seen := fieldOf[k]; seen || k == "" {
				continue
			}
			fieldOf[k] = f.name
			targets = append(targets, k)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	var hints []FieldHint
	for _, h := range headers {
		if used[h] || strings.Contains(h, rows.PlaceholderMarker) {
			continue
		}
		label := resolver.NormalizeLabel(h)
		if len(label) < 2 {
			continue
		}

		ranks := fuzzy.RankFindNormalizedFold(label, targets)
		if len(ranks) > 0 {
			sort.Stable(ranks)
			hints = append(hints, FieldHint{Header: h, Field: fieldOf[ranks[0].Target], Distance: ranks[0].Distance})
			continue
		}

		best, bestDist := "", maxHintDistance+1
		for _, target := range targets {
			if d := fuzzy.LevenshteinDistance(label, target); d < bestDist {
				best, bestDist = target, d
			}
		}
		if best != "" {
			hints = append(hints, FieldHint{Header: h, Field: fieldOf[best], Distance: bestDist})
		}
	}
	return hints
}
