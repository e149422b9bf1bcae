package resolver

import (
	"strings"

	"github.com/FACorreiaa/smb-ledger/internal/domain/import/normalizer"
	"github.com/FACorreiaa/smb-ledger/internal/domain/import/rows"
)

// ExplicitMapping reads the columns the user mapped onto one of the candidates.
type ExplicitMapping struct{}

func (ExplicitMapping) Name() string { return "explicit" }

func (ExplicitMapping) Attempt(req Request) (Value, bool) {
	if len(req.Mappings) == 0 {
		return Value{}, false
	}
	for _, key := range req.Candidates {
		for _, source := range req.Mappings.SourcesFor(key) {
			raw, ok := req.Row.Get(source)
			if !ok {
				continue
			}
			if v, ok := accept(req, source, raw); ok {
				return v, true
			}
		}
	}
	return Value{}, false
}

// NameSimilarity compares normalized column labels against normalized
// candidates. Columns are visited in row order.
type NameSimilarity struct{}

func (NameSimilarity) Name() string { return "name" }

func (NameSimilarity) Attempt(req Request) (Value, bool) {
	keys := normalizeAll(req.Candidates)
	excluded := normalizeAll(req.Exclude)

	for _, col := range req.Row.Columns {
		if strings.Contains(col, rows.PlaceholderMarker) || req.skipped(col) {
			continue
		}
		label := NormalizeLabel(col)
		if containsAny(label, excluded) {
			continue
		}
		for _, key := range keys {
			if !LabelsMatch(label, key) {
				continue
			}
			if v, ok := accept(req, col, req.Row.Values[col]); ok {
				return v, true
			}
			break
		}
	}
	return Value{}, false
}

func normalizeAll(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if k := NormalizeLabel(l); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func containsAny(label string, keys []string) bool {
	for _, k := range keys {
		if strings.Contains(label, k) {
			return true
		}
	}
	return false
}

// PlaceholderScan reads the first headerless column holding non-numeric text.
// It only applies to text fields.
type PlaceholderScan struct{}

func (PlaceholderScan) Name() string { return "placeholder" }

func (PlaceholderScan) Attempt(req Request) (Value, bool) {
	if req.Kind != Text {
		return Value{}, false
	}
	for _, col := range req.Row.Columns {
		if !strings.Contains(col, rows.PlaceholderMarker) || req.skipped(col) {
			continue
		}
		raw := req.Row.Values[col]
		if _, isString := raw.(string); !isString || normalizer.IsNumeric(raw) {
			continue
		}
		if v, ok := accept(req, col, raw); ok {
			return v, true
		}
	}
	return Value{}, false
}

// MagnitudeHeuristic picks the largest qualifying number in the row. It only
// applies to numeric fields.
type MagnitudeHeuristic struct{}

func (MagnitudeHeuristic) Name() string { return "magnitude" }

func (MagnitudeHeuristic) Attempt(req Request) (Value, bool) {
	if req.Kind != Numeric {
		return Value{}, false
	}
	var (
		best  Value
		found bool
	)
	for _, col := range req.Row.Columns {
		if req.skipped(col) {
			continue
		}
		v, ok := accept(req, col, req.Row.Values[col])
		if !ok {
			continue
		}
		if !found || v.Number.GreaterThan(best.Number) {
			best, found = v, true
		}
	}
	return best, found
}
