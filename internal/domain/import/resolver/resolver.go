// Package resolver locates the cell that holds a canonical field inside a raw
// row. Resolution walks an ordered chain of strategies and the first strategy
// that produces a value wins.
package resolver

import (
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/FACorreiaa/smb-ledger/internal/domain/import/normalizer"
	"github.com/FACorreiaa/smb-ledger/internal/domain/import/rows"
)

// Kind distinguishes text fields from numeric fields.
type Kind int

const (
	Text Kind = iota
	Numeric
)

// Request describes one field lookup.
type Request struct {
	Row        rows.Row
	Mappings   rows.Mapping
	Candidates []string // synonyms in priority order
	Exclude    []string // labels never matched by name, e.g. "subtotal" for "total"
	Skip       []string // columns already claimed by another field
	Kind       Kind
	AllowZero  bool
}

func (r Request) skipped(column string) bool {
	for _, s := range r.Skip {
		if s == column {
			return true
		}
	}
	return false
}

// Value is a resolved cell.
type Value struct {
	Column   string
	Raw      any
	Text     string
	Number   decimal.Decimal
	Strategy string
}

// Strategy is one link of the resolution chain.
type Strategy interface {
	Name() string
	Attempt(req Request) (Value, bool)
}

// Chain tries strategies in order.
type Chain []Strategy

// DefaultChain is explicit mapping, then name similarity, then placeholder
// scan, then the numeric magnitude heuristic.
func DefaultChain() Chain {
	return Chain{ExplicitMapping{}, NameSimilarity{}, PlaceholderScan{}, MagnitudeHeuristic{}}
}

// Resolve returns the first value produced by the chain. The boolean is false
// when the field was not found; callers must not read that as zero.
func (c Chain) Resolve(req Request) (Value, bool) {
	for _, s := range c {
		if v, ok := s.Attempt(req); ok {
			v.Strategy = s.Name()
			return v, true
		}
	}
	return Value{}, false
}

// ResolveText resolves a string field with the default chain.
func ResolveText(row rows.Row, mappings rows.Mapping, candidates []string) (Value, bool) {
	return DefaultChain().Resolve(Request{Row: row, Mappings: mappings, Candidates: candidates, Kind: Text})
}

// ResolveNumber resolves a numeric field with the default chain.
func ResolveNumber(row rows.Row, mappings rows.Mapping, candidates []string, allowZero bool) (Value, bool) {
	return DefaultChain().Resolve(Request{
		Row: row, Mappings: mappings, Candidates: candidates, Kind: Numeric, AllowZero: allowZero,
	})
}

// accept turns a raw cell into a Value when it satisfies the request.
func accept(req Request, column string, raw any) (Value, bool) {
	if rows.IsBlank(raw) {
		return Value{}, false
	}
	v := Value{Column: column, Raw: raw, Text: normalizer.CleanText(raw)}
	if req.Kind == Text {
		return v, v.Text != ""
	}

	n, err := normalizer.ParseAmount(raw)
	if err != nil || !positive(n, req.AllowZero) {
		return Value{}, false
	}
	v.Number = n
	return v, true
}

func positive(n decimal.Decimal, allowZero bool) bool {
	if allowZero {
		return n.Sign() >= 0
	}
	return n.Sign() > 0
}

var folder = cases.Fold()

// NormalizeLabel lower-cases a label and drops everything except ASCII
// letters, digits, accented vowels and ñ.
func NormalizeLabel(s string) string {
	folded := folder.String(s)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case strings.ContainsRune("áéíóúüñ", r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Containment needs at least this many runes on the shorter side so that
// one-letter labels do not match every key.
const minContainedLen = 3

// LabelsMatch reports whether two normalized labels are equal or one contains
// the other.
func LabelsMatch(label, key string) bool {
	if label == "" || key == "" {
		return false
	}
	if label == key {
		return true
	}
	short, long := label, key
	if utf8.RuneCountInString(short) > utf8.RuneCountInString(long) {
		short, long = long, short
	}
	return utf8.RuneCountInString(short) >= minContainedLen && strings.Contains(long, short)
}
