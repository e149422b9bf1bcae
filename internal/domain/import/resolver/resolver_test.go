package resolver

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/smb-ledger/internal/domain/import/rows"
)

var amountKeys = []string{"amount", "monto", "total", "importe", "valor"}

func row(kv ...any) rows.Row {
	var r rows.Row
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

func TestResolve_ExplicitMappingBeatsNameMatch(t *testing.T) {
	r := row("X", "75", "amount", "999")
	v, ok := ResolveNumber(r, rows.Mapping{"X": "Amount"}, amountKeys, false)

	require.True(t, ok)
	assert.Equal(t, "X", v.Column)
	assert.Equal(t, "explicit", v.Strategy)
	assert.True(t, decimal.NewFromInt(75).Equal(v.Number))
}

func TestResolve_ExplicitMappingIgnoresBlankCell(t *testing.T) {
	r := row("X", "  ", "monto", "40")
	v, ok := ResolveNumber(r, rows.Mapping{"X": "amount"}, amountKeys, false)

	require.True(t, ok)
	assert.Equal(t, "monto", v.Column)
	assert.Equal(t, "name", v.Strategy)
}

func TestResolve_ExplicitMappingToUnknownFieldIsIgnored(t *testing.T) {
	r := row("X", "75", "monto", "40")
	v, ok := ResolveNumber(r, rows.Mapping{"X": "notes"}, amountKeys, false)

	require.True(t, ok)
	assert.Equal(t, "monto", v.Column)
}

func TestResolve_NameSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		row      rows.Row
		keys     []string
		expected string
	}{
		{"exact", row("descripcion", "Pago renta"), []string{"descripcion"}, "Pago renta"},
		{"case and punctuation", row("Descripción del gasto:", "Papel"), []string{"descripción"}, "Papel"},
		{"label contains key", row("Nombre del cliente", "ACME"), []string{"nombre"}, "ACME"},
		{"key contains label", row("Prov.", "Office Depot"), []string{"proveedor"}, "Office Depot"},
		{"natural order wins", row("concepto", "first", "descripcion", "second"), []string{"descripcion", "concepto"}, "first"},
		{"skips empty matching column", row("concepto", "", "descripcion", "second"), []string{"descripcion", "concepto"}, "second"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := ResolveText(tt.row, nil, tt.keys)
			require.True(t, ok)
			assert.Equal(t, tt.expected, v.Text)
			assert.Equal(t, "name", v.Strategy)
		})
	}
}

func TestResolve_PlaceholderScanForText(t *testing.T) {
	r := row("__EMPTY", "123", "__EMPTY_1", "Consultoría", "__EMPTY_2", "500")
	v, ok := ResolveText(r, nil, []string{"descripcion"})

	require.True(t, ok)
	assert.Equal(t, "Consultoría", v.Text)
	assert.Equal(t, "placeholder", v.Strategy)
}

func TestResolve_PlaceholderScanSkippedForNumbers(t *testing.T) {
	r := row("__EMPTY", "Consultoría")
	_, ok := ResolveNumber(r, nil, amountKeys, false)
	assert.False(t, ok)
}

func TestResolve_LargestValueHeuristic(t *testing.T) {
	r := row("__EMPTY", "50", "__EMPTY_1", "1200", "nota", "pagado")
	v, ok := ResolveNumber(r, nil, amountKeys, false)

	require.True(t, ok)
	assert.Equal(t, "magnitude", v.Strategy)
	assert.True(t, decimal.NewFromInt(1200).Equal(v.Number))
}

func TestResolve_PositivityConstraint(t *testing.T) {
	r := row("monto", "0")

	_, ok := ResolveNumber(r, nil, amountKeys, false)
	assert.False(t, ok)

	v, ok := ResolveNumber(r, nil, amountKeys, true)
	require.True(t, ok)
	assert.True(t, v.Number.IsZero())
}

func TestResolve_NegativeFallsThroughToOtherColumns(t *testing.T) {
	r := row("monto", "-50", "otro", "20")
	v, ok := ResolveNumber(r, nil, amountKeys, false)

	require.True(t, ok)
	assert.Equal(t, "otro", v.Column)
	assert.Equal(t, "magnitude", v.Strategy)
}

func TestResolve_NotFound(t *testing.T) {
	_, ok := ResolveNumber(row("descripcion", "Gasto sin monto"), nil, amountKeys, true)
	assert.False(t, ok)

	_, ok = ResolveText(row("monto", "100"), nil, []string{"proveedor"})
	assert.False(t, ok)
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "descripción", NormalizeLabel("  DESCRIPCIÓN "))
	assert.Equal(t, "métododepago", NormalizeLabel("Método de Pago"))
	assert.Equal(t, "año2025", NormalizeLabel("AÑO-2025"))
	assert.Equal(t, "empty1", NormalizeLabel("__EMPTY_1"))
}

func TestChain_CustomOrder(t *testing.T) {
	chain := Chain{MagnitudeHeuristic{}, NameSimilarity{}}
	r := row("monto", "10", "otro", "900")
	v, ok := chain.Resolve(Request{Row: r, Candidates: amountKeys, Kind: Numeric})

	require.True(t, ok)
	assert.Equal(t, "otro", v.Column)
}

func TestLabelsMatch(t *testing.T) {
	assert.True(t, LabelsMatch("monto", "monto"))
	assert.True(t, LabelsMatch("montototal", "monto"))
	assert.True(t, LabelsMatch("prov", "proveedor"))
	assert.False(t, LabelsMatch("a", "amount"))
	assert.False(t, LabelsMatch("", "amount"))
	assert.False(t, LabelsMatch("fecha", "monto"))
}

func TestNameSimilarity_Exclude(t *testing.T) {
	row := rows.FromMap([]string{"Subtotal", "IVA", "Total"}, map[string]any{
		"Subtotal": "100", "IVA": "16", "Total": "116",
	})

	v, ok := DefaultChain().Resolve(Request{
		Row: row, Candidates: []string{"total"}, Exclude: []string{"subtotal"}, Kind: Numeric,
	})
	require.True(t, ok)
	assert.Equal(t, "Total", v.Column)
	assert.Equal(t, "name", v.Strategy)

	v, ok = ResolveNumber(row, nil, []string{"total"}, false)
	require.True(t, ok)
	assert.Equal(t, "Subtotal", v.Column)
}

func TestNameSimilarity_SkipsClaimedColumns(t *testing.T) {
	row := rows.FromMap([]string{"Total", "Neto"}, map[string]any{
		"Total": "116", "Neto": "100",
	})

	_, ok := NameSimilarity{}.Attempt(Request{
		Row: row, Candidates: []string{"subtotal"}, Skip: []string{"Total"}, Kind: Numeric,
	})
	assert.False(t, ok)

	v, ok := DefaultChain().Resolve(Request{
		Row: row, Candidates: []string{"subtotal", "neto"}, Skip: []string{"Total"}, Kind: Numeric,
	})
	require.True(t, ok)
	assert.Equal(t, "Neto", v.Column)
}

func TestMagnitudeHeuristic_IgnoresDottedDate(t *testing.T) {
	r := row("concepto", "Pago luz", "fecha", "15.03.2025", "__EMPTY", "850")

	v, ok := ResolveNumber(r, nil, amountKeys, false)
	require.True(t, ok)
	assert.Equal(t, "__EMPTY", v.Column)
	assert.Equal(t, "magnitude", v.Strategy)
	assert.True(t, decimal.NewFromInt(850).Equal(v.Number), v.Number.String())
}

func TestMagnitudeHeuristic_SkipsSerialDateColumn(t *testing.T) {
	r := row("Fecha", float64(45731), "__EMPTY", "850")

	v, ok := DefaultChain().Resolve(Request{
		Row: r, Candidates: amountKeys, Skip: []string{"Fecha"}, Kind: Numeric,
	})
	require.True(t, ok)
	assert.Equal(t, "__EMPTY", v.Column)
	assert.True(t, decimal.NewFromInt(850).Equal(v.Number), v.Number.String())
}
