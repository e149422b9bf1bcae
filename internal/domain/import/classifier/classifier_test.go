package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FACorreiaa/smb-ledger/internal/domain/import/rows"
)

func row(kv ...any) rows.Row {
	var r rows.Row
	for i := 0; i+1 < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1])
	}
	return r
}

func TestIsHeaderOrTitleRow(t *testing.T) {
	tests := []struct {
		name     string
		row      rows.Row
		expected bool
	}{
		{"total row", row("col1", "TOTAL GASTOS", "col2", "", "col3", ""), true},
		{"subtotal with numbers", row("a", "Subtotal", "b", "1,500.00"), true},
		{"summary title", row("a", "Resumen de gastos 2025"), true},
		{"opening balance", row("a", "Saldo inicial", "b", 100), true},
		{"repeated column titles", row("a", "Fecha", "b", "Concepto", "c", "Monto"), true},
		{"column title with colon", row("a", "Descripción:", "b", nil), true},
		{"month title", row("a", "MARZO 2025", "b", nil, "c", nil), true},
		{"month title spanish form", row("a", "Marzo de 2025"), true},
		{"blank row", row("a", "", "b", nil, "c", "  "), true},
		{"no cells", rows.Row{}, true},
		{"almost blank text row", row("a", "Notas varias", "b", "", "c", nil), true},
		{"expense data", row("descripcion", "Pago renta", "monto", "$1,500.00", "fecha", "2025-03-15"), false},
		{"lone description without amount", row("descripcion", "Gasto sin monto"), false},
		{"description mentioning a month", row("descripcion", "Mayoreo papelería", "monto", "120"), false},
		{"lone number", row("a", "", "b", "50"), false},
		{"text and numbers", row("a", "Luz", "b", "", "c", 320.5), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsHeaderOrTitleRow(tt.row))
		})
	}
}

func TestIsHeaderOrTitleRow_Idempotent(t *testing.T) {
	samples := []rows.Row{
		row("col1", "TOTAL GASTOS", "col2", "", "col3", ""),
		row("descripcion", "Pago renta", "monto", "$1,500.00"),
		row("a", "", "b", nil),
	}
	for _, r := range samples {
		first := IsHeaderOrTitleRow(r)
		assert.Equal(t, first, IsHeaderOrTitleRow(r))
		assert.Equal(t, first, IsHeaderOrTitleRow(r))
	}
}
