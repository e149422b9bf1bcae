// Package classifier separates data rows from spreadsheet noise such as titles,
// repeated headers, subtotals and notes.
package classifier

import (
	"regexp"
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/FACorreiaa/smb-ledger/internal/domain/import/normalizer"
	"github.com/FACorreiaa/smb-ledger/internal/domain/import/rows"
)

// Any textual cell containing one of these marks the row as noise.
var containsKeywords = []string{
	"total", "sub-total", "resumen", "encabezado", "summary",
	"saldo inicial", "saldo final", "saldo anterior", "saldo al",
	"opening balance", "closing balance", "balance forward",
	"estado de cuenta", "estado de resultados", "reporte de", "informe de",
	"observaciones", "notas:", "nota:", "notes:",
	"página", "pagina ", "page ", "periodo:", "período:",
	"elaborado por", "generado el", "fecha de corte", "cifras en",
}

// Cells equal to one of these (after trimming a trailing ':') are column titles.
var headerWords = map[string]struct{}{
	"fecha": {}, "concepto": {}, "descripción": {}, "descripcion": {}, "detalle": {},
	"monto": {}, "importe": {}, "cantidad": {}, "precio": {}, "categoría": {}, "categoria": {},
	"proveedor": {}, "cliente": {}, "referencia": {}, "método de pago": {}, "metodo de pago": {},
	"forma de pago": {}, "nombre": {}, "correo": {}, "teléfono": {}, "telefono": {},
	"date": {}, "description": {}, "amount": {}, "category": {}, "vendor": {}, "customer": {},
	"payment method": {}, "reference": {}, "name": {}, "email": {}, "phone": {}, "price": {},
}

var monthHeader = regexp.MustCompile(`^(?:enero|febrero|marzo|abril|mayo|junio|julio|agosto|septiembre|setiembre|octubre|noviembre|diciembre|january|february|march|april|may|june|july|august|september|october|november|december)(?:\s*(?:de\s+|del\s+|-|/)?\s*\d{2,4})?:?$`)

var keywordMatcher = ahocorasick.NewStringMatcher(containsKeywords)

// IsHeaderOrTitleRow reports whether a row should be skipped silently.
//
// A row is noise when a textual cell contains a summary keyword, when a
// textual cell is exactly a month name or a column title, or when every cell
// but one is empty and none is numeric. Anything else, including rows mixing
// text and numbers, is data.
func IsHeaderOrTitleRow(row rows.Row) bool {
	total, empty, numeric := 0, 0, 0

	for _, col := range row.Columns {
		total++
		v := row.Values[col]
		if rows.IsBlank(v) {
			empty++
			continue
		}
		if normalizer.IsNumeric(v) {
			numeric++
			continue
		}

		text, ok := v.(string)
		if !ok {
			continue
		}
		if isNoiseText(text) {
			return true
		}
	}

	if total == 0 {
		return true
	}
	// a lone text cell with nothing blank beside it is still data
	return empty > 0 && empty >= total-1 && numeric == 0
}

func isNoiseText(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if len(keywordMatcher.MatchThreadSafe([]byte(lower))) > 0 {
		return true
	}

	cell := strings.TrimSpace(strings.TrimSuffix(lower, ":"))
	if _, ok := headerWords[cell]; ok {
		return true
	}
	return monthHeader.MatchString(cell)
}
