package normalizer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	spaceRun      = regexp.MustCompile(`\s+`)
	trailingRef   = regexp.MustCompile(`\s+(?:REF|FOLIO|NO\.?|#)?\s*\d{4,}$`)
	trailingShort = regexp.MustCompile(`\s+\d{1,2}/\d{1,2}/?$`)
)

// Bank-statement prefixes that precede the real counterparty name.
var vendorPrefixes = []string{
	"COMPRA ", "COMPRAS ", "PAGO A ", "PAGO ", "CARGO ", "TRF ", "TRANSF ",
	"TRANSFERENCIA ", "SPEI ", "DOMICILIACION ", "VISA ", "MASTERCARD ",
	"PURCHASE ", "PAYMENT ", "POS ",
}

// CleanText converts a cell to a trimmed single-line string.
// Nil cells and whitespace-only cells become "".
func CleanText(raw any) string {
	var s string
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		s = v
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// CleanVendorName strips statement noise (operation prefixes, trailing
// reference numbers and short dates) from a vendor label. Labels written in
// all caps are title cased.
func CleanVendorName(raw any) string {
	result := CleanText(raw)
	if result == "" {
		return ""
	}

	upper := strings.ToUpper(result)
	for _, prefix := range vendorPrefixes {
		if strings.HasPrefix(upper, prefix) && len(result) > len(prefix) {
			result = result[len(prefix):]
			break
		}
	}

	result = trailingRef.ReplaceAllString(result, "")
	result = trailingShort.ReplaceAllString(result, "")
	result = strings.TrimSpace(result)

	if isAllUpper(result) {
		result = titleCase(result)
	}
	return result
}

func isAllUpper(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return letters > 3
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		runes := []rune(strings.ToLower(word))
		if len(runes) > 0 {
			runes[0] = unicode.ToUpper(runes[0])
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
