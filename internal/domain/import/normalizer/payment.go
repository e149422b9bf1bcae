package normalizer

import (
	"strings"
)

// PaymentMethod is the closed set of payment methods a ledger entry can carry.
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "CASH"
	PaymentTransfer PaymentMethod = "TRANSFER"
	PaymentCard     PaymentMethod = "CARD"
	PaymentCheck    PaymentMethod = "CHECK"
	PaymentOther    PaymentMethod = "OTHER"
)

// paymentSynonyms is checked in order; the first synonym contained in the
// input decides the method.
var paymentSynonyms = []struct {
	method   PaymentMethod
	synonyms []string
}{
	{PaymentCash, []string{"efectivo", "cash", "contado", "caja chica", "petty cash"}},
	{PaymentCheck, []string{"cheque", "check", "cheq"}},
	{PaymentCard, []string{
		"tarjeta", "card", "credit", "debit", "crédito", "credito", "débito", "debito",
		"visa", "mastercard", "amex", "american express", "tdc", "tdd", "pos",
	}},
	{PaymentTransfer, []string{
		"transferencia", "transfer", "spei", "wire", "ach", "depósito", "deposito",
		"deposit", "bank", "banco", "domiciliación", "domiciliacion", "sepa",
	}},
}

// CoercePaymentMethod maps a free-text label onto a PaymentMethod.
// Unknown or empty labels map to PaymentOther.
func CoercePaymentMethod(raw any) PaymentMethod {
	text, ok := raw.(string)
	if !ok {
		return PaymentOther
	}
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return PaymentOther
	}

	switch PaymentMethod(strings.ToUpper(text)) {
	case PaymentCash, PaymentTransfer, PaymentCard, PaymentCheck:
		return PaymentMethod(strings.ToUpper(text))
	}

	words := strings.Fields(text)
	for _, entry := range paymentSynonyms {
		for _, syn := range entry.synonyms {
			if strings.Contains(syn, " ") || len(syn) > 4 {
				if strings.Contains(text, syn) {
					return entry.method
				}
				continue
			}
			// short synonyms (pos, ach, tdc) only count as whole words
			for _, w := range words {
				if w == syn {
					return entry.method
				}
			}
		}
	}
	return PaymentOther
}
