// Package normalizer turns loosely formatted spreadsheet cells into typed values:
// amounts, calendar dates, payment methods and cleaned free text.
package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNotNumeric is returned when a cell cannot be read as an amount.
var ErrNotNumeric = errors.New("value is not numeric")

var (
	currencyStripper = strings.NewReplacer(
		"$", "", "€", "", "£", "", "¥", "",
		" ", "", " ", "", "\t", "",
	)
	numericShape = regexp.MustCompile(`^[0-9.,]+$`)
)

// ParseAmount reads a cell as a decimal amount.
//
// Currency symbols ($€£¥) and whitespace are stripped. When both '.' and ','
// appear, whichever comes last is the decimal mark and the other is a
// thousands separator. A lone ',' is the decimal mark unless it is followed by
// exactly three digits (or repeats), in which case it groups thousands.
// Parentheses or a leading '-' make the value negative.
func ParseAmount(raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case nil:
		return decimal.Zero, ErrNotNumeric
	case decimal.Decimal:
		return v, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case json.Number:
		return parseAmountString(v.String())
	case string:
		return parseAmountString(v)
	default:
		return parseAmountString(fmt.Sprint(v))
	}
}

// IsNumeric reports whether ParseAmount accepts the cell.
func IsNumeric(raw any) bool {
	_, err := ParseAmount(raw)
	return err == nil
}

func parseAmountString(s string) (decimal.Decimal, error) {
	s = currencyStripper.Replace(strings.TrimSpace(s))
	if s == "" {
		return decimal.Zero, ErrNotNumeric
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}

	if s == "" || !numericShape.MatchString(s) {
		return decimal.Zero, ErrNotNumeric
	}

	normalized, ok := normalizeSeparators(s)
	if !ok {
		return decimal.Zero, ErrNotNumeric
	}

	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrNotNumeric, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// normalizeSeparators rewrites s so that '.' is the only decimal mark.
// Thousands separators are only accepted between groups of three digits, so
// dotted dates such as 15.03.2025 are rejected.
func normalizeSeparators(s string) (string, bool) {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// 1.234,56
			if !grouped(s[:lastComma], ".") {
				return "", false
			}
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			// 1,234.56
			if !grouped(s[:lastDot], ",") {
				return "", false
			}
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		switch {
		case strings.Count(s, ",") > 1:
			// 1,234,567
			if !grouped(s, ",") {
				return "", false
			}
			s = strings.ReplaceAll(s, ",", "")
		case len(s)-lastComma-1 == 3 && grouped(s, ","):
			// 1,234
			s = strings.ReplaceAll(s, ",", "")
		default:
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0 && strings.Count(s, ".") > 1:
		// 1.234.567
		if !grouped(s, ".") {
			return "", false
		}
		s = strings.ReplaceAll(s, ".", "")
	}

	if strings.Count(s, ".") > 1 {
		return "", false
	}
	return s, true
}

// grouped reports whether s is digit groups joined by sep, with a leading
// group of one to three digits and exactly three digits in every other.
func grouped(s, sep string) bool {
	parts := strings.Split(s, sep)
	if n := len(parts[0]); n == 0 || n > 3 {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 || strings.ContainsAny(p, ".,") {
			return false
		}
	}
	return !strings.ContainsAny(parts[0], ".,")
}
