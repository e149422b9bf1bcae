package money

import (
	"strings"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// Style is a spreadsheet number format.
type Style string

const (
	StylePlain    Style = "plain"    // 1234.56
	StyleUS       Style = "us"       // $1,234.56
	StyleEuropean Style = "european" // 1.234,56
	StyleEuro     Style = "euro"     // € 1.234,56
)

var styles = []string{string(StylePlain), string(StyleUS), string(StyleEuropean), string(StyleEuro)}

// TestDataGenerator generates amounts the way spreadsheets export them, using
// gofakeit.
type TestDataGenerator struct {
	faker *gofakeit.Faker
}

// NewTestDataGenerator creates a new test data generator with a random seed.
func NewTestDataGenerator() *TestDataGenerator {
	return &TestDataGenerator{faker: gofakeit.New(0)}
}

// NewTestDataGeneratorWithSeed creates a generator with a specific seed for reproducibility.
func NewTestDataGeneratorWithSeed(seed int64) *TestDataGenerator {
	return &TestDataGenerator{faker: gofakeit.New(seed)}
}

// FormattedAmount is an amount together with its spreadsheet text.
type FormattedAmount struct {
	Text  string
	Value decimal.Decimal
	Style Style
}

// RandomAmount returns a positive amount with two decimals between the cent bounds.
func (g *TestDataGenerator) RandomAmount(minCents, maxCents int) decimal.Decimal {
	if minCents > maxCents {
		minCents, maxCents = maxCents, minCents
	}
	return decimal.New(int64(g.faker.Number(minCents, maxCents)), -2)
}

// FormattedAmount picks a random amount and a random style.
func (g *TestDataGenerator) FormattedAmount() FormattedAmount {
	value := g.RandomAmount(1, 500_000_000)
	style := Style(g.faker.RandomString(styles))
	return FormattedAmount{Text: Format(value, style), Value: value, Style: style}
}

// Format renders a non-negative amount with two decimals in the given style.
func Format(value decimal.Decimal, style Style) string {
	fixed := value.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	switch style {
	case StyleUS:
		return "$" + group(whole, ",") + "." + frac
	case StyleEuropean:
		return group(whole, ".") + "," + frac
	case StyleEuro:
		return "€ " + group(whole, ".") + "," + frac
	default:
		return fixed
	}
}

func group(digits, sep string) string {
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteString(sep)
		}
		b.WriteRune(r)
	}
	return b.String()
}
