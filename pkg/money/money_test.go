package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cents    int64
		currency string
		want     string
	}{
		{"positive cents", 1234, USD, "USD"},
		{"lower-case code", 1000, "mxn", "MXN"},
		{"unknown code falls back", 1000, "XXZ", "USD"},
		{"yen (no decimals)", 10000, JPY, "JPY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.cents, tt.currency)
			assert.Equal(t, tt.cents, m.Amount())
			assert.Equal(t, tt.want, m.Currency())
		})
	}
}

func TestNewFromDecimal(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		currency string
		want     int64
	}{
		{"two decimals", "1500.00", MXN, 150000},
		{"rounds half up", "12.345", USD, 1235},
		{"negative", "-50.99", USD, -5099},
		{"yen", "1234", JPY, 1234},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewFromDecimal(decimal.RequireFromString(tt.amount), tt.currency)
			assert.Equal(t, tt.want, m.Amount())
		})
	}
}

func TestSum(t *testing.T) {
	total := Sum(MXN,
		decimal.RequireFromString("1500.00"),
		decimal.RequireFromString("320.50"),
		decimal.RequireFromString("0.25"),
	)
	assert.Equal(t, int64(182075), total.Amount())
	assert.Equal(t, "$1,820.75", total.Display())

	assert.True(t, Sum(USD).IsZero())
}

func TestAdd(t *testing.T) {
	a := New(1000, USD)
	b := New(250, USD)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), sum.Amount())

	_, err = a.Add(New(100, EUR))
	assert.Error(t, err)

	var nilMoney *Money
	sum, err = nilMoney.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(250), sum.Amount())
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "$1,234.56", New(123456, USD).Display())
	assert.Equal(t, "€10.00", New(1000, EUR).Display())
	assert.Equal(t, "-$5.00", New(-500, MXN).Display())

	var nilMoney *Money
	assert.Equal(t, "$0.00", nilMoney.Display())
}

func TestStringAndDecimal(t *testing.T) {
	m := New(150000, MXN)
	assert.Equal(t, "1500.00", m.String())
	assert.True(t, decimal.RequireFromString("1500").Equal(m.ToDecimal()))
	assert.Equal(t, "0", New(0, JPY).String())
}

func TestFormat(t *testing.T) {
	v := decimal.RequireFromString("1234567.8")
	assert.Equal(t, "1234567.80", Format(v, StylePlain))
	assert.Equal(t, "$1,234,567.80", Format(v, StyleUS))
	assert.Equal(t, "1.234.567,80", Format(v, StyleEuropean))
	assert.Equal(t, "€ 1.234.567,80", Format(v, StyleEuro))
	assert.Equal(t, "$999.00", Format(decimal.NewFromInt(999), StyleUS))
}

func TestTestDataGenerator(t *testing.T) {
	gen := NewTestDataGeneratorWithSeed(42)
	for i := 0; i < 50; i++ {
		a := gen.FormattedAmount()
		assert.True(t, a.Value.IsPositive(), a.Text)
		assert.NotEmpty(t, a.Text)
	}

	again := NewTestDataGeneratorWithSeed(42)
	assert.Equal(t, NewTestDataGeneratorWithSeed(42).FormattedAmount(), again.FormattedAmount())
}
