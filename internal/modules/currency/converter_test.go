package currency

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monpecule/internal/config"
)

func testConverter() *Converter {
	return NewConverter(config.DefaultMarket(), zerolog.Nop())
}

func TestConvertIdentity(t *testing.T) {
	c := testConverter()

	out, err := c.Convert(123.45, "EUR", "EUR")
	require.NoError(t, err)
	assert.Equal(t, 123.45, out)
}

func TestConvertThroughReference(t *testing.T) {
	c := testConverter()

	// 108 USD -> 100 EUR at 1.08 USD per EUR.
	out, err := c.Convert(108, "USD", "EUR")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, out, 1e-9)

	// Cross rate USD -> GBP goes through the reference.
	out, err = c.Convert(108, "USD", "GBP")
	require.NoError(t, err)
	assert.InDelta(t, 86.0, out, 1e-9)
}

func TestConvertRoundTrip(t *testing.T) {
	c := testConverter()

	once, err := c.Convert(250, "EUR", "CHF")
	require.NoError(t, err)
	back, err := c.Convert(once, "CHF", "EUR")
	require.NoError(t, err)
	assert.InDelta(t, 250.0, back, 1e-9)
}

func TestConvertUnknownCurrency(t *testing.T) {
	c := testConverter()

	_, err := c.Convert(10, "JPY", "EUR")
	assert.Error(t, err)
	_, err = c.Convert(10, "EUR", "JPY")
	assert.Error(t, err)
}

func TestToReference(t *testing.T) {
	c := testConverter()

	out, err := c.ToReference(86, "GBP")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, out, 1e-9)

	assert.Equal(t, "EUR", c.Reference())
	assert.True(t, c.Known("USD"))
	assert.False(t, c.Known("JPY"))
}
