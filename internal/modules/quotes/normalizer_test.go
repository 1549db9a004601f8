package quotes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testNormalizer() *Normalizer {
	return NewNormalizer(
		map[string]string{
			"FR0000131104": "BNP.PA",
			"BNP":          "BNP.PA",
			"TOTAL":        "TTE.PA",
		},
		map[string]string{
			"amundi msci world": "CW8.PA",
			"bnp paribas":       "BNP.PA",
			"msci world":        "EWLD.PA",
		},
	)
}

func TestNormalizeExactOverride(t *testing.T) {
	n := testNormalizer()

	assert.Equal(t, "BNP.PA", n.Normalize("FR0000131104"))
	assert.Equal(t, "BNP.PA", n.Normalize("fr0000131104"), "override keys match case-insensitively")
	assert.Equal(t, "BNP.PA", n.Normalize("  BNP  "))
}

func TestNormalizeTokenMatch(t *testing.T) {
	n := testNormalizer()

	// No exact match for the whole string, but one token hits the table.
	assert.Equal(t, "TTE.PA", n.Normalize("TOTAL SE"))
	assert.Equal(t, "TTE.PA", n.Normalize("actions total (vente)"))
}

func TestNormalizeFragmentMatch(t *testing.T) {
	n := testNormalizer()

	assert.Equal(t, "CW8.PA", n.Normalize("Amundi MSCI World UCITS ETF"))
	assert.Equal(t, "BNP.PA", n.Normalize("BNP Paribas SA ordinary shares"))
}

func TestNormalizeLongestFragmentWins(t *testing.T) {
	n := testNormalizer()

	// "amundi msci world" is longer than "msci world" and must win even
	// though both are substrings.
	assert.Equal(t, "CW8.PA", n.Normalize("amundi msci world dist"))
	assert.Equal(t, "EWLD.PA", n.Normalize("lyxor msci world acc"))
}

func TestNormalizePassthrough(t *testing.T) {
	n := testNormalizer()

	assert.Equal(t, "AAPL", n.Normalize("AAPL"))
	assert.Equal(t, "Unknown Holding", n.Normalize("  Unknown Holding "))
	assert.Equal(t, "", n.Normalize("   "))
}
