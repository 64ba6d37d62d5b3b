package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeFacilityName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"LowercasesInput", "ACME Textiles", "acme textiles"},
		{"StripsLtdSuffix", "Acme Textiles Ltd", "acme textiles"},
		{"StripsLtdWithPeriod", "Acme Textiles Ltd.", "acme textiles"},
		{"StripsLLC", "Acme Textiles LLC", "acme textiles"},
		{"StripsGmbH", "Schmidt Werke GmbH", "schmidt werke"},
		{"RemovesPunctuation", "Acme, Textiles & Co", "acme textiles"},
		{"CollapsesWhitespace", "acme   textiles", "acme textiles"},
		{"SuffixInMiddleKept", "Co Op Textiles", "co op textiles"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeFacilityName(tt.input))
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"AbbreviatesStreet", "12 Mill Street", "12 mill st"},
		{"AbbreviatesRoad", "12 Mill Road", "12 mill rd"},
		{"AbbreviatesDistrict", "Savar District", "savar dist"},
		{"CollapsesWhitespace", "  12   mill  st ", "12 mill st"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeAddress(tt.input))
		})
	}
}

func TestNormalizeCountryCode(t *testing.T) {
	assert.Equal(t, "BD", NormalizeCountryCode(" bd "))
	assert.Equal(t, "CN", NormalizeCountryCode("cn"))
}

func TestTokenize(t *testing.T) {
	t.Run("SplitsOnNonAlphanumeric", func(t *testing.T) {
		assert.Equal(t, []string{"12", "mill", "rd", "dhaka"}, Tokenize("12 Mill Rd., Dhaka"))
	})

	t.Run("EmptyInput", func(t *testing.T) {
		assert.Empty(t, Tokenize(""))
		assert.Empty(t, Tokenize("  ,.!  "))
	})
}

func TestTokenSet(t *testing.T) {
	t.Run("SortedAndUnique", func(t *testing.T) {
		assert.Equal(t, []string{"acme", "textiles"}, TokenSet("textiles ACME textiles"))
	})

	t.Run("OrderIndependent", func(t *testing.T) {
		assert.Equal(t, TokenSet("alpha beta gamma"), TokenSet("gamma alpha beta"))
	})
}

func TestRegistry(t *testing.T) {
	t.Run("GetBuiltins", func(t *testing.T) {
		for _, name := range []string{"lowercase", "uppercase", "trim", "nname", "naddress", "ncountry", "alphanumeric"} {
			_, ok := Get(name)
			assert.True(t, ok, "normalizer %q should be registered", name)
		}
	})

	t.Run("ApplyUnknownReturnsInput", func(t *testing.T) {
		assert.Equal(t, "Unchanged", Apply("Unchanged", "does-not-exist"))
	})

	t.Run("ApplyChain", func(t *testing.T) {
		assert.Equal(t, "acmetextiles", ApplyChain("  ACME Textiles Ltd ", "trim", "nname", "remove_whitespace"))
	})

	t.Run("RegisterCustom", func(t *testing.T) {
		Register("reverse_test", func(s string) string {
			runes := []rune(s)
			for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
				runes[i], runes[j] = runes[j], runes[i]
			}
			return string(runes)
		})
		assert.Equal(t, "cba", Apply("abc", "reverse_test"))
	})
}
