package facilityid

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("Format", func(t *testing.T) {
		id, err := gen.Generate("BD", now)
		require.NoError(t, err)

		assert.Len(t, id, 15)
		assert.True(t, strings.HasPrefix(id, "BD2026"))
		for _, r := range id[6:] {
			assert.Contains(t, alphabet, string(r))
		}
	})

	t.Run("LowercaseCountryCodeAccepted", func(t *testing.T) {
		id, err := gen.Generate("bd", now)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(id, "BD"))
	})

	t.Run("InvalidCountryCode", func(t *testing.T) {
		for _, cc := range []string{"", "B", "BGD", "B1", "  "} {
			_, err := gen.Generate(cc, now)
			assert.Error(t, err, "country code %q should be rejected", cc)
		}
	})

	t.Run("Uniqueness", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			id, err := gen.Generate("CN", now)
			require.NoError(t, err)
			assert.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
	})
}

func TestValidate(t *testing.T) {
	gen := NewGenerator()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("RoundTrip", func(t *testing.T) {
		for _, cc := range []string{"BD", "CN", "VN", "TR"} {
			id, err := gen.Generate(cc, now)
			require.NoError(t, err)
			assert.True(t, Validate(id), "generated id %s should validate", id)
		}
	})

	t.Run("LowercaseInput", func(t *testing.T) {
		id, err := gen.Generate("BD", now)
		require.NoError(t, err)
		assert.True(t, Validate(strings.ToLower(id)))
	})

	t.Run("TamperedChecksum", func(t *testing.T) {
		id, err := gen.Generate("BD", now)
		require.NoError(t, err)

		last := id[len(id)-1]
		replacement := byte('2')
		if last == replacement {
			replacement = '3'
		}
		tampered := id[:len(id)-1] + string(replacement)
		assert.False(t, Validate(tampered))
	})

	t.Run("WrongLength", func(t *testing.T) {
		assert.False(t, Validate(""))
		assert.False(t, Validate("BD2026K7P3QW"))
		assert.False(t, Validate("BD2026K7P3QWMAZX"))
	})

	t.Run("NonDigitYear", func(t *testing.T) {
		id, err := gen.Generate("BD", now)
		require.NoError(t, err)
		bad := id[:2] + "2X26" + id[6:]
		assert.False(t, Validate(bad))
	})

	t.Run("ExcludedAlphabetCharacter", func(t *testing.T) {
		id, err := gen.Generate("BD", now)
		require.NoError(t, err)
		bad := id[:6] + "I" + id[7:]
		assert.False(t, Validate(bad))
	})
}
