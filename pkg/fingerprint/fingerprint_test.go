package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/juniper/pkg/models"
)

func ptr[T any](v T) *T {
	return &v
}

func TestGenerate(t *testing.T) {
	t.Run("Deterministic", func(t *testing.T) {
		data := map[string]any{"name": "Acme", "country_code": "BD"}
		assert.Equal(t, Generate(data), Generate(data))
	})

	t.Run("KeyOrderIndependent", func(t *testing.T) {
		a := Generate(map[string]any{"name": "Acme", "address": "12 Mill Rd", "country_code": "BD"})
		b := Generate(map[string]any{"country_code": "BD", "name": "Acme", "address": "12 Mill Rd"})
		assert.Equal(t, a, b)
	})

	t.Run("ValueSensitive", func(t *testing.T) {
		a := Generate(map[string]any{"name": "Acme"})
		b := Generate(map[string]any{"name": "Acme Textiles"})
		assert.NotEqual(t, a, b)
	})

	t.Run("NestedStructures", func(t *testing.T) {
		a := Generate(map[string]any{"tags": []any{"x", "y"}, "meta": map[string]any{"a": 1, "b": 2}})
		b := Generate(map[string]any{"meta": map[string]any{"b": 2, "a": 1}, "tags": []any{"x", "y"}})
		assert.Equal(t, a, b)
	})

	t.Run("ArrayOrderMatters", func(t *testing.T) {
		a := Generate(map[string]any{"tags": []any{"x", "y"}})
		b := Generate(map[string]any{"tags": []any{"y", "x"}})
		assert.NotEqual(t, a, b)
	})
}

func TestForListItem(t *testing.T) {
	base := func() *models.ListItem {
		return &models.ListItem{
			SourceID:    "source-1",
			RowIndex:    1,
			Name:        "Acme Textiles",
			Address:     "12 Mill Rd, Dhaka",
			CountryCode: "BD",
			Lat:         ptr(23.8103),
			Lng:         ptr(90.4125),
		}
	}

	t.Run("StableForIdenticalContent", func(t *testing.T) {
		assert.Equal(t, ForListItem(base()), ForListItem(base()))
	})

	t.Run("ChangesWithName", func(t *testing.T) {
		changed := base()
		changed.Name = "Acme Textiles Ltd"
		assert.NotEqual(t, ForListItem(base()), ForListItem(changed))
	})

	t.Run("ChangesWithCoordinates", func(t *testing.T) {
		changed := base()
		changed.Lat = ptr(22.3569)
		assert.NotEqual(t, ForListItem(base()), ForListItem(changed))
	})

	t.Run("IgnoresGeocodedLocationType", func(t *testing.T) {
		changed := base()
		changed.GeocodedLocationType = ptr("ROOFTOP")
		assert.Equal(t, ForListItem(base()), ForListItem(changed))
	})

	t.Run("IgnoresRowPosition", func(t *testing.T) {
		changed := base()
		changed.RowIndex = 99
		changed.SourceID = "source-2"
		assert.Equal(t, ForListItem(base()), ForListItem(changed))
	})
}
