package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceConfidence(t *testing.T) {
	s := NewScorer()

	tests := []struct {
		name     string
		km       float64
		expected float64
	}{
		{"SameCoordinates", 0.0, 1.0},
		{"WithinFiveMeters", 0.005, 1.0},
		{"JustOverFiveMeters", 0.006, 0.9},
		{"WithinHundredMeters", 0.1, 0.9},
		{"ShortWalk", 0.152, 0.7},
		{"SameNeighborhood", 1.0, 0.6},
		{"SameCity", 5.0, 0.5},
		{"SameMetroArea", 30.0, 0.4},
		{"SameRegion", 100.0, 0.3},
		{"Distant", 200.0, 0.2},
		{"VeryDistant", 500.0, 0.1},
		{"DifferentCountry", 501.0, 0.0},
		{"NegativeClampsToNearest", -1.0, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.DistanceConfidence(tt.km))
		})
	}

	t.Run("MonotonicallyDecreasing", func(t *testing.T) {
		distances := []float64{0, 0.01, 0.12, 0.5, 3, 20, 80, 150, 400, 1000}
		prev := 2.0
		for _, km := range distances {
			c := s.DistanceConfidence(km)
			assert.LessOrEqual(t, c, prev, "confidence must not increase with distance (%f km)", km)
			prev = c
		}
	})
}

func TestNameSimilarity(t *testing.T) {
	s := NewScorer()

	t.Run("IdenticalNames", func(t *testing.T) {
		assert.Equal(t, 1.0, s.NameSimilarity("acme textiles", "acme textiles"))
	})

	t.Run("WordOrderInsensitive", func(t *testing.T) {
		assert.Equal(t, 1.0, s.NameSimilarity("textiles acme", "acme textiles"))
	})

	t.Run("ExtraTokensScoreHigh", func(t *testing.T) {
		score := s.NameSimilarity("acme textiles", "acme textiles factory unit 2")
		assert.Greater(t, score, 0.6)
		assert.Less(t, score, 1.0)
	})

	t.Run("UnrelatedNamesScoreLow", func(t *testing.T) {
		score := s.NameSimilarity("acme textiles", "zenith microchips")
		assert.Less(t, score, 0.5)
	})

	t.Run("EmptyEitherSideScoresZero", func(t *testing.T) {
		assert.Equal(t, 0.0, s.NameSimilarity("", "acme textiles"))
		assert.Equal(t, 0.0, s.NameSimilarity("acme textiles", ""))
		assert.Equal(t, 0.0, s.NameSimilarity("   ", "acme textiles"))
	})

	t.Run("Symmetric", func(t *testing.T) {
		a, b := "jiangsu garment works", "garment works of jiangsu province"
		assert.InDelta(t, s.NameSimilarity(a, b), s.NameSimilarity(b, a), 1e-9)
	})

	t.Run("BoundedZeroToOne", func(t *testing.T) {
		pairs := [][2]string{
			{"a", "completely different string with many tokens"},
			{"x y z", "z y x"},
			{"one", "two"},
		}
		for _, p := range pairs {
			score := s.NameSimilarity(p[0], p[1])
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		}
	})
}

func TestTokenSetRatio(t *testing.T) {
	s := NewScorer()

	t.Run("SubsetScoresPerfect", func(t *testing.T) {
		// Shared tokens vs shared-plus-extra compares base against itself
		assert.Equal(t, 1.0, s.TokenSetRatio("acme textiles", "acme textiles ltd co"))
	})

	t.Run("NoSharedTokens", func(t *testing.T) {
		score := s.TokenSetRatio("alpha beta", "gamma delta")
		assert.Less(t, score, 0.6)
	})

	t.Run("EmptyScoresZero", func(t *testing.T) {
		assert.Equal(t, 0.0, s.TokenSetRatio("", "acme"))
	})
}

func TestTokenSortRatio(t *testing.T) {
	s := NewScorer()

	t.Run("ReorderedTokensScorePerfect", func(t *testing.T) {
		assert.Equal(t, 1.0, s.TokenSortRatio("beta alpha", "alpha beta"))
	})

	t.Run("CaseAndPunctuationInsensitive", func(t *testing.T) {
		assert.Equal(t, 1.0, s.TokenSortRatio("Acme, Textiles!", "acme textiles"))
	})
}

func TestLocationTypeMatch(t *testing.T) {
	s := NewScorer()

	assert.Equal(t, 1.0, s.LocationTypeMatch("ROOFTOP", "ROOFTOP"))
	assert.Equal(t, 0.0, s.LocationTypeMatch("ROOFTOP", "APPROXIMATE"))
	assert.Equal(t, 0.0, s.LocationTypeMatch("", ""))
	assert.Equal(t, 0.0, s.LocationTypeMatch("", "ROOFTOP"))
}

func TestSearchRelevance(t *testing.T) {
	s := NewScorer()

	t.Run("NonPositiveScoresZero", func(t *testing.T) {
		assert.Equal(t, 0.0, s.SearchRelevance(0))
		assert.Equal(t, 0.0, s.SearchRelevance(-10))
	})

	t.Run("ReferenceTopScoreHitsOne", func(t *testing.T) {
		assert.InDelta(t, 1.0, s.SearchRelevance(100), 1e-9)
	})

	t.Run("AboveReferenceCapsAtOne", func(t *testing.T) {
		assert.Equal(t, 1.0, s.SearchRelevance(250))
	})

	t.Run("LogCompression", func(t *testing.T) {
		// Half the raw score loses far less than half the confidence
		half := s.SearchRelevance(50)
		assert.Greater(t, half, 0.8)
		assert.Less(t, half, 1.0)
	})

	t.Run("MonotonicallyIncreasing", func(t *testing.T) {
		prev := -1.0
		for _, raw := range []float64{1, 5, 10, 25, 50, 75, 100} {
			c := s.SearchRelevance(raw)
			assert.Greater(t, c, prev)
			prev = c
		}
	})
}

func TestHaversineKm(t *testing.T) {
	s := NewScorer()

	t.Run("SamePointIsZero", func(t *testing.T) {
		assert.InDelta(t, 0.0, s.HaversineKm(23.8103, 90.4125, 23.8103, 90.4125), 1e-9)
	})

	t.Run("DhakaToChittagong", func(t *testing.T) {
		// Known distance roughly 215 km
		km := s.HaversineKm(23.8103, 90.4125, 22.3569, 91.7832)
		assert.InDelta(t, 215, km, 15)
	})

	t.Run("Symmetric", func(t *testing.T) {
		a := s.HaversineKm(51.5, -0.12, 48.85, 2.35)
		b := s.HaversineKm(48.85, 2.35, 51.5, -0.12)
		assert.InDelta(t, a, b, 1e-9)
	})
}

func TestLevenshtein(t *testing.T) {
	s := NewScorer()

	t.Run("Distance", func(t *testing.T) {
		assert.Equal(t, 0, s.LevenshteinDistance("kitten", "kitten"))
		assert.Equal(t, 3, s.LevenshteinDistance("kitten", "sitting"))
		assert.Equal(t, 5, s.LevenshteinDistance("", "hello"))
		assert.Equal(t, 5, s.LevenshteinDistance("hello", ""))
	})

	t.Run("Similarity", func(t *testing.T) {
		assert.Equal(t, 1.0, s.Levenshtein("", ""))
		assert.Equal(t, 1.0, s.Levenshtein("abc", "abc"))
		assert.InDelta(t, 1.0-3.0/7.0, s.Levenshtein("kitten", "sitting"), 1e-9)
	})
}
