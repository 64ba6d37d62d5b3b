package matching

import (
	"context"
	"math/rand"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/juniper/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func ptr[T any](v T) *T {
	return &v
}

func testItem() *models.ListItem {
	return &models.ListItem{
		ID:          "item-1",
		SourceID:    "source-1",
		Name:        "acme textiles",
		Address:     "12 mill road dhaka",
		CountryCode: "BD",
		Lat:         ptr(23.8103),
		Lng:         ptr(90.4125),
	}
}

func candidate(id string, score float64) models.Candidate {
	return models.Candidate{
		Facility: models.Facility{
			FacilityID:  id,
			Name:        "acme textiles",
			Address:     "12 mill road dhaka",
			CountryCode: "BD",
			Lat:         ptr(23.8103),
			Lng:         ptr(90.4125),
		},
		SearchScore: score,
	}
}

func TestEngineMatch_Classification(t *testing.T) {
	engine := NewEngine(testLogger(), DefaultConfig())
	ctx := context.Background()

	t.Run("PerfectPairIsAutomatic", func(t *testing.T) {
		decision, err := engine.Match(ctx, testItem(), []models.Candidate{candidate("BD2024AAAAAAA00", 100)})
		require.NoError(t, err)

		assert.Equal(t, models.MatchStatusAutomatic, decision.Status)
		require.NotNil(t, decision.FacilityID)
		assert.Equal(t, "BD2024AAAAAAA00", *decision.FacilityID)
		assert.InDelta(t, 1.0, decision.Confidence, 1e-9)
	})

	t.Run("EmptyCandidatesIsNewFacility", func(t *testing.T) {
		decision, err := engine.Match(ctx, testItem(), nil)
		require.NoError(t, err)

		assert.Equal(t, models.MatchStatusAutomatic, decision.Status)
		assert.Nil(t, decision.FacilityID)
		assert.True(t, decision.IsNewFacility())
		assert.Empty(t, decision.Results)
	})

	t.Run("AmbiguousCandidateIsPending", func(t *testing.T) {
		// Same name, different address, far coordinates: lands between the gates
		c := candidate("BD2024BBBBBBB00", 60)
		c.Address = "99 harbor street chittagong"
		c.Lat = ptr(22.3569)
		c.Lng = ptr(91.7832)

		decision, err := engine.Match(ctx, testItem(), []models.Candidate{c})
		require.NoError(t, err)

		assert.Equal(t, models.MatchStatusPending, decision.Status)
		require.NotNil(t, decision.FacilityID)
		assert.Equal(t, "BD2024BBBBBBB00", *decision.FacilityID)
		assert.GreaterOrEqual(t, decision.Confidence, 0.5)
		assert.Less(t, decision.Confidence, 0.8)
	})

	t.Run("WeakCandidateIsNewFacility", func(t *testing.T) {
		c := candidate("BD2024CCCCCCC00", 1)
		c.Name = "zenith microchips"
		c.Address = "1 silicon way"
		c.Lat = ptr(48.8566)
		c.Lng = ptr(2.3522)

		decision, err := engine.Match(ctx, testItem(), []models.Candidate{c})
		require.NoError(t, err)

		assert.Equal(t, models.MatchStatusAutomatic, decision.Status)
		assert.Nil(t, decision.FacilityID)
		assert.Less(t, decision.Confidence, 0.5)
		// Ranked breakdown is retained even when the record is treated as new
		assert.Len(t, decision.Results, 1)
	})
}

func TestEngineMatch_Determinism(t *testing.T) {
	engine := NewEngine(testLogger(), DefaultConfig())
	ctx := context.Background()

	ids := []string{
		"BD2024AAAAAAA00", "BD2024BBBBBBB00", "BD2024CCCCCCC00",
		"BD2024DDDDDDD00", "BD2024EEEEEEE00",
	}

	build := func(order []int) []models.Candidate {
		out := make([]models.Candidate, 0, len(order))
		for _, i := range order {
			out = append(out, candidate(ids[i], 100))
		}
		return out
	}

	baseline, err := engine.Match(ctx, testItem(), build([]int{0, 1, 2, 3, 4}))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		order := rng.Perm(len(ids))
		decision, err := engine.Match(ctx, testItem(), build(order))
		require.NoError(t, err)

		require.Len(t, decision.Results, len(baseline.Results))
		for i := range decision.Results {
			assert.Equal(t, baseline.Results[i].FacilityID, decision.Results[i].FacilityID,
				"ranking must not depend on input order")
			assert.Equal(t, i+1, decision.Results[i].Rank)
		}
		require.NotNil(t, decision.FacilityID)
		assert.Equal(t, *baseline.FacilityID, *decision.FacilityID)
	}
}

func TestEngineMatch_TieBreak(t *testing.T) {
	engine := NewEngine(testLogger(), DefaultConfig())

	// Identical candidates differing only in facility id tie on confidence;
	// the lexicographically smaller id must win
	decision, err := engine.Match(context.Background(), testItem(), []models.Candidate{
		candidate("BD2024ZZZZZZZ00", 100),
		candidate("BD2024AAAAAAA00", 100),
	})
	require.NoError(t, err)

	require.Len(t, decision.Results, 2)
	assert.Equal(t, "BD2024AAAAAAA00", decision.Results[0].FacilityID)
	assert.Equal(t, "BD2024ZZZZZZZ00", decision.Results[1].FacilityID)
	require.NotNil(t, decision.FacilityID)
	assert.Equal(t, "BD2024AAAAAAA00", *decision.FacilityID)
}

func TestEngineMatch_WeightRenormalization(t *testing.T) {
	engine := NewEngine(testLogger(), DefaultConfig())
	ctx := context.Background()

	t.Run("MissingCoordinatesNotPenalized", func(t *testing.T) {
		item := testItem()
		item.Lat = nil
		item.Lng = nil

		decision, err := engine.Match(ctx, item, []models.Candidate{candidate("BD2024AAAAAAA00", 100)})
		require.NoError(t, err)

		// Name, address and relevance are all perfect; the absent distance
		// matcher must not drag the aggregate down
		assert.InDelta(t, 1.0, decision.Confidence, 1e-9)
		assert.Equal(t, models.MatchStatusAutomatic, decision.Status)
	})

	t.Run("InapplicableMatcherExcludedFromBreakdown", func(t *testing.T) {
		item := testItem()
		item.Lat = nil
		item.Lng = nil

		decision, err := engine.Match(ctx, item, []models.Candidate{candidate("BD2024AAAAAAA00", 100)})
		require.NoError(t, err)

		require.Len(t, decision.Results, 1)
		for _, fs := range decision.Results[0].FieldScores {
			assert.NotEqual(t, MatcherDistance, fs.Matcher)
		}
	})

	t.Run("LocationTypeOnlyWhenBothPresent", func(t *testing.T) {
		item := testItem()
		item.GeocodedLocationType = ptr("ROOFTOP")

		c := candidate("BD2024AAAAAAA00", 100)
		c.GeocodedLocationType = ptr("ROOFTOP")

		decision, err := engine.Match(ctx, item, []models.Candidate{c})
		require.NoError(t, err)

		matchers := map[string]float64{}
		for _, fs := range decision.Results[0].FieldScores {
			matchers[fs.Matcher] = fs.Confidence
		}
		assert.Contains(t, matchers, MatcherLocationType)
		assert.Equal(t, 1.0, matchers[MatcherLocationType])
	})
}

func TestEngineMatch_ConfidenceBounds(t *testing.T) {
	engine := NewEngine(testLogger(), DefaultConfig())
	ctx := context.Background()

	rng := rand.New(rand.NewSource(7))
	names := []string{"acme textiles", "dhaka garments", "eastern mills co", "rooftop factory", ""}
	for trial := 0; trial < 50; trial++ {
		c := candidate("BD2024AAAAAAA00", rng.Float64()*300)
		c.Name = names[rng.Intn(len(names))]
		c.Address = names[rng.Intn(len(names))]
		if rng.Intn(2) == 0 {
			c.Lat = nil
			c.Lng = nil
		}

		decision, err := engine.Match(ctx, testItem(), []models.Candidate{c})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, decision.Confidence, 0.0)
		assert.LessOrEqual(t, decision.Confidence, 1.0)
	}
}
