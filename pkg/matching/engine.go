// Package matching implements the record linkage core: pure field matchers
// (scoring.go) and the cumulative matcher (engine.go) that blends their
// confidences into an auditable, deterministic match decision.
package matching

import (
	"context"
	"fmt"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/juniper/pkg/models"
	"github.com/Ramsey-B/juniper/pkg/tracing"
)

// Weights holds the per-matcher contribution weights. When a matcher is
// inapplicable for a pair (missing coordinates or location type), its weight
// is excluded and the rest are renormalized to sum to 1, so records lacking
// one signal are not penalized relative to complete records.
type Weights struct {
	Name            float64
	Address         float64
	Distance        float64
	LocationType    float64
	SearchRelevance float64
}

// DefaultWeights returns the default matcher weights
func DefaultWeights() Weights {
	return Weights{
		Name:            0.30,
		Address:         0.25,
		Distance:        0.25,
		LocationType:    0.05,
		SearchRelevance: 0.15,
	}
}

// EngineConfig contains configuration for the match engine
type EngineConfig struct {
	AutomaticThreshold float64 // Confidence at or above which the top candidate is matched automatically (default: 0.8)
	PendingGate        float64 // Confidence below which the record is treated as a new facility (default: 0.5)
	Weights            Weights
}

// DefaultConfig returns default engine configuration
func DefaultConfig() EngineConfig {
	return EngineConfig{
		AutomaticThreshold: 0.8,
		PendingGate:        0.5,
		Weights:            DefaultWeights(),
	}
}

// Engine is the cumulative matcher. It scores every candidate with the field
// matchers, ranks them deterministically and classifies the outcome against
// the configured thresholds.
type Engine struct {
	logger ectologger.Logger
	scorer *Scorer
	config EngineConfig
}

// NewEngine creates a new match engine
func NewEngine(logger ectologger.Logger, config EngineConfig) *Engine {
	return &Engine{
		logger: logger,
		scorer: NewScorer(),
		config: config,
	}
}

// Match scores the list item against every candidate and produces the match
// decision with the full ranked breakdown retained for audit. An empty
// candidate list is a valid input meaning "likely new facility".
func (e *Engine) Match(ctx context.Context, item *models.ListItem, candidates []models.Candidate) (*models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.Match")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"list_item_id":    item.ID,
		"source_id":       item.SourceID,
		"candidate_count": len(candidates),
	})

	results := make([]models.MatchResult, 0, len(candidates))
	for i := range candidates {
		result, err := e.scoreCandidate(item, &candidates[i])
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}

	// Deterministic ranking: confidence descending, facility_id ascending on
	// ties so repeated runs over identical input produce identical order
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Confidence != results[j].Confidence {
			return results[i].Confidence > results[j].Confidence
		}
		return results[i].FacilityID < results[j].FacilityID
	})
	for i := range results {
		results[i].Rank = i + 1
	}

	decision := e.classify(item, results)

	log.WithFields(map[string]any{
		"status":     decision.Status,
		"confidence": decision.Confidence,
	}).Debug("Match decision computed")

	return decision, nil
}

// scoreCandidate computes the field scores for one pair and aggregates them
// with renormalized weights
func (e *Engine) scoreCandidate(item *models.ListItem, candidate *models.Candidate) (*models.MatchResult, error) {
	w := e.config.Weights

	scores := []models.FieldScore{
		{Matcher: MatcherName, Confidence: e.scorer.NameSimilarity(item.Name, candidate.Name)},
		{Matcher: MatcherAddress, Confidence: e.scorer.AddressSimilarity(item.Address, candidate.Address)},
	}
	weights := []float64{w.Name, w.Address}

	// Distance only applies when both sides carry coordinates; a fabricated
	// distance would bias the aggregate without evidence
	if item.HasCoordinates() && candidate.Lat != nil && candidate.Lng != nil {
		km := e.scorer.HaversineKm(*item.Lat, *item.Lng, *candidate.Lat, *candidate.Lng)
		scores = append(scores, models.FieldScore{Matcher: MatcherDistance, Confidence: e.scorer.DistanceConfidence(km)})
		weights = append(weights, w.Distance)
	}

	if item.GeocodedLocationType != nil && candidate.GeocodedLocationType != nil {
		scores = append(scores, models.FieldScore{
			Matcher:    MatcherLocationType,
			Confidence: e.scorer.LocationTypeMatch(*item.GeocodedLocationType, *candidate.GeocodedLocationType),
		})
		weights = append(weights, w.LocationType)
	}

	scores = append(scores, models.FieldScore{Matcher: MatcherSearchRelevance, Confidence: e.scorer.SearchRelevance(candidate.SearchScore)})
	weights = append(weights, w.SearchRelevance)

	var totalWeight, weightedSum float64
	for i, fs := range scores {
		if fs.Confidence < 0 || fs.Confidence > 1 {
			// Out-of-range confidences are programming defects and must
			// surface, not be silently clamped into the aggregate
			return nil, fmt.Errorf("matcher %q produced out-of-range confidence %f for facility %s", fs.Matcher, fs.Confidence, candidate.FacilityID)
		}
		weightedSum += fs.Confidence * weights[i]
		totalWeight += weights[i]
	}

	if totalWeight == 0 {
		return nil, fmt.Errorf("no applicable matcher weights for facility %s", candidate.FacilityID)
	}

	return &models.MatchResult{
		FacilityID:  candidate.FacilityID,
		Confidence:  weightedSum / totalWeight,
		FieldScores: scores,
	}, nil
}

// classify applies the decision thresholds to the ranked results
func (e *Engine) classify(item *models.ListItem, results []models.MatchResult) *models.MatchDecision {
	decision := &models.MatchDecision{
		ListItemID: item.ID,
		Results:    results,
	}

	if len(results) == 0 {
		// No plausible existing facility: decisively new
		decision.Status = models.MatchStatusAutomatic
		return decision
	}

	top := results[0]
	decision.Confidence = top.Confidence

	switch {
	case top.Confidence >= e.config.AutomaticThreshold:
		decision.Status = models.MatchStatusAutomatic
		decision.FacilityID = &top.FacilityID
	case top.Confidence < e.config.PendingGate:
		// Too weak to suggest: treated as a new facility
		decision.Status = models.MatchStatusAutomatic
		decision.FacilityID = nil
	default:
		// Ambiguous: leading suggestion retained for moderator review
		decision.Status = models.MatchStatusPending
		decision.FacilityID = &top.FacilityID
	}

	return decision
}
