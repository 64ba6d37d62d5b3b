package matching

import (
	"math"
	"strings"

	"github.com/Ramsey-B/juniper/pkg/normalizers"
)

// Matcher name constants used in field score breakdowns
const (
	MatcherName            = "name"
	MatcherAddress         = "address"
	MatcherDistance        = "distance"
	MatcherLocationType    = "location_type"
	MatcherSearchRelevance = "search_relevance"
)

// referenceTopScore is the reference retrieval score treated as "full
// relevance" by the logarithmic compression in SearchRelevance
const referenceTopScore = 100.0

// earthRadiusKm is the mean Earth radius used for great-circle distances
const earthRadiusKm = 6371.0

// Scorer provides the field matching algorithms. All methods are pure
// functions of their inputs and return confidences in [0, 1].
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// NameSimilarity scores two facility names by averaging the token-set and
// token-sort ratios. Empty input on either side scores 0.
func (s *Scorer) NameSimilarity(a, b string) float64 {
	return s.averageRatio(a, b)
}

// AddressSimilarity scores two addresses by averaging the token-set and
// token-sort ratios. Empty input on either side scores 0.
func (s *Scorer) AddressSimilarity(a, b string) float64 {
	return s.averageRatio(a, b)
}

func (s *Scorer) averageRatio(a, b string) float64 {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return 0.0
	}
	return (s.TokenSetRatio(a, b) + s.TokenSortRatio(a, b)) / 2
}

// TokenSortRatio compares two strings after sorting their tokens, making the
// score robust to word reordering
func (s *Scorer) TokenSortRatio(a, b string) float64 {
	sortedA := strings.Join(normalizers.TokenSet(a), " ")
	sortedB := strings.Join(normalizers.TokenSet(b), " ")
	if sortedA == "" && sortedB == "" {
		return 0.0
	}
	return s.Levenshtein(sortedA, sortedB)
}

// TokenSetRatio compares two strings on their token sets, making the score
// robust to one side carrying extra tokens. The shared tokens are compared
// against each side's full token string and the best pairing wins.
func (s *Scorer) TokenSetRatio(a, b string) float64 {
	tokensA := normalizers.TokenSet(a)
	tokensB := normalizers.TokenSet(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0.0
	}

	setB := make(map[string]bool, len(tokensB))
	for _, t := range tokensB {
		setB[t] = true
	}
	setA := make(map[string]bool, len(tokensA))
	for _, t := range tokensA {
		setA[t] = true
	}

	var shared, onlyA, onlyB []string
	for _, t := range tokensA {
		if setB[t] {
			shared = append(shared, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for _, t := range tokensB {
		if !setA[t] {
			onlyB = append(onlyB, t)
		}
	}

	base := strings.Join(shared, " ")
	combinedA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	combinedB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := s.Levenshtein(combinedA, combinedB)
	if base != "" {
		if r := s.Levenshtein(base, combinedA); r > best {
			best = r
		}
		if r := s.Levenshtein(base, combinedB); r > best {
			best = r
		}
	}
	return best
}

// DistanceConfidence maps a great-circle distance in kilometers to a
// confidence via a monotonically decreasing step function. Physical
// proximity is a strong but non-linear signal, so near-exact coordinate
// agreement dominates while moderate distances only mildly support a match.
// Negative input clamps to the nearest band.
func (s *Scorer) DistanceConfidence(km float64) float64 {
	switch {
	case km <= 0.005:
		return 1.0
	case km <= 0.1:
		return 0.9
	case km <= 0.152:
		return 0.7
	case km <= 1:
		return 0.6
	case km <= 5:
		return 0.5
	case km <= 30:
		return 0.4
	case km <= 100:
		return 0.3
	case km <= 200:
		return 0.2
	case km <= 500:
		return 0.1
	default:
		return 0.0
	}
}

// LocationTypeMatch returns 1.0 when the two geocoded location type
// classifications match exactly, 0.0 otherwise
func (s *Scorer) LocationTypeMatch(a, b string) float64 {
	if a != "" && a == b {
		return 1.0
	}
	return 0.0
}

// SearchRelevance normalizes an unbounded retrieval relevance score onto
// [0, 1] via log compression against a reference top score, capping at 1.
// Non-positive input scores 0.
func (s *Scorer) SearchRelevance(raw float64) float64 {
	if raw <= 0 {
		return 0.0
	}
	score := math.Log1p(raw) / math.Log1p(referenceTopScore)
	if score > 1.0 {
		return 1.0
	}
	return score
}

// HaversineKm computes the great-circle distance in kilometers between two
// coordinate pairs
func (s *Scorer) HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// Levenshtein calculates the Levenshtein distance between two strings
// Returns a similarity score between 0.0 and 1.0
func (s *Scorer) Levenshtein(a, b string) float64 {
	distance := s.LevenshteinDistance(a, b)
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(distance)/float64(maxLen)
}

// LevenshteinDistance calculates the edit distance between two strings
func (s *Scorer) LevenshteinDistance(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	// Create two rows for dynamic programming
	row := make([]int, len(b)+1)
	prevRow := make([]int, len(b)+1)

	for j := 0; j <= len(b); j++ {
		prevRow[j] = j
	}

	for i := 1; i <= len(a); i++ {
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 0
			if a[i-1] != b[j-1] {
				cost = 1
			}
			row[j] = min(min(row[j-1]+1, prevRow[j]+1), prevRow[j-1]+cost)
		}
		row, prevRow = prevRow, row
	}

	return prevRow[len(b)]
}
