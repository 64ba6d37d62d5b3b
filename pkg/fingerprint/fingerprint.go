// Package fingerprint produces deterministic content hashes for staged list
// items. Intake uses the hash to tell a resubmitted identical row apart from
// a genuine change, so unchanged rows keep their pipeline status.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/Ramsey-B/juniper/pkg/models"
)

// ForListItem fingerprints the fields that influence matching. Coordinates
// supplied by the contributor participate; geocoded values do not, since
// geocoding is derived from the address after staging.
func ForListItem(item *models.ListItem) string {
	return Generate(map[string]any{
		"name":         item.Name,
		"address":      item.Address,
		"country_code": item.CountryCode,
		"lat":          item.Lat,
		"lng":          item.Lng,
	})
}

// Generate creates a deterministic fingerprint for a field map. The
// fingerprint is a SHA256 hash of the canonicalized JSON.
func Generate(data map[string]any) string {
	canonical := canonicalize(data)
	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:])
}

// canonicalize creates a deterministic string representation of a value by
// sorting map keys and recursively processing nested structures
func canonicalize(data any) string {
	switch v := data.(type) {
	case map[string]any:
		return canonicalizeMap(v)
	case []any:
		return canonicalizeArray(v)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func canonicalizeMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(",")
		}
		keyJSON, _ := json.Marshal(k)
		sb.Write(keyJSON)
		sb.WriteString(":")
		sb.WriteString(canonicalize(m[k]))
	}
	sb.WriteString("}")
	return sb.String()
}

func canonicalizeArray(a []any) string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, v := range a {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(canonicalize(v))
	}
	sb.WriteString("]")
	return sb.String()
}
