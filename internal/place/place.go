// Package place defines the normalized listing record and the rules that
// decide whether a candidate may be emitted.
package place

import (
	"unicode/utf8"

	"CrawlerNaverMap/internal/pattern"
)

// Record is one extracted listing. Unknown fields are "", never absent.
type Record struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Category string `json:"category"`
}

// Reject reasons reported by Check.
const (
	ReasonEmpty = "empty name"
	ReasonShort = "name too short"
	ReasonAd    = "advertisement"
)

// Check applies the acceptance gate and returns "" when name is usable.
func Check(name string) string {
	switch {
	case name == "":
		return ReasonEmpty
	case utf8.RuneCountInString(name) <= 1:
		return ReasonShort
	case pattern.IsNoise(name):
		return ReasonAd
	}
	return ""
}

// Accept reports whether name passes the gate.
func Accept(name string) bool { return Check(name) == "" }

// Dedup keeps the first record per exact name, preserving order, and stops
// at limit records (limit <= 0 means no cap).
func Dedup(in []Record, limit int) []Record {
	seen := make(map[string]struct{}, len(in))
	out := make([]Record, 0, len(in))
	for _, r := range in {
		if limit > 0 && len(out) >= limit {
			break
		}
		if _, ok := seen[r.Name]; ok {
			continue
		}
		seen[r.Name] = struct{}{}
		out = append(out, r)
	}
	return out
}
