package tender

import "strings"

// DefaultThreshold is the minimum classifier confidence for retention.
const DefaultThreshold = 0.5

// Retention rejection reasons.
const (
	RejectNoTitle       = "no_title"
	RejectExcluded      = "excluded_category"
	RejectLowConfidence = "low_confidence"
)

// Retain decides whether a listing belongs in the final output. Unclassified
// listings only need a title.
func Retain(l Listing, threshold float64) (keep bool, reason string) {
	if strings.TrimSpace(l.Title) == "" {
		return false, RejectNoTitle
	}
	if !l.Classified() {
		return true, ""
	}
	if l.PredictedCategory == ExcludedCategory {
		return false, RejectExcluded
	}
	if l.Confidence == nil || *l.Confidence < threshold {
		return false, RejectLowConfidence
	}
	return true, ""
}

// FilterListings applies Retain to every listing, preserving order, and
// returns rejection counts keyed by reason.
func FilterListings(in []Listing, threshold float64) ([]Listing, map[string]int) {
	out := make([]Listing, 0, len(in))
	rejected := make(map[string]int)
	for _, l := range in {
		keep, reason := Retain(l, threshold)
		if !keep {
			rejected[reason]++
			continue
		}
		out = append(out, l)
	}
	return out, rejected
}
