package engine

import (
	"caption-ingress-engine/internal/config"
	"caption-ingress-engine/internal/models"
	"caption-ingress-engine/internal/textutil"
)

// Rules carries the tuned thresholds for deciding when two observations are
// the same utterance. The exact values are responsiveness knobs, not
// correctness invariants; they come from configuration.
type Rules struct {
	SimilarityThreshold float64
	MinPrefixLength     int
	SharedPrefixRunes   int
}

// RulesFromConfig builds Rules from the diff configuration section.
func RulesFromConfig(cfg config.DiffConfig) Rules {
	return Rules{
		SimilarityThreshold: cfg.SimilarityThreshold,
		MinPrefixLength:     cfg.MinPrefixLength,
		SharedPrefixRunes:   cfg.SharedPrefixRunes,
	}
}

// SameUtterance reports whether two observations are revisions of one
// utterance: identical, one a prefix of the other beyond the minimum
// length, or token-overlapping past the similarity threshold. Declared
// speaker labels, when both present, must match.
func (r Rules) SameUtterance(a, b models.CaptionObservation) bool {
	if a.Speaker != "" && b.Speaker != "" && a.Speaker != b.Speaker {
		return false
	}
	return r.sameText(a.Text, b.Text)
}

func (r Rules) sameText(a, b string) bool {
	if a == b {
		return true
	}
	if textutil.IsPrefixBeyond(a, b, r.MinPrefixLength) {
		return true
	}
	return textutil.OverlapRatio(a, b) >= r.SimilarityThreshold
}

// Disappeared returns the previous observations that are no longer present
// in the current snapshot and must therefore be committed. A previous
// observation survives if any current observation is the same utterance.
// When the current snapshot is empty and the previous was not, everything
// disappeared at once (captions cleared or scrolled away).
func Disappeared(prev, curr []models.CaptionObservation, rules Rules) []models.CaptionObservation {
	if len(prev) == 0 {
		return nil
	}
	if len(curr) == 0 {
		out := make([]models.CaptionObservation, len(prev))
		copy(out, prev)
		return out
	}

	var gone []models.CaptionObservation
	for _, old := range prev {
		present := false
		for _, now := range curr {
			if rules.SameUtterance(old, now) {
				present = true
				break
			}
		}
		if !present {
			gone = append(gone, old)
		}
	}
	return gone
}
