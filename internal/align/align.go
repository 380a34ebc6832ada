// Package align locates a short grade sequence inside a longer reference
// sequence, tolerating imperfect matches up to a confidence threshold.
package align

import "github.com/sebastiankruger/mill-forecaster/internal/core"

// NotFound is returned when no offset scores above the acceptance threshold.
const NotFound = -1

// BestOffset slides target across reference and scores every offset by the
// number of position-wise grade matches. It returns the offset of the
// highest score, short-circuiting on a perfect match. When the best score is
// below minRatio of the target length the match is too weak to trust and
// NotFound is returned instead; single-grade targets are exempt from the
// ratio test, any exact match is accepted.
func BestOffset(target, reference []core.Grade, minRatio float64) int {
	if len(target) == 0 || len(target) > len(reference) {
		return NotFound
	}

	best := 0
	bestOffset := NotFound
	for offset := 0; offset+len(target) <= len(reference); offset++ {
		score := 0
		for j, grade := range target {
			if reference[offset+j] == grade {
				score++
			}
		}
		if score == len(target) {
			return offset
		}
		if score > best {
			best = score
			bestOffset = offset
		}
	}

	if len(target) > 1 && float64(best) < minRatio*float64(len(target)) {
		return NotFound
	}
	return bestOffset
}
