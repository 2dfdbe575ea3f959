package telemetry

import "github.com/ofircohen205/aura-sub001/intervention"

// Classification is the Struggle Detector's verdict on a Window.
type Classification struct {
	Triggered         bool
	EditCount         int
	DistinctCount     int
	DominantSignature string
	Severity          intervention.Severity
}

// Thresholds are the counts a Window must clear to be classified as a
// struggle: edit_freq_min edits and distinct_errors_min distinct error
// signatures within the configured lookback. Classify does not consult
// cooldown; the dominant signature's cooldown is checked separately
// (see cooldown.go).
type Thresholds struct {
	EditFreqMin       int
	DistinctErrorsMin int
}

// Classify applies Thresholds to w. When multiple severity tiers would
// fire, the highest wins; ties are broken by the caller consulting
// DominantSignature, the most recently observed error signature in w.
func Classify(w Window, t Thresholds) Classification {
	distinct := w.DistinctSignatures()
	editCount := len(w.Edits)

	c := Classification{
		Triggered:         editCount >= t.EditFreqMin && distinct >= t.DistinctErrorsMin,
		EditCount:         editCount,
		DistinctCount:     distinct,
		DominantSignature: dominantSignature(w),
	}
	if c.Triggered {
		c.Severity = severityFor(editCount, distinct, t)
	}
	return c
}

// dominantSignature returns the most recently observed error signature
// in w, the Threshold Classifier's tie-break when several signatures
// co-occur in the same window.
func dominantSignature(w Window) string {
	var latest string
	var latestAt int64
	for _, e := range w.Errors {
		if at := e.At.UnixNano(); at >= latestAt {
			latestAt = at
			latest = e.Signature
		}
	}
	return latest
}

// severityFor scales severity with how far the window exceeds its
// configured thresholds: comfortably over both thresholds escalates
// toward critical, just clearing them is low.
func severityFor(editCount, distinct int, t Thresholds) intervention.Severity {
	editRatio := ratio(editCount, t.EditFreqMin)
	distinctRatio := ratio(distinct, t.DistinctErrorsMin)
	worst := editRatio
	if distinctRatio > worst {
		worst = distinctRatio
	}

	switch {
	case worst >= 3:
		return intervention.SeverityCritical
	case worst >= 2:
		return intervention.SeverityHigh
	case worst >= 1.5:
		return intervention.SeverityMedium
	default:
		return intervention.SeverityLow
	}
}

func ratio(count, min int) float64 {
	if min <= 0 {
		return float64(count)
	}
	return float64(count) / float64(min)
}
