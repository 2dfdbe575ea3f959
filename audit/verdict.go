package audit

import (
	"github.com/ofircohen205/aura-sub001/intervention"
	"github.com/ofircohen205/aura-sub001/retrieval"
)

// Decision is the Verdict Node's resolution for one candidate.
type Decision string

const (
	DecisionAccept      Decision = "accept"
	DecisionDowngrade   Decision = "downgrade"
	DecisionDismiss     Decision = "dismiss_as_false_positive"
)

// codeClassWeight discounts confidence for contexts where a flagged
// pattern is expected and not actionable — tests exercise banned APIs
// deliberately, generated code isn't hand-authored, config files aren't
// "functions."
var codeClassWeight = map[CodeClass]float64{
	CodeClassProduction: 1.0,
	CodeClassTest:       0.4,
	CodeClassConfig:     0.5,
	CodeClassGenerated:  0.2,
}

// Verdict resolves a prefilter candidate against its retrieved
// Golden-Path chunks. Rule output alone never produces an Intervention
// entry — only Verdict may accept, downgrade, or dismiss.
func Verdict(candidate PrefilterCandidate, chunks []retrieval.SimilarChunk, confidenceThreshold float64) intervention.Candidate {
	confidence := confidenceFor(candidate, chunks)

	result := intervention.Candidate{
		RuleID:      candidate.RuleID,
		FilePath:    candidate.FilePath,
		Line:        candidate.Line,
		Severity:    candidate.Severity,
		Confidence:  confidence,
		Explanation: candidate.Explanation,
	}

	if confidence < confidenceThreshold {
		result.Dismissed = true
		result.DismissedWhy = "confidence below threshold"
		return result
	}

	cited := make([]string, 0, len(chunks))
	for _, c := range chunks {
		cited = append(cited, c.Chunk.ID)
	}
	result.CitedChunks = cited

	if confidence <= (confidenceThreshold+1.0)/2 {
		result.Severity = downgrade(candidate.Severity)
	}

	return result
}

// confidenceFor combines rule severity, code-context class, and the
// strength of confirming retrieved chunks into a single [0,1] score.
func confidenceFor(candidate PrefilterCandidate, chunks []retrieval.SimilarChunk) float64 {
	base := severityBase(candidate.Severity)
	weight := codeClassWeight[candidate.CodeClass]
	if weight == 0 {
		weight = 1.0
	}

	confirming := 0.0
	for _, c := range chunks {
		if c.Similarity > confirming {
			confirming = c.Similarity
		}
	}
	if len(chunks) == 0 {
		confirming = 0.5 // no confirming context: neither supports nor refutes
	}

	return clamp01(base*0.4 + weight*0.3 + confirming*0.3)
}

func severityBase(s intervention.Severity) float64 {
	switch s.Rank() {
	case 3:
		return 1.0
	case 2:
		return 0.8
	case 1:
		return 0.6
	case 0:
		return 0.4
	default:
		return 0.4
	}
}

func downgrade(s intervention.Severity) intervention.Severity {
	switch s {
	case intervention.SeverityCritical:
		return intervention.SeverityHigh
	case intervention.SeverityHigh:
		return intervention.SeverityMedium
	default:
		return intervention.SeverityLow
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
