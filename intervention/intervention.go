// Package intervention defines the terminal artifact every pipeline
// graph produces: a lesson from the Struggle Detector or a violation
// report from the Audit Pipeline.
package intervention

import (
	"sort"
	"time"
)

// Kind distinguishes the two pipeline termini.
type Kind string

const (
	KindLesson          Kind = "lesson"
	KindViolationReport Kind = "violation_report"
)

// Severity orders violation candidates and breaks Threshold Classifier
// ties.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns s's ordinal for comparisons; unknown severities rank
// below SeverityLow.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// Intervention is the immutable result artifact a pipeline terminus
// emits, written to the Result Store keyed by fingerprint.
type Intervention struct {
	Fingerprint  string    `json:"fingerprint"`
	TenantID     string    `json:"tenant_id"`
	Kind         Kind      `json:"kind"`
	Severity     Severity  `json:"severity,omitempty"`
	Body         string    `json:"body"`
	CitedChunks  []string  `json:"cited_chunk_ids"`
	Remediations []string  `json:"remediation_snippets,omitempty"`
	Degraded     bool      `json:"degraded,omitempty"`
	Coalesced    bool      `json:"coalesced,omitempty"`
	ProducedAt   time.Time `json:"produced_at"`
}

// Candidate is one flagged violation carried through the Audit Pipeline
// from the Rule Prefilter to the Terminal node.
type Candidate struct {
	RuleID       string   `json:"rule_id"`
	FilePath     string   `json:"file_path"`
	Line         int      `json:"line"`
	Severity     Severity `json:"severity"`
	Confidence   float64  `json:"confidence"`
	Explanation  string   `json:"explanation"`
	CitedChunks  []string `json:"cited_chunk_ids"`
	Remediation  string   `json:"remediation,omitempty"`
	Dismissed    bool     `json:"dismissed"`
	DismissedWhy string   `json:"dismissed_why,omitempty"`
}

// SortCandidates orders accepted candidates by (severity desc, file path
// asc, line asc), the order the Audit Pipeline's Terminal node requires.
func SortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return a.Line < b.Line
	})
}
