package audit

import (
	"fmt"
	"strings"

	"github.com/ofircohen205/aura-sub001/intervention"
	"github.com/ofircohen205/aura-sub001/retrieval"
)

// ComposeRemediation builds a remediation snippet for an accepted
// candidate from its retrieved Golden-Path exemplars. Every remediation
// cites at least one chunk id already present in candidate.CitedChunks —
// the no-citation-no-edit invariant — so a candidate with no confirming
// chunks gets no remediation snippet, only its explanation.
func ComposeRemediation(candidate *intervention.Candidate, chunks []retrieval.SimilarChunk) {
	if candidate.Dismissed || len(chunks) == 0 {
		return
	}

	best := chunks[0]
	var b strings.Builder
	fmt.Fprintf(&b, "Per %s [%s]: %s\n", best.Chunk.Title, best.Chunk.ID, firstLine(best.Chunk.Body))
	candidate.Remediation = b.String()
}

func firstLine(body string) string {
	if idx := strings.IndexByte(body, '\n'); idx >= 0 {
		return body[:idx]
	}
	return body
}
