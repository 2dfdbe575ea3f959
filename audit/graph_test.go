package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewGraphValidatesAsAcyclic(t *testing.T) {
	graph := NewGraph(GraphParams{
		Rules:               DefaultRules(),
		ConfidenceThreshold: 0.5,
		RetrievalTopK:       5,
	})

	assert.NoError(t, graph.Validate(Reachable()))
}

func TestCanonicalizeReencodesEnvelope(t *testing.T) {
	out, err := Canonicalize([]byte(`{"raw":"aGVsbG8="}`))

	assert.NoError(t, err)
	assert.JSONEq(t, `{"raw":"aGVsbG8="}`, string(out))
}

func TestCanonicalizeRejectsMalformedEnvelope(t *testing.T) {
	_, err := Canonicalize([]byte(`not-json`))

	assert.Error(t, err)
}

func TestDocIDIsDeterministicPerTenantAndHashPair(t *testing.T) {
	a := docID("tenant-1", "base1", "new1")
	b := docID("tenant-1", "base1", "new1")
	c := docID("tenant-2", "base1", "new1")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "tenant-1/base1..new1", a)
}
