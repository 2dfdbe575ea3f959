package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewGraphValidatesAsAcyclic(t *testing.T) {
	graph := NewGraph(GraphParams{
		Assembler:     NewAssembler(time.Minute),
		Cooldown:      NewCooldown(0),
		Thresholds:    Thresholds{},
		DefaultLevel:  "beginner",
		MaxBodyChars:  500,
		RetrievalTopK: 5,
	})

	assert.NoError(t, graph.Validate(Reachable()))
}
