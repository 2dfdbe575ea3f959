package telemetry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ofircohen205/aura-sub001/intervention"
)

func TestAssemblerTrimsEventsOutsideLookback(t *testing.T) {
	a := NewAssembler(time.Minute)
	now := time.Now()

	a.RecordEdit("s1", EditEvent{At: now.Add(-2 * time.Minute), FilePath: "old.go"})
	a.RecordEdit("s1", EditEvent{At: now, FilePath: "new.go"})
	a.RecordError("s1", ErrorEvent{At: now, Signature: "nil_pointer"})

	w := a.Snapshot("s1", now)

	require.Len(t, w.Edits, 1)
	assert.Equal(t, "new.go", w.Edits[0].FilePath)
	assert.Equal(t, 1, w.DistinctSignatures())
}

func TestAssemblerDropsOutOfOrderEdits(t *testing.T) {
	a := NewAssembler(time.Hour)
	now := time.Now()

	a.RecordEdit("s1", EditEvent{At: now, FilePath: "b.go"})
	a.RecordEdit("s1", EditEvent{At: now.Add(-time.Second), FilePath: "a.go"})
	a.RecordEdit("s1", EditEvent{At: now.Add(time.Second), FilePath: "c.go"})

	w := a.Snapshot("s1", now.Add(time.Second))

	require.Len(t, w.Edits, 2)
	assert.Equal(t, "b.go", w.Edits[0].FilePath)
	assert.Equal(t, "c.go", w.Edits[1].FilePath)
	assert.Equal(t, 1, w.DroppedEdits)
}

func TestAssemblerDropsOutOfOrderErrors(t *testing.T) {
	a := NewAssembler(time.Hour)
	now := time.Now()

	a.RecordError("s1", ErrorEvent{At: now, Signature: "nil_pointer"})
	a.RecordError("s1", ErrorEvent{At: now.Add(-time.Second), Signature: "stale_signature"})

	w := a.Snapshot("s1", now)

	require.Len(t, w.Errors, 1)
	assert.Equal(t, "nil_pointer", w.Errors[0].Signature)
	assert.Equal(t, 1, w.DroppedErrors)
}

func TestAssemblerAcceptsEqualTimestampEvents(t *testing.T) {
	a := NewAssembler(time.Hour)
	now := time.Now()

	a.RecordEdit("s1", EditEvent{At: now, FilePath: "a.go"})
	a.RecordEdit("s1", EditEvent{At: now, FilePath: "b.go"})

	w := a.Snapshot("s1", now)

	assert.Len(t, w.Edits, 2)
	assert.Equal(t, 0, w.DroppedEdits)
}

func TestAssemblerForgetDropsSession(t *testing.T) {
	a := NewAssembler(time.Minute)
	now := time.Now()
	a.RecordEdit("s1", EditEvent{At: now, FilePath: "a.go"})
	a.Forget("s1")

	w := a.Snapshot("s1", now)
	assert.Empty(t, w.Edits)
}

func TestClassifyTriggersAboveThresholds(t *testing.T) {
	now := time.Now()
	w := Window{
		SessionID: "s1",
		Edits: []EditEvent{
			{At: now, FilePath: "a.go"}, {At: now, FilePath: "b.go"},
			{At: now, FilePath: "c.go"}, {At: now, FilePath: "d.go"},
		},
		Errors: []ErrorEvent{
			{At: now.Add(-time.Second), Signature: "nil_pointer"},
			{At: now, Signature: "index_out_of_range"},
		},
	}
	thresholds := Thresholds{EditFreqMin: 4, DistinctErrorsMin: 2}

	c := Classify(w, thresholds)

	assert.True(t, c.Triggered)
	assert.Equal(t, "index_out_of_range", c.DominantSignature)
	assert.NotEmpty(t, c.Severity)
}

func TestClassifyDoesNotTriggerBelowThresholds(t *testing.T) {
	w := Window{SessionID: "s1", Edits: []EditEvent{{FilePath: "a.go"}}}
	c := Classify(w, Thresholds{EditFreqMin: 4, DistinctErrorsMin: 2})

	assert.False(t, c.Triggered)
	assert.Empty(t, c.Severity)
}

func TestClassifySeverityScalesWithExceedance(t *testing.T) {
	now := time.Now()
	thresholds := Thresholds{EditFreqMin: 2, DistinctErrorsMin: 1}

	justOver := Window{Edits: []EditEvent{{At: now}, {At: now}}, Errors: []ErrorEvent{{At: now, Signature: "x"}}}
	farOver := Window{
		Edits: []EditEvent{{At: now}, {At: now}, {At: now}, {At: now}, {At: now}, {At: now}},
		Errors: []ErrorEvent{
			{At: now, Signature: "x"}, {At: now, Signature: "y"}, {At: now, Signature: "z"},
		},
	}

	low := Classify(justOver, thresholds)
	critical := Classify(farOver, thresholds)

	assert.Equal(t, intervention.SeverityLow, low.Severity)
	assert.Equal(t, intervention.SeverityCritical, critical.Severity)
}

func TestCooldownActiveWithinDuration(t *testing.T) {
	c := NewCooldown(10 * time.Minute)
	now := time.Now()

	assert.False(t, c.Active("s1", "nil_pointer", now))

	c.MarkFired("s1", "nil_pointer", now)
	assert.True(t, c.Active("s1", "nil_pointer", now.Add(time.Minute)))
	assert.False(t, c.Active("s1", "nil_pointer", now.Add(11*time.Minute)))
}

func TestCooldownIsolatesSessionsAndSignatures(t *testing.T) {
	c := NewCooldown(time.Minute)
	now := time.Now()
	c.MarkFired("s1", "nil_pointer", now)

	assert.False(t, c.Active("s2", "nil_pointer", now))
	assert.False(t, c.Active("s1", "other_signature", now))
}

func TestNormalizeWindowBoundsSortsAndDropsTimestamps(t *testing.T) {
	now := time.Now()
	update := WindowUpdate{
		SessionID: "s1",
		Edits: []EditEvent{
			{At: now, FilePath: "b.go"},
			{At: now.Add(time.Second), FilePath: "a.go"},
			{At: now.Add(2 * time.Second), FilePath: "a.go"},
		},
		Errors: []ErrorEvent{
			{At: now, Signature: "z"},
			{At: now.Add(time.Second), Signature: "a"},
		},
	}
	payload, err := json.Marshal(update)
	require.NoError(t, err)

	normalized, err := NormalizeWindowBounds(payload)
	require.NoError(t, err)

	var canonical struct {
		SessionID  string   `json:"session_id"`
		Signatures []string `json:"signatures"`
		Files      []string `json:"files"`
	}
	require.NoError(t, json.Unmarshal(normalized, &canonical))

	assert.Equal(t, []string{"a", "z"}, canonical.Signatures)
	assert.Equal(t, []string{"a.go", "b.go"}, canonical.Files)
}

func TestNormalizeWindowBoundsIsStableAcrossTimestampVariation(t *testing.T) {
	base := WindowUpdate{SessionID: "s1", Errors: []ErrorEvent{{Signature: "x"}}}
	shifted := base
	shifted.Errors = []ErrorEvent{{At: time.Now(), Signature: "x"}}

	baseBytes, err := json.Marshal(base)
	require.NoError(t, err)
	shiftedBytes, err := json.Marshal(shifted)
	require.NoError(t, err)

	normalizedBase, err := NormalizeWindowBounds(baseBytes)
	require.NoError(t, err)
	normalizedShifted, err := NormalizeWindowBounds(shiftedBytes)
	require.NoError(t, err)

	assert.JSONEq(t, string(normalizedBase), string(normalizedShifted))
}
