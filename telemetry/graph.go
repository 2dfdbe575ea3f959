package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ofircohen205/aura-sub001/apierr"
	"github.com/ofircohen205/aura-sub001/engine"
	"github.com/ofircohen205/aura-sub001/intervention"
	"github.com/ofircohen205/aura-sub001/resultstore"
	"github.com/ofircohen205/aura-sub001/retrieval"
)

const (
	nodeAssembleWindow   engine.NodeID = "assembleWindow"
	nodeClassifyThresh   engine.NodeID = "classifyThreshold"
	nodeRetrieveLesson   engine.NodeID = "retrieveLesson"
	nodeSynthesizeLesson engine.NodeID = "synthesizeLesson"
	nodeTerminal         engine.NodeID = "terminal"
)

// Synthesizer composes a lesson body from retrieved chunks. An
// llm.Client bound to a provider implements this at wiring time.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, chunks []retrieval.SimilarChunk, userLevel string, maxChars int) (string, error)
}

// GraphParams collects a Struggle Detector Graph's dependencies.
type GraphParams struct {
	Assembler      *Assembler
	Cooldown       *Cooldown
	Thresholds     Thresholds
	Retrieval      *retrieval.Layer
	Synthesizer    Synthesizer
	Results        *resultstore.Store
	DefaultLevel   string
	MaxBodyChars   int
	RetrievalTopK  int
}

// NewGraph builds the Struggle Detector's Workflow Runtime graph:
// assemble -> classify -> {terminal(none) | retrieve -> synthesize ->
// terminal(lesson)}.
func NewGraph(p GraphParams) *engine.Graph {
	nodes := map[engine.NodeID]engine.Node{
		nodeAssembleWindow: {
			ID:  nodeAssembleWindow,
			Run: assembleWindowNode(p.Assembler),
		},
		nodeClassifyThresh: {
			ID:  nodeClassifyThresh,
			Run: classifyThresholdNode(p.Thresholds, p.Cooldown),
		},
		nodeRetrieveLesson: {
			ID:            nodeRetrieveLesson,
			Externalizing: true,
			Retry:         engine.DefaultRetryConfig(),
			Run:           retrieveLessonNode(p.Retrieval, p.RetrievalTopK),
		},
		nodeSynthesizeLesson: {
			ID:            nodeSynthesizeLesson,
			Externalizing: true,
			Retry:         engine.DefaultRetryConfig(),
			Run:           synthesizeLessonNode(p.Synthesizer, p.DefaultLevel, p.MaxBodyChars),
		},
		nodeTerminal: {
			ID:  nodeTerminal,
			Run: terminalNode(p.Results, p.Cooldown),
		},
	}

	return &engine.Graph{Name: "struggle_detector", Start: nodeAssembleWindow, Nodes: nodes}
}

// Reachable describes each Struggle Detector node's possible next hops,
// for engine.Graph.Validate's cycle check.
func Reachable() map[engine.NodeID][]engine.NodeID {
	return map[engine.NodeID][]engine.NodeID{
		nodeAssembleWindow:   {nodeClassifyThresh},
		nodeClassifyThresh:   {nodeRetrieveLesson, nodeTerminal},
		nodeRetrieveLesson:   {nodeSynthesizeLesson},
		nodeSynthesizeLesson: {nodeTerminal},
		nodeTerminal:         {engine.Terminal},
	}
}

func assembleWindowNode(a *Assembler) engine.NodeFunc {
	return func(ctx context.Context, state *engine.State) (engine.NodeID, error) {
		var update WindowUpdate
		if err := json.Unmarshal(state.Job.Payload, &update); err != nil {
			return engine.Terminal, apierr.Wrap(apierr.KindValidation, "decode window update", err)
		}

		now := time.Now()
		for _, e := range update.Edits {
			a.RecordEdit(update.SessionID, e)
		}
		for _, e := range update.Errors {
			a.RecordError(update.SessionID, e)
		}

		window := a.Snapshot(update.SessionID, now)
		state.Set("session_id", update.SessionID)
		state.Set("user_level", update.UserLevel)
		state.Set("window", window)
		return nodeClassifyThresh, nil
	}
}

func classifyThresholdNode(t Thresholds, cooldown *Cooldown) engine.NodeFunc {
	return func(ctx context.Context, state *engine.State) (engine.NodeID, error) {
		raw, _ := state.Get("window")
		window, ok := raw.(Window)
		if !ok {
			return engine.Terminal, apierr.Internal(fmt.Errorf("classifyThreshold: window missing from state"))
		}

		classification := Classify(window, t)
		now := time.Now()

		if classification.Triggered && classification.DominantSignature != "" &&
			cooldown.Active(window.SessionID, classification.DominantSignature, now) {
			classification.Triggered = false
		}

		state.Set("classification", classification)

		if !classification.Triggered {
			state.Set("triggered", false)
			return nodeTerminal, nil
		}

		state.Set("triggered", true)
		return nodeRetrieveLesson, nil
	}
}

func retrieveLessonNode(layer *retrieval.Layer, topK int) engine.NodeFunc {
	return func(ctx context.Context, state *engine.State) (engine.NodeID, error) {
		rawClass, _ := state.Get("classification")
		classification, _ := rawClass.(Classification)

		result, err := layer.Search(ctx, retrieval.Query{
			TenantID: state.Job.TenantID,
			Text:     classification.DominantSignature,
			Tags:     []string{"error_pattern=" + classification.DominantSignature},
			TopK:     topK,
		})
		if err != nil {
			if apierr.KindOf(err) == apierr.KindTransient {
				return engine.Terminal, err
			}
			state.Set("degraded", true)
			state.Set("chunks", []retrieval.SimilarChunk{})
			return nodeSynthesizeLesson, nil
		}

		state.Set("chunks", result.Chunks)
		return nodeSynthesizeLesson, nil
	}
}

func synthesizeLessonNode(synth Synthesizer, defaultLevel string, maxChars int) engine.NodeFunc {
	return func(ctx context.Context, state *engine.State) (engine.NodeID, error) {
		rawChunks, _ := state.Get("chunks")
		chunks, _ := rawChunks.([]retrieval.SimilarChunk)

		rawLevel, _ := state.Get("user_level")
		level, _ := rawLevel.(string)
		if level == "" {
			level = defaultLevel
		}

		rawClass, _ := state.Get("classification")
		classification, _ := rawClass.(Classification)

		body, err := synth.Synthesize(ctx, classification.DominantSignature, chunks, level, maxChars)
		if err != nil {
			return engine.Terminal, apierr.Wrap(apierr.KindDegraded, "synthesize lesson", err)
		}

		state.Set("lesson_body", body)
		return nodeTerminal, nil
	}
}

func terminalNode(store *resultstore.Store, cooldown *Cooldown) engine.NodeFunc {
	return func(ctx context.Context, state *engine.State) (engine.NodeID, error) {
		rawTriggered, _ := state.Get("triggered")
		triggered, _ := rawTriggered.(bool)

		if !triggered {
			return engine.Terminal, store.Put(ctx, noInterventionResult(state.Job.Fingerprint))
		}

		rawChunks, _ := state.Get("chunks")
		chunks, _ := rawChunks.([]retrieval.SimilarChunk)
		cited := make([]string, 0, len(chunks))
		for _, c := range chunks {
			cited = append(cited, c.Chunk.ID)
		}

		rawBody, _ := state.Get("lesson_body")
		body, _ := rawBody.(string)

		rawDegraded, _ := state.Get("degraded")
		degraded, _ := rawDegraded.(bool)

		rawClass, _ := state.Get("classification")
		classification, _ := rawClass.(Classification)

		rawSession, _ := state.Get("session_id")
		sessionID, _ := rawSession.(string)

		now := time.Now()
		iv := intervention.Intervention{
			Fingerprint: state.Job.Fingerprint,
			TenantID:    state.Job.TenantID,
			Kind:        intervention.KindLesson,
			Severity:    classification.Severity,
			Body:        body,
			CitedChunks: cited,
			Degraded:    degraded,
			ProducedAt:  now,
		}

		payload, err := json.Marshal(iv)
		if err != nil {
			return engine.Terminal, apierr.Internal(err)
		}

		if classification.DominantSignature != "" {
			cooldown.MarkFired(sessionID, classification.DominantSignature, now)
		}

		result := resultstore.Result{
			Fingerprint: state.Job.Fingerprint,
			Kind:        string(intervention.KindLesson),
			Payload:     payload,
			CompletedAt: now,
		}
		return engine.Terminal, store.Put(ctx, result)
	}
}

func noInterventionResult(fingerprint string) resultstore.Result {
	return resultstore.Result{
		Fingerprint: fingerprint,
		Kind:        "none",
		Payload:     json.RawMessage("null"),
		CompletedAt: time.Now(),
	}
}
