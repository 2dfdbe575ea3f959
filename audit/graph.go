package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ofircohen205/aura-sub001/apierr"
	"github.com/ofircohen205/aura-sub001/engine"
	"github.com/ofircohen205/aura-sub001/intervention"
	"github.com/ofircohen205/aura-sub001/resultstore"
	"github.com/ofircohen205/aura-sub001/retrieval"
)

const (
	nodeParseDiff          engine.NodeID = "parseDiff"
	nodePrefilterRules     engine.NodeID = "prefilterRules"
	nodeRetrieveGoldenPath engine.NodeID = "retrieveGoldenPath"
	nodeVerdict            engine.NodeID = "verdict"
	nodeComposeRemediation engine.NodeID = "composeRemediation"
	nodeTerminal           engine.NodeID = "terminal"
)

// AuditPayload is the submitAudit request body: the raw unified diff to
// evaluate.
type AuditPayload struct {
	Raw []byte `json:"raw"`
}

// GraphParams collects the Audit Pipeline's dependencies.
type GraphParams struct {
	Rules               []Rule
	Retrieval           *retrieval.Layer
	Archive             *ArchiveRepository
	Results             *resultstore.Store
	ConfidenceThreshold float64
	RetrievalTopK       int
}

// NewGraph builds the Audit Pipeline's Workflow Runtime graph: parse ->
// prefilter -> retrieve -> verdict -> remediate -> terminal.
func NewGraph(p GraphParams) *engine.Graph {
	nodes := map[engine.NodeID]engine.Node{
		nodeParseDiff: {
			ID:  nodeParseDiff,
			Run: parseDiffNode(),
		},
		nodePrefilterRules: {
			ID:  nodePrefilterRules,
			Run: prefilterRulesNode(p.Rules),
		},
		nodeRetrieveGoldenPath: {
			ID:            nodeRetrieveGoldenPath,
			Externalizing: true,
			Retry:         engine.DefaultRetryConfig(),
			Run:           retrieveGoldenPathNode(p.Retrieval, p.RetrievalTopK),
		},
		nodeVerdict: {
			ID:  nodeVerdict,
			Run: verdictNode(p.ConfidenceThreshold),
		},
		nodeComposeRemediation: {
			ID:  nodeComposeRemediation,
			Run: composeRemediationNode(),
		},
		nodeTerminal: {
			ID:            nodeTerminal,
			Externalizing: true,
			Run:           terminalNode(p.Results, p.Archive),
		},
	}

	return &engine.Graph{Name: "audit_pipeline", Start: nodeParseDiff, Nodes: nodes}
}

// Reachable describes each Audit Pipeline node's possible next hops, for
// engine.Graph.Validate's cycle check.
func Reachable() map[engine.NodeID][]engine.NodeID {
	return map[engine.NodeID][]engine.NodeID{
		nodeParseDiff:          {nodePrefilterRules},
		nodePrefilterRules:     {nodeRetrieveGoldenPath, nodeTerminal},
		nodeRetrieveGoldenPath: {nodeVerdict},
		nodeVerdict:            {nodeComposeRemediation},
		nodeComposeRemediation: {nodeTerminal},
		nodeTerminal:           {engine.Terminal},
	}
}

func parseDiffNode() engine.NodeFunc {
	return func(ctx context.Context, state *engine.State) (engine.NodeID, error) {
		var payload AuditPayload
		if err := json.Unmarshal(state.Job.Payload, &payload); err != nil {
			return engine.Terminal, apierr.Wrap(apierr.KindValidation, "decode audit payload", err)
		}

		diff, err := ParseDiff(payload.Raw)
		if err != nil {
			return engine.Terminal, err
		}

		state.Set("diff", diff)
		state.Set("raw_diff", string(payload.Raw))
		return nodePrefilterRules, nil
	}
}

func prefilterRulesNode(rules []Rule) engine.NodeFunc {
	return func(ctx context.Context, state *engine.State) (engine.NodeID, error) {
		rawDiff, _ := state.Get("diff")
		diff, ok := rawDiff.(*Diff)
		if !ok {
			return engine.Terminal, apierr.Internal(nil)
		}

		candidates := PrefilterRules(diff, rules)
		state.Set("candidates", candidates)

		if len(candidates) == 0 {
			state.Set("accepted", []intervention.Candidate{})
			return nodeTerminal, nil
		}
		return nodeRetrieveGoldenPath, nil
	}
}

func retrieveGoldenPathNode(layer *retrieval.Layer, topK int) engine.NodeFunc {
	return func(ctx context.Context, state *engine.State) (engine.NodeID, error) {
		rawCandidates, _ := state.Get("candidates")
		candidates, _ := rawCandidates.([]PrefilterCandidate)

		chunksByCandidate := make([][]retrieval.SimilarChunk, len(candidates))
		degraded := false

		for i, c := range candidates {
			result, err := layer.Search(ctx, retrieval.Query{
				TenantID: state.Job.TenantID,
				Text:     c.RuleID + " " + c.Explanation,
				Tags:     []string{"rule=" + c.RuleID},
				TopK:     topK,
			})
			if err != nil {
				if apierr.KindOf(err) == apierr.KindTransient {
					return engine.Terminal, err
				}
				degraded = true
				continue
			}
			chunksByCandidate[i] = result.Chunks
		}

		state.Set("chunks_by_candidate", chunksByCandidate)
		state.Set("degraded", degraded)
		return nodeVerdict, nil
	}
}

func verdictNode(confidenceThreshold float64) engine.NodeFunc {
	return func(ctx context.Context, state *engine.State) (engine.NodeID, error) {
		rawCandidates, _ := state.Get("candidates")
		candidates, _ := rawCandidates.([]PrefilterCandidate)

		rawChunks, _ := state.Get("chunks_by_candidate")
		chunksByCandidate, _ := rawChunks.([][]retrieval.SimilarChunk)

		resolved := make([]intervention.Candidate, 0, len(candidates))
		for i, c := range candidates {
			var chunks []retrieval.SimilarChunk
			if i < len(chunksByCandidate) {
				chunks = chunksByCandidate[i]
			}
			resolved = append(resolved, Verdict(c, chunks, confidenceThreshold))
		}

		state.Set("resolved", resolved)
		return nodeComposeRemediation, nil
	}
}

func composeRemediationNode() engine.NodeFunc {
	return func(ctx context.Context, state *engine.State) (engine.NodeID, error) {
		rawResolved, _ := state.Get("resolved")
		resolved, _ := rawResolved.([]intervention.Candidate)

		rawChunks, _ := state.Get("chunks_by_candidate")
		chunksByCandidate, _ := rawChunks.([][]retrieval.SimilarChunk)

		accepted := make([]intervention.Candidate, 0, len(resolved))
		for i := range resolved {
			if resolved[i].Dismissed {
				continue
			}
			var chunks []retrieval.SimilarChunk
			if i < len(chunksByCandidate) {
				chunks = chunksByCandidate[i]
			}
			ComposeRemediation(&resolved[i], chunks)
			accepted = append(accepted, resolved[i])
		}

		intervention.SortCandidates(accepted)
		state.Set("accepted", accepted)
		return nodeTerminal, nil
	}
}

func terminalNode(store *resultstore.Store, archive *ArchiveRepository) engine.NodeFunc {
	return func(ctx context.Context, state *engine.State) (engine.NodeID, error) {
		rawAccepted, _ := state.Get("accepted")
		accepted, _ := rawAccepted.([]intervention.Candidate)

		rawDiff, _ := state.Get("diff")
		diff, _ := rawDiff.(*Diff)

		cited := make([]string, 0)
		for _, c := range accepted {
			cited = append(cited, c.CitedChunks...)
		}

		now := time.Now()
		iv := intervention.Intervention{
			Fingerprint: state.Job.Fingerprint,
			TenantID:    state.Job.TenantID,
			Kind:        intervention.KindViolationReport,
			CitedChunks: cited,
			ProducedAt:  now,
		}
		if len(accepted) > 0 {
			iv.Severity = accepted[0].Severity
		}

		body, err := json.Marshal(accepted)
		if err != nil {
			return engine.Terminal, apierr.Internal(err)
		}
		iv.Body = string(body)

		payload, err := json.Marshal(iv)
		if err != nil {
			return engine.Terminal, apierr.Internal(err)
		}

		if err := store.Put(ctx, resultstore.Result{
			Fingerprint: state.Job.Fingerprint,
			Kind:        string(intervention.KindViolationReport),
			Payload:     payload,
			CompletedAt: now,
		}); err != nil {
			return engine.Terminal, err
		}

		if diff != nil && archive != nil {
			rawDiffStr, _ := state.Get("raw_diff")
			raw, _ := rawDiffStr.(string)
			artifact := DiffArtifact{
				TenantID:     state.Job.TenantID,
				Fingerprint:  state.Job.Fingerprint,
				BaseHash:     diff.BaseHash,
				NewHash:      diff.NewHash,
				Raw:          raw,
				ReportResult: string(payload),
			}
			if err := archive.Save(ctx, artifact); err != nil {
				return engine.Terminal, err
			}
		}

		return engine.Terminal, nil
	}
}
