// Command aura-core is the Intervention Orchestrator's main binary: it
// wires the Session & Quota Store, Result Store, Workflow Runtime (with
// the Struggle Detector and Audit Pipeline graphs registered), the
// Gatekeeper, and the HTTP transport, then serves until SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	httptransport "github.com/ofircohen205/aura-sub001/api/http"
	"github.com/ofircohen205/aura-sub001/api"
	"github.com/ofircohen205/aura-sub001/audit"
	"github.com/ofircohen205/aura-sub001/config"
	"github.com/ofircohen205/aura-sub001/engine"
	"github.com/ofircohen205/aura-sub001/gatekeeper"
	"github.com/ofircohen205/aura-sub001/knowledge"
	"github.com/ofircohen205/aura-sub001/llm"
	"github.com/ofircohen205/aura-sub001/logging"
	"github.com/ofircohen205/aura-sub001/quota"
	"github.com/ofircohen205/aura-sub001/resultstore"
	"github.com/ofircohen205/aura-sub001/retrieval"
	"github.com/ofircohen205/aura-sub001/session"
	"github.com/ofircohen205/aura-sub001/telemetry"
)

var cfgPrefix string

var rootCmd = &cobra.Command{
	Use:   "aura-core",
	Short: "serves the Intervention Orchestrator's submitEdits/submitAudit/fetchLesson/refreshSession API",
	RunE:  runServer,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPrefix, "env-prefix", "AURA", "environment variable prefix for configuration")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPrefix)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log := logging.ServiceLogger(logging.New(logging.Config{
		Level:   logging.Level(cfg.Service.LogLevel),
		Format:  cfg.Service.LogFormat,
		Service: cfg.Service.Name,
		Version: cfg.Service.Version,
	}), cfg.Service.Name, cfg.Service.Version)

	redisOpts, err := redis.ParseURL(cfg.Store.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}

	knowledgeIndex, err := knowledge.Open(cfg.Store.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open knowledge index: %w", err)
	}

	archive, err := audit.NewArchiveRepository(context.Background(), cfg.Store.CouchDBURL, cfg.Store.CouchDBName)
	if err != nil {
		return fmt.Errorf("open diff archive: %w", err)
	}

	llmClient := llm.New(llm.Config{
		BaseURL:            os.Getenv(cfgPrefix + "_LLM_BASE_URL"),
		APIKey:             os.Getenv(cfgPrefix + "_LLM_API_KEY"),
		EmbeddingModel:     os.Getenv(cfgPrefix + "_LLM_EMBEDDING_MODEL"),
		CompletionModel:    os.Getenv(cfgPrefix + "_LLM_COMPLETION_MODEL"),
		EmbeddingDimension: cfg.Tunables.EmbeddingDimension,
	})

	retrievalLayer, err := retrieval.NewLayer(llmClient, knowledgeIndex, 4096, cfg.Tunables.RetrievalTopKDefault)
	if err != nil {
		return fmt.Errorf("build retrieval layer: %w", err)
	}

	issuer := session.NewTokenIssuer(cfg.Session.SigningSecret, cfg.Session.AccessTokenTTL, cfg.Session.Issuer)
	sessions := session.NewStore(redisClient, issuer, cfg.Session.RefreshTokenTTL)
	quotaStore := quota.NewStore(redisClient, time.Hour)
	inflight := quota.NewInflightRegistry(redisClient)
	results := resultstore.NewStore(redisClient, cfg.Tunables.CoalescenceTTL())

	queue := engine.NewQueue(redisClient, "aura:")
	checkpoints := engine.NewCheckpointStore(redisClient, cfg.Tunables.Window())

	assembler := telemetry.NewAssembler(cfg.Tunables.Window())
	cooldown := telemetry.NewCooldown(cfg.Tunables.Cooldown())

	graphs := map[string]*engine.Graph{
		api.KindStruggle: telemetry.NewGraph(telemetry.GraphParams{
			Assembler: assembler,
			Cooldown:  cooldown,
			Thresholds: telemetry.Thresholds{
				EditFreqMin:       cfg.Tunables.EditFreqMin,
				DistinctErrorsMin: cfg.Tunables.DistinctErrorsMin,
			},
			Retrieval:     retrievalLayer,
			Synthesizer:   llmClient,
			Results:       results,
			DefaultLevel:  "intermediate",
			MaxBodyChars:  2000,
			RetrievalTopK: cfg.Tunables.RetrievalTopKDefault,
		}),
		api.KindAudit: audit.NewGraph(audit.GraphParams{
			Rules:               audit.DefaultRules(),
			Retrieval:           retrievalLayer,
			Archive:             archive,
			Results:             results,
			ConfidenceThreshold: cfg.Tunables.VerdictConfidenceThreshold,
			RetrievalTopK:       cfg.Tunables.RetrievalTopKDefault,
		}),
	}

	if err := validateGraphs(graphs); err != nil {
		return fmt.Errorf("invalid graph configuration: %w", err)
	}

	runtime := engine.NewRuntime(queue, checkpoints, graphs, cfg.Tunables.CancellationGrace(), log)
	runtime.Start(4)
	defer runtime.Stop()

	gate := gatekeeper.New(sessions, quotaStore, inflight, results, runtime, map[string]gatekeeper.Normalizer{
		api.KindStruggle: telemetry.NormalizeWindowBounds,
		api.KindAudit:    audit.Canonicalize,
	}, cfg.Tunables.CoalescenceTTL(), cfg.Tunables.MaxInflightPerTenant, cfg.Tunables.MaxInflightGlobal)

	server := api.NewServer(gate, results, sessions, cfg.Tunables)
	adapter := httptransport.NewAdapter(server, issuer, cfg.Server, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).Info("aura-core starting")
	return adapter.Start(ctx)
}

func validateGraphs(graphs map[string]*engine.Graph) error {
	reachable := map[string]map[engine.NodeID][]engine.NodeID{
		"struggle": telemetry.Reachable(),
		"audit":    audit.Reachable(),
	}
	for kind, graph := range graphs {
		if err := graph.Validate(reachable[kind]); err != nil {
			return fmt.Errorf("kind %s: %w", kind, err)
		}
	}
	return nil
}
