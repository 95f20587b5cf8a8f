// Command memkernctl is an operator CLI over the memory kernel: it assembles
// a Collection from its concrete adapters and exposes every Collection
// operation as a subcommand, for manual smoke-testing and ops scripts.
//
// This file serves as the entry point and dependency-wiring hub. Individual
// command groups live in cmd_*.go files, following the teacher's
// command-per-file layout.
//
// # File Index
//
//   - main.go        - entry point, rootCmd, global flags, buildKernel()
//   - cmd_store.go   - storeCmd, getCmd, updateCmd, forgetCmd, bulkStoreCmd
//   - cmd_search.go  - searchCmd
//   - cmd_lifecycle.go - pinCmd, archiveCmd, resolveCmd
//   - cmd_graph.go   - linkCmd, relatedCmd
//   - cmd_admin.go   - statsCmd, inferCmd, migrateCmd, serveCmd
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"memkernel/internal/embedding"
	"memkernel/internal/graphstore"
	"memkernel/internal/inference"
	"memkernel/internal/kernelconfig"
	"memkernel/internal/lifecycle"
	"memkernel/internal/memory"
	"memkernel/internal/querycache"
	"memkernel/internal/reranker"
	"memkernel/internal/scheduler"
	"memkernel/internal/scoring"
	"memkernel/internal/session"
	"memkernel/internal/telemetry"
	"memkernel/internal/vectorstore"
)

var (
	// Global flags
	verbose    bool
	cfgPath    string
	dbPath     string
	jsonOutput bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "memkernctl",
	Short: "Operator CLI for the memory kernel",
	Long: `memkernctl drives the memory kernel's write, read, lifecycle, and
graph operations directly against a local store, for smoke-testing and
scripted operations. It is not a server; see "memkernctl serve" for the
always-on scheduler process.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.Init(verbose)
		logger = telemetry.Get(telemetry.CategoryCollection).Desugar()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		telemetry.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug-level logging")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to kernel config YAML (default: built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Override database_path from config")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON output")

	rootCmd.AddCommand(
		storeCmd,
		getCmd,
		updateCmd,
		forgetCmd,
		bulkStoreCmd,
		searchCmd,
		pinCmd,
		archiveCmd,
		resolveCmd,
		linkCmd,
		relatedCmd,
		statsCmd,
		inferCmd,
		migrateCmd,
		serveCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "memkernctl:", err)
		os.Exit(1)
	}
}

// kernel bundles everything a subcommand needs plus a close function.
type kernel struct {
	collection *memory.Collection
	scheduler  *scheduler.Scheduler
	cfg        kernelconfig.Config
	close      func() error
}

// buildKernel loads configuration, opens the SQLite-backed stores, and wires
// every component into a Collection, mirroring the teacher's
// GetOrBootCortex boot sequence in internal/system.
func buildKernel() (*kernel, error) {
	cfg, err := kernelconfig.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	vecPath := cfg.DatabasePath
	graphPath := cfg.DatabasePath + ".graph"

	vs, err := vectorstore.Open(vecPath, cfg.Embedding.DenseDim)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	var gs memory.GraphStore
	var gsAdapter *graphstore.SQLiteAdapter
	if cfg.GraphEnabled {
		gsAdapter, err = graphstore.Open(graphPath)
		if err != nil {
			_ = vs.Close()
			return nil, fmt.Errorf("open graph store: %w", err)
		}
		gs = gsAdapter
	}

	denseEngine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		TaskType:       cfg.Embedding.TaskType,
	})
	if err != nil {
		_ = vs.Close()
		if gsAdapter != nil {
			_ = gsAdapter.Close()
		}
		return nil, fmt.Errorf("build embedding engine: %w", err)
	}
	provider := embedding.NewProvider(denseEngine)
	provider.SetDocumentFrequencyProvider(vs)

	var cache memory.Cache
	if cfg.Cache.SimilarityThreshold > 0 {
		cache = querycache.New(querycache.Config{
			SimilarityThreshold: cfg.Cache.SimilarityThreshold,
			TTL:                 time.Duration(cfg.Cache.TTLSeconds) * time.Second,
			MaxEntries:          cfg.Cache.MaxEntries,
		})
	}

	var rr memory.Reranker
	if cfg.Reranking.Enabled {
		rr = reranker.New(provider)
	}

	inf := inference.New()
	inf.SetFloors(cfg.Inference.SemanticFloor, cfg.Inference.FixesFloor)
	scorer := scoring.New()
	lc := lifecycle.New()
	tracker := session.New()

	mcfg := memory.DefaultConfig()
	mcfg.UseQueryUnderstanding = cfg.UseQueryUnderstanding
	mcfg.GraphEnabled = cfg.GraphEnabled

	col := memory.New(provider, vs, gs, cache, rr, inf, scorer, lc, tracker, mcfg)

	sched := scheduler.New()
	meta := session.NewMetaLearner()
	meta.Seed(cfg.Cache.SimilarityThreshold, cfg.Inference.SemanticFloor, cfg.EmotionalThreshold)
	deps := scheduler.Deps{
		VectorStore: vs,
		GraphStore:  gs,
		Embedder:    provider,
		Cache:       cache,
		Inference:   inf,
		Scorer:      scorer,
		Lifecycle:   lc,
		MetaLearner: meta,
	}
	registerJobs(sched, cfg, deps)

	return &kernel{
		collection: col,
		scheduler:  sched,
		cfg:        cfg,
		close: func() error {
			var errs []error
			if err := vs.Close(); err != nil {
				errs = append(errs, err)
			}
			if gsAdapter != nil {
				if err := gsAdapter.Close(); err != nil {
					errs = append(errs, err)
				}
			}
			if len(errs) > 0 {
				return errs[0]
			}
			return nil
		},
	}, nil
}

// registerJobs wires all nine scheduled jobs with the intervals named in
// config, skipping any whose duration is non-positive.
func registerJobs(sched *scheduler.Scheduler, cfg kernelconfig.Config, deps scheduler.Deps) {
	factories := map[string]func(scheduler.Deps) scheduler.JobFunc{
		"relationship_inference": scheduler.RelationshipInferenceJob,
		"adaptive_importance":    scheduler.AdaptiveImportanceJob,
		"utility_archival":       scheduler.UtilityArchivalJob,
		"consolidation":          scheduler.ConsolidationJob,
		"spaced_repetition":      scheduler.SpacedRepetitionJob,
		"memory_replay":          scheduler.MemoryReplayJob,
		"emotional_analysis":     scheduler.EmotionalAnalysisJob,
		"interference_detection": scheduler.InterferenceDetectionJob,
		"meta_learning":          scheduler.MetaLearningJob,
	}
	for name, factory := range factories {
		secs, ok := cfg.Scheduler.IntervalsSecs[name]
		if !ok || secs <= 0 {
			continue
		}
		sched.Register(name, time.Duration(secs)*time.Second, factory(deps))
	}
}
