package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"memkernel/internal/memory"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection and graph counters",
	RunE:  runStats,
}

var inferKind string

var inferCmd = &cobra.Command{
	Use:   "infer [id]",
	Short: "Manually trigger relationship inference for a memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfer,
}

var migrateDim int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Destructively reset the vector collection for a new embedding dimension",
	RunE:  runMigrate,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler and block until interrupted",
	Long: `serve boots the kernel and starts every configured background job
(relationship inference, adaptive importance, consolidation, and the rest of
the scheduler's registry), running until SIGINT/SIGTERM.`,
	RunE: runServe,
}

func init() {
	inferCmd.Flags().StringVar(&inferKind, "kind", "all", "all|semantic|temporal|causal|error-solution")
	migrateCmd.Flags().IntVar(&migrateDim, "dim", 768, "New dense vector dimension")
	migrateCmd.MarkFlagRequired("dim")
}

func runStats(cmd *cobra.Command, args []string) error {
	k, err := buildKernel()
	if err != nil {
		return err
	}
	defer k.close()

	s, err := k.collection.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	printResult(s)
	return nil
}

func runInfer(cmd *cobra.Command, args []string) error {
	k, err := buildKernel()
	if err != nil {
		return err
	}
	defer k.close()

	rels, err := k.collection.RunInference(cmd.Context(), memory.InferenceKind(inferKind), args[0])
	if err != nil {
		return fmt.Errorf("infer: %w", err)
	}
	printResult(rels)
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	k, err := buildKernel()
	if err != nil {
		return err
	}
	defer k.close()

	if err := k.collection.Migrate(cmd.Context(), migrateDim); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Println("migrated to dim", migrateDim)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	k, err := buildKernel()
	if err != nil {
		return err
	}
	defer k.close()

	k.scheduler.StartAll()
	logger.Info("scheduler started, serving until interrupted", zap.String("database_path", k.cfg.DatabasePath))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down scheduler")
	k.scheduler.StopAll()
	return nil
}
