// Package telemetry provides categorized, structured logging for the memory
// kernel. Every subsystem logs through a named category, recorded as the
// "component" field of each line; verbosity is one process-wide setting
// chosen by Init.
package telemetry

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies which kernel subsystem a log line belongs to.
type Category string

const (
	CategoryEmbedding   Category = "embedding"
	CategoryVectorStore Category = "vectorstore"
	CategoryGraphStore  Category = "graphstore"
	CategoryCache       Category = "querycache"
	CategoryCollection  Category = "memory"
	CategoryReranker    Category = "reranker"
	CategoryInference   Category = "inference"
	CategoryScoring     Category = "scoring"
	CategoryLifecycle   Category = "lifecycle"
	CategoryScheduler   Category = "scheduler"
	CategorySession     Category = "session"
)

var (
	mu       sync.RWMutex
	base     *zap.Logger
	loggers  = make(map[Category]*zap.SugaredLogger)
	initOnce sync.Once
)

// Init configures the process-wide base logger. debug=true enables
// debug-level, human-readable console output; otherwise the kernel logs
// structured JSON at info level, suitable for ingestion by a log pipeline.
// Safe to call multiple times; only the first call takes effect.
func Init(debug bool) {
	initOnce.Do(func() {
		var cfg zap.Config
		if debug {
			cfg = zap.NewDevelopmentConfig()
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		} else {
			cfg = zap.NewProductionConfig()
			cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		}
		logger, err := cfg.Build()
		if err != nil {
			// Fall back to a no-op-safe logger; logging must never crash the kernel.
			logger = zap.NewNop()
			os.Stderr.WriteString("telemetry: failed to build zap logger: " + err.Error() + "\n")
		}
		mu.Lock()
		base = logger
		mu.Unlock()
	})
}

// Get returns the logger for a category, creating it (as a child of the base
// logger tagged with "component") on first use. If Init has not been called,
// Get lazily initializes a production-mode base logger.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	l, ok := loggers[cat]
	b := base
	mu.RUnlock()
	if ok {
		return l
	}
	if b == nil {
		Init(false)
		mu.RLock()
		b = base
		mu.RUnlock()
	}

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	sugared := b.With(zap.String("component", string(cat))).Sugar()
	loggers[cat] = sugared
	return sugared
}

// Sync flushes any buffered log entries. Call during graceful shutdown.
func Sync() {
	mu.RLock()
	b := base
	mu.RUnlock()
	if b != nil {
		_ = b.Sync()
	}
}
