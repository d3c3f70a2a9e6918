// Package logging provides categorized zap logging for the research server.
// stdout carries the JSON-RPC stream, so all log output goes to stderr or to
// the file named by the --log flag. Before Init the package is a no-op, which
// keeps library tests quiet.
package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a server subsystem for log attribution.
type Category string

const (
	CategoryStore    Category = "store"
	CategorySession  Category = "session"
	CategoryEngine   Category = "engine"
	CategoryDecision Category = "decision"
	CategoryExtract  Category = "extract"
	CategoryCache    Category = "cache"
	CategoryBatch    Category = "batch"
	CategoryPipeline Category = "pipeline"
	CategoryIngest   Category = "ingest"
	CategoryServer   Category = "server"
	CategoryConfig   Category = "config"
)

var (
	mu   sync.RWMutex
	root = zap.NewNop()
)

// Init installs the process-wide logger. An empty logFile logs to stderr.
func Init(logFile string, verbose bool) error {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	if logFile != "" {
		cfg.OutputPaths = []string{logFile}
	}
	cfg.ErrorOutputPaths = cfg.OutputPaths
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return err
	}
	mu.Lock()
	root = logger
	mu.Unlock()
	return nil
}

// SetLogger replaces the process logger. Tests use this with zap.NewNop or
// zaptest loggers.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	root = l
	mu.Unlock()
}

// Sync flushes buffered log entries. Called from the CLI's post-run hook.
func Sync() {
	mu.RLock()
	l := root
	mu.RUnlock()
	_ = l.Sync()
}

// Get returns the sugared logger for a category.
func Get(c Category) *zap.SugaredLogger {
	mu.RLock()
	l := root
	mu.RUnlock()
	return l.Named(string(c)).Sugar()
}

// Convenience accessors for the common categories.

func Store() *zap.SugaredLogger    { return Get(CategoryStore) }
func Session() *zap.SugaredLogger  { return Get(CategorySession) }
func Engine() *zap.SugaredLogger   { return Get(CategoryEngine) }
func Decision() *zap.SugaredLogger { return Get(CategoryDecision) }
func Extract() *zap.SugaredLogger  { return Get(CategoryExtract) }
func Cache() *zap.SugaredLogger    { return Get(CategoryCache) }
func Batch() *zap.SugaredLogger    { return Get(CategoryBatch) }
func Pipeline() *zap.SugaredLogger { return Get(CategoryPipeline) }
func Ingest() *zap.SugaredLogger   { return Get(CategoryIngest) }
func Server() *zap.SugaredLogger   { return Get(CategoryServer) }
func Config() *zap.SugaredLogger   { return Get(CategoryConfig) }

// Timer measures one operation and reports its duration at debug level.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(c Category, op string) *Timer {
	return &Timer{category: c, op: op, start: time.Now()}
}

// Stop reports the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.start)
	Get(t.category).Debugw("operation complete", "op", t.op, "duration_ms", d.Milliseconds())
	return d
}
