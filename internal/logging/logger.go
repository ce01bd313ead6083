// Package logging provides categorized structured logging for the validator.
// Each subsystem logs through its own Category so output can be filtered per
// category; the backend is a single zap logger configured at startup.
// Until Initialize or SetBase is called every logger is a no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot    Category = "boot"    // Startup, config loading
	CategoryCLI     Category = "cli"     // Command handling, console output
	CategoryLoader  Category = "loader"  // Data point loading and validation
	CategoryStaging Category = "staging" // Dataset/prediction file staging
	CategoryHarness Category = "harness" // Evaluation harness invocation
	CategoryReport  Category = "report"  // Report interpretation
	CategoryStore   Category = "store"   // Validation history database
	CategoryTactile Category = "tactile" // Process execution
)

// Options mirrors the relevant parts of config.LoggingConfig
// to avoid circular imports
type Options struct {
	Level      string          // debug, info, warn, error
	JSONFormat bool            // JSON encoder instead of console
	File       string          // Optional log file, in addition to stderr
	Categories map[string]bool // Per-category toggles, missing = enabled
}

// Logger is a category-scoped logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	base      = zap.NewNop()
	opts      Options
	baseMu    sync.RWMutex
)

// Initialize builds the zap backend from opts. verbose forces debug level.
func Initialize(o Options, verbose bool) error {
	level := zapcore.InfoLevel
	if o.Level != "" {
		if err := level.UnmarshalText([]byte(o.Level)); err != nil {
			return fmt.Errorf("invalid log level %q: %w", o.Level, err)
		}
	}
	if verbose {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if !o.JSONFormat {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.Sampling = nil
	}
	if o.File != "" {
		if err := os.MkdirAll(filepath.Dir(o.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		cfg.OutputPaths = append(cfg.OutputPaths, o.File)
	}

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	baseMu.Lock()
	opts = o
	baseMu.Unlock()
	SetBase(l)

	Boot("logging initialized (level=%s json=%v file=%q)", level, o.JSONFormat, o.File)
	return nil
}

// SetBase replaces the zap backend. Category loggers are rebuilt lazily.
func SetBase(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	baseMu.Lock()
	base = l
	baseMu.Unlock()

	loggersMu.Lock()
	loggers = make(map[Category]*Logger)
	loggersMu.Unlock()
}

// Base returns the zap backend.
func Base() *zap.Logger {
	baseMu.RLock()
	defer baseMu.RUnlock()
	return base
}

// Sync flushes buffered entries. Errors from syncing stderr are ignored.
func Sync() {
	_ = Base().Sync()
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	baseMu.RLock()
	defer baseMu.RUnlock()

	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := loggers[category]; ok {
		return l
	}

	zl := zap.NewNop()
	if IsCategoryEnabled(category) {
		zl = Base().With(zap.String("category", string(category)))
	}
	l := &Logger{category: category, sugar: zl.Sugar()}
	loggers[category] = l
	return l
}

// Category returns the logger's category.
func (l *Logger) Category() Category {
	return l.category
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// With returns a logger carrying additional structured key-value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// WithRequestID creates a request-scoped logger carrying a correlation ID
func WithRequestID(category Category, requestID string) *Logger {
	return Get(category).With("req", requestID)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }

func CLI(format string, args ...interface{})      { Get(CategoryCLI).Info(format, args...) }
func CLIDebug(format string, args ...interface{}) { Get(CategoryCLI).Debug(format, args...) }
func CLIWarn(format string, args ...interface{})  { Get(CategoryCLI).Warn(format, args...) }

func Loader(format string, args ...interface{})      { Get(CategoryLoader).Info(format, args...) }
func LoaderDebug(format string, args ...interface{}) { Get(CategoryLoader).Debug(format, args...) }
func LoaderWarn(format string, args ...interface{})  { Get(CategoryLoader).Warn(format, args...) }

func Staging(format string, args ...interface{})      { Get(CategoryStaging).Info(format, args...) }
func StagingDebug(format string, args ...interface{}) { Get(CategoryStaging).Debug(format, args...) }
func StagingWarn(format string, args ...interface{})  { Get(CategoryStaging).Warn(format, args...) }

func Harness(format string, args ...interface{})      { Get(CategoryHarness).Info(format, args...) }
func HarnessDebug(format string, args ...interface{}) { Get(CategoryHarness).Debug(format, args...) }
func HarnessWarn(format string, args ...interface{})  { Get(CategoryHarness).Warn(format, args...) }
func HarnessError(format string, args ...interface{}) { Get(CategoryHarness).Error(format, args...) }

func Report(format string, args ...interface{})      { Get(CategoryReport).Info(format, args...) }
func ReportDebug(format string, args ...interface{}) { Get(CategoryReport).Debug(format, args...) }
func ReportWarn(format string, args ...interface{})  { Get(CategoryReport).Warn(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }
func StoreWarn(format string, args ...interface{})  { Get(CategoryStore).Warn(format, args...) }

func Tactile(format string, args ...interface{})      { Get(CategoryTactile).Info(format, args...) }
func TactileDebug(format string, args ...interface{}) { Get(CategoryTactile).Debug(format, args...) }
func TactileWarn(format string, args ...interface{})  { Get(CategoryTactile).Warn(format, args...) }
func TactileError(format string, args ...interface{}) { Get(CategoryTactile).Error(format, args...) }

// =============================================================================
// TIMING HELPERS - For performance logging
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithInfo ends the timer and logs at info level
func (t *Timer) StopWithInfo() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Info("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
