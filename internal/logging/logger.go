// Package logging provides config-driven categorized logging for argus.
// Logs are written as JSON lines to <dir>/argus.log so they never interleave
// with the terminal UI. When debug mode is off every logger is a no-op.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, reset handshake
	CategoryConfig    Category = "config"    // Config load and hot reload
	CategoryAPI       Category = "api"       // Backend HTTP calls
	CategoryStream    Category = "stream"    // Streamed reply consumption
	CategorySession   Category = "session"   // Transcript and attachment state
	CategoryUpload    Category = "upload"    // Attachment uploads
	CategoryMetrics   Category = "metrics"   // Dashboard polling and simulation log
	CategoryUI        Category = "ui"        // TUI dispatch loop
	CategoryDevServer Category = "devserver" // Bundled development backend
)

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Dir        string
	DebugMode  bool
	Level      string
	Categories map[string]bool
}

// Logger is a category-scoped sugared zap logger.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	opts    Options
	file    *os.File
	loggers = make(map[Category]*Logger)
)

// Initialize builds the file-backed root logger. With DebugMode off it
// installs a no-op logger and touches nothing on disk.
func Initialize(o Options) error {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()
	opts = o
	loggers = make(map[Category]*Logger)

	if !o.DebugMode {
		base = zap.NewNop()
		return nil
	}
	if o.Dir == "" {
		return fmt.Errorf("log directory required")
	}
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(o.Dir, "argus.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	file = f

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), ParseLevel(o.Level))
	base = zap.New(core)

	base.Info("logging initialized", zap.String("cat", string(CategoryBoot)), zap.String("dir", o.Dir), zap.String("level", o.Level))
	return nil
}

// Use installs an externally built logger (CLI subcommands log to stderr).
func Use(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	if l == nil {
		l = zap.NewNop()
	}
	base = l
	opts = Options{DebugMode: true}
	loggers = make(map[Category]*Logger)
}

// ParseLevel maps a config level string onto a zap level. Unknown values are info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// IsDebugMode returns whether logging is enabled at all.
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return opts.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled.
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if !opts.DebugMode {
		return false
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Disabled categories get a no-op logger.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	zl := zap.NewNop()
	if categoryEnabledLocked(category) {
		zl = base.With(zap.String("cat", string(category)))
	}
	l := &Logger{category: category, sugar: zl.Sugar()}
	loggers[category] = l
	return l
}

// Zap exposes the underlying structured logger for field-based calls.
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{}) { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

// CloseAll flushes and closes the log file (call at shutdown).
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	base = zap.NewNop()
	loggers = make(map[Category]*Logger)
}

func closeLocked() {
	_ = base.Sync()
	if file != nil {
		_ = file.Close()
		file = nil
	}
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }
func BootWarn(format string, args ...interface{}) { Get(CategoryBoot).Warn(format, args...) }
func Config(format string, args ...interface{}) { Get(CategoryConfig).Info(format, args...) }
func ConfigWarn(format string, args ...interface{}) { Get(CategoryConfig).Warn(format, args...) }

func API(format string, args ...interface{}) { Get(CategoryAPI).Info(format, args...) }
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }
func APIWarn(format string, args ...interface{}) { Get(CategoryAPI).Warn(format, args...) }
func APIError(format string, args ...interface{}) { Get(CategoryAPI).Error(format, args...) }

func Stream(format string, args ...interface{}) { Get(CategoryStream).Info(format, args...) }
func StreamDebug(format string, args ...interface{}) { Get(CategoryStream).Debug(format, args...) }
func StreamWarn(format string, args ...interface{}) { Get(CategoryStream).Warn(format, args...) }

func Session(format string, args ...interface{}) { Get(CategorySession).Info(format, args...) }
func SessionDebug(format string, args ...interface{}) { Get(CategorySession).Debug(format, args...) }

func Upload(format string, args ...interface{}) { Get(CategoryUpload).Info(format, args...) }
func UploadError(format string, args ...interface{}) { Get(CategoryUpload).Error(format, args...) }

func Metrics(format string, args ...interface{}) { Get(CategoryMetrics).Info(format, args...) }
func MetricsWarn(format string, args ...interface{}) { Get(CategoryMetrics).Warn(format, args...) }
func MetricsDebug(format string, args ...interface{}) { Get(CategoryMetrics).Debug(format, args...) }

func UI(format string, args ...interface{}) { Get(CategoryUI).Info(format, args...) }
func UIDebug(format string, args ...interface{}) { Get(CategoryUI).Debug(format, args...) }

func DevServer(format string, args ...interface{}) { Get(CategoryDevServer).Info(format, args...) }
func DevServerWarn(format string, args ...interface{}) { Get(CategoryDevServer).Warn(format, args...) }

// =============================================================================
// REQUEST-SCOPED LOGGING
// =============================================================================

// RequestLogger provides request-scoped logging with a correlation ID
type RequestLogger struct {
	sugar *zap.SugaredLogger
}

// WithRequestID creates a request-scoped logger. The ID matches the
// X-Request-ID header sent to the backend.
func WithRequestID(category Category, requestID string) *RequestLogger {
	return &RequestLogger{sugar: Get(category).sugar.With("req", requestID)}
}

// WithField adds a field to the request logger
func (r *RequestLogger) WithField(key string, value interface{}) *RequestLogger {
	return &RequestLogger{sugar: r.sugar.With(key, value)}
}

func (r *RequestLogger) Debug(format string, args ...interface{}) { r.sugar.Debugf(format, args...) }
func (r *RequestLogger) Info(format string, args ...interface{}) { r.sugar.Infof(format, args...) }
func (r *RequestLogger) Warn(format string, args ...interface{}) { r.sugar.Warnf(format, args...) }
func (r *RequestLogger) Error(format string, args ...interface{}) { r.sugar.Errorf(format, args...) }

// =============================================================================
// TIMING HELPERS
// =============================================================================

// Timer helps measure operation duration
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
