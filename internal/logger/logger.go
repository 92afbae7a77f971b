package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/muesli/termenv"

	charmlog "github.com/charmbracelet/log"
)

// Type alias for slog.Level for easier usage
type Level = slog.Level

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug // -4
	LevelInfo    = slog.LevelInfo  // 0
	LevelWarning = slog.LevelWarn  // 4
	LevelError   = slog.LevelError // 8
	LevelFatal   = slog.Level(12)  // 12
)

// Format selects the handler that renders records.
type Format string

const (
	FormatJSON   Format = "json"
	FormatLogfmt Format = "logfmt"
	FormatText   Format = "text"
)

var (
	Logger          *slog.Logger
	errorSampleRate int32 = 100 // Log 1 out of every 100 errors by default (configurable via ERROR_SAMPLE_RATE)
	programLevel          = new(slog.LevelVar)
)

// Error counters for metrics endpoint (incremented regardless of sampling)
var (
	TotalErrors    atomic.Int64
	TotalWarnings  atomic.Int64
	Total5xxErrors atomic.Int64
	Total4xxErrors atomic.Int64
	Total400Errors atomic.Int64
	Total404Errors atomic.Int64
	Total409Errors atomic.Int64
	SlowRequests   atomic.Int64
	Selections     atomic.Int64
)

func init() {
	level, err := ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = LevelInfo
	}

	format, err := ParseFormat(os.Getenv("LOG_FORMAT"))
	if err != nil {
		format = FormatJSON
	}

	// ERROR_SAMPLE_RATE=1 logs every error/warning, 100 (default) logs 1%
	if sampleStr := os.Getenv("ERROR_SAMPLE_RATE"); sampleStr != "" {
		if rate, err := strconv.Atoi(sampleStr); err == nil && rate > 0 {
			SetSampleRate(rate)
		}
	}

	Configure(os.Stdout, level, format)
}

// Configure replaces the package logger and the slog default.
func Configure(w io.Writer, level slog.Level, format Format) {
	programLevel.Set(level)

	var handler slog.Handler
	switch format {
	case FormatLogfmt:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: programLevel})
	case FormatText:
		handler = &levelHandler{level: programLevel, handler: newCharmHandler(w)}
	default:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: programLevel})
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// newCharmHandler renders human-readable, coloured output. Level filtering
// is left to levelHandler so SetLevel keeps working.
func newCharmHandler(w io.Writer) slog.Handler {
	l := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmlog.Level(LevelTrace),
		Formatter:       charmlog.TextFormatter,
		ReportTimestamp: true,
		TimeFormat:      time.StampMilli,
	})
	l.SetColorProfile(termenv.ColorProfile())
	return l
}

// levelHandler wraps a handler to filter by level
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// SetLevel sets the minimum log level for the logger
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// GetLevel returns the current minimum log level
func GetLevel() slog.Level {
	return programLevel.Level()
}

// SetSampleRate logs one in every rate warnings and errors.
func SetSampleRate(rate int) {
	if rate < 1 {
		rate = 1
	}
	atomic.StoreInt32(&errorSampleRate, int32(rate))
}

// ParseLevel converts a string level name to slog.Level. The empty string is INFO.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(levelStr) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s (defaulting to INFO)", levelStr)
	}
}

// ParseFormat converts a format name. The empty string is json.
func ParseFormat(formatStr string) (Format, error) {
	switch f := Format(strings.ToLower(formatStr)); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatLogfmt, FormatText:
		return f, nil
	default:
		return FormatJSON, fmt.Errorf("unknown log format: %s (use json, logfmt or text)", formatStr)
	}
}

// shouldSample returns true if we should log this message
// Uses sampling to reduce log volume (1 out of every N messages)
func shouldSample() bool {
	rate := atomic.LoadInt32(&errorSampleRate)
	if rate <= 1 {
		return true
	}
	return rand.Intn(int(rate)) == 0
}

// ============================================================================
// Logging Functions
// ============================================================================

// Trace logs a trace-level message (always logged, never sampled)
func Trace(msg string, args ...any) {
	Logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Debug logs a debug-level message (always logged, never sampled)
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info-level message (always logged, never sampled)
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning-level message WITH SAMPLING
// Metrics counter is always incremented, but log output is sampled
func Warn(msg string, args ...any) {
	TotalWarnings.Add(1)
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// Error logs an error-level message WITH SAMPLING
// Metrics counter is always incremented, but log output is sampled
func Error(msg string, args ...any) {
	TotalErrors.Add(1)
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// exit is replaced in tests
var exit = os.Exit

// Fatal logs a fatal-level message and exits (always logged, never sampled)
func Fatal(msg string, args ...any) {
	TotalErrors.Add(1)
	Logger.Log(context.Background(), LevelFatal, msg, args...)
	exit(1)
}

// ============================================================================
// HTTP-Specific Logging Helpers
// ============================================================================

// ErrorHttp5xx increments the 5xx counters
// Counters are always incremented regardless of sampling
func ErrorHttp5xx() {
	Total5xxErrors.Add(1)
	TotalErrors.Add(1)
}

// WarnHttp4xx increments the 4xx counters
// Counters are always incremented regardless of sampling
func WarnHttp4xx(status int) {
	Total4xxErrors.Add(1)
	TotalWarnings.Add(1)

	switch status {
	case 400:
		Total400Errors.Add(1)
	case 404:
		Total404Errors.Add(1)
	case 409:
		Total409Errors.Add(1)
	}
}

// WarnSlowRequest increments the slow request counter
func WarnSlowRequest() {
	SlowRequests.Add(1)
	TotalWarnings.Add(1)
}

// CountSelection records one completed selection
func CountSelection() {
	Selections.Add(1)
}

// Counters is a point-in-time copy of the metrics counters.
type Counters struct {
	Errors     int64 `json:"errors"`
	Warnings   int64 `json:"warnings"`
	HTTP5xx    int64 `json:"http5xx"`
	HTTP4xx    int64 `json:"http4xx"`
	HTTP400    int64 `json:"http400"`
	HTTP404    int64 `json:"http404"`
	HTTP409    int64 `json:"http409"`
	Slow       int64 `json:"slowRequests"`
	Selections int64 `json:"selections"`
}

// Snapshot reads every counter.
func Snapshot() Counters {
	return Counters{
		Errors:     TotalErrors.Load(),
		Warnings:   TotalWarnings.Load(),
		HTTP5xx:    Total5xxErrors.Load(),
		HTTP4xx:    Total4xxErrors.Load(),
		HTTP400:    Total400Errors.Load(),
		HTTP404:    Total404Errors.Load(),
		HTTP409:    Total409Errors.Load(),
		Slow:       SlowRequests.Load(),
		Selections: Selections.Load(),
	}
}
