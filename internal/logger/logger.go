package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
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

var (
	Logger          *slog.Logger
	errorSampleRate atomic.Int32
	programLevel    = new(slog.LevelVar)
	shutdownFunc    func(context.Context) error // nil unless OTEL is enabled
)

// Counters for the health endpoint. Incremented regardless of sampling.
var (
	TotalErrors         atomic.Int64
	TotalWarnings       atomic.Int64
	Total5xxErrors      atomic.Int64
	Total4xxErrors      atomic.Int64
	TransitionsAllowed  atomic.Int64
	TransitionsRejected atomic.Int64
	SnapshotFailures    atomic.Int64
)

// Options configures the process logger.
type Options struct {
	Level       string
	SampleRate  int
	OTELEnabled bool
	ServiceName string
}

func init() {
	programLevel.Set(slog.LevelInfo)
	errorSampleRate.Store(1)
	setupJSONLogging(os.Stdout)
}

// Configure installs the process logger. With OTELEnabled the slog output is
// bridged to an OTLP gRPC exporter; if that fails it falls back to JSON.
func Configure(ctx context.Context, opts Options) error {
	level, err := ParseLevel(opts.Level)
	if err != nil && opts.Level != "" {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	programLevel.Set(level)

	// SampleRate=1 logs every warning/error, 100 logs 1%, 1000 logs 0.1%
	if opts.SampleRate > 0 {
		errorSampleRate.Store(int32(opts.SampleRate))
	}

	if !opts.OTELEnabled {
		setupJSONLogging(os.Stdout)
		return nil
	}

	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = "stagegate"
	}

	shutdown, err := setupOTELLogging(ctx, serviceName)
	if err != nil {
		setupJSONLogging(os.Stdout)
		return fmt.Errorf("failed to setup OTEL logging, falling back to JSON: %w", err)
	}
	shutdownFunc = shutdown
	return nil
}

// setupJSONLogging configures JSON logging to w
func setupJSONLogging(w io.Writer) {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: programLevel})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// setupOTELLogging configures OpenTelemetry logging
func setupOTELLogging(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	otelHandler := otelslog.NewHandler(
		serviceName,
		otelslog.WithLoggerProvider(loggerProvider),
	)

	Logger = slog.New(&levelHandler{level: programLevel, handler: otelHandler})
	slog.SetDefault(Logger)

	return loggerProvider.Shutdown, nil
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

// Shutdown flushes the OTEL exporter. No-op in JSON mode.
func Shutdown(ctx context.Context) error {
	if shutdownFunc != nil {
		return shutdownFunc(ctx)
	}
	return nil
}

// SetLevel sets the minimum log level for the logger
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// GetLevel returns the current minimum log level
func GetLevel() slog.Level {
	return programLevel.Level()
}

// ParseLevel converts a string level name to slog.Level
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(levelStr) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
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

func shouldSample() bool {
	rate := errorSampleRate.Load()
	if rate <= 1 {
		return true
	}
	return rand.Intn(int(rate)) == 0
}

// Debug logs a debug-level message (never sampled)
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info-level message (never sampled)
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning WITH SAMPLING. The counter is always incremented.
func Warn(msg string, args ...any) {
	TotalWarnings.Add(1)
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// Error logs an error WITH SAMPLING. The counter is always incremented.
func Error(msg string, args ...any) {
	TotalErrors.Add(1)
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// Fatal logs and exits (never sampled)
func Fatal(msg string, args ...any) {
	Logger.Log(context.Background(), LevelFatal, msg, args...)
	if shutdownFunc != nil {
		_ = shutdownFunc(context.Background())
	}
	os.Exit(1)
}

// ErrorHttp5xx counts an HTTP 5xx response
func ErrorHttp5xx() {
	Total5xxErrors.Add(1)
	TotalErrors.Add(1)
}

// WarnHttp4xx counts an HTTP 4xx response
func WarnHttp4xx() {
	Total4xxErrors.Add(1)
	TotalWarnings.Add(1)
}

// Transition counts an authorization outcome
func Transition(allowed bool) {
	if allowed {
		TransitionsAllowed.Add(1)
		return
	}
	TransitionsRejected.Add(1)
}

// Stats is a point-in-time copy of the counters.
type Stats struct {
	Errors              int64 `json:"errors"`
	Warnings            int64 `json:"warnings"`
	HTTP5xx             int64 `json:"http5xx"`
	HTTP4xx             int64 `json:"http4xx"`
	TransitionsAllowed  int64 `json:"transitionsAllowed"`
	TransitionsRejected int64 `json:"transitionsRejected"`
	SnapshotFailures    int64 `json:"snapshotFailures"`
}

// Snapshot returns the current counter values
func Snapshot() Stats {
	return Stats{
		Errors:              TotalErrors.Load(),
		Warnings:            TotalWarnings.Load(),
		HTTP5xx:             Total5xxErrors.Load(),
		HTTP4xx:             Total4xxErrors.Load(),
		TransitionsAllowed:  TransitionsAllowed.Load(),
		TransitionsRejected: TransitionsRejected.Load(),
		SnapshotFailures:    SnapshotFailures.Load(),
	}
}
