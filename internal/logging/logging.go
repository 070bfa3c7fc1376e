package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Key constants for structured log fields.
const (
	KeyComponent  = "component"
	KeyTool       = "tool"
	KeyRequestID  = "requestId"
	KeySessionID  = "sessionId"
	KeyDurationMs = "durationMs"
	KeyError      = "error"
)

type contextKey struct{}

// switchableCore lets package-level loggers created before Init()
// pick up the configured core once Init runs.
type switchableCore struct {
	state  *switchableState
	fields []zapcore.Field
}

type switchableState struct {
	current atomic.Value // stores zapcore.Core
}

func newSwitchableCore(c zapcore.Core) *switchableCore {
	state := &switchableState{}
	state.current.Store(c)
	return &switchableCore{state: state}
}

func (c *switchableCore) set(core zapcore.Core) {
	c.state.current.Store(core)
}

func (c *switchableCore) base() zapcore.Core {
	return c.state.current.Load().(zapcore.Core)
}

func (c *switchableCore) materialize() zapcore.Core {
	core := c.base()
	if len(c.fields) > 0 {
		core = core.With(c.fields)
	}
	return core
}

func (c *switchableCore) Enabled(level zapcore.Level) bool {
	return c.base().Enabled(level)
}

func (c *switchableCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &switchableCore{state: c.state, fields: merged}
}

func (c *switchableCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *switchableCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.materialize().Write(ent, fields)
}

func (c *switchableCore) Sync() error {
	return c.base().Sync()
}

var (
	rootCore      = newSwitchableCore(newCore("console", zapcore.InfoLevel, os.Stderr))
	defaultLogger = zap.New(rootCore)
)

// Init configures the global logger. Call once after config is loaded.
// format: "json" or "console" (default "console")
// level: "debug", "info", "warn", "error" (default "info")
// output: writer to log to (nil = os.Stderr, stdout carries the tool protocol)
func Init(format, level string, output io.Writer) {
	if output == nil {
		output = os.Stderr
	}
	rootCore.set(newCore(format, ParseLevel(level), output))
}

// NewFileWriter returns a size-rotated log file writer.
func NewFileWriter(path string, maxSizeMB, maxBackups int) io.WriteCloser {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxBackups < 0 {
		maxBackups = 0
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   false,
	}
}

// Sync flushes buffered log entries.
func Sync() {
	_ = defaultLogger.Sync()
}

func newCore(format string, level zapcore.Level, output io.Writer) zapcore.Core {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(format, "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(output)), level)
}

// L returns a logger tagged with the given component name.
func L(component string) *zap.SugaredLogger {
	return defaultLogger.With(zap.String(KeyComponent, component)).Sugar()
}

// WithTool returns a child logger with tool-call correlation fields attached.
func WithTool(logger *zap.SugaredLogger, requestID, tool string) *zap.SugaredLogger {
	return logger.With(KeyRequestID, requestID, KeyTool, tool)
}

// NewContext returns a new context carrying the given logger.
func NewContext(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts the logger from context, falling back to the default.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if l, ok := ctx.Value(contextKey{}).(*zap.SugaredLogger); ok {
		return l
	}
	return defaultLogger.Sugar()
}

// ParseLevel maps a config string to a zap level. Unknown values map to info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
