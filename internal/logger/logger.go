// Package logger provides structured logging using Go 1.21's log/slog.
// It sets up a JSON handler with service-level context, optional file
// rotation, and trade ID propagation through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey string

const tradeIDKey ctxKey = "trade_id"

// FileConfig enables rotated file output alongside stdout.
type FileConfig struct {
	Path       string // empty disables file output
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init creates and returns a structured logger for the given service.
// Output is JSON to stdout, teed into a rotated log file when file.Path
// is set.
func Init(service string, level slog.Level, file FileConfig) *slog.Logger {
	var out io.Writer = os.Stdout
	if file.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    orDefault(file.MaxSizeMB, 10),
			MaxBackups: orDefault(file.MaxBackups, 5),
			MaxAge:     orDefault(file.MaxAgeDays, 7),
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: level,
	})

	logger := slog.New(handler).With(
		slog.String("service", service),
	)

	// Default logger so package-level slog calls share the handler.
	slog.SetDefault(logger)

	return logger
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// ParseLevel maps a config string to a slog.Level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithTradeID stores a trade ID in the context for downstream propagation.
func WithTradeID(ctx context.Context, tradeID string) context.Context {
	return context.WithValue(ctx, tradeIDKey, tradeID)
}

// TradeID extracts the trade ID from context. Returns "" if not set.
func TradeID(ctx context.Context) string {
	if v, ok := ctx.Value(tradeIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTradeID creates a trade ID from a symbol and timestamp.
// Format: "{symbol}-{unixNano}", no UUID dependency.
func GenerateTradeID(symbol string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", symbol, ts.UnixNano())
}

// LogWithTrade returns slog attributes including the trade ID from context.
// Usage: slog.Info("msg", logger.LogWithTrade(ctx)...)
func LogWithTrade(ctx context.Context) []any {
	tid := TradeID(ctx)
	if tid == "" {
		return nil
	}
	return []any{slog.String("trade_id", tid)}
}
