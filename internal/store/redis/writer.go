package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"volatility-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: ~1h of 1s stats snapshots + buffer
	statsStreamMaxLen = 4000
	recStreamMaxLen   = 10000
	defaultLatestTTL  = 30 * time.Minute
)

// Key layout:
//
//	stats:latest:<symbol>     SET, latest stats snapshot
//	stats:<symbol>            XADD stream of snapshots
//	pub:stats:<symbol>        PUBLISH channel
//	recommendation:latest     SET, latest recommendation
//	recommendations           XADD stream
//	pub:recommendation        PUBLISH channel

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer publishes symbol stats and recommendations to Redis so other
// processes (dashboards, traders) can follow the engine without linking it.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// WriteStats performs a pipelined SET + XADD + PUBLISH for one symbol's
// stats snapshot.
func (w *Writer) WriteStats(ctx context.Context, s model.SymbolStats) error {
	data, err := s.JSON()
	if err != nil {
		return fmt.Errorf("marshal stats %s: %w", s.Symbol, err)
	}
	jsonData := string(data)

	pipe := w.client.Pipeline()
	pipe.Set(ctx, "stats:latest:"+s.Symbol, jsonData, defaultLatestTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: "stats:" + s.Symbol,
		MaxLen: statsStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, "pub:stats:"+s.Symbol, jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stats pipeline %s: %w", s.Symbol, err)
	}
	return nil
}

// WriteRecommendation performs a pipelined SET + XADD + PUBLISH for the
// current recommendation.
func (w *Writer) WriteRecommendation(ctx context.Context, rec *model.Recommendation) error {
	data, err := rec.JSON()
	if err != nil {
		return fmt.Errorf("marshal recommendation: %w", err)
	}
	jsonData := string(data)

	pipe := w.client.Pipeline()
	pipe.Set(ctx, "recommendation:latest", jsonData, defaultLatestTTL)
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: "recommendations",
		MaxLen: recStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"data": jsonData},
	})
	pipe.Publish(ctx, "pub:recommendation", jsonData)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recommendation pipeline: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
