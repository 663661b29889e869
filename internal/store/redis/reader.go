package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"volatility-systemv1/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr     string
	Password string
	DB       int
}

// Reader follows recommendations published by an analyzer process. It lets
// a trader run against Redis instead of embedding the engine.
type Reader struct {
	client *goredis.Client
}

// NewReader creates a Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
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

	log.Printf("[redis-reader] connected to %s", cfg.Addr)
	return &Reader{client: client}, nil
}

// LatestRecommendation reads the latest recommendation, or nil when none
// has been published yet (or it expired).
func (r *Reader) LatestRecommendation(ctx context.Context) (*model.Recommendation, error) {
	data, err := r.client.Get(ctx, "recommendation:latest").Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get recommendation:latest: %w", err)
	}

	var rec model.Recommendation
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal recommendation: %w", err)
	}
	return &rec, nil
}

// RecentRecommendations returns up to limit recommendations from the
// journal stream, newest first.
func (r *Reader) RecentRecommendations(ctx context.Context, limit int64) ([]model.Recommendation, error) {
	msgs, err := r.client.XRevRangeN(ctx, "recommendations", "+", "-", limit).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange recommendations: %w", err)
	}

	out := make([]model.Recommendation, 0, len(msgs))
	for _, msg := range msgs {
		data, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var rec model.Recommendation
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// SubscribeRecommendations follows pub:recommendation and forwards parsed
// recommendations to out. Blocks until ctx is cancelled.
func (r *Reader) SubscribeRecommendations(ctx context.Context, out chan<- model.Recommendation) error {
	pubsub := r.client.Subscribe(ctx, "pub:recommendation")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe pub:recommendation: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var rec model.Recommendation
			if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
				log.Printf("[redis-reader] bad recommendation payload: %v", err)
				continue
			}
			select {
			case out <- rec:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
