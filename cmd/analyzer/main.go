// cmd/analyzer — Volatility digit analysis service.
// Ingests per-symbol tick streams, maintains rolling digit statistics,
// broadcasts recommendations over the WebSocket gateway, and journals
// transitions to SQLite with optional Redis publishing for downstream
// consumers.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"volatility-systemv1/config"
	"volatility-systemv1/internal/analyzer"
	"volatility-systemv1/internal/gateway"
	"volatility-systemv1/internal/ingest"
	"volatility-systemv1/internal/logger"
	"volatility-systemv1/internal/metrics"
	"volatility-systemv1/internal/model"
	"volatility-systemv1/internal/notification"
	redisstore "volatility-systemv1/internal/store/redis"
	sqlitestore "volatility-systemv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[analyzer] config: %v", err)
	}

	slogger := logger.Init("analyzer", logger.ParseLevel(cfg.LogLevel), logger.FileConfig{Path: cfg.LogFile})
	slogger.Info("starting", slog.Any("symbols", cfg.Symbols), slog.String("quote_ws", cfg.QuoteWSURL))

	startTime := time.Now()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetSymbols(cfg.Symbols)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Shutdown plumbing ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite journal (off hot path) ----
	var sqlWriter *sqlitestore.Writer
	recCh := make(chan model.Recommendation, 1024)
	if cfg.SQLiteEnabled {
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
		if err != nil {
			log.Fatalf("[analyzer] sqlite init failed: %v", err)
		}
		defer sqlWriter.Close()
		go sqlWriter.Run(ctx, recCh)
		log.Println("[analyzer] sqlite journal ready")
	}

	// ---- Redis publisher (optional, behind a circuit breaker) ----
	var bufWriter *redisstore.BufferedWriter
	var rdb *goredis.Client
	if cfg.RedisEnabled {
		redisWriter, rerr := redisstore.New(redisstore.WriterConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if rerr != nil {
			log.Printf("[analyzer] WARNING: redis init failed: %v (continuing without redis)", rerr)
		} else {
			cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
			cb.OnStateChange = func(from, to redisstore.State) {
				log.Printf("[analyzer] redis circuit breaker: %s -> %s", from, to)
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
			}
			bufWriter = redisstore.NewBufferedWriter(ctx, redisWriter, cb, 0)
			bufWriter.OnBuffer = func() { prom.RedisBufferedWrites.Inc() }
			rdb = redisWriter.Client()
			defer redisWriter.Close()
		}
	}

	if sqlWriter != nil {
		health.StartLivenessChecker(ctx, rdb, sqlWriter.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, rdb, nil, 10*time.Second)
	}

	// ---- Notifications ----
	notifier := buildNotifier(cfg)

	// ---- Ingest + engine ----
	mgr := ingest.New(ingest.Config{
		URL:            cfg.QuoteWSURL,
		Symbols:        cfg.Symbols,
		HistoryCount:   cfg.HistoryCount,
		ConnectStagger: cfg.ConnectStagger,
		ReconnectDelay: cfg.ReconnectDelay,
	})
	mgr.OnReconnect = func(symbol string) {
		prom.WSReconnects.WithLabelValues(symbol).Inc()
	}
	mgr.OnParseError = func(symbol string, err error) {
		prom.ParseErrors.Inc()
	}

	eng := analyzer.New(analyzer.Config{
		Symbols:              cfg.Symbols,
		BufferCap:            cfg.BufferCap,
		MinSamples:           cfg.MinSamples,
		AnalyzeInterval:      cfg.AnalyzeInterval,
		ReadyMinElapsed:      cfg.ReadyMinElapsed,
		ReadyFallbackElapsed: cfg.ReadyFallbackElapsed,
	}, mgr)

	eng.OnTick = func(symbol string) {
		prom.TicksTotal.WithLabelValues(symbol).Inc()
		health.SetLastTickTime(time.Now())
	}
	eng.OnAnalysis = func(elapsed time.Duration) {
		prom.AnalysisDur.Observe(elapsed.Seconds())
		ready := eng.IsReady()
		health.SetEngineReady(ready)
		if ready {
			prom.ReadyState.Set(1)
		} else {
			prom.ReadyState.Set(0)
		}
	}
	eng.OnTransition = func(prev, next *model.Recommendation) {
		if next != nil {
			prom.RecommendationsTotal.WithLabelValues(string(next.Strategy)).Inc()
			if sqlWriter != nil {
				select {
				case recCh <- *next:
				default:
					log.Println("[analyzer] sqlite channel full, dropping recommendation row")
				}
			}
		}
		alert := notification.RecommendationAlert(next)
		go notifier.Send(ctx, alert)
	}

	eng.Start(ctx)
	defer eng.Stop()

	// Gauges are cheap enough to set synchronously on each broadcast.
	unsubGauges := eng.Subscribe(func(rec *model.Recommendation, stats map[string]model.SymbolStats) {
		prom.SampledSymbols.Set(float64(len(stats)))
		for sym, s := range stats {
			prom.BufferFill.WithLabelValues(sym).Set(float64(s.SampleSize))
		}
	})
	defer unsubGauges()

	// Redis writes leave the engine loop through a buffered channel so a
	// slow Redis cannot stall analysis.
	if bufWriter != nil {
		type pubUpdate struct {
			rec   *model.Recommendation
			stats map[string]model.SymbolStats
		}
		pubCh := make(chan pubUpdate, 256)
		unsubPub := eng.Subscribe(func(rec *model.Recommendation, stats map[string]model.SymbolStats) {
			select {
			case pubCh <- pubUpdate{rec: rec, stats: stats}:
			default:
			}
		})
		defer unsubPub()

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case u := <-pubCh:
					for _, s := range u.stats {
						start := time.Now()
						if err := bufWriter.WriteStats(s); err != nil {
							log.Printf("[analyzer] redis stats write: %v", err)
						}
						prom.RedisWriteDur.Observe(time.Since(start).Seconds())
					}
					if u.rec != nil {
						start := time.Now()
						if err := bufWriter.WriteRecommendation(u.rec); err != nil {
							log.Printf("[analyzer] redis recommendation write: %v", err)
						}
						prom.RedisWriteDur.Observe(time.Since(start).Seconds())
					}
				}
			}
		}()
	}

	// WS connectivity tracked off the ingest state machine.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				health.SetWSConnected(mgr.StreamingCount() > 0)
			}
		}
	}()

	// ---- WebSocket gateway ----
	hub := gateway.NewHub()
	unbind := hub.Bind(eng)
	defer unbind()

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, eng, rdb, startTime)
	gwSrv := &http.Server{Addr: cfg.GatewayAddr, Handler: mux}
	go func() {
		log.Printf("[analyzer] gateway listening on %s", cfg.GatewayAddr)
		if err := gwSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[analyzer] gateway error: %v", err)
		}
	}()

	log.Printf("[analyzer] pipeline ready: %d symbols, analyze every %s", len(cfg.Symbols), cfg.AnalyzeInterval)

	// ---- Wait for shutdown ----
	<-sigCh
	log.Println("[analyzer] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	gwSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	log.Println("[analyzer] shutdown complete.")
}

// buildNotifier assembles the alert fan-out from config: logging always,
// webhook and Telegram when configured.
func buildNotifier(cfg *config.Config) notification.Notifier {
	backends := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	return notification.NewMultiNotifier(backends...)
}
