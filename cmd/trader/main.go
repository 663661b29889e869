// cmd/trader — Automated digit-contract trader.
// Follows recommendation transitions (from an embedded analysis engine or
// from Redis published by a separate analyzer process), places one-tick
// digit contracts through the broker WebSocket, and journals settlements
// to SQLite.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"volatility-systemv1/config"
	"volatility-systemv1/internal/analyzer"
	"volatility-systemv1/internal/broker"
	"volatility-systemv1/internal/ingest"
	"volatility-systemv1/internal/logger"
	"volatility-systemv1/internal/metrics"
	"volatility-systemv1/internal/model"
	"volatility-systemv1/internal/notification"
	redisstore "volatility-systemv1/internal/store/redis"
	sqlitestore "volatility-systemv1/internal/store/sqlite"
	"volatility-systemv1/internal/trader"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[trader] config: %v", err)
	}
	if cfg.BrokerAPIToken == "" {
		log.Fatal("[trader] BROKER_API_TOKEN is required")
	}

	slogger := logger.Init("trader", logger.ParseLevel(cfg.LogLevel), logger.FileConfig{Path: cfg.LogFile})
	slogger.Info("starting",
		slog.String("source", cfg.TraderSource),
		slog.String("policy", cfg.StakePolicy),
		slog.String("stake", cfg.Stake))

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.SetSymbols(cfg.Symbols)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Settlement journal ----
	var sqlWriter *sqlitestore.Writer
	if cfg.SQLiteEnabled {
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
		if err != nil {
			log.Fatalf("[trader] sqlite init failed: %v", err)
		}
		defer sqlWriter.Close()
		health.StartLivenessChecker(ctx, nil, sqlWriter.DB(), 10*time.Second)

		logSessionPnL(cfg.SQLitePath)
	}

	// ---- Notifications ----
	notifier := buildNotifier(cfg)

	// ---- Broker connection ----
	bclient := broker.New(broker.Config{
		URL:      cfg.BrokerWSURL,
		APIToken: cfg.BrokerAPIToken,
		TOTPKey:  cfg.BrokerTOTPKey,
	})

	// ---- Stake policy + trading loop ----
	policy, err := trader.NewPolicy(cfg.StakePolicy, cfg.Stake, cfg.LossMultiplier, cfg.MaxLossStreak)
	if err != nil {
		log.Fatalf("[trader] stake policy: %v", err)
	}
	tr := trader.New(bclient, trader.Config{
		Policy:   policy,
		Currency: cfg.Currency,
		Cooldown: cfg.TradeCooldown,
	})
	tr.OnSettlement = func(s model.Settlement) {
		result := "lost"
		if s.Won() {
			result = "won"
		}
		prom.TradesTotal.WithLabelValues(string(s.Strategy), result).Inc()
		prom.TradesProfit.Add(s.Profit)

		if sqlWriter != nil {
			start := time.Now()
			if err := sqlWriter.InsertSettlement(s); err != nil {
				log.Printf("[trader] journal settlement: %v", err)
			}
			prom.SQLiteCommitDur.Observe(time.Since(start).Seconds())
		}

		go notifier.Send(ctx, notification.SettlementAlert(s))
	}

	bclient.OnContract = tr.HandleContract
	if err := bclient.Connect(ctx); err != nil {
		log.Fatalf("[trader] broker connect: %v", err)
	}
	defer bclient.Close()
	health.SetWSConnected(true)

	// Broker purchases run off the recommendation source through a small
	// buffer so a slow buy call cannot stall the feed.
	recCh := make(chan *model.Recommendation, 64)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case rec := <-recCh:
				tr.HandleRecommendation(ctx, rec)
			}
		}
	}()

	// ---- Recommendation source ----
	switch cfg.TraderSource {
	case "redis":
		reader, err := redisstore.NewReader(redisstore.ReaderConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Fatalf("[trader] redis reader: %v", err)
		}
		defer reader.Close()

		subCh := make(chan model.Recommendation, 64)
		go func() {
			if err := reader.SubscribeRecommendations(ctx, subCh); err != nil {
				log.Printf("[trader] redis subscription ended: %v", err)
			}
		}()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case rec := <-subCh:
					r := rec
					select {
					case recCh <- &r:
					default:
					}
				}
			}
		}()
		log.Printf("[trader] following recommendations from redis at %s", cfg.RedisAddr)

	case "engine", "":
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
		eng.Start(ctx)
		defer eng.Stop()

		unsub := eng.Subscribe(func(rec *model.Recommendation, stats map[string]model.SymbolStats) {
			if !eng.IsReady() {
				return // never trade on a warming engine
			}
			select {
			case recCh <- rec:
			default:
			}
		})
		defer unsub()
		log.Printf("[trader] embedded engine tracking %d symbols from %s", len(cfg.Symbols), cfg.QuoteWSURL)

	default:
		log.Fatalf("[trader] unknown TRADER_SOURCE %q (want engine or redis)", cfg.TraderSource)
	}

	// ---- Wait for shutdown ----
	<-sigCh
	log.Println("[trader] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	if n := tr.OpenCount(); n > 0 {
		log.Printf("[trader] exiting with %d unsettled contracts", n)
	}
	log.Println("[trader] shutdown complete.")
}

// logSessionPnL reports today's realized profit from the journal at startup.
func logSessionPnL(dbPath string) {
	reader, err := sqlitestore.NewReader(dbPath)
	if err != nil {
		log.Printf("[trader] pnl restore skipped: %v", err)
		return
	}
	defer reader.Close()

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	profit, wins, losses, err := reader.SessionPnL(midnight)
	if err != nil {
		log.Printf("[trader] pnl restore skipped: %v", err)
		return
	}
	log.Printf("[trader] session so far: profit=%.2f wins=%d losses=%d", profit, wins, losses)
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
