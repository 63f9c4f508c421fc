package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	_ "github.com/lib/pq"

	"github.com/avetrov/goldpilot/internal/adapters/ai"
	"github.com/avetrov/goldpilot/internal/adapters/broker"
	"github.com/avetrov/goldpilot/internal/adapters/clickhouse"
	"github.com/avetrov/goldpilot/internal/adapters/config"
	"github.com/avetrov/goldpilot/internal/adapters/database"
	"github.com/avetrov/goldpilot/internal/adapters/marketdata"
	redisAdapter "github.com/avetrov/goldpilot/internal/adapters/redis"
	"github.com/avetrov/goldpilot/internal/adapters/telegram"
	"github.com/avetrov/goldpilot/internal/engine"
	"github.com/avetrov/goldpilot/internal/events"
	"github.com/avetrov/goldpilot/internal/ledger"
	"github.com/avetrov/goldpilot/internal/risk"
	"github.com/avetrov/goldpilot/internal/server"
	"github.com/avetrov/goldpilot/internal/telemetry"
	"github.com/avetrov/goldpilot/internal/workers"
	"github.com/avetrov/goldpilot/pkg/logger"
	"github.com/avetrov/goldpilot/pkg/metrics"
	"github.com/avetrov/goldpilot/pkg/templates"
	"github.com/avetrov/goldpilot/pkg/worker"
)

const (
	shutdownTimeout = 25 * time.Second
	summaryInterval = 5 * time.Minute
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := initConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("goldpilot starting",
		zap.String("symbol", cfg.Trading.Symbol),
		zap.String("broker_mode", cfg.Broker.Mode),
		zap.String("ai_provider", cfg.AI.Provider),
	)

	// Single-instance guard: two engines on one account double every order
	redisClient, lock, err := acquireEngineLock(ctx, cfg)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	if lock != nil {
		defer releaseLock(lock)
	}

	db, err := initDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	tracker := ledger.NewTracker(ledger.NewRepository(db.DB()))

	archive, closeArchive := initTickArchive(ctx, cfg)
	if closeArchive != nil {
		defer closeArchive()
	}

	brk, err := initBroker(ctx, cfg)
	if err != nil {
		return err
	}
	defer brk.Disconnect(context.Background())

	candles, err := initCandleSource(cfg, brk)
	if err != nil {
		return err
	}

	selector, err := initAI(cfg)
	if err != nil {
		return err
	}

	// Initial balance seeds the sizing ratio; without a broker session the
	// ledger keeps whatever it already persisted.
	var bootBalance float64
	if account, err := brk.Account(ctx); err != nil {
		logger.Warn("account snapshot unavailable at boot", zap.Error(err))
	} else {
		bootBalance = account.Balance
	}
	if _, err := tracker.Initialize(ctx, cfg.Trading.Symbol, bootBalance); err != nil {
		return fmt.Errorf("failed to initialize profit tracker: %w", err)
	}

	settings := config.NewSettings(cfg.Trading)
	cooldown := risk.NewCooldownGate(cfg.Trading.CooldownDuration)
	bus := events.NewBus(0)

	eng := engine.New(brk, candles, selector, settings, cooldown, tracker, bus, archive)

	hub := telemetry.NewHub()
	group := startWorkers(ctx, cfg, bus, hub, tracker)

	apiServer := startServer(ctx, cfg, eng, brk, settings, tracker, selector, hub, db, redisClient)

	if cfg.Trading.AutoStart {
		if err := eng.Start(ctx); err != nil {
			logger.Error("auto-start failed", zap.Error(err))
		}
	}

	apiServer.SetReady(true)

	<-ctx.Done()

	return shutdown(eng, group, bus, apiServer)
}

// initConfig loads configuration and initializes the logger
func initConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// acquireEngineLock takes the Redis single-instance lock. An empty Redis
// address disables the guard for single-node development.
func acquireEngineLock(ctx context.Context, cfg *config.Config) (*redisAdapter.Client, *redisAdapter.EngineLock, error) {
	if cfg.Redis.Addr == "" {
		logger.Warn("⚠️ engine lock disabled (no Redis address)")
		return nil, nil, nil
	}

	client, err := redisAdapter.New(&cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	lock := client.NewEngineLock(cfg.Redis.LockTTL)
	held, err := lock.TryAcquire(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to acquire engine lock: %w", err)
	}
	if !held {
		client.Close()
		return nil, nil, fmt.Errorf("engine lock held by another instance, refusing to trade")
	}

	logger.Info("engine lock acquired", zap.Duration("ttl", cfg.Redis.LockTTL))
	return client, lock, nil
}

func releaseLock(lock *redisAdapter.EngineLock) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := lock.Release(ctx); err != nil {
		logger.Error("failed to release engine lock", zap.Error(err))
	}
}

// initDatabase connects to Postgres and applies migrations
func initDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.RunMigrations(db.Conn(), "./migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("database connection established",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Name),
	)

	return db, nil
}

// initTickArchive wires the ClickHouse tick archive. An empty DSN or a
// connection failure disables archiving; the engine runs without it.
func initTickArchive(ctx context.Context, cfg *config.Config) (engine.TickRecorder, func()) {
	if cfg.ClickHouse.DSN == "" {
		logger.Info("tick archive disabled (no ClickHouse DSN)")
		return nil, nil
	}

	db, err := clickhouse.Connect(cfg.ClickHouse.DSN)
	if err != nil {
		logger.Warn("ClickHouse unavailable, tick archive disabled", zap.Error(err))
		return nil, nil
	}

	if err := clickhouse.EnsureSchema(ctx, db); err != nil {
		logger.Warn("ClickHouse schema setup failed, tick archive disabled", zap.Error(err))
		db.Close()
		return nil, nil
	}

	repo := clickhouse.NewRepository(db)
	buffer := metrics.NewBufferedMetrics(metrics.BufferConfig{
		Writer:        clickhouse.NewWriter(repo),
		BatchSize:     cfg.ClickHouse.BatchSize,
		FlushInterval: cfg.ClickHouse.FlushInterval,
	})

	logger.Info("✅ tick archive enabled (ClickHouse)")

	closeArchive := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := buffer.Close(closeCtx); err != nil {
			logger.Error("tick archive flush failed", zap.Error(err))
		}
	}

	return clickhouse.NewRecorder(buffer), closeArchive
}

// initBroker selects the adapter and opens the session. A bridge sidecar
// that is down at boot is tolerated: the engine surfaces fetch failures
// every tick until the sidecar answers.
func initBroker(ctx context.Context, cfg *config.Config) (broker.Broker, error) {
	if cfg.IsPaperBroker() {
		paper := broker.NewPaper(cfg.Trading.Symbol, 10000)
		if err := paper.Connect(ctx); err != nil {
			return nil, err
		}
		logger.Info("📋 paper broker active")
		return paper, nil
	}

	bridge := broker.NewBridge(cfg.Broker.BridgeURL, cfg.Broker.Timeout)
	if err := bridge.Connect(ctx); err != nil {
		logger.Warn("broker bridge unreachable at boot",
			zap.String("url", cfg.Broker.BridgeURL),
			zap.Error(err),
		)
	} else {
		logger.Info("broker bridge connected", zap.String("url", cfg.Broker.BridgeURL))
	}

	return bridge, nil
}

// initCandleSource chooses where AI context candles come from
func initCandleSource(cfg *config.Config, brk broker.Broker) (engine.CandleSource, error) {
	if cfg.MarketData.CandleSource == "broker" {
		return brk, nil
	}

	source, err := marketdata.NewBybitSource(&cfg.MarketData)
	if err != nil {
		return nil, fmt.Errorf("failed to create ccxt candle source: %w", err)
	}

	logger.Info("candle source: bybit (ccxt)", zap.String("symbol", cfg.MarketData.BybitSymbol))
	return source, nil
}

// initAI builds every provider with configured keys and selects the active
// one; the selection can be flipped over the API later.
func initAI(cfg *config.Config) (*ai.Selector, error) {
	var providers []ai.Provider

	if len(cfg.AI.GroqKeys) > 0 {
		providers = append(providers, ai.NewGroq(cfg.AI.GroqKeys, cfg.AI.Timeout))
	}
	if len(cfg.AI.DeepSeekKeys) > 0 {
		providers = append(providers, ai.NewDeepSeek(cfg.AI.DeepSeekKeys, cfg.AI.Timeout))
	}

	selector, err := ai.NewSelector(cfg.AI.Provider, providers...)
	if err != nil {
		return nil, fmt.Errorf("failed to configure AI providers: %w", err)
	}

	logger.Info("AI providers initialized",
		zap.Strings("available", selector.Available()),
		zap.String("active", selector.Name()),
	)

	return selector, nil
}

// startWorkers runs the websocket hub, the event dispatcher and the daily
// summary under the worker group.
func startWorkers(ctx context.Context, cfg *config.Config, bus *events.Bus, hub *telemetry.Hub, tracker *ledger.Tracker) *worker.WorkerGroup {
	var notifiers []workers.TradeNotifier
	var summaryNotifiers []workers.SummaryNotifier

	if discord := telemetry.NewDiscord(cfg.Discord.WebhookURL); discord.Enabled() {
		notifiers = append(notifiers, discord)
		summaryNotifiers = append(summaryNotifiers, discord)
		logger.Info("💬 Discord notifier enabled")
	}

	if tg := initTelegram(cfg); tg != nil {
		notifiers = append(notifiers, tg)
		summaryNotifiers = append(summaryNotifiers, tg)
	}

	group := worker.NewWorkerGroup(ctx)
	group.AddLongRunning(hub)
	group.AddLongRunning(workers.NewDispatcher(bus, hub, notifiers...))
	group.Add(workers.NewDailySummaryWorker(tracker, workers.DefaultSummaryHour, summaryNotifiers...), summaryInterval)
	group.Start()

	return group
}

// initTelegram builds the Telegram notifier when a bot token is configured
func initTelegram(cfg *config.Config) *telegram.Notifier {
	if cfg.Telegram.BotToken == "" {
		return nil
	}

	renderer, err := templates.NewManagerWithValidation(cfg.Telegram.TemplatesDir, telegram.RequiredTemplates)
	if err != nil {
		logger.Warn("telegram templates unavailable, notifier disabled", zap.Error(err))
		return nil
	}

	notifier, err := telegram.NewNotifier(&cfg.Telegram, renderer)
	if err != nil {
		logger.Warn("failed to initialize telegram notifier", zap.Error(err))
		return nil
	}

	logger.Info("📱 Telegram notifier enabled")
	return notifier
}

// startServer boots the HTTP surface in the background
func startServer(
	ctx context.Context,
	cfg *config.Config,
	eng *engine.Engine,
	brk broker.Broker,
	settings *config.Settings,
	tracker *ledger.Tracker,
	selector *ai.Selector,
	hub *telemetry.Hub,
	db *database.DB,
	redisClient *redisAdapter.Client,
) *server.Server {
	checks := map[string]server.HealthChecker{"database": db}
	if redisClient != nil {
		checks["redis"] = redisClient
	}

	apiServer := server.New(ctx, cfg.Server.Port, server.Deps{
		Engine:   eng,
		Broker:   brk,
		Settings: settings,
		Profits:  tracker,
		Provider: selector,
		Hub:      hub,
		Checks:   checks,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("API server error", zap.Error(err))
		}
	}()

	return apiServer
}

// shutdown stops trading first, then drains events and closes the surface
func shutdown(eng *engine.Engine, group *worker.WorkerGroup, bus *events.Bus, apiServer *server.Server) error {
	logger.Info("🛑 starting graceful shutdown...")

	apiServer.SetReady(false)

	// The listener goes down first so no API call can restart the engine
	// while the rest is torn behind it
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error("API server stop failed", zap.Error(err))
	}

	if err := eng.Stop(); err != nil && err != engine.ErrNotRunning {
		logger.Error("engine stop failed", zap.Error(err))
	}

	// Closing the bus lets the dispatcher drain out; a straggling publisher
	// is dropped, not crashed
	bus.Close()
	group.Stop(10 * time.Second)

	logger.Info("✅ shutdown complete")
	return nil
}
