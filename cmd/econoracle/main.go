package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rewired-gh/econoracle/internal/calendar"
	"github.com/rewired-gh/econoracle/internal/config"
	"github.com/rewired-gh/econoracle/internal/gate"
	"github.com/rewired-gh/econoracle/internal/logger"
	"github.com/rewired-gh/econoracle/internal/metrics"
	"github.com/rewired-gh/econoracle/internal/monitor"
	"github.com/rewired-gh/econoracle/internal/notify"
	"github.com/rewired-gh/econoracle/internal/pipeline"
	"github.com/rewired-gh/econoracle/internal/storage"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("Configuration loaded from %s", *configPath)

	// Initialize storage
	db, err := storage.Open(cfg.Storage.DBPath, cfg.Storage.MaxSnapshotsPerJob, 0o755)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	// Initialize the cooldown ledger and the gate
	ledger, closeLedger := newCooldownStore(cfg)
	defer closeLedger()

	g, err := gate.New(cfg.Gate, ledger)
	if err != nil {
		logger.Fatal("Failed to initialize notification gate: %v", err)
	}

	// Initialize notifiers
	var notifiers []notify.Notifier
	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		notifiers = append(notifiers, tg)
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}
	if cfg.Discord.Enabled {
		notifiers = append(notifiers, notify.NewDiscord(cfg.Discord.WebhookURL, cfg.Discord.Username, cfg.Discord.Timeout, cfg.Discord.MaxRetries, cfg.Discord.RetryDelayBase))
		logger.Info("Discord webhook configured")
	} else {
		logger.Debug("Discord notifications disabled")
	}
	dispatcher := notify.NewDispatcher(g, db, cfg.Notify.RatePerSecond, cfg.Notify.Burst, notifiers...)
	logger.Info("Notification channels: %v", dispatcher.Channels())

	// Initialize calendar source
	var fetcher pipeline.Fetcher
	if cfg.Calendar.File != "" {
		fetcher = calendar.NewFileSource(cfg.Calendar.File)
		logger.Info("Reading calendar from %s", cfg.Calendar.File)
	} else {
		fetcher = calendar.NewClient(cfg.Calendar.APIBaseURL, cfg.Calendar.Timeout, cfg.Calendar.MaxRetries, cfg.Calendar.RetryDelayBase)
	}

	p := pipeline.New(fetcher, db, g, dispatcher,
		monitor.NewDiffer(cfg.Monitor.ChangeThreshold),
		monitor.NewSurpriseAnalyzer(cfg.Monitor.SurpriseThreshold, cfg.Monitor.Workers),
	)
	if !p.AIReportsEnabled() {
		logger.Info("AI reports disabled: no reporter configured, ai_report cooldowns will stay idle")
	}

	jobs := enabledJobs(cfg)
	scheduler := pipeline.NewScheduler(p, dispatcher, jobs...)
	if err := scheduler.Validate(); err != nil {
		logger.Fatal("Invalid job schedule: %v", err)
	}
	sweepSpec := "@every " + cfg.Gate.SweepInterval.String()
	if err := scheduler.AddMaintenance("cooldown sweep", sweepSpec, pipeline.SweepTask(g, db, cfg.Storage.AuditRetention)); err != nil {
		logger.Fatal("Failed to schedule cooldown sweep: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	metrics.Init()
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer = startMetricsServer(cfg.Metrics.ListenAddr)
	}

	// Run initial cycles immediately
	for _, job := range jobs {
		logger.Debug("Running initial %s cycle", job.Name)
		scheduler.RunNow(ctx, job)
	}

	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal("Failed to start scheduler: %v", err)
	}
	logger.Info("Starting monitoring service (%d jobs, sweep every %v)", len(jobs), cfg.Gate.SweepInterval)

	<-ctx.Done()
	scheduler.Stop()

	if metricsServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to stop metrics server: %v", err)
		}
	}
	logger.Info("Service stopped")
}

// newCooldownStore returns the configured ledger and a function releasing it.
func newCooldownStore(cfg *config.Config) (gate.CooldownStore, func()) {
	if cfg.CooldownStore.Backend != "redis" {
		logger.Info("Using in-memory cooldown ledger")
		return gate.NewMemoryStore(), func() {}
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.CooldownStore.RedisAddr},
		Password: cfg.CooldownStore.RedisPassword,
		DB:       cfg.CooldownStore.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis at %s: %v", cfg.CooldownStore.RedisAddr, err)
	}
	logger.Info("Using Redis cooldown ledger at %s", cfg.CooldownStore.RedisAddr)

	store := gate.NewRedisStore(client, cfg.CooldownStore.RedisPrefix, cfg.Gate.MaxRetention)
	return store, func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close Redis client: %v", err)
		}
	}
}

func enabledJobs(cfg *config.Config) []pipeline.Job {
	var jobs []pipeline.Job
	for _, j := range []struct {
		name string
		cfg  config.JobConfig
	}{
		{"daily", cfg.Calendar.Daily},
		{"weekly", cfg.Calendar.Weekly},
	} {
		if !j.cfg.Enabled {
			continue
		}
		jobs = append(jobs, pipeline.Job{
			Name:     j.name,
			Schedule: j.cfg.Schedule,
			Lookback: j.cfg.Lookback,
			Horizon:  j.cfg.Horizon,
		})
	}
	return jobs
}

func startMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Serving metrics on %s/metrics", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed: %v", err)
		}
	}()
	return server
}
