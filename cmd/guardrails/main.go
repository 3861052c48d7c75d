package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/spendlens/guardrails/internal/anomaly"
	"github.com/spendlens/guardrails/internal/audit"
	"github.com/spendlens/guardrails/internal/config"
	"github.com/spendlens/guardrails/internal/crossuser"
	"github.com/spendlens/guardrails/internal/escalate"
	"github.com/spendlens/guardrails/internal/events"
	"github.com/spendlens/guardrails/internal/identity"
	"github.com/spendlens/guardrails/internal/inspect"
	"github.com/spendlens/guardrails/internal/lists"
	"github.com/spendlens/guardrails/internal/logger"
	"github.com/spendlens/guardrails/internal/output"
	"github.com/spendlens/guardrails/internal/patterns"
	"github.com/spendlens/guardrails/internal/pii"
	"github.com/spendlens/guardrails/internal/redact"
	"github.com/spendlens/guardrails/internal/rules"
	"github.com/spendlens/guardrails/internal/server"
)

var (
	commit = "dev"
	date   = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("SpendLens Guardrails %s (commit: %s, built: %s)\n", server.Version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck()
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled:  cfg.Logging.File.Enabled,
			Path:     cfg.Logging.File.Path,
			MaxSize:  cfg.Logging.File.MaxSize,
			MaxAge:   cfg.Logging.File.MaxAge,
			Compress: cfg.Logging.File.Compress,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting SpendLens Guardrails",
		zap.String("version", server.Version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port))

	// Storage. The inspection path degrades without it, so a failed
	// connection is logged and the advisory stores stay nil.
	var db *sqlx.DB
	if cfg.Storage.DatabaseURL != "" {
		db, err = sqlx.Connect("postgres", cfg.Storage.DatabaseURL)
		if err != nil {
			log.Error("Database unavailable, escalation and audit persistence disabled", zap.Error(err))
			db = nil
		} else {
			db.SetMaxOpenConns(cfg.Storage.MaxOpenConns)
			db.SetMaxIdleConns(cfg.Storage.MaxIdleConns)
			db.SetConnMaxLifetime(cfg.Storage.ConnMaxLifetime)
			defer db.Close()
		}
	}

	// Event hub.
	var hub *events.Hub
	var notifier *events.Notifier
	if cfg.WebSocket.Enabled {
		hub = events.NewHub(cfg.WebSocket, log)
		notifier = events.NewNotifier(hub)
		go hub.Run()
		defer hub.Close()
	}

	// Audit recorder.
	var auditStore audit.Store
	if db != nil {
		auditStore = audit.NewSQLStore(db, log.WithComponent("audit"))
	}
	var auditNotifier audit.Notifier
	if notifier != nil {
		auditNotifier = notifier
	}
	recorder := audit.NewRecorder(auditStore, auditNotifier, cfg.Storage.OpTimeout, log.WithComponent("audit"))

	// Escalation queue.
	var escalateStore escalate.Store
	if db != nil {
		escalateStore = escalate.NewSQLStore(db, log.WithComponent("escalate"))
	}
	var escalateNotifier escalate.Notifier
	if notifier != nil {
		escalateNotifier = notifier
	}
	queue := escalate.NewQueue(escalateStore, escalateNotifier, cfg.Storage.OpTimeout, log.WithComponent("escalate"))

	// Input pipeline.
	checker := lists.NewFromFile(cfg.Rules.ListsPath, log.WithComponent("lists"))
	matcher := patterns.NewFromFile(cfg.Rules.InjectionPatternsPath, log.WithComponent("patterns"))
	scorer := anomaly.NewFromFile(cfg.Rules.AnomalyRulesPath, log.WithComponent("anomaly"))
	inputPipeline := inspect.New(checker, matcher, scorer, queue, recorder, cfg.Input.Enabled, log.WithComponent("inspect"))

	// Output pipeline.
	detector := pii.NewFromFile(cfg.Rules.PIIPatternsPath, log.WithComponent("pii"))

	var directoryCache identity.DirectoryCache
	if cfg.Cache.Enabled {
		redisCache, err := identity.NewRedisDirectoryCache(&identity.RedisConfig{
			RedisURL:       cfg.Cache.RedisURL,
			MaxConnections: cfg.Cache.MaxConnections,
			MinIdleConns:   cfg.Cache.MinIdleConns,
			DefaultTTL:     cfg.Cache.DefaultTTL,
			KeyPrefix:      cfg.Cache.KeyPrefix,
		}, log.WithComponent("identity"))
		if err != nil {
			log.Error("Redis unavailable, using in-process directory cache", zap.Error(err))
		} else {
			directoryCache = redisCache
			defer redisCache.Close()
		}
	}

	var identityStore identity.Store
	if db != nil {
		identityStore = identity.NewSQLStore(db, log.WithComponent("identity"))
	}
	identityService := identity.NewService(identityStore, directoryCache, identity.Config{
		SnapshotTTL:  cfg.Identity.SnapshotTTL,
		DirectoryTTL: cfg.Identity.DirectoryTTL,
	}, log.WithComponent("identity"))

	classifier := crossuser.New(identityService, log.WithComponent("crossuser"))
	redactor := redact.New(detector, redact.Options{
		MinConfidence: pii.ParseConfidence(cfg.Output.MinConfidence),
		PartialReveal: cfg.Output.PartialReveal,
	}, log.WithComponent("redact"))
	outputPipeline := output.New(detector, classifier, redactor, recorder, cfg.Output.Enabled, log.WithComponent("output"))

	// Hot reload for rule documents.
	if cfg.Rules.WatchEnabled {
		watcher, err := rules.NewWatcher(log.WithComponent("rules"))
		if err != nil {
			log.Error("Rule watcher unavailable, hot reload disabled", zap.Error(err))
		} else {
			watcher.Add(cfg.Rules.ListsPath, func() { checker.Reload() })
			watcher.Add(cfg.Rules.InjectionPatternsPath, func() { matcher.Reload() })
			watcher.Add(cfg.Rules.AnomalyRulesPath, func() { scorer.Reload() })
			watcher.Add(cfg.Rules.PIIPatternsPath, func() { detector.Reload() })
			go watcher.Run()
			defer watcher.Close()
		}
	}

	srv := server.New(cfg, &server.Engine{
		Input:    inputPipeline,
		Output:   outputPipeline,
		Queue:    queue,
		Patterns: matcher,
	}, hub, log)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error("Server error", zap.Error(err))
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// performHealthCheck probes the running server.
func performHealthCheck() {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("http://localhost:8080/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
