package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/altproductionlabs/sentinel/internal/api"
	"github.com/altproductionlabs/sentinel/internal/chread"
	"github.com/altproductionlabs/sentinel/internal/config"
	"github.com/altproductionlabs/sentinel/internal/coordinator"
	"github.com/altproductionlabs/sentinel/internal/engine"
	"github.com/altproductionlabs/sentinel/internal/featurestore"
	"github.com/altproductionlabs/sentinel/internal/feedback"
	"github.com/altproductionlabs/sentinel/internal/metrics"
	"github.com/altproductionlabs/sentinel/internal/storage"
	"github.com/altproductionlabs/sentinel/internal/store"
	"github.com/altproductionlabs/sentinel/internal/tuner"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", envOrDefault("SENTINEL_CONFIG", ""), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := mustBuildLogger(cfg.Logging.Level)
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting sentinel coordinator",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Float64("require_elevated", cfg.Policy.Thresholds.RequireElevated),
		zap.Float64("quarantine", cfg.Policy.Thresholds.Quarantine),
		zap.Float64("lockdown", cfg.Policy.Thresholds.Lockdown),
	)

	// Storage — ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if dsn := cfg.Storage.ClickHouseDSN; dsn != "" {
		chWriter, err := storage.NewClickHouseWriter(dsn, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no clickhouse dsn set, using log writer")
	}
	defer writer.Close()

	// ClickHouse reader (for decision history endpoints)
	var chReader *chread.Reader
	if dsn := cfg.Storage.ClickHouseDSN; dsn != "" {
		chReader, err = chread.NewReader(dsn, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
			chReader = nil
		} else {
			defer func() { _ = chReader.Close() }()
			logger.Info("clickhouse reader connected")
		}
	}

	// Postgres (rule/threshold/feedback persistence)
	var pgStore *store.Store
	if dsn := cfg.Storage.PostgresDSN; dsn != "" {
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		defer func() { _ = db.Close() }()
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		pgStore = store.NewStore(db)
		if err := pgStore.EnsureSchema(context.Background()); err != nil {
			logger.Fatal("postgres schema setup failed", zap.Error(err))
		}
		logger.Info("postgres connected")
	} else {
		logger.Info("no postgres dsn set, configuration changes will not persist")
	}

	// Feature store (SQLite)
	var features *featurestore.Store
	if path := cfg.Storage.FeatureDBPath; path != "" {
		features, err = featurestore.Open(path, cfg.Storage.FeatureWindows, logger)
		if err != nil {
			logger.Fatal("feature store open failed", zap.Error(err))
		}
		defer func() { _ = features.Close() }()
		logger.Info("feature store opened", zap.String("path", path))
	}

	// Policy engine — persisted rules and thresholds win over the file
	rules := cfg.Policy.Rules
	thresholds := cfg.Policy.Thresholds
	if pgStore != nil {
		if stored, err := pgStore.LoadRules(context.Background()); err != nil {
			logger.Warn("stored rules unavailable", zap.Error(err))
		} else if len(stored) > 0 {
			rules = stored
			logger.Info("loaded persisted rules", zap.Int("count", len(stored)))
		}
		switch stored, err := pgStore.LoadThresholds(context.Background()); {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			logger.Warn("stored thresholds unavailable", zap.Error(err))
		default:
			thresholds = stored
			logger.Info("loaded persisted thresholds",
				zap.Float64("require_elevated", stored.RequireElevated),
				zap.Float64("quarantine", stored.Quarantine),
				zap.Float64("lockdown", stored.Lockdown),
			)
		}
	}

	ruleEngine := engine.NewRuleEngine(engine.BuiltinDetectors(), rules, logger)
	policy, err := engine.NewPolicyEngine(ruleEngine, thresholds, engine.DefaultPlaybooks(), logger)
	if err != nil {
		logger.Fatal("policy engine setup failed", zap.Error(err))
	}

	m := metrics.New(nil)
	loop := feedback.NewLoop(logger)
	coord := coordinator.New(policy, loop, writer, m, logger)

	// HTTP API server
	deps := &api.Dependencies{
		Coordinator: coord,
		Features:    features,
		Reader:      chReader,
		Store:       pgStore,
		Keys:        cfg.Auth.Keys,
		Learning:    cfg.Learning,
		Metrics:     promhttp.Handler(),
		Logger:      logger,
		CacheTTL:    cfg.Auth.CacheTTL,
	}
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Config reload — swaps the rule list and ladder without restart
	if *configPath != "" {
		watcher, err := config.NewWatcher(*configPath, logger)
		if err != nil {
			logger.Warn("config watcher unavailable", zap.Error(err))
		} else {
			go watcher.Watch(ctx, func(next *config.Config) {
				policy.RuleEngine().ReplaceRules(next.Policy.Rules)
				if err := policy.SetThresholds(next.Policy.Thresholds); err != nil {
					logger.Warn("reloaded thresholds rejected", zap.Error(err))
				}
			})
		}
	}

	// Threshold tuning schedule
	tn := tuner.New(loop, policy, tuner.Options{
		Apply:        cfg.Learning.ApplyAdjustments,
		DriftHorizon: cfg.Learning.DriftHorizon,
		Saver:        thresholdSaver(pgStore),
		Metrics:      m,
	}, logger)
	if err := tn.Start(cfg.Learning.TuneSchedule); err != nil {
		logger.Fatal("tuner schedule invalid", zap.Error(err))
	}

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

	cancel()
	tn.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	logger.Info("sentinel coordinator stopped")
}

// thresholdSaver avoids handing the tuner a typed-nil interface.
func thresholdSaver(s *store.Store) tuner.ThresholdSaver {
	if s == nil {
		return nil
	}
	return s
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
