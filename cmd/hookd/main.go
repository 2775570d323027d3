package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/garyjia/hookbus/internal/config"
	"github.com/garyjia/hookbus/internal/filters"
	httpapi "github.com/garyjia/hookbus/internal/interfaces/http"
	"github.com/garyjia/hookbus/internal/journal"
	"github.com/garyjia/hookbus/internal/script"
	"github.com/garyjia/hookbus/internal/worker"
	"github.com/garyjia/hookbus/pkg/database"
	"github.com/garyjia/hookbus/pkg/hooks"
	"github.com/garyjia/hookbus/pkg/utils"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "hookd",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("hookd exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("hookd exited successfully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting hookd",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("journal", cfg.Journal.Enabled))

	workers := worker.NewManager(logger)
	opts := []hooks.Option{hooks.WithLogger(logger)}

	var reader httpapi.JournalReader
	if cfg.Journal.Enabled {
		db, err := database.New(database.Config{
			Path:            cfg.Database.Path,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()

		store := journal.NewStore(db, logger)
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run journal migrations: %w", err)
		}

		recorder := journal.NewRecorder(store, cfg.Journal.BufferSize, logger)
		workers.Register(recorder)
		opts = append(opts, hooks.WithObserver(recorder))
		reader = store
	}

	// Workers outlive the signal context; the deferred StopAll runs after
	// the server has finished its in-flight runs.
	if err := workers.StartAll(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	logger.Info("Workers started", zap.Int("count", workers.Count()))
	defer func() {
		if !workers.IsRunning() {
			return
		}
		if err := workers.StopAll(); err != nil {
			logger.Error("Failed to stop workers", zap.Error(err))
		}
	}()

	dispatcher := hooks.New(opts...)
	hooks.SetDefault(dispatcher)

	bindings := make([]filters.Binding, 0, len(cfg.Filters))
	for _, f := range cfg.Filters {
		bindings = append(bindings, filters.Binding{
			Tag:      f.Tag,
			Name:     f.Name,
			Priority: f.PriorityOr(hooks.DefaultPriority),
		})
	}
	if err := filters.Bind(dispatcher, bindings); err != nil {
		return fmt.Errorf("failed to bind filters: %w", err)
	}
	logger.Info("Built-in filters bound",
		zap.Int("count", len(bindings)),
		zap.Strings("available", filters.Names()))

	engine := script.NewEngine(dispatcher, logger)
	defer engine.Close()

	if cfg.Scripts.Dir != "" {
		n, err := engine.LoadDir(cfg.Scripts.Dir)
		if err != nil {
			return fmt.Errorf("failed to load scripts: %w", err)
		}
		logger.Info("Scripts loaded", zap.String("dir", cfg.Scripts.Dir), zap.Int("count", n))
	}
	for _, path := range cfg.Scripts.Files {
		if err := engine.LoadFile(path); err != nil {
			return fmt.Errorf("failed to load script %s: %w", path, err)
		}
	}
	logger.Info("Script engine ready", zap.Strings("scripts", engine.Loaded()))

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, dispatcher, reader, logger)

	// Blocks until a signal arrives or the listener fails
	return server.Start(ctx)
}
