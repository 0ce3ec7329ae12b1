package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/courtside/scorekeeper-server-go/internal/config"
	"github.com/courtside/scorekeeper-server-go/internal/game"
	"github.com/courtside/scorekeeper-server-go/internal/server"
	"github.com/courtside/scorekeeper-server-go/internal/store"
	"github.com/courtside/scorekeeper-server-go/internal/stream"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting scorekeeper server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Event store
	st, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to open event store", zap.Error(err))
	}
	if st != nil {
		defer st.Close()
	}

	bus := game.NewBus()
	sessionOpts := []game.Option{game.WithBus(bus)}

	var writer *store.Writer
	if st != nil {
		writer = store.NewWriter(st, cfg.Database.WriteTimeout, logger.Named("writer"))
		writer.Start(ctx)
		sessionOpts = append(sessionOpts, game.WithSink(writer))
		logger.Info("event writer started")
	}

	// Redis stream and box score cache
	var publisher *stream.Publisher
	if cfg.Redis.Enabled {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("invalid redis url", zap.Error(err))
		}
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, publishing will retry per update", zap.Error(err))
		}
		publisher = stream.NewPublisher(rdb, stream.Options{
			StreamPrefix: cfg.Redis.StreamPrefix,
			MaxLen:       cfg.Redis.StreamMaxLen,
			BoxScoreTTL:  cfg.Redis.BoxScoreTTL,
			QueueSize:    cfg.Redis.QueueSize,
		}, logger.Named("stream"))
		bus.Subscribe(publisher.Notify)
		go publisher.Run(ctx)
		logger.Info("redis publisher started", zap.String("stream_prefix", cfg.Redis.StreamPrefix))
	}

	managerOpts := []game.ManagerOption{game.WithSessionOptions(sessionOpts...)}
	if cfg.Server.ArchiveDir != "" {
		managerOpts = append(managerOpts, game.WithArchiveDir(cfg.Server.ArchiveDir))
	}
	gameMgr := game.NewManager(logger.Named("games"), managerOpts...)
	logger.Info("game manager initialized", zap.String("archive_dir", cfg.Server.ArchiveDir))

	go tick(ctx, gameMgr, cfg.Server.TickInterval)

	srv := server.New(server.Options{
		Manager:     gameMgr,
		Bus:         bus,
		Store:       st,
		Publisher:   publisher,
		Rules:       cfg.Rules,
		CORSOrigins: cfg.Server.HTTP.CORSOrigins,
		Logger:      logger.Named("http"),
	})
	go srv.Run(ctx)

	httpServer := &http.Server{
		Addr:         cfg.Server.HTTP.Address,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
	}
	go func() {
		logger.Info("starting HTTP server", zap.String("address", cfg.Server.HTTP.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	// gRPC health
	var pinger server.Pinger
	if st != nil {
		pinger = st
	}
	healthServer := server.NewHealthServer(pinger, cfg.Server.GRPC.MaxConcurrentStreams, logger.Named("grpc"))
	go healthServer.Watch(ctx, cfg.Server.GRPC.HealthInterval)

	lis, err := net.Listen("tcp", cfg.Server.GRPC.Address)
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}
	go func() {
		logger.Info("starting gRPC server", zap.String("address", cfg.Server.GRPC.Address))
		if serveErr := healthServer.Server().Serve(lis); serveErr != nil {
			logger.Error("gRPC server error", zap.Error(serveErr))
		}
	}()

	logger.Info("scorekeeper server initialized",
		zap.String("version", version),
		zap.String("http_address", cfg.Server.HTTP.Address),
		zap.String("grpc_address", cfg.Server.GRPC.Address),
		zap.String("database_driver", cfg.Database.Driver),
		zap.Bool("redis", cfg.Redis.Enabled),
	)

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	logger.Info("shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	healthServer.Shutdown()

	// Unloading archives each game when an archive directory is configured.
	for _, id := range gameMgr.List() {
		if err := gameMgr.Remove(id); err != nil {
			logger.Warn("failed to unload game", zap.String("game_id", id), zap.Error(err))
		}
	}

	cancel()
	if writer != nil {
		writer.Close()
	}
	if publisher != nil {
		publisher.Wait()
	}

	logger.Info("scorekeeper server stopped")
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (store.EventStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return store.OpenPostgres(ctx, cfg.URL, cfg.MaxConns, logger.Named("postgres"))
	case config.DriverSQLite:
		st, err := store.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite event store opened", zap.String("path", cfg.Path))
		return st, nil
	}
	logger.Warn("no event store configured; games live in memory only")
	return nil, nil
}

// tick advances running game clocks until ctx is cancelled.
func tick(ctx context.Context, mgr *game.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mgr.TickAll()
		}
	}
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
