package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"landescrow/config"
	"landescrow/core/events"
	"landescrow/core/state"
	"landescrow/native/escrow"
	"landescrow/native/property"
	"landescrow/observability"
	"landescrow/observability/logging"
	telemetry "landescrow/observability/otel"
	"landescrow/rpc"
	"landescrow/services/indexer"
	"landescrow/storage"
)

const serviceName = "escrowd"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	allowMigrateFlag := flag.Bool("allow-migrate", false, "Allow starting with a mismatched state schema (manual migrations only)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *allowMigrateFlag {
		cfg.AllowMigrate = true
	}

	env := strings.TrimSpace(os.Getenv("LANDESCROW_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger := logging.Setup(serviceName, env, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		logger.Error("Failed to initialise telemetry", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	n, err := newNode(cfg, logger)
	if err != nil {
		logger.Error("Failed to start escrow node", slog.Any("error", err))
		os.Exit(1)
	}
	defer n.Close()

	logger.Info("Escrow node starting",
		slog.String("listen", cfg.ListenAddress),
		slog.String("backend", cfg.Backend),
		slog.Bool("indexer", n.index != nil))
	if err := n.server.ListenAndServe(ctx, cfg.ListenAddress); err != nil {
		logger.Error("JSON-RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Escrow node stopped")
}

// node bundles the long-lived collaborators of the daemon.
type node struct {
	db     storage.Database
	engine *escrow.Engine
	index  *indexer.Store
	stream *events.Broadcaster
	server *rpc.Server
	logger *slog.Logger
}

func newNode(cfg *config.Config, logger *slog.Logger) (_ *node, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	n := &node{logger: logger}
	defer func() {
		if err != nil {
			n.Close()
		}
	}()

	n.db, err = openDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	schema, err := state.CheckSchema(n.db, cfg.AllowMigrate)
	if err != nil {
		if errors.Is(err, state.ErrSchemaMismatch) {
			return nil, fmt.Errorf("%w (restart with -allow-migrate to override)", err)
		}
		return nil, err
	}
	if schema != state.CurrentSchema {
		logger.Warn("ledger schema mismatch tolerated",
			slog.Uint64("stored", uint64(schema)),
			slog.Uint64("expected", uint64(state.CurrentSchema)))
	}

	lands, err := openDirectory(cfg)
	if err != nil {
		return nil, fmt.Errorf("property directory: %w", err)
	}
	owner, err := cfg.OwnerAddress()
	if err != nil {
		return nil, err
	}
	params, err := cfg.EscrowParams()
	if err != nil {
		return nil, err
	}
	if owner == ([20]byte{}) {
		logger.Warn("No owner configured; administrative escrow calls are disabled")
	}

	n.engine = escrow.NewEngine()
	n.engine.SetState(state.NewManager(n.db))
	n.engine.SetDirectory(lands)
	n.engine.SetOwner(owner)
	if err = n.engine.SetDefaultParams(params); err != nil {
		return nil, err
	}

	emitters := events.Multi{events.EmitterFunc(recordMetrics)}
	if cfg.Indexer.Enabled {
		if err = os.MkdirAll(filepath.Dir(cfg.IndexerPath()), 0o755); err != nil {
			return nil, err
		}
		n.index, err = indexer.Open(cfg.IndexerPath(), logger)
		if err != nil {
			return nil, fmt.Errorf("open event index: %w", err)
		}
		emitters = append(emitters, n.index)
	}
	n.stream = events.NewBroadcaster(events.DefaultSubscriberBuffer)
	emitters = append(emitters, n.stream)
	n.engine.SetEmitter(emitters)

	if current, perr := n.engine.Params(); perr == nil {
		observability.Escrow().SetPlatformFee(current.FeeBps)
	}

	secret, err := cfg.JWTSecret()
	if err != nil {
		return nil, err
	}
	n.server, err = rpc.NewServer(n.engine, lands, rpc.ServerConfig{
		JWTSecret:          secret,
		JWTIssuer:          cfg.RPC.JWTIssuer,
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
		ReadHeaderTimeout:  time.Duration(cfg.RPC.ReadHeaderTimeout) * time.Second,
		ShutdownTimeout:    time.Duration(cfg.RPC.ShutdownTimeout) * time.Second,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}
	if n.index != nil {
		n.server.SetEventHistory(n.index)
	}
	n.server.SetBroadcaster(n.stream)
	return n, nil
}

// Close releases the index and the ledger database.
func (n *node) Close() {
	if n == nil {
		return
	}
	if n.index != nil {
		if err := n.index.Close(); err != nil {
			n.logger.Warn("Failed to close event index", slog.Any("error", err))
		}
		n.index = nil
	}
	if n.db != nil {
		n.db.Close()
		n.db = nil
	}
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return storage.NewMemDB(), nil
	case config.BackendBolt, config.BackendLevelDB:
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		if cfg.Backend == config.BackendBolt {
			db, err := storage.NewBoltDB(cfg.StorePath())
			if err != nil {
				return nil, err
			}
			return db, nil
		}
		db, err := storage.NewLevelDB(cfg.StorePath())
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

func openDirectory(cfg *config.Config) (property.Directory, error) {
	if url := strings.TrimSpace(cfg.Directory.URL); url != "" {
		return property.NewRemote(url, nil)
	}
	if path := strings.TrimSpace(cfg.Directory.File); path != "" {
		return property.LoadFile(path)
	}
	return property.NewStatic(), nil
}

func recordMetrics(evt events.Event) {
	payload, ok := events.Payload(evt)
	if !ok {
		return
	}
	observability.Escrow().RecordEvent(payload.Type, payload.Attributes)
}
