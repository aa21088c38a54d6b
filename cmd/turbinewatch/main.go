package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/HerbHall/turbinewatch/internal/alert"
	"github.com/HerbHall/turbinewatch/internal/analysis"
	"github.com/HerbHall/turbinewatch/internal/auth"
	"github.com/HerbHall/turbinewatch/internal/capability/remote"
	"github.com/HerbHall/turbinewatch/internal/catalog"
	"github.com/HerbHall/turbinewatch/internal/config"
	"github.com/HerbHall/turbinewatch/internal/escalation"
	"github.com/HerbHall/turbinewatch/internal/event"
	"github.com/HerbHall/turbinewatch/internal/history"
	"github.com/HerbHall/turbinewatch/internal/ingest"
	"github.com/HerbHall/turbinewatch/internal/insight/anomaly"
	"github.com/HerbHall/turbinewatch/internal/insight/forecast"
	"github.com/HerbHall/turbinewatch/internal/journal"
	"github.com/HerbHall/turbinewatch/internal/llm/ollama"
	"github.com/HerbHall/turbinewatch/internal/mqtt"
	"github.com/HerbHall/turbinewatch/internal/pipeline"
	"github.com/HerbHall/turbinewatch/internal/registry"
	"github.com/HerbHall/turbinewatch/internal/server"
	"github.com/HerbHall/turbinewatch/internal/store"
	"github.com/HerbHall/turbinewatch/internal/version"
	"github.com/HerbHall/turbinewatch/internal/webhook"
	"github.com/HerbHall/turbinewatch/internal/ws"
	"github.com/HerbHall/turbinewatch/pkg/analytics"
	"github.com/HerbHall/turbinewatch/pkg/plugin"
)

func main() {
	// Subcommand dispatch (before flag.Parse).
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "backup":
			runBackup(os.Args[2:])
			return
		case "restore":
			runRestore(os.Args[2:])
			return
		case "token":
			runToken(os.Args[2:])
			return
		case "version":
			fmt.Println(version.Info())
			return
		}
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Load configuration (before logger, so log level/format can be configured).
	v, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, rotate, err := config.NewLogger(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("TurbineWatch engine starting", zap.String("version", version.Short()))

	if f := v.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Warn("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	if err := run(v, logger, rotate); err != nil {
		logger.Error("engine stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("TurbineWatch engine stopped")
}

// run wires every component and blocks until SIGINT or SIGTERM.
func run(v *viper.Viper, logger *zap.Logger, rotate config.RotateFunc) error {
	// Point catalog
	catCfg := catalog.DefaultConfig()
	if err := config.Decode(v, "catalog", &catCfg); err != nil {
		return err
	}
	cat, err := catalog.Load(catCfg)
	if err != nil {
		return fmt.Errorf("load point catalog: %w", err)
	}
	for _, d := range cat.Defects() {
		logger.Warn("point catalog defect",
			zap.String("component", "catalog"),
			zap.String("point_id", d.PointID),
			zap.String("field", d.Field),
			zap.String("reason", d.Reason),
		)
	}
	logger.Info("point catalog loaded",
		zap.String("component", "catalog"),
		zap.String("path", catCfg.Path),
		zap.Int("points", cat.Len()),
		zap.Int("defects", len(cat.Defects())),
	)

	// Database
	dbPath := v.GetString("database.path")
	if dbPath == "" {
		dbPath = "turbinewatch.db"
	}
	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := db.CheckVersion(context.Background(), version.Version); err != nil {
		return fmt.Errorf("check database version: %w", err)
	}
	logger.Info("database initialized",
		zap.String("component", "database"),
		zap.String("path", dbPath),
	)

	// Analysis
	engineCfg := analysis.DefaultConfig()
	if err := config.Decode(v, "engine", &engineCfg); err != nil {
		return err
	}
	hist := history.New(history.Capacity(v.GetInt("engine.history_min_capacity"), engineCfg.PredictionPoints))

	clf, fc, err := capabilities(v, logger)
	if err != nil {
		return err
	}
	analyzer := analysis.NewAnalyzer(engineCfg, hist, clf, fc, logger.Named("analysis"))

	alertCfg := alert.DefaultConfig()
	if err := config.Decode(v, "alert", &alertCfg); err != nil {
		return err
	}
	correlator := alert.New(alertCfg, cat, hist, logger.Named("alert"))

	// Expert escalation
	var analyst analytics.FaultAnalyzer
	if v.GetBool("escalation.enabled") {
		llmCfg := ollama.DefaultConfig()
		if err := config.Decode(v, "llm", &llmCfg); err != nil {
			return err
		}
		provider, err := ollama.New(llmCfg, logger.Named("llm"))
		if err != nil {
			return fmt.Errorf("create LLM provider: %w", err)
		}
		escCfg := escalation.DefaultConfig()
		if err := config.Decode(v, "escalation", &escCfg); err != nil {
			return err
		}
		analyst = escalation.New(provider, escCfg, logger.Named("escalation"))
		logger.Info("expert escalation enabled",
			zap.String("component", "escalation"),
			zap.String("llm_url", llmCfg.URL),
			zap.String("model", llmCfg.Model),
		)
	} else {
		logger.Info("expert escalation disabled", zap.String("component", "escalation"))
	}

	bus := event.NewBus(logger.Named("event"))

	pipeCfg := pipeline.DefaultConfig()
	if err := config.Decode(v, "engine", &pipeCfg); err != nil {
		return err
	}
	pipeEscCfg := pipeline.DefaultEscalationConfig()
	if err := config.Decode(v, "escalation", &pipeEscCfg); err != nil {
		return err
	}
	deps := pipeline.Deps{
		Catalog:    cat,
		History:    hist,
		Analyzer:   analyzer,
		Correlator: correlator,
		Analyst:    analyst,
		Bus:        bus,
		Logger:     logger.Named("pipeline"),
	}
	if rotate != nil {
		deps.Rotate = rotate
		deps.RotateEvery = v.GetDuration("logging.rotate_interval")
	}
	engine := pipeline.New(pipeCfg, pipeEscCfg, deps)

	// Authentication
	var tokens *auth.TokenService
	if v.GetBool("auth.enabled") {
		tokens, err = newTokenService(v, logger)
		if err != nil {
			return err
		}
	}

	// Result sinks (compile-time composition)
	journalCfg := journal.DefaultConfig()
	if err := config.Decode(v, "sinks.journal", &journalCfg); err != nil {
		return err
	}
	mqttCfg := mqtt.DefaultConfig()
	if err := config.Decode(v, "sinks.mqtt", &mqttCfg); err != nil {
		return err
	}
	webhookCfg := webhook.DefaultConfig()
	if err := config.Decode(v, "sinks.webhook", &webhookCfg); err != nil {
		return err
	}
	journalMod := journal.New(journalCfg, db, logger.Named("journal"))
	wsHandler := ws.NewHandler(tokens, engine.Latest, logger.Named("ws"))

	reg := registry.New(logger.Named("registry"))
	for _, s := range []plugin.Sink{
		journalMod,
		mqtt.New(mqttCfg, cat, logger.Named("mqtt")),
		webhook.New(webhookCfg, logger.Named("webhook")),
		wsHandler,
	} {
		if err := reg.Register(s); err != nil {
			return fmt.Errorf("register sink: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := reg.StartAll(ctx, bus); err != nil {
		return fmt.Errorf("start sinks: %w", err)
	}

	// HTTP server
	srvCfg := server.DefaultConfig()
	if err := config.Decode(v, "server", &srvCfg); err != nil {
		return err
	}
	srv := server.New(srvCfg, server.Deps{
		Engine:  engine,
		Catalog: cat,
		Ingest:  ingest.Handler(engine, logger.Named("ingest")),
		Sinks:   reg,
		Ready:   db.Ping,
		Tokens:  tokens,
		Routes:  []server.RouteRegistrar{journalMod, wsHandler},
		Logger:  logger.Named("server"),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	streamCfg := ingest.DefaultStreamConfig()
	if err := config.Decode(v, "ingest.redis", &streamCfg); err != nil {
		return err
	}
	if streamCfg.Enabled {
		client, err := ingest.NewClient(ctx, streamCfg)
		if err != nil {
			// Keep serving HTTP ingestion; the stream is an optional source.
			logger.Warn("redis stream ingestion unavailable", zap.Error(err))
		} else {
			defer client.Close()
			consumer := ingest.NewConsumer(streamCfg, client, engine, logger.Named("ingest"))
			g.Go(func() error { return consumer.Run(gctx) })
		}
	}

	logger.Info("TurbineWatch engine ready",
		zap.String("addr", srv.Addr()),
		zap.Bool("auth", tokens != nil),
	)

	err = g.Wait()

	// The pipeline has drained by now, so every event it published has
	// reached the sinks.
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reg.StopAll(stopCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// capabilities builds the pattern classifier and the forecaster, either
// in-process or backed by the remote capability service.
func capabilities(v *viper.Viper, logger *zap.Logger) (analytics.Classifier, analytics.Forecaster, error) {
	switch mode := v.GetString("capability.mode"); mode {
	case "", "builtin":
		anomalyCfg := anomaly.DefaultConfig()
		if err := config.Decode(v, "capability.anomaly", &anomalyCfg); err != nil {
			return nil, nil, err
		}
		kind := v.GetString("capability.forecaster")
		logger.Info("using built-in capabilities",
			zap.String("component", "capability"),
			zap.String("forecaster", kind),
		)
		fc := forecast.New(kind, v.GetInt("capability.neighbours"),
			v.GetFloat64("capability.holt_alpha"), v.GetFloat64("capability.holt_beta"))
		return anomaly.NewClassifier(anomalyCfg), fc, nil
	case "remote":
		remoteCfg := remote.DefaultConfig()
		if err := config.Decode(v, "capability.remote", &remoteCfg); err != nil {
			return nil, nil, err
		}
		logger.Info("using remote capability service",
			zap.String("component", "capability"),
			zap.String("url", remoteCfg.URL),
		)
		c := remote.New(remoteCfg, logger.Named("capability"))
		return c, c, nil
	default:
		return nil, nil, fmt.Errorf("unknown capability mode %q (want builtin or remote)", mode)
	}
}

func newTokenService(v *viper.Viper, logger *zap.Logger) (*auth.TokenService, error) {
	secret := v.GetString("auth.jwt_secret")
	if secret == "" {
		// Generate an ephemeral secret -- tokens won't survive restarts.
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate JWT secret: %w", err)
		}
		secret = hex.EncodeToString(b)
		logger.Warn("using auto-generated JWT secret; set auth.jwt_secret to issue tokens with the token subcommand",
			zap.String("component", "auth"),
		)
	}
	tokens, err := auth.NewTokenService([]byte(secret), v.GetDuration("auth.token_ttl"))
	if err != nil {
		return nil, fmt.Errorf("create token service: %w", err)
	}
	logger.Info("authentication enabled",
		zap.String("component", "auth"),
		zap.Duration("token_ttl", tokens.TTL()),
	)
	return tokens, nil
}
