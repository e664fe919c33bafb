// Command sessionwatch serves the admin dashboard session monitor.
//
// Run:
//
//	go run ./cmd/sessionwatch -config sessionwatch.toml
//
// With -dev the monitor runs against an embedded miniredis and development
// logging, so no external services are needed besides the sign-in backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/sessionwatch"
	"github.com/MrEthical07/sessionwatch/internal/audit"
	"github.com/MrEthical07/sessionwatch/internal/config"
	"github.com/MrEthical07/sessionwatch/internal/logging"
	"github.com/MrEthical07/sessionwatch/internal/rate"
	"github.com/MrEthical07/sessionwatch/internal/server"
	otelexport "github.com/MrEthical07/sessionwatch/metrics/export/otel"
	"github.com/MrEthical07/sessionwatch/upstream"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a TOML config file")
		envFile    = flag.String("env", ".env", "dotenv file applied before SW_* variables are read")
		dev        = flag.Bool("dev", false, "embedded redis and development logging")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sessionwatch:", err)
		os.Exit(2)
	}
	if *dev {
		cfg.Redis.Embedded = true
		cfg.Log.Development = true
	}

	logger := logging.New(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("sessionwatch stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	rdb, closeRedis, err := openRedis(cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	builder := sessionwatch.New().
		WithConfig(cfg.Monitor()).
		WithRedis(rdb).
		WithLogger(logger.Named("monitor"))

	if cfg.Audit.Enabled {
		sink, closeSink, err := openAuditSink(cfg.Audit, logger.Named("audit"))
		if err != nil {
			return err
		}
		defer closeSink()
		builder = builder.WithAuditSink(sink)
	}

	monitor, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build monitor: %w", err)
	}
	defer func() {
		if err := monitor.Close(); err != nil {
			logger.Warn("monitor close failed", zap.Error(err))
		}
	}()

	if cfg.Metrics.OTelInterval > 0 {
		stopOTel, err := startOTel(monitor, cfg.Metrics.OTelInterval, logger.Named("metrics"))
		if err != nil {
			return err
		}
		defer stopOTel()
	}

	auth, err := upstream.New(upstream.Config{
		BaseURL:        cfg.Upstream.BaseURL,
		Timeout:        cfg.Upstream.Timeout,
		PermissionList: cfg.Upstream.Permissions,
		Logger:         logger.Named("upstream"),
	})
	if err != nil {
		return err
	}

	opts := server.Options{
		Config:  cfg,
		Monitor: monitor,
		Auth:    auth,
		Redis:   rdb,
		Logger:  logger.Named("http"),
	}
	if cfg.Throttle.Enabled {
		opts.Throttle = rate.New(rdb, rate.Config{
			Prefix:                cfg.Session.RedisPrefix,
			EnableIPThrottle:      cfg.Throttle.EnableIPThrottle,
			MaxLoginAttempts:      cfg.Throttle.MaxAttempts,
			LoginCooldownDuration: cfg.Throttle.Cooldown,
		})
	}

	srv, err := server.New(opts)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

// startOTel publishes the monitor through an OTel meter whose periodic
// reader logs every collection.
func startOTel(m *sessionwatch.Monitor, interval time.Duration, logger *zap.Logger) (func(), error) {
	reader := sdkmetric.NewPeriodicReader(otelexport.NewLogExporter(logger), sdkmetric.WithInterval(interval))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	exp, err := otelexport.NewOTelExporter(provider.Meter("sessionwatch"), m)
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, fmt.Errorf("otel exporter: %w", err)
	}
	return func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("otel meter provider shutdown failed", zap.Error(err))
		}
		_ = exp.Close()
	}, nil
}

func openRedis(cfg config.RedisConfig, logger *zap.Logger) (redis.UniversalClient, func(), error) {
	addr := cfg.Addr
	var mr *miniredis.Miniredis
	if cfg.Embedded {
		var err error
		mr, err = miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("start embedded redis: %w", err)
		}
		addr = mr.Addr()
		logger.Info("embedded redis started", zap.String("addr", addr))
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return rdb, func() {
		_ = rdb.Close()
		if mr != nil {
			mr.Close()
		}
	}, nil
}

// openAuditSink fans events out to every configured destination. With none
// configured events go to stdout as JSON lines.
func openAuditSink(cfg config.AuditConfig, logger *zap.Logger) (audit.Sink, func(), error) {
	var (
		sinks   audit.MultiSink
		closers []func() error
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Warn("audit sink close failed", zap.Error(err))
			}
		}
	}

	if cfg.JSONFile != "" {
		w := &lumberjack.Logger{Filename: cfg.JSONFile, MaxSize: 100, MaxBackups: 5, Compress: true}
		sinks = append(sinks, audit.NewJSONWriterSink(w))
		closers = append(closers, w.Close)
	}
	if cfg.AMQP.URL != "" {
		amqpSink, err := audit.DialAMQP(audit.AMQPConfig{
			URL:           cfg.AMQP.URL,
			Exchange:      cfg.AMQP.Exchange,
			RoutingPrefix: cfg.AMQP.RoutingPrefix,
		}, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, amqpSink)
		closers = append(closers, amqpSink.Close)
	}

	switch len(sinks) {
	case 0:
		return audit.NewJSONWriterSink(os.Stdout), closeAll, nil
	case 1:
		return sinks[0], closeAll, nil
	}
	return sinks, closeAll, nil
}

