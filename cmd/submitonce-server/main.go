// Command submitonce-server runs the submission ledger behind an HTTP API.
//
// Configuration layers in order: built-in defaults, an optional YAML file
// named by -config, SUBMITONCE_* environment variables, then flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/clearway/submitonce/httpapi"
	"github.com/clearway/submitonce/ledger"
	submitprom "github.com/clearway/submitonce/prometheus"
)

const exitUsage = 2

const (
	defaultAddr              = ":8080"
	defaultShutdownTimeout   = 10 * time.Second
	defaultPendingInterval   = 5 * time.Second
	defaultRateBurst         = 20
	limiterIdleTTL           = 10 * time.Minute
	metricsReadHeaderTimeout = 5 * time.Second
	metricsShutdownTimeout   = 5 * time.Second
)

// serverConfig holds every tunable of the server. Zero simulator values
// defer to the simulator defaults, so a minimal config file stays minimal.
type serverConfig struct {
	Addr            string        `yaml:"addr"            env:"SUBMITONCE_ADDR"`
	MetricsAddr     string        `yaml:"metricsAddr"     env:"SUBMITONCE_METRICS_ADDR"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"SUBMITONCE_SHUTDOWN_TIMEOUT"`
	RateLimitRPS    float64       `yaml:"rateLimitRps"    env:"SUBMITONCE_RATE_LIMIT_RPS"`
	RateLimitBurst  int           `yaml:"rateLimitBurst"  env:"SUBMITONCE_RATE_LIMIT_BURST"`
	PendingInterval time.Duration `yaml:"pendingInterval" env:"SUBMITONCE_PENDING_INTERVAL"`
	SuccessWeight   int           `yaml:"successWeight"   env:"SUBMITONCE_SUCCESS_WEIGHT"`
	TransientWeight int           `yaml:"transientWeight" env:"SUBMITONCE_TRANSIENT_WEIGHT"`
	DelayedWeight   int           `yaml:"delayedWeight"   env:"SUBMITONCE_DELAYED_WEIGHT"`
	DelayMin        time.Duration `yaml:"delayMin"        env:"SUBMITONCE_DELAY_MIN"`
	DelayMax        time.Duration `yaml:"delayMax"        env:"SUBMITONCE_DELAY_MAX"`
	RetryAfter      time.Duration `yaml:"retryAfter"      env:"SUBMITONCE_RETRY_AFTER"`
	Seed            int64         `yaml:"seed"            env:"SUBMITONCE_SEED"`
	Verbose         bool          `yaml:"verbose"         env:"SUBMITONCE_VERBOSE"`
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		Addr:            defaultAddr,
		ShutdownTimeout: defaultShutdownTimeout,
		RateLimitBurst:  defaultRateBurst,
		PendingInterval: defaultPendingInterval,
	}
}

// loadConfig resolves defaults, then the YAML file at path when given, then
// environment overrides. Flags are applied by the caller on top.
func loadConfig(path string) (serverConfig, error) {
	cfg := defaultServerConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return serverConfig{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return serverConfig{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return serverConfig{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

func main() {
	var (
		configPath      string
		addr            string
		metricsAddr     string
		shutdownTimeout time.Duration
		rateLimitRPS    float64
		rateLimitBurst  int
		pendingInterval time.Duration
		successWeight   int
		transientWeight int
		delayedWeight   int
		delayMin        time.Duration
		delayMax        time.Duration
		retryAfter      time.Duration
		seed            int64
		verbose         bool
	)

	flag.StringVar(&configPath, "config", "", "Path to a YAML config file (optional)")
	flag.StringVar(&addr, "addr", defaultAddr, "HTTP listen address")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "Prometheus listen address (empty disables /metrics)")
	flag.DurationVar(&shutdownTimeout, "shutdown-timeout", defaultShutdownTimeout, "Graceful shutdown drain timeout")
	flag.Float64Var(&rateLimitRPS, "rate-rps", 0, "Per-client requests per second (0 disables limiting)")
	flag.IntVar(&rateLimitBurst, "rate-burst", defaultRateBurst, "Per-client burst allowance")
	flag.DurationVar(&pendingInterval, "pending-interval", defaultPendingInterval, "Minimum interval between pending gauge samples (0 disables)")
	flag.IntVar(&successWeight, "success-weight", 0, "Immediate success weight (0 uses the simulator default)")
	flag.IntVar(&transientWeight, "transient-weight", 0, "Transient failure weight (0 uses the simulator default)")
	flag.IntVar(&delayedWeight, "delayed-weight", 0, "Delayed success weight (0 uses the simulator default)")
	flag.DurationVar(&delayMin, "delay-min", 0, "Minimum delayed completion (0 uses the simulator default)")
	flag.DurationVar(&delayMax, "delay-max", 0, "Maximum delayed completion (0 uses the simulator default)")
	flag.DurationVar(&retryAfter, "retry-after", 0, "Retry hint attached to transient failures (0 uses the simulator default)")
	flag.Int64Var(&seed, "seed", 0, "Outcome simulator seed (0 draws a random seed)")
	flag.BoolVar(&verbose, "verbose", false, "Enable debug logging")
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(exitUsage)
	}

	// Flags beat the file and the environment, but only when set.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = addr
		case "metrics-addr":
			cfg.MetricsAddr = metricsAddr
		case "shutdown-timeout":
			cfg.ShutdownTimeout = shutdownTimeout
		case "rate-rps":
			cfg.RateLimitRPS = rateLimitRPS
		case "rate-burst":
			cfg.RateLimitBurst = rateLimitBurst
		case "pending-interval":
			cfg.PendingInterval = pendingInterval
		case "success-weight":
			cfg.SuccessWeight = successWeight
		case "transient-weight":
			cfg.TransientWeight = transientWeight
		case "delayed-weight":
			cfg.DelayedWeight = delayedWeight
		case "delay-min":
			cfg.DelayMin = delayMin
		case "delay-max":
			cfg.DelayMax = delayMax
		case "retry-after":
			cfg.RetryAfter = retryAfter
		case "seed":
			cfg.Seed = seed
		case "verbose":
			cfg.Verbose = verbose
		}
	})

	if cfg.Addr == "" {
		fmt.Fprintln(os.Stderr, "listen address is required")
		flag.Usage()
		os.Exit(exitUsage)
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg serverConfig) error {
	metrics := submitprom.New(prometheus.DefaultRegisterer)

	sim := ledger.NewRandomSimulator(
		ledger.WithWeights(cfg.SuccessWeight, cfg.TransientWeight, cfg.DelayedWeight),
		ledger.WithDelayBounds(cfg.DelayMin, cfg.DelayMax),
		ledger.WithRetryAfter(cfg.RetryAfter),
		ledger.WithSeed(cfg.Seed),
	)
	led := ledger.NewLedger(
		ledger.WithSimulator(sim),
		ledger.WithLogger(logger),
		ledger.WithMetrics(metrics),
		ledger.WithPendingInterval(cfg.PendingInterval),
	)
	defer func() { _ = led.Close() }()

	limiter := httpapi.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, limiterIdleTTL)
	handler := httpapi.Wrap(logger, limiter, httpapi.NewHandler(led, httpapi.WithLogger(logger)))

	if cfg.Seed != 0 {
		logger.Info("outcome simulator seeded", "seed", cfg.Seed)
	}

	// A metrics listener failure shuts the API server down as well.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	metricsErr := make(chan error, 1)
	if cfg.MetricsAddr != "" {
		go func() {
			if err := serveMetrics(ctx, logger, cfg.MetricsAddr); err != nil {
				metricsErr <- err
				cancel()
			}
		}()
	}

	err := httpapi.Run(ctx, logger, httpapi.ServerConfig{
		Addr:            cfg.Addr,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, handler)
	select {
	case merr := <-metricsErr:
		if err == nil {
			err = fmt.Errorf("metrics server: %w", merr)
		}
	default:
	}

	return err
}

// serveMetrics exposes the default Prometheus registry on its own listener,
// kept off the public API address.
func serveMetrics(ctx context.Context, logger *slog.Logger, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
