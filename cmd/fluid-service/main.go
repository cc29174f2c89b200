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

	"github.com/prometheus/client_golang/prometheus"

	"fluid-service/internal/config"
	"fluid-service/internal/core"
	"fluid-service/internal/hardware"
	"fluid-service/internal/logger"
	"fluid-service/internal/messaging"
	"fluid-service/internal/metrics"
	"fluid-service/internal/states"
)

func main() {
	// Service log level
	var serviceLogLevel int
	flag.IntVar(&serviceLogLevel, "log", 3, "Service log level (0=NONE, 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG)")

	configPath := flag.String("config", "", "Path to a JSON config file")
	redisHost := flag.String("redis-host", "", "Redis host (overrides config)")
	redisPort := flag.Int("redis-port", 0, "Redis port (overrides config)")
	metricsAddr := flag.String("metrics", "", "Address to serve Prometheus metrics on (overrides config)")
	realtime := flag.Bool("realtime", false, "Lock memory and raise scheduling priority")
	autoInit := flag.Bool("auto-init", false, "Request Init right after start")

	flag.Parse()

	// Create standard logger with appropriate format
	var stdLogger *log.Logger
	if os.Getenv("INVOCATION_ID") != "" {
		// Running under systemd, use minimal format
		stdLogger = log.New(os.Stdout, "", 0)
	} else {
		// Running interactively, use timestamps
		stdLogger = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)
	}

	// Create leveled logger
	l := logger.NewLogger(stdLogger, logger.LogLevel(serviceLogLevel))

	l.Infof("Starting fluid service...")

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			l.Fatalf("Failed to load config: %v", err)
		}
	}
	cfg, err := cfg.WithOverrides(config.Overrides{
		RedisHost:   *redisHost,
		RedisPort:   *redisPort,
		MetricsAddr: *metricsAddr,
		Realtime:    *realtime,
		AutoInit:    *autoInit,
	})
	if err != nil {
		l.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.Realtime {
		if err := hardware.PrepareRealtime(l); err != nil {
			l.Warnf("Realtime setup failed, continuing without: %v", err)
		}
	}

	var landed states.LandedDetector
	if cfg.TouchdownGPIO.Enabled() {
		sw, err := hardware.OpenTouchdownSwitch(cfg.TouchdownGPIO, l.WithTag("touchdown"))
		if err != nil {
			l.Fatalf("Failed to open touchdown switch: %v", err)
		}
		defer sw.Close()
		landed = sw
	}

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		m = metrics.New(reg)
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler(reg)}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				l.Errorf("Metrics server failed: %v", err)
			}
		}()
		defer srv.Close()
		l.Infof("Serving metrics on %s", cfg.MetricsAddr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	redis := messaging.NewRedisClient(cfg.Redis.Host, cfg.Redis.Port, l.WithTag("redis"), messaging.Callbacks{})
	session := core.NewSession(cfg, redis)
	system := core.NewFlightSystem(session, redis, landed, m, l)
	if err := system.Start(ctx); err != nil {
		l.Fatalf("Failed to start system: %v", err)
	}

	l.Infof("System started successfully")

	if err := system.Run(ctx); err != nil {
		l.Errorf("Shutdown: %v", err)
	}
	l.Infof("Shutdown complete")
}
