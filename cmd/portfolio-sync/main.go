// cmd/portfolio-sync/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"portfolio-sync/internal/aggregator"
	"portfolio-sync/internal/alerts"
	"portfolio-sync/internal/api"
	"portfolio-sync/internal/auth"
	"portfolio-sync/internal/common/config"
	"portfolio-sync/internal/common/database"
	apperrors "portfolio-sync/internal/common/errors"
	"portfolio-sync/internal/common/logger"
	"portfolio-sync/internal/common/observability"
	"portfolio-sync/internal/common/validation"
	"portfolio-sync/internal/models"
	"portfolio-sync/internal/notifications"
	"portfolio-sync/internal/push"
	"portfolio-sync/internal/snapshot"
	"portfolio-sync/pkg/registry"
)

func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// set via ldflags
var version = "dev"

func main() {
	versionFlag := flag.Bool("version", false, "Print version information and exit")
	configPath := flag.String("config", "", "Path to config file (default: configs/config.yaml lookup)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("portfolio-sync %s\n", version)
		os.Exit(0)
	}

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting portfolio sync...",
		zap.String("version", version),
		zap.String("apiMode", cfg.API.Mode),
		zap.String("pushDriver", cfg.Push.Driver),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errHandler := apperrors.NewErrorHandler(log)
	tokens := api.NewMemoryTokenStore(cfg.API.Token)

	client, err := buildClient(cfg, tokens, log)
	if err != nil {
		zapLog.Fatal("api client setup failed", zap.Error(err))
	}

	// --- Redis (snapshot sink and redis push driver) ---
	var redis *database.RedisClient
	if cfg.Snapshot.Enabled || cfg.Push.Driver == config.PushDriverRedis {
		err = retryWithBackoff(func() error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")

		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		zapLog.Info("Redis connected successfully")
	}

	// --- Aggregator ---
	aggOpts := aggregator.Options{
		Deadline:      config.GetDuration(cfg.Aggregator.Deadline),
		Observability: obs,
		OnProgress: func(percent int) {
			zapLog.Debug("aggregation progress", zap.Int("percent", percent))
		},
	}
	if cfg.Snapshot.Enabled {
		aggOpts.Sink = snapshot.NewRedisSink(redis.GetClient(), cfg.Snapshot, log)
	}
	agg := aggregator.New(client, log, aggOpts)

	// --- Push transport ---
	factory, err := push.NewFactory(cfg.Push, nil, redis, log)
	if err != nil {
		zapLog.Fatal("push setup failed", zap.Error(err))
	}
	var manager *push.Manager
	if factory != nil {
		manager = push.NewManager(factory, log)
	}

	// --- Notifications ---
	notifier, err := alerts.NewFromConfig(ctx, cfg.Alerts, log)
	if err != nil {
		zapLog.Fatal("alerts setup failed", zap.Error(err))
	}

	validator, err := validation.NewNotificationEventValidator()
	if err != nil {
		zapLog.Fatal("push payload schema failed to compile", zap.Error(err))
	}

	n := cfg.Notifications
	syncOpts := notifications.Options{
		PollInterval:         config.GetDuration(n.PollInterval),
		ListPath:             n.ListPath,
		ReadPath:             n.ReadPath,
		DeletePath:           n.DeletePath,
		PrivateChannelPrefix: n.PrivateChannelPrefix,
		BroadcastChannel:     n.BroadcastChannel,
		NotificationEvent:    n.NotificationEvent,
		MessageEvents:        n.MessageEvents,
		ToastPreview:         n.Toast.PreviewLength,
		ToastDuration:        config.GetDuration(n.Toast.Duration),
		Notifier:             notifier,
		Validator:            validator,
		Observability:        obs,
	}
	if manager != nil {
		syncOpts.Push = manager
	}
	synchronizer := notifications.NewSynchronizer(client, syncOpts, log)

	// --- Session ---
	var connector auth.Connector
	if manager != nil {
		connector = manager
	}
	session := auth.NewSession(client, tokens, connector, log)
	session.OnPrincipalChange(func(ctx context.Context, p *models.Principal) {
		if p == nil {
			synchronizer.Unbind()
			return
		}
		if err := synchronizer.Bind(ctx, p); err != nil {
			zapLog.Warn("initial notification refresh failed", zap.Error(err), zap.String("principalId", p.ID))
		}
	})

	if tokens.Token() != "" {
		if _, err := session.CheckAuth(ctx); err != nil {
			errHandler.Handle("auth", err)
		}
	}

	// --- Aggregation loop ---
	done := make(chan struct{})
	go func() {
		defer close(done)
		runAggregation(ctx, agg, cfg.Aggregator.Authenticated || session.Authenticated(), errHandler, zapLog)

		interval := config.GetDuration(cfg.Aggregator.RefreshInterval)
		if interval <= 0 {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runAggregation(ctx, agg, cfg.Aggregator.Authenticated || session.Authenticated(), errHandler, zapLog)
			}
		}
	}()

	// --- Health/Metrics server ---
	var srv *http.Server
	if cfg.Metrics.Enabled {
		srv = &http.Server{
			Addr: cfg.Metrics.Address,
			Handler: newRouter(statusSources{
				aggregator:    agg,
				notifications: synchronizer,
				authenticated: session.Authenticated,
				version:       version,
			}),
		}
		go func() {
			zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.Address))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zapLog.Error("Health/Metrics server failed", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	cancel()
	<-done

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()

	synchronizer.Unbind()
	if manager != nil {
		manager.Disconnect()
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zapLog.Error("Error stopping Health/Metrics server", zap.Error(err))
		}
	}

	zapLog.Info("Portfolio sync stopped gracefully")
}

func runAggregation(ctx context.Context, agg *aggregator.Aggregator, authenticated bool, errHandler *apperrors.ErrorHandler, log *zap.Logger) {
	snap, err := agg.Aggregate(ctx, authenticated)
	if err != nil {
		errHandler.Handle("aggregator", err)
		return
	}
	log.Info("snapshot published",
		zap.Bool("authenticated", snap.Authenticated),
		zap.Bool("timedOut", snap.TimedOut),
		zap.Int("degraded", len(snap.Degraded)),
	)
}

// buildClient wires the real client, the simulated one, or a switch between
// them when some endpoints are forced real.
func buildClient(cfg *config.Config, tokens api.TokenStore, log logger.Logger) (api.Client, error) {
	httpClient := api.NewHTTPClient(api.HTTPClientOptions{
		BaseURL:           cfg.API.BaseURL,
		Timeout:           config.GetDuration(cfg.API.Timeout),
		Tokens:            tokens,
		LoginPath:         cfg.API.LoginPath,
		InAdminArea:       func() bool { return cfg.API.AdminArea },
		RequestsPerSecond: cfg.API.RateLimit.RequestsPerSecond,
		Burst:             cfg.API.RateLimit.Burst,
		OnLoginRequired: func() {
			log.Warn("session expired, login required", map[string]interface{}{"loginPath": cfg.API.LoginPath})
		},
	}, log)

	if cfg.API.Mode == config.APIModeReal {
		return httpClient, nil
	}

	reg, err := loadRegistry(cfg.API.Mock.RegistryPath)
	if err != nil {
		return nil, err
	}
	mock := api.NewMockClient(api.MockClientOptions{
		Registry:   reg,
		MinLatency: config.GetDuration(cfg.API.Mock.MinLatency),
		MaxLatency: config.GetDuration(cfg.API.Mock.MaxLatency),
		Tokens:     tokens,
	}, log)

	if len(cfg.API.ForceRealEndpoints) == 0 {
		return mock, nil
	}
	sw, err := api.NewSwitch(httpClient, mock, cfg.API.ForceRealEndpoints)
	if err != nil {
		return nil, err
	}
	return sw, nil
}

func loadRegistry(path string) (*registry.MockRegistry, error) {
	if path == "" {
		return registry.Default()
	}
	return registry.LoadRegistry(path)
}
