package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/vyrodovalexey/tokengate/internal/auth/jwt"
	"github.com/vyrodovalexey/tokengate/internal/backend"
	"github.com/vyrodovalexey/tokengate/internal/config"
	httpserver "github.com/vyrodovalexey/tokengate/internal/gateway/server/http"
	"github.com/vyrodovalexey/tokengate/internal/observability"
	"github.com/vyrodovalexey/tokengate/internal/ratelimit"
	"github.com/vyrodovalexey/tokengate/internal/router"
	"github.com/vyrodovalexey/tokengate/internal/secrets"
)

const metricsNamespace = "gateway"

// application holds all gateway components.
type application struct {
	config    *config.Config
	logger    observability.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	limiter   *ratelimit.TokenBucketLimiter
	registry  *backend.Registry
	monitor   *backend.Monitor
	forwarder *router.HTTPForwarder
	router    *router.Router
	server    *httpserver.Server
}

// initApplication wires every component from cfg. Nothing is started.
func initApplication(ctx context.Context, cfg *config.Config, logger observability.Logger) (*application, error) {
	metrics := observability.NewMetrics(metricsNamespace)
	metrics.SetBuildInfo(version, gitCommit, buildTime)

	tracer, err := initTracer(cfg.Tracing, logger)
	if err != nil {
		return nil, err
	}

	verifier, err := initVerifier(ctx, cfg.Auth, logger, metrics)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.NewTokenBucketLimiter(
		cfg.RateLimit.Capacity,
		cfg.RateLimit.Window.Duration(),
		ratelimit.WithLogger(logger.With(observability.String("component", "ratelimit"))),
		ratelimit.WithMetrics(metrics),
		ratelimit.WithIdleTTL(cfg.RateLimit.EffectiveIdleTTL()),
		ratelimit.WithSweepInterval(cfg.RateLimit.EffectiveSweepInterval()),
	)

	registry, err := backend.NewRegistry(cfg.Backends, logger.With(observability.String("component", "registry")))
	if err != nil {
		_ = limiter.Close()
		return nil, fmt.Errorf("failed to create backend registry: %w", err)
	}
	metrics.SetHealthyBackends(registry.HealthyCount())

	monitor := backend.NewMonitor(registry,
		backend.WithInterval(cfg.Health.Interval.Duration()),
		backend.WithTimeout(cfg.Health.Timeout.Duration()),
		backend.WithPath(cfg.Health.Path),
		backend.WithMonitorLogger(logger.With(observability.String("component", "health"))),
		backend.WithMonitorMetrics(metrics),
	)

	forwarderOpts := []router.ForwarderOption{
		router.WithForwardTimeout(cfg.Forward.Timeout.Duration()),
		router.WithForwardPath(cfg.Forward.Path),
		router.WithForwarderLogger(logger.With(observability.String("component", "forwarder"))),
	}
	if cfg.Forward.CircuitBreaker.Enabled {
		forwarderOpts = append(forwarderOpts, router.WithCircuitBreaker(cfg.Forward.CircuitBreaker, metrics))
	}
	forwarder := router.NewHTTPForwarder(forwarderOpts...)

	r := router.New(limiter, registry, forwarder,
		router.WithLogger(logger.With(observability.String("component", "router"))),
		router.WithMetrics(metrics),
	)

	zapLogger := observability.Zap(logger)
	server := httpserver.NewServer(&httpserver.ServerConfig{
		Port:              cfg.Listen.Port,
		Address:           cfg.Listen.Address,
		ReadHeaderTimeout: cfg.Listen.ReadTimeout.Duration(),
		ReadTimeout:       cfg.Listen.ReadTimeout.Duration(),
		WriteTimeout:      cfg.Listen.WriteTimeout.Duration(),
		IdleTimeout:       cfg.Listen.IdleTimeout.Duration(),
		MaxHeaderBytes:    httpserver.DefaultServerConfig().MaxHeaderBytes,
	}, zapLogger)
	server.Use(httpserver.StandardMiddleware(zapLogger, metrics, cfg.Tracing.ServiceName)...)

	handlers := &httpserver.Handlers{
		Router:   r,
		Verifier: verifier,
		Metrics:  metrics.Handler(),
		Logger:   zapLogger,
	}
	handlers.Register(server)

	limit := limiter.GetLimit()
	logger.Info("gateway initialized",
		observability.String("algorithm", cfg.Auth.Algorithm),
		observability.Int("capacity", limit.Requests),
		observability.Duration("window", limit.Window),
		observability.Strings("backends", registry.Addresses()),
		observability.Bool("circuit_breaker", cfg.Forward.CircuitBreaker.Enabled),
		observability.Bool("tracing", tracer.Enabled()),
	)

	return &application{
		config:    cfg,
		logger:    logger,
		metrics:   metrics,
		tracer:    tracer,
		limiter:   limiter,
		registry:  registry,
		monitor:   monitor,
		forwarder: forwarder,
		router:    r,
		server:    server,
	}, nil
}

// initTracer creates the tracer; a disabled tracer is a no-op.
func initTracer(cfg config.TracingConfig, logger observability.Logger) (*observability.Tracer, error) {
	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  cfg.ServiceName,
		OTLPEndpoint: cfg.Endpoint,
		SamplingRate: cfg.SamplingRate,
		Enabled:      cfg.Enabled,
		Insecure:     cfg.Insecure,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	return tracer, nil
}

// initVerifier resolves the verification key and builds the token verifier.
func initVerifier(
	ctx context.Context,
	cfg config.AuthConfig,
	logger observability.Logger,
	metrics jwt.FailureRecorder,
) (jwt.Verifier, error) {
	alg, err := jwt.ParseAlgorithm(cfg.Algorithm)
	if err != nil {
		return nil, err
	}

	jwtCfg := jwt.Config{
		Algorithm: alg.String(),
		ClockSkew: cfg.ClockSkew.Duration(),
	}

	if jwt.IsHMAC(alg) {
		secret, err := secrets.ResolveSigningSecret(ctx, cfg.Secret, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve signing secret: %w", err)
		}
		jwtCfg.Secret = secret
	} else {
		var key jwk.Key
		key, err = jwt.LoadPEMKey(cfg.PublicKeyFile)
		if err != nil {
			return nil, err
		}
		jwtCfg.PublicKey = key
	}

	verifier, err := jwt.NewVerifier(jwtCfg,
		jwt.WithVerifierLogger(logger.With(observability.String("component", "auth"))),
		jwt.WithVerifierMetrics(metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create verifier: %w", err)
	}

	logger.Debug("token verifier ready",
		observability.String("algorithm", alg.String()),
		observability.String("secret_source", strings.ToLower(cfg.Secret.Source)),
	)
	return verifier, nil
}
