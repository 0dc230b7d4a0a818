package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/quote-engine/internal/catalog"
	"github.com/noah-isme/quote-engine/internal/config"
	"github.com/noah-isme/quote-engine/internal/discount"
	"github.com/noah-isme/quote-engine/internal/health"
	"github.com/noah-isme/quote-engine/internal/link"
	"github.com/noah-isme/quote-engine/internal/obs"
	"github.com/noah-isme/quote-engine/internal/pricebook"
	"github.com/noah-isme/quote-engine/internal/quote"
	"github.com/noah-isme/quote-engine/internal/ratelimit"
	"github.com/noah-isme/quote-engine/internal/reconcile"
	"github.com/noah-isme/quote-engine/internal/resilience"
	"github.com/noah-isme/quote-engine/internal/security"
	"github.com/noah-isme/quote-engine/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Str("service", "quote-api").Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "quote")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	if err := resilience.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		logger.Error().Err(err).Msg("register resilience metrics")
	}

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "quote-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			Insecure:      envBool("OBS_OTLP_INSECURE", false),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
			Version:       envOrDefault("APP_VERSION", "dev"),
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ctx = logger.WithContext(ctx)

	var pool *pgxpool.Pool
	if cfg.QuoteStore == "postgres" || cfg.CampaignsSource == "postgres" {
		pool, err = openPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect database")
		}
		defer pool.Close()
		if envBool("DB_MIGRATE_ON_START", true) {
			if err := store.Migrate(cfg.DatabaseURL); err != nil {
				logger.Fatal().Err(err).Msg("apply migrations")
			}
		}
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	registry, err := catalog.LoadFS(os.DirFS(cfg.CatalogDir), catalog.LegacyRules{
		HeaterStepID:    cfg.HeaterStepID,
		LightingStepID:  cfg.LightingStepID,
		DescriptorToken: envOrDefault("CATALOG_LIGHTING_DESCRIPTOR", "led"),
	})
	if err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.CatalogDir).Msg("load catalogs")
	}

	quoteStore, err := openStore(ctx, cfg, pool)
	if err != nil {
		logger.Fatal().Err(err).Str("store", cfg.QuoteStore).Msg("initialise quote store")
	}

	campaigns, err := openCampaigns(cfg, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise campaigns")
	}

	var reconciler quote.Reconciler
	if cfg.PricebookBaseURL != "" {
		breaker := resilience.NewBreaker(cfg.CircuitPricebookMinReq, cfg.CircuitPricebookFailureRate, cfg.CircuitPricebookOpenFor).
			WithTarget("pricebook").
			WithLogger(logger)
		client := pricebook.NewClient(pricebook.ClientConfig{
			BaseURL:     cfg.PricebookBaseURL,
			APIKey:      cfg.PricebookAPIKey,
			Timeout:     cfg.OutboundTimeout,
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseBackoff: cfg.RetryBase,
			Jitter:      cfg.RetryJitterPercent,
			Breaker:     breaker,
			Logger:      &logger,
		})
		rec, err := reconcile.New(reconcile.Config{
			Lookup:      &pricebook.CachedLookup{Next: client, Client: redisClient, TTL: cfg.PricebookCacheTTL},
			Concurrency: cfg.ReconcileConcurrency,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise reconciler")
		}
		reconciler = rec
	} else {
		logger.Warn().Msg("PRICEBOOK_BASE_URL not set, quotes keep catalog prices")
	}

	var links quote.LinkEnqueuer
	if cfg.LinkEnabled {
		redisConn, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("parse asynq redis url")
		}
		taskClient := asynq.NewClient(redisConn)
		defer func() {
			if err := taskClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close task client")
			}
		}()
		links = link.Enqueuer{
			Client:   taskClient,
			Queue:    cfg.LinkQueue,
			MaxRetry: envInt("LINK_MAX_RETRY", 10),
			Timeout:  cfg.OutboundTimeout * time.Duration(max(cfg.RetryMaxAttempts, 1)+1),
		}
	}

	quoteService, err := quote.NewService(quote.ServiceConfig{
		Catalogs:   registry,
		Campaigns:  campaigns,
		Reconciler: reconciler,
		Store:      quoteStore,
		Links:      links,
		Generator: &quote.Generator{
			Stones: quote.StoneRules{
				PackageKg:        cfg.StonePackageKg,
				PackageUnitPrice: cfg.StonePackagePrice,
			},
			TaxRate:      cfg.EffectiveTaxRate(),
			Currency:     cfg.CurrencyCode,
			ValidityDays: cfg.QuoteValidityDays,
		},
		ReconcileTimeout: cfg.ReconcileTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise quote service")
	}
	quoteHandler := quote.NewHandler(quoteService)

	createLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "quote"},
		Config: ratelimit.Config{
			Key:    ratelimit.ClientIPKey("rl:quotes:"),
			Window: time.Minute,
			Max:    cfg.RateLimitQuotesPerMin,
		},
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger, SkipPaths: []string{"/health/live", "/health/ready", "/metrics"}}.Middleware)
	r.Use(security.Headers{
		Enable:                envBool("SECURE_HEADERS_ENABLE", true),
		EnableHSTS:            envBool("SECURE_HSTS_ENABLE", cfg.AppEnv == "production"),
		HSTSMaxAge:            envInt("SECURE_HSTS_MAX_AGE", 31536000),
		HSTSIncludeSubdomains: envBool("SECURE_HSTS_INCLUDE_SUBDOMAINS", true),
		TrustForwardedProto:   envBool("SECURE_TRUST_FORWARDED_PROTO", true),
		NoStore:               true,
	}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envBool("OBS_ENABLE_PPROF", false) {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	probes := []health.Probe{health.RedisProbe(redisClient)}
	if pool != nil {
		dbProbe := health.PostgresProbe(pool)
		dbProbe.Timeout = envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500)
		probes = append(probes, dbProbe)
	}
	healthHandler := health.Handler{Probes: probes}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: cfg.BodyLimitBytes, RequireJSON: true}.Middleware)
		quoteHandler.Routes(v, createLimit.Middleware)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		health.SetReady(false)
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_GRACE_MS", 10000))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Str("store", cfg.QuoteStore).Bool("reconcile", reconciler != nil).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func openPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "quote-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func openStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (quote.Store, error) {
	switch cfg.QuoteStore {
	case "postgres":
		return store.Postgres{DB: pool}, nil
	case "dynamodb":
		client, err := store.NewDynamoClient(ctx, cfg.AWSRegion, cfg.DynamoEndpoint)
		if err != nil {
			return nil, err
		}
		return store.Dynamo{Client: client, Table: cfg.DynamoTable}, nil
	case "memory":
		zerolog.Ctx(ctx).Warn().Msg("quotes are kept in memory and lost on restart")
		return store.NewMemory(), nil
	}
	return nil, errors.New("unsupported quote store " + strconv.Quote(cfg.QuoteStore))
}

func openCampaigns(cfg *config.Config, pool *pgxpool.Pool) (discount.Source, error) {
	if cfg.CampaignsSource == "file" {
		if cfg.CampaignsFile == "" {
			return discount.StaticSource{}, nil
		}
		return discount.LoadFile(cfg.CampaignsFile)
	}
	return discount.PostgresSource{DB: pool}, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
