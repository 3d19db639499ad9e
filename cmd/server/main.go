package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"smartqr/internal/api"
	"smartqr/internal/api/handlers"
	"smartqr/internal/api/middleware"
	"smartqr/internal/engine/protection"
	"smartqr/internal/engine/qrcodes"
	"smartqr/internal/engine/redirect"
	"smartqr/internal/engine/scancontext"
	"smartqr/internal/engine/scans"
	"smartqr/internal/engine/smartqr"
	"smartqr/internal/engine/webhooks"
	"smartqr/internal/pkg/geoip"
	"smartqr/internal/pkg/logger"
	"smartqr/internal/pkg/parser"
	"smartqr/internal/platform/audit"
	"smartqr/internal/platform/auth"
	"smartqr/internal/platform/config"
	"smartqr/internal/platform/database"
	"smartqr/internal/platform/metrics"
	"smartqr/internal/workers"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	resolver, err := geoip.New(cfg.GeoIP.DatabasePath)
	if err != nil {
		log.Warn().Err(err).Msg("GeoIP database unavailable, locations will be Unknown")
		resolver = geoip.NewNoopResolver()
	}
	if c, ok := resolver.(io.Closer); ok {
		defer c.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	extractor := scancontext.NewExtractor(resolver, scancontext.Options{
		LookupTimeout: cfg.GeoIP.LookupTimeout,
		DefaultLocale: cfg.GeoIP.DefaultLocale,
		OnLookup:      m.ObserveGeoLookup,
	})

	qrService := qrcodes.NewService(qrcodes.NewRepository(db))
	scanRepo := scans.NewRepository(db)

	// Usage limits read from Redis when enabled; the SQL log stays the source for stats.
	var counter protection.ScanCounter = scanRepo
	writers := []scans.Writer{scanRepo}
	redisClient, err := newRedis(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	if redisClient != nil {
		defer redisClient.Close()
		redisCounter := scans.NewRedisCounter(redisClient)
		counter = redisCounter
		writers = append(writers, redisCounter)
	}
	recorder := scans.NewRecorder(writers...)

	cache, err := redirect.NewQRCodeCache(cfg.Cache)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create QR code cache")
	}
	defer cache.Close()

	dispatcher := webhooks.NewDispatcher(cfg.Webhooks)
	engine := smartqr.NewEngine(extractor, smartqr.NewHTTPAPICaller(cfg.Resolver.APICallTimeout), nil)

	proxies, err := parser.NewTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid server.trusted_proxies")
	}

	redirectHandler := handlers.NewRedirectHandler(qrService, extractor, protection.NewValidator(counter), engine)
	redirectHandler.Cache = cache
	redirectHandler.Recorder = recorder
	redirectHandler.Webhooks = dispatcher
	redirectHandler.Metrics = m
	redirectHandler.Proxies = proxies

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit)
	rateLimiter.Proxies = proxies
	tokenSvc := auth.NewTokenService(cfg.JWT)

	qrHandler := handlers.NewQRCodeHandler(qrService, scanRepo, extractor, cache)
	qrHandler.ShortDomain = cfg.Domains.ShortDomain
	auditLogger := audit.NewLogger(db)
	qrHandler.Audit = auditLogger
	qrHandler.Proxies = proxies

	router := api.NewRouter(&api.Dependencies{
		RedirectHandler: redirectHandler,
		QRCodeHandler:   qrHandler,
		HealthHandler:   handlers.NewHealthHandler(db, redisClient),
		MetricsHandler:  handlers.NewMetricsHandler(metrics.Handler(reg)),
		AuditHandler:    handlers.NewAuditHandler(auditLogger),
		AuthMiddleware:  middleware.NewAuthMiddleware(tokenSvc),
		RateLimiter:     rateLimiter,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go workers.Every(ctx, "rate_limit_cleanup", 10*time.Minute, func(ctx context.Context) error {
		rateLimiter.Cleanup()
		return nil
	})
	go workers.Every(ctx, "qr_expiry", time.Minute, func(ctx context.Context) error {
		_, err := workers.ExpireQRCodes(ctx, qrService, cache, time.Now())
		return err
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	recorder.Wait()
	dispatcher.Wait()
	auditLogger.Wait()
}
