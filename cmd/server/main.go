package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/bus"
	"github.com/example/ride-dispatch/internal/config"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/httpapi"
	"github.com/example/ride-dispatch/internal/images"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/logging"
	"github.com/example/ride-dispatch/internal/maps"
	"github.com/example/ride-dispatch/internal/matcher"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/profiles"
	"github.com/example/ride-dispatch/internal/ride"
	"github.com/example/ride-dispatch/internal/sms"
	"github.com/example/ride-dispatch/internal/sos"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	// storage: postgres when configured, memory otherwise
	var (
		rideStore ride.Store
		pax       profiles.PassengerStore
		drv       profiles.DriverStore
		stats     profiles.StatsStore
		sosStore  sos.Store
		db        *sql.DB
	)
	if cfg.PGDSN != "" {
		ps, err := ride.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres open failed", "error", err)
			os.Exit(1)
		}
		db = ps.DB()
		if cfg.RunMigrations {
			applyMigrations(logger, db)
		}
		rideStore = ps
		pax = profiles.NewPostgresPassengers(db)
		drv = profiles.NewPostgresDrivers(db)
		stats = profiles.NewPostgresStats(db)
		sosStore = sos.NewPostgresStore(db)
	} else {
		logger.Warn("PG_DSN unset, using in-memory stores")
		rideStore = ride.NewMemoryStore()
		pax = profiles.NewMemoryPassengers()
		drv = profiles.NewMemoryDrivers()
		stats = profiles.NewMemoryStats()
		sosStore = sos.NewMemoryStore()
	}

	var index geo.Index
	if cfg.RedisAddr != "" {
		index = geo.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		logger.Warn("REDIS_ADDR unset, using in-memory driver index")
		index = geo.NewMemoryIndex()
	}

	var (
		geocoder maps.Geocoder
		router   maps.Router
	)
	if cfg.GoogleMapsAPIKey != "" {
		gc, err := maps.NewGoogleClient(cfg.GoogleMapsAPIKey)
		if err != nil {
			logger.Error("google maps client init failed", "error", err)
			os.Exit(1)
		}
		geocoder, router = gc, gc
	} else {
		logger.Warn("GOOGLE_MAPS_API_KEY unset, routing degraded to haversine")
	}

	registry := payments.NewRegistry()
	registry.Register(models.PayCash, payments.CashGateway{})
	if cfg.StripeAPIKey != "" {
		registry.Register(models.PayCard, payments.NewStripeGateway(cfg.StripeAPIKey))
	}
	if cfg.EasypaisaEndpoint != "" {
		registry.Register(models.PayEasypaisa, payments.NewWalletGateway("easypaisa", cfg.EasypaisaEndpoint))
	}
	if cfg.JazzcashEndpoint != "" {
		registry.Register(models.PayJazzcash, payments.NewWalletGateway("jazzcash", cfg.JazzcashEndpoint))
	}

	var smsGateway sms.Gateway
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" {
		smsGateway = sms.NewTwilio(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom)
	} else {
		logger.Warn("twilio unconfigured, sos sms degraded to noop")
		smsGateway = sms.NewNoop()
	}

	var imageStore images.Store = images.Placeholder{}
	if cfg.CloudinaryCloud != "" && cfg.CloudinaryPreset != "" {
		imageStore = images.NewCloudinary(cfg.CloudinaryCloud, cfg.CloudinaryPreset)
	} else {
		logger.Warn("cloudinary unconfigured, driver photos use placeholder")
	}

	var producer *ingest.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
	}

	broker := bus.NewBroker()
	wsreg := bus.NewWSRegistry(broker, logging.ForComponent(logger, "ws"))

	machine := ride.NewMachine(rideStore)
	offers := ride.NewOfferTable(cfg.OfferTTL)
	engine := matcher.NewEngine(index, stats, cfg.MatchRadiusKm)

	orch := dispatch.NewOrchestrator(dispatch.Deps{
		Logger:     logging.ForComponent(logger, "dispatch"),
		Machine:    machine,
		Offers:     offers,
		Matcher:    engine,
		Index:      index,
		Bus:        broker,
		Geocoder:   geocoder,
		Router:     router,
		Payments:   registry,
		Passengers: pax,
		Drivers:    drv,
		Stats:      stats,
		Producer:   producer,
		Images:     imageStore,
	})
	pipeline := sos.NewPipeline(logging.ForComponent(logger, "sos"), machine, pax, smsGateway, broker, sosStore)

	srv := httpapi.NewServer(logging.ForComponent(logger, "http"), orch, pipeline, wsreg,
		[]byte(cfg.JWTSecret), cfg.AllowedOrigins)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go orch.RunActivator(ctx, cfg.ActivatorInterval)

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	go func() {
		logger.Info("ride-dispatch listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// applyMigrations runs every .sql file in migrations/ in name order.
func applyMigrations(logger *slog.Logger, db *sql.DB) {
	files, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		logger.Error("migration glob failed", "error", err)
		return
	}
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			logger.Error("migration read failed", "file", f, "error", err)
			continue
		}
		start := time.Now()
		if _, err := db.Exec(string(b)); err != nil {
			logger.Error("migration exec failed", "file", f, "error", err)
			continue
		}
		logger.Info("migration applied", "file", f, "duration_ms", time.Since(start).Milliseconds())
	}
}
