package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/identity"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
	"github.com/clinic/clinic/internal/platform/middleware"
)

// stores are the repositories behind one backend.
type stores struct {
	patients     identity.PatientRepository
	doctors      identity.DoctorRepository
	appointments scheduling.AppointmentRepository
	tx           scheduling.Transactor
	pool         *pgxpool.Pool
}

func memoryStores(ctx context.Context) (*stores, error) {
	appts := scheduling.NewMemoryAppointmentRepo()
	st := &stores{
		patients:     identity.NewMemoryPatientRepo(),
		doctors:      identity.NewMemoryDoctorRepo(),
		appointments: appts,
		tx:           appts,
	}
	if _, err := identity.SeedDoctors(ctx, st.doctors, identity.ClinicDoctors()); err != nil {
		return nil, fmt.Errorf("seed doctors: %w", err)
	}
	return st, nil
}

func postgresStores(pool *pgxpool.Pool) *stores {
	return &stores{
		patients:     identity.NewPatientRepo(pool),
		doctors:      identity.NewDoctorRepo(pool),
		appointments: scheduling.NewAppointmentRepo(pool),
		tx:           db.NewTxRunner(pool),
		pool:         pool,
	}
}

func openPublisher(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (events.Publisher, func()) {
	if cfg.RedisURL == "" {
		return events.Nop{}, func() {}
	}
	pub, err := events.NewRedisPublisher(ctx, cfg.RedisURL, cfg.EventsChannel)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, appointment events disabled")
		return events.Nop{}, func() {}
	}
	logger.Info().Str("channel", cfg.EventsChannel).Msg("publishing appointment events to redis")
	return pub, func() { pub.Close() }
}

// newServer builds the HTTP application over st.
func newServer(cfg *config.Config, st *stores, pub events.Publisher, logger zerolog.Logger) *echo.Echo {
	hasher := identity.NewBcryptHasher(0)
	identitySvc := identity.NewService(st.patients, st.doctors, hasher)
	resolver := identity.NewResolver(st.patients, hasher, logger)
	schedSvc := scheduling.NewService(scheduling.Deps{
		Appointments: st.appointments,
		Tx:           st.tx,
		Doctors:      st.doctors,
		Patients:     st.patients,
		Resolver:     resolver,
		Events:       pub,
		Logger:       logger,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.Audit(logger))

	jwtCfg := tokenConfig(cfg)
	var authMW echo.MiddlewareFunc
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg)
	} else {
		authMW = auth.JWTMiddleware(jwtCfg)
	}

	var issue identity.TokenIssuer
	if cfg.AuthSigningKey != "" {
		issue = func(p *identity.Patient) (string, error) {
			return auth.IssueToken(jwtCfg, p.ID.String(), []string{auth.RolePatient}, p.ID.String(), cfg.AuthTokenTTL)
		}
	}

	booking := middleware.RateLimit(rateLimitConfig(cfg))

	apiV1 := e.Group("/api/v1")
	protected := apiV1.Group("", authMW)

	identity.NewHandler(identitySvc, issue).RegisterRoutes(apiV1, protected)
	scheduling.NewHandler(schedSvc).RegisterRoutes(apiV1, protected, booking)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "store": cfg.Store})
	})
	if st.pool != nil {
		e.GET("/health/db", db.HealthHandler(st.pool))
	}
	if p, ok := pub.(events.Pinger); ok {
		e.GET("/health/events", events.HealthHandler(p))
	}
	return e
}

// rateLimitConfig starts from the middleware defaults and applies any
// configured overrides.
func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}

func runServer() error {
	// Config
	cfg, err := loadConfig()
	logger := newLogger(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx := context.Background()

	var st *stores
	if cfg.UsesPostgres() {
		pool, err := db.NewPool(ctx, poolConfig(cfg))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")
		st = postgresStores(pool)
	} else {
		st, err = memoryStores(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to prepare memory store")
		}
		logger.Warn().Msg("using in-memory store; data is lost on restart")
	}

	pub, closePub := openPublisher(ctx, cfg, logger)
	defer closePub()

	e := newServer(cfg, st, pub, logger)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.Store).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
