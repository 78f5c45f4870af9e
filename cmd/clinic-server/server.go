package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/dashboard"
	"github.com/clinic/clinic/internal/domain/intake"
	"github.com/clinic/clinic/internal/domain/patient"
	"github.com/clinic/clinic/internal/domain/photo"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/blobstore"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/imaging"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/realtime"
	"github.com/clinic/clinic/internal/platform/telemetry"
)

const defaultBodyLimit = 1 << 20

// openBlobStore returns the configured photo byte store and a close func.
func openBlobStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (blobstore.BlobStore, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	switch cfg.BlobBackend {
	case "", "postgres":
		if pool == nil {
			return nil, nil, fmt.Errorf("postgres blob backend requires a database pool")
		}
		return blobstore.NewPostgresBlobStore(pool), noop, nil
	case "gridfs":
		store, err := blobstore.NewGridFSBlobStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("connect gridfs: %w", err)
		}
		return store, store.Close, nil
	case "memory":
		return blobstore.NewInMemoryBlobStore(), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

// server holds the router and whatever must be released on shutdown.
type server struct {
	echo        *echo.Echo
	revocations *auth.TokenRevocationStore
}

func (s *server) Close() {
	s.revocations.Close()
}

// newServer wires repositories, services and handlers onto a fresh echo
// instance. pool may be nil in tests that never reach the database.
func newServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, blobs blobstore.BlobStore, metrics *telemetry.Provider) (*server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	maxFileSize, err := middleware.ParseSize(cfg.UploadMaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("UPLOAD_MAX_FILE_SIZE: %w", err)
	}

	// Auth
	tokens := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTTTL)
	authSvc := auth.NewService(auth.NewUserRepoPG(pool), auth.NewPasswordHasher(0), tokens)
	revocations := auth.NewTokenRevocationStore(10 * time.Minute)

	// Domain services
	patientSvc := patient.NewService(patient.NewPatientRepoPG(pool), logger)
	schedSvc := scheduling.NewService(scheduling.NewAppointmentRepoPG(pool), patientSvc, loc)
	photoSvc := photo.NewService(
		photo.NewPhotoRepoPG(pool), blobs, patientSvc,
		photo.Limits{MaxFiles: cfg.UploadMaxFiles, MaxFileSize: maxFileSize},
		imaging.Options{MaxDimension: cfg.PhotoMaxDimension, Quality: cfg.PhotoJPEGQuality, MaxPixels: cfg.PhotoMaxPixels},
		logger,
	)
	intakeSvc := intake.NewService(patientSvc, schedSvc, logger)
	dashboardSvc := dashboard.NewService(patientSvc, schedSvc, photoSvc, dashboard.NewPGEvaluator(pool), loc)

	// Photos go before appointments so a retried cascade never leaves
	// orphaned blobs behind a deleted patient.
	patientSvc.RegisterDependent("photos", photoSvc)
	patientSvc.RegisterDependent("appointments", schedSvc)
	patientSvc.SetAppointmentLister(schedSvc)
	patientSvc.SetMetrics(metrics)
	photoSvc.SetMetrics(metrics)
	intakeSvc.SetMetrics(metrics)
	if pool != nil {
		tx := db.NewTransactor(pool)
		photoSvc.SetTransactor(tx)
		intakeSvc.SetTransactor(tx)
	}

	hub := realtime.NewHub(logger)
	patientSvc.SetNotifier(hub)
	schedSvc.SetNotifier(hub)
	photoSvc.SetNotifier(hub)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Request-ID", "If-None-Match"},
		AllowCredentials: true,
	}))
	uploadLimit := int64(cfg.UploadMaxFiles)*maxFileSize + defaultBodyLimit
	e.Use(middleware.BodyLimit(defaultBodyLimit, uploadLimit))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}
	e.Use(auth.SessionMiddleware(auth.SessionConfig{
		Tokens:      tokens,
		CookieName:  cfg.CookieName,
		Revocations: revocations,
		Skipper:     auth.AuthSkipper,
	}))
	e.Use(middleware.Sanitize(logger))
	e.Use(middleware.Audit(logger))

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}
	e.GET("/metrics", metrics.Handler())

	api := e.Group("/api")
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	api.Use(middleware.RateLimit(rl))

	auth.NewHandler(authSvc, revocations, auth.HandlerConfig{
		CookieName:        cfg.CookieName,
		CookieSecure:      cfg.CookieSecure,
		AllowRegistration: cfg.AllowRegistration,
	}).RegisterRoutes(api)
	patient.NewHandler(patientSvc).RegisterRoutes(api)
	scheduling.NewHandler(schedSvc).RegisterRoutes(api)
	photo.NewHandler(photoSvc).RegisterRoutes(api)
	intake.NewHandler(intakeSvc).RegisterRoutes(api)
	dashboard.NewHandler(dashboardSvc).RegisterRoutes(api)
	realtime.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(api)

	// Built UI bundle, with client-side routing fallback.
	if cfg.StaticDir != "" {
		e.Use(echomw.StaticWithConfig(echomw.StaticConfig{
			Root:  cfg.StaticDir,
			HTML5: true,
			Skipper: func(c echo.Context) bool {
				p := c.Request().URL.Path
				return strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/health") || p == "/metrics"
			},
		}))
	}

	return &server{echo: e, revocations: revocations}, nil
}
