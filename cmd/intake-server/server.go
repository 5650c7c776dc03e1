package main

import (
	"context"
	crypto_rand "crypto/rand"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/redmonddental/intake/internal/config"
	"github.com/redmonddental/intake/internal/domain/intake"
	"github.com/redmonddental/intake/internal/platform/auth"
	"github.com/redmonddental/intake/internal/platform/db"
	"github.com/redmonddental/intake/internal/platform/hipaa"
	"github.com/redmonddental/intake/internal/platform/middleware"
	"github.com/redmonddental/intake/internal/platform/notification"
	"github.com/redmonddental/intake/internal/platform/outbox"
	"github.com/redmonddental/intake/internal/platform/sheetstore"
	"github.com/redmonddental/intake/migrations"
)

// rowStore is a submission store that holds a file or connection open.
type rowStore interface {
	intake.Store
	Close() error
}

func openStore(ctx context.Context, cfg *config.Config) (rowStore, error) {
	switch cfg.StoreBackend {
	case "memory":
		return sheetstore.NewMemory(), nil
	case "xlsx":
		return sheetstore.OpenXLSX(cfg.XLSXPath, cfg.SheetName)
	case "sheets":
		creds, err := cfg.SheetsCredentials()
		if err != nil {
			return nil, err
		}
		return sheetstore.NewGoogleSheets(ctx, sheetstore.SheetsConfig{
			ClientEmail:   creds.ClientEmail,
			PrivateKey:    creds.PrivateKey,
			SpreadsheetID: creds.SpreadsheetID,
			SheetName:     creds.SheetName,
			Width:         intake.ColumnCount,
		})
	}
	return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
}

// emailSender returns nil when email is not configured, which makes the
// outbox skip notifications.
func emailSender(cfg *config.Config, logger zerolog.Logger) (notification.EmailSender, intake.Recipient) {
	settings, err := cfg.EmailSettings()
	if errors.Is(err, config.ErrNotConfigured) {
		logger.Warn().Err(err).Msg("staff notifications disabled")
		return nil, intake.Recipient{SiteURL: cfg.SiteURL}
	}
	return notification.NewSendGridSender(settings.APIKey, settings.From, settings.FromName),
		intake.Recipient{To: settings.To, SiteURL: settings.SiteURL}
}

// resolveSessionSecret returns the configured secret, or a random one that
// lasts until restart when none is set.
func resolveSessionSecret(configured string) ([]byte, bool, error) {
	if configured != "" {
		return []byte(configured), false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generate session secret: %w", err)
	}
	return key, true, nil
}

type server struct {
	echo       *echo.Echo
	dispatcher *outbox.Dispatcher
	logger     zerolog.Logger
	closers    []func() error
}

func newServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (srv *server, err error) {
	srv = &server{logger: logger}
	defer func() {
		if err != nil {
			srv.close()
		}
	}()
	checks := map[string]db.Checker{}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	srv.closers = append(srv.closers, store.Close)
	checks["store"] = db.CheckFunc(func(ctx context.Context) error {
		_, err := store.Header(ctx)
		return err
	})

	// Outbox tasks live in postgres when configured, otherwise in memory.
	var (
		pool  *pgxpool.Pool
		tasks outbox.Store = outbox.NewMemoryStore()
	)
	if cfg.DatabaseURL != "" {
		pool, err = db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
		if err != nil {
			return nil, err
		}
		srv.closers = append(srv.closers, func() error { pool.Close(); return nil })
		applied, err := db.NewMigrator(pool, migrations.FS).Up(ctx, db.DefaultSchema)
		if err != nil {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		if applied > 0 {
			logger.Info().Int("count", applied).Msg("applied migrations")
		}

		key, err := cfg.EncryptionKey()
		if err != nil {
			return nil, err
		}
		var sealer *hipaa.Sealer
		if key != nil {
			if sealer, err = hipaa.NewSealer(key); err != nil {
				return nil, err
			}
		} else {
			logger.Warn().Msg("HIPAA_ENCRYPTION_KEY not set; outbox payloads stored unsealed")
		}
		pg := outbox.NewPGStore(pool, sealer)
		tasks = pg
		checks["database"] = pg
	}

	svc := intake.NewService(store, nil, logger)
	sender, rcpt := emailSender(cfg, logger)
	srv.dispatcher = outbox.NewDispatcher(tasks, intake.NewDelivery(svc, sender, nil, rcpt), logger, outbox.Options{
		Workers:   cfg.OutboxWorkers,
		QueueSize: cfg.OutboxQueueSize,
	})
	svc.SetNotifier(intake.NewOutboxNotifier(srv.dispatcher))
	if err := srv.dispatcher.Start(ctx); err != nil {
		return nil, fmt.Errorf("start outbox: %w", err)
	}

	var sessionStore auth.SessionStore
	if cfg.RedisURL != "" {
		client, err := auth.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		srv.closers = append(srv.closers, client.Close)
		rs := auth.NewRedisStore(client)
		sessionStore = rs
		checks["redis"] = rs
	} else {
		ms := auth.NewMemoryStore()
		srv.closers = append(srv.closers, func() error { ms.Close(); return nil })
		sessionStore = ms
	}
	secret, generated, err := resolveSessionSecret(cfg.SessionSecret)
	if err != nil {
		return nil, err
	}
	if generated {
		logger.Warn().Msg("SESSION_SECRET not set; sessions end on restart")
	}
	sessions := auth.NewSessions(secret, cfg.SessionTTL, sessionStore)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Metrics())
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderContentType, middleware.RequestIDHeader},
		AllowCredentials: true,
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/ready", db.ReadyHandler(checks, pool))
	e.GET("/metrics", middleware.MetricsHandler())

	api := e.Group("/api", middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))
	admin := api.Group("", auth.RequireSession(sessions))

	auth.NewHandler(auth.NewPasswordVerifier(cfg.AdminPasswordHash), sessions, cfg.IsProduction(), logger).
		RegisterRoutes(api, admin)
	intake.NewHandler(svc).RegisterRoutes(api, admin)
	outbox.NewHandler(srv.dispatcher).RegisterRoutes(admin.Group("/admin"))

	srv.echo = e
	return srv, nil
}

// Shutdown stops the HTTP server, drains queued notifications and releases
// stores.
func (s *server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.echo != nil {
		if err := s.echo.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if s.dispatcher != nil {
		if err := s.dispatcher.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *server) close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
