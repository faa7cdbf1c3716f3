// Package runtime wires the application together and manages its lifecycle.
package runtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eslamgaber/storefront/internal/app/httpapi"
	"github.com/eslamgaber/storefront/internal/app/services/auth"
	"github.com/eslamgaber/storefront/internal/app/services/orders"
	"github.com/eslamgaber/storefront/internal/app/services/products"
	"github.com/eslamgaber/storefront/internal/app/services/users"
	"github.com/eslamgaber/storefront/internal/app/storage/postgres"
	"github.com/eslamgaber/storefront/internal/config"
	"github.com/eslamgaber/storefront/internal/platform/migrations"
	"github.com/eslamgaber/storefront/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg    *config.Config
	log    *logger.Logger
	server *http.Server
	db     *sqlx.DB
}

// NewApplication constructs the application with default wiring: config from
// the environment, a migrated database and the full service stack behind the
// REST API.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	db, err := postgres.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	store := postgres.NewStore(db)

	authSvc := auth.New(store.Users, cfg.Auth, log.WithField("component", "auth"))
	userSvc := users.New(store.Users, store.UserViews, authSvc.Hasher(), log.WithField("component", "users"))
	productSvc := products.New(store.Products, log.WithField("component", "products"))
	orderSvc := orders.New(store.Orders, store.OrderProducts, log.WithField("component", "orders"))

	handler := httpapi.New(httpapi.Options{
		Auth:     authSvc,
		Users:    userSvc,
		Products: productSvc,
		Orders:   orderSvc,
		Server:   cfg.Server,
		AuditLog: cfg.Server.AuditLog,
		Log:      log.WithField("component", "httpapi"),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Application{cfg: cfg, log: log, server: server, db: db}, nil
}

// Run starts the HTTP server and blocks until the context is cancelled or
// the server fails.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.log.Infof("HTTP server listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server and closes the database pool.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}

	return nil
}
