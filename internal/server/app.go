package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledgerlink/accounts/config"
	"github.com/ledgerlink/accounts/internal/credential"
	"github.com/ledgerlink/accounts/internal/db"
	"github.com/ledgerlink/accounts/internal/mq"
	"github.com/ledgerlink/accounts/internal/services"
	"github.com/ledgerlink/accounts/internal/storage"
	"github.com/ledgerlink/accounts/internal/store"
	"github.com/ledgerlink/accounts/internal/token"
	"github.com/ledgerlink/accounts/types"
	"github.com/sirupsen/logrus"
)

// App holds the wired account service and the resources behind it. The
// server and the CLI commands share it.
type App struct {
	Accounts *services.AccountService
	Events   *mq.MQ
	Storage  *storage.Storage
	Logger   *logrus.Logger

	closers []func() error
}

// NewApp connects the configured user store, broker and object storage and
// builds the account service over them. Broker and storage are optional.
func NewApp(ctx context.Context, cfg config.Config, logger *logrus.Logger) (*App, error) {
	app := &App{Logger: logger}

	backend, err := app.openBackend(ctx, cfg.Database)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	codec := credential.NewCodec(cfg.Auth.BcryptCost)
	tokens, err := token.NewService(cfg.Auth.JWTSecret, token.WithTTL(cfg.Auth.TokenTTL))
	if err != nil {
		_ = app.Close()
		return nil, errors.New("JWT_SECRET is required")
	}
	repo := store.NewUserRepository(backend, codec, types.DefaultUserDefaults())

	opts := []services.Option{services.WithAdminEmails(cfg.Auth.AdminEmails)}

	if cfg.MQ.Backend != "" {
		events, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.Events = events
		app.closers = append(app.closers, events.Close)
		opts = append(opts, services.WithEvents(events, cfg.MQ.Channel))
		logger.WithFields(logrus.Fields{"backend": cfg.MQ.Backend, "channel": cfg.MQ.Channel}).Info("account events enabled")
	}

	if cfg.Storage.Backend != "" {
		objects, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.Storage = objects
		opts = append(opts, services.WithExports(objects))
		logger.WithFields(logrus.Fields{"backend": cfg.Storage.Backend, "bucket": objects.Bucket()}).Info("user exports enabled")
	}

	app.Accounts = services.NewAccountService(repo, codec, tokens, logger, opts...)
	return app, nil
}

func (a *App) openBackend(ctx context.Context, cfg config.DatabaseConfig) (store.Backend, error) {
	switch strings.ToLower(cfg.Driver) {
	case config.DriverPostgres, "":
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		return store.NewPostgresUserBackend(conn), nil
	case config.DriverMongo:
		client, coll, err := db.OpenMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, fmt.Errorf("open mongo: %w", err)
		}
		a.closers = append(a.closers, func() error {
			return client.Disconnect(context.Background())
		})
		backend := store.NewMongoUserBackend(coll)
		if err := backend.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		return backend, nil
	case config.DriverMemory:
		a.Logger.Warn("using in-memory user store; data is lost on exit")
		return store.NewMemoryUserBackend(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// Close releases every resource opened by NewApp, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
