package cli

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"

	"tasktrack/internal/attachment"
	"tasktrack/internal/backend/gcs"
	"tasktrack/internal/backend/localblob"
	"tasktrack/internal/backend/postgres"
	"tasktrack/internal/backend/sqlite"
	"tasktrack/internal/commands"
	"tasktrack/internal/config"
	"tasktrack/internal/service"
	"tasktrack/internal/session"
	"tasktrack/internal/workspace"
)

// NewLogger returns a logger writing to w with --debug, and a silent one
// otherwise.
func NewLogger(cfg *config.Config, w io.Writer) *log.Logger {
	if !cfg.Debug {
		return log.New(io.Discard, "", 0)
	}
	return log.New(w, "", log.LstdFlags|log.Lmicroseconds)
}

// NewEnv opens the configured database and blob store and restores the
// saved session. It is the EnvFactory of the real binary.
func NewEnv(ctx context.Context, cfg *config.Config) (*commands.Env, func(), error) {
	logger := NewLogger(cfg, os.Stderr)

	var closers []func()
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if err := cfg.EnsureDir(); err != nil {
		return nil, nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		gateway  service.Gateway
		feed     service.ChangeFeed
		accounts service.Accounts
	)
	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL,
			postgres.WithLogger(logger),
			postgres.WithTimeout(cfg.APITimeout),
		)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, db.Close)
		gateway, feed, accounts = db.Tasks(), db.Feed(), db.Accounts()
	default:
		db, err := sqlite.Open(cfg.SQLitePath,
			sqlite.WithLogger(logger),
			sqlite.WithTimeout(cfg.APITimeout),
		)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() {
			if err := db.Close(); err != nil {
				logger.Printf("cli: close database: %v", err)
			}
		})
		gateway, feed, accounts = db.Tasks(), db.Feed(), db.Accounts()
	}

	backend := workspace.Backend{Gateway: gateway, Feed: feed}
	var files http.Handler
	switch cfg.BlobStore {
	case config.BlobLocal:
		blobs, err := localblob.New(cfg.BlobDir, cfg.FilesBaseURL())
		if err != nil {
			release()
			return nil, nil, err
		}
		backend.Pipeline = attachment.New(blobs)
		files = http.FileServer(http.Dir(blobs.Root()))
	case config.BlobGCS:
		blobs, err := gcs.New(ctx, cfg.GCSBucket, cfg.GCSCredentials)
		if err != nil {
			release()
			return nil, nil, err
		}
		backend.Pipeline = attachment.New(blobs.WithPublicBaseURL(cfg.PublicBaseURL))
	}

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		key, err := session.LoadOrCreateKey(cfg.KeyPath())
		if err != nil {
			release()
			return nil, nil, err
		}
		secret = key
	}
	sessions, err := session.New(accounts, secret,
		session.WithTokenFile(cfg.SessionPath()),
		session.WithTTL(cfg.SessionTTL),
		session.WithLogger(logger),
	)
	if err != nil {
		release()
		return nil, nil, err
	}
	if err := sessions.Restore(); err != nil {
		release()
		return nil, nil, err
	}

	ws := workspace.New(sessions, backend, workspace.WithLogger(logger))
	env := &commands.Env{
		Config:    cfg,
		Workspace: ws,
		Sessions:  sessions,
		Files:     files,
		Logger:    logger,
	}
	return env, release, nil
}
