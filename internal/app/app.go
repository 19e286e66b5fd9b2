// Package app wires a workspace: database, schema, config and engine.
package app

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"doclife/internal/config"
	"doclife/internal/db"
	"doclife/internal/engine"
	"doclife/internal/engine/auth"
	"doclife/internal/migrate"
	"doclife/internal/repo"
)

type App struct {
	Workspace string
	DB        *sql.DB
	Repo      repo.Repo
	Config    *config.Config
	Engine    engine.Engine
	Auth      auth.Service
	Logger    *logrus.Entry
}

type Options struct {
	Workspace string
	// AllowUnknownUsers lets actors missing from the users table act with no groups.
	AllowUnknownUsers bool
	Logger            *logrus.Entry
}

// Open opens the workspace database, applies migrations, loads doclife.yml
// (or the embedded default when absent) and builds the engine.
func Open(ctx context.Context, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	cfg, err := config.LoadOptional(opts.Workspace)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if cfg == nil {
		logger.WithField("path", config.Path(opts.Workspace)).Debug("no config file; using defaults")
		cfg = config.Default()
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if _, err := migrate.Migrate(ctx, conn, logger.WithField("component", "migrate")); err != nil {
		conn.Close()
		return nil, err
	}
	r := repo.New(conn)
	eng, err := engine.New(r, cfg, logger.WithField("component", "engine"))
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "build engine")
	}
	return &App{
		Workspace: opts.Workspace,
		DB:        conn,
		Repo:      r,
		Config:    cfg,
		Engine:    eng,
		Auth:      auth.Service{Users: r, AllowUnknown: opts.AllowUnknownUsers},
		Logger:    logger,
	}, nil
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
