// Package app wires the workspace directory, config file, database and
// engine together for the CLI and the server.
package app

import (
	"database/sql"
	"fmt"

	"dayline/internal/config"
	"dayline/internal/db"
	"dayline/internal/engine"
	"dayline/internal/migrate"
	"dayline/internal/mirror"
)

// App is one opened workspace.
type App struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
}

// Open resolves the workspace directory, loads dayline.yml (defaults when
// absent), opens the database, applies pending migrations and builds the
// engine. The in-memory notebook stands in for the mirror capability.
func Open(workspace string) (*App, error) {
	if workspace == "" {
		workspace = "."
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	eng := engine.New(conn, cfg)
	eng.Mirror = mirror.NewMemory()
	return &App{Workspace: workspace, Config: cfg, DB: conn, Engine: eng}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
