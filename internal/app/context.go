package app

import (
	"database/sql"
	"fmt"

	"github.com/go-logr/logr"

	"planforge/internal/db"
	"planforge/internal/engine"
	"planforge/internal/migrate"
)

// Context bundles the open database and the engine built on it.
type Context struct {
	DB     *sql.DB
	Engine engine.Engine
}

// Open prepares the workspace under dir: ensures the dot directory, opens
// the sqlite database, applies pending migrations, and wires the engine.
// The caller owns Close.
func Open(dir string, log logr.Logger) (*Context, error) {
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &Context{
		DB:     conn,
		Engine: engine.New(conn, log),
	}, nil
}

func (c *Context) Close() error {
	return c.DB.Close()
}
