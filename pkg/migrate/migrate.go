// Package migrate applies the goose SQL migrations under migrations/. The
// files are embedded so every binary carries its own schema; -dir on
// cmd/migrate switches to an on-disk directory for authoring.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where new migrations are authored, relative to the repo root.
const DefaultDir = "pkg/migrate/migrations"

const embeddedRoot = "migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Source selects the migration files goose reads. The zero value is the
// embedded set.
type Source struct {
	Dir string
}

// FS returns the file system and root directory of the source.
func (s Source) FS() (fs.FS, string) {
	if s.Dir == "" {
		return embedded, embeddedRoot
	}
	return os.DirFS(s.Dir), "."
}

func (s Source) String() string {
	if s.Dir == "" {
		return "embedded"
	}
	return s.Dir
}

func (s Source) prepare() (string, error) {
	fsys, root := s.FS()
	goose.SetBaseFS(fsys)
	// Goose files target Postgres; SQLite dev databases use AutoMigrate.
	if err := goose.SetDialect("postgres"); err != nil {
		return "", fmt.Errorf("set goose dialect: %w", err)
	}
	return root, nil
}

// Run executes a goose command (up, down, redo, status) against db.
func Run(ctx context.Context, db *sql.DB, src Source, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	root, err := src.prepare()
	if err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, root, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down to targetVersion
// (YYYYMMDDHHMMSS).
func MigrateToVersion(ctx context.Context, db *sql.DB, src Source, targetVersion string) error {
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	root, err := src.prepare()
	if err != nil {
		return err
	}

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		err = goose.UpToContext(ctx, db, root, target)
	default:
		err = goose.DownToContext(ctx, db, root, target)
	}
	if err != nil {
		return fmt.Errorf("goose migrate %d -> %d: %w", current, target, err)
	}
	return nil
}
