// Package migrate applies the storefront schema with goose. The SQL files
// under migrations/ are compiled into the binary; a directory on disk can be
// used instead while authoring new migrations.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/pressly/goose/v3"
)

// DefaultDir is where new migrations are authored, relative to the repo root.
const DefaultDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var bundled embed.FS

// Source is a filesystem holding goose SQL files in Dir.
type Source struct {
	FS  fs.FS
	Dir string
}

// Bundled returns the migrations compiled into the binary.
func Bundled() Source {
	return Source{FS: bundled, Dir: "migrations"}
}

// FromDisk reads migrations from dir.
func FromDisk(dir string) Source {
	return Source{FS: os.DirFS(dir), Dir: "."}
}

func (s Source) activate() error {
	if s.FS == nil || s.Dir == "" {
		return errors.New("migration source is required")
	}
	goose.SetBaseFS(s.FS)
	return goose.SetDialect("postgres")
}

// Run executes a goose command such as up, down or status.
func Run(ctx context.Context, db *sql.DB, src Source, command string, args ...string) error {
	if db == nil {
		return errors.New("db is required")
	}
	if err := src.activate(); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, src.Dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateTo moves the schema up or down until it sits at target.
func MigrateTo(ctx context.Context, db *sql.DB, src Source, target int64) error {
	if target < 0 {
		return fmt.Errorf("invalid target version %d", target)
	}
	if err := src.activate(); err != nil {
		return err
	}
	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	step, move := "up-to", goose.UpToContext
	switch {
	case current == target:
		return nil
	case current > target:
		step, move = "down-to", goose.DownToContext
	}
	if err := move(ctx, db, src.Dir, target); err != nil {
		return fmt.Errorf("goose %s %d: %w", step, target, err)
	}
	return nil
}
