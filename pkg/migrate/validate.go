package migrate

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"
)

var migrationName = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

var requiredAnnotations = []string{"-- +goose Up", "-- +goose Down"}

// ValidateDir checks the migrations in a directory on disk.
func ValidateDir(dir string) error {
	if dir == "" {
		return errors.New("dir is required")
	}
	return Validate(FromDisk(dir))
}

// Validate requires at least one migration, timestamped file names with
// unique versions, and both goose annotations in every file.
func Validate(src Source) error {
	names, err := fs.Glob(src.FS, path.Join(src.Dir, "*.sql"))
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	if len(names) == 0 {
		return fmt.Errorf("no migrations found in %q", src.Dir)
	}

	versions := make(map[string]string, len(names))
	for _, name := range names {
		base := path.Base(name)
		match := migrationName.FindStringSubmatch(base)
		if match == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", base)
		}
		if other, dup := versions[match[1]]; dup {
			return fmt.Errorf("duplicate migration version %s in %q and %q", match[1], other, base)
		}
		versions[match[1]] = base

		body, err := fs.ReadFile(src.FS, name)
		if err != nil {
			return fmt.Errorf("read %q: %w", base, err)
		}
		for _, annotation := range requiredAnnotations {
			if !strings.Contains(string(body), annotation) {
				return fmt.Errorf("migration %q missing %q", base, annotation)
			}
		}
	}
	return nil
}
