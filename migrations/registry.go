// Package migrations exposes the embedded SQL migrations per dialect and
// registers them with a go-persistence-bun client.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	messaging "github.com/goliatone/go-messaging"
	persistence "github.com/goliatone/go-persistence-bun"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	// SourceLabel identifies this module's migrations to the register callback.
	SourceLabel = "go-messaging"

	rootDir = "data/sql/migrations"
)

// FilesystemSpec is one dialect's migration directory.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

type Registration struct {
	Targets     []string
	Filesystems []FilesystemSpec
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

// WithValidationTargets limits registration to the given dialects.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		var next []string
		for _, target := range targets {
			target = strings.ToLower(strings.TrimSpace(target))
			if target != "" && !slices.Contains(next, target) {
				next = append(next, target)
			}
		}
		if len(next) > 0 {
			r.Targets = next
		}
	}
}

// Filesystems resolves the postgres tree and its sqlite subdirectory. Each
// must contain at least one *.up.sql file.
func Filesystems() ([]FilesystemSpec, error) {
	base, err := fs.Sub(messaging.GetMigrationsFS(), rootDir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", rootDir, err)
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	filesystems := []FilesystemSpec{
		{Dialect: DialectPostgres, Path: rootDir, FS: base},
		{Dialect: DialectSQLite, Path: rootDir + "/sqlite", FS: sqliteFS},
	}
	for _, entry := range filesystems {
		matches, err := fs.Glob(entry.FS, "*.up.sql")
		if err != nil {
			return nil, fmt.Errorf("migrations: glob %s: %w", entry.Path, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s has no *.up.sql files", entry.Path)
		}
	}
	return filesystems, nil
}

// Register calls registerFn once per targeted dialect. Both dialects are
// targeted unless WithValidationTargets narrows them.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{Targets: []string{DialectPostgres, DialectSQLite}}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	filesystems, err := Filesystems()
	if err != nil {
		return reg, err
	}
	reg.Filesystems = filesystems
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	for _, entry := range reg.Filesystems {
		if !slices.Contains(reg.Targets, entry.Dialect) {
			continue
		}
		if err := registerFn(ctx, entry.Dialect, SourceLabel, entry.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s: %w", entry.Dialect, err)
		}
	}
	return reg, nil
}

// DialectForDriver maps a store.driver value onto a migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: no migrations for driver %q", driver)
	}
}

// RegisterClient registers the migrations matching driver with client. The
// caller still runs client.Migrate.
func RegisterClient(ctx context.Context, client *persistence.Client, driver string) (Registration, error) {
	if client == nil {
		return Registration{}, fmt.Errorf("migrations: persistence client is required")
	}
	dialect, err := DialectForDriver(driver)
	if err != nil {
		return Registration{}, err
	}
	return Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, WithValidationTargets(dialect))
}
