package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	messaging "github.com/goliatone/go-messaging"
	_ "github.com/mattn/go-sqlite3"
)

var migrationNames = []string{
	"00001_messaging_webhook_deliveries",
	"00002_messaging_delivery_events",
	"00003_messaging_rate_limit_state",
}

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) != len(migrationNames) {
			t.Fatalf("expected %d %s migrations, got %v", len(migrationNames), entry.Dialect, matches)
		}
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, label string, _ fs.FS) error {
		if label != SourceLabel {
			t.Fatalf("unexpected source label %q", label)
		}
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != DialectSQLite {
		t.Fatalf("expected a single sqlite registration, got %v", calls)
	}
}

func TestRegister_RequiresRegisterFunc(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected missing register function error")
	}
}

func TestDialectForDriver(t *testing.T) {
	cases := map[string]string{
		"postgres": DialectPostgres,
		"sqlite3":  DialectSQLite,
		" SQLite ": DialectSQLite,
	}
	for driver, want := range cases {
		got, err := DialectForDriver(driver)
		if err != nil || got != want {
			t.Fatalf("driver %q: expected %q, got %q %v", driver, want, got, err)
		}
	}
	if _, err := DialectForDriver("memory"); err == nil {
		t.Fatalf("expected memory driver to have no migrations")
	}
}

func TestMigrationPairs_ExistForBothDialects(t *testing.T) {
	root := messaging.GetMigrationsFS()
	for _, name := range migrationNames {
		for _, dir := range []string{"data/sql/migrations", "data/sql/migrations/sqlite"} {
			for _, suffix := range []string{".up.sql", ".down.sql"} {
				path := dir + "/" + name + suffix
				content, err := fs.ReadFile(root, path)
				if err != nil {
					t.Fatalf("read migration %s: %v", path, err)
				}
				if strings.TrimSpace(string(content)) == "" {
					t.Fatalf("expected migration %s to have SQL content", path)
				}
			}
		}
	}
}

func TestSQLiteMigrations_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-apply-rollback?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	sqliteMigrations, err := fs.Sub(messaging.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	ctx := context.Background()
	for _, name := range migrationNames {
		if err := execSQLMigration(ctx, db, sqliteMigrations, name+".up.sql"); err != nil {
			t.Fatalf("apply %s: %v", name, err)
		}
	}

	insert := `INSERT INTO messaging_webhook_deliveries (id, source, dedupe_key, status) VALUES (?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insert, "d1", "messaging", "msg1:delivered", "pending"); err != nil {
		t.Fatalf("insert delivery: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "d2", "messaging", "msg1:delivered", "pending"); err == nil {
		t.Fatalf("expected unique (source, dedupe_key) violation")
	}

	for i := len(migrationNames) - 1; i >= 0; i-- {
		if err := execSQLMigration(ctx, db, sqliteMigrations, migrationNames[i]+".down.sql"); err != nil {
			t.Fatalf("rollback %s: %v", migrationNames[i], err)
		}
	}
	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 'messaging_%'`,
	).Scan(&count); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected all messaging tables dropped, got %d", count)
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
