package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/farmbid-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestMigrationsAreValid(t *testing.T) {
	for _, src := range []migrate.Source{{}, {Dir: "migrations"}} {
		if err := migrate.Validate(src); err != nil {
			t.Fatalf("validate %s migrations: %v", src, err)
		}
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	fsys, root := migrate.Source{}.FS()
	embedded, err := fs.Glob(fsys, root+"/*.sql")
	if err != nil {
		t.Fatalf("glob embedded: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob disk: %v", err)
	}
	if len(embedded) == 0 || len(embedded) != len(onDisk) {
		t.Fatalf("embedded %d files, disk %d", len(embedded), len(onDisk))
	}
}

func TestLedgerMigrationsContainConstraints(t *testing.T) {
	cases := map[string][]string{
		"create_products_and_bids": {
			"CREATE TABLE IF NOT EXISTS products",
			"CHECK (starting_price_cents > 0)",
			"CREATE TABLE IF NOT EXISTS bids",
			"CREATE INDEX IF NOT EXISTS idx_products_status_end_time",
			"DROP TABLE IF EXISTS products",
		},
		"create_wallets": {
			"CHECK (balance_cents >= 0)",
			"CHECK (frozen_balance_cents >= 0)",
			"CREATE TABLE IF NOT EXISTS wallet_transactions",
			"idx_wallet_transactions_pending_freeze",
		},
		"create_notifications": {
			"chk_notifications_audience",
			"PRIMARY KEY (notification_id, user_id)",
		},
		"create_ratings": {
			"PRIMARY KEY (product_id, from_user_id, to_user_id)",
			"CHECK (rating BETWEEN 1 AND 5)",
			"CHECK (char_length(review) <= 200)",
		},
		"create_outbox": {
			"CREATE TABLE IF NOT EXISTS outbox_events",
			"CREATE TABLE IF NOT EXISTS outbox_dlq",
		},
	}

	for suffix, checks := range cases {
		content := readMigration(t, suffix)
		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s: missing expected statement %q", suffix, sub)
			}
		}
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 4, 2, 10, 30, 0, 0, time.UTC)
	path, err := migrate.CreateSQLMigration(dir, "Add Lot Tags!", now)
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if filepath.Base(path) != "20260402103000_add_lot_tags.sql" {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.Validate(migrate.Source{Dir: dir}); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "add lot tags", now); err == nil {
		t.Fatalf("expected error when the file already exists")
	}
	if _, err := migrate.CreateSQLMigration(dir, "!!!", now); err == nil {
		t.Fatalf("expected error for empty sanitized name")
	}
}
