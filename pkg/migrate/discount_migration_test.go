package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopmesh-io/backend/pkg/migrate"
)

func TestDiscountMigrationContainsCounterGuards(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_discount_tables.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no discount migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS discounts",
		"CREATE TABLE IF NOT EXISTS discount_usages",
		"CHECK (used_count >= 0)",
		"CHECK (pending_count >= 0)",
		"CHECK (max_uses IS NULL OR used_count + pending_count <= max_uses)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_discounts_shop_code",
		"PRIMARY KEY (discount_id, user_id)",
		"DROP TABLE IF EXISTS discounts",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}
