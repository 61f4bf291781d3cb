package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/megahubhq/megahub-backend/pkg/migrate"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %q", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestTenancyMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_tenancy.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS companies",
		"CONSTRAINT ux_brands_company_name UNIQUE (company_id, name)",
		"CONSTRAINT ux_brand_users_brand_user UNIQUE (brand_id, user_id)",
		"CHECK (current_brands_count >= 0)",
		"CHECK (current_users_count >= 0)",
		"CONSTRAINT ux_company_slots_company UNIQUE (company_id)",
		"DROP TABLE IF EXISTS companies",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestBillingMigrationGuardsSingleOpenSubscription(t *testing.T) {
	content := readMigration(t, "*_create_billing.sql")

	checks := []string{
		"CREATE UNIQUE INDEX ux_subscriptions_company_open",
		"WHERE status <> 'canceled'",
		"CONSTRAINT ux_invoices_number UNIQUE (number)",
		"CREATE UNIQUE INDEX ux_usage_alerts_company_kind_active",
		"WHERE status = 'active'",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestWebhookMigrationEnforcesEventUniqueness(t *testing.T) {
	content := readMigration(t, "*_create_stripe_mirror.sql")

	if !strings.Contains(content, "CONSTRAINT ux_stripe_webhook_events_event UNIQUE (event_id)") {
		t.Error("missing webhook event id uniqueness constraint")
	}
	if !strings.Contains(content, "WHERE status = 'failed'") {
		t.Error("missing retry scan index predicate")
	}
}

func TestMigrationDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migration dir failed validation: %v", err)
	}
}
