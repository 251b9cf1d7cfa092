// Copyright 2025 DeFlow
//
// Unit tests for the parts of Client that don't require a live connection:
// migration discovery and ordering.

package database

import "testing"

func TestGetMigrationsSortedByVersion(t *testing.T) {
	c := &Client{}
	migrations, err := c.getMigrations()
	if err != nil {
		t.Fatalf("unexpected error listing embedded migrations: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 embedded migrations, got %d", len(migrations))
	}
	for i := 1; i < len(migrations); i++ {
		if migrations[i-1].Version >= migrations[i].Version {
			t.Fatalf("expected migrations sorted by version, got %q before %q", migrations[i-1].Version, migrations[i].Version)
		}
	}
	if migrations[0].Version != "001_schema_migrations" {
		t.Fatalf("expected the first migration to be 001_schema_migrations, got %q", migrations[0].Version)
	}
	for _, m := range migrations {
		if m.SQL == "" {
			t.Fatalf("expected migration %q to have SQL content", m.Version)
		}
	}
}
