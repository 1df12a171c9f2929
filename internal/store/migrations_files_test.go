package store

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"
)

func TestMigrationsHaveUpAndDownSections(t *testing.T) {
	entries, err := fs.ReadDir(Migrations(), ".")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}

	pattern := regexp.MustCompile(`^\d{5}_[a-z0-9_]+\.sql$`)
	seen := 0
	for _, entry := range entries {
		name := entry.Name()
		if !pattern.MatchString(name) {
			t.Fatalf("migration %s does not follow the NNNNN_name.sql layout", name)
		}
		contents, err := fs.ReadFile(Migrations(), name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		body := string(contents)
		if !strings.Contains(body, "-- +goose Up") || !strings.Contains(body, "-- +goose Down") {
			t.Fatalf("migration %s must include both goose Up and Down sections", name)
		}
		seen++
	}

	if seen == 0 {
		t.Fatal("no migrations discovered")
	}
}
