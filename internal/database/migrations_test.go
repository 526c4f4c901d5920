package database

import (
	"io"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
)

func TestEmbeddedMigrations(t *testing.T) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("iofs.New: %v", err)
	}
	defer src.Close()

	first, err := src.First()
	if err != nil {
		t.Fatalf("First: %v", err)
	}
	if first != 1 {
		t.Fatalf("first version = %d", first)
	}

	up, _, err := src.ReadUp(first)
	if err != nil {
		t.Fatalf("ReadUp: %v", err)
	}
	defer up.Close()

	body, err := io.ReadAll(up)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, want := range []string{"CREATE TABLE IF NOT EXISTS report_jobs", "CREATE TABLE IF NOT EXISTS reports", "UNIQUE (job_id)"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("up migration missing %q", want)
		}
	}
}
