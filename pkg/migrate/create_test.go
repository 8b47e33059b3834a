package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()

	path, err := CreateSQLMigration(dir, "Add Rule Index!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_rule_index.sql") {
		t.Fatalf("unexpected migration path %s", path)
	}
	if err := ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}

func TestValidateDirRejectsMissingDown(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\nSELECT 1;\n"
	if err := os.WriteFile(filepath.Join(dir, "20260101000000_only_up.sql"), []byte(body), 0o644); err != nil {
		t.Fatalf("write migration: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected validation error for missing down section")
	}
}

func TestValidateDirRejectsBadFilename(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "create_rules.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write migration: %v", err)
	}
	if err := ValidateDir(dir); err == nil {
		t.Fatal("expected validation error for unversioned filename")
	}
}
