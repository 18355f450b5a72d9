package db

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const migrationsTestPrefix = "db:migrations_test"

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("%s - failed to write test file %s: %v", migrationsTestPrefix, name, err)
		}
	}
}

func TestLoadMigrationFiles_SortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"0003_third.sql":  "THIRD",
		"0001_first.sql":  "FIRST",
		"0002_second.sql": "SECOND",
		"README.md":       "# Migrations",
		"config.json":     "{}",
	})
	// Directory with a .sql suffix must be skipped.
	if err := os.Mkdir(filepath.Join(dir, "subdir.sql"), 0755); err != nil {
		t.Fatalf("%s - failed to create subdir: %v", migrationsTestPrefix, err)
	}

	result, err := LoadMigrationFiles(dir)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", migrationsTestPrefix, err)
	}

	want := []Migration{
		{Name: "0001_first", SQL: "FIRST"},
		{Name: "0002_second", SQL: "SECOND"},
		{Name: "0003_third", SQL: "THIRD"},
	}
	if !reflect.DeepEqual(result, want) {
		t.Errorf("%s - migrations = %+v, want %+v", migrationsTestPrefix, result, want)
	}
}

func TestLoadMigrationFiles_EmptyDir(t *testing.T) {
	result, err := LoadMigrationFiles(t.TempDir())
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", migrationsTestPrefix, err)
	}
	if len(result) != 0 {
		t.Errorf("%s - expected empty result, got %d items", migrationsTestPrefix, len(result))
	}
}

func TestLoadMigrationFiles_NonExistentDir(t *testing.T) {
	if _, err := LoadMigrationFiles(filepath.Join(t.TempDir(), "nonexistent")); err == nil {
		t.Errorf("%s - expected error for non-existent directory", migrationsTestPrefix)
	}
}

func TestDefaultMigrations(t *testing.T) {
	migs := DefaultMigrations()
	if len(migs) < 1 || migs[0].Name != "0001_invocations" {
		t.Fatalf("%s - embedded migrations = %+v", migrationsTestPrefix, migs)
	}
	if !strings.Contains(migs[0].SQL, "CREATE TABLE IF NOT EXISTS invocations") {
		t.Errorf("%s - first migration does not create invocations", migrationsTestPrefix)
	}
}

func TestResolveMigrations(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"0001_local.sql": "SELECT 1;"})

	got, err := ResolveMigrations(dir)
	if err != nil || len(got) != 1 || got[0].Name != "0001_local" {
		t.Errorf("%s - ResolveMigrations(dir) = %+v, %v", migrationsTestPrefix, got, err)
	}

	got, err = ResolveMigrations(filepath.Join(dir, "missing"))
	if err != nil || !reflect.DeepEqual(got, DefaultMigrations()) {
		t.Errorf("%s - missing dir should fall back to embedded migrations", migrationsTestPrefix)
	}
}

func TestSplitMigrations(t *testing.T) {
	migs := []Migration{{Name: "0001_a"}, {Name: "0002_b"}, {Name: "0003_c"}}
	state := splitMigrations(migs, map[string]bool{"0001_a": true, "0003_c": true, "0999_gone": true})

	if !reflect.DeepEqual(state.Applied, []string{"0001_a", "0003_c"}) {
		t.Errorf("%s - applied = %v", migrationsTestPrefix, state.Applied)
	}
	if !reflect.DeepEqual(state.Pending, []string{"0002_b"}) {
		t.Errorf("%s - pending = %v", migrationsTestPrefix, state.Pending)
	}
}
