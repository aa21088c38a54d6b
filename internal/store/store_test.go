package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open(%q): %v", path, err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	if _, err := Open("/nonexistent/path/to/db"); err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestPragmas(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	var mode string
	if err := s.DB().QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
	var fk int
	if err := s.DB().QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("foreign_keys = %d, want 1", fk)
	}
}

func TestTx(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()
	if _, err := s.DB().ExecContext(ctx, "CREATE TABLE samples (id INTEGER PRIMARY KEY, point TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	err := s.Tx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO samples (id, point) VALUES (1, 'GT_LOAD')")
		return err
	})
	if err != nil {
		t.Fatalf("Tx commit: %v", err)
	}

	errBoom := errors.New("boom")
	err = s.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO samples (id, point) VALUES (2, 'FUEL_FLOW')"); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("Tx rollback err = %v, want errBoom", err)
	}

	var count int
	if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM samples").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("rows = %d, want 1 (second insert rolled back)", count)
	}
}

func TestMigrate(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	calls := 0
	migrations := []Migration{
		{Version: 1, Description: "create cycles", Up: func(tx *sql.Tx) error {
			calls++
			_, err := tx.Exec("CREATE TABLE journal_cycles (id TEXT PRIMARY KEY)")
			return err
		}},
		{Version: 2, Description: "add health", Up: func(tx *sql.Tx) error {
			calls++
			_, err := tx.Exec("ALTER TABLE journal_cycles ADD COLUMN health TEXT")
			return err
		}},
	}

	if err := s.Migrate(ctx, "journal", migrations); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := s.Migrate(ctx, "journal", migrations); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	if calls != 2 {
		t.Errorf("migrations ran %d times, want 2", calls)
	}
	if _, err := s.DB().ExecContext(ctx, "INSERT INTO journal_cycles (id, health) VALUES ('c1', 'HEALTHY')"); err != nil {
		t.Fatalf("insert after migration: %v", err)
	}

	// Another component tracks its own versions.
	other := []Migration{{Version: 1, Description: "other", Up: func(tx *sql.Tx) error {
		_, err := tx.Exec("CREATE TABLE other_data (id INTEGER)")
		return err
	}}}
	if err := s.Migrate(ctx, "other", other); err != nil {
		t.Fatalf("other Migrate: %v", err)
	}
}

func TestMigrate_PartialFailure(t *testing.T) {
	s := tempDB(t)
	ctx := context.Background()

	migrations := []Migration{
		{Version: 1, Description: "ok", Up: func(tx *sql.Tx) error {
			_, err := tx.Exec("CREATE TABLE partial_test (id INTEGER)")
			return err
		}},
		{Version: 2, Description: "bad", Up: func(tx *sql.Tx) error {
			_, err := tx.Exec("INVALID SQL")
			return err
		}},
	}
	if err := s.Migrate(ctx, "partial", migrations); err == nil {
		t.Fatal("expected error from bad migration")
	}

	var count int
	if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM _migrations WHERE component = 'partial'").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("committed migrations = %d, want 1", count)
	}
}

func TestCheckVersion(t *testing.T) {
	tests := []struct {
		name    string
		steps   []string
		wantErr bool
		stored  string
	}{
		{"first run", []string{"0.4.0"}, false, "0.4.0"},
		{"same version", []string{"0.4.0", "0.4.0"}, false, "0.4.0"},
		{"upgrade", []string{"0.4.0", "v0.5.0"}, false, "v0.5.0"},
		{"downgrade rejected", []string{"0.5.0", "0.4.0"}, true, "0.5.0"},
		{"dev passes", []string{"0.5.0", "dev", "0.1.0"}, false, "0.1.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tempDB(t)
			ctx := context.Background()

			var err error
			for _, v := range tt.steps {
				if err = s.CheckVersion(ctx, v); err != nil {
					break
				}
			}
			if tt.wantErr {
				if !errors.Is(err, ErrNewerSchema) {
					t.Fatalf("err = %v, want ErrNewerSchema", err)
				}
			} else if err != nil {
				t.Fatalf("CheckVersion: %v", err)
			}

			var stored string
			if err := s.DB().QueryRowContext(ctx, "SELECT app_version FROM _schema_meta WHERE id = 1").Scan(&stored); err != nil {
				t.Fatalf("query stored version: %v", err)
			}
			if stored != tt.stored {
				t.Errorf("stored version = %q, want %q", stored, tt.stored)
			}
		})
	}
}

func TestClose(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "close.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Ping(context.Background()); err == nil {
		t.Error("expected error after Close, got nil")
	}
}
