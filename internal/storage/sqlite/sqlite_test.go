package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"raskhody/internal/core"
	"raskhody/internal/storage"
	"raskhody/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T, opts storage.Options) storage.Store {
		s, err := Open(filepath.Join(t.TempDir(), "test.db"), opts)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return s
	}, false)
}

func TestOpenIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "raskhody.db")
	clock := storagetest.NewClock(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))

	s, err := Open(path, storage.Options{Now: clock.Now})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.RecordExpense(context.Background(), 1, core.MustParseAmount("123.45"), "обед"); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(path, storage.Options{Now: clock.Now})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	items, err := s.ExpensesToday(context.Background(), 1)
	if err != nil {
		t.Fatalf("ExpensesToday: %v", err)
	}
	if len(items) != 1 || items[0].Amount.String() != "123.45" || items[0].Description != "обед" {
		t.Errorf("items after reopen = %v", items)
	}
}

func TestEmptyDescriptionStoredAsNull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "null.db")
	s, err := Open(path, storage.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.RecordExpense(context.Background(), 3, core.MustParseAmount("5"), ""); err != nil {
		t.Fatalf("RecordExpense: %v", err)
	}

	var description sql.NullString
	if err := s.db.QueryRow(`SELECT description FROM expenses WHERE user_id = 3`).Scan(&description); err != nil {
		t.Fatalf("query: %v", err)
	}
	if description.Valid {
		t.Errorf("description = %q, want NULL", description.String)
	}
}

func TestMigrationVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "version.db")
	s, err := Open(path, storage.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Close()

	version, dirty, ok, err := storage.MigrationVersion(storage.DialectSQLite, DSN(path))
	if err != nil {
		t.Fatalf("MigrationVersion: %v", err)
	}
	if !ok || dirty || version != 1 {
		t.Errorf("version = %d dirty = %v ok = %v, want 1 false true", version, dirty, ok)
	}
}
