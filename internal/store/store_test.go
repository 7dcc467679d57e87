package store

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"kitmsg/internal/domain"

	_ "modernc.org/sqlite"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "params.db"), testLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func exerciseStore(t *testing.T, s domain.ParameterStore) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "speed"); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := s.Set(ctx, "speed", 2); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, "label", "fast"); err != nil {
		t.Fatalf("set: %v", err)
	}

	v, ok, err := s.Get(ctx, "speed")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	switch n := v.(type) {
	case int:
		if n != 2 {
			t.Fatalf("expected 2, got %v", n)
		}
	case float64:
		if n != 2 {
			t.Fatalf("expected 2, got %v", n)
		}
	default:
		t.Fatalf("unexpected type %T", v)
	}

	params, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(params) != 2 || params[0].Name != "label" || params[1].Name != "speed" {
		t.Fatalf("unexpected list: %+v", params)
	}
}

func TestMemory_SetGetList(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestSQLite_SetGetList(t *testing.T) {
	exerciseStore(t, testSQLite(t))
}

func TestSQLite_Overwrite(t *testing.T) {
	s := testSQLite(t)
	ctx := context.Background()

	s.Set(ctx, "mode", "a")
	s.Set(ctx, "mode", map[string]any{"nested": true})

	v, _, err := s.Get(ctx, "mode")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	m, ok := v.(map[string]any)
	if !ok || m["nested"] != true {
		t.Fatalf("expected nested map, got %#v", v)
	}

	history, err := s.History(ctx, "mode", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[1].Value != "a" {
		t.Fatalf("expected oldest value 'a', got %v", history[1].Value)
	}
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.db")
	s, err := NewSQLite(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	s.Set(context.Background(), "speed", 3)
	s.Close()

	s, err = NewSQLite(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	v, ok, _ := s.Get(context.Background(), "speed")
	if !ok || v != int64(3) {
		t.Fatalf("expected persisted 3, got %v (ok=%v)", v, ok)
	}
}

func TestSQLite_KeyPrefix(t *testing.T) {
	s := testSQLite(t)
	s.Set(context.Background(), "speed", 1)

	var key string
	if err := s.db.QueryRow(`SELECT key FROM parameters`).Scan(&key); err != nil {
		t.Fatal(err)
	}
	if key != "/ext/custom/speed" {
		t.Fatalf("unexpected stored key %q", key)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "m.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := RunMigrations(db, testLogger()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	version, err := GetSchemaVersion(db)
	if err != nil {
		t.Fatal(err)
	}
	if version != schemaVersion {
		t.Errorf("expected schema version %d, got %d", schemaVersion, version)
	}
}

func TestGetSchemaVersion_EmptyDB(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "empty.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	version, err := GetSchemaVersion(db)
	if err != nil || version != 0 {
		t.Fatalf("expected version 0, got %d (err=%v)", version, err)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open("postgres", "", testLogger()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestSQLite_LargeIntegerRoundTrip(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "p.db"), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	const seed = int64(9007199254740993)
	if err := s.Set(context.Background(), "seed", seed); err != nil {
		t.Fatal(err)
	}
	v, ok, err := s.Get(context.Background(), "seed")
	if err != nil || !ok || v != seed {
		t.Fatalf("expected %d, got %v (%T)", seed, v, v)
	}
	if err := s.Set(context.Background(), "ratio", 0.25); err != nil {
		t.Fatal(err)
	}
	if v, _, _ := s.Get(context.Background(), "ratio"); v != 0.25 {
		t.Fatalf("expected 0.25, got %v (%T)", v, v)
	}
}
