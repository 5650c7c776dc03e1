package db

import (
	"testing"
	"testing/fstest"
	"time"
)

func files(m map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, content := range m {
		fsys[name] = &fstest.MapFile{Data: []byte(content)}
	}
	return fsys
}

func TestLoadMigrations(t *testing.T) {
	migrator := NewMigrator(nil, files(map[string]string{
		"010_later.sql":  "SELECT 10;",
		"001_outbox.sql": "CREATE TABLE intake_outbox (id TEXT);",
		"002_index.sql":  "CREATE INDEX ...;",
		"README.md":      "not sql",
		"notes.sql":      "no numeric prefix",
		"abc_bad.sql":    "non-numeric prefix",
	}))

	migrations, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	want := []int{1, 2, 10}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("migrations[%d].Version = %d, want %d", i, migrations[i].Version, v)
		}
	}
	if migrations[0].Name != "001_outbox.sql" {
		t.Errorf("expected name 001_outbox.sql, got %s", migrations[0].Name)
	}
	if migrations[0].SQL != "CREATE TABLE intake_outbox (id TEXT);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	migrator := NewMigrator(nil, files(map[string]string{
		"001_a.sql": "SELECT 1;",
		"1_b.sql":   "SELECT 1;",
	}))
	if _, err := migrator.LoadMigrations(); err == nil {
		t.Error("expected error for duplicate versions")
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	migrations, err := NewMigrator(nil, fstest.MapFS{}).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected 0 migrations, got %d", len(migrations))
	}
}

func TestPendingAndStatuses(t *testing.T) {
	migrations := []Migration{
		{Version: 1, Name: "001_outbox.sql"},
		{Version: 2, Name: "002_index.sql"},
		{Version: 3, Name: "003_more.sql"},
	}
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	applied := map[int]time.Time{1: at}

	if got := pending(migrations, applied, 0); len(got) != 2 || got[0].Version != 2 {
		t.Errorf("pending(all) = %+v", got)
	}
	if got := pending(migrations, applied, 2); len(got) != 1 || got[0].Version != 2 {
		t.Errorf("pending(upto 2) = %+v", got)
	}

	st := statuses(migrations, applied)
	if len(st) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(st))
	}
	if !st[0].Applied || st[0].AppliedAt == nil || !st[0].AppliedAt.Equal(at) {
		t.Errorf("expected 001 applied at %v, got %+v", at, st[0])
	}
	if st[1].Applied || st[1].AppliedAt != nil {
		t.Errorf("expected 002 pending, got %+v", st[1])
	}
}

func TestCheckSchema(t *testing.T) {
	for _, ok := range []string{"public", "intake", "_x1"} {
		if err := checkSchema(ok); err != nil {
			t.Errorf("checkSchema(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "1abc", "a-b", "public; DROP TABLE x", "a b"} {
		if err := checkSchema(bad); err == nil {
			t.Errorf("checkSchema(%q) should fail", bad)
		}
	}
}
