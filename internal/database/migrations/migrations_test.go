package migrations

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	for _, table := range []string{"tags", "encounters", "sync_runs", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatus(t *testing.T) {
	db := openTestDB(t)

	err := CheckDBMigrationStatus(db)
	if err == nil || err.Error() != "database has no schema version (needs migration)" {
		t.Fatalf("CheckDBMigrationStatus() on fresh db = %v, want needs-migration error", err)
	}

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration = %v", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("first MigrateUp() failed: %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Errorf("second MigrateUp() failed: %v", err)
	}
}

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if v != 4 {
		t.Errorf("LatestVersion() = %d, want 4", v)
	}
}

func TestSchema_PredefinedTagsSeeded(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM tags WHERE is_custom = 0").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("predefined tags = %d, want 5", n)
	}
}

func TestSchema_TagLabelUniqueIgnoringCase(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	_, err := db.Exec("INSERT INTO tags (id, label, created_at) VALUES ('t1', 'DREAM', datetime('now'))")
	if err == nil {
		t.Error("expected unique violation for label differing only in case")
	}

	if _, err := db.Exec("UPDATE tags SET deleted = 1 WHERE id = 'dream'"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("INSERT INTO tags (id, label, created_at) VALUES ('t2', 'dream', datetime('now'))"); err != nil {
		t.Errorf("label of a deleted tag should be reusable: %v", err)
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
