package update

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/shell-updater/internal/infrastructure/config"
	"github.com/nerrad567/shell-updater/internal/infrastructure/database"
	"github.com/nerrad567/shell-updater/migrations"
)

// setupHistoryTestDB opens a migrated database in a temp directory.
func setupHistoryTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	return db
}

func TestSQLiteHistoryRepository_RecordAndList(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteHistoryRepository(db.DB)
	ctx := context.Background()

	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	verified := true

	results := []Result{
		{
			RequestID: "req-1", Target: TargetFirmware, Outcome: OutcomeSucceeded,
			PayloadVersion: "1.3.9", PayloadSize: 4096, DeviceVersion: "1.3.0",
			StartedAt: base, FinishedAt: base.Add(30 * time.Second),
		},
		{
			RequestID: "req-2", Target: TargetDatabase, Local: true, Outcome: OutcomeSucceeded,
			PayloadVersion: "1042", PayloadSize: 2048, Verified: &verified,
			StartedAt: base.Add(time.Minute), FinishedAt: base.Add(time.Minute + time.Second),
		},
		{
			RequestID: "req-3", Target: TargetDatabase, Local: true, Outcome: OutcomeFailed,
			Kind: InvalidDatabaseFile, Err: newError(InvalidDatabaseFile, "read database", nil),
			StartedAt: base.Add(2 * time.Minute), FinishedAt: base.Add(2 * time.Minute),
		},
	}
	for _, res := range results {
		if err := repo.Record(ctx, EntryFromResult(res)); err != nil {
			t.Fatalf("Record(%s) error = %v", res.RequestID, err)
		}
	}

	entries, err := repo.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("List() returned %d entries, want 3", len(entries))
	}

	if entries[0].ID != "req-3" || entries[2].ID != "req-1" {
		t.Errorf("order = %s,%s,%s, want newest first", entries[0].ID, entries[1].ID, entries[2].ID)
	}

	failed := entries[0]
	if failed.Outcome != "failed" || failed.FailureKind != "invalid-database-file" || failed.Error == "" {
		t.Errorf("failed entry = %+v", failed)
	}

	db1042 := entries[1]
	if !db1042.Local || db1042.Verified == nil || !*db1042.Verified {
		t.Errorf("database entry = %+v", db1042)
	}

	fw := entries[2]
	if fw.Verified != nil || fw.FailureKind != "" || fw.DeviceVersion != "1.3.0" {
		t.Errorf("firmware entry = %+v", fw)
	}
	if !fw.StartedAt.Equal(base) || !fw.FinishedAt.Equal(base.Add(30*time.Second)) {
		t.Errorf("timestamps = %v..%v", fw.StartedAt, fw.FinishedAt)
	}
}

func TestSQLiteHistoryRepository_Limit(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteHistoryRepository(db.DB)
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		entry := HistoryEntry{
			ID:         "req-" + string(rune('a'+i)),
			Target:     TargetFirmware,
			Outcome:    "pending",
			StartedAt:  base.Add(time.Duration(i) * time.Second),
			FinishedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Record(ctx, entry); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	entries, err := repo.List(ctx, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "req-e" {
		t.Errorf("List(2) = %v", entries)
	}
}

func TestSQLiteHistoryRepository_RejectsInvalid(t *testing.T) {
	db := setupHistoryTestDB(t)
	repo := NewSQLiteHistoryRepository(db.DB)
	ctx := context.Background()

	if err := repo.Record(ctx, HistoryEntry{}); err == nil {
		t.Error("Record() without id succeeded")
	}

	entry := HistoryEntry{ID: "dup", Target: TargetFirmware, Outcome: "pending"}
	if err := repo.Record(ctx, entry); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := repo.Record(ctx, entry); err == nil {
		t.Error("duplicate id accepted")
	}

	bad := HistoryEntry{ID: "bad-target", Target: Target("bootloader"), Outcome: "pending"}
	if err := repo.Record(ctx, bad); err == nil || errors.Is(err, context.Canceled) {
		t.Errorf("Record() with unknown target error = %v, want constraint failure", err)
	}
}
