package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	db, err := OpenDSN(ctx, MemoryDSN("migrate_idempotent"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations;").Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	ms, err := loadMigrations()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if n != len(ms) {
		t.Errorf("expected %d recorded migrations, got %d", len(ms), n)
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chronicle.db")
	db, err := Open(context.Background(), Config{Path: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("0007_add_index.sql")
	if err != nil || v != 7 {
		t.Fatalf("expected 7, got %d (%v)", v, err)
	}
	if _, err := parseVersion("init.sql"); err == nil {
		t.Error("expected error for a name without a version prefix")
	}
	if _, err := parseVersion("abc_init.sql"); err == nil {
		t.Error("expected error for a non-numeric prefix")
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Worker
// ═══════════════════════════════════════════════════════════════════════════

func newWorkerDB(t *testing.T, name string) (*sql.DB, *Worker) {
	t.Helper()
	db, err := OpenDSN(context.Background(), MemoryDSN("worker_"+name))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT NOT NULL);"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	w := NewWorker(db)
	t.Cleanup(func() {
		w.Close()
		db.Close()
	})
	return db, w
}

func TestWorker_CommitsAndRollsBack(t *testing.T) {
	ctx := context.Background()
	db, w := newWorkerDB(t, "commit")

	err := w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO kv VALUES ('a', '1');")
		return err
	})
	if err != nil {
		t.Fatalf("commit job: %v", err)
	}

	boom := errors.New("boom")
	err = w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO kv VALUES ('b', '2');"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM kv;").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected only the committed row, got %d rows", n)
	}
}

func TestWorker_CloseIsIdempotent(t *testing.T) {
	_, w := newWorkerDB(t, "close")
	w.Close()
	w.Close()

	err := w.Do(context.Background(), func(context.Context, *sql.Tx) error { return nil })
	if !errors.Is(err, ErrWorkerClosed) {
		t.Fatalf("expected ErrWorkerClosed, got %v", err)
	}
}

func TestWorker_QueuedJobDroppedWhenCancelled(t *testing.T) {
	db, w := newWorkerDB(t, "queued_cancel")

	started := make(chan struct{})
	release := make(chan struct{})
	blocked := make(chan error, 1)
	go func() {
		blocked <- w.Do(context.Background(), func(context.Context, *sql.Tx) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	queued := make(chan error, 1)
	go func() {
		queued <- w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, "INSERT INTO kv VALUES ('late', '1');")
			return err
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	close(release)

	if err := <-blocked; err != nil {
		t.Fatalf("blocking job: %v", err)
	}
	if err := <-queued; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM kv;").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("cancelled job must not commit, found %d rows", n)
	}
}

func TestWorker_StartedJobReportsCommit(t *testing.T) {
	db, w := newWorkerDB(t, "started_commit")

	ctx, cancel := context.WithCancel(context.Background())
	err := w.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cancel()
		_, err := tx.ExecContext(ctx, "INSERT INTO kv VALUES ('k', 'v');")
		return err
	})
	if err != nil {
		t.Fatalf("a job that began must report its own outcome, got %v", err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM kv;").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("expected the committed row, got %d rows", n)
	}
}
