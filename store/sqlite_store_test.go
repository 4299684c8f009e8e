package store

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tnicklin/metronome/clock"
	"github.com/tnicklin/metronome/tick"
)

func TestSQLiteStoreSaveAndGet(t *testing.T) {
	ctx := context.Background()
	mock := clock.Mock()
	mock.Add(90 * time.Minute)

	st := NewSQLiteStore(Params{Clock: mock})
	if err := st.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	c := tick.FromStartingTime(10, 25*time.Millisecond, true)
	if err := st.Save(ctx, "alpha", c); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec, err := st.Get(ctx, "alpha")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := tick.Snapshot{TickRateMS: 10, Elapsed: 25 * time.Millisecond}
	if rec.Snapshot != want {
		t.Fatalf("expected snapshot %+v, got %+v", want, rec.Snapshot)
	}
	if !rec.SavedAt.Equal(mock.Now()) {
		t.Fatalf("expected saved_at %v, got %v", mock.Now(), rec.SavedAt)
	}

	// Saving again under the same name replaces the record.
	c.ChangeTickRate(20)
	if err := st.Save(ctx, "alpha", c.ReadOnly()); err != nil {
		t.Fatalf("save: %v", err)
	}
	rec, err = st.Get(ctx, "alpha")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Snapshot.TickRateMS != 20 {
		t.Fatalf("expected tick rate 20, got %d", rec.Snapshot.TickRateMS)
	}

	loaded, err := Load(ctx, st, "alpha")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.IsPaused() {
		t.Fatalf("expected loaded clock to be paused")
	}
	if ticks := rec.Snapshot.Ticks(); ticks != 1 {
		t.Fatalf("expected 1 tick at 20ms/tick, got %d", ticks)
	}
}

func TestSQLiteStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	st := NewSQLiteStore(Params{})
	if err := st.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	for _, name := range []string{"charlie", "alpha", "bravo"} {
		if err := st.Save(ctx, name, tick.NewPaused(10)); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}

	recs, err := st.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 records, got %d", len(recs))
	}
	for i, name := range []string{"alpha", "bravo", "charlie"} {
		if recs[i].Name != name {
			t.Fatalf("expected record %d to be %s, got %s", i, name, recs[i].Name)
		}
	}

	if err := st.Delete(ctx, "bravo"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := st.Delete(ctx, "bravo"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, err := st.Get(ctx, "bravo"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStoreErrors(t *testing.T) {
	ctx := context.Background()
	st := NewSQLiteStore(Params{})

	if err := st.Save(ctx, "alpha", tick.NewPaused(10)); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen, got %v", err)
	}

	if err := st.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	for _, name := range []string{"", ".hidden", "a/b", `a\b`} {
		if err := st.Save(ctx, name, tick.NewPaused(10)); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("save %q: expected ErrInvalidName, got %v", name, err)
		}
	}
}

func TestSQLiteStoresAreIsolated(t *testing.T) {
	ctx := context.Background()
	a := NewSQLiteStore(Params{})
	b := NewSQLiteStore(Params{})
	for _, st := range []*SQLiteStore{a, b} {
		if err := st.Open(ctx); err != nil {
			t.Fatalf("open: %v", err)
		}
		defer st.Close()
	}

	if err := a.Save(ctx, "alpha", tick.NewPaused(10)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := b.Get(ctx, "alpha"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected second store to be empty, got %v", err)
	}
}

func TestSQLiteStoreRestoreFromDisk(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.db")

	st := NewSQLiteStore(Params{Path: path})
	st.SetFlushDebounce(time.Hour)
	if err := st.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Save(ctx, "alpha", tick.FromStartingTick(10, 7, true)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	restored := NewSQLiteStore(Params{Path: path})
	if err := restored.Open(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer restored.Close()

	c, err := Load(ctx, restored, "alpha")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	elapsed, err := c.Elapsed()
	if err != nil {
		t.Fatalf("elapsed: %v", err)
	}
	if elapsed != 70*time.Millisecond {
		t.Fatalf("expected 70ms elapsed, got %v", elapsed)
	}
}

func TestSQLiteStoreScheduledFlush(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.db")

	st := NewSQLiteStore(Params{Path: path})
	st.SetFlushDebounce(10 * time.Millisecond)
	if err := st.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	if err := st.Save(ctx, "alpha", tick.NewPaused(10)); err != nil {
		t.Fatalf("save: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		st.flushMu.Lock()
		dirty := st.dirty
		st.flushMu.Unlock()
		if !dirty {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("flush did not run")
		}
		time.Sleep(5 * time.Millisecond)
	}

	other := NewSQLiteStore(Params{})
	if err := other.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer other.Close()
	if err := other.RestoreFromDisk(ctx, path); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, err := other.Get(ctx, "alpha"); err != nil {
		t.Fatalf("get after restore: %v", err)
	}
}

func TestSQLiteStoreOpenCorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshot.db")
	garbage := []byte("this is not an sqlite database, just some bytes on disk")
	if err := os.WriteFile(path, garbage, 0o644); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}

	st := NewSQLiteStore(Params{Path: path})
	st.SetFlushDebounce(time.Millisecond)
	for i := 0; i < 2; i++ {
		if err := st.Open(ctx); err == nil {
			t.Fatalf("open %d: expected error for corrupt snapshot", i+1)
		}
	}

	if _, err := st.List(ctx); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen from List, got %v", err)
	}
	if err := st.Save(ctx, "alpha", tick.NewPaused(10)); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen from Save, got %v", err)
	}
	if err := st.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if !bytes.Equal(got, garbage) {
		t.Fatalf("snapshot file was overwritten")
	}
}

func TestSQLiteStoreRejectsOutOfRangeTickRate(t *testing.T) {
	ctx := context.Background()
	st := NewSQLiteStore(Params{})
	if err := st.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	if _, err := st.db.ExecContext(ctx, upsertClock, "huge", int64(math.MaxUint32)+10, 0, "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := st.Get(ctx, "huge"); !errors.Is(err, tick.ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot from Get, got %v", err)
	}
	if _, err := st.List(ctx); !errors.Is(err, tick.ErrInvalidSnapshot) {
		t.Fatalf("expected ErrInvalidSnapshot from List, got %v", err)
	}
}
