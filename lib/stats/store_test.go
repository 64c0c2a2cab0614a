package stats

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"io"
	"log/slog"

	"github.com/quelan/filmlens/lib/db"
	"github.com/quelan/filmlens/lib/lock"
	"github.com/quelan/filmlens/models"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gormDB, err := db.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return NewGormStore(gormDB, logger)
}

func TestUpsert_RunCounter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	row := models.ProfileStat{
		Username:     "alice",
		FilmsWatched: 40,
		ObscureRatio: 0.25,
		GenreRatios:  `{"Drama":0.5,"Comedy":0.25}`,
		Interactions: 3,
	}
	if err := store.Upsert(ctx, row); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	row.FilmsWatched = 45
	if err := store.Upsert(ctx, row); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	rows, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row per username, got %d", len(rows))
	}
	if rows[0].Runs != 2 {
		t.Errorf("Runs = %d, want 2", rows[0].Runs)
	}
	if rows[0].FilmsWatched != 45 {
		t.Errorf("FilmsWatched = %d, want the updated 45", rows[0].FilmsWatched)
	}
}

func TestUpsert_SeparateUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"alice", "bob"} {
		if err := store.Upsert(ctx, models.ProfileStat{Username: name, FilmsWatched: 10}); err != nil {
			t.Fatalf("upsert %s: %v", name, err)
		}
	}

	rows, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected two rows, got %d", len(rows))
	}
	for _, r := range rows {
		if r.Runs != 1 {
			t.Errorf("%s Runs = %d, want 1", r.Username, r.Runs)
		}
	}
}

func TestUpsert_ProceedsUnlockedWhenLockHeld(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	gormDB, err := db.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	store := NewGormStore(gormDB, logger)
	store.lockTimeout = 200 * time.Millisecond
	ctx := context.Background()

	holder := lock.NewFileLock(slog.New(slog.NewTextHandler(io.Discard, nil)))
	acquired, err := holder.TryLock(ctx, upsertLockKey, time.Second)
	if err != nil || !acquired {
		t.Fatalf("failed to pre-acquire lock: acquired=%v err=%v", acquired, err)
	}
	defer func() {
		if err := holder.Unlock(ctx, upsertLockKey); err != nil {
			t.Errorf("failed to release lock: %v", err)
		}
	}()

	if err := store.Upsert(ctx, models.ProfileStat{Username: "alice", FilmsWatched: 5}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rows, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 1 || rows[0].Runs != 1 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if !strings.Contains(buf.String(), "proceeding unlocked") {
		t.Fatalf("expected an unlocked-upsert warning, log: %s", buf.String())
	}
}

func TestReadMeans_ColdStart(t *testing.T) {
	store := newTestStore(t)

	m, err := store.ReadMeans(context.Background())
	if err != nil {
		t.Fatalf("ReadMeans: %v", err)
	}
	if m != (Means{}) {
		t.Fatalf("expected zero means on empty store, got %+v", m)
	}
}

func TestMeansOf(t *testing.T) {
	m := meansOf([]models.ProfileStat{
		{FilmsWatched: 10, ObscureRatio: 0.2, MeanRatingDiff: 0.5, Interactions: 2, GenreRatios: `{"Drama":0.6,"Comedy":0.4}`},
		{FilmsWatched: 30, ObscureRatio: 0.4, MeanRatingDiff: -0.5, Interactions: 6, GenreRatios: `{"Horror":1}`},
	})

	if m.FilmsWatched != 20 {
		t.Errorf("FilmsWatched = %v, want 20", m.FilmsWatched)
	}
	if m.ObscureRatio != 0.3 {
		t.Errorf("ObscureRatio = %v, want 0.3", m.ObscureRatio)
	}
	if m.MeanRatingDiff != 0 {
		t.Errorf("MeanRatingDiff = %v, want 0", m.MeanRatingDiff)
	}
	if m.Interactions != 4 {
		t.Errorf("Interactions = %v, want 4", m.Interactions)
	}
	// The favourite genre comes from the first row only.
	if m.FavoriteGenre != "Drama" {
		t.Errorf("FavoriteGenre = %q, want Drama", m.FavoriteGenre)
	}
}

func TestDominantGenre(t *testing.T) {
	cases := []struct {
		name string
		json string
		want string
	}{
		{"clear winner", `{"Drama":0.6,"Comedy":0.4}`, "Drama"},
		{"tie goes alphabetical", `{"Drama":0.5,"Comedy":0.5}`, "Comedy"},
		{"empty object", `{}`, ""},
		{"empty string", ``, ""},
		{"malformed", `not-json`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := dominantGenre(tc.json); got != tc.want {
				t.Fatalf("dominantGenre(%q) = %q, want %q", tc.json, got, tc.want)
			}
		})
	}
}

func TestMemoryStore_MatchesUpsertSemantics(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Upsert(ctx, models.ProfileStat{Username: "alice", FilmsWatched: 10}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := store.Upsert(ctx, models.ProfileStat{Username: "alice", FilmsWatched: 12}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rows, err := store.ReadAll(ctx)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 1 || rows[0].Runs != 2 || rows[0].FilmsWatched != 12 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}
