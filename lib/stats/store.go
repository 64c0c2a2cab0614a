// Package stats is the population statistics store: one row per user ever
// processed by the tool, holding their raw markers. The scorer reads the
// full population for percentile comparison and writes the current user's
// row back with an upsert.
//
// The store is shared across deployments with no transaction isolation, so
// the read-then-write upsert is subject to a lost-update race between
// deployments. A file lock serializes upserts within one deployment; the
// cross-deployment race is accepted as a known, low-probability risk.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/goccy/go-json"
	"github.com/quelan/filmlens/lib/lock"
	"github.com/quelan/filmlens/models"
	"gorm.io/gorm"
)

const upsertLockKey = "profiles-stats-upsert"

// Repository is the injected population-store dependency of the reconciler
// and the scorer.
type Repository interface {
	// Upsert writes the user's row: update-in-place with an incremented
	// run counter when the username exists, append with counter 1 when
	// it does not.
	Upsert(ctx context.Context, row models.ProfileStat) error
	ReadAll(ctx context.Context) ([]models.ProfileStat, error)
	ReadMeans(ctx context.Context) (Means, error)
}

// Means aggregates the population per marker. On a cold start (no rows) all
// values are zero rather than an error.
type Means struct {
	FilmsWatched   float64 `json:"nb_films_vus"`
	ObscureRatio   float64 `json:"ratio_peu_vus"`
	MeanRatingDiff float64 `json:"moyenne_diff_rating"`
	FavoriteGenre  string  `json:"genre_prefere"`
	Interactions   float64 `json:"nb_interactions"`
}

// GormStore backs Repository with the shared database.
type GormStore struct {
	db          *gorm.DB
	lock        *lock.FileLock
	lockTimeout time.Duration
	logger      *slog.Logger
}

func NewGormStore(db *gorm.DB, logger *slog.Logger) *GormStore {
	return &GormStore{
		db:          db,
		lock:        lock.NewFileLock(logger),
		lockTimeout: 10 * time.Second,
		logger:      logger,
	}
}

func (s *GormStore) Upsert(ctx context.Context, row models.ProfileStat) error {
	acquired, err := s.lock.TryLock(ctx, upsertLockKey, s.lockTimeout)
	if err != nil {
		return fmt.Errorf("failed to acquire upsert lock: %w", err)
	}
	if acquired {
		defer func() {
			if err := s.lock.Unlock(ctx, upsertLockKey); err != nil {
				s.logger.Error("failed to release upsert lock", slog.Any("error", err))
			}
		}()
	} else {
		// The write still happens; the lost-update window is accepted.
		s.logger.Warn("upsert lock not acquired within timeout, proceeding unlocked",
			slog.String("username", row.Username),
			slog.Duration("timeout", s.lockTimeout))
	}

	var existing models.ProfileStat
	err = s.db.WithContext(ctx).Where("username = ?", row.Username).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row.Runs = 1
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return fmt.Errorf("failed to insert profile stats: %w", err)
		}
	case err != nil:
		return fmt.Errorf("failed to look up profile stats: %w", err)
	default:
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		row.Runs = existing.Runs + 1
		if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
			return fmt.Errorf("failed to update profile stats: %w", err)
		}
	}
	return nil
}

func (s *GormStore) ReadAll(ctx context.Context) ([]models.ProfileStat, error) {
	var rows []models.ProfileStat
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read population: %w", err)
	}
	return rows, nil
}

func (s *GormStore) ReadMeans(ctx context.Context) (Means, error) {
	rows, err := s.ReadAll(ctx)
	if err != nil {
		return Means{}, err
	}
	return meansOf(rows), nil
}

// meansOf aggregates marker means over the population. The favourite genre
// is intentionally taken from the first row's dominant genre key rather than
// a real cross-population aggregate; downstream display copy assumes this
// exact semantic.
func meansOf(rows []models.ProfileStat) Means {
	if len(rows) == 0 {
		return Means{}
	}

	var m Means
	for _, r := range rows {
		m.FilmsWatched += float64(r.FilmsWatched)
		m.ObscureRatio += r.ObscureRatio
		m.MeanRatingDiff += r.MeanRatingDiff
		m.Interactions += float64(r.Interactions)
	}
	n := float64(len(rows))
	m.FilmsWatched /= n
	m.ObscureRatio /= n
	m.MeanRatingDiff /= n
	m.Interactions /= n
	m.FavoriteGenre = dominantGenre(rows[0].GenreRatios)
	return m
}

func dominantGenre(ratiosJSON string) string {
	if ratiosJSON == "" {
		return ""
	}
	var ratios map[string]float64
	if err := json.Unmarshal([]byte(ratiosJSON), &ratios); err != nil {
		return ""
	}
	best, bestRatio := "", -1.0
	for genre, ratio := range ratios {
		if ratio > bestRatio || (ratio == bestRatio && genre < best) {
			best, bestRatio = genre, ratio
		}
	}
	return best
}
