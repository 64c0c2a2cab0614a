package catalog

import (
	"context"
	"fmt"

	"github.com/quelan/filmlens/models"
	"gorm.io/gorm"
)

// Key is the natural key of a catalog entry.
type Key struct {
	Title string
	Year  string
}

// Store is the shared film catalog. Records are append-only; deduplication
// happens in memory during reconciliation, keeping the freshest record.
type Store interface {
	All(ctx context.Context) ([]models.Film, error)
	Append(ctx context.Context, films []models.Film) error
}

// ErrorStore persists failed lookups for offline triage. Recorded titles
// double as the reconciler's do-not-fetch deny-list.
type ErrorStore interface {
	Record(ctx context.Context, errs []models.LookupError) error
	DenySet(ctx context.Context) (map[Key]struct{}, error)
}

// GormStore backs Store with the shared sqlite database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) All(ctx context.Context) ([]models.Film, error) {
	var films []models.Film
	if err := s.db.WithContext(ctx).Order("id").Find(&films).Error; err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return films, nil
}

func (s *GormStore) Append(ctx context.Context, films []models.Film) error {
	if len(films) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&films).Error; err != nil {
		return fmt.Errorf("failed to append films: %w", err)
	}
	return nil
}

// GormErrorStore backs ErrorStore with the shared sqlite database.
type GormErrorStore struct {
	db *gorm.DB
}

func NewGormErrorStore(db *gorm.DB) *GormErrorStore {
	return &GormErrorStore{db: db}
}

func (s *GormErrorStore) Record(ctx context.Context, errs []models.LookupError) error {
	if len(errs) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&errs).Error; err != nil {
		return fmt.Errorf("failed to record lookup errors: %w", err)
	}
	return nil
}

func (s *GormErrorStore) DenySet(ctx context.Context) (map[Key]struct{}, error) {
	var rows []models.LookupError
	if err := s.db.WithContext(ctx).Select("title", "year").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load deny list: %w", err)
	}
	deny := make(map[Key]struct{}, len(rows))
	for _, r := range rows {
		deny[Key{Title: r.Title, Year: r.Year}] = struct{}{}
	}
	return deny, nil
}
