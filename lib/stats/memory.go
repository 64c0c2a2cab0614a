package stats

import (
	"context"
	"sync"

	"github.com/quelan/filmlens/models"
)

// MemoryStore is an in-process Repository used by tests and by deployments
// that run without a shared database. It exhibits the same upsert semantics
// as the gorm-backed store, including the read-then-write counter update.
type MemoryStore struct {
	mu    sync.Mutex
	order []string
	rows  map[string]models.ProfileStat
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]models.ProfileStat)}
}

func (s *MemoryStore) Upsert(ctx context.Context, row models.ProfileStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.rows[row.Username]; ok {
		row.Runs = existing.Runs + 1
	} else {
		row.Runs = 1
		s.order = append(s.order, row.Username)
	}
	s.rows[row.Username] = row
	return nil
}

func (s *MemoryStore) ReadAll(ctx context.Context) ([]models.ProfileStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.ProfileStat, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.rows[name])
	}
	return out, nil
}

func (s *MemoryStore) ReadMeans(ctx context.Context) (Means, error) {
	rows, err := s.ReadAll(ctx)
	if err != nil {
		return Means{}, err
	}
	return meansOf(rows), nil
}
