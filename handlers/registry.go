package handlers

import (
	"sync"
	"time"

	"log/slog"

	"github.com/quelan/filmlens/lib/ingest"
	"github.com/quelan/filmlens/lib/radar"
	"github.com/quelan/filmlens/lib/session"
	"github.com/quelan/filmlens/lib/stats"
	"github.com/quelan/filmlens/lib/views"
)

// State is everything one processed upload exposes to the view endpoints.
type State struct {
	Session  *session.Session
	Selector *views.Selector
	Username string
	Years    []string
	Scores   radar.Scores
	Markers  radar.Markers
	Means    stats.Means
	Profile  ingest.Profile

	createdAt time.Time
}

// Registry tracks live sessions. Sessions are released explicitly by the
// client or evicted after their TTL; both paths remove the extraction
// directory exactly once.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*State
	ttl      time.Duration
	logger   *slog.Logger
}

func NewRegistry(ttl time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*State),
		ttl:      ttl,
		logger:   logger,
	}
}

func (r *Registry) Put(st *State) {
	st.createdAt = time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[st.Session.ID] = st
}

func (r *Registry) Get(id string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.sessions[id]
	return st, ok
}

// Release removes the session and its extraction directory.
func (r *Registry) Release(id string) bool {
	r.mu.Lock()
	st, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return false
	}
	if err := st.Session.Close(); err != nil {
		r.logger.Error("failed to close session", slog.String("session", id), slog.Any("error", err))
	}
	return true
}

// EvictExpired releases every session older than the registry TTL.
func (r *Registry) EvictExpired() {
	cutoff := time.Now().Add(-r.ttl)

	r.mu.Lock()
	var expired []string
	for id, st := range r.sessions {
		if st.createdAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		r.logger.Info("evicting expired session", slog.String("session", id))
		r.Release(id)
	}
}
