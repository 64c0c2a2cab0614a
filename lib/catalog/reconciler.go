// Package catalog reconciles a user's raw film lists against the shared
// catalog: unknown titles are resolved through the metadata gateway and
// appended, the merged catalog is deduplicated, filtered for eligibility and
// bucketed by popularity, and the user's lists are joined against it.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/goccy/go-json"
	"github.com/quelan/filmlens/lib/ingest"
	"github.com/quelan/filmlens/lib/metrics"
	"github.com/quelan/filmlens/lib/omdb"
	"github.com/quelan/filmlens/models"
)

const (
	minRuntimeMinutes = 5
	// Short films below this runtime stay in the catalog only when the
	// community has voted on them in numbers.
	shortRuntimeMinutes = 20
	shortMinVotes       = 1000
)

// CategorizedFilm is a catalog entry with its popularity bucket bound.
// HasVotes is false for films the provider reports no vote count for; those
// are skipped by vote-based statistics.
type CategorizedFilm struct {
	models.Film
	Category Popularity
	HasVotes bool
}

// EnrichedEntry is one user list row joined against the catalog.
type EnrichedEntry struct {
	Name string
	Year string
	Date string
	Film CategorizedFilm
}

// RatingRow is one rating-list row joined against the catalog. UserRating is
// normalized x2 onto the provider's 0-10 scale; DiffRating is
// UserRating - external rating. Only rows whose film carries an external
// rating survive the join.
type RatingRow struct {
	EnrichedEntry
	UserRating float64
	ImdbRating float64
	DiffRating float64
}

// Result is one reconciliation pass: the enriched catalog plus the user's
// joined tables.
type Result struct {
	Catalog     []CategorizedFilm
	Breakpoints Breakpoints
	Watched     []EnrichedEntry
	Watchlist   []EnrichedEntry
	Ratings     []RatingRow
}

// WatchlistEmpty reports an empty (but valid) watchlist, so views can show
// an empty state instead of computing statistics on zero rows.
func (r *Result) WatchlistEmpty() bool { return len(r.Watchlist) == 0 }

// RatingsEmpty reports an empty (but valid) rating table.
func (r *Result) RatingsEmpty() bool { return len(r.Ratings) == 0 }

// ProgressFunc receives the monotonically increasing completion state of the
// sequential resolution loop.
type ProgressFunc func(done, total int)

// Resolver is the metadata gateway dependency; satisfied by *omdb.Client.
type Resolver interface {
	Resolve(ctx context.Context, title, year string) (*models.Film, error)
}

type Reconciler struct {
	store   Store
	errs    ErrorStore
	gateway Resolver
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewReconciler(store Store, errs ErrorStore, gateway Resolver, logger *slog.Logger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{store: store, errs: errs, gateway: gateway, logger: logger, metrics: m}
}

// Reconcile enriches the user's lists against the shared catalog.
//
// Unknown (title, year) pairs are resolved sequentially through the gateway.
// Per-title failures are recorded to the error store and skipped; a provider
// outage aborts the pass with omdb.ErrOutage after persisting the successes
// already fetched; pool exhaustion aborts fatally. sourceName tags recorded
// errors with the originating upload for triage.
func (r *Reconciler) Reconcile(ctx context.Context, up *ingest.Upload, sourceName string, progress ProgressFunc) (*Result, error) {
	started := time.Now()
	defer func() {
		r.metrics.ReconcileDuration.Observe(time.Since(started).Seconds())
	}()

	films, err := r.store.All(ctx)
	if err != nil {
		return nil, err
	}

	// Phase one: scan. The existing-key set is computed once up front and
	// new records accumulate separately, so the catalog is never mutated
	// while being iterated.
	existing := make(map[Key]struct{}, len(films))
	for i := range films {
		existing[Key{Title: films[i].Title, Year: films[i].Year}] = struct{}{}
	}

	deny, err := r.errs.DenySet(ctx)
	if err != nil {
		return nil, err
	}

	pending := missingEntries(up, existing, deny)

	// Phase two: resolve and accumulate.
	var (
		fetched  []models.Film
		errBatch []models.LookupError
		outage   error
	)
	for i, entry := range pending {
		film, err := r.gateway.Resolve(ctx, entry.Name, entry.Year)
		switch {
		case err == nil:
			if year, ok := ingest.NormalizeYear(film.Year); ok {
				film.Year = year
				fetched = append(fetched, *film)
			} else {
				errBatch = append(errBatch, lookupError(sourceName, entry, "non-numeric year in provider record"))
			}
		case errors.Is(err, omdb.ErrOutage):
			outage = err
		case errors.Is(err, omdb.ErrKeyPoolExhausted):
			return nil, err
		default:
			// Not-found and transport errors are recorded per title
			// and the loop continues.
			errBatch = append(errBatch, lookupError(sourceName, entry, err.Error()))
		}

		if outage != nil {
			break
		}
		if progress != nil {
			progress(i+1, len(pending))
		}
	}

	// Phase three: persist and merge. Successes fetched before an outage
	// are kept; the unresolved remainder is simply not retried this run.
	if err := r.errs.Record(ctx, errBatch); err != nil {
		return nil, err
	}
	if err := r.store.Append(ctx, fetched); err != nil {
		return nil, err
	}
	if outage != nil {
		r.logger.Warn("provider outage, aborting reconciliation",
			slog.Int("resolved", len(fetched)),
			slog.Int("unresolved", len(pending)-len(fetched)-len(errBatch)))
		return nil, fmt.Errorf("reconciliation aborted: %w", outage)
	}

	films = dedupe(append(films, fetched...))
	films = filterEligible(films)

	bp := ComputeBreakpoints(films)
	catalog := categorize(films, bp)

	result := &Result{
		Catalog:     catalog,
		Breakpoints: bp,
		Watched:     joinList(up.Watched, catalog),
		Watchlist:   joinList(up.Watchlist, catalog),
		Ratings:     joinRatings(up.Ratings, catalog),
	}

	r.logger.Info("reconciliation complete",
		slog.Int("catalog_size", len(catalog)),
		slog.Int("fetched", len(fetched)),
		slog.Int("lookup_errors", len(errBatch)),
		slog.Int("watched_dropped", len(up.Watched)-len(result.Watched)),
		slog.Int("watchlist_dropped", len(up.Watchlist)-len(result.Watchlist)),
		slog.Int("ratings_dropped", len(up.Ratings)-len(result.Ratings)))

	return result, nil
}

// missingEntries collects the user's (title, year) pairs that are neither in
// the catalog nor on the deny-list, deduplicated in first-seen order.
func missingEntries(up *ingest.Upload, existing, deny map[Key]struct{}) []ingest.ListEntry {
	seen := make(map[Key]struct{})
	var pending []ingest.ListEntry
	for _, entry := range append(append([]ingest.ListEntry{}, up.Watched...), up.Watchlist...) {
		k := Key{Title: entry.Name, Year: entry.Year}
		if _, ok := existing[k]; ok {
			continue
		}
		if _, ok := deny[k]; ok {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		pending = append(pending, entry)
	}
	return pending
}

func lookupError(sourceName string, entry ingest.ListEntry, msg string) models.LookupError {
	row, _ := json.Marshal(entry)
	return models.LookupError{
		Filename: sourceName,
		Title:    entry.Name,
		Year:     entry.Year,
		Message:  msg,
		RowData:  string(row),
	}
}

// dedupe keeps the most recently appended record per (Title, Year).
func dedupe(films []models.Film) []models.Film {
	last := make(map[Key]int, len(films))
	for i := range films {
		last[Key{Title: films[i].Title, Year: films[i].Year}] = i
	}
	out := make([]models.Film, 0, len(last))
	for i := range films {
		if last[Key{Title: films[i].Title, Year: films[i].Year}] == i {
			out = append(out, films[i])
		}
	}
	return out
}

// filterEligible drops entries that are not feature films: series and
// episodes, sub-5-minute shorts, and short films without a meaningful vote
// base.
func filterEligible(films []models.Film) []models.Film {
	out := films[:0:0]
	for i := range films {
		f := films[i]
		if f.Type != "" && f.Type != "movie" {
			continue
		}
		rt, hasRuntime := f.RuntimeMinutes()
		if hasRuntime && rt < minRuntimeMinutes {
			continue
		}
		if hasRuntime && rt < shortRuntimeMinutes {
			votes, _ := f.Votes()
			if votes < shortMinVotes {
				continue
			}
		}
		out = append(out, f)
	}
	return out
}

func categorize(films []models.Film, bp Breakpoints) []CategorizedFilm {
	out := make([]CategorizedFilm, 0, len(films))
	for i := range films {
		cf := CategorizedFilm{Film: films[i]}
		if v, ok := films[i].Votes(); ok {
			cf.Category = bp.Categorize(v)
			cf.HasVotes = true
		}
		out = append(out, cf)
	}
	return out
}

// joinList inner-joins list entries against the catalog on (Title, Year).
// Entries whose film is absent are dropped; this loss is accepted and
// surfaced only in logs.
func joinList(entries []ingest.ListEntry, catalog []CategorizedFilm) []EnrichedEntry {
	index := indexCatalog(catalog)
	seen := make(map[Key]struct{}, len(entries))
	out := make([]EnrichedEntry, 0, len(entries))
	for _, e := range entries {
		k := Key{Title: e.Name, Year: e.Year}
		film, ok := index[k]
		if !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, EnrichedEntry{Name: e.Name, Year: e.Year, Date: e.Date, Film: film})
	}
	return out
}

func joinRatings(entries []ingest.RatingEntry, catalog []CategorizedFilm) []RatingRow {
	index := indexCatalog(catalog)
	seen := make(map[Key]struct{}, len(entries))
	out := make([]RatingRow, 0, len(entries))
	for _, e := range entries {
		k := Key{Title: e.Name, Year: e.Year}
		film, ok := index[k]
		if !ok {
			continue
		}
		imdb, ok := film.Rating()
		if !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		scaled := e.Rating * 2
		out = append(out, RatingRow{
			EnrichedEntry: EnrichedEntry{Name: e.Name, Year: e.Year, Date: e.Date, Film: film},
			UserRating:    scaled,
			ImdbRating:    imdb,
			DiffRating:    scaled - imdb,
		})
	}
	return out
}

func indexCatalog(catalog []CategorizedFilm) map[Key]CategorizedFilm {
	index := make(map[Key]CategorizedFilm, len(catalog))
	for _, cf := range catalog {
		index[Key{Title: cf.Title, Year: cf.Year}] = cf
	}
	return index
}
