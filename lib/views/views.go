// Package views re-slices the reconciled tables by calendar year and shapes
// them into the aggregates the rendering layer consumes: bucket counts with
// per-bucket contributing films, calendar day counts, poster grids, rating
// comparisons and the wrapped summary.
package views

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"log/slog"

	"github.com/quelan/filmlens/lib/catalog"
	"github.com/quelan/filmlens/lib/ingest"
)

// Alltime selects the unsliced tables.
const Alltime = "Alltime"

// ListKind selects which user list a view aggregates over.
type ListKind int

const (
	Watched ListKind = iota
	Watchlist
)

// maxFilmsPerBucket caps the per-bucket drill-down list in hover text.
const maxFilmsPerBucket = 10

// Selector owns one session's reconciled tables and produces year slices.
type Selector struct {
	result  *catalog.Result
	reviews []ingest.Review
	logger  *slog.Logger
}

func NewSelector(result *catalog.Result, reviews []ingest.Review, logger *slog.Logger) *Selector {
	return &Selector{result: result, reviews: reviews, logger: logger}
}

// View is one time-windowed slice of the session's tables, with the cleaned
// review corpus for that slice.
type View struct {
	Year      string
	Watched   []catalog.EnrichedEntry
	Watchlist []catalog.EnrichedEntry
	Ratings   []catalog.RatingRow
	Reviews   []ingest.Review
	Corpus    []string

	breakpoints catalog.Breakpoints
}

// Select slices the tables to the given calendar year, or returns the full
// tables for Alltime. Rows with unparseable log dates are excluded from
// year slices.
func (s *Selector) Select(year string) (*View, error) {
	v := &View{Year: year, breakpoints: s.result.Breakpoints}

	if year == Alltime {
		v.Watched = s.result.Watched
		v.Watchlist = s.result.Watchlist
		v.Ratings = s.result.Ratings
		v.Reviews = s.reviews
	} else {
		y, err := strconv.Atoi(year)
		if err != nil {
			return nil, fmt.Errorf("invalid year selection %q", year)
		}
		var bad, n int
		v.Watched, n = filterEntries(s.result.Watched, y)
		bad += n
		v.Watchlist, n = filterEntries(s.result.Watchlist, y)
		bad += n
		v.Ratings, n = filterRatings(s.result.Ratings, y)
		bad += n
		v.Reviews, n = filterReviews(s.reviews, y)
		bad += n
		if bad > 0 {
			s.logger.Debug("excluded rows with unparseable dates from year slice",
				slog.String("year", year), slog.Int("count", bad))
		}
	}

	v.Corpus = CleanCorpus(v.Reviews)
	return v, nil
}

func filterEntries(entries []catalog.EnrichedEntry, year int) ([]catalog.EnrichedEntry, int) {
	out := make([]catalog.EnrichedEntry, 0, len(entries))
	bad := 0
	for _, e := range entries {
		t, err := ingest.ParseDate(e.Date)
		if err != nil {
			bad++
			continue
		}
		if t.Year() == year {
			out = append(out, e)
		}
	}
	return out, bad
}

func filterRatings(rows []catalog.RatingRow, year int) ([]catalog.RatingRow, int) {
	out := make([]catalog.RatingRow, 0, len(rows))
	bad := 0
	for _, r := range rows {
		t, err := ingest.ParseDate(r.Date)
		if err != nil {
			bad++
			continue
		}
		if t.Year() == year {
			out = append(out, r)
		}
	}
	return out, bad
}

func filterReviews(reviews []ingest.Review, year int) ([]ingest.Review, int) {
	out := make([]ingest.Review, 0, len(reviews))
	bad := 0
	for _, r := range reviews {
		t, err := ingest.ParseDate(r.Date)
		if err != nil {
			bad++
			continue
		}
		if t.Year() == year {
			out = append(out, r)
		}
	}
	return out, bad
}

// WatchlistEmpty reports an empty watchlist slice; views render an empty
// state instead of aggregating zero rows.
func (v *View) WatchlistEmpty() bool { return len(v.Watchlist) == 0 }

// RatingsEmpty reports an empty rating slice.
func (v *View) RatingsEmpty() bool { return len(v.Ratings) == 0 }

func (v *View) list(kind ListKind) []catalog.EnrichedEntry {
	switch kind {
	case Watched:
		return v.Watched
	case Watchlist:
		return v.Watchlist
	}
	return nil
}

// BucketCount is one aggregate bucket. Films is the drill-down list of
// contributing titles and FilmsText its display form; both are part of the
// rendering contract, not decoration.
type BucketCount struct {
	Label     string   `json:"label"`
	Count     int      `json:"count"`
	Films     []string `json:"films,omitempty"`
	FilmsText string   `json:"films_text,omitempty"`
}

func bucketize(counts map[string]int, films map[string][]string) []BucketCount {
	out := make([]BucketCount, 0, len(counts))
	for label, count := range counts {
		contrib := dedupeSorted(films[label])
		out = append(out, BucketCount{
			Label:     label,
			Count:     count,
			Films:     contrib,
			FilmsText: filmsText(contrib),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

func dedupeSorted(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func filmsText(films []string) string {
	if len(films) == 0 {
		return ""
	}
	shown := films
	if len(shown) > maxFilmsPerBucket {
		shown = shown[:maxFilmsPerBucket]
	}
	var b strings.Builder
	for i, f := range shown {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("• " + f)
	}
	if rest := len(films) - maxFilmsPerBucket; rest > 0 {
		b.WriteString(fmt.Sprintf("\n...and %d more", rest))
	}
	return b.String()
}

// GenreCounts aggregates the slice by exploded genre.
func (v *View) GenreCounts(kind ListKind) []BucketCount {
	counts := map[string]int{}
	films := map[string][]string{}
	for _, e := range v.list(kind) {
		for _, g := range e.Film.Genres() {
			counts[g]++
			films[g] = append(films[g], e.Name)
		}
	}
	return bucketize(counts, films)
}

// ActorCounts aggregates by exploded actor, top 25.
func (v *View) ActorCounts(kind ListKind) []BucketCount {
	counts := map[string]int{}
	films := map[string][]string{}
	for _, e := range v.list(kind) {
		for _, a := range e.Film.ActorList() {
			counts[a]++
			films[a] = append(films[a], e.Name)
		}
	}
	return top(bucketize(counts, films), 25)
}

// DirectorCounts aggregates by exploded director, top 25.
func (v *View) DirectorCounts(kind ListKind) []BucketCount {
	counts := map[string]int{}
	films := map[string][]string{}
	for _, e := range v.list(kind) {
		for _, d := range e.Film.DirectorList() {
			counts[d]++
			films[d] = append(films[d], e.Name)
		}
	}
	return top(bucketize(counts, films), 25)
}

// CountryCounts aggregates by exploded production country.
func (v *View) CountryCounts(kind ListKind) []BucketCount {
	counts := map[string]int{}
	films := map[string][]string{}
	for _, e := range v.list(kind) {
		for _, c := range e.Film.CountryList() {
			counts[c]++
			films[c] = append(films[c], e.Name)
		}
	}
	return bucketize(counts, films)
}

// decadeEdges bound the release-decade bins; the first bin spans 1900-1950.
var decadeEdges = []int{1900, 1950, 1960, 1970, 1980, 1990, 2000, 2010, 2020, 2025}

// DecadeCounts buckets the slice by release decade.
func (v *View) DecadeCounts(kind ListKind) []BucketCount {
	counts := map[string]int{}
	films := map[string][]string{}
	for _, e := range v.list(kind) {
		year, err := strconv.Atoi(e.Year)
		if err != nil {
			continue
		}
		label, ok := decadeLabel(year)
		if !ok {
			continue
		}
		counts[label]++
		films[label] = append(films[label], e.Name)
	}

	out := bucketize(counts, films)
	// Chronological order reads better than count order for a timeline.
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// decadeLabel bins on half-open intervals (lo, hi]; the first bin keeps its
// historical "1900-1950" label and 1900 itself falls outside every bin.
func decadeLabel(year int) (string, bool) {
	for i := 0; i < len(decadeEdges)-1; i++ {
		lo, hi := decadeEdges[i], decadeEdges[i+1]
		if year > lo && year <= hi {
			if i == 0 {
				return fmt.Sprintf("%d-%d", lo, hi), true
			}
			return fmt.Sprintf("%d-%d", lo+1, hi), true
		}
	}
	return "", false
}

const (
	runtimeBinMin  = 20
	runtimeBinMax  = 240
	runtimeBinStep = 10
)

// RuntimeHistogram buckets the slice's runtimes into 10-minute bins between
// 20 and 240 minutes. Rows with the seconds marker are excluded, as are
// runtimes outside the range.
func (v *View) RuntimeHistogram(kind ListKind) []BucketCount {
	counts := map[string]int{}
	films := map[string][]string{}
	for _, e := range v.list(kind) {
		if e.Film.HasSecondsMarker() {
			continue
		}
		rt, ok := e.Film.RuntimeMinutes()
		if !ok || rt < runtimeBinMin || rt > runtimeBinMax-runtimeBinStep {
			continue
		}
		lo := (rt / runtimeBinStep) * runtimeBinStep
		label := fmt.Sprintf("%d-%d", lo, lo+runtimeBinStep-1)
		counts[label]++
		films[label] = append(films[label], e.Name)
	}

	out := bucketize(counts, films)
	sort.Slice(out, func(i, j int) bool {
		li, _ := strconv.Atoi(strings.SplitN(out[i].Label, "-", 2)[0])
		lj, _ := strconv.Atoi(strings.SplitN(out[j].Label, "-", 2)[0])
		return li < lj
	})
	return out
}

// PopularityBreakdown counts the slice per popularity bucket, in ascending
// popularity order. Films without vote counts are skipped.
func (v *View) PopularityBreakdown(kind ListKind) []BucketCount {
	counts := map[catalog.Popularity]int{}
	films := map[catalog.Popularity][]string{}
	for _, e := range v.list(kind) {
		if !e.Film.HasVotes {
			continue
		}
		counts[e.Film.Category]++
		films[e.Film.Category] = append(films[e.Film.Category], e.Name)
	}

	out := make([]BucketCount, 0, len(catalog.Categories))
	for _, cat := range catalog.Categories {
		contrib := dedupeSorted(films[cat])
		out = append(out, BucketCount{
			Label:     cat.String(),
			Count:     counts[cat],
			Films:     contrib,
			FilmsText: filmsText(contrib),
		})
	}
	return out
}

func top(buckets []BucketCount, n int) []BucketCount {
	if len(buckets) > n {
		return buckets[:n]
	}
	return buckets
}

// DayCount is one calendar day's watched count.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Calendar returns per-day watched counts for a full calendar year,
// densified so every day appears with an explicit zero.
func (v *View) Calendar(year int) []DayCount {
	counts := map[string]int{}
	for _, e := range v.Watched {
		t, err := ingest.ParseDate(e.Date)
		if err != nil || t.Year() != year {
			continue
		}
		counts[t.Format("2006-01-02")]++
	}

	var out []DayCount
	for d := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC); d.Year() == year; d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		out = append(out, DayCount{Date: key, Count: counts[key]})
	}
	return out
}

// GeneralMetrics summarizes the slice for the headline row.
type GeneralMetrics struct {
	WatchedCount     int     `json:"watched_count"`
	WatchedHours     float64 `json:"watched_hours"`
	DistinctDirector int     `json:"distinct_directors"`
	WatchlistCount   int     `json:"watchlist_count"`
	WatchlistHours   float64 `json:"watchlist_hours"`
}

func (v *View) Metrics() GeneralMetrics {
	directors := map[string]struct{}{}
	for _, e := range v.Watched {
		for _, d := range e.Film.DirectorList() {
			directors[d] = struct{}{}
		}
	}
	return GeneralMetrics{
		WatchedCount:     len(v.Watched),
		WatchedHours:     totalHours(v.Watched),
		DistinctDirector: len(directors),
		WatchlistCount:   len(v.Watchlist),
		WatchlistHours:   totalHours(v.Watchlist),
	}
}

func totalHours(entries []catalog.EnrichedEntry) float64 {
	minutes := 0
	for _, e := range entries {
		if rt, ok := e.Film.RuntimeMinutes(); ok {
			minutes += rt
		}
	}
	return float64(minutes) / 60
}

// CleanCorpus lowercases each review, strips punctuation and drops tokens
// shorter than three runes, yielding the corpus behind the word-frequency
// view.
func CleanCorpus(reviews []ingest.Review) []string {
	out := make([]string, 0, len(reviews))
	for _, r := range reviews {
		if cleaned := cleanText(r.Text); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

func cleanText(text string) string {
	text = strings.ToLower(text)
	text = strings.NewReplacer("'", " ", "’", " ", "\n", " ").Replace(text)

	var b strings.Builder
	for _, r := range text {
		if unicode.IsPunct(r) {
			continue
		}
		b.WriteRune(r)
	}

	words := strings.Fields(b.String())
	kept := words[:0]
	for _, w := range words {
		if len([]rune(w)) >= 3 {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}
