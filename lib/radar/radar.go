// Package radar computes the five viewing-personality markers of a user and
// converts them into 0-100 percentile scores against the population store.
//
// The five dimensions:
//
//	Consumer  - how much the user watches, regardless of popularity
//	Explorer  - how much of it is little-voted (Obscure + Lesser-known)
//	Consensus - how closely the user's ratings track the community's
//	Eclectic  - how far the user's genre spread sits from the typical one
//	Active    - how much the user reviews and comments
package radar

import (
	"context"
	"fmt"
	"math"
	"sort"

	"log/slog"

	"github.com/goccy/go-json"
	"github.com/quelan/filmlens/lib/catalog"
	"github.com/quelan/filmlens/lib/ingest"
	"github.com/quelan/filmlens/lib/stats"
	"github.com/quelan/filmlens/models"
)

// Markers are the raw, unnormalized per-user statistics.
type Markers struct {
	FilmsWatched   int                `json:"nb_films_vus"`
	ObscureRatio   float64            `json:"ratio_peu_vus"`
	MeanRatingDiff float64            `json:"moyenne_diff_rating"`
	GenreRatios    map[string]float64 `json:"ratio_par_genre"`
	Interactions   int                `json:"nb_interactions"`
}

// Scores are the percentile ranks of the markers against the population.
type Scores struct {
	Consumer  int `json:"consommateur"`
	Explorer  int `json:"explorateur"`
	Consensus int `json:"consensuel"`
	Eclectic  int `json:"eclectique"`
	Active    int `json:"actif"`
}

// ComputeMarkers derives the five markers from one user's reconciled tables.
func ComputeMarkers(res *catalog.Result, reviews []ingest.Review, comments []ingest.Comment) Markers {
	m := Markers{
		FilmsWatched: len(res.Watched),
		GenreRatios:  map[string]float64{},
		Interactions: len(reviews) + len(comments),
	}

	if len(res.Watched) > 0 {
		obscure := 0
		genreCounts := map[string]int{}
		for _, e := range res.Watched {
			if e.Film.HasVotes && (e.Film.Category == catalog.Obscure || e.Film.Category == catalog.LesserKnown) {
				obscure++
			}
			for _, g := range e.Film.Genres() {
				genreCounts[g]++
			}
		}
		total := float64(len(res.Watched))
		m.ObscureRatio = round3(float64(obscure) / total)
		for g, n := range genreCounts {
			m.GenreRatios[g] = round3(float64(n) / total)
		}
	}

	if len(res.Ratings) > 0 {
		sum := 0.0
		for _, row := range res.Ratings {
			sum += row.DiffRating
		}
		m.MeanRatingDiff = round3(sum / float64(len(res.Ratings)))
	}

	return m
}

// Row serializes the markers and scores into a population-store row.
func (m Markers) Row(username string, sc Scores) (models.ProfileStat, error) {
	ratios, err := json.Marshal(m.GenreRatios)
	if err != nil {
		return models.ProfileStat{}, fmt.Errorf("failed to marshal genre ratios: %w", err)
	}
	return models.ProfileStat{
		Username:       username,
		Consumer:       sc.Consumer,
		Explorer:       sc.Explorer,
		Consensus:      sc.Consensus,
		Eclectic:       sc.Eclectic,
		Active:         sc.Active,
		FilmsWatched:   m.FilmsWatched,
		ObscureRatio:   m.ObscureRatio,
		MeanRatingDiff: m.MeanRatingDiff,
		GenreRatios:    string(ratios),
		Interactions:   m.Interactions,
	}, nil
}

type Scorer struct {
	repo   stats.Repository
	logger *slog.Logger
}

func NewScorer(repo stats.Repository, logger *slog.Logger) *Scorer {
	return &Scorer{repo: repo, logger: logger}
}

// Score percentile-ranks the markers against every row currently in the
// population store. The user's own previous run, if stored, is neutralized
// by the self-exclusion inside smartPercentile.
func (s *Scorer) Score(ctx context.Context, m Markers) (Scores, error) {
	population, err := s.repo.ReadAll(ctx)
	if err != nil {
		return Scores{}, err
	}

	filmCounts := make([]float64, 0, len(population))
	obscureRatios := make([]float64, 0, len(population))
	absDiffs := make([]float64, 0, len(population))
	interactions := make([]float64, 0, len(population))
	for _, row := range population {
		filmCounts = append(filmCounts, float64(row.FilmsWatched))
		obscureRatios = append(obscureRatios, row.ObscureRatio)
		absDiffs = append(absDiffs, math.Abs(row.MeanRatingDiff))
		interactions = append(interactions, float64(row.Interactions))
	}

	sc := Scores{
		Consumer: smartPercentile(float64(m.FilmsWatched), filmCounts),
		Explorer: smartPercentile(m.ObscureRatio, obscureRatios),
		// Consensus ranks closeness to zero ascending; display inverts
		// the ordering, not the computation.
		Consensus: smartPercentile(math.Abs(m.MeanRatingDiff), absDiffs),
		Eclectic:  s.eclecticScore(m.GenreRatios, population),
		Active:    smartPercentile(float64(m.Interactions), interactions),
	}

	s.logger.Debug("computed radar scores",
		slog.Int("population", len(population)),
		slog.Int("consumer", sc.Consumer),
		slog.Int("explorer", sc.Explorer),
		slog.Int("consensus", sc.Consensus),
		slog.Int("eclectic", sc.Eclectic),
		slog.Int("active", sc.Active))

	return sc, nil
}

// ScoreAndStore scores the markers against the current population, then
// upserts the user's row. Scoring strictly precedes the upsert so a first
// run never compares against itself.
func (s *Scorer) ScoreAndStore(ctx context.Context, username string, m Markers) (Scores, error) {
	sc, err := s.Score(ctx, m)
	if err != nil {
		return Scores{}, err
	}

	row, err := m.Row(username, sc)
	if err != nil {
		return Scores{}, err
	}
	if err := s.repo.Upsert(ctx, row); err != nil {
		return Scores{}, err
	}
	return sc, nil
}

// eclecticScore measures eclecticism as population-typicality distance: each
// user (this one included) is ranked by the L1 distance between their
// genre-ratio vector and the population's mean vector, genres missing from a
// user treated as zero.
func (s *Scorer) eclecticScore(userRatios map[string]float64, population []models.ProfileStat) int {
	popRatios := make([]map[string]float64, 0, len(population))
	genreSet := map[string]struct{}{}
	for _, row := range population {
		var ratios map[string]float64
		if err := json.Unmarshal([]byte(row.GenreRatios), &ratios); err != nil {
			s.logger.Warn("skipping malformed genre ratios",
				slog.String("username", row.Username), slog.Any("error", err))
			continue
		}
		popRatios = append(popRatios, ratios)
		for g := range ratios {
			genreSet[g] = struct{}{}
		}
	}

	genres := make([]string, 0, len(genreSet))
	for g := range genreSet {
		genres = append(genres, g)
	}
	sort.Strings(genres)

	means := make([]float64, len(genres))
	if n := float64(len(popRatios)); n > 0 {
		for _, ratios := range popRatios {
			for i, g := range genres {
				means[i] += ratios[g]
			}
		}
		for i := range means {
			means[i] /= n
		}
	}

	distances := make([]float64, 0, len(popRatios))
	for _, ratios := range popRatios {
		distances = append(distances, l1Distance(ratios, genres, means))
	}

	return smartPercentile(l1Distance(userRatios, genres, means), distances)
}

func l1Distance(ratios map[string]float64, genres []string, means []float64) float64 {
	d := 0.0
	for i, g := range genres {
		d += math.Abs(ratios[g] - means[i])
	}
	return d
}

// smartPercentile ranks value against the population: one occurrence of the
// value itself is removed first (the user's previous run must not bias their
// own rank), the fraction of remaining values <= value becomes the score,
// and the extremes are clamped to 1 and 99 so a real score is never visually
// identical to "no data". An empty population yields the neutral 50.
func smartPercentile(value float64, population []float64) int {
	remaining := make([]float64, 0, len(population))
	removed := false
	for _, v := range population {
		if !removed && v == value {
			removed = true
			continue
		}
		remaining = append(remaining, v)
	}

	if len(remaining) == 0 {
		return 50
	}

	count := 0
	for _, v := range remaining {
		if v <= value {
			count++
		}
	}

	score := int(math.Round(float64(count) / float64(len(remaining)) * 100))
	switch score {
	case 0:
		return 1
	case 100:
		return 99
	}
	return score
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
