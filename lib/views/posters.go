package views

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/quelan/filmlens/lib/catalog"
)

// PosterSortKey selects the metric a poster grid is ranked by.
type PosterSortKey int

const (
	ByVotes PosterSortKey = iota
	ByYear
	ByRatingDiff
)

// ParsePosterSortKey maps the API's query value onto a sort key.
func ParsePosterSortKey(s string) (PosterSortKey, error) {
	switch s {
	case "votes", "":
		return ByVotes, nil
	case "year":
		return ByYear, nil
	case "diff":
		return ByRatingDiff, nil
	}
	return 0, fmt.Errorf("unknown poster sort key %q", s)
}

// PosterCard is one film in a "most/least X" poster grid.
type PosterCard struct {
	Title  string  `json:"title"`
	Year   string  `json:"year"`
	Poster string  `json:"poster"`
	Value  float64 `json:"value"`
}

// Posters ranks the watched slice by the given key and returns the top (or
// bottom) n cards. ByRatingDiff ranks the rated slice instead, since the
// deviation only exists there.
func (v *View) Posters(key PosterSortKey, bottom bool, n int) []PosterCard {
	var cards []PosterCard

	switch key {
	case ByVotes:
		for _, e := range v.Watched {
			if votes, ok := e.Film.Votes(); ok {
				cards = append(cards, card(e, votes))
			}
		}
	case ByYear:
		for _, e := range v.Watched {
			if year, err := strconv.Atoi(e.Year); err == nil {
				cards = append(cards, card(e, float64(year)))
			}
		}
	case ByRatingDiff:
		for _, r := range v.Ratings {
			cards = append(cards, card(r.EnrichedEntry, r.DiffRating))
		}
	}

	sort.SliceStable(cards, func(i, j int) bool {
		if bottom {
			return cards[i].Value < cards[j].Value
		}
		return cards[i].Value > cards[j].Value
	})

	if len(cards) > n {
		cards = cards[:n]
	}
	return cards
}

func card(e catalog.EnrichedEntry, value float64) PosterCard {
	return PosterCard{Title: e.Name, Year: e.Year, Poster: e.Film.Poster, Value: value}
}

// Wrapped is the data behind the shareable year-recap card.
type Wrapped struct {
	TopTitles      []string `json:"top_titles"`
	TopDirectors   []string `json:"top_directors"`
	MinutesWatched int      `json:"minutes_watched"`
	TopGenre       string   `json:"top_genre"`
	CoverPoster    string   `json:"cover_poster"`
}

// WrappedSummary assembles the recap: the user's five best-rated films,
// five most-watched directors, total minutes, favourite genre, and a cover
// poster taken from the first top title that has one.
func (v *View) WrappedSummary() Wrapped {
	w := Wrapped{
		MinutesWatched: int(totalHours(v.Watched) * 60),
	}

	rows := make([]catalog.RatingRow, len(v.Ratings))
	copy(rows, v.Ratings)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].UserRating > rows[j].UserRating })
	for _, r := range rows[:min(5, len(rows))] {
		w.TopTitles = append(w.TopTitles, r.Name)
		if w.CoverPoster == "" && r.Film.Poster != "" && r.Film.Poster != "N/A" {
			w.CoverPoster = r.Film.Poster
		}
	}

	for _, b := range top(v.DirectorCounts(Watched), 5) {
		w.TopDirectors = append(w.TopDirectors, b.Label)
	}

	if genres := v.GenreCounts(Watched); len(genres) > 0 {
		w.TopGenre = genres[0].Label
	}

	return w
}
