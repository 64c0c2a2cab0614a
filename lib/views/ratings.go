package views

import (
	"math"
	"sort"
	"strconv"

	"github.com/quelan/filmlens/lib/catalog"
)

// RatedBucket is one label with its film count and the mean user rating.
type RatedBucket struct {
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	MeanRating float64 `json:"mean_rating"`
}

// RatingDiff is one film with the user's rating against the community's.
type RatingDiff struct {
	Name       string  `json:"name"`
	UserRating float64 `json:"user_rating"`
	ImdbRating float64 `json:"imdb_rating"`
	DiffRating float64 `json:"diff_rating"`
}

// OverUnderRated returns the top-n films the user rates above the community
// (descending diff) and below it (ascending diff).
func (v *View) OverUnderRated(n int) (over, under []RatingDiff) {
	rows := make([]catalog.RatingRow, len(v.Ratings))
	copy(rows, v.Ratings)

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].DiffRating > rows[j].DiffRating })
	for _, r := range rows[:min(n, len(rows))] {
		over = append(over, RatingDiff{Name: r.Name, UserRating: r.UserRating, ImdbRating: r.ImdbRating, DiffRating: r.DiffRating})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].DiffRating < rows[j].DiffRating })
	for _, r := range rows[:min(n, len(rows))] {
		under = append(under, RatingDiff{Name: r.Name, UserRating: r.UserRating, ImdbRating: r.ImdbRating, DiffRating: r.DiffRating})
	}
	return over, under
}

// RatingByGenre aggregates the rating slice by exploded genre with the mean
// user rating per genre.
func (v *View) RatingByGenre() []RatedBucket {
	return v.ratedBuckets(func(r catalog.RatingRow) []string { return r.Film.Genres() }, 0)
}

// RatingByDirector aggregates the top-25 most-rated directors with their
// mean user rating.
func (v *View) RatingByDirector() []RatedBucket {
	return v.ratedBuckets(func(r catalog.RatingRow) []string { return r.Film.DirectorList() }, 25)
}

// RatingByActor aggregates the top-25 most-rated actors with their mean
// user rating.
func (v *View) RatingByActor() []RatedBucket {
	return v.ratedBuckets(func(r catalog.RatingRow) []string { return r.Film.ActorList() }, 25)
}

func (v *View) ratedBuckets(explode func(catalog.RatingRow) []string, limit int) []RatedBucket {
	counts := map[string]int{}
	sums := map[string]float64{}
	for _, r := range v.Ratings {
		for _, label := range explode(r) {
			counts[label]++
			sums[label] += r.UserRating
		}
	}

	out := make([]RatedBucket, 0, len(counts))
	for label, count := range counts {
		out = append(out, RatedBucket{
			Label:      label,
			Count:      count,
			MeanRating: math.Round(sums[label]/float64(count)*100) / 100,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RatingComparison is the grouped distribution of the community's half-star
// rounded ratings next to the user's own, over the rated slice.
type RatingComparison struct {
	Imdb []BucketCount `json:"imdb"`
	User []BucketCount `json:"user"`
}

func (v *View) CompareRatings() RatingComparison {
	imdb := map[string]int{}
	user := map[string]int{}
	for _, r := range v.Ratings {
		// Half-star rounding puts the 0-10 community scale on the same
		// axis as the user's x2-normalized ratings.
		half := math.Round(r.ImdbRating*2) / 2
		imdb[trimFloat(half)]++
		user[trimFloat(r.UserRating)]++
	}

	return RatingComparison{
		Imdb: ratingBuckets(imdb),
		User: ratingBuckets(user),
	}
}

func ratingBuckets(counts map[string]int) []BucketCount {
	out := make([]BucketCount, 0, len(counts))
	for label, count := range counts {
		out = append(out, BucketCount{Label: label, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		fi, _ := strconv.ParseFloat(out[i].Label, 64)
		fj, _ := strconv.ParseFloat(out[j].Label, 64)
		return fi < fj
	})
	return out
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
