package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/quelan/filmlens/lib/radar"
	"github.com/quelan/filmlens/lib/stats"
	"github.com/quelan/filmlens/lib/validation"
	"github.com/quelan/filmlens/lib/views"
)

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

func sessionView(reg *Registry, w http.ResponseWriter, r *http.Request) (*State, *views.View, bool) {
	st, ok := reg.Get(sessionID(r))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return nil, nil, false
	}

	year := chi.URLParam(r, "year")
	if year == "" {
		year = views.Alltime
	}
	if err := validation.ValidateYearSelection(year); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, nil, false
	}

	v, err := st.Selector.Select(year)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, nil, false
	}
	return st, v, true
}

// listStats is the full aggregate set for one list within a slice.
type listStats struct {
	Genres     []views.BucketCount `json:"genres"`
	Actors     []views.BucketCount `json:"actors"`
	Directors  []views.BucketCount `json:"directors"`
	Decades    []views.BucketCount `json:"decades"`
	Runtimes   []views.BucketCount `json:"runtimes"`
	Countries  []views.BucketCount `json:"countries"`
	Popularity []views.BucketCount `json:"popularity"`
}

type statsResponse struct {
	Year           string               `json:"year"`
	Metrics        views.GeneralMetrics `json:"metrics"`
	Watched        listStats            `json:"watched"`
	Watchlist      listStats            `json:"watchlist"`
	WatchlistEmpty bool                 `json:"watchlist_empty"`
	Ratings        *ratingStats         `json:"ratings,omitempty"`
	RatingsEmpty   bool                 `json:"ratings_empty"`
	Corpus         []string             `json:"corpus"`
}

type ratingStats struct {
	Overrated  []views.RatingDiff     `json:"overrated"`
	Underrated []views.RatingDiff     `json:"underrated"`
	ByGenre    []views.RatedBucket    `json:"by_genre"`
	ByDirector []views.RatedBucket    `json:"by_director"`
	ByActor    []views.RatedBucket    `json:"by_actor"`
	Comparison views.RatingComparison `json:"comparison"`
}

func listStatsOf(v *views.View, kind views.ListKind) listStats {
	return listStats{
		Genres:     v.GenreCounts(kind),
		Actors:     v.ActorCounts(kind),
		Directors:  v.DirectorCounts(kind),
		Decades:    v.DecadeCounts(kind),
		Runtimes:   v.RuntimeHistogram(kind),
		Countries:  v.CountryCounts(kind),
		Popularity: v.PopularityBreakdown(kind),
	}
}

// HandleStats serves the aggregate views of one year slice.
func HandleStats(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, v, ok := sessionView(reg, w, r)
		if !ok {
			return
		}

		resp := statsResponse{
			Year:           v.Year,
			Metrics:        v.Metrics(),
			Watched:        listStatsOf(v, views.Watched),
			WatchlistEmpty: v.WatchlistEmpty(),
			RatingsEmpty:   v.RatingsEmpty(),
			Corpus:         v.Corpus,
		}
		if !resp.WatchlistEmpty {
			resp.Watchlist = listStatsOf(v, views.Watchlist)
		}
		if !resp.RatingsEmpty {
			over, under := v.OverUnderRated(10)
			resp.Ratings = &ratingStats{
				Overrated:  over,
				Underrated: under,
				ByGenre:    v.RatingByGenre(),
				ByDirector: v.RatingByDirector(),
				ByActor:    v.RatingByActor(),
				Comparison: v.CompareRatings(),
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

type radarResponse struct {
	Username string        `json:"username"`
	Scores   radar.Scores  `json:"scores"`
	Markers  radar.Markers `json:"markers"`
	Means    stats.Means   `json:"population_means"`
}

// HandleRadar serves the personality scores with their raw markers and the
// population means, shaped for the radar chart.
func HandleRadar(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, ok := reg.Get(sessionID(r))
		if !ok {
			writeError(w, http.StatusNotFound, "unknown session")
			return
		}
		writeJSON(w, http.StatusOK, radarResponse{
			Username: st.Username,
			Scores:   st.Scores,
			Markers:  st.Markers,
			Means:    st.Means,
		})
	}
}

// HandleCalendar serves the densified per-day watched counts of one
// calendar year for the heatmap.
func HandleCalendar(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, ok := reg.Get(sessionID(r))
		if !ok {
			writeError(w, http.StatusNotFound, "unknown session")
			return
		}

		yearParam := chi.URLParam(r, "year")
		if err := validation.ValidateYearSelection(yearParam); err != nil || yearParam == views.Alltime {
			writeError(w, http.StatusBadRequest, "calendar requires a concrete year")
			return
		}
		year, _ := strconv.Atoi(yearParam)

		v, err := st.Selector.Select(views.Alltime)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, v.Calendar(year))
	}
}

// HandlePosters serves a ranked poster grid:
// ?by=votes|year|diff&order=top|bottom&n=10.
func HandlePosters(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, ok := reg.Get(sessionID(r))
		if !ok {
			writeError(w, http.StatusNotFound, "unknown session")
			return
		}

		key, err := views.ParsePosterSortKey(r.URL.Query().Get("by"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		bottom := r.URL.Query().Get("order") == "bottom"

		n := 10
		if raw := r.URL.Query().Get("n"); raw != "" {
			if n, err = strconv.Atoi(raw); err != nil {
				writeError(w, http.StatusBadRequest, "invalid count")
				return
			}
		}
		if err := validation.ValidateCount(n); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		year := r.URL.Query().Get("year")
		if year == "" {
			year = views.Alltime
		}
		if err := validation.ValidateYearSelection(year); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		v, err := st.Selector.Select(year)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, v.Posters(key, bottom, n))
	}
}

// HandleWrapped serves the data behind the shareable year-recap card.
func HandleWrapped(reg *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, v, ok := sessionView(reg, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, v.WrappedSummary())
	}
}
