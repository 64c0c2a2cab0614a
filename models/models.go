package models

import (
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// Film is one catalog entry, keyed by (Title, Year). Fields mirror the
// metadata provider's payload and are stored raw; use the accessor methods
// to get cleaned numeric values. Records are append-only: a fresher
// enrichment supersedes an older one during dedup, nothing is ever deleted.
type Film struct {
	gorm.Model
	Title      string `gorm:"index:idx_films_title_year" json:"Title"`
	Year       string `gorm:"index:idx_films_title_year" json:"Year"`
	Genre      string `json:"Genre"`
	Director   string `json:"Director"`
	Actors     string `json:"Actors"`
	Country    string `json:"Country"`
	Runtime    string `json:"Runtime"`
	ImdbVotes  string `json:"imdbVotes"`
	ImdbRating string `json:"imdbRating"`
	Poster     string `json:"Poster"`
	Type       string `json:"Type"`
}

// Votes parses the provider's vote count ("1,234,567"). The second return
// is false for missing or "N/A" values.
func (f *Film) Votes() (float64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(f.ImdbVotes), ",", "")
	if s == "" || s == "N/A" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Rating parses the provider's 0-10 rating.
func (f *Film) Rating() (float64, bool) {
	s := strings.TrimSpace(f.ImdbRating)
	if s == "" || s == "N/A" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// RuntimeMinutes parses the provider's runtime ("142 min"). A trailing
// "S"/"s" on the leading token marks a value given in seconds; those are
// converted to minutes. Returns false when the field is absent or junk.
func (f *Film) RuntimeMinutes() (int, bool) {
	tok := strings.TrimSpace(f.Runtime)
	if tok == "" || tok == "N/A" || strings.EqualFold(tok, "nan") {
		return 0, false
	}
	if i := strings.IndexByte(tok, ' '); i >= 0 {
		tok = tok[:i]
	}
	seconds := false
	if strings.HasSuffix(tok, "S") || strings.HasSuffix(tok, "s") {
		seconds = true
		tok = tok[:len(tok)-1]
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, false
	}
	if seconds {
		n = n / 60
	}
	return n, true
}

// HasSecondsMarker reports whether the raw runtime carries the seconds
// marker. The runtime histogram excludes such rows.
func (f *Film) HasSecondsMarker() bool {
	tok := strings.TrimSpace(f.Runtime)
	if i := strings.IndexByte(tok, ' '); i >= 0 {
		tok = tok[:i]
	}
	return strings.HasSuffix(tok, "S") || strings.HasSuffix(tok, "s")
}

// Genres splits the comma-joined genre field into trimmed names.
func (f *Film) Genres() []string {
	return SplitList(f.Genre)
}

// DirectorList splits the comma-joined director field.
func (f *Film) DirectorList() []string {
	return SplitList(f.Director)
}

// ActorList splits the comma-joined actors field.
func (f *Film) ActorList() []string {
	return SplitList(f.Actors)
}

// CountryList splits the comma-joined country field.
func (f *Film) CountryList() []string {
	return SplitList(f.Country)
}

// ProfileStat is one row of the shared population statistics store: the
// five raw markers of one user plus their last computed scores and a run
// counter. At most one row exists per username; reruns overwrite in place.
// Column names are contractual, shared with every deployment writing to the
// same store.
type ProfileStat struct {
	gorm.Model
	Username       string  `gorm:"uniqueIndex;column:username"`
	Consumer       int     `gorm:"column:score_consommateur"`
	Explorer       int     `gorm:"column:score_explorateur"`
	Consensus      int     `gorm:"column:score_consensuel"`
	Eclectic       int     `gorm:"column:score_eclectique"`
	Active         int     `gorm:"column:score_actif"`
	FilmsWatched   int     `gorm:"column:nb_films_vus"`
	ObscureRatio   float64 `gorm:"column:ratio_peu_vus"`
	MeanRatingDiff float64 `gorm:"column:moyenne_diff_rating"`
	GenreRatios    string  `gorm:"column:ratio_par_genre"` // JSON map genre -> ratio
	Interactions   int     `gorm:"column:nb_interactions"`
	Runs           int     `gorm:"column:run_count"`
}

// LookupError records one failed metadata lookup for offline triage. Rows
// whose film was confirmed unresolvable double as the reconciler's
// do-not-fetch deny-list.
type LookupError struct {
	gorm.Model
	Filename string
	Title    string
	Year     string
	Message  string
	RowData  string // original upload row, JSON-encoded
}

// SplitList splits a comma-joined multi-valued provider field
// ("Drama, Comedy") into trimmed parts, dropping empties and "N/A".
func SplitList(s string) []string {
	if s == "" || s == "N/A" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || p == "N/A" {
			continue
		}
		out = append(out, p)
	}
	return out
}
