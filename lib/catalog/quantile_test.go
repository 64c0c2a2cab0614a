package catalog

import (
	"strconv"
	"testing"

	"github.com/quelan/filmlens/models"
)

func filmsWithVotes(votes ...string) []models.Film {
	out := make([]models.Film, 0, len(votes))
	for i, v := range votes {
		out = append(out, models.Film{
			Title:     "F" + strconv.Itoa(i),
			Year:      "2000",
			Type:      "movie",
			ImdbVotes: v,
		})
	}
	return out
}

func TestComputeBreakpoints_Ordered(t *testing.T) {
	bp := ComputeBreakpoints(filmsWithVotes(
		"12", "340", "1,500", "9,800", "25,000", "88,000", "140,000", "600,000", "1,200,000",
	))
	if !(bp.Q1 <= bp.Q2 && bp.Q2 <= bp.Q3) {
		t.Fatalf("breakpoints not monotone: %+v", bp)
	}
	if bp.Q1 <= 0 {
		t.Fatalf("Q1 = %v, want positive", bp.Q1)
	}
}

func TestComputeBreakpoints_Empty(t *testing.T) {
	if bp := ComputeBreakpoints(nil); bp != (Breakpoints{}) {
		t.Fatalf("expected zero breakpoints for an empty catalog, got %+v", bp)
	}

	// Films without vote data contribute nothing.
	bp := ComputeBreakpoints(filmsWithVotes("N/A", "", "N/A"))
	if bp != (Breakpoints{}) {
		t.Fatalf("expected zero breakpoints, got %+v", bp)
	}
}

func TestComputeBreakpoints_SingleFilm(t *testing.T) {
	bp := ComputeBreakpoints(filmsWithVotes("5,000"))
	if bp.Q1 != 5000 || bp.Q2 != 5000 || bp.Q3 != 5000 {
		t.Fatalf("expected all breakpoints at the single value, got %+v", bp)
	}
}

func TestCategorize(t *testing.T) {
	bp := Breakpoints{Q1: 100, Q2: 1000, Q3: 10000}

	cases := []struct {
		votes float64
		want  Popularity
	}{
		{0, Obscure},
		{100, Obscure},
		{101, LesserKnown},
		{1000, LesserKnown},
		{1001, WellKnown},
		{10000, WellKnown},
		{10001, Mainstream},
		{1e7, Mainstream},
	}
	for _, tc := range cases {
		if got := bp.Categorize(tc.votes); got != tc.want {
			t.Errorf("Categorize(%v) = %s, want %s", tc.votes, got, tc.want)
		}
	}
}

func TestCategorize_ConsistentWithBreakpoints(t *testing.T) {
	films := filmsWithVotes("10", "50", "200", "900", "4,000", "20,000", "90,000", "500,000")
	bp := ComputeBreakpoints(films)

	// Walking the catalog in ascending vote order must never decrease the
	// bucket.
	prev := Obscure
	for _, f := range films {
		v, _ := f.Votes()
		cat := bp.Categorize(v)
		if cat < prev {
			t.Fatalf("bucket order regressed at %v votes: %s after %s", v, cat, prev)
		}
		prev = cat
	}
}

func TestPopularityString(t *testing.T) {
	want := map[Popularity]string{
		Obscure:     "Obscure",
		LesserKnown: "Lesser-known",
		WellKnown:   "Well-known",
		Mainstream:  "Mainstream",
	}
	for p, s := range want {
		if p.String() != s {
			t.Errorf("%d.String() = %q, want %q", p, p.String(), s)
		}
	}
	if got := Popularity(42).String(); got != "Unknown" {
		t.Errorf("out-of-range String() = %q", got)
	}
}
