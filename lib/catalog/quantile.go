package catalog

import (
	"math"
	"sort"

	"github.com/quelan/filmlens/models"
)

// Popularity is the population-relative bucket of a film, derived from its
// vote count against breakpoints computed over the whole catalog.
type Popularity int

const (
	Obscure Popularity = iota
	LesserKnown
	WellKnown
	Mainstream
)

func (p Popularity) String() string {
	switch p {
	case Obscure:
		return "Obscure"
	case LesserKnown:
		return "Lesser-known"
	case WellKnown:
		return "Well-known"
	case Mainstream:
		return "Mainstream"
	}
	return "Unknown"
}

// Categories lists the buckets in ascending popularity order.
var Categories = []Popularity{Obscure, LesserKnown, WellKnown, Mainstream}

// Breakpoints are the vote-count boundaries between popularity buckets:
// the 5th, 20th and 50th percentiles of the catalog's vote counts. They are
// recomputed from the full catalog on every enrichment pass, so a film's
// bucket can shift as the catalog grows.
type Breakpoints struct {
	Q1 float64
	Q2 float64
	Q3 float64
}

// ComputeBreakpoints derives the quantile boundaries from every film in the
// catalog that carries a vote count. An empty catalog yields zero
// breakpoints rather than an error.
func ComputeBreakpoints(films []models.Film) Breakpoints {
	votes := make([]float64, 0, len(films))
	for i := range films {
		if v, ok := films[i].Votes(); ok {
			votes = append(votes, v)
		}
	}
	if len(votes) == 0 {
		return Breakpoints{}
	}
	sort.Float64s(votes)

	return Breakpoints{
		Q1: quantile(votes, 0.05),
		Q2: quantile(votes, 0.20),
		Q3: quantile(votes, 0.50),
	}
}

// Categorize maps a vote count onto its bucket.
func (b Breakpoints) Categorize(votes float64) Popularity {
	switch {
	case votes <= b.Q1:
		return Obscure
	case votes <= b.Q2:
		return LesserKnown
	case votes <= b.Q3:
		return WellKnown
	default:
		return Mainstream
	}
}

// quantile linearly interpolates the q-th quantile of a sorted sample.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
