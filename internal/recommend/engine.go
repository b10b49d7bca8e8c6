// Package recommend filters and ranks the meal catalog against a remaining
// calorie budget and user preference filters. Recommend is a pure function of
// its inputs; callers re-invoke it whenever the catalog, budget, or committed
// filters change.
package recommend

import (
	"sort"
	"strings"
)

// Macros is the per-meal macro-nutrient breakdown in grams.
type Macros struct {
	Protein int `json:"protein"`
	Fat     int `json:"fat"`
	Carbs   int `json:"carbs"`
}

// Meal is one catalog entry. ID is unique within the catalog; the catalog
// collaborator is responsible for sanitizing entries at ingestion, so the
// engine assumes the shape is well-formed.
type Meal struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Merchant   string  `json:"merchant"`
	DistanceKm float64 `json:"distance"`
	Calories   int     `json:"calories"`
	Price      int     `json:"price"`
	Macros     Macros  `json:"macros"`
	ImageRef   string  `json:"image_url"`
}

// Filters is the committed preference filter set. Draft edits are a session
// concern; the engine only ever sees a committed set.
type Filters struct {
	MaxPrice        int     `json:"max_price"`
	MaxDistanceKm   float64 `json:"max_distance"`
	OnlyHighProtein bool    `json:"only_high_protein"`
	ExcludeNuts     bool    `json:"exclude_nuts"`
}

// DefaultFilters is the filter set a fresh session starts with.
func DefaultFilters() Filters {
	return Filters{MaxPrice: 300, MaxDistanceKm: 3}
}

// PermissiveFilters is the documented one-step reset offered when no meal
// passes the active filters.
func PermissiveFilters() Filters {
	return Filters{MaxPrice: 500, MaxDistanceKm: 5}
}

// calorieFallback keeps small meals visible even when the day's budget is
// exhausted, so an empty budget never empties the list by itself.
const calorieFallback = 400

// highProteinMin is the filter cutoff; highProteinBadge is the display badge
// cutoff. They are independently tunable — do not unify them.
const (
	highProteinMin   = 25
	highProteinBadge = 30
)

// distanceWeight scales distance so it dominates the composite score, while
// protein content partially offsets it.
const distanceWeight = 50

// nutKeywords is a name-substring heuristic; the catalog has no structured
// allergen data. Kept behind ContainsNuts so structured tagging can replace
// it later without touching the filter pipeline.
var nutKeywords = []string{"堅果", "花生", "腰果", "杏仁", "核桃"}

// ContainsNuts reports whether a meal's display name mentions a nut keyword.
func ContainsNuts(name string) bool {
	for _, kw := range nutKeywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// HighProteinBadge reports whether a meal qualifies for the High Protein
// display badge. Note: stricter than the OnlyHighProtein filter cutoff.
func HighProteinBadge(m Meal) bool {
	return m.Macros.Protein > highProteinBadge
}

// Score is the composite sort key: lower ranks first. Distance dominates,
// protein offsets, so a close low-protein meal can outrank a far high-protein
// one while protein wins between similar distances.
func Score(m Meal) float64 {
	return m.DistanceKm*distanceWeight - float64(m.Macros.Protein)
}

// Recommend returns the subset of meals passing every filter predicate,
// ordered by ascending composite score. Ties retain catalog order (stable
// sort). Returns an empty slice when nothing passes; the caller presents the
// no-results state and may offer PermissiveFilters as a reset.
func Recommend(meals []Meal, remainingBudget int, f Filters) []Meal {
	out := make([]Meal, 0, len(meals))
	for _, m := range meals {
		if passes(m, remainingBudget, f) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return Score(out[i]) < Score(out[j])
	})
	return out
}

func passes(m Meal, remainingBudget int, f Filters) bool {
	if m.Calories > remainingBudget && m.Calories > calorieFallback {
		return false
	}
	if m.Price > f.MaxPrice {
		return false
	}
	if m.DistanceKm > f.MaxDistanceKm {
		return false
	}
	if f.OnlyHighProtein && m.Macros.Protein < highProteinMin {
		return false
	}
	if f.ExcludeNuts && ContainsNuts(m.Name) {
		return false
	}
	return true
}

// RemainingBudget derives the day's remaining calorie budget, clamped at zero.
func RemainingBudget(dailyTarget, consumed int) int {
	if consumed >= dailyTarget {
		return 0
	}
	return dailyTarget - consumed
}
