// Package health converts a physiological profile into daily energy and
// macro-nutrient targets. All functions are pure: same profile in, same
// targets out, no I/O.
package health

import (
	"fmt"
	"math"
)

// Gender is a closed enum; anything outside the two values is rejected.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// ActivityLevel is one of four ordered tiers. Unknown values are tolerated
// and fall back to the sedentary multiplier (see ActivityMultiplier).
type ActivityLevel string

const (
	ActivitySedentary ActivityLevel = "sedentary"
	ActivityLight     ActivityLevel = "light"
	ActivityModerate  ActivityLevel = "moderate"
	ActivityHeavy     ActivityLevel = "heavy"
)

// Profile is the user's physiological profile. All numeric fields must be
// positive and finite.
type Profile struct {
	Gender        Gender        `json:"gender"`
	Age           int           `json:"age"`      // years
	HeightCM      float64       `json:"height"`   // centimeters
	WeightKG      float64       `json:"weight"`   // kilograms
	ActivityLevel ActivityLevel `json:"activity_level"`
}

// Macros holds daily macro-nutrient targets in grams. Each value is rounded
// independently, so the three do not re-sum exactly to DailyCalories.
type Macros struct {
	Protein int `json:"protein"`
	Carbs   int `json:"carbs"`
	Fat     int `json:"fat"`
}

// Targets is the derived output of ComputeTargets. Never persisted; always
// recomputed from the current profile.
type Targets struct {
	BMR           int    `json:"bmr"`            // kcal/day
	TDEE          int    `json:"tdee"`           // kcal/day
	DailyCalories int    `json:"daily_calories"` // kcal/day, after deficit
	Macros        Macros `json:"macros"`
}

// InvalidProfileError reports which profile field failed validation.
type InvalidProfileError struct {
	Field  string
	Reason string
}

func (e *InvalidProfileError) Error() string {
	return fmt.Sprintf("invalid profile: %s %s", e.Field, e.Reason)
}

// Mifflin-St Jeor coefficients. These are the published formula constants;
// do not substitute an alternative formula.
const (
	bmrWeightCoeff = 10.0
	bmrHeightCoeff = 6.25
	bmrAgeCoeff    = 5.0
	bmrMaleOffset  = 5.0
	bmrFemaleOffset = -161.0
)

// deficitMultiplier applies a fixed 15% cut to TDEE. A future goal selector
// (cut/maintain/bulk) would replace this constant per-profile; the seam is
// computeDailyCalories.
const deficitMultiplier = 0.85

// Macro split and kcal-per-gram conversion factors.
const (
	proteinShare = 0.30
	carbShare    = 0.40
	fatShare     = 0.30

	kcalPerGramProtein = 4
	kcalPerGramCarbs   = 4
	kcalPerGramFat     = 9
)

var activityMultipliers = map[ActivityLevel]float64{
	ActivitySedentary: 1.2,
	ActivityLight:     1.375,
	ActivityModerate:  1.55,
	ActivityHeavy:     1.725,
}

// ActivityMultiplier returns the TDEE multiplier for a tier. Unrecognized
// tiers deliberately fall back to the sedentary multiplier rather than
// failing — stored profiles from older app versions may carry tier names
// this version no longer knows.
func ActivityMultiplier(level ActivityLevel) float64 {
	if m, ok := activityMultipliers[level]; ok {
		return m
	}
	return activityMultipliers[ActivitySedentary]
}

// ComputeTargets maps a profile to daily energy and macro targets.
//
// Rounding policy: BMR and TDEE are computed and propagated as unrounded
// floats; rounding happens only when a field is written to the result.
// DailyCalories is round(unrounded TDEE × 0.85), and each macro is rounded
// independently from DailyCalories.
func ComputeTargets(p Profile) (Targets, error) {
	if err := validate(p); err != nil {
		return Targets{}, err
	}

	bmr := bmrWeightCoeff*p.WeightKG + bmrHeightCoeff*p.HeightCM - bmrAgeCoeff*float64(p.Age)
	if p.Gender == GenderMale {
		bmr += bmrMaleOffset
	} else {
		bmr += bmrFemaleOffset
	}

	tdee := bmr * ActivityMultiplier(p.ActivityLevel)
	daily := computeDailyCalories(tdee)

	return Targets{
		BMR:           int(math.Round(bmr)),
		TDEE:          int(math.Round(tdee)),
		DailyCalories: daily,
		Macros: Macros{
			Protein: int(math.Round(float64(daily) * proteinShare / kcalPerGramProtein)),
			Carbs:   int(math.Round(float64(daily) * carbShare / kcalPerGramCarbs)),
			Fat:     int(math.Round(float64(daily) * fatShare / kcalPerGramFat)),
		},
	}, nil
}

func computeDailyCalories(tdee float64) int {
	return int(math.Round(tdee * deficitMultiplier))
}

func validate(p Profile) error {
	switch {
	case p.Gender != GenderMale && p.Gender != GenderFemale:
		return &InvalidProfileError{Field: "gender", Reason: fmt.Sprintf("unrecognized value %q", p.Gender)}
	case p.Age <= 0:
		return &InvalidProfileError{Field: "age", Reason: "must be positive"}
	case !positiveFinite(p.HeightCM):
		return &InvalidProfileError{Field: "height", Reason: "must be positive and finite"}
	case !positiveFinite(p.WeightKG):
		return &InvalidProfileError{Field: "weight", Reason: "must be positive and finite"}
	}
	return nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
