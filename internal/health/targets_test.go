package health

import (
	"errors"
	"math"
	"testing"
)

func validProfile() Profile {
	return Profile{
		Gender:        GenderMale,
		Age:           28,
		HeightCM:      175,
		WeightKG:      70,
		ActivityLevel: ActivityModerate,
	}
}

func TestComputeTargets_ReferenceBoundary(t *testing.T) {
	// male, 70kg, 175cm, 28y, sedentary:
	// bmr = 10*70 + 6.25*175 - 5*28 + 5 = 1658.75
	// tdee = 1658.75 * 1.2 = 1990.5
	p := validProfile()
	p.ActivityLevel = ActivitySedentary

	got, err := ComputeTargets(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.BMR != 1659 {
		t.Errorf("BMR = %d, want 1659", got.BMR)
	}
	if got.TDEE != 1991 {
		t.Errorf("TDEE = %d, want 1991", got.TDEE)
	}
	// daily = round(1990.5 * 0.85) = round(1691.925) = 1692
	if got.DailyCalories != 1692 {
		t.Errorf("DailyCalories = %d, want 1692", got.DailyCalories)
	}
	// macros from 1692: P round(126.9)=127, C round(169.2)=169, F round(56.4)=56
	want := Macros{Protein: 127, Carbs: 169, Fat: 56}
	if got.Macros != want {
		t.Errorf("Macros = %+v, want %+v", got.Macros, want)
	}
}

func TestComputeTargets_FemaleOffset(t *testing.T) {
	p := validProfile()
	p.Gender = GenderFemale
	p.ActivityLevel = ActivitySedentary

	got, err := ComputeTargets(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// bmr = 1653.75 - 161 + ... = 10*70+6.25*175-5*28-161 = 1492.75
	if got.BMR != 1493 {
		t.Errorf("BMR = %d, want 1493 (female offset -161)", got.BMR)
	}
}

func TestComputeTargets_Deterministic(t *testing.T) {
	p := validProfile()
	first, err := ComputeTargets(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := ComputeTargets(p)
		if err != nil {
			t.Fatalf("unexpected error on call %d: %v", i, err)
		}
		if again != first {
			t.Fatalf("call %d = %+v, want %+v (must be deterministic)", i, again, first)
		}
	}
}

func TestComputeTargets_ActivityMultipliers(t *testing.T) {
	tests := []struct {
		level ActivityLevel
		want  float64
	}{
		{ActivitySedentary, 1.2},
		{ActivityLight, 1.375},
		{ActivityModerate, 1.55},
		{ActivityHeavy, 1.725},
		{ActivityLevel("couch_potato"), 1.2}, // documented fallback
		{ActivityLevel(""), 1.2},
	}
	for _, tt := range tests {
		if got := ActivityMultiplier(tt.level); got != tt.want {
			t.Errorf("ActivityMultiplier(%q) = %g, want %g", tt.level, got, tt.want)
		}
	}
}

func TestComputeTargets_UnknownActivityIsNotAnError(t *testing.T) {
	p := validProfile()
	p.ActivityLevel = "extreme"

	got, err := ComputeTargets(p)
	if err != nil {
		t.Fatalf("unexpected error: %v (unknown tier must fall back, not fail)", err)
	}

	sedentary := p
	sedentary.ActivityLevel = ActivitySedentary
	want, _ := ComputeTargets(sedentary)
	if got != want {
		t.Errorf("unknown tier = %+v, want sedentary result %+v", got, want)
	}
}

func TestComputeTargets_MacroReconciliation(t *testing.T) {
	profiles := []Profile{
		validProfile(),
		{Gender: GenderFemale, Age: 45, HeightCM: 162.5, WeightKG: 58.3, ActivityLevel: ActivityLight},
		{Gender: GenderMale, Age: 19, HeightCM: 190, WeightKG: 95, ActivityLevel: ActivityHeavy},
	}
	for _, p := range profiles {
		got, err := ComputeTargets(p)
		if err != nil {
			t.Fatalf("unexpected error for %+v: %v", p, err)
		}
		recon := got.Macros.Protein*kcalPerGramProtein +
			got.Macros.Carbs*kcalPerGramCarbs +
			got.Macros.Fat*kcalPerGramFat
		// Independent rounding: each macro may be off by half a gram, so the
		// reconstructed total can miss DailyCalories by a few kcal.
		if diff := math.Abs(float64(recon - got.DailyCalories)); diff > 13 {
			t.Errorf("macros re-sum to %d kcal, target %d (diff %.0f beyond rounding error)", recon, got.DailyCalories, diff)
		}
	}
}

func TestComputeTargets_InvalidProfile(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Profile)
		field  string
	}{
		{"zero weight", func(p *Profile) { p.WeightKG = 0 }, "weight"},
		{"negative weight", func(p *Profile) { p.WeightKG = -70 }, "weight"},
		{"NaN weight", func(p *Profile) { p.WeightKG = math.NaN() }, "weight"},
		{"infinite height", func(p *Profile) { p.HeightCM = math.Inf(1) }, "height"},
		{"zero height", func(p *Profile) { p.HeightCM = 0 }, "height"},
		{"zero age", func(p *Profile) { p.Age = 0 }, "age"},
		{"negative age", func(p *Profile) { p.Age = -1 }, "age"},
		{"unknown gender", func(p *Profile) { p.Gender = "other" }, "gender"},
		{"empty gender", func(p *Profile) { p.Gender = "" }, "gender"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProfile()
			tt.mutate(&p)

			_, err := ComputeTargets(p)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var ipe *InvalidProfileError
			if !errors.As(err, &ipe) {
				t.Fatalf("error type = %T, want *InvalidProfileError", err)
			}
			if ipe.Field != tt.field {
				t.Errorf("error field = %q, want %q", ipe.Field, tt.field)
			}
		})
	}
}
