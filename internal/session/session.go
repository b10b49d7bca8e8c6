// Package session holds per-user application state: the profile, the day's
// stats, and the committed/draft filter sets. It recomputes targets and
// recommendations from the pure core on every read — both computations are
// cheap, so no memoization beyond the profile manager's own cache.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mealwise/mealwise/internal/health"
	"github.com/mealwise/mealwise/internal/recommend"
	"github.com/mealwise/mealwise/internal/storage"
)

// Store defines the storage operations the session needs.
// Implemented by storage.Store.
type Store interface {
	ListMeals() ([]recommend.Meal, error)
	GetDailyStats(day string) (storage.DailyStats, error)
	AddCalories(day string, calories int) error
	AddSteps(day string, steps int) error
	AddWater(day string, ml int) error
	SetCalorieTarget(day string, target int) error
	SaveFoodLogEntry(e storage.FoodLogEntry) error
	ListFoodLog(day string) ([]storage.FoodLogEntry, error)
	AddWeightEntry(e storage.WeightEntry) error
	ListWeightHistory(limit int) ([]storage.WeightEntry, error)
}

// Profiles defines the profile operations the session needs.
// Implemented by profile.Manager.
type Profiles interface {
	GetProfile() (health.Profile, error)
	SetProfile(p health.Profile) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Session is the explicit application-state object. One per user; all
// mutation goes through it so derived values are always recomputed from
// current state.
type Session struct {
	store    Store
	profiles Profiles
	clock    Clock

	mu      sync.Mutex
	filters recommend.Filters
	draft   *recommend.Filters // staged edits; nil when no draft is open
}

// New creates a Session with the default committed filter set.
func New(store Store, profiles Profiles) *Session {
	return &Session{
		store:    store,
		profiles: profiles,
		clock:    realClock{},
		filters:  recommend.DefaultFilters(),
	}
}

// NewWithClock creates a Session with a custom clock (for testing).
func NewWithClock(store Store, profiles Profiles, clock Clock) *Session {
	s := New(store, profiles)
	s.clock = clock
	return s
}

func (s *Session) day() string {
	return s.clock.Now().Format("2006-01-02")
}

// Profile returns the current physiological profile.
func (s *Session) Profile() (health.Profile, error) {
	return s.profiles.GetProfile()
}

// UpdateProfile validates and persists a wholesale profile replacement.
// A weight change is appended to the weight history.
func (s *Session) UpdateProfile(p health.Profile) error {
	// Reject before persisting; the calculator owns validation.
	if _, err := health.ComputeTargets(p); err != nil {
		return err
	}

	prev, err := s.profiles.GetProfile()
	if err != nil {
		return fmt.Errorf("loading previous profile: %w", err)
	}

	if err := s.profiles.SetProfile(p); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}

	if p.WeightKG != prev.WeightKG {
		entry := storage.WeightEntry{
			ID:         uuid.New().String(),
			WeightKG:   p.WeightKG,
			RecordedAt: s.clock.Now().UTC(),
		}
		if err := s.store.AddWeightEntry(entry); err != nil {
			return fmt.Errorf("recording weight: %w", err)
		}
	}
	return nil
}

// Targets recomputes health targets from the current profile.
func (s *Session) Targets() (health.Targets, error) {
	p, err := s.profiles.GetProfile()
	if err != nil {
		return health.Targets{}, fmt.Errorf("loading profile: %w", err)
	}
	return health.ComputeTargets(p)
}

// Stats returns today's stats with the calorie target refreshed from the
// current profile.
func (s *Session) Stats() (storage.DailyStats, error) {
	targets, err := s.Targets()
	if err != nil {
		return storage.DailyStats{}, err
	}

	day := s.day()
	if err := s.store.SetCalorieTarget(day, targets.DailyCalories); err != nil {
		return storage.DailyStats{}, fmt.Errorf("updating calorie target: %w", err)
	}
	return s.store.GetDailyStats(day)
}

// RemainingBudget derives today's remaining calorie budget.
func (s *Session) RemainingBudget() (int, error) {
	targets, err := s.Targets()
	if err != nil {
		return 0, err
	}
	stats, err := s.store.GetDailyStats(s.day())
	if err != nil {
		return 0, fmt.Errorf("loading stats: %w", err)
	}
	return recommend.RemainingBudget(targets.DailyCalories, stats.CaloriesCurrent), nil
}

// Recommendations runs the engine against the catalog, today's remaining
// budget, and the committed filter set. Draft filter edits have no effect
// here until ApplyFilters commits them.
func (s *Session) Recommendations() ([]recommend.Meal, error) {
	budget, err := s.RemainingBudget()
	if err != nil {
		return nil, err
	}
	meals, err := s.store.ListMeals()
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	s.mu.Lock()
	filters := s.filters
	s.mu.Unlock()

	return recommend.Recommend(meals, budget, filters), nil
}

// LogFood records a food entry and adds its calories to today's total.
func (s *Session) LogFood(name string, calories int, source string) (storage.FoodLogEntry, error) {
	if source == "" {
		source = "manual"
	}
	entry := storage.FoodLogEntry{
		ID:       uuid.New().String(),
		Day:      s.day(),
		Name:     name,
		Calories: calories,
		Source:   source,
		LoggedAt: s.clock.Now().UTC(),
	}
	if err := s.store.SaveFoodLogEntry(entry); err != nil {
		return storage.FoodLogEntry{}, fmt.Errorf("saving food log entry: %w", err)
	}
	if err := s.store.AddCalories(entry.Day, calories); err != nil {
		return storage.FoodLogEntry{}, fmt.Errorf("adding calories: %w", err)
	}
	return entry, nil
}

// FoodLog lists today's logged food entries.
func (s *Session) FoodLog() ([]storage.FoodLogEntry, error) {
	return s.store.ListFoodLog(s.day())
}

// AddWater adds ml of water to today's stats.
func (s *Session) AddWater(ml int) error {
	return s.store.AddWater(s.day(), ml)
}

// AddSteps adds steps to today's stats.
func (s *Session) AddSteps(steps int) error {
	return s.store.AddSteps(s.day(), steps)
}

// WeightHistory returns the most recent weight entries, newest first.
func (s *Session) WeightHistory(limit int) ([]storage.WeightEntry, error) {
	return s.store.ListWeightHistory(limit)
}

// --- filter staging ---
//
// The UI holds a draft copy of the filters while the user adjusts sliders.
// The committed set used by Recommendations changes only on ApplyFilters;
// DiscardDraft throws the draft away.

// Filters returns the committed filter set.
func (s *Session) Filters() recommend.Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

// Draft returns the staged filter set, or the committed set when no draft
// is open.
func (s *Session) Draft() recommend.Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft != nil {
		return *s.draft
	}
	return s.filters
}

// StageFilters replaces the draft without touching the committed set.
func (s *Session) StageFilters(f recommend.Filters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = &f
}

// ApplyFilters commits the draft. A no-op when no draft is open.
func (s *Session) ApplyFilters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft != nil {
		s.filters = *s.draft
		s.draft = nil
	}
}

// DiscardDraft drops staged edits.
func (s *Session) DiscardDraft() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = nil
}

// ResetFilters commits the documented permissive defaults (the one-step
// reset offered on an empty result set) and drops any draft.
func (s *Session) ResetFilters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = recommend.PermissiveFilters()
	s.draft = nil
}
