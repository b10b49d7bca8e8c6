// Package profile provides cached, structured access to the user's
// physiological profile stored as key-value rows in SQLite.
package profile

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/mealwise/mealwise/internal/health"
)

// Store defines the storage operations the Manager needs.
// Implemented by storage.Store.
type Store interface {
	SetProfileKey(key, value string) error
	GetProfileKey(key string) (string, error)
	GetAllProfileKeys() (map[string]string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Profile field keys as stored in the user_profile table.
const (
	KeyGender        = "gender"
	KeyAge           = "age"
	KeyHeight        = "height"
	KeyWeight        = "weight"
	KeyActivityLevel = "activity_level"
)

// DefaultProfile is the profile a fresh session starts with, before the user
// has edited anything.
func DefaultProfile() health.Profile {
	return health.Profile{
		Gender:        health.GenderMale,
		Age:           28,
		HeightCM:      175,
		WeightKG:      70,
		ActivityLevel: health.ActivityModerate,
	}
}

// Manager assembles a health.Profile from stored key-value rows, with a
// short TTL cache so repeated recomputations don't hit the database.
type Manager struct {
	store Store
	clock Clock
	ttl   time.Duration

	mu       sync.RWMutex
	cached   *health.Profile
	cachedAt time.Time
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		clock: realClock{},
		ttl:   60 * time.Second,
	}
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store Store, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
	}
}

// GetProfile reads all profile keys from storage (or cache) and assembles a
// Profile. Fields absent from the store keep their DefaultProfile values.
func (m *Manager) GetProfile() (health.Profile, error) {
	m.mu.RLock()
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		p := *m.cached
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock.
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		return *m.cached, nil
	}

	keys, err := m.store.GetAllProfileKeys()
	if err != nil {
		return health.Profile{}, fmt.Errorf("loading profile keys: %w", err)
	}

	p := buildProfile(keys)
	m.cached = &p
	m.cachedAt = m.clock.Now()
	return p, nil
}

// SetProfile persists a full profile (wholesale replacement on every edit)
// and invalidates the cache. Validation is the calculator's job; the manager
// stores what it is given.
func (m *Manager) SetProfile(p health.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fields := map[string]string{
		KeyGender:        string(p.Gender),
		KeyAge:           strconv.Itoa(p.Age),
		KeyHeight:        strconv.FormatFloat(p.HeightCM, 'f', -1, 64),
		KeyWeight:        strconv.FormatFloat(p.WeightKG, 'f', -1, 64),
		KeyActivityLevel: string(p.ActivityLevel),
	}
	for key, value := range fields {
		if err := m.store.SetProfileKey(key, value); err != nil {
			return fmt.Errorf("setting profile key %q: %w", key, err)
		}
	}

	m.cached = nil
	return nil
}

// SetField persists a single profile key and invalidates the cache.
func (m *Manager) SetField(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SetProfileKey(key, value); err != nil {
		return fmt.Errorf("setting profile key %q: %w", key, err)
	}

	m.cached = nil
	return nil
}

// buildProfile assembles a Profile from flat key-value pairs, falling back to
// defaults for missing or malformed values (a malformed row should not make
// the whole profile unreadable).
func buildProfile(keys map[string]string) health.Profile {
	p := DefaultProfile()

	if v, ok := keys[KeyGender]; ok {
		p.Gender = health.Gender(v)
	}
	if v, ok := keys[KeyActivityLevel]; ok {
		p.ActivityLevel = health.ActivityLevel(v)
	}
	applyInt(keys, KeyAge, &p.Age)
	applyFloat(keys, KeyHeight, &p.HeightCM)
	applyFloat(keys, KeyWeight, &p.WeightKG)

	return p
}

func applyInt(keys map[string]string, key string, target *int) {
	v, ok := keys[key]
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("malformed profile key, keeping default", "key", key, "value", v, "error", err)
		return
	}
	*target = n
}

func applyFloat(keys map[string]string, key string, target *float64) {
	v, ok := keys[key]
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("malformed profile key, keeping default", "key", key, "value", v, "error", err)
		return
	}
	*target = f
}
