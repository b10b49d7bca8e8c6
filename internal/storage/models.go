package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// DailyStats is one day of tracked intake and activity. Day is a
// "2006-01-02" date string. Step and water targets are user-set; the calorie
// target is recomputed from the profile by the session layer on every change.
type DailyStats struct {
	Day             string `json:"day"`
	CaloriesCurrent int    `json:"calories_current"`
	CaloriesTarget  int    `json:"calories_target"`
	StepsCurrent    int    `json:"steps_current"`
	StepsTarget     int    `json:"steps_target"`
	WaterCurrent    int    `json:"water_current"` // ml
	WaterTarget     int    `json:"water_target"`  // ml
}

// FoodLogEntry is one logged food item, manual or AI-analyzed.
type FoodLogEntry struct {
	ID       string    `json:"id"`
	Day      string    `json:"day"`
	Name     string    `json:"name"`
	Calories int       `json:"calories"`
	Source   string    `json:"source"` // "manual" or "analysis"
	LoggedAt time.Time `json:"logged_at"`
}

// WeightEntry is one point of the user's weight history.
type WeightEntry struct {
	ID         string    `json:"id"`
	WeightKG   float64   `json:"weight_kg"`
	RecordedAt time.Time `json:"recorded_at"`
}

// MenuDoc is an uploaded merchant menu awaiting import. Content holds the
// raw upload (base64 for binary formats such as PDF).
type MenuDoc struct {
	ID        string
	Merchant  string
	Format    string // "pdf" or "text"
	Content   string
	Status    string // "queued", "imported", "failed"
	CreatedAt time.Time
}

// Job is one entry in the async work queue (menu imports).
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
