package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mealwise/mealwise/internal/recommend"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Default step/water targets for a day that has not been configured yet.
const (
	defaultStepsTarget = 8000
	defaultWaterTarget = 2500 // ml
)

// Store wraps a SQLite database with methods for the user profile, the meal
// catalog, daily stats, food/weight logs, and the menu-import job queue.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "mealwise.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for maintenance commands and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- User Profile (key-value) ---

func (s *Store) SetProfileKey(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO user_profile (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetProfileKey(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM user_profile WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

func (s *Store) GetAllProfileKeys() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM user_profile")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, rows.Err()
}

// --- Meal catalog ---

const mealColumns = "id, name, merchant, distance_km, calories, price, protein, fat, carbs, image_url"

func (s *Store) SaveMeal(m recommend.Meal) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO meals (id, name, merchant, distance_km, calories, price, protein, fat, carbs, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Merchant, m.DistanceKm, m.Calories, m.Price,
		m.Macros.Protein, m.Macros.Fat, m.Macros.Carbs, m.ImageRef, now, now,
	)
	return err
}

func (s *Store) GetMeal(id string) (recommend.Meal, error) {
	var m recommend.Meal
	err := s.db.QueryRow(`SELECT `+mealColumns+` FROM meals WHERE id = ?`, id).Scan(
		&m.ID, &m.Name, &m.Merchant, &m.DistanceKm, &m.Calories, &m.Price,
		&m.Macros.Protein, &m.Macros.Fat, &m.Macros.Carbs, &m.ImageRef,
	)
	if err == sql.ErrNoRows {
		return recommend.Meal{}, ErrNotFound
	}
	return m, err
}

// UpdateMeal replaces every mutable field of an existing catalog entry.
func (s *Store) UpdateMeal(m recommend.Meal) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE meals SET name = ?, merchant = ?, distance_km = ?, calories = ?, price = ?,
			protein = ?, fat = ?, carbs = ?, image_url = ?, updated_at = ?
		WHERE id = ?`,
		m.Name, m.Merchant, m.DistanceKm, m.Calories, m.Price,
		m.Macros.Protein, m.Macros.Fat, m.Macros.Carbs, m.ImageRef, now, m.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMeals returns the full catalog in insertion order. The recommendation
// engine relies on this order for stable tie-breaking.
func (s *Store) ListMeals() ([]recommend.Meal, error) {
	rows, err := s.db.Query(`SELECT ` + mealColumns + ` FROM meals ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meals []recommend.Meal
	for rows.Next() {
		var m recommend.Meal
		if err := rows.Scan(
			&m.ID, &m.Name, &m.Merchant, &m.DistanceKm, &m.Calories, &m.Price,
			&m.Macros.Protein, &m.Macros.Fat, &m.Macros.Carbs, &m.ImageRef,
		); err != nil {
			return nil, err
		}
		meals = append(meals, m)
	}
	return meals, rows.Err()
}

// --- Daily stats ---

// GetDailyStats returns the stats row for a day, creating a zeroed row with
// default step/water targets on first access.
func (s *Store) GetDailyStats(day string) (DailyStats, error) {
	st := DailyStats{Day: day}
	err := s.db.QueryRow(`
		SELECT calories_current, calories_target, steps_current, steps_target, water_current, water_target
		FROM daily_stats WHERE day = ?`, day,
	).Scan(&st.CaloriesCurrent, &st.CaloriesTarget, &st.StepsCurrent, &st.StepsTarget, &st.WaterCurrent, &st.WaterTarget)
	if err == sql.ErrNoRows {
		st.StepsTarget = defaultStepsTarget
		st.WaterTarget = defaultWaterTarget
		if _, err := s.db.Exec(`
			INSERT INTO daily_stats (day, calories_current, calories_target, steps_current, steps_target, water_current, water_target)
			VALUES (?, 0, 0, 0, ?, 0, ?)`, day, defaultStepsTarget, defaultWaterTarget,
		); err != nil {
			return DailyStats{}, fmt.Errorf("initializing stats for %s: %w", day, err)
		}
		return st, nil
	}
	return st, err
}

// AddCalories increments the day's consumed calories.
func (s *Store) AddCalories(day string, calories int) error {
	return s.incrementStat(day, "calories_current", calories)
}

// AddSteps increments the day's step count.
func (s *Store) AddSteps(day string, steps int) error {
	return s.incrementStat(day, "steps_current", steps)
}

// AddWater increments the day's water intake in ml.
func (s *Store) AddWater(day string, ml int) error {
	return s.incrementStat(day, "water_current", ml)
}

// SetCalorieTarget records the computed daily calorie target on the stats
// row so historical days keep the target that was in effect.
func (s *Store) SetCalorieTarget(day string, target int) error {
	if _, err := s.GetDailyStats(day); err != nil {
		return err
	}
	_, err := s.db.Exec(`UPDATE daily_stats SET calories_target = ? WHERE day = ?`, target, day)
	return err
}

func (s *Store) incrementStat(day, column string, delta int) error {
	if _, err := s.GetDailyStats(day); err != nil {
		return err
	}
	// column comes from a fixed internal set, never user input.
	_, err := s.db.Exec(`UPDATE daily_stats SET `+column+` = `+column+` + ? WHERE day = ?`, delta, day)
	return err
}

// --- Food log ---

func (s *Store) SaveFoodLogEntry(e FoodLogEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO food_log (id, day, name, calories, source, logged_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Day, e.Name, e.Calories, e.Source, e.LoggedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) ListFoodLog(day string) ([]FoodLogEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, day, name, calories, source, logged_at
		FROM food_log WHERE day = ? ORDER BY logged_at ASC`, day,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []FoodLogEntry
	for rows.Next() {
		var e FoodLogEntry
		var loggedAt string
		if err := rows.Scan(&e.ID, &e.Day, &e.Name, &e.Calories, &e.Source, &loggedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, loggedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing logged_at: %w", err)
		}
		e.LoggedAt = t
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Weight history ---

func (s *Store) AddWeightEntry(e WeightEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO weight_history (id, weight_kg, recorded_at) VALUES (?, ?, ?)`,
		e.ID, e.WeightKG, e.RecordedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) ListWeightHistory(limit int) ([]WeightEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, weight_kg, recorded_at FROM weight_history
		ORDER BY recorded_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []WeightEntry
	for rows.Next() {
		var e WeightEntry
		var recordedAt string
		if err := rows.Scan(&e.ID, &e.WeightKG, &recordedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing recorded_at: %w", err)
		}
		e.RecordedAt = t
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- Menu docs ---

func (s *Store) SaveMenuDoc(doc MenuDoc) error {
	status := doc.Status
	if status == "" {
		status = "queued"
	}
	_, err := s.db.Exec(`
		INSERT INTO menu_docs (id, merchant, format, content, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Merchant, doc.Format, doc.Content, status,
		doc.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetMenuDoc(id string) (MenuDoc, error) {
	var d MenuDoc
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, merchant, format, content, status, created_at
		FROM menu_docs WHERE id = ?`, id,
	).Scan(&d.ID, &d.Merchant, &d.Format, &d.Content, &d.Status, &createdAt)
	if err == sql.ErrNoRows {
		return MenuDoc{}, ErrNotFound
	}
	if err != nil {
		return MenuDoc{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return MenuDoc{}, fmt.Errorf("parsing created_at: %w", err)
	}
	d.CreatedAt = t
	return d, nil
}

func (s *Store) SetMenuDocStatus(id, status string) error {
	res, err := s.db.Exec(`UPDATE menu_docs SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Jobs ---

func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

// ClaimNextJob atomically claims the oldest runnable pending job of the given
// types, or returns (nil, nil) when the queue is empty.
func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]interface{}, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}

	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRow(query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		tx.Rollback()
		return nil, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	}
	if n != 1 {
		tx.Rollback()
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = "running"
	j.LastError = lastError.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, now); err != nil {
		return nil, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailJob increments the attempt counter and either reschedules the job with
// exponential backoff or marks it failed once attempts are exhausted.
func (s *Store) FailJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if attempts >= maxAttempts {
		_, err = tx.Exec(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		runAfter := now.Add(backoff)
		_, err = tx.Exec(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, runAfter.Format(time.RFC3339), now.Format(time.RFC3339), id)
	}
	if err != nil {
		return err
	}

	return tx.Commit()
}
