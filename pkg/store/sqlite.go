package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"momentum/pkg/logx"
	"momentum/pkg/plan"
)

// currentSchemaVersion tracks the schema for migration support.
const currentSchemaVersion = 1

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *logx.Logger
}

// OpenSQLite opens (and if needed creates) the database at dbPath. The
// function is idempotent and safe to call on an existing database.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	logger := logx.NewLogger("store")
	logger.Info("database initialized: %s", dbPath)

	return &SQLiteStore{db: db, logger: logger}, nil
}

// initSchema ensures the schema exists and is at the current version.
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err := db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		version = 0
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if version == currentSchemaVersion {
		return nil
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		user_id  TEXT PRIMARY KEY,
		identity TEXT NOT NULL DEFAULT '',
		context  TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS goals (
		user_id TEXT PRIMARY KEY,
		title   TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS daily_plans (
		user_id TEXT NOT NULL,
		date    TEXT NOT NULL, -- YYYY-MM-DD
		tasks   TEXT NOT NULL, -- JSON array of tasks
		quote   TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (user_id, date)
	);

	CREATE TABLE IF NOT EXISTS daily_reflections (
		user_id    TEXT NOT NULL,
		date       TEXT NOT NULL, -- YYYY-MM-DD
		reflection TEXT NOT NULL DEFAULT '',
		response   TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (user_id, date)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if _, err := db.Exec(`DELETE FROM schema_version`); err != nil {
		return fmt.Errorf("failed to clear schema version: %w", err)
	}
	if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// GetProfile reads users/{userID}/profile.
func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (plan.UserProfile, error) {
	var p plan.UserProfile
	err := s.db.QueryRowContext(ctx,
		`SELECT identity, context FROM profiles WHERE user_id = ?`, userID,
	).Scan(&p.Identity, &p.Context)
	if errors.Is(err, sql.ErrNoRows) {
		return plan.UserProfile{}, ErrNotFound
	}
	if err != nil {
		return plan.UserProfile{}, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// PutProfile overwrites users/{userID}/profile.
func (s *SQLiteStore) PutProfile(ctx context.Context, userID string, profile plan.UserProfile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, identity, context) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET identity = excluded.identity, context = excluded.context`,
		userID, profile.Identity, profile.Context)
	if err != nil {
		return fmt.Errorf("failed to put profile: %w", err)
	}
	return nil
}

// GetGoal reads users/{userID}/goal.
func (s *SQLiteStore) GetGoal(ctx context.Context, userID string) (plan.Goal, error) {
	var g plan.Goal
	err := s.db.QueryRowContext(ctx,
		`SELECT title FROM goals WHERE user_id = ?`, userID,
	).Scan(&g.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return plan.Goal{}, ErrNotFound
	}
	if err != nil {
		return plan.Goal{}, fmt.Errorf("failed to get goal: %w", err)
	}
	return g, nil
}

// PutGoal overwrites users/{userID}/goal.
func (s *SQLiteStore) PutGoal(ctx context.Context, userID string, goal plan.Goal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO goals (user_id, title) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET title = excluded.title`,
		userID, goal.Title)
	if err != nil {
		return fmt.Errorf("failed to put goal: %w", err)
	}
	return nil
}

// GetDailyPlan reads users/{userID}/dailyPlans/{date}.
func (s *SQLiteStore) GetDailyPlan(ctx context.Context, userID, date string) (plan.DailyPlan, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT date, tasks, quote FROM daily_plans WHERE user_id = ? AND date = ?`, userID, date)
	return scanPlan(row)
}

// PutDailyPlan overwrites users/{userID}/dailyPlans/{plan.Date}.
func (s *SQLiteStore) PutDailyPlan(ctx context.Context, userID string, p plan.DailyPlan) error {
	if _, err := plan.ParseDateKey(p.Date); err != nil {
		return err
	}

	tasks, err := json.Marshal(p.Tasks)
	if err != nil {
		return fmt.Errorf("failed to encode tasks: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_plans (user_id, date, tasks, quote) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET tasks = excluded.tasks, quote = excluded.quote`,
		userID, p.Date, string(tasks), p.MotivationalQuote)
	if err != nil {
		return fmt.Errorf("failed to put daily plan: %w", err)
	}
	return nil
}

// SetTaskCompleted is the merge update at a named child: it flips one
// task's completion flag inside the stored plan, leaving the rest alone.
func (s *SQLiteStore) SetTaskCompleted(ctx context.Context, userID, date, taskID string, completed bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var tasksJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT tasks FROM daily_plans WHERE user_id = ? AND date = ?`, userID, date,
	).Scan(&tasksJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read plan tasks: %w", err)
	}

	var tasks []plan.Task
	if err := json.Unmarshal([]byte(tasksJSON), &tasks); err != nil {
		return fmt.Errorf("failed to decode tasks: %w", err)
	}

	found := false
	for i := range tasks {
		if tasks[i].ID == taskID {
			tasks[i].IsCompleted = completed
			found = true
			break
		}
	}
	if !found {
		return ErrNotFound
	}

	updated, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("failed to encode tasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE daily_plans SET tasks = ? WHERE user_id = ? AND date = ?`,
		string(updated), userID, date); err != nil {
		return fmt.Errorf("failed to update plan tasks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task update: %w", err)
	}
	return nil
}

// LatestPlanBefore returns the most recent plan strictly before date. Date
// keys sort lexicographically in chronological order, so the range query is
// an ordered scan with an upper bound and limit 1.
func (s *SQLiteStore) LatestPlanBefore(ctx context.Context, userID, date string) (plan.DailyPlan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT date, tasks, quote FROM daily_plans
		WHERE user_id = ? AND date < ?
		ORDER BY date DESC LIMIT 1`, userID, date)
	return scanPlan(row)
}

// GetReflection reads users/{userID}/dailyReflections/{date}.
func (s *SQLiteStore) GetReflection(ctx context.Context, userID, date string) (plan.DailyReflection, error) {
	var r plan.DailyReflection
	err := s.db.QueryRowContext(ctx,
		`SELECT reflection, response FROM daily_reflections WHERE user_id = ? AND date = ?`,
		userID, date,
	).Scan(&r.Reflection, &r.Response)
	if errors.Is(err, sql.ErrNoRows) {
		return plan.DailyReflection{}, ErrNotFound
	}
	if err != nil {
		return plan.DailyReflection{}, fmt.Errorf("failed to get reflection: %w", err)
	}
	return r, nil
}

// PutReflection overwrites users/{userID}/dailyReflections/{date}.
func (s *SQLiteStore) PutReflection(ctx context.Context, userID, date string, r plan.DailyReflection) error {
	if _, err := plan.ParseDateKey(date); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_reflections (user_id, date, reflection, response) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET reflection = excluded.reflection, response = excluded.response`,
		userID, date, r.Reflection, r.Response)
	if err != nil {
		return fmt.Errorf("failed to put reflection: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func scanPlan(row *sql.Row) (plan.DailyPlan, error) {
	var p plan.DailyPlan
	var tasksJSON string
	err := row.Scan(&p.Date, &tasksJSON, &p.MotivationalQuote)
	if errors.Is(err, sql.ErrNoRows) {
		return plan.DailyPlan{}, ErrNotFound
	}
	if err != nil {
		return plan.DailyPlan{}, fmt.Errorf("failed to get daily plan: %w", err)
	}
	if err := json.Unmarshal([]byte(tasksJSON), &p.Tasks); err != nil {
		return plan.DailyPlan{}, fmt.Errorf("failed to decode tasks: %w", err)
	}
	return p, nil
}
