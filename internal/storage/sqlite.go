package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "signalbot/pkg/logx"
)

//go:embed migrations/sqlite.sql
var migrationsFS embed.FS

const timeLayout = time.RFC3339

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (*sqliteStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations/sqlite.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) EnsureDefaults(ctx context.Context, d Defaults) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, kv := range [][2]string{
		{KeySignalsEnabled, boolToSetting(d.SignalsEnabled)},
		{KeyWorkingHours, d.WorkingHours},
		{KeySignalsRange, d.SignalsRange},
	} {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO settings(key, value) VALUES(?, ?)`, kv[0], kv[1]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) getSetting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return v, true, nil
}

func (s *sqliteStore) setSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (s *sqliteStore) GlobalSignals(ctx context.Context) (bool, error) {
	v, ok, err := s.getSetting(ctx, KeySignalsEnabled)
	if err != nil || !ok {
		return false, err
	}
	return strings.TrimSpace(v) == "1", nil
}

func (s *sqliteStore) SetGlobalSignals(ctx context.Context, enabled bool) error {
	return s.setSetting(ctx, KeySignalsEnabled, boolToSetting(enabled))
}

func (s *sqliteStore) WorkingHours(ctx context.Context) (string, error) {
	v, _, err := s.getSetting(ctx, KeyWorkingHours)
	return v, err
}

func (s *sqliteStore) SetWorkingHours(ctx context.Context, hours string) error {
	return s.setSetting(ctx, KeyWorkingHours, hours)
}

func (s *sqliteStore) SignalRange(ctx context.Context) (string, error) {
	v, _, err := s.getSetting(ctx, KeySignalsRange)
	return v, err
}

func (s *sqliteStore) SetSignalRange(ctx context.Context, value string) error {
	return s.setSetting(ctx, KeySignalsRange, value)
}

const applicationColumns = `user_id, pocket_id, status, language, first_name, last_name, username, created_at, updated_at`

type rowScanner interface{ Scan(dest ...any) error }

func scanApplication(r rowScanner) (Application, error) {
	var (
		app                 Application
		first, last, user   sql.NullString
		createdAt, updateAt string
	)
	if err := r.Scan(&app.UserID, &app.PocketID, &app.Status, &app.Language, &first, &last, &user, &createdAt, &updateAt); err != nil {
		return Application{}, err
	}
	app.FirstName, app.LastName, app.Username = first.String, last.String, user.String
	app.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	app.UpdatedAt, _ = time.Parse(timeLayout, updateAt)
	return app, nil
}

func (s *sqliteStore) ListApplications(ctx context.Context, status string) ([]Application, error) {
	q := `SELECT ` + applicationColumns + ` FROM applications`
	var args []any
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, status)
	}
	q += ` ORDER BY user_id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var out []Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetApplication(ctx context.Context, userID int64) (Application, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE user_id = ?`, userID)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Application{}, ErrNotFound
	}
	if err != nil {
		return Application{}, fmt.Errorf("get application %d: %w", userID, err)
	}
	return app, nil
}

func (s *sqliteStore) UpsertApplication(ctx context.Context, app Application) (Application, error) {
	var existing *Application
	if cur, err := s.GetApplication(ctx, app.UserID); err == nil {
		existing = &cur
	} else if !errors.Is(err, ErrNotFound) {
		return Application{}, err
	}
	app = normalizeApplication(app, existing, time.Now().UTC().Truncate(time.Second))

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO applications(`+applicationColumns+`) VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   pocket_id = excluded.pocket_id,
		   status = excluded.status,
		   language = excluded.language,
		   first_name = excluded.first_name,
		   last_name = excluded.last_name,
		   username = excluded.username,
		   updated_at = excluded.updated_at`,
		app.UserID, app.PocketID, app.Status, app.Language,
		nullStr(app.FirstName), nullStr(app.LastName), nullStr(app.Username),
		app.CreatedAt.Format(timeLayout), app.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		return Application{}, fmt.Errorf("upsert application %d: %w", app.UserID, err)
	}
	return s.GetApplication(ctx, app.UserID)
}

func (s *sqliteStore) SetApplicationStatus(ctx context.Context, userID int64, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE applications SET status = ?, updated_at = ? WHERE user_id = ?`,
		status, time.Now().UTC().Format(timeLayout), userID)
	if err != nil {
		return fmt.Errorf("set application status %d: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) DeleteApplication(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM applications WHERE user_id = ?`, userID)
	return err
}

func (s *sqliteStore) SetUserStage(ctx context.Context, userID int64, stage string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_stages(user_id, stage) VALUES(?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET stage = excluded.stage`, userID, stage)
	return err
}

func (s *sqliteStore) GetUserStage(ctx context.Context, userID int64) (string, error) {
	var stage string
	err := s.db.QueryRowContext(ctx, `SELECT stage FROM user_stages WHERE user_id = ?`, userID).Scan(&stage)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return stage, err
}

func (s *sqliteStore) ListUserStages(ctx context.Context) (map[int64]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, stage FROM user_stages`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64]string{}
	for rows.Next() {
		var (
			id    int64
			stage string
		)
		if err := rows.Scan(&id, &stage); err != nil {
			return nil, err
		}
		out[id] = stage
	}
	return out, rows.Err()
}

func (s *sqliteStore) PersonalSignals(ctx context.Context, userID int64) (bool, bool, error) {
	var enabled int
	err := s.db.QueryRowContext(ctx, `SELECT enabled FROM personal_signals WHERE user_id = ?`, userID).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return enabled != 0, true, nil
}

func (s *sqliteStore) SetPersonalSignals(ctx context.Context, userID int64, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO personal_signals(user_id, enabled) VALUES(?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET enabled = excluded.enabled`, userID, v)
	return err
}

func (s *sqliteStore) ListPersonalSignals(ctx context.Context) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, enabled FROM personal_signals`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64]bool{}
	for rows.Next() {
		var id int64
		var enabled int
		if err := rows.Scan(&id, &enabled); err != nil {
			return nil, err
		}
		out[id] = enabled != 0
	}
	return out, rows.Err()
}

// recipientQuery is shared with the postgres backend; "?" placeholders are
// rebound by gorm.
const recipientQuery = `
WITH eligible AS (
    SELECT user_id FROM applications WHERE status = 'approved'
    UNION
    SELECT user_id FROM user_stages WHERE stage = ?
)
SELECT DISTINCT e.user_id
FROM eligible e
LEFT JOIN personal_signals ps ON ps.user_id = e.user_id
WHERE COALESCE(ps.enabled, 1) = 1
ORDER BY e.user_id`

func (s *sqliteStore) ListSignalRecipientIDs(ctx context.Context, completedStage string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, recipientQuery, completedStage)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
