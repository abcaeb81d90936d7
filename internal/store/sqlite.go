package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
	"github.com/cobi-dev0615/Montor.ia-sub000/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	retryAttempts  = 3
	retryBaseDelay = 100 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	sessionMu sync.Mutex // serializes session read-modify-write within this process
	now       func() time.Time
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	return openSQLite(dbPath)
}

func openSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for concurrent readers while a cascade writes.
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		session_json TEXT,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS goals (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		main_goal TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		deleted INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_goals_user ON goals(user_id, created_at);

	CREATE TABLE IF NOT EXISTS milestones (
		id TEXT PRIMARY KEY,
		goal_id TEXT NOT NULL REFERENCES goals(id),
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		sequence INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_milestones_goal ON milestones(goal_id, sequence);

	CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		milestone_id TEXT NOT NULL REFERENCES milestones(id),
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		created_at INTEGER NOT NULL,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_actions_milestone ON actions(milestone_id, status, created_at);

	CREATE TABLE IF NOT EXISTS progress_events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		goal_id TEXT NOT NULL,
		milestone_id TEXT NOT NULL DEFAULT '',
		action_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		points INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_progress_events_user ON progress_events(user_id, goal_id, created_at);

	CREATE TABLE IF NOT EXISTS user_progress (
		user_id TEXT PRIMARY KEY,
		total_progress INTEGER NOT NULL DEFAULT 0,
		consistency_streak INTEGER NOT NULL DEFAULT 0,
		last_activity_date INTEGER,
		avatar_level INTEGER NOT NULL DEFAULT 1,
		avatar_stage TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		goal_id TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(user_id, goal_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, username, last_seen_at, created_at, updated_at
		FROM users WHERE user_id = ?`

	var user domain.User
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.UserID, &user.Username, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.LastSeenAt = fromMillis(lastSeen)
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return &user, nil
}

// UpsertUser creates or updates a user record. The session blob is left untouched.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, username, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		username = excluded.username,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	now := s.now()
	createdAt := user.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	lastSeen := user.LastSeenAt
	if lastSeen.IsZero() {
		lastSeen = now
	}

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Username, toMillis(lastSeen), toMillis(createdAt), toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateLastSeen updates the last_seen_at timestamp for a user.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error {
	query := `UPDATE users SET last_seen_at = ?, updated_at = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, toMillis(lastSeen), toMillis(s.now()), userID)
	if err != nil {
		return fmt.Errorf("update last_seen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "user_id", userID)
	}
	return nil
}

// ListUserIDs returns every known user ID.
func (s *SQLiteStore) ListUserIDs(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, `SELECT user_id FROM users ORDER BY user_id`)
}

// GetSession returns the stored conversation session for a user.
func (s *SQLiteStore) GetSession(ctx context.Context, userID string) (domain.ConversationSession, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT session_json FROM users WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ConversationSession{}, nil
	}
	if err != nil {
		return domain.ConversationSession{}, fmt.Errorf("get session: %w", err)
	}
	return decodeSession(raw)
}

// UpdateSession merges patch into the stored session inside a transaction.
// A missing user row is created. SQLITE_BUSY is retried with backoff.
func (s *SQLiteStore) UpdateSession(ctx context.Context, userID string, patch domain.SessionPatch) (domain.ConversationSession, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	var out domain.ConversationSession
	err := shared.RetryOnConflict(ctx, "update session", retryAttempts, retryBaseDelay, func() error {
		var err error
		out, err = s.updateSessionOnce(ctx, userID, patch)
		return err
	})
	if err != nil {
		return domain.ConversationSession{}, err
	}
	return out, nil
}

func (s *SQLiteStore) updateSessionOnce(ctx context.Context, userID string, patch domain.SessionPatch) (domain.ConversationSession, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ConversationSession{}, fmt.Errorf("begin session tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var raw sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT session_json FROM users WHERE user_id = ?`, userID).Scan(&raw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return domain.ConversationSession{}, fmt.Errorf("read session: %w", err)
	}
	current, err := decodeSession(raw)
	if err != nil {
		return domain.ConversationSession{}, err
	}
	if !current.Accepts(patch) {
		return domain.ConversationSession{}, fmt.Errorf("session at v%d, want v%d: %w", current.Version, patch.IfVersion, ErrSessionChanged)
	}

	now := s.now()
	merged := current.Merge(patch, now)
	blob, err := json.Marshal(merged)
	if err != nil {
		return domain.ConversationSession{}, fmt.Errorf("encode session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (user_id, username, session_json, last_seen_at, created_at, updated_at)
		VALUES (?, '', ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			session_json = excluded.session_json,
			updated_at = excluded.updated_at`,
		userID, string(blob), toMillis(now), toMillis(now), toMillis(now),
	)
	if err != nil {
		return domain.ConversationSession{}, fmt.Errorf("write session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.ConversationSession{}, fmt.Errorf("commit session: %w", err)
	}
	return merged, nil
}

func decodeSession(raw sql.NullString) (domain.ConversationSession, error) {
	var sess domain.ConversationSession
	if !raw.Valid || raw.String == "" {
		return sess, nil
	}
	if err := json.Unmarshal([]byte(raw.String), &sess); err != nil {
		return domain.ConversationSession{}, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer closeRows(rows)

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return out, nil
}

func closeRows(rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "error", err)
	}
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func nullMillis(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
