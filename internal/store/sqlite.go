package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hansonkim/consensus-code-review/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors from concurrent tool calls.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	// Set busy timeout so concurrent writes wait instead of failing immediately
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// marshalStrings JSON-encodes a string slice for storage, nil as [].
func marshalStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	// Create migrations tracking table
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	// Sort by filename
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		// Check if already applied
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Sessions ---

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *models.ReviewSession) error {
	if sess.ID == "" {
		sess.ID = newULID()
	}
	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, base_ref, target_ref, review_type, lead_agent, current_round, max_rounds, consensus_reached, terminated, final_review, curated_data, target_agents, failed_agents, peers_triggered, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.BaseRef, sess.TargetRef, string(sess.ReviewType), sess.LeadAgent,
		sess.CurrentRound, sess.MaxRounds, boolToInt(sess.ConsensusReached), boolToInt(sess.Terminated),
		sess.FinalReview, sess.CuratedData, marshalStrings(sess.TargetAgents), marshalStrings(sess.FailedAgents),
		boolToInt(sess.PeersTriggered), sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.ReviewSession, error) {
	sess := &models.ReviewSession{}
	var reviewType, targetsJSON, failedJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, base_ref, target_ref, review_type, lead_agent, current_round, max_rounds, consensus_reached, terminated, final_review, curated_data, target_agents, failed_agents, peers_triggered, created_at, updated_at
		FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.BaseRef, &sess.TargetRef, &reviewType, &sess.LeadAgent,
		&sess.CurrentRound, &sess.MaxRounds, &sess.ConsensusReached, &sess.Terminated,
		&sess.FinalReview, &sess.CuratedData, &targetsJSON, &failedJSON,
		&sess.PeersTriggered, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	sess.ReviewType = models.ReviewType(reviewType)
	_ = json.Unmarshal([]byte(targetsJSON), &sess.TargetAgents)
	_ = json.Unmarshal([]byte(failedJSON), &sess.FailedAgents)

	if err := s.loadSubmissions(ctx, sess); err != nil {
		return nil, err
	}
	if err := s.loadProgress(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// loadSubmissions replays submission rows in insertion order so the
// aggregate's agent ordering matches first submission. Row ids are ULIDs,
// so ordering by id is chronological.
func (s *SQLiteStore) loadSubmissions(ctx context.Context, sess *models.ReviewSession) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent, round, content, submitted_at FROM submissions
		WHERE session_id = ? ORDER BY id`, sess.ID)
	if err != nil {
		return fmt.Errorf("load submissions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var agent, content string
		var round int
		var at time.Time
		if err := rows.Scan(&agent, &round, &content, &at); err != nil {
			return fmt.Errorf("scan submission: %w", err)
		}
		sess.Record(agent, round, content, at)
	}
	return rows.Err()
}

func (s *SQLiteStore) loadProgress(ctx context.Context, sess *models.ReviewSession) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent, message, reported_at FROM progress
		WHERE session_id = ? ORDER BY id`, sess.ID)
	if err != nil {
		return fmt.Errorf("load progress: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var e models.ProgressEntry
		if err := rows.Scan(&e.Agent, &e.Message, &e.ReportedAt); err != nil {
			return fmt.Errorf("scan progress entry: %w", err)
		}
		sess.Progress = append(sess.Progress, e)
	}
	return rows.Err()
}

func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*models.ReviewSession, error) {
	query := `SELECT id, base_ref, target_ref, review_type, lead_agent, current_round, max_rounds, consensus_reached, terminated, final_review, curated_data, target_agents, failed_agents, peers_triggered, created_at, updated_at
		FROM sessions ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.ReviewSession
	for rows.Next() {
		sess := &models.ReviewSession{}
		var reviewType, targetsJSON, failedJSON string

		if err := rows.Scan(&sess.ID, &sess.BaseRef, &sess.TargetRef, &reviewType, &sess.LeadAgent,
			&sess.CurrentRound, &sess.MaxRounds, &sess.ConsensusReached, &sess.Terminated,
			&sess.FinalReview, &sess.CuratedData, &targetsJSON, &failedJSON,
			&sess.PeersTriggered, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}

		sess.ReviewType = models.ReviewType(reviewType)
		_ = json.Unmarshal([]byte(targetsJSON), &sess.TargetAgents)
		_ = json.Unmarshal([]byte(failedJSON), &sess.FailedAgents)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *models.ReviewSession) error {
	sess.UpdatedAt = time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET current_round=?, max_rounds=?, consensus_reached=?, terminated=?, final_review=?, curated_data=?, target_agents=?, failed_agents=?, peers_triggered=?, updated_at=?
		WHERE id=?`,
		sess.CurrentRound, sess.MaxRounds, boolToInt(sess.ConsensusReached), boolToInt(sess.Terminated),
		sess.FinalReview, sess.CuratedData, marshalStrings(sess.TargetAgents), marshalStrings(sess.FailedAgents),
		boolToInt(sess.PeersTriggered), sess.UpdatedAt, sess.ID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("session not found: %s", sess.ID)
	}
	return nil
}

// PutSubmission upserts an agent's review for a round. A resubmission
// replaces the content but keeps the original row id, so replay order
// still reflects the first submission.
func (s *SQLiteStore) PutSubmission(ctx context.Context, sessionID, agent string, round int, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, session_id, agent, round, content, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, agent, round) DO UPDATE SET content=excluded.content, submitted_at=excluded.submitted_at`,
		newULID(), sessionID, agent, round, content, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("put submission: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendProgress(ctx context.Context, sessionID, agent, message string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO progress (id, session_id, agent, message, reported_at) VALUES (?, ?, ?, ?, ?)`,
		newULID(), sessionID, agent, message, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("append progress: %w", err)
	}
	return nil
}

// PruneSessions deletes sessions whose last update is older than the cutoff.
// Submission and progress rows cascade.
func (s *SQLiteStore) PruneSessions(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE updated_at < ?", olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}
