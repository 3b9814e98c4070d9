package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"macp/internal/types"
)

// Store backs the engine's external collaborators with SQLite:
// the reputation ledger (persisted scores plus staged deltas),
// the evidence registry for citation verification, and the
// transcript archive for finished sessions.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	logger *zap.Logger
}

const baselineReputation = 1.0

var (
	_ types.ReputationStore  = (*Store)(nil)
	_ types.EvidenceVerifier = (*Store)(nil)
)

// New initializes the SQLite database at the given path.
func New(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, dbPath: path, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	reputationTables := `
	CREATE TABLE IF NOT EXISTS reputations (
		agent_id TEXT PRIMARY KEY,
		score REAL NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS reputation_deltas (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		delta REAL NOT NULL,
		reason TEXT,
		applied INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_deltas_session ON reputation_deltas(session_id, applied);
	`

	evidenceTable := `
	CREATE TABLE IF NOT EXISTS evidence (
		memory_id TEXT PRIMARY KEY,
		content TEXT,
		strength REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	archiveTables := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		state TEXT NOT NULL,
		final_score REAL NOT NULL,
		rounds INTEGER NOT NULL,
		leading_agent TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS transcript_events (
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		event_json TEXT NOT NULL,
		PRIMARY KEY (session_id, seq)
	);
	`

	for _, table := range []string{reputationTables, evidenceTable, archiveTables} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ========== Reputation ledger ==========

// Get returns the agent's persisted reputation, or the baseline for an
// agent never seen before.
func (s *Store) Get(ctx context.Context, agentID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var score float64
	err := s.db.QueryRowContext(ctx,
		"SELECT score FROM reputations WHERE agent_id = ?", agentID,
	).Scan(&score)
	if err == sql.ErrNoRows {
		return baselineReputation, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read reputation: %w", err)
	}
	return score, nil
}

// ProposeDelta stages a reputation adjustment. Staged deltas do not
// affect Get until ApplyDeltas runs for the owning session.
func (s *Store) ProposeDelta(delta types.ReputationDelta) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO reputation_deltas (session_id, agent_id, delta, reason) VALUES (?, ?, ?, ?)",
		delta.SessionID, delta.AgentID, delta.Delta, delta.Reason,
	)
	if err != nil {
		s.logger.Warn("failed to stage reputation delta",
			zap.String("agent", delta.AgentID),
			zap.String("session", delta.SessionID),
			zap.Error(err))
	}
}

// ApplyDeltas folds every unapplied delta for the session into the
// persisted scores and marks them applied. Scores never drop below zero.
// Returns the number of deltas applied.
func (s *Store) ApplyDeltas(ctx context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		"SELECT id, agent_id, delta FROM reputation_deltas WHERE session_id = ? AND applied = 0 ORDER BY id",
		sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to load staged deltas: %w", err)
	}

	type staged struct {
		id      int64
		agentID string
		delta   float64
	}
	var pending []staged
	for rows.Next() {
		var st staged
		if err := rows.Scan(&st.id, &st.agentID, &st.delta); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan staged delta: %w", err)
		}
		pending = append(pending, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to read staged deltas: %w", err)
	}

	for _, st := range pending {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO reputations (agent_id, score, updated_at)
			 VALUES (?, MAX(0, ? + ?), CURRENT_TIMESTAMP)
			 ON CONFLICT(agent_id) DO UPDATE SET
			   score = MAX(0, score + ?),
			   updated_at = CURRENT_TIMESTAMP`,
			st.agentID, baselineReputation, st.delta, st.delta,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to apply delta for %s: %w", st.agentID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE reputation_deltas SET applied = 1 WHERE id = ?", st.id,
		); err != nil {
			return 0, fmt.Errorf("failed to mark delta applied: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit deltas: %w", err)
	}
	return len(pending), nil
}

// ========== Evidence registry ==========

// AddEvidence registers a memory entry citations can resolve against.
func (s *Store) AddEvidence(ctx context.Context, memoryID, content string, strength float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strength < 0 {
		strength = 0
	} else if strength > 1 {
		strength = 1
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO evidence (memory_id, content, strength) VALUES (?, ?, ?)",
		memoryID, content, strength,
	)
	if err != nil {
		return fmt.Errorf("failed to store evidence: %w", err)
	}
	return nil
}

// Verify resolves a cited memory reference. An unknown id is not an
// error; it verifies as nonexistent.
func (s *Store) Verify(ctx context.Context, memoryID string) (types.EvidenceResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var strength float64
	err := s.db.QueryRowContext(ctx,
		"SELECT strength FROM evidence WHERE memory_id = ?", memoryID,
	).Scan(&strength)
	if err == sql.ErrNoRows {
		return types.EvidenceResult{}, nil
	}
	if err != nil {
		return types.EvidenceResult{}, fmt.Errorf("failed to verify evidence: %w", err)
	}
	return types.EvidenceResult{Exists: true, Strength: strength}, nil
}

// ========== Transcript archive ==========

// SessionRecord is one archived session's summary row.
type SessionRecord struct {
	SessionID    string
	Question     string
	State        string
	FinalScore   float64
	Rounds       int
	LeadingAgent string
	CreatedAt    time.Time
}

// ArchiveSession stores a finished session's summary and its full event
// log. Archiving the same session twice replaces the previous copy.
func (s *Store) ArchiveSession(ctx context.Context, rec SessionRecord, events []types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (session_id, question, state, final_score, rounds, leading_agent)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Question, rec.State, rec.FinalScore, rec.Rounds, rec.LeadingAgent,
	)
	if err != nil {
		return fmt.Errorf("failed to archive session: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM transcript_events WHERE session_id = ?", rec.SessionID,
	); err != nil {
		return fmt.Errorf("failed to clear previous transcript: %w", err)
	}

	for seq, ev := range events {
		raw, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to encode event %d: %w", seq, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO transcript_events (session_id, seq, event_json) VALUES (?, ?, ?)",
			rec.SessionID, seq, string(raw),
		); err != nil {
			return fmt.Errorf("failed to archive event %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archive: %w", err)
	}
	return nil
}

// ListSessions returns archived sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, question, state, final_score, rounds, leading_agent, created_at
		 FROM sessions ORDER BY created_at DESC, session_id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		var leading sql.NullString
		if err := rows.Scan(&rec.SessionID, &rec.Question, &rec.State,
			&rec.FinalScore, &rec.Rounds, &leading, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		rec.LeadingAgent = leading.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LoadEvents returns the archived event log for a session in recorded order.
func (s *Store) LoadEvents(ctx context.Context, sessionID string) ([]types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT event_json FROM transcript_events WHERE session_id = ? ORDER BY seq", sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load transcript: %w", err)
	}
	defer rows.Close()

	var events []types.Event
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		var ev types.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("failed to decode event %d: %w", len(events), err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if events == nil {
		return nil, fmt.Errorf("no transcript archived for session %s", sessionID)
	}
	return events, nil
}
