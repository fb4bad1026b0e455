// Package store persists the safety kernel's audit trail using SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/octaviaken059/ouroboros-design-sub001/internal/dualmind"
	"github.com/octaviaken059/ouroboros-design-sub001/internal/immunity"
	"github.com/octaviaken059/ouroboros-design-sub001/internal/logging"
	"github.com/octaviaken059/ouroboros-design-sub001/internal/sacred"
)

// AuditStore records attack detections, verifications, tamper attempts and
// core executions. It lives on the hosting side; the kernel engines never
// touch disk themselves.
type AuditStore struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// AttackRow is one persisted attack event.
type AttackRow struct {
	ID         string
	Input      string
	AttackType string
	Confidence float64
	Pattern    string
	Heuristic  bool
	CreatedAt  time.Time
}

// NewAuditStore initializes the SQLite database at the given path.
func NewAuditStore(path string) (*AuditStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &AuditStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("audit store opened at %s", path)
	return s, nil
}

// initialize creates the required tables.
func (s *AuditStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS attack_events (
		id TEXT PRIMARY KEY,
		input TEXT NOT NULL,
		attack_type TEXT NOT NULL,
		confidence REAL NOT NULL,
		pattern TEXT,
		heuristic INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_attack_type ON attack_events(attack_type);
	CREATE INDEX IF NOT EXISTS idx_attack_created ON attack_events(created_at);

	CREATE TABLE IF NOT EXISTS verifications (
		id TEXT PRIMARY KEY,
		approved INTEGER NOT NULL,
		confidence REAL NOT NULL,
		requires_review INTEGER NOT NULL,
		main_thought TEXT,
		audit_thought TEXT,
		diverged INTEGER DEFAULT 0,
		divergence_score REAL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS tamper_events (
		id TEXT PRIMARY KEY,
		reason TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS executions (
		id TEXT PRIMARY KEY,
		function TEXT NOT NULL,
		ok INTEGER NOT NULL,
		error TEXT,
		duration_ns INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_exec_function ON executions(function);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// RecordAttack persists one attack detection.
func (s *AuditStore) RecordAttack(ev immunity.AttackEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := ev.Record.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO attack_events (id, input, attack_type, confidence, pattern, heuristic, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, ev.Record.Input, string(ev.Record.Type), ev.Record.Confidence,
		ev.MatchedPattern, boolToInt(ev.Heuristic), ev.Record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record attack: %w", err)
	}
	return nil
}

// RecordVerification persists one dual-mind verdict.
func (s *AuditStore) RecordVerification(res dualmind.VerificationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var diverged int
	var score float64
	if res.Divergence != nil {
		diverged = boolToInt(res.Divergence.Diverged)
		score = res.Divergence.Score
	}
	_, err := s.db.Exec(
		`INSERT INTO verifications (id, approved, confidence, requires_review, main_thought, audit_thought, diverged, divergence_score, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), boolToInt(res.Approved), res.Confidence,
		boolToInt(res.RequiresHumanReview), res.MainThought, res.AuditThought,
		diverged, score, res.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record verification: %w", err)
	}
	return nil
}

// RecordTamper persists one tamper attempt.
func (s *AuditStore) RecordTamper(ev sacred.TamperEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO tamper_events (id, reason, attempts, created_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), ev.Reason, ev.Attempts, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record tamper event: %w", err)
	}
	return nil
}

// RecordExecution persists one core function execution.
func (s *AuditStore) RecordExecution(entry sacred.ExecutionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO executions (id, function, ok, error, duration_ns, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), entry.Function, boolToInt(entry.OK), entry.Error,
		entry.Duration.Nanoseconds(), entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to record execution: %w", err)
	}
	return nil
}

// RecentAttacks returns the newest n attack rows, newest first.
func (s *AuditStore) RecentAttacks(n int) ([]AttackRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		n = 50
	}
	rows, err := s.db.Query(
		`SELECT id, input, attack_type, confidence, COALESCE(pattern, ''), heuristic, created_at
		 FROM attack_events ORDER BY created_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query attacks: %w", err)
	}
	defer rows.Close()

	var out []AttackRow
	for rows.Next() {
		var r AttackRow
		var heuristic int
		if err := rows.Scan(&r.ID, &r.Input, &r.AttackType, &r.Confidence, &r.Pattern, &heuristic, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attack row: %w", err)
		}
		r.Heuristic = heuristic != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountTamperEvents returns the total persisted tamper attempts.
func (s *AuditStore) CountTamperEvents() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM tamper_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tamper events: %w", err)
	}
	return count, nil
}

// Close releases the database handle.
func (s *AuditStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
