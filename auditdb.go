package gatekeeper

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// AuditDB persists the outcome of every decided verification
type AuditDB struct {
	db *sql.DB
}

// AuditRecord is one decided verification
type AuditRecord struct {
	ID        string    `json:"id"`
	ChatID    int64     `json:"chat_id"`
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name"`
	Question  string    `json:"question"`
	Outcome   string    `json:"outcome"`
	DecidedBy string    `json:"decided_by"` // "answer", "timeout", or the admin's name
	CreatedAt time.Time `json:"created_at"`
	DecidedAt time.Time `json:"decided_at"`
}

// OpenAuditDB opens the audit database, creating the schema if needed
func OpenAuditDB(dbPath string) (*AuditDB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	audit := &AuditDB{db: db}
	if err := audit.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return audit, nil
}

// Close closes the database connection
func (a *AuditDB) Close() error {
	return a.db.Close()
}

func (a *AuditDB) createTables() error {
	query := `CREATE TABLE IF NOT EXISTS verifications (
		id TEXT PRIMARY KEY,
		chat_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		user_name TEXT,
		question TEXT NOT NULL,
		outcome TEXT NOT NULL,
		decided_by TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		decided_at DATETIME NOT NULL
	)`
	if _, err := a.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Record inserts one decided verification. A missing ID is filled in.
func (a *AuditDB) Record(rec *AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := a.db.Exec(
		"INSERT INTO verifications (id, chat_id, user_id, user_name, question, outcome, decided_by, created_at, decided_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		rec.ID, rec.ChatID, rec.UserID, rec.UserName, rec.Question, rec.Outcome, rec.DecidedBy, rec.CreatedAt, rec.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record verification: %w", err)
	}
	return nil
}

// Recent returns the latest decided verifications, newest first
func (a *AuditDB) Recent(limit int) ([]AuditRecord, error) {
	query := "SELECT id, chat_id, user_id, user_name, question, outcome, decided_by, created_at, decided_at FROM verifications ORDER BY decided_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := a.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query verifications: %w", err)
	}
	defer rows.Close()

	var records []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		err := rows.Scan(&rec.ID, &rec.ChatID, &rec.UserID, &rec.UserName, &rec.Question, &rec.Outcome, &rec.DecidedBy, &rec.CreatedAt, &rec.DecidedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan verification: %w", err)
		}
		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating verifications: %w", err)
	}
	return records, nil
}

// OutcomeCounts returns how many verifications ended in each outcome
func (a *AuditDB) OutcomeCounts() (map[string]int, error) {
	rows, err := a.db.Query("SELECT outcome, COUNT(*) FROM verifications GROUP BY outcome")
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts[outcome] = count
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcome counts: %w", err)
	}
	return counts, nil
}
