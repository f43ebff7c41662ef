package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"debatesite/models"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQL dialects understood by SQLStore.
const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)

// SQLStore persists records through database/sql on SQLite or PostgreSQL.
// Queries are written with ? placeholders and rebound for postgres.
type SQLStore struct {
	db      *sql.DB
	dialect string
}

// OpenSQLStore opens the database, verifies it and creates missing tables.
func OpenSQLStore(ctx context.Context, dialect, dsn string) (*SQLStore, error) {
	if dialect != DialectSQLite && dialect != DialectPostgres {
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		// in-memory sqlite databases live per connection
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStore{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	ts := "DATETIME"
	if s.dialect == DialectPostgres {
		ts = "TIMESTAMPTZ"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			rating INTEGER NOT NULL DEFAULT 1000,
			wins INTEGER NOT NULL DEFAULT 0,
			losses INTEGER NOT NULL DEFAULT 0,
			draws INTEGER NOT NULL DEFAULT 0,
			created_at ` + ts + ` NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS topics (
			id INTEGER PRIMARY KEY,
			topic_text TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS debates (
			id TEXT PRIMARY KEY,
			user_a TEXT NOT NULL,
			user_b TEXT NOT NULL,
			side_a TEXT NOT NULL,
			side_b TEXT NOT NULL,
			topic TEXT NOT NULL,
			max_turns INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			winner TEXT,
			reason TEXT,
			created_at ` + ts + ` NOT NULL,
			concluded_at ` + ts + `
		)`,
		`CREATE TABLE IF NOT EXISTS debate_logs (
			debate_id TEXT NOT NULL REFERENCES debates(id),
			turn_index INTEGER NOT NULL,
			author TEXT NOT NULL,
			side TEXT NOT NULL,
			content TEXT NOT NULL,
			skipped BOOLEAN NOT NULL DEFAULT FALSE,
			at ` + ts + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_debate_logs_debate ON debate_logs(debate_id, turn_index)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $1..$n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *SQLStore) CreateSession(ctx context.Context, rec *models.DebateRecord) (string, error) {
	id := rec.ID
	if id == "" {
		id = uuid.New().String()
	}
	status := rec.Status
	if status == "" {
		status = models.StatusActive
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO debates (id, user_a, user_b, side_a, side_b, topic, max_turns, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		id, rec.UserA, rec.UserB, string(rec.SideA), string(rec.SideB), rec.Topic, rec.MaxTurns, status, created.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert debate: %w", err)
	}
	for _, e := range rec.Log {
		if err := s.insertLog(ctx, tx, id, e); err != nil {
			return "", err
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit debate creation: %w", err)
	}
	return id, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) insertLog(ctx context.Context, ex execer, sessionID string, e models.LogEntry) error {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := ex.ExecContext(ctx, s.rebind(`
		INSERT INTO debate_logs (debate_id, turn_index, author, side, content, skipped, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		sessionID, e.TurnIndex, e.Author, string(e.Side), e.Content, e.Skipped, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}
	return nil
}

func (s *SQLStore) AppendLog(ctx context.Context, sessionID string, entry models.LogEntry) error {
	var exists int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM debates WHERE id = ?`), sessionID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to look up debate: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}
	return s.insertLog(ctx, s.db, sessionID, entry)
}

func (s *SQLStore) Finalize(ctx context.Context, sessionID string, outcome models.Outcome) error {
	var winner sql.NullString
	if outcome.Winner != "" {
		winner = sql.NullString{String: outcome.Winner, Valid: true}
	}
	res, err := s.exec(ctx, `
		UPDATE debates SET status = ?, winner = ?, reason = ?, concluded_at = ?
		WHERE id = ?`,
		statusFor(outcome), winner, outcome.Reason, time.Now().UTC(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize debate: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) GetDebate(ctx context.Context, sessionID string) (*models.DebateRecord, error) {
	var (
		rec         models.DebateRecord
		sideA       string
		sideB       string
		winner      sql.NullString
		reason      sql.NullString
		concludedAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, user_a, user_b, side_a, side_b, topic, max_turns, status, winner, reason, created_at, concluded_at
		FROM debates WHERE id = ?`), sessionID).Scan(
		&rec.ID, &rec.UserA, &rec.UserB, &sideA, &sideB, &rec.Topic, &rec.MaxTurns,
		&rec.Status, &winner, &reason, &rec.CreatedAt, &concludedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query debate: %w", err)
	}
	rec.SideA = models.Side(sideA)
	rec.SideB = models.Side(sideB)
	if reason.Valid {
		rec.Outcome = &models.Outcome{Winner: winner.String, Reason: reason.String}
	}
	if concludedAt.Valid {
		rec.ConcludedAt = &concludedAt.Time
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT turn_index, author, side, content, skipped, at
		FROM debate_logs WHERE debate_id = ? ORDER BY turn_index`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query debate log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	rec.Log = []models.LogEntry{}
	for rows.Next() {
		var e models.LogEntry
		var side string
		if err := rows.Scan(&e.TurnIndex, &e.Author, &side, &e.Content, &e.Skipped, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.Side = models.Side(side)
		rec.Log = append(rec.Log, e)
	}
	return &rec, rows.Err()
}

func (s *SQLStore) RandomTopic(ctx context.Context) (string, error) {
	var topic string
	err := s.db.QueryRowContext(ctx, `SELECT topic_text FROM topics ORDER BY RANDOM() LIMIT 1`).Scan(&topic)
	if errors.Is(err, sql.ErrNoRows) {
		return FallbackTopic, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to pick topic: %w", err)
	}
	return topic, nil
}

// SeedTopics inserts topics only when the table is empty.
func (s *SQLStore) SeedTopics(ctx context.Context, topics []string) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM topics`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count topics: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, t := range topics {
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO topics (id, topic_text) VALUES (?, ?)`), i+1, t); err != nil {
			return 0, fmt.Errorf("failed to insert topic: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit topics: %w", err)
	}
	return len(topics), nil
}

func (s *SQLStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, username, rating, wins, losses, draws, created_at
		FROM users WHERE id = ?`), userID).Scan(
		&u.ID, &u.Username, &u.Rating, &u.Wins, &u.Losses, &u.Draws, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

func (s *SQLStore) SaveUser(ctx context.Context, user *models.User) error {
	created := user.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.exec(ctx, `
		INSERT INTO users (id, username, rating, wins, losses, draws, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			rating = excluded.rating,
			wins = excluded.wins,
			losses = excluded.losses,
			draws = excluded.draws`,
		user.ID, user.Username, user.Rating, user.Wins, user.Losses, user.Draws, created.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close(context.Context) error {
	return s.db.Close()
}
