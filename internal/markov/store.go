// Package markov implements the deterministic, per-request-seeded
// second-order Markov chain HTML generator and its relational backing
// store.
package markov

import (
	"context"
	"database/sql"
	"errors"

	_ "github.com/lib/pq"

	"github.com/rhamenator/antiscrape/internal/apperr"
)

// SentinelID is the reserved id for the empty-sentinel word marking chain
// start and end.
const SentinelID = 1

// Transition is one row of the markov_sequences table: a candidate next
// word and how often it has been observed following (p1, p2).
type Transition struct {
	NextID int64
	Freq   int64
}

// Store is the relational backing store for the word and transition
// tables. Queries are stateless: any worker may serve any request.
type Store struct {
	db *sql.DB
}

// Open connects to the Postgres database at dsn and verifies connectivity.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperr.Configuration("markov.Open", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperr.StoreTransient("markov.Open", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Migrate creates the word and transition tables if they do not already
// exist, and reserves the empty-sentinel row. No migration library
// appears anywhere in the retrieved corpus, so this uses plain
// CREATE TABLE IF NOT EXISTS statements, the idiom the rest of this
// codebase already uses for schema bootstrap.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS markov_words (
			id   BIGSERIAL PRIMARY KEY,
			word TEXT UNIQUE NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS markov_sequences (
			p1      BIGINT NOT NULL,
			p2      BIGINT NOT NULL,
			next_id BIGINT NOT NULL,
			freq    BIGINT NOT NULL DEFAULT 1,
			PRIMARY KEY (p1, p2, next_id)
		)`,
		`INSERT INTO markov_words (id, word) VALUES (1, '') ON CONFLICT (id) DO NOTHING`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return apperr.StoreTransient("markov.Migrate", err)
		}
	}
	return nil
}

// WordID looks up the id for word, inserting it if absent.
func (s *Store) WordID(ctx context.Context, word string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO markov_words (word) VALUES ($1)
		 ON CONFLICT (word) DO UPDATE SET word = EXCLUDED.word
		 RETURNING id`, word).Scan(&id)
	if err != nil {
		return 0, apperr.StoreTransient("markov.WordID", err)
	}
	return id, nil
}

// Word returns the word for id, or "" if id is unknown.
func (s *Store) Word(ctx context.Context, id int64) (string, error) {
	var word string
	err := s.db.QueryRowContext(ctx, `SELECT word FROM markov_words WHERE id = $1`, id).Scan(&word)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", apperr.StoreTransient("markov.Word", err)
	}
	return word, nil
}

// Transitions returns every (next_id, freq) pair observed after (p1, p2),
// ordered by descending frequency. Ties are broken by the caller using its
// own per-request PRNG, never here.
func (s *Store) Transitions(ctx context.Context, p1, p2 int64) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT next_id, freq FROM markov_sequences WHERE p1 = $1 AND p2 = $2 ORDER BY freq DESC`,
		p1, p2)
	if err != nil {
		return nil, apperr.StoreTransient("markov.Transitions", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.NextID, &t.Freq); err != nil {
			return nil, apperr.StoreTransient("markov.Transitions", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Upsert increments the frequency of the (p1, p2) -> next transition,
// inserting it at freq=1 if new. Used by the bootstrap corpus loader.
func (s *Store) Upsert(ctx context.Context, p1, p2, next int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO markov_sequences (p1, p2, next_id, freq) VALUES ($1, $2, $3, 1)
		 ON CONFLICT (p1, p2, next_id) DO UPDATE SET freq = markov_sequences.freq + 1`,
		p1, p2, next)
	if err != nil {
		return apperr.StoreTransient("markov.Upsert", err)
	}
	return nil
}
