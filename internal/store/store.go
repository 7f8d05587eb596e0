// Package store persists collected keywords and generated poems in a
// local SQLite database.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stellarlinkco/chainverse/internal/archive"
	"github.com/stellarlinkco/chainverse/internal/derive"
)

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Poem is a stored day's poem with the keywords that produced it.
type Poem struct {
	Date        string
	Content     string
	Model       string
	Keywords    []archive.KeywordEntry
	PostURI     string
	GeneratedAt string
}

// Today returns the current UTC date key.
func Today() string {
	return time.Now().UTC().Format("2006-01-02")
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS keywords (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			word TEXT NOT NULL,
			slot INTEGER NOT NULL,
			blockhash TEXT NOT NULL,
			block_time INTEGER,
			word_index INTEGER NOT NULL,
			source TEXT NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(slot, source)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_keywords_created ON keywords(created_at)`,
		`CREATE TABLE IF NOT EXISTS poems (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL UNIQUE,
			content TEXT NOT NULL,
			model TEXT NOT NULL,
			keywords_json TEXT NOT NULL,
			post_uri TEXT,
			generated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InsertKeywords stores keywords collected right now. A keyword whose
// (slot, source) pair is already present is silently skipped. Returns how
// many rows were actually inserted.
func (s *Store) InsertKeywords(kws []derive.Keyword) (int, error) {
	return s.insertKeywords(time.Now().UTC().Format("2006-01-02 15:04:05"), kws)
}

// InsertKeywordsForDate stores keywords under a past date, as backfill
// does. They are timestamped at noon of that day.
func (s *Store) InsertKeywordsForDate(date string, kws []derive.Keyword) (int, error) {
	return s.insertKeywords(date+" 12:00:00", kws)
}

func (s *Store) insertKeywords(createdAt string, kws []derive.Keyword) (int, error) {
	inserted := 0
	for _, kw := range kws {
		var blockTime any
		if kw.BlockTime != nil {
			blockTime = *kw.BlockTime
		}
		res, err := s.db.Exec(
			`INSERT INTO keywords (word, slot, blockhash, block_time, word_index, source, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(slot, source) DO NOTHING`,
			kw.Word, int64(kw.Slot), kw.Blockhash, blockTime, kw.WordIndex, string(kw.Source), createdAt)
		if err != nil {
			return inserted, fmt.Errorf("insert keyword: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

// KeywordsForDate returns the keywords collected on a date, in insertion
// order.
func (s *Store) KeywordsForDate(date string) ([]derive.Keyword, error) {
	rows, err := s.db.Query(
		`SELECT word, slot, blockhash, block_time, word_index, source
		 FROM keywords WHERE DATE(created_at) = ? ORDER BY id`, date)
	if err != nil {
		return nil, fmt.Errorf("query keywords: %w", err)
	}
	defer rows.Close()

	var out []derive.Keyword
	for rows.Next() {
		var (
			kw        derive.Keyword
			slot      int64
			blockTime sql.NullInt64
			source    string
		)
		if err := rows.Scan(&kw.Word, &slot, &kw.Blockhash, &blockTime, &kw.WordIndex, &source); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		kw.Slot = uint64(slot)
		if blockTime.Valid {
			v := blockTime.Int64
			kw.BlockTime = &v
		}
		kw.Source = derive.Source(source)
		out = append(out, kw)
	}
	return out, rows.Err()
}

// WordsForDate returns the set of words already collected on a date, used
// to seed the collector's dedup set on resumed runs.
func (s *Store) WordsForDate(date string) (map[string]bool, error) {
	rows, err := s.db.Query(`SELECT word FROM keywords WHERE DATE(created_at) = ?`, date)
	if err != nil {
		return nil, fmt.Errorf("query words: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var word string
		if err := rows.Scan(&word); err != nil {
			return nil, fmt.Errorf("scan word: %w", err)
		}
		seen[word] = true
	}
	return seen, rows.Err()
}

// CountForDate returns how many keywords a date has collected.
func (s *Store) CountForDate(date string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM keywords WHERE DATE(created_at) = ?`, date).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count keywords: %w", err)
	}
	return n, nil
}

// UpsertPoem stores a poem for its date, replacing any earlier poem for
// the same date. The post URI is reset and must be set again after the
// new poem is published.
func (s *Store) UpsertPoem(p Poem) error {
	kwJSON, err := json.Marshal(p.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO poems (date, content, model, keywords_json, post_uri, generated_at)
		 VALUES (?, ?, ?, ?, NULL, ?)
		 ON CONFLICT(date) DO UPDATE SET
			content = excluded.content,
			model = excluded.model,
			keywords_json = excluded.keywords_json,
			post_uri = excluded.post_uri,
			generated_at = excluded.generated_at`,
		p.Date, p.Content, p.Model, string(kwJSON), p.GeneratedAt)
	if err != nil {
		return fmt.Errorf("upsert poem: %w", err)
	}
	return nil
}

// SetPostURI records where a date's poem was published.
func (s *Store) SetPostURI(date, uri string) error {
	_, err := s.db.Exec(`UPDATE poems SET post_uri = ? WHERE date = ?`, uri, date)
	if err != nil {
		return fmt.Errorf("set post uri: %w", err)
	}
	return nil
}

// PoemByDate returns the poem stored for a date, or nil when none exists.
func (s *Store) PoemByDate(date string) (*Poem, error) {
	row := s.db.QueryRow(
		`SELECT date, content, model, keywords_json, COALESCE(post_uri, ''), generated_at
		 FROM poems WHERE date = ?`, date)

	var p Poem
	var kwJSON string
	err := row.Scan(&p.Date, &p.Content, &p.Model, &kwJSON, &p.PostURI, &p.GeneratedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query poem: %w", err)
	}
	if err := json.Unmarshal([]byte(kwJSON), &p.Keywords); err != nil {
		return nil, fmt.Errorf("parse stored keywords: %w", err)
	}
	return &p, nil
}

// LatestPoems returns up to limit poems, newest date first.
func (s *Store) LatestPoems(limit int) ([]Poem, error) {
	rows, err := s.db.Query(
		`SELECT date, content, model, keywords_json, COALESCE(post_uri, ''), generated_at
		 FROM poems ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query poems: %w", err)
	}
	defer rows.Close()

	var out []Poem
	for rows.Next() {
		var p Poem
		var kwJSON string
		if err := rows.Scan(&p.Date, &p.Content, &p.Model, &kwJSON, &p.PostURI, &p.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scan poem: %w", err)
		}
		if err := json.Unmarshal([]byte(kwJSON), &p.Keywords); err != nil {
			return nil, fmt.Errorf("parse stored keywords: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// KeywordCount returns the total number of stored keywords.
func (s *Store) KeywordCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM keywords`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count keywords: %w", err)
	}
	return n, nil
}

// PoemCount returns the total number of stored poems.
func (s *Store) PoemCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM poems`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count poems: %w", err)
	}
	return n, nil
}
