package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/park285/turnledger/internal/domain"
	"github.com/park285/turnledger/internal/ledger"
)

// Store keeps documents in per-model tables with JSONB data columns.
// The pool is pinned to one connection, so every transaction is serialized.
type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

// Open creates a SQLite connection via libSQL with WAL journal mode and a 5 s busy timeout.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database dir: %w", err)
			}
		}
	}
	db, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// libSQL rejects Exec for PRAGMAs that return rows; drain them through Query instead.
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		rows, err := db.QueryContext(ctx, p)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("executing %s: %w", p, err)
		}
		rows.Close()
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func New(ctx context.Context, db *sql.DB) (*Store, error) {
	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS games (
			name      TEXT PRIMARY KEY,
			completed INTEGER NOT NULL DEFAULT 0,
			version   INTEGER NOT NULL,
			data      JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS membership (
			kind TEXT PRIMARY KEY,
			data JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS players (
			id           TEXT PRIMARY KEY,
			handle       TEXT UNIQUE NOT NULL,
			display_name TEXT NOT NULL,
			chat_handle  TEXT NOT NULL DEFAULT '',
			data         JSONB NOT NULL
		)`,
	} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return nil, fmt.Errorf("creating table: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) FindGame(ctx context.Context, name string) (*domain.Game, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT json(data) FROM games WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeGame(data)
}

func (s *Store) InsertGame(ctx context.Context, g *domain.Game) error {
	doc := g.Clone()
	doc.Version = 1
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO games (name, completed, version, data) VALUES (?, ?, ?, jsonb(?))
		 ON CONFLICT(name) DO NOTHING`,
		doc.Name, doc.Completed, doc.Version, string(data),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrGameExists
	}
	g.Version = 1
	return nil
}

func (s *Store) ReplaceGame(ctx context.Context, g *domain.Game) error {
	doc := g.Clone()
	doc.Version = g.Version + 1
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE games SET completed = ?, version = ?, data = jsonb(?) WHERE name = ? AND version = ?`,
		doc.Completed, doc.Version, string(data), doc.Name, g.Version,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM games WHERE name = ?`, doc.Name).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.ErrGameNotFound
		}
		if err != nil {
			return err
		}
		return ledger.ErrVersionConflict
	}
	g.Version = doc.Version
	return nil
}

func (s *Store) DeleteGame(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM games WHERE name = ?`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrGameNotFound
	}
	return nil
}

func (s *Store) CountGames(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM games`).Scan(&n)
	return n, err
}

func (s *Store) FindGames(ctx context.Context, names []string) ([]*domain.Game, error) {
	if len(names) == 0 {
		return []*domain.Game{}, nil
	}
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	q := `SELECT json(data) FROM games WHERE name IN (?` + strings.Repeat(", ?", len(names)-1) + `) ORDER BY name`
	return s.queryGames(ctx, q, args...)
}

func (s *Store) AllGames(ctx context.Context) ([]*domain.Game, error) {
	return s.queryGames(ctx, `SELECT json(data) FROM games ORDER BY name`)
}

func (s *Store) queryGames(ctx context.Context, q string, args ...any) ([]*domain.Game, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*domain.Game{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		g, err := decodeGame(data)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) LoadMembership(ctx context.Context, kind domain.MembershipKind) ([]string, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT json(data) FROM membership WHERE kind = ?`, string(kind)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeIDs(data)
}

// ModifyMembership loads the singleton, applies fn, and saves it in a transaction.
func (s *Store) ModifyMembership(ctx context.Context, kind domain.MembershipKind, fn func([]string) []string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ids := []string{}
	var data string
	err = tx.QueryRowContext(ctx, `SELECT json(data) FROM membership WHERE kind = ?`, string(kind)).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	default:
		if ids, err = decodeIDs(data); err != nil {
			return err
		}
	}

	next := fn(ids)
	if next == nil {
		next = []string{}
	}
	out, err := json.Marshal(next)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO membership (kind, data) VALUES (?, jsonb(?))
		 ON CONFLICT(kind) DO UPDATE SET data = excluded.data`,
		string(kind), string(out),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) PlayerByID(ctx context.Context, id string) (*domain.Player, error) {
	return s.queryPlayer(ctx, `SELECT json(data) FROM players WHERE id = ?`, id)
}

func (s *Store) PlayerByHandle(ctx context.Context, handle string) (*domain.Player, error) {
	return s.queryPlayer(ctx, `SELECT json(data) FROM players WHERE handle = ?`, handle)
}

// FindPlayer prefers an exact id, then an exact handle, then a case-insensitive name match.
func (s *Store) FindPlayer(ctx context.Context, ref string) (*domain.Player, error) {
	return s.queryPlayer(ctx,
		`SELECT json(data) FROM players
		 WHERE id = ? OR handle = ? OR lower(display_name) = lower(?)
		    OR (chat_handle <> '' AND lower(chat_handle) = lower(?))
		 ORDER BY (id = ?) DESC, (handle = ?) DESC, id
		 LIMIT 1`, ref, ref, ref, ref, ref, ref)
}

func (s *Store) CreatePlayer(ctx context.Context, p *domain.Player) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO players (id, handle, display_name, chat_handle, data) VALUES (?, ?, ?, ?, jsonb(?))
		 ON CONFLICT DO NOTHING`,
		p.ID, p.Handle, p.DisplayName, p.ChatHandle, string(data),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrPlayerExists
	}
	return nil
}

func (s *Store) UpdatePlayer(ctx context.Context, p *domain.Player) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE players SET display_name = ?, chat_handle = ?, data = jsonb(?) WHERE id = ?`,
		p.DisplayName, p.ChatHandle, string(data), p.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrPlayerNotFound
	}
	return nil
}

func (s *Store) queryPlayer(ctx context.Context, q string, args ...any) (*domain.Player, error) {
	var data string
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}
	var p domain.Player
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func decodeGame(data string) (*domain.Game, error) {
	var g domain.Game
	if err := json.Unmarshal([]byte(data), &g); err != nil {
		return nil, fmt.Errorf("decode game: %w", err)
	}
	return &g, nil
}

func decodeIDs(data string) ([]string, error) {
	var ids []string
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("decode membership: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
