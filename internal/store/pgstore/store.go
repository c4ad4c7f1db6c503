package pgstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/park285/turnledger/internal/domain"
	"github.com/park285/turnledger/internal/ledger"
)

//go:embed schema.sql
var schema string

// Store keeps games, membership singletons and players as JSONB documents.
// Game writes are version-checked in the WHERE clause; membership writes lock the singleton row.
type Store struct {
	db *sql.DB
}

var _ ledger.Store = (*Store)(nil)

func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	s, err := New(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New applies the schema to an already opened database.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("creating tables: %w", err)
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
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM turn_games WHERE name = $1`, name).Scan(&data)
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
		`INSERT INTO turn_games (name, completed, version, data) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name) DO NOTHING`,
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
		`UPDATE turn_games SET completed = $1, version = $2, data = $3
		 WHERE name = $4 AND version = $5`,
		doc.Completed, doc.Version, string(data), doc.Name, g.Version,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM turn_games WHERE name = $1)`, doc.Name).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ledger.ErrGameNotFound
		}
		return ledger.ErrVersionConflict
	}
	g.Version = doc.Version
	return nil
}

func (s *Store) DeleteGame(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM turn_games WHERE name = $1`, name)
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
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM turn_games`).Scan(&n)
	return n, err
}

func (s *Store) FindGames(ctx context.Context, names []string) ([]*domain.Game, error) {
	if len(names) == 0 {
		return []*domain.Game{}, nil
	}
	return s.queryGames(ctx, `SELECT data FROM turn_games WHERE name = ANY($1) ORDER BY name`, pq.Array(names))
}

func (s *Store) AllGames(ctx context.Context) ([]*domain.Game, error) {
	return s.queryGames(ctx, `SELECT data FROM turn_games ORDER BY name`)
}

func (s *Store) queryGames(ctx context.Context, q string, args ...any) ([]*domain.Game, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*domain.Game{}
	for rows.Next() {
		var data []byte
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
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT ids FROM turn_membership WHERE kind = $1`, string(kind)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeIDs(data)
}

// ModifyMembership creates the singleton row if needed, then holds its row lock for the read-modify-write.
func (s *Store) ModifyMembership(ctx context.Context, kind domain.MembershipKind, fn func([]string) []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turn_membership (kind, ids) VALUES ($1, '[]'::jsonb) ON CONFLICT (kind) DO NOTHING`,
		string(kind),
	); err != nil {
		return err
	}
	var data []byte
	if err := tx.QueryRowContext(ctx,
		`SELECT ids FROM turn_membership WHERE kind = $1 FOR UPDATE`, string(kind),
	).Scan(&data); err != nil {
		return err
	}
	ids, err := decodeIDs(data)
	if err != nil {
		return err
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
		`UPDATE turn_membership SET ids = $1 WHERE kind = $2`, string(out), string(kind),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) PlayerByID(ctx context.Context, id string) (*domain.Player, error) {
	return s.queryPlayer(ctx, `SELECT data FROM turn_players WHERE id = $1`, id)
}

func (s *Store) PlayerByHandle(ctx context.Context, handle string) (*domain.Player, error) {
	return s.queryPlayer(ctx, `SELECT data FROM turn_players WHERE handle = $1`, handle)
}

// FindPlayer prefers an exact id, then an exact handle, then a case-insensitive name match.
func (s *Store) FindPlayer(ctx context.Context, ref string) (*domain.Player, error) {
	return s.queryPlayer(ctx,
		`SELECT data FROM turn_players
		 WHERE id = $1 OR handle = $1 OR lower(display_name) = lower($1)
		    OR (chat_handle <> '' AND lower(chat_handle) = lower($1))
		 ORDER BY (id = $1) DESC, (handle = $1) DESC, id
		 LIMIT 1`, ref)
}

func (s *Store) CreatePlayer(ctx context.Context, p *domain.Player) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO turn_players (id, handle, display_name, chat_handle, data) VALUES ($1, $2, $3, $4, $5)
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
		`UPDATE turn_players SET display_name = $1, chat_handle = $2, data = $3 WHERE id = $4`,
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

func (s *Store) queryPlayer(ctx context.Context, q string, arg string) (*domain.Player, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, q, arg).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}
	var p domain.Player
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func decodeGame(data []byte) (*domain.Game, error) {
	var g domain.Game
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode game: %w", err)
	}
	return &g, nil
}

func decodeIDs(data []byte) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode membership: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
