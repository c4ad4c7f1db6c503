package redisstore

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/turnledger/internal/domain"
	"github.com/park285/turnledger/internal/ledger"
	"github.com/park285/turnledger/internal/obslog"
)

// maxWatchRetries bounds WATCH/EXEC restarts on the membership singletons.
const maxWatchRetries = 32

// Store keeps every document as a JSON string value. Game and membership writes
// are guarded by WATCH so a concurrent writer aborts the EXEC instead of being overwritten.
type Store struct {
	rdb    *redis.Client
	prefix string
}

var _ ledger.Store = (*Store)(nil)

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb, prefix: "turnledger:"}
}

// Open connects using a redis:// or rediss:// URL and pings once.
func Open(ctx context.Context, redisURL string) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb), nil
}

func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) keyGame(name string) string { return s.prefix + "game:" + name }
func (s *Store) keyGames() string           { return s.prefix + "games" }
func (s *Store) keyMembership(kind domain.MembershipKind) string {
	return s.prefix + "membership:" + string(kind)
}

func (s *Store) FindGame(ctx context.Context, name string) (*domain.Game, error) {
	raw, err := s.rdb.Get(ctx, s.keyGame(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ledger.ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeGame(raw)
}

func (s *Store) InsertGame(ctx context.Context, g *domain.Game) error {
	doc := g.Clone()
	doc.Version = 1
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	key := s.keyGame(g.Name)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ledger.ErrGameExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			pipe.SAdd(ctx, s.keyGames(), g.Name)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ledger.ErrGameExists
	}
	if err != nil {
		return err
	}
	g.Version = 1
	return nil
}

func (s *Store) ReplaceGame(ctx context.Context, g *domain.Game) error {
	doc := g.Clone()
	doc.Version = g.Version + 1
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	key := s.keyGame(g.Name)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		curRaw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ledger.ErrGameNotFound
		}
		if err != nil {
			return err
		}
		cur, err := decodeGame(curRaw)
		if err != nil {
			return err
		}
		if cur.Version != g.Version {
			return ledger.ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ledger.ErrVersionConflict
	}
	if err != nil {
		return err
	}
	g.Version = doc.Version
	return nil
}

func (s *Store) DeleteGame(ctx context.Context, name string) error {
	var del *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.keyGame(name))
		pipe.SRem(ctx, s.keyGames(), name)
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return ledger.ErrGameNotFound
	}
	return nil
}

func (s *Store) CountGames(ctx context.Context) (int, error) {
	n, err := s.rdb.SCard(ctx, s.keyGames()).Result()
	return int(n), err
}

func (s *Store) FindGames(ctx context.Context, names []string) ([]*domain.Game, error) {
	if len(names) == 0 {
		return []*domain.Game{}, nil
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = s.keyGame(n)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Game, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		g, err := decodeGame([]byte(str))
		if err != nil {
			obslog.L().Warn("redis_game_decode_error", zap.String("game", names[i]), zap.Error(err))
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (s *Store) AllGames(ctx context.Context) ([]*domain.Game, error) {
	names, err := s.rdb.SMembers(ctx, s.keyGames()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return s.FindGames(ctx, names)
}

func (s *Store) LoadMembership(ctx context.Context, kind domain.MembershipKind) ([]string, error) {
	raw, err := s.rdb.Get(ctx, s.keyMembership(kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeIDs(raw)
}

// ModifyMembership re-runs fn from a fresh read whenever another writer touched the singleton.
func (s *Store) ModifyMembership(ctx context.Context, kind domain.MembershipKind, fn func([]string) []string) error {
	key := s.keyMembership(kind)
	txf := func(tx *redis.Tx) error {
		ids := []string{}
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if ids, err = decodeIDs(raw); err != nil {
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
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}
	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * time.Millisecond):
		}
	}
	return fmt.Errorf("membership %s: %w", kind, ledger.ErrConcurrentUpdate)
}

func decodeGame(raw []byte) (*domain.Game, error) {
	var g domain.Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode game: %w", err)
	}
	return &g, nil
}

func decodeIDs(raw []byte) ([]string, error) {
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode membership: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	opts := &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}
	if u.Scheme == "rediss" {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: u.Hostname()}
	}
	return opts, nil
}
