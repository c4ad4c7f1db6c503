package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/park285/turnledger/internal/domain"
	"github.com/park285/turnledger/internal/ledger"
)

func (s *Store) keyPlayer(id string) string     { return s.prefix + "player:" + id }
func (s *Store) keyHandle(handle string) string { return s.prefix + "player:handle:" + handle }
func (s *Store) keyPlayers() string             { return s.prefix + "players" }

func (s *Store) PlayerByID(ctx context.Context, id string) (*domain.Player, error) {
	raw, err := s.rdb.Get(ctx, s.keyPlayer(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ledger.ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}
	var p domain.Player
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) PlayerByHandle(ctx context.Context, handle string) (*domain.Player, error) {
	id, err := s.rdb.Get(ctx, s.keyHandle(handle)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ledger.ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.PlayerByID(ctx, id)
}

// FindPlayer tries id and handle keys first, then scans the directory for a
// case-insensitive display name or chat handle match.
func (s *Store) FindPlayer(ctx context.Context, ref string) (*domain.Player, error) {
	if ref == "" {
		return nil, ledger.ErrPlayerNotFound
	}
	if p, err := s.PlayerByID(ctx, ref); !errors.Is(err, ledger.ErrPlayerNotFound) {
		return p, err
	}
	if p, err := s.PlayerByHandle(ctx, ref); !errors.Is(err, ledger.ErrPlayerNotFound) {
		return p, err
	}
	ids, err := s.rdb.SMembers(ctx, s.keyPlayers()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	for _, id := range ids {
		p, err := s.PlayerByID(ctx, id)
		if errors.Is(err, ledger.ErrPlayerNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(p.DisplayName, ref) || (p.ChatHandle != "" && strings.EqualFold(p.ChatHandle, ref)) {
			return p, nil
		}
	}
	return nil, ledger.ErrPlayerNotFound
}

// CreatePlayer claims the handle with SETNX before writing the document.
func (s *Store) CreatePlayer(ctx context.Context, p *domain.Player) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, s.keyHandle(p.Handle), p.ID, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ledger.ErrPlayerExists
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.keyPlayer(p.ID), raw, 0)
		pipe.SAdd(ctx, s.keyPlayers(), p.ID)
		return nil
	})
	return err
}

func (s *Store) UpdatePlayer(ctx context.Context, p *domain.Player) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetXX(ctx, s.keyPlayer(p.ID), raw, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ledger.ErrPlayerNotFound
	}
	return nil
}
