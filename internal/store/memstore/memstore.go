package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/turnledger/internal/domain"
	"github.com/park285/turnledger/internal/ledger"
)

// Store is a development-only in-memory ledger.Store used when no database is configured.
// Every read and write copies, so callers never alias stored state.
type Store struct {
	mu sync.RWMutex

	games      map[string]*domain.Game
	membership map[domain.MembershipKind][]string

	playersByID     map[string]*domain.Player
	playersByHandle map[string]string // handle -> id
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		games:           make(map[string]*domain.Game),
		membership:      make(map[domain.MembershipKind][]string),
		playersByID:     make(map[string]*domain.Player),
		playersByHandle: make(map[string]string),
	}
}

func (s *Store) FindGame(ctx context.Context, name string) (*domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.games[name]
	if !ok {
		return nil, ledger.ErrGameNotFound
	}
	return g.Clone(), nil
}

func (s *Store) InsertGame(ctx context.Context, g *domain.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.games[g.Name]; exists {
		return ledger.ErrGameExists
	}
	g.Version = 1
	s.games[g.Name] = g.Clone()
	return nil
}

func (s *Store) ReplaceGame(ctx context.Context, g *domain.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.games[g.Name]
	if !ok {
		return ledger.ErrGameNotFound
	}
	if cur.Version != g.Version {
		return ledger.ErrVersionConflict
	}
	g.Version++
	s.games[g.Name] = g.Clone()
	return nil
}

func (s *Store) DeleteGame(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[name]; !ok {
		return ledger.ErrGameNotFound
	}
	delete(s.games, name)
	return nil
}

func (s *Store) CountGames(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.games), nil
}

func (s *Store) FindGames(ctx context.Context, names []string) ([]*domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Game, 0, len(names))
	for _, n := range names {
		if g, ok := s.games[n]; ok {
			out = append(out, g.Clone())
		}
	}
	return out, nil
}

func (s *Store) AllGames(ctx context.Context) ([]*domain.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Game, 0, len(s.games))
	for _, g := range s.games {
		out = append(out, g.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) LoadMembership(ctx context.Context, kind domain.MembershipKind) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.membership[kind]...), nil
}

func (s *Store) ModifyMembership(ctx context.Context, kind domain.MembershipKind, fn func([]string) []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := append([]string{}, s.membership[kind]...)
	s.membership[kind] = append([]string{}, fn(cur)...)
	return nil
}

func (s *Store) PlayerByHandle(ctx context.Context, handle string) (*domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.playersByHandle[handle]
	if !ok {
		return nil, ledger.ErrPlayerNotFound
	}
	p := *s.playersByID[id]
	return &p, nil
}

func (s *Store) PlayerByID(ctx context.Context, id string) (*domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.playersByID[id]
	if !ok {
		return nil, ledger.ErrPlayerNotFound
	}
	cp := *p
	return &cp, nil
}

// FindPlayer matches id and handle exactly, then display name and chat handle case-insensitively.
func (s *Store) FindPlayer(ctx context.Context, ref string) (*domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.playersByID[ref]; ok {
		cp := *p
		return &cp, nil
	}
	if id, ok := s.playersByHandle[ref]; ok {
		cp := *s.playersByID[id]
		return &cp, nil
	}
	ids := make([]string, 0, len(s.playersByID))
	for id := range s.playersByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p := s.playersByID[id]
		if strings.EqualFold(p.DisplayName, ref) || (p.ChatHandle != "" && strings.EqualFold(p.ChatHandle, ref)) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ledger.ErrPlayerNotFound
}

func (s *Store) CreatePlayer(ctx context.Context, p *domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.playersByHandle[p.Handle]; exists {
		return ledger.ErrPlayerExists
	}
	cp := *p
	s.playersByID[p.ID] = &cp
	s.playersByHandle[p.Handle] = p.ID
	return nil
}

func (s *Store) UpdatePlayer(ctx context.Context, p *domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.playersByID[p.ID]; !ok {
		return ledger.ErrPlayerNotFound
	}
	cp := *p
	s.playersByID[p.ID] = &cp
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }
