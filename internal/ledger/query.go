package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/park285/turnledger/internal/domain"
)

// Counts is the total record cardinality next to the two membership sizes.
type Counts struct {
	Total     int
	Current   int
	Completed int
}

// Consistent reports whether the membership lists account for every record.
func (c Counts) Consistent() bool { return c.Current+c.Completed == c.Total }

// ListCurrent returns games in the current list, oldest pending turn first.
// A non-empty player narrows the result to games waiting on that player;
// ErrPlayerNotFound when it resolves to nobody.
func (l *Ledger) ListCurrent(ctx context.Context, player string) ([]*domain.Game, error) {
	var want string
	if ref := strings.TrimSpace(player); ref != "" {
		p, err := l.FindPlayer(ctx, ref)
		if err != nil {
			return nil, err
		}
		want = p.ID
	}
	games, err := l.listMembers(ctx, domain.MembershipCurrent)
	if err != nil {
		return nil, err
	}
	if want == "" {
		return games, nil
	}
	out := games[:0]
	for _, g := range games {
		if g.NextPlayerID == want {
			out = append(out, g)
		}
	}
	return out, nil
}

// ListCompleted returns games in the completed list, ordered like ListCurrent.
func (l *Ledger) ListCompleted(ctx context.Context) ([]*domain.Game, error) {
	return l.listMembers(ctx, domain.MembershipCompleted)
}

func (l *Ledger) listMembers(ctx context.Context, kind domain.MembershipKind) ([]*domain.Game, error) {
	names, err := l.index.Members(ctx, kind)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return []*domain.Game{}, nil
	}
	games, err := l.store.FindGames(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("load %s games: %w", kind, err)
	}
	sortByLastTurn(games)
	return games, nil
}

func (l *Ledger) Counts(ctx context.Context) (Counts, error) {
	total, err := l.store.CountGames(ctx)
	if err != nil {
		return Counts{}, fmt.Errorf("count games: %w", err)
	}
	current, err := l.index.Members(ctx, domain.MembershipCurrent)
	if err != nil {
		return Counts{}, err
	}
	completed, err := l.index.Members(ctx, domain.MembershipCompleted)
	if err != nil {
		return Counts{}, err
	}
	return Counts{Total: total, Current: len(current), Completed: len(completed)}, nil
}

// Game returns one record; ErrGameNotFound when absent.
func (l *Ledger) Game(ctx context.Context, name string) (*domain.Game, error) {
	g, err := l.store.FindGame(ctx, strings.TrimSpace(name))
	if err != nil {
		return nil, fmt.Errorf("game %q: %w", name, err)
	}
	return g, nil
}

// FindPlayer resolves an id, handle, display name or chat handle.
func (l *Ledger) FindPlayer(ctx context.Context, ref string) (*domain.Player, error) {
	p, err := l.store.FindPlayer(ctx, strings.TrimSpace(ref))
	if err != nil {
		return nil, fmt.Errorf("player %q: %w", ref, err)
	}
	return p, nil
}

// Players loads directory entries for ids; unknown ids are left out of the map.
func (l *Ledger) Players(ctx context.Context, ids []string) (map[string]*domain.Player, error) {
	out := make(map[string]*domain.Player, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := out[id]; ok {
			continue
		}
		p, err := l.store.PlayerByID(ctx, id)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("load player %q: %w", id, err)
		}
		out[id] = p
	}
	return out, nil
}

// Rename updates how a player is addressed in chat and listings.
func (l *Ledger) Rename(ctx context.Context, ref, displayName, chatHandle string) (*domain.Player, error) {
	p, err := l.FindPlayer(ctx, ref)
	if err != nil {
		return nil, err
	}
	if s := strings.TrimSpace(displayName); s != "" {
		p.DisplayName = s
	}
	p.ChatHandle = strings.TrimSpace(chatHandle)
	if err := l.store.UpdatePlayer(ctx, p); err != nil {
		return nil, fmt.Errorf("update player %q: %w", p.Handle, err)
	}
	return p, nil
}

func sortByLastTurn(games []*domain.Game) {
	sort.SliceStable(games, func(i, j int) bool {
		a, b := games[i], games[j]
		if !a.LastTurnAt.Equal(b.LastTurnAt) {
			return a.LastTurnAt.Before(b.LastTurnAt)
		}
		return a.Name < b.Name
	})
}
