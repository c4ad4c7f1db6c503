package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/turnledger/internal/domain"
)

// DeleteGame removes the record, then strips its name from both lists.
// ErrGameNotFound when absent.
func (l *Ledger) DeleteGame(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	g, err := l.store.FindGame(ctx, name)
	if err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}
	if err := l.store.DeleteGame(ctx, name); err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}
	if err := l.index.Remove(ctx, name); err != nil {
		l.reconcileNeeded("remove", name, err)
	}
	l.log.Info("game_delete", zap.String("game", name), zap.Bool("completed", g.Completed))
	return nil
}

// CompleteGame flips the completed flag and moves the name to the completed list.
// Completing an already completed game only re-asserts its membership.
func (l *Ledger) CompleteGame(ctx context.Context, name string) (*domain.Game, error) {
	g, err := l.updateGame(ctx, name, func(g *domain.Game) bool {
		if g.Completed {
			return false
		}
		g.Completed = true
		return true
	})
	if err != nil {
		return nil, err
	}
	if err := l.index.MoveToCompleted(ctx, g.Name); err != nil {
		l.reconcileNeeded("move_completed", g.Name, err)
	}
	l.log.Info("game_complete", zap.String("game", g.Name))
	return g, nil
}

// SetWinner records the winner independently of completion. A winner that
// resolves in the player directory is stored by id, anything else verbatim.
func (l *Ledger) SetWinner(ctx context.Context, name, winner string) (*domain.Game, error) {
	winner = strings.TrimSpace(winner)
	if winner == "" {
		return nil, fmt.Errorf("%w: winner is required", ErrInvalidArgument)
	}
	if p, err := l.store.FindPlayer(ctx, winner); err == nil {
		winner = p.ID
	} else if !errors.Is(err, ErrPlayerNotFound) {
		return nil, fmt.Errorf("lookup winner %q: %w", winner, err)
	}
	g, err := l.updateGame(ctx, name, func(g *domain.Game) bool {
		if g.Winner == winner {
			return false
		}
		g.Winner = winner
		return true
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("game_winner", zap.String("game", g.Name), zap.String("winner", winner))
	return g, nil
}

// updateGame applies mutate under the version check, reloading on conflict.
// mutate reports whether it changed anything; unchanged records are not written.
func (l *Ledger) updateGame(ctx context.Context, name string, mutate func(*domain.Game) bool) (*domain.Game, error) {
	name = strings.TrimSpace(name)
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		cur, err := l.store.FindGame(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("game %q: %w", name, err)
		}
		next := cur.Clone()
		if !mutate(next) {
			return cur, nil
		}
		err = l.store.ReplaceGame(ctx, next)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return nil, fmt.Errorf("save game %q: %w", name, err)
		}
	}
	return nil, fmt.Errorf("update %q: %w", name, ErrConcurrentUpdate)
}

// ReconcileReport lists what Reconcile changed in the membership lists.
type ReconcileReport struct {
	Current   int
	Completed int
	Added     []string
	Dropped   []string
}

// Changed reports whether the lists differed from the records.
func (r *ReconcileReport) Changed() bool { return len(r.Added) > 0 || len(r.Dropped) > 0 }

// Reconcile rebuilds both membership lists from the records' completed flags.
// Names already listed keep their position; missing ones are appended by creation time.
func (l *Ledger) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	games, err := l.store.AllGames(ctx)
	if err != nil {
		return nil, fmt.Errorf("load games: %w", err)
	}
	sort.SliceStable(games, func(i, j int) bool {
		if !games[i].CreatedAt.Equal(games[j].CreatedAt) {
			return games[i].CreatedAt.Before(games[j].CreatedAt)
		}
		return games[i].Name < games[j].Name
	})

	oldCurrent, err := l.index.Members(ctx, domain.MembershipCurrent)
	if err != nil {
		return nil, err
	}
	oldCompleted, err := l.index.Members(ctx, domain.MembershipCompleted)
	if err != nil {
		return nil, err
	}

	completedByName := make(map[string]bool, len(games))
	for _, g := range games {
		completedByName[g.Name] = g.Completed
	}

	report := &ReconcileReport{}
	rebuild := func(old []string, wantCompleted bool, label string) []string {
		out := make([]string, 0, len(old))
		for _, name := range old {
			done, ok := completedByName[name]
			if !ok || done != wantCompleted || contains(out, name) {
				report.Dropped = append(report.Dropped, label+":"+name)
				continue
			}
			out = append(out, name)
		}
		for _, g := range games {
			if g.Completed == wantCompleted && !contains(out, g.Name) {
				out = append(out, g.Name)
				report.Added = append(report.Added, label+":"+g.Name)
			}
		}
		return out
	}
	current := rebuild(oldCurrent, false, string(domain.MembershipCurrent))
	completed := rebuild(oldCompleted, true, string(domain.MembershipCompleted))

	if report.Changed() {
		if err := l.index.Rebuild(ctx, current, completed); err != nil {
			return nil, err
		}
	}
	report.Current = len(current)
	report.Completed = len(completed)
	l.log.Info("membership_reconcile",
		zap.Int("current", report.Current),
		zap.Int("completed", report.Completed),
		zap.Strings("added", report.Added),
		zap.Strings("dropped", report.Dropped),
	)
	return report, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrGameNotFound) || errors.Is(err, ErrPlayerNotFound)
}
