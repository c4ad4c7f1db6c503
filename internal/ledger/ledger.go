package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/turnledger/internal/domain"
	"github.com/park285/turnledger/internal/obslog"
	"github.com/park285/turnledger/internal/timefmt"
)

// DefaultMaxAttempts bounds the optimistic retry loop around record writes.
const DefaultMaxAttempts = 5

type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeAdvanced  Outcome = "advanced"
	OutcomeDuplicate Outcome = "duplicate"
)

// Source names the notifier integration an event came from.
type Source string

const (
	SourcePlayByCloud Source = "webhook"
	SourcePYDT        Source = "pydt"
)

// TurnEvent is one inbound "turn taken" notification.
type TurnEvent struct {
	Game   string
	Handle string
	Turn   int
	At     time.Time
	Source Source
	// Only used to format the chat message.
	Civilization string
	Leader       string
}

type IngestResult struct {
	Outcome Outcome
	Game    *domain.Game
	Player  *domain.Player
}

// TurnNotice is handed to the Notifier after a created or advanced turn is committed.
type TurnNotice struct {
	Outcome Outcome
	Game    *domain.Game
	Player  *domain.Player
	Event   TurnEvent
}

// Notifier delivers turn notices. Implementations own their timeout and must not return errors.
type Notifier interface {
	TurnTaken(ctx context.Context, n TurnNotice)
}

type nopNotifier struct{}

func (nopNotifier) TurnTaken(context.Context, TurnNotice) {}

type Option func(*Ledger)

func WithNotifier(n Notifier) Option {
	return func(l *Ledger) {
		if n != nil {
			l.notifier = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) {
		if gen != nil {
			l.newID = gen
		}
	}
}

// Ledger owns the turn ingestion pipeline and every read/write over games.
// It keeps no game state between calls.
type Ledger struct {
	store       Store
	index       *Index
	notifier    Notifier
	now         func() time.Time
	newID       func() string
	maxAttempts int
	log         *zap.Logger
}

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:       store,
		index:       NewIndex(store),
		notifier:    nopNotifier{},
		now:         time.Now,
		newID:       uuid.NewString,
		maxAttempts: DefaultMaxAttempts,
		log:         obslog.Named("ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// errRetry signals that the optimistic write lost a race and the attempt should restart.
var errRetry = errors.New("retry")

// Ingest classifies ev as created, advanced or duplicate and persists the result.
// The record is committed before the notifier runs; duplicates are never notified.
func (l *Ledger) Ingest(ctx context.Context, ev TurnEvent) (*IngestResult, error) {
	ev.Game = strings.TrimSpace(ev.Game)
	ev.Handle = strings.TrimSpace(ev.Handle)
	if ev.Game == "" {
		return nil, fmt.Errorf("%w: game name is required", ErrInvalidTurn)
	}
	if ev.Handle == "" {
		return nil, fmt.Errorf("%w: player handle is required", ErrInvalidTurn)
	}
	if ev.Turn < 0 {
		return nil, fmt.Errorf("%w: negative turn number %d", ErrInvalidTurn, ev.Turn)
	}
	if ev.At.IsZero() {
		ev.At = l.now()
	}

	player, err := l.resolvePlayer(ctx, ev.Handle)
	if err != nil {
		return nil, err
	}

	var res *IngestResult
	for attempt := 1; ; attempt++ {
		res, err = l.applyTurn(ctx, ev, player)
		if !errors.Is(err, errRetry) {
			break
		}
		if attempt >= l.maxAttempts {
			l.log.Warn("turn_ingest_contention", zap.String("game", ev.Game), zap.Int("attempts", attempt))
			return nil, fmt.Errorf("ingest %q: %w", ev.Game, ErrConcurrentUpdate)
		}
	}
	if err != nil {
		return nil, err
	}

	if res.Outcome == OutcomeDuplicate {
		l.log.Info("turn_duplicate",
			zap.String("game", ev.Game),
			zap.String("player_id", player.ID),
			zap.Int("turn", ev.Turn),
			zap.String("source", string(ev.Source)),
		)
		return res, nil
	}

	l.log.Info("turn_ingest",
		zap.String("game", ev.Game),
		zap.String("outcome", string(res.Outcome)),
		zap.String("player_id", player.ID),
		zap.Int("turn", ev.Turn),
		zap.Int("deltas", len(res.Game.TurnDeltas)),
		zap.String("source", string(ev.Source)),
	)
	l.notifier.TurnTaken(ctx, TurnNotice{Outcome: res.Outcome, Game: res.Game.Clone(), Player: player, Event: ev})
	return res, nil
}

func (l *Ledger) applyTurn(ctx context.Context, ev TurnEvent, player *domain.Player) (*IngestResult, error) {
	cur, err := l.store.FindGame(ctx, ev.Game)
	if errors.Is(err, ErrGameNotFound) {
		return l.createGame(ctx, ev, player)
	}
	if err != nil {
		return nil, fmt.Errorf("load game %q: %w", ev.Game, err)
	}

	if cur.NextPlayerID == player.ID && cur.TurnNumber == ev.Turn {
		return &IngestResult{Outcome: OutcomeDuplicate, Game: cur, Player: player}, nil
	}

	next := cur.Clone()
	next.TurnDeltas = append(next.TurnDeltas, timefmt.ElapsedSeconds(cur.LastTurnAt, ev.At))
	avg, err := timefmt.AverageDuration(next.TurnDeltas)
	if err != nil {
		return nil, err
	}
	next.AverageTurnTime = avg
	next.NextPlayerID = player.ID
	next.TurnNumber = ev.Turn
	next.LastTurnAt = ev.At
	next.AddPlayer(player.ID)

	if err := l.store.ReplaceGame(ctx, next); err != nil {
		if errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrGameNotFound) {
			return nil, errRetry
		}
		return nil, fmt.Errorf("save game %q: %w", ev.Game, err)
	}
	return &IngestResult{Outcome: OutcomeAdvanced, Game: next, Player: player}, nil
}

func (l *Ledger) createGame(ctx context.Context, ev TurnEvent, player *domain.Player) (*IngestResult, error) {
	deltas := []int64{0}
	avg, err := timefmt.AverageDuration(deltas)
	if err != nil {
		return nil, err
	}
	g := &domain.Game{
		Name:            ev.Game,
		NextPlayerID:    player.ID,
		TurnNumber:      ev.Turn,
		LastTurnAt:      ev.At,
		TurnDeltas:      deltas,
		AverageTurnTime: avg,
		AllPlayers:      []string{player.ID},
		CreatedAt:       l.now(),
	}
	if err := l.store.InsertGame(ctx, g); err != nil {
		if errors.Is(err, ErrGameExists) {
			return nil, errRetry
		}
		return nil, fmt.Errorf("insert game %q: %w", ev.Game, err)
	}
	if err := l.index.AddToCurrent(ctx, g.Name); err != nil {
		l.reconcileNeeded("add_current", g.Name, err)
	}
	return &IngestResult{Outcome: OutcomeCreated, Game: g, Player: player}, nil
}

// resolvePlayer maps a notifier handle to a directory entry, registering unseen handles.
func (l *Ledger) resolvePlayer(ctx context.Context, handle string) (*domain.Player, error) {
	p, err := l.store.PlayerByHandle(ctx, handle)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrPlayerNotFound) {
		return nil, fmt.Errorf("lookup player %q: %w", handle, err)
	}
	p = &domain.Player{
		ID:          l.newID(),
		Handle:      handle,
		DisplayName: handle,
		CreatedAt:   l.now(),
	}
	if err := l.store.CreatePlayer(ctx, p); err != nil {
		if errors.Is(err, ErrPlayerExists) {
			return l.store.PlayerByHandle(ctx, handle)
		}
		return nil, fmt.Errorf("register player %q: %w", handle, err)
	}
	l.log.Info("player_registered", zap.String("handle", handle), zap.String("player_id", p.ID))
	return p, nil
}

func (l *Ledger) reconcileNeeded(op, game string, err error) {
	l.log.Warn("membership_reconcile_needed",
		zap.String("op", op),
		zap.String("game", game),
		zap.Error(err),
	)
}
