package ledger

import (
	"context"
	"errors"

	"github.com/park285/turnledger/internal/domain"
)

var (
	ErrGameNotFound     = errors.New("game not found")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrGameExists       = errors.New("game already exists")
	ErrPlayerExists     = errors.New("player handle already registered")
	ErrVersionConflict  = errors.New("game was modified concurrently")
	ErrConcurrentUpdate = errors.New("gave up after repeated concurrent updates")
	ErrInvalidTurn      = errors.New("invalid turn notification")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// GameStore is the authoritative keyed storage for game records.
type GameStore interface {
	// FindGame returns ErrGameNotFound when name is unknown.
	FindGame(ctx context.Context, name string) (*domain.Game, error)
	// InsertGame stores a new record with Version 1; ErrGameExists if name is taken.
	InsertGame(ctx context.Context, g *domain.Game) error
	// ReplaceGame overwrites the record when the stored Version equals g.Version,
	// then bumps g.Version. ErrVersionConflict otherwise, ErrGameNotFound if gone.
	ReplaceGame(ctx context.Context, g *domain.Game) error
	// DeleteGame returns ErrGameNotFound when nothing was deleted.
	DeleteGame(ctx context.Context, name string) error
	CountGames(ctx context.Context) (int, error)
	// FindGames returns the records that exist among names; unknown names are skipped.
	FindGames(ctx context.Context, names []string) ([]*domain.Game, error)
	AllGames(ctx context.Context) ([]*domain.Game, error)
}

// MembershipStore holds the two singleton id-list documents.
type MembershipStore interface {
	// LoadMembership returns the list, or an empty list if the singleton does not exist yet.
	LoadMembership(ctx context.Context, kind domain.MembershipKind) ([]string, error)
	// ModifyMembership reads the whole singleton, applies fn and writes it back atomically
	// with respect to other ModifyMembership calls on the same kind.
	ModifyMembership(ctx context.Context, kind domain.MembershipKind, fn func([]string) []string) error
}

// PlayerDirectory maps external notifier handles to internal players.
type PlayerDirectory interface {
	PlayerByHandle(ctx context.Context, handle string) (*domain.Player, error)
	PlayerByID(ctx context.Context, id string) (*domain.Player, error)
	// FindPlayer resolves a free-form reference: id, handle, display name or chat handle.
	FindPlayer(ctx context.Context, ref string) (*domain.Player, error)
	// CreatePlayer returns ErrPlayerExists when the handle is already registered.
	CreatePlayer(ctx context.Context, p *domain.Player) error
	UpdatePlayer(ctx context.Context, p *domain.Player) error
}

// Store bundles every persistence concern the ledger needs.
type Store interface {
	GameStore
	MembershipStore
	PlayerDirectory
	Ping(ctx context.Context) error
	Close() error
}
