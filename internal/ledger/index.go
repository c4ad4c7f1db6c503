package ledger

import (
	"context"
	"fmt"

	"github.com/park285/turnledger/internal/domain"
)

// Index maintains the current/completed membership singletons.
type Index struct {
	store MembershipStore
}

func NewIndex(store MembershipStore) *Index {
	return &Index{store: store}
}

// AddToCurrent appends name to the current list, creating the singleton if absent.
func (ix *Index) AddToCurrent(ctx context.Context, name string) error {
	if err := ix.store.ModifyMembership(ctx, domain.MembershipCurrent, appendOnce(name)); err != nil {
		return fmt.Errorf("add %q to current: %w", name, err)
	}
	return nil
}

// MoveToCompleted appends name to completed, then strips it from current.
func (ix *Index) MoveToCompleted(ctx context.Context, name string) error {
	if err := ix.store.ModifyMembership(ctx, domain.MembershipCompleted, appendOnce(name)); err != nil {
		return fmt.Errorf("add %q to completed: %w", name, err)
	}
	if err := ix.store.ModifyMembership(ctx, domain.MembershipCurrent, without(name)); err != nil {
		return fmt.Errorf("remove %q from current: %w", name, err)
	}
	return nil
}

// Remove strips name from both lists. The record's completed flag may be stale when a
// completion races the delete, so neither list is trusted to be the only holder.
func (ix *Index) Remove(ctx context.Context, name string) error {
	for _, kind := range []domain.MembershipKind{domain.MembershipCurrent, domain.MembershipCompleted} {
		if err := ix.store.ModifyMembership(ctx, kind, without(name)); err != nil {
			return fmt.Errorf("remove %q from %s: %w", name, kind, err)
		}
	}
	return nil
}

// Members returns the names in one list.
func (ix *Index) Members(ctx context.Context, kind domain.MembershipKind) ([]string, error) {
	ids, err := ix.store.LoadMembership(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("load %s membership: %w", kind, err)
	}
	return ids, nil
}

// Rebuild replaces both lists with the given names.
func (ix *Index) Rebuild(ctx context.Context, current, completed []string) error {
	set := func(names []string) func([]string) []string {
		return func([]string) []string { return append([]string(nil), names...) }
	}
	if err := ix.store.ModifyMembership(ctx, domain.MembershipCurrent, set(current)); err != nil {
		return fmt.Errorf("rebuild current: %w", err)
	}
	if err := ix.store.ModifyMembership(ctx, domain.MembershipCompleted, set(completed)); err != nil {
		return fmt.Errorf("rebuild completed: %w", err)
	}
	return nil
}

func appendOnce(name string) func([]string) []string {
	return func(ids []string) []string {
		for _, id := range ids {
			if id == name {
				return ids
			}
		}
		return append(ids, name)
	}
}

func without(name string) func([]string) []string {
	return func(ids []string) []string {
		out := ids[:0:0]
		for _, id := range ids {
			if id != name {
				out = append(out, id)
			}
		}
		return out
	}
}

func contains(ids []string, name string) bool {
	for _, id := range ids {
		if id == name {
			return true
		}
	}
	return false
}
