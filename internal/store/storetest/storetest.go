// Package storetest holds the behaviour every ledger.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/park285/turnledger/internal/domain"
	"github.com/park285/turnledger/internal/ledger"
)

var t0 = time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

// Run exercises open() against the ledger.Store contract. open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) ledger.Store) {
	t.Helper()
	t.Run("GameLifecycle", func(t *testing.T) { testGameLifecycle(t, open(t)) })
	t.Run("VersionCheck", func(t *testing.T) { testVersionCheck(t, open(t)) })
	t.Run("FindGames", func(t *testing.T) { testFindGames(t, open(t)) })
	t.Run("Membership", func(t *testing.T) { testMembership(t, open(t)) })
	t.Run("MembershipConcurrent", func(t *testing.T) { testMembershipConcurrent(t, open(t)) })
	t.Run("Players", func(t *testing.T) { testPlayers(t, open(t)) })
}

// Sample returns a fresh single-turn record named name.
func Sample(name string) *domain.Game {
	return &domain.Game{
		Name:            name,
		NextPlayerID:    "p-eric",
		TurnNumber:      1,
		LastTurnAt:      t0,
		TurnDeltas:      []int64{0},
		AverageTurnTime: "0 days, 0 hours, 0 min, 0s.",
		AllPlayers:      []string{"p-eric"},
		CreatedAt:       t0,
	}
}

func testGameLifecycle(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if _, err := s.FindGame(ctx, "Alpha Game"); !errors.Is(err, ledger.ErrGameNotFound) {
		t.Fatalf("FindGame on empty store err = %v", err)
	}

	g := Sample("Alpha Game")
	if err := s.InsertGame(ctx, g); err != nil {
		t.Fatalf("InsertGame: %v", err)
	}
	if g.Version != 1 {
		t.Fatalf("Version after insert = %d", g.Version)
	}
	if err := s.InsertGame(ctx, Sample("Alpha Game")); !errors.Is(err, ledger.ErrGameExists) {
		t.Fatalf("second InsertGame err = %v", err)
	}

	got, err := s.FindGame(ctx, "Alpha Game")
	if err != nil {
		t.Fatalf("FindGame: %v", err)
	}
	if got.NextPlayerID != "p-eric" || got.TurnNumber != 1 || !got.LastTurnAt.Equal(t0) || len(got.TurnDeltas) != 1 || got.Version != 1 {
		t.Fatalf("FindGame = %+v", got)
	}

	got.TurnDeltas = append(got.TurnDeltas, 600)
	got.TurnNumber = 2
	got.NextPlayerID = "p-dan"
	got.AddPlayer("p-dan")
	got.LastTurnAt = t0.Add(10 * time.Minute)
	if err := s.ReplaceGame(ctx, got); err != nil {
		t.Fatalf("ReplaceGame: %v", err)
	}
	if got.Version != 2 {
		t.Fatalf("Version after replace = %d", got.Version)
	}
	again, _ := s.FindGame(ctx, "Alpha Game")
	if again.Version != 2 || len(again.TurnDeltas) != 2 || again.TurnDeltas[1] != 600 || len(again.AllPlayers) != 2 {
		t.Fatalf("after replace = %+v", again)
	}

	if err := s.InsertGame(ctx, Sample("Beta")); err != nil {
		t.Fatalf("InsertGame(Beta): %v", err)
	}
	n, err := s.CountGames(ctx)
	if err != nil || n != 2 {
		t.Fatalf("CountGames = %d, %v", n, err)
	}
	all, err := s.AllGames(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("AllGames = %d, %v", len(all), err)
	}

	if err := s.DeleteGame(ctx, "Alpha Game"); err != nil {
		t.Fatalf("DeleteGame: %v", err)
	}
	if err := s.DeleteGame(ctx, "Alpha Game"); !errors.Is(err, ledger.ErrGameNotFound) {
		t.Fatalf("second DeleteGame err = %v", err)
	}
	if _, err := s.FindGame(ctx, "Alpha Game"); !errors.Is(err, ledger.ErrGameNotFound) {
		t.Fatalf("FindGame after delete err = %v", err)
	}
	if n, _ := s.CountGames(ctx); n != 1 {
		t.Fatalf("CountGames after delete = %d", n)
	}
}

func testVersionCheck(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	if err := s.InsertGame(ctx, Sample("Race")); err != nil {
		t.Fatalf("InsertGame: %v", err)
	}
	a, _ := s.FindGame(ctx, "Race")
	b, _ := s.FindGame(ctx, "Race")

	a.TurnNumber = 2
	if err := s.ReplaceGame(ctx, a); err != nil {
		t.Fatalf("ReplaceGame(a): %v", err)
	}
	b.TurnNumber = 3
	if err := s.ReplaceGame(ctx, b); !errors.Is(err, ledger.ErrVersionConflict) {
		t.Fatalf("stale ReplaceGame err = %v", err)
	}
	cur, _ := s.FindGame(ctx, "Race")
	if cur.TurnNumber != 2 {
		t.Fatalf("stale write landed: turn %d", cur.TurnNumber)
	}

	ghost := Sample("Ghost")
	ghost.Version = 1
	if err := s.ReplaceGame(ctx, ghost); !errors.Is(err, ledger.ErrGameNotFound) {
		t.Fatalf("ReplaceGame on missing err = %v", err)
	}
}

func testFindGames(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	for _, name := range []string{"A", "B", "C"} {
		if err := s.InsertGame(ctx, Sample(name)); err != nil {
			t.Fatalf("InsertGame(%s): %v", name, err)
		}
	}
	games, err := s.FindGames(ctx, []string{"C", "missing", "A"})
	if err != nil {
		t.Fatalf("FindGames: %v", err)
	}
	names := make([]string, 0, len(games))
	for _, g := range games {
		names = append(names, g.Name)
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "A" || names[1] != "C" {
		t.Fatalf("FindGames names = %v", names)
	}
	empty, err := s.FindGames(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("FindGames(nil) = %v, %v", empty, err)
	}
}

func testMembership(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	ids, err := s.LoadMembership(ctx, domain.MembershipCurrent)
	if err != nil {
		t.Fatalf("LoadMembership on empty store: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("empty membership = %v", ids)
	}

	push := func(name string) func([]string) []string {
		return func(ids []string) []string { return append(ids, name) }
	}
	for _, name := range []string{"one", "two", "three"} {
		if err := s.ModifyMembership(ctx, domain.MembershipCurrent, push(name)); err != nil {
			t.Fatalf("ModifyMembership: %v", err)
		}
	}
	ids, _ = s.LoadMembership(ctx, domain.MembershipCurrent)
	if fmt.Sprint(ids) != "[one two three]" {
		t.Fatalf("current = %v", ids)
	}
	if done, _ := s.LoadMembership(ctx, domain.MembershipCompleted); len(done) != 0 {
		t.Fatalf("completed leaked writes: %v", done)
	}

	err = s.ModifyMembership(ctx, domain.MembershipCurrent, func(ids []string) []string {
		out := []string{}
		for _, id := range ids {
			if id != "two" {
				out = append(out, id)
			}
		}
		return out
	})
	if err != nil {
		t.Fatalf("ModifyMembership(remove): %v", err)
	}
	ids, _ = s.LoadMembership(ctx, domain.MembershipCurrent)
	if fmt.Sprint(ids) != "[one three]" {
		t.Fatalf("current after remove = %v", ids)
	}

	if err := s.ModifyMembership(ctx, domain.MembershipCurrent, func([]string) []string { return nil }); err != nil {
		t.Fatalf("ModifyMembership(clear): %v", err)
	}
	ids, err = s.LoadMembership(ctx, domain.MembershipCurrent)
	if err != nil || len(ids) != 0 {
		t.Fatalf("cleared membership = %v, %v", ids, err)
	}
}

func testMembershipConcurrent(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("game-%d", i)
			errs <- s.ModifyMembership(ctx, domain.MembershipCompleted, func(ids []string) []string {
				return append(ids, name)
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent ModifyMembership: %v", err)
		}
	}
	ids, err := s.LoadMembership(ctx, domain.MembershipCompleted)
	if err != nil {
		t.Fatalf("LoadMembership: %v", err)
	}
	if len(ids) != n {
		t.Fatalf("lost membership writes: %v", ids)
	}
}

func testPlayers(t *testing.T, s ledger.Store) {
	ctx := context.Background()
	if _, err := s.PlayerByHandle(ctx, "eric"); !errors.Is(err, ledger.ErrPlayerNotFound) {
		t.Fatalf("PlayerByHandle on empty store err = %v", err)
	}

	p := &domain.Player{ID: "p-eric", Handle: "eric", DisplayName: "Eric", CreatedAt: t0}
	if err := s.CreatePlayer(ctx, p); err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	dup := &domain.Player{ID: "p-other", Handle: "eric", DisplayName: "Imposter", CreatedAt: t0}
	if err := s.CreatePlayer(ctx, dup); !errors.Is(err, ledger.ErrPlayerExists) {
		t.Fatalf("duplicate CreatePlayer err = %v", err)
	}

	byHandle, err := s.PlayerByHandle(ctx, "eric")
	if err != nil || byHandle.ID != "p-eric" {
		t.Fatalf("PlayerByHandle = %+v, %v", byHandle, err)
	}
	byID, err := s.PlayerByID(ctx, "p-eric")
	if err != nil || byID.Handle != "eric" {
		t.Fatalf("PlayerByID = %+v, %v", byID, err)
	}

	byID.ChatHandle = "@eric:matrix.org"
	if err := s.UpdatePlayer(ctx, byID); err != nil {
		t.Fatalf("UpdatePlayer: %v", err)
	}

	for _, ref := range []string{"p-eric", "eric", "ERIC", "@eric:matrix.org"} {
		got, err := s.FindPlayer(ctx, ref)
		if err != nil || got.ID != "p-eric" {
			t.Fatalf("FindPlayer(%q) = %+v, %v", ref, got, err)
		}
	}
	if _, err := s.FindPlayer(ctx, "nobody"); !errors.Is(err, ledger.ErrPlayerNotFound) {
		t.Fatalf("FindPlayer(nobody) err = %v", err)
	}
	if err := s.UpdatePlayer(ctx, &domain.Player{ID: "ghost", Handle: "ghost"}); !errors.Is(err, ledger.ErrPlayerNotFound) {
		t.Fatalf("UpdatePlayer(ghost) err = %v", err)
	}
}
