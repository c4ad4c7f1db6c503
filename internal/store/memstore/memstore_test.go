package memstore

import (
	"context"
	"testing"

	"github.com/park285/turnledger/internal/ledger"
	"github.com/park285/turnledger/internal/store/storetest"
)

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ledger.Store { return New() })
}

func TestReturnedGamesAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.InsertGame(ctx, storetest.Sample("Copy")); err != nil {
		t.Fatalf("InsertGame: %v", err)
	}
	g, _ := s.FindGame(ctx, "Copy")
	g.TurnDeltas[0] = 999
	g.AllPlayers = append(g.AllPlayers, "intruder")

	again, _ := s.FindGame(ctx, "Copy")
	if again.TurnDeltas[0] != 0 || len(again.AllPlayers) != 1 {
		t.Fatalf("stored record was aliased: %+v", again)
	}
}
