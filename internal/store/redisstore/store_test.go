package redisstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/turnledger/internal/domain"
	"github.com/park285/turnledger/internal/ledger"
	"github.com/park285/turnledger/internal/store/storetest"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb), mr
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ledger.Store {
		s, _ := newTestStore(t)
		return s
	})
}

func TestOpenFromURL(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := Open(context.Background(), fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

func TestParseRedisURL(t *testing.T) {
	tests := []struct {
		raw     string
		addr    string
		db      int
		pass    string
		tls     bool
		wantErr bool
	}{
		{raw: "redis://localhost:6379", addr: "localhost:6379"},
		{raw: "redis://:secret@cache:6380/3", addr: "cache:6380", db: 3, pass: "secret"},
		{raw: "rediss://user:pw@cache.example.com:6379/1", addr: "cache.example.com:6379", db: 1, pass: "pw", tls: true},
		{raw: "http://localhost:6379", wantErr: true},
		{raw: "redis://localhost:6379/abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			opts, err := parseRedisURL(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if opts.Addr != tt.addr || opts.DB != tt.db || opts.Password != tt.pass || (opts.TLSConfig != nil) != tt.tls {
				t.Fatalf("opts = %+v", opts)
			}
		})
	}
}

func TestDocumentsAreJSON(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)
	if err := s.InsertGame(ctx, storetest.Sample("Alpha Game")); err != nil {
		t.Fatalf("InsertGame: %v", err)
	}
	if err := s.ModifyMembership(ctx, domain.MembershipCurrent, func(ids []string) []string {
		return append(ids, "Alpha Game")
	}); err != nil {
		t.Fatalf("ModifyMembership: %v", err)
	}

	raw, err := mr.Get("turnledger:membership:current")
	if err != nil {
		t.Fatalf("membership key: %v", err)
	}
	if raw != `["Alpha Game"]` {
		t.Fatalf("membership doc = %s", raw)
	}
	if !mr.Exists("turnledger:game:Alpha Game") {
		t.Fatalf("game key missing")
	}
	if ok, _ := mr.SIsMember("turnledger:games", "Alpha Game"); !ok {
		t.Fatalf("game not indexed")
	}
}

func TestCorruptMembershipSurfaces(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t)
	if err := mr.Set("turnledger:membership:completed", "not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := s.LoadMembership(ctx, domain.MembershipCompleted); err == nil {
		t.Fatalf("expected decode error")
	}
	err := s.ModifyMembership(ctx, domain.MembershipCompleted, func(ids []string) []string { return ids })
	if err == nil || errors.Is(err, ledger.ErrConcurrentUpdate) {
		t.Fatalf("ModifyMembership err = %v", err)
	}
}

func TestLedgerOverRedis(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	l := ledger.New(s)
	if _, err := l.Ingest(ctx, ledger.TurnEvent{Game: "Alpha Game", Handle: "eric", Turn: 1}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if _, err := l.CompleteGame(ctx, "Alpha Game"); err != nil {
		t.Fatalf("CompleteGame: %v", err)
	}
	counts, err := l.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Total != 1 || counts.Completed != 1 || !counts.Consistent() {
		t.Fatalf("counts = %+v", counts)
	}
}
