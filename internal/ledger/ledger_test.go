package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/park285/turnledger/internal/domain"
	"github.com/park285/turnledger/internal/ledger"
	"github.com/park285/turnledger/internal/store/memstore"
)

var t0 = time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []ledger.TurnNotice
}

func (r *recordingNotifier) TurnTaken(_ context.Context, n ledger.TurnNotice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

func newLedger(t *testing.T, store ledger.Store, opts ...ledger.Option) (*ledger.Ledger, *recordingNotifier) {
	t.Helper()
	rec := &recordingNotifier{}
	opts = append([]ledger.Option{
		ledger.WithNotifier(rec),
		ledger.WithClock(func() time.Time { return t0 }),
		ledger.WithLogger(zap.NewNop()),
	}, opts...)
	return ledger.New(store, opts...), rec
}

func ingest(t *testing.T, l *ledger.Ledger, game, handle string, turn int, at time.Time) *ledger.IngestResult {
	t.Helper()
	res, err := l.Ingest(context.Background(), ledger.TurnEvent{Game: game, Handle: handle, Turn: turn, At: at, Source: ledger.SourcePlayByCloud})
	if err != nil {
		t.Fatalf("Ingest(%s, %s, %d): %v", game, handle, turn, err)
	}
	return res
}

func members(t *testing.T, s ledger.MembershipStore, kind domain.MembershipKind) []string {
	t.Helper()
	ids, err := s.LoadMembership(context.Background(), kind)
	if err != nil {
		t.Fatalf("LoadMembership(%s): %v", kind, err)
	}
	return ids
}

func has(ids []string, name string) bool {
	for _, id := range ids {
		if id == name {
			return true
		}
	}
	return false
}

func TestAlphaGameScenario(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	l, rec := newLedger(t, store)

	res := ingest(t, l, "Alpha Game", "eric", 1, t0)
	if res.Outcome != ledger.OutcomeCreated {
		t.Fatalf("first outcome = %s", res.Outcome)
	}
	if !has(members(t, store, domain.MembershipCurrent), "Alpha Game") {
		t.Fatalf("current should contain Alpha Game")
	}
	before, err := l.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}

	res = ingest(t, l, "Alpha Game", "dan", 2, t0.Add(600*time.Second))
	if res.Outcome != ledger.OutcomeAdvanced {
		t.Fatalf("second outcome = %s", res.Outcome)
	}
	if got := res.Game.TurnDeltas; len(got) != 2 || got[0] != 0 || got[1] != 600 {
		t.Fatalf("TurnDeltas = %v", got)
	}
	if res.Game.AverageTurnTime != "0 days, 0 hours, 5 min, 0s." {
		t.Fatalf("AverageTurnTime = %q", res.Game.AverageTurnTime)
	}

	res = ingest(t, l, "Alpha Game", "dan", 2, t0.Add(900*time.Second))
	if res.Outcome != ledger.OutcomeDuplicate {
		t.Fatalf("third outcome = %s", res.Outcome)
	}
	g, err := l.Game(ctx, "Alpha Game")
	if err != nil {
		t.Fatalf("Game: %v", err)
	}
	if len(g.TurnDeltas) != 2 || g.TurnNumber != 2 || !g.LastTurnAt.Equal(t0.Add(600*time.Second)) {
		t.Fatalf("duplicate mutated record: %+v", g)
	}
	if rec.count() != 2 {
		t.Fatalf("notifications = %d, want 2", rec.count())
	}

	if _, err := l.CompleteGame(ctx, "Alpha Game"); err != nil {
		t.Fatalf("CompleteGame: %v", err)
	}
	if has(members(t, store, domain.MembershipCurrent), "Alpha Game") || !has(members(t, store, domain.MembershipCompleted), "Alpha Game") {
		t.Fatalf("Alpha Game should only be in completed")
	}
	counts, err := l.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if !counts.Consistent() || counts.Completed != 1 || counts.Current != 0 {
		t.Fatalf("counts after complete = %+v", counts)
	}

	if err := l.DeleteGame(ctx, "Alpha Game"); err != nil {
		t.Fatalf("DeleteGame: %v", err)
	}
	if has(members(t, store, domain.MembershipCurrent), "Alpha Game") || has(members(t, store, domain.MembershipCompleted), "Alpha Game") {
		t.Fatalf("Alpha Game should be in neither list")
	}
	if _, err := l.Game(ctx, "Alpha Game"); !errors.Is(err, ledger.ErrGameNotFound) {
		t.Fatalf("Game after delete err = %v", err)
	}
	after, err := l.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if after.Total != before.Total-1 || !after.Consistent() {
		t.Fatalf("counts after delete = %+v (before %+v)", after, before)
	}
}

func TestIngestChangedPairAdvances(t *testing.T) {
	store := memstore.New()
	l, rec := newLedger(t, store)

	ingest(t, l, "Beta", "eric", 5, t0)
	steps := []struct {
		handle string
		turn   int
	}{
		{"eric", 6}, // same player, new turn: a second client install
		{"dan", 6},  // new player, same turn
		{"dan", 7},
	}
	for i, st := range steps {
		res := ingest(t, l, "Beta", st.handle, st.turn, t0.Add(time.Duration(i+1)*time.Minute))
		if res.Outcome != ledger.OutcomeAdvanced {
			t.Fatalf("step %d outcome = %s", i, res.Outcome)
		}
	}
	g, _ := l.Game(context.Background(), "Beta")
	if len(g.TurnDeltas) != 4 {
		t.Fatalf("TurnDeltas = %v", g.TurnDeltas)
	}
	if len(g.AllPlayers) != 2 {
		t.Fatalf("AllPlayers = %v", g.AllPlayers)
	}
	if rec.count() != 4 {
		t.Fatalf("notifications = %d", rec.count())
	}
}

func TestIngestClockSkewRecordsZero(t *testing.T) {
	l, _ := newLedger(t, memstore.New())
	ingest(t, l, "Skew", "eric", 1, t0)
	res := ingest(t, l, "Skew", "dan", 2, t0.Add(-time.Hour))
	if got := res.Game.TurnDeltas; got[len(got)-1] != 0 {
		t.Fatalf("TurnDeltas = %v", got)
	}
}

func TestIngestDefaultsEventTime(t *testing.T) {
	l, _ := newLedger(t, memstore.New())
	res, err := l.Ingest(context.Background(), ledger.TurnEvent{Game: "Clock", Handle: "eric", Turn: 1})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if !res.Game.LastTurnAt.Equal(t0) {
		t.Fatalf("LastTurnAt = %v", res.Game.LastTurnAt)
	}
}

func TestIngestRejectsInvalidEvents(t *testing.T) {
	l, _ := newLedger(t, memstore.New())
	tests := []struct {
		name string
		ev   ledger.TurnEvent
	}{
		{"missing game", ledger.TurnEvent{Handle: "eric", Turn: 1}},
		{"blank handle", ledger.TurnEvent{Game: "G", Handle: "  ", Turn: 1}},
		{"negative turn", ledger.TurnEvent{Game: "G", Handle: "eric", Turn: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.Ingest(context.Background(), tt.ev); !errors.Is(err, ledger.ErrInvalidTurn) {
				t.Fatalf("err = %v, want ErrInvalidTurn", err)
			}
		})
	}
}

func TestIngestRegistersPlayerOnce(t *testing.T) {
	store := memstore.New()
	ids := 0
	l, rec := newLedger(t, store, ledger.WithIDGenerator(func() string {
		ids++
		return fmt.Sprintf("player-%d", ids)
	}))
	ingest(t, l, "A", "eric", 1, t0)
	ingest(t, l, "B", "eric", 1, t0)

	p, err := store.PlayerByHandle(context.Background(), "eric")
	if err != nil {
		t.Fatalf("PlayerByHandle: %v", err)
	}
	if p.ID != "player-1" || ids != 1 {
		t.Fatalf("player = %+v, generated %d ids", p, ids)
	}
	if rec.notices[1].Player.ID != "player-1" {
		t.Fatalf("notice player = %+v", rec.notices[1].Player)
	}
}

func TestIngestNoticeCarriesEvent(t *testing.T) {
	l, rec := newLedger(t, memstore.New())
	_, err := l.Ingest(context.Background(), ledger.TurnEvent{
		Game: "Pydt", Handle: "eric", Turn: 3, At: t0,
		Source: ledger.SourcePYDT, Civilization: "Rome", Leader: "Trajan",
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	n := rec.notices[0]
	if n.Outcome != ledger.OutcomeCreated || n.Event.Leader != "Trajan" || n.Event.Civilization != "Rome" || n.Game.Name != "Pydt" {
		t.Fatalf("notice = %+v", n)
	}
}

func TestListCurrentFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, memstore.New())
	ingest(t, l, "Late", "eric", 1, t0.Add(2*time.Hour))
	ingest(t, l, "Early", "eric", 1, t0)
	ingest(t, l, "Tie-b", "dan", 1, t0.Add(time.Hour))
	ingest(t, l, "Tie-a", "eric", 1, t0.Add(time.Hour))

	all, err := l.ListCurrent(ctx, "")
	if err != nil {
		t.Fatalf("ListCurrent: %v", err)
	}
	want := []string{"Early", "Tie-a", "Tie-b", "Late"}
	if len(all) != len(want) {
		t.Fatalf("got %d games", len(all))
	}
	for i, g := range all {
		if g.Name != want[i] {
			t.Fatalf("order[%d] = %s, want %s", i, g.Name, want[i])
		}
	}

	erics, err := l.ListCurrent(ctx, "eric")
	if err != nil {
		t.Fatalf("ListCurrent(eric): %v", err)
	}
	if len(erics) != 3 {
		t.Fatalf("eric games = %d", len(erics))
	}

	if _, err := l.ListCurrent(ctx, "nobody"); !errors.Is(err, ledger.ErrPlayerNotFound) {
		t.Fatalf("unknown player err = %v", err)
	}
}

func TestListCurrentMatchesChatHandle(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, memstore.New())
	ingest(t, l, "G", "steamdan", 1, t0)
	if _, err := l.Rename(ctx, "steamdan", "Dan", "@dan:matrix.org"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	games, err := l.ListCurrent(ctx, "@dan:matrix.org")
	if err != nil {
		t.Fatalf("ListCurrent: %v", err)
	}
	if len(games) != 1 {
		t.Fatalf("games = %d", len(games))
	}
}

func TestCompleteGameIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	l, _ := newLedger(t, store)
	ingest(t, l, "Done", "eric", 1, t0)

	first, err := l.CompleteGame(ctx, "Done")
	if err != nil {
		t.Fatalf("CompleteGame: %v", err)
	}
	second, err := l.CompleteGame(ctx, "Done")
	if err != nil {
		t.Fatalf("CompleteGame again: %v", err)
	}
	if !second.Completed || second.Version != first.Version {
		t.Fatalf("second completion rewrote record: %+v", second)
	}
	if got := members(t, store, domain.MembershipCompleted); len(got) != 1 {
		t.Fatalf("completed = %v", got)
	}
	done, err := l.ListCompleted(ctx)
	if err != nil || len(done) != 1 {
		t.Fatalf("ListCompleted = %v, %v", done, err)
	}
}

func TestCompletedGameStillIngests(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	l, _ := newLedger(t, store)
	ingest(t, l, "Late turn", "eric", 1, t0)
	if _, err := l.CompleteGame(ctx, "Late turn"); err != nil {
		t.Fatalf("CompleteGame: %v", err)
	}
	res := ingest(t, l, "Late turn", "dan", 2, t0.Add(time.Minute))
	if res.Outcome != ledger.OutcomeAdvanced || !res.Game.Completed {
		t.Fatalf("result = %+v", res.Game)
	}
	if has(members(t, store, domain.MembershipCurrent), "Late turn") {
		t.Fatalf("completed game re-entered current")
	}
}

func TestDeleteGameClearsBothLists(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	l, _ := newLedger(t, store)
	ingest(t, l, "Raced", "eric", 1, t0)

	// A completion that landed in the list after the delete read the record.
	if err := store.ModifyMembership(ctx, domain.MembershipCompleted, func(ids []string) []string {
		return append(ids, "Raced")
	}); err != nil {
		t.Fatalf("ModifyMembership: %v", err)
	}

	if err := l.DeleteGame(ctx, "Raced"); err != nil {
		t.Fatalf("DeleteGame: %v", err)
	}
	if got := members(t, store, domain.MembershipCurrent); has(got, "Raced") {
		t.Fatalf("current = %v", got)
	}
	if got := members(t, store, domain.MembershipCompleted); has(got, "Raced") {
		t.Fatalf("completed = %v", got)
	}
	c, err := l.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if c.Total != 0 || !c.Consistent() {
		t.Fatalf("counts = %+v", c)
	}
}

func TestAdminNotFound(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, memstore.New())
	if err := l.DeleteGame(ctx, "ghost"); !errors.Is(err, ledger.ErrGameNotFound) {
		t.Fatalf("DeleteGame err = %v", err)
	}
	if _, err := l.CompleteGame(ctx, "ghost"); !errors.Is(err, ledger.ErrGameNotFound) {
		t.Fatalf("CompleteGame err = %v", err)
	}
	if _, err := l.SetWinner(ctx, "ghost", "eric"); !errors.Is(err, ledger.ErrGameNotFound) {
		t.Fatalf("SetWinner err = %v", err)
	}
}

func TestSetWinner(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t, memstore.New())
	res := ingest(t, l, "Final", "eric", 10, t0)

	g, err := l.SetWinner(ctx, "Final", "eric")
	if err != nil {
		t.Fatalf("SetWinner: %v", err)
	}
	if g.Winner != res.Player.ID {
		t.Fatalf("Winner = %q, want player id %q", g.Winner, res.Player.ID)
	}
	if g.Completed {
		t.Fatalf("SetWinner must not complete the game")
	}

	g, err = l.SetWinner(ctx, "Final", "Someone Else")
	if err != nil {
		t.Fatalf("SetWinner: %v", err)
	}
	if g.Winner != "Someone Else" {
		t.Fatalf("Winner = %q", g.Winner)
	}
	if _, err := l.SetWinner(ctx, "Final", " "); !errors.Is(err, ledger.ErrInvalidArgument) {
		t.Fatalf("blank winner err = %v", err)
	}
}

// conflictStore fails the first n replaces with a version conflict.
type conflictStore struct {
	*memstore.Store
	mu sync.Mutex
	n  int
}

func (c *conflictStore) ReplaceGame(ctx context.Context, g *domain.Game) error {
	c.mu.Lock()
	if c.n > 0 {
		c.n--
		c.mu.Unlock()
		return ledger.ErrVersionConflict
	}
	c.mu.Unlock()
	return c.Store.ReplaceGame(ctx, g)
}

func TestIngestRetriesVersionConflicts(t *testing.T) {
	store := &conflictStore{Store: memstore.New()}
	l, _ := newLedger(t, store)
	ingest(t, l, "Busy", "eric", 1, t0)

	store.n = 2
	res := ingest(t, l, "Busy", "dan", 2, t0.Add(time.Minute))
	if res.Outcome != ledger.OutcomeAdvanced || len(res.Game.TurnDeltas) != 2 {
		t.Fatalf("result = %+v", res.Game)
	}

	store.n = 10
	_, err := l.Ingest(context.Background(), ledger.TurnEvent{Game: "Busy", Handle: "eric", Turn: 3, At: t0.Add(2 * time.Minute)})
	if !errors.Is(err, ledger.ErrConcurrentUpdate) {
		t.Fatalf("err = %v, want ErrConcurrentUpdate", err)
	}
	g, _ := l.Game(context.Background(), "Busy")
	if len(g.TurnDeltas) != 2 {
		t.Fatalf("failed ingest mutated record: %v", g.TurnDeltas)
	}
}

// brokenIndex fails every membership write while broken is set.
type brokenIndex struct {
	*memstore.Store
	broken bool
}

func (b *brokenIndex) ModifyMembership(ctx context.Context, kind domain.MembershipKind, fn func([]string) []string) error {
	if b.broken {
		return errors.New("index unavailable")
	}
	return b.Store.ModifyMembership(ctx, kind, fn)
}

func TestMembershipFailureIsRepairedByReconcile(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.WarnLevel)
	store := &brokenIndex{Store: memstore.New()}
	l, rec := newLedger(t, store, ledger.WithLogger(zap.New(core)))

	ingest(t, l, "Kept", "eric", 1, t0)
	ingest(t, l, "Moved", "eric", 1, t0)
	store.broken = true
	res := ingest(t, l, "Orphan", "dan", 1, t0)
	if res.Outcome != ledger.OutcomeCreated || rec.count() != 3 {
		t.Fatalf("ingest should succeed despite index failure: %s, %d notices", res.Outcome, rec.count())
	}
	if _, err := l.CompleteGame(ctx, "Moved"); err != nil {
		t.Fatalf("CompleteGame: %v", err)
	}
	store.broken = false

	if logs.FilterMessage("membership_reconcile_needed").Len() != 2 {
		t.Fatalf("expected two reconcile warnings, got %v", logs.All())
	}
	counts, _ := l.Counts(ctx)
	if counts.Consistent() {
		t.Fatalf("counts should be inconsistent before reconcile: %+v", counts)
	}

	report, err := l.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !report.Changed() || report.Current != 2 || report.Completed != 1 {
		t.Fatalf("report = %+v", report)
	}
	current := members(t, store, domain.MembershipCurrent)
	if len(current) != 2 || current[0] != "Kept" || current[1] != "Orphan" {
		t.Fatalf("current = %v", current)
	}
	counts, _ = l.Counts(ctx)
	if !counts.Consistent() {
		t.Fatalf("counts after reconcile = %+v", counts)
	}

	again, err := l.Reconcile(ctx)
	if err != nil || again.Changed() {
		t.Fatalf("second reconcile = %+v, %v", again, err)
	}
}

func TestConcurrentCompletionsKeepMembership(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	l, _ := newLedger(t, store)
	const n = 20
	for i := 0; i < n; i++ {
		ingest(t, l, fmt.Sprintf("game-%02d", i), "eric", 1, t0)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("game-%02d", i)
			var err error
			if i%2 == 0 {
				_, err = l.CompleteGame(ctx, name)
			} else {
				_, err = l.Ingest(ctx, ledger.TurnEvent{Game: name, Handle: "dan", Turn: 2, At: t0.Add(time.Minute)})
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent op: %v", err)
		}
	}

	counts, err := l.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Total != n || counts.Completed != n/2 || !counts.Consistent() {
		t.Fatalf("counts = %+v", counts)
	}
}
