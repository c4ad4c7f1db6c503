package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/park285/turnledger/internal/chat"
	"github.com/park285/turnledger/internal/domain"
	"github.com/park285/turnledger/internal/ledger"
	"github.com/park285/turnledger/internal/msgcat"
	"github.com/park285/turnledger/internal/store/memstore"
)

var t0 = time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

type sentReply struct{ room, text string }

type recordingReplier struct {
	mu      sync.Mutex
	replies []sentReply
}

func (r *recordingReplier) SendText(_ context.Context, room, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, sentReply{room, text})
	return nil
}

func (r *recordingReplier) all() []sentReply {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentReply(nil), r.replies...)
}

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	return ledger.New(memstore.New(),
		ledger.WithClock(func() time.Time { return t0 }),
		ledger.WithLogger(zap.NewNop()),
	)
}

func ingest(t *testing.T, l *ledger.Ledger, game, handle string, turn int, at time.Time) {
	t.Helper()
	if _, err := l.Ingest(context.Background(), ledger.TurnEvent{Game: game, Handle: handle, Turn: turn, At: at}); err != nil {
		t.Fatalf("Ingest(%s, %s, %d): %v", game, handle, turn, err)
	}
}

func newBot(l Ledger, out Replier, rooms ...string) *Bot {
	return New(l, out, msgcat.MustDefault(), Options{
		Prefix:       "!Civ_Bot",
		AllowedRooms: rooms,
		Now:          func() time.Time { return t0.Add(90 * time.Minute) },
		Log:          zap.NewNop(),
	})
}

func TestCurrentGames(t *testing.T) {
	l := newLedger(t)
	ingest(t, l, "Beta", "dan", 3, t0.Add(10*time.Minute))
	ingest(t, l, "Alpha", "eric", 1, t0)
	b := newBot(l, nil)

	got := b.Reply(context.Background(), "current games")
	want := strings.Join([]string{
		"Here is a list of the games currently known about on the server:",
		"Alpha awaiting turn 1 by eric. It's been 0 days 1 hours 30 minutes 0 seconds since the last turn.",
		"Beta awaiting turn 3 by dan. It's been 0 days 1 hours 20 minutes 0 seconds since the last turn.",
	}, "\n")
	if got != want {
		t.Fatalf("current games:\n%s\nwant:\n%s", got, want)
	}
}

func TestCurrentGamesEmpty(t *testing.T) {
	b := newBot(newLedger(t), nil)
	if got := b.Reply(context.Background(), "current games"); got != "There are no games available on the server." {
		t.Fatalf("got %q", got)
	}
}

func TestBlame(t *testing.T) {
	l := newLedger(t)
	ingest(t, l, "Alpha", "eric", 1, t0)
	ingest(t, l, "Beta", "dan", 3, t0.Add(10*time.Minute))
	ingest(t, l, "Gamma", "dan", 7, t0.Add(30*time.Minute))
	b := newBot(l, nil)
	ctx := context.Background()

	got := b.Reply(ctx, "blame eric")
	want := "There is 1 game out of 3 waiting for eric to take their turn:\n" +
		"Alpha awaiting turn 1 by eric. It's been 0 days 1 hours 30 minutes 0 seconds since the last turn."
	if got != want {
		t.Fatalf("blame eric = %q", got)
	}

	got = b.Reply(ctx, "blame DAN")
	if !strings.HasPrefix(got, "There are 2 games out of 3 waiting for dan to take their turn:\nBeta awaiting turn 3") {
		t.Fatalf("blame dan = %q", got)
	}
	if strings.Contains(got, "It's all on you!!") {
		t.Fatalf("dan does not hold every game: %q", got)
	}

	if got := b.Reply(ctx, "blame zed"); got != "I don't know anyone called zed." {
		t.Fatalf("blame zed = %q", got)
	}
	if got := b.Reply(ctx, "blame"); got != "Who should I blame? Try !Civ_Bot blame <player>." {
		t.Fatalf("blame without name = %q", got)
	}
}

func TestBlameAllOnYou(t *testing.T) {
	l := newLedger(t)
	ingest(t, l, "Alpha", "eric", 1, t0)
	ingest(t, l, "Beta", "eric", 2, t0)
	b := newBot(l, nil)

	got := b.Reply(context.Background(), "blame eric")
	if !strings.HasPrefix(got, "There are 2 games out of 2 waiting for eric") || !strings.HasSuffix(got, "\nIt's all on you!!") {
		t.Fatalf("blame = %q", got)
	}
}

func TestBlameNone(t *testing.T) {
	l := newLedger(t)
	ingest(t, l, "Alpha", "eric", 1, t0)
	ingest(t, l, "Alpha", "dan", 2, t0.Add(time.Minute))
	b := newBot(l, nil)

	if got := b.Reply(context.Background(), "blame eric"); got != "There aren't any games waiting for eric. Great job!" {
		t.Fatalf("blame = %q", got)
	}
}

func TestCompletedAndCounts(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	ingest(t, l, "Alpha", "eric", 9, t0)
	ingest(t, l, "Beta", "dan", 3, t0)
	if _, err := l.CompleteGame(ctx, "Alpha"); err != nil {
		t.Fatalf("CompleteGame: %v", err)
	}
	if _, err := l.SetWinner(ctx, "Alpha", "eric"); err != nil {
		t.Fatalf("SetWinner: %v", err)
	}
	b := newBot(l, nil)

	want := "Here is a list of the completed games:\nAlpha finished on turn 9, won by eric."
	if got := b.Reply(ctx, "completed games"); got != want {
		t.Fatalf("completed = %q", got)
	}
	if got := b.Reply(ctx, "counts"); got != "2 games tracked: 1 in progress, 1 completed." {
		t.Fatalf("counts = %q", got)
	}
}

func TestHelpAndUnknown(t *testing.T) {
	b := newBot(newLedger(t), nil)
	ctx := context.Background()

	help := b.Reply(ctx, "help")
	if !strings.HasPrefix(help, "Current Commands:\n!Civ_Bot help - this message") {
		t.Fatalf("help = %q", help)
	}
	if b.Reply(ctx, "") != help {
		t.Fatalf("bare prefix should show help")
	}
	if got := b.Reply(ctx, "dance"); got != "Sorry, I didn't recognize that command. Try !Civ_Bot help to see command list." {
		t.Fatalf("unknown = %q", got)
	}
}

func TestHandleRoutesReplies(t *testing.T) {
	out := &recordingReplier{}
	b := newBot(newLedger(t), out, "civ-room")
	ctx := context.Background()

	b.Handle(ctx, &chat.Message{Room: "civ-room", Msg: "  !Civ_Bot   counts "})
	b.Handle(ctx, &chat.Message{Room: "other-room", Msg: "!Civ_Bot counts"})
	b.Handle(ctx, &chat.Message{Room: "civ-room", Msg: "!Civ_Botanist counts"})
	b.Handle(ctx, &chat.Message{Room: "civ-room", Msg: "hello there"})
	b.Handle(ctx, nil)

	got := out.all()
	if len(got) != 1 {
		t.Fatalf("replies = %+v", got)
	}
	if got[0].room != "civ-room" || got[0].text != "0 games tracked: 0 in progress, 0 completed." {
		t.Fatalf("reply = %+v", got[0])
	}
}

type failingLedger struct{ err error }

func (f failingLedger) ListCurrent(context.Context, string) ([]*domain.Game, error) {
	return nil, f.err
}
func (f failingLedger) ListCompleted(context.Context) ([]*domain.Game, error) { return nil, f.err }
func (f failingLedger) Counts(context.Context) (ledger.Counts, error)         { return ledger.Counts{}, f.err }
func (f failingLedger) FindPlayer(context.Context, string) (*domain.Player, error) {
	return nil, f.err
}
func (f failingLedger) Players(context.Context, []string) (map[string]*domain.Player, error) {
	return nil, f.err
}

func TestStoreFailureGivesGenericReply(t *testing.T) {
	b := newBot(failingLedger{err: errors.New("redis down")}, nil)
	want := "Something went wrong talking to the ledger. Try again in a bit."
	for _, cmd := range []string{"current games", "completed games", "blame eric", "counts"} {
		if got := b.Reply(context.Background(), cmd); got != want {
			t.Fatalf("%s = %q", cmd, got)
		}
	}
}
