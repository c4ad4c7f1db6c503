package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/turnledger/internal/chat"
	"github.com/park285/turnledger/internal/domain"
	"github.com/park285/turnledger/internal/ledger"
	"github.com/park285/turnledger/internal/msgcat"
	"github.com/park285/turnledger/internal/obslog"
	"github.com/park285/turnledger/internal/timefmt"
	"github.com/park285/turnledger/internal/util"
)

// Ledger is the read side the bot answers from.
type Ledger interface {
	ListCurrent(ctx context.Context, player string) ([]*domain.Game, error)
	ListCompleted(ctx context.Context) ([]*domain.Game, error)
	Counts(ctx context.Context) (ledger.Counts, error)
	FindPlayer(ctx context.Context, ref string) (*domain.Player, error)
	Players(ctx context.Context, ids []string) (map[string]*domain.Player, error)
}

// Replier posts a reply into the room a command came from.
type Replier interface {
	SendText(ctx context.Context, room, text string) error
}

type Options struct {
	Prefix       string
	AllowedRooms []string
	// Lists longer than this are folded behind their header. Zero never folds.
	FoldAfter    int
	ReplyTimeout time.Duration
	Now          func() time.Time
	Log          *zap.Logger
}

// Bot answers "<prefix> <command>" chat lines with ledger summaries.
type Bot struct {
	ledger Ledger
	out    Replier
	cat    *msgcat.Catalog

	prefix    string
	rooms     map[string]struct{}
	foldAfter int
	timeout   time.Duration
	now       func() time.Time
	log       *zap.Logger
}

func New(l Ledger, out Replier, cat *msgcat.Catalog, opts Options) *Bot {
	b := &Bot{
		ledger:    l,
		out:       out,
		cat:       cat,
		prefix:    strings.TrimSpace(opts.Prefix),
		foldAfter: opts.FoldAfter,
		timeout:   opts.ReplyTimeout,
		now:       opts.Now,
		log:       opts.Log,
	}
	if b.cat == nil {
		b.cat = msgcat.MustDefault()
	}
	if b.prefix == "" {
		b.prefix = "!Civ_Bot"
	}
	if b.timeout <= 0 {
		b.timeout = 10 * time.Second
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.log == nil {
		b.log = obslog.Named("bot")
	}
	if len(opts.AllowedRooms) > 0 {
		b.rooms = make(map[string]struct{}, len(opts.AllowedRooms))
		for _, r := range opts.AllowedRooms {
			if r = strings.TrimSpace(r); r != "" {
				b.rooms[r] = struct{}{}
			}
		}
	}
	return b
}

// Handle answers one inbound chat message. Messages from other rooms or without the
// prefix are ignored.
func (b *Bot) Handle(ctx context.Context, msg *chat.Message) {
	if msg == nil || strings.TrimSpace(msg.Msg) == "" {
		return
	}
	command, ok := b.command(msg.Msg)
	if !ok {
		return
	}
	if !b.roomAllowed(msg.Room) {
		b.log.Debug("bot_room_ignored", zap.String("room", msg.Room))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	reply := b.Reply(ctx, command)
	b.log.Info("bot_command",
		zap.String("room", msg.Room),
		zap.String("sender", msg.SenderName()),
		zap.String("command", command),
	)
	if b.out == nil {
		return
	}
	if err := b.out.SendText(ctx, msg.Room, reply); err != nil {
		b.log.Warn("bot_reply_failed", zap.String("room", msg.Room), zap.Error(err))
	}
}

func (b *Bot) command(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, b.prefix) {
		return "", false
	}
	rest := text[len(b.prefix):]
	// "!Civ_Botx" is someone else's word, not our prefix.
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' && rest[0] != '\n' {
		return "", false
	}
	return strings.Join(strings.Fields(rest), " "), true
}

func (b *Bot) roomAllowed(room string) bool {
	if len(b.rooms) == 0 {
		return true
	}
	_, ok := b.rooms[strings.TrimSpace(room)]
	return ok
}

// Reply computes the answer to command, the text after the prefix.
func (b *Bot) Reply(ctx context.Context, command string) string {
	verb, arg, _ := strings.Cut(command, " ")
	verb = strings.ToLower(verb)
	arg = strings.TrimSpace(arg)

	var (
		text string
		err  error
	)
	switch {
	case verb == "" || verb == "help":
		text = b.render("bot.help", map[string]any{"Prefix": b.prefix})
	case verb == "current" && strings.EqualFold(arg, "games"):
		text, err = b.currentGames(ctx)
	case verb == "completed" && strings.EqualFold(arg, "games"):
		text, err = b.completedGames(ctx)
	case verb == "blame":
		text, err = b.blame(ctx, arg)
	case verb == "counts":
		text, err = b.counts(ctx)
	default:
		text = b.render("bot.unknown", map[string]any{"Prefix": b.prefix})
	}
	if err != nil {
		b.log.Warn("bot_command_failed", zap.String("command", command), zap.Error(err))
		return b.render("bot.error", nil)
	}
	return text
}

func (b *Bot) currentGames(ctx context.Context) (string, error) {
	games, err := b.ledger.ListCurrent(ctx, "")
	if err != nil {
		return "", err
	}
	if len(games) == 0 {
		return b.render("bot.current.empty", nil), nil
	}
	names, err := b.playerNames(ctx, games)
	if err != nil {
		return "", err
	}
	now := b.now()
	lines := make([]string, 0, len(games))
	for _, g := range games {
		lines = append(lines, b.render("bot.current.line", map[string]any{
			"Game":   g.Name,
			"Turn":   g.TurnNumber,
			"Player": names[g.NextPlayerID],
			"Since":  timefmt.SinceText(g.LastTurnAt, now),
		}))
	}
	return util.ListMessage(b.render("bot.current.header", nil), lines, b.foldAfter), nil
}

func (b *Bot) completedGames(ctx context.Context) (string, error) {
	games, err := b.ledger.ListCompleted(ctx)
	if err != nil {
		return "", err
	}
	if len(games) == 0 {
		return b.render("bot.completed.empty", nil), nil
	}
	ids := make([]string, 0, len(games))
	for _, g := range games {
		ids = append(ids, g.Winner)
	}
	players, err := b.ledger.Players(ctx, ids)
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(games))
	for _, g := range games {
		winner := g.Winner
		if p, ok := players[winner]; ok {
			winner = displayName(p)
		}
		lines = append(lines, b.render("bot.completed.line", map[string]any{
			"Game":   g.Name,
			"Turn":   g.TurnNumber,
			"Winner": winner,
		}))
	}
	return util.ListMessage(b.render("bot.completed.header", nil), lines, b.foldAfter), nil
}

func (b *Bot) blame(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return b.render("bot.blame.missing", map[string]any{"Prefix": b.prefix}), nil
	}
	p, err := b.ledger.FindPlayer(ctx, ref)
	if errors.Is(err, ledger.ErrPlayerNotFound) {
		return b.render("bot.blame.unknown", map[string]any{"Player": ref}), nil
	}
	if err != nil {
		return "", err
	}
	name := displayName(p)

	games, err := b.ledger.ListCurrent(ctx, p.ID)
	if err != nil {
		return "", err
	}
	if len(games) == 0 {
		return b.render("bot.blame.none", map[string]any{"Player": name}), nil
	}
	counts, err := b.ledger.Counts(ctx)
	if err != nil {
		return "", err
	}

	now := b.now()
	lines := make([]string, 0, len(games)+1)
	for _, g := range games {
		lines = append(lines, b.render("bot.blame.line", map[string]any{
			"Game":   g.Name,
			"Turn":   g.TurnNumber,
			"Player": name,
			"Since":  timefmt.SinceText(g.LastTurnAt, now),
		}))
	}
	var header string
	if len(games) == 1 {
		header = b.render("bot.blame.one", map[string]any{"Total": counts.Total, "Player": name})
	} else {
		header = b.render("bot.blame.many", map[string]any{"Count": len(games), "Total": counts.Total, "Player": name})
		if len(games) == counts.Total {
			lines = append(lines, b.render("bot.blame.all", nil))
		}
	}
	return util.ListMessage(header, lines, b.foldAfter), nil
}

func (b *Bot) counts(ctx context.Context) (string, error) {
	c, err := b.ledger.Counts(ctx)
	if err != nil {
		return "", err
	}
	return b.render("bot.counts", map[string]any{
		"Total":     c.Total,
		"Current":   c.Current,
		"Completed": c.Completed,
	}), nil
}

// playerNames maps next-player ids to display names, keeping the id when the directory has no entry.
func (b *Bot) playerNames(ctx context.Context, games []*domain.Game) (map[string]string, error) {
	ids := make([]string, 0, len(games))
	for _, g := range games {
		ids = append(ids, g.NextPlayerID)
	}
	players, err := b.ledger.Players(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if p, ok := players[id]; ok {
			out[id] = displayName(p)
		} else {
			out[id] = id
		}
	}
	return out, nil
}

func displayName(p *domain.Player) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Handle
}

func (b *Bot) render(key string, data any) string {
	text, err := b.cat.Render(key, data)
	if err != nil {
		b.log.Error("bot_render_failed", zap.String("template", key), zap.Error(err))
		return key
	}
	return text
}
