package domain

import "time"

// Game is the authoritative record of one game session, keyed by Name.
type Game struct {
	Name            string    `json:"game_name"`
	NextPlayerID    string    `json:"next_player_id"`
	TurnNumber      int       `json:"turn_number"`
	Completed       bool      `json:"game_completed"`
	LastTurnAt      time.Time `json:"last_turn_at"`
	TurnDeltas      []int64   `json:"turn_deltas"`
	AverageTurnTime string    `json:"average_turn_time"`
	AllPlayers      []string  `json:"all_players"`
	Winner          string    `json:"winner,omitempty"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
}

// HasPlayer reports whether id ever held the next turn.
func (g *Game) HasPlayer(id string) bool {
	for _, p := range g.AllPlayers {
		if p == id {
			return true
		}
	}
	return false
}

// AddPlayer records id in AllPlayers once.
func (g *Game) AddPlayer(id string) {
	if id == "" || g.HasPlayer(id) {
		return
	}
	g.AllPlayers = append(g.AllPlayers, id)
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	c := *g
	c.TurnDeltas = append([]int64(nil), g.TurnDeltas...)
	c.AllPlayers = append([]string(nil), g.AllPlayers...)
	return &c
}

// Player is a directory entry mapping an external notifier handle to an internal id.
type Player struct {
	ID          string    `json:"id"`
	Handle      string    `json:"handle"`
	DisplayName string    `json:"display_name"`
	ChatHandle  string    `json:"chat_handle,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Mention is the name used when addressing the player in chat.
func (p *Player) Mention() string {
	if p == nil {
		return ""
	}
	if p.ChatHandle != "" {
		return p.ChatHandle
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Handle
}

// MembershipKind names one of the two membership singletons.
type MembershipKind string

const (
	MembershipCurrent   MembershipKind = "current"
	MembershipCompleted MembershipKind = "completed"
)
