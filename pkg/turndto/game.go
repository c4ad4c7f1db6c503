package turndto

import "time"

// GameInfo mirrors one game record with player ids resolved to names.
type GameInfo struct {
	PlayerName      string    `json:"player_name"`
	PlayerID        string    `json:"player_id"`
	TurnNumber      int       `json:"turn_number"`
	GameCompleted   bool      `json:"game_completed"`
	TimeStamp       time.Time `json:"time_stamp"`
	TurnDeltas      []int64   `json:"turn_deltas"`
	AverageTurnTime string    `json:"average_turn_time"`
	AllPlayers      []string  `json:"all_players"`
	Winner          string    `json:"winner,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	Version         int64     `json:"version"`
}

type Game struct {
	GameName string   `json:"game_name"`
	GameInfo GameInfo `json:"game_info"`
}

// GameList keeps the ledger's ordering: oldest pending turn first.
type GameList struct {
	Games []Game `json:"games"`
}

type GameCounts struct {
	TotalGames     int  `json:"total_games"`
	CurrentGames   int  `json:"current_games"`
	CompletedGames int  `json:"completed_games"`
	Consistent     bool `json:"consistent"`
}

type DeletedGame struct {
	DeletedGameName string `json:"deleted_game_name"`
}

type CompletedGame struct {
	CompletedGame string `json:"completed_game"`
}

type ReconcileReport struct {
	CurrentGames   int      `json:"current_games"`
	CompletedGames int      `json:"completed_games"`
	Added          []string `json:"added"`
	Dropped        []string `json:"dropped"`
	Changed        bool     `json:"changed"`
}

type Player struct {
	ID          string    `json:"id"`
	Handle      string    `json:"handle"`
	DisplayName string    `json:"display_name"`
	ChatHandle  string    `json:"chat_handle,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type UpdatePlayerRequest struct {
	DisplayName string `json:"display_name"`
	ChatHandle  string `json:"chat_handle"`
}
