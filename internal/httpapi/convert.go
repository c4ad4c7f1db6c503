package httpapi

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/park285/turnledger/internal/domain"
	"github.com/park285/turnledger/internal/ledger"
	"github.com/park285/turnledger/pkg/turndto"
)

// gameDTOs resolves every player id referenced by games in one directory pass.
func (a *API) gameDTOs(r *http.Request, games []*domain.Game) ([]turndto.Game, error) {
	var ids []string
	for _, g := range games {
		ids = append(ids, g.NextPlayerID, g.Winner)
		ids = append(ids, g.AllPlayers...)
	}
	players, err := a.ledger.Players(r.Context(), ids)
	if err != nil {
		return nil, err
	}
	out := make([]turndto.Game, 0, len(games))
	for _, g := range games {
		out = append(out, toGame(g, players))
	}
	return out, nil
}

func (a *API) gameDTO(r *http.Request, g *domain.Game) (turndto.Game, error) {
	games, err := a.gameDTOs(r, []*domain.Game{g})
	if err != nil {
		return turndto.Game{}, err
	}
	return games[0], nil
}

func toGame(g *domain.Game, players map[string]*domain.Player) turndto.Game {
	name := func(id string) string {
		if p, ok := players[id]; ok {
			return p.DisplayName
		}
		return id
	}
	all := make([]string, 0, len(g.AllPlayers))
	for _, id := range g.AllPlayers {
		all = append(all, name(id))
	}
	deltas := g.TurnDeltas
	if deltas == nil {
		deltas = []int64{}
	}
	return turndto.Game{
		GameName: g.Name,
		GameInfo: turndto.GameInfo{
			PlayerName:      name(g.NextPlayerID),
			PlayerID:        g.NextPlayerID,
			TurnNumber:      g.TurnNumber,
			GameCompleted:   g.Completed,
			TimeStamp:       g.LastTurnAt,
			TurnDeltas:      deltas,
			AverageTurnTime: g.AverageTurnTime,
			AllPlayers:      all,
			Winner:          name(g.Winner),
			CreatedAt:       g.CreatedAt,
			Version:         g.Version,
		},
	}
}

func toPlayer(p *domain.Player) turndto.Player {
	return turndto.Player{
		ID:          p.ID,
		Handle:      p.Handle,
		DisplayName: p.DisplayName,
		ChatHandle:  p.ChatHandle,
		CreatedAt:   p.CreatedAt,
	}
}

func toReport(rep *ledger.ReconcileReport) turndto.ReconcileReport {
	out := turndto.ReconcileReport{
		CurrentGames:   rep.Current,
		CompletedGames: rep.Completed,
		Added:          rep.Added,
		Dropped:        rep.Dropped,
		Changed:        rep.Changed(),
	}
	if out.Added == nil {
		out.Added = []string{}
	}
	if out.Dropped == nil {
		out.Dropped = []string{}
	}
	return out
}

// pathParam returns a decoded chi URL parameter. Names may contain spaces and apostrophes.
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if s, err := url.PathUnescape(raw); err == nil {
		raw = s
	}
	return strings.TrimSpace(raw)
}

func queryParam(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}
