package httpapi

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/park285/turnledger/pkg/turndto"
)

type currentGamesQuery struct {
	PlayerToBlame string `query:"player_to_blame" description:"Player id, handle or name; narrows to games waiting on them."`
}

type gamePath struct {
	Name string `path:"name"`
}

type deleteGameQuery struct {
	GameToDelete string `query:"game_to_delete" required:"true"`
}

type completeGameQuery struct {
	GameName string `query:"game_name" required:"true"`
}

type setWinnerQuery struct {
	GameName string `query:"game_name" required:"true"`
	Winner   string `query:"winner" required:"true"`
}

type playerPath struct {
	Ref string `path:"ref"`
}

type updatePlayerInput struct {
	Ref string `path:"ref"`
	turndto.UpdatePlayerRequest
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Turn Ledger API"
	r.Spec.Info.Version = "1.0.0"
	r.Spec.Info.WithDescription("Tracks whose turn it is in asynchronous Civilization games.")

	type op struct {
		method, path, summary string
		req                   any
		resp                  []resp
	}
	ops := []op{
		{http.MethodGet, "/healthz", "Health check", nil, []resp{
			{HealthResponse{}, http.StatusOK}, {HealthResponse{}, http.StatusServiceUnavailable},
		}},
		{http.MethodPost, "/webhook", "Play by Cloud turn notification", turndto.WebhookTurn{}, turnResponses},
		{http.MethodPost, "/pydt", "Play Your Damn Turn notification", turndto.PYDTTurn{}, turnResponses},
		{http.MethodGet, "/current_games", "Games in progress", currentGamesQuery{}, []resp{
			{turndto.GameList{}, http.StatusOK}, {turndto.DomainError{}, http.StatusNotFound},
		}},
		{http.MethodGet, "/completed_games", "Completed games", nil, []resp{{turndto.GameList{}, http.StatusOK}}},
		{http.MethodGet, "/game_counts", "Record and membership counts", nil, []resp{{turndto.GameCounts{}, http.StatusOK}}},
		{http.MethodGet, "/total_number_of_games", "Total record count", nil, []resp{{0, http.StatusOK}}},
		{http.MethodGet, "/games/{name}", "Game detail", gamePath{}, []resp{
			{turndto.Game{}, http.StatusOK}, {turndto.DomainError{}, http.StatusNotFound},
		}},
		{http.MethodDelete, "/delete_game", "Delete a game", deleteGameQuery{}, []resp{
			{turndto.DeletedGame{}, http.StatusOK}, {turndto.DomainError{}, http.StatusNotFound},
		}},
		{http.MethodPut, "/complete_game", "Mark a game completed", completeGameQuery{}, []resp{
			{turndto.CompletedGame{}, http.StatusOK}, {turndto.DomainError{}, http.StatusNotFound},
		}},
		{http.MethodPut, "/set_winner", "Record the winner", setWinnerQuery{}, []resp{
			{turndto.Game{}, http.StatusOK}, {turndto.DomainError{}, http.StatusNotFound},
			{turndto.DomainError{}, http.StatusBadRequest},
		}},
		{http.MethodPost, "/reconcile", "Rebuild membership lists from records", nil, []resp{
			{turndto.ReconcileReport{}, http.StatusOK},
		}},
		{http.MethodGet, "/players/{ref}", "Player directory entry", playerPath{}, []resp{
			{turndto.Player{}, http.StatusOK}, {turndto.DomainError{}, http.StatusNotFound},
		}},
		{http.MethodPut, "/players/{ref}", "Rename a player or set their chat handle", updatePlayerInput{}, []resp{
			{turndto.Player{}, http.StatusOK}, {turndto.DomainError{}, http.StatusNotFound},
		}},
	}

	for _, o := range ops {
		oc, err := r.NewOperationContext(o.method, o.path)
		if err != nil {
			continue
		}
		oc.SetSummary(o.summary)
		if o.req != nil {
			oc.AddReqStructure(o.req)
		}
		for _, rs := range o.resp {
			oc.AddRespStructure(rs.body, openapi.WithHTTPStatus(rs.status))
		}
		_ = r.AddOperation(oc)
	}
	return r.Spec
}

type resp struct {
	body   any
	status int
}

var turnResponses = []resp{
	{turndto.TurnResult{}, http.StatusCreated},
	{turndto.TurnResult{}, http.StatusConflict},
	{turndto.DomainError{}, http.StatusBadRequest},
}

func handleOpenAPI() http.HandlerFunc {
	data, _ := json.MarshalIndent(newOpenAPISpec(), "", "  ")
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
