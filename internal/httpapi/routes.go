package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/swaggest/swgui/v5emb"
	"go.uber.org/zap"

	"github.com/park285/turnledger/internal/domain"
	"github.com/park285/turnledger/internal/ledger"
	"github.com/park285/turnledger/internal/obslog"
)

// Ledger is everything the HTTP surface calls on the turn ledger.
type Ledger interface {
	Ingest(ctx context.Context, ev ledger.TurnEvent) (*ledger.IngestResult, error)
	ListCurrent(ctx context.Context, player string) ([]*domain.Game, error)
	ListCompleted(ctx context.Context) ([]*domain.Game, error)
	Counts(ctx context.Context) (ledger.Counts, error)
	Game(ctx context.Context, name string) (*domain.Game, error)
	DeleteGame(ctx context.Context, name string) error
	CompleteGame(ctx context.Context, name string) (*domain.Game, error)
	SetWinner(ctx context.Context, name, winner string) (*domain.Game, error)
	Reconcile(ctx context.Context) (*ledger.ReconcileReport, error)
	FindPlayer(ctx context.Context, ref string) (*domain.Player, error)
	Players(ctx context.Context, ids []string) (map[string]*domain.Player, error)
	Rename(ctx context.Context, ref, displayName, chatHandle string) (*domain.Player, error)
}

type API struct {
	ledger Ledger
	checks map[string]Checker
	log    *zap.Logger
}

func New(l Ledger, checks map[string]Checker, log *zap.Logger) *API {
	if log == nil {
		log = obslog.Named("http")
	}
	return &API{ledger: l, checks: checks, log: log}
}

// Handler builds the chi router with request id, real ip, logging and panic recovery.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.log))
	r.Use(middleware.Recoverer)

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Turn Ledger API", "/openapi.json", "/docs"))
	r.Get("/healthz", handleHealth(a.log, a.checks))

	// Notifier integrations.
	r.Post("/webhook", a.handleWebhookTurn)
	r.Post("/pydt", a.handlePYDTTurn)

	r.Get("/current_games", a.handleCurrentGames)
	r.Get("/completed_games", a.handleCompletedGames)
	r.Get("/game_counts", a.handleGameCounts)
	r.Get("/total_number_of_games", a.handleTotalGames)
	r.Get("/games/{name}", a.handleGetGame)

	r.Delete("/delete_game", a.handleDeleteGame)
	r.Put("/complete_game", a.handleCompleteGame)
	r.Put("/set_winner", a.handleSetWinner)
	r.Post("/reconcile", a.handleReconcile)

	r.Get("/players/{ref}", a.handleGetPlayer)
	r.Put("/players/{ref}", a.handleUpdatePlayer)
	return r
}
