package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/arcadeparty/arcade-backend/internal/registry"
	"github.com/arcadeparty/arcade-backend/internal/ws"
)

func SetupRoutes(reg *registry.Registry, q LeaderboardQuerier, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/leaderboard/{gameID}", DurableLeaderboard(q, log))
	r.Get("/session/{sessionID}/status", SessionStatus(reg))
	r.Get("/ws", ws.Handler(reg, log))

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}).Handler(r)
}
