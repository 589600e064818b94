package router

import (
	"net/http"

	"github.com/bananalabs-oss/lobby/internal/games"
	"github.com/bananalabs-oss/lobby/internal/metrics"
	potassium "github.com/bananalabs-oss/potassium/middleware"
	"github.com/gin-gonic/gin"
)

// Setup wires the lobby routes. rec may be nil, in which case metrics are
// neither recorded nor exposed.
func Setup(svc *games.Service, rec *metrics.Recorder, jwtSecret, serviceToken string) *gin.Engine {
	r := gin.Default()
	r.Use(RequestID(), Metrics(rec))

	h := games.NewHandler(svc, rec)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "lobby"})
	})

	if rec != nil {
		r.GET("/metrics", gin.WrapH(rec.Handler()))
	}

	// Player-facing endpoints (JWT auth via Potassium)
	api := r.Group("/games")
	api.Use(potassium.JWTAuth(potassium.JWTConfig{
		Secret: []byte(jwtSecret),
	}))
	registerPlayerRoutes(api, h)

	// Internal endpoints (service token auth via Potassium)
	internal := r.Group("/internal/games")
	internal.Use(potassium.ServiceAuth(serviceToken))
	registerInternalRoutes(internal, h)

	return r
}

func registerPlayerRoutes(g *gin.RouterGroup, h *games.Handler) {
	g.GET("", h.ListGames)
	g.GET("/:gameId/players", h.GetPlayers)
	g.POST("/sign", h.SignUp)
	g.POST("/leave", h.Leave)
	g.POST("/start", h.Start)
	g.POST("/code", h.SetJoinCode)
}

func registerInternalRoutes(g *gin.RouterGroup, h *games.Handler) {
	g.GET("/open", h.GetOpenGame)
	g.POST("/evict", h.Evict)
	g.DELETE("/:gameId", h.DeleteGame)
}
