package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gather/internal/app/notify"
	"github.com/dkeye/Gather/internal/app/orch"
	"github.com/dkeye/Gather/internal/config"
	"github.com/dkeye/Gather/internal/domain"
)

// SetupRouter wires the matchmaking API. auth may be nil, in which case the
// access token itself is taken as the user id.
func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, hub *notify.Hub, auth Authenticator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	if auth == nil {
		auth = TokenIsUser{}
	}
	h := &handlers{orch: o, hub: hub, cfg: cfg}

	r.GET("/healthz", func(c *gin.Context) { c.Status(204) })

	mm := r.Group("/matchmaking", AccessTokenMiddleware(cfg.AccessTokenHeader, auth))

	// definitions
	mm.GET("", h.listDefinitions)
	mm.POST("", h.createDefinition)
	mm.GET("/serviceClass", h.serviceClasses)
	mm.GET("/:name", h.getDefinition)
	mm.PUT("/:name", h.updateDefinition)
	mm.DELETE("/:name", h.deleteDefinition)
	mm.GET("/:name/status", h.definitionStatus)

	// every strategy can list and leave its gatherings
	for _, st := range domain.Strategies {
		g := mm.Group("/:name/" + string(st))
		g.GET("/:gatheringId/player", h.joinedUsers(st))
		g.DELETE("/:gatheringId/player", h.leave(st))
	}

	mm.POST("/:name/anybody", h.matchAnybody)
	mm.POST("/:name/customauto", h.matchCustomAuto)

	passcode := mm.Group("/:name/passcode")
	passcode.POST("", h.createPasscodeGathering)
	passcode.POST("/join/:passcode", h.joinByPasscode)
	passcode.DELETE("/:gatheringId", h.breakup(domain.StrategyPasscode))
	passcode.POST("/:gatheringId/complete", h.earlyComplete(domain.StrategyPasscode))

	room := mm.Group("/:name/room")
	room.POST("", h.createRoom)
	room.GET("", h.listRooms)
	room.POST("/:gatheringId", h.joinRoom)
	room.DELETE("/:gatheringId", h.breakup(domain.StrategyRoom))
	room.POST("/:gatheringId/complete", h.earlyComplete(domain.StrategyRoom))

	mm.GET("/:name/gathering/:gatheringId/watch", h.watch(ctx))

	log.Info().
		Str("module", "adapters.http").
		Str("token_header", cfg.AccessTokenHeader).
		Msg("router setup")
	return r
}

type handlers struct {
	orch *orch.Orchestrator
	hub  *notify.Hub
	cfg  *config.Config
}
