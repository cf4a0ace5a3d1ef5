package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Relay/internal/adapters/signal"
	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/domain"
	"github.com/dkeye/Relay/internal/store"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware stamps every browser with a long-lived "ct" cookie
// used to correlate its connections in logs.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter wires the websocket endpoint and the REST API. ctx bounds the
// lifetime of every websocket connection.
func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, st store.Store) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookies := cookie.NewStore([]byte(cfg.Secret))
	cookies.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("RelaySessions", cookies))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"rooms":    o.Rooms.Len(),
			"sessions": o.Registry.Len(),
		})
	})

	ctrl := signal.NewSignalWSController(o, signal.Options{
		ReadLimit:  cfg.WS.ReadLimit,
		PingPeriod: cfg.WS.PingPeriod,
		SendBuffer: cfg.WS.SendBuffer,
	})
	api := &API{Rooms: o.Rooms, Store: st, Router: o}

	g := r.Group("/api")
	g.GET("/ws", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("ct", c.GetString("client_token")).Msg("ws endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	g.GET("/rooms", api.listRooms)
	g.GET("/rooms/:id/members", api.roomMembers)

	g.GET("/messages/:roomId", api.history)
	g.PUT("/messages/mark-as-read", api.markRoomRead)

	g.GET("/groups", api.listGroups)
	g.POST("/groups", api.createGroup)
	g.GET("/groupMessages/:groupId", api.groupHistory)

	user := g.Group("", RequireUser())
	user.GET("/notifications", api.notifications(domain.NotifyMessage))
	user.GET("/notifications/unread-count", api.unreadCount)
	user.PUT("/notifications/mark-as-read", api.markNotificationsRead(domain.NotifyMessage))
	user.PUT("/notifications/:id", api.markNotificationRead)
	user.GET("/groupNotifications", api.notifications(domain.NotifyGroupMessage))
	user.PUT("/groupNotifications/mark-as-read", api.markNotificationsRead(domain.NotifyGroupMessage))
	user.PUT("/groupNotifications/:id", api.markNotificationRead)
	user.POST("/groupMessages/:groupId", api.postGroupMessage)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
