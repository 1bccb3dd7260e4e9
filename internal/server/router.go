package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"shopchat/internal/auth"
	"shopchat/internal/config"
	"shopchat/internal/metrics"
	"shopchat/internal/mw"
	"shopchat/internal/service"
	"shopchat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// SetupRouter 统一初始化中间件、WebSocket 端点和周边 REST 接口。
func SetupRouter(cfg config.Config, hub *ws.Hub, presence *ws.PresenceActor, histSvc *service.HistoryService) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env, cfg.AllowedOrigins))
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ws/room", ws.ServeRoom(hub, cfg))
	r.GET("/ws/presence", ws.ServePresence(presence, cfg))

	api := r.Group("/api/v1")
	api.Use(auth.Middleware(cfg.JWTSecret))

	api.GET("/rooms/:key/messages", func(c *gin.Context) {
		roomKey := c.Param("key")
		limitStr := c.Query("limit")
		if limitStr == "" {
			limitStr = "50"
		}
		limit, _ := strconv.Atoi(limitStr)
		var before int64
		if b := c.Query("before"); b != "" {
			if v, err := strconv.ParseInt(b, 10, 64); err == nil && v > 0 {
				before = v
			}
		}
		msgs, err := histSvc.ListByRoom(c.Request.Context(), roomKey, limit, before)
		if err != nil {
			if errors.Is(err, service.ErrRoomKeyRequired) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room key"})
				return
			}
			log.Error().Err(err).Str("room", roomKey).Msg("list messages")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs, "online": hub.Online(roomKey)})
	})

	// 内部协作方（商城 API）调用的通知转发：目标不在线也返回成功。
	internal := r.Group("/internal")
	internal.Use(auth.ServiceToken(cfg.ServiceToken))

	internal.POST("/notify", func(c *gin.Context) {
		var req struct {
			TargetKey    string          `json:"targetKey"`
			Notification json.RawMessage `json:"notification"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.TargetKey == "" || len(req.Notification) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
			return
		}
		presence.Notify(req.TargetKey, req.Notification)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
