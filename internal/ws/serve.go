package ws

import (
	"net/http"

	"shopchat/internal/auth"
	"shopchat/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeRoom 处理房间通道的连接升级：shop 必填，可选 peer 指定对端参与方，
// 身份走 token 或 guest 参数。房间 key 由目标店铺和对端身份推导，同一段
// 会话的两端落到同一个房间。身份解析失败时在升级前拒绝。
func ServeRoom(hub *Hub, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		shop := c.Query("shop")
		if shop == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing shop"})
			return
		}
		identity, err := auth.ResolveIdentity(c, cfg.JWTSecret, true)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		room := hub.GetRoom(resolveRoomKey(shop, c.Query("peer"), identity))
		s := newSession(identity, conn)
		room.connect(s)

		go s.writePump()
		s.readPump(room)
	}
}

// ServePresence 处理在线名录通道的连接升级，只接受已登录用户。
func ServePresence(p *PresenceActor, cfg config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := auth.ResolveIdentity(c, cfg.JWTSecret, false)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		s := newSession(identity, conn)
		p.connect(s)

		go s.writePump()
		s.readPump(p)
	}
}
