package ws

import (
	"time"

	"shopchat/internal/models"

	"github.com/gorilla/websocket"
)

// endpoint 是会话背后的 actor：房间或在线名录。
type endpoint interface {
	receive(s *Session, data []byte)
	disconnect(s *Session)
}

// Session 是一条活跃连接及其身份，纯内存态，连接断开即销毁。
// 重连会得到一个全新的 Session，不继承任何旧状态。
type Session struct {
	Identity models.Identity
	conn     *websocket.Conn
	send     chan []byte
	closed   bool // 仅由所属 actor goroutine 读写
}

func newSession(identity models.Identity, conn *websocket.Conn) *Session {
	return &Session{Identity: identity, conn: conn, send: make(chan []byte, 256)}
}

// trySend 非阻塞投递：会话已失效或缓冲满返回 false，由调用方决定是否淘汰。
func (s *Session) trySend(data []byte) bool {
	if s.closed {
		return false
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// shutdown 由所属 actor goroutine 调用：标记会话失效并关闭发送通道。
// 对应连接的读取端可能还活着，失效标记保证其在途帧不会再写入已关闭的通道。
func (s *Session) shutdown() {
	s.closed = true
	close(s.send)
}

func (s *Session) readPump(ep endpoint) {
	defer func() {
		ep.disconnect(s)
		_ = s.conn.Close()
	}()
	s.conn.SetReadLimit(1 << 20) // 1MB
	s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			break
		}
		ep.receive(s, data)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := s.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)
			_ = w.Close()
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
