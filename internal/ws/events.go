package ws

import (
	"encoding/json"

	"shopchat/internal/models"
)

// 服务端事件类型。
const (
	EventHistory     = "HISTORY"
	EventMessage     = "MESSAGE"
	EventPresence    = "PRESENCE"
	EventOnlineUsers = "ONLINE_USERS"
	EventChatMessage = "CHAT_MESSAGE"
)

const (
	StatusOnline  = "ONLINE"
	StatusOffline = "OFFLINE"
)

// Inbound 是客户端发来的统一信封。房间通道用 MESSAGE，
// 公共频道用 CHAT_MESSAGE。
type Inbound struct {
	Type        string                  `json:"type"`
	Content     string                  `json:"content"`
	MessageType models.MessageType      `json:"messageType,omitempty"`
	Product     *models.ProductSnapshot `json:"product,omitempty"`
}

func historyEvent(msgs []models.ChatMessage) ([]byte, error) {
	if msgs == nil {
		msgs = []models.ChatMessage{}
	}
	return json.Marshal(map[string]interface{}{"type": EventHistory, "messages": msgs})
}

func messageEvent(m *models.ChatMessage) ([]byte, error) {
	return json.Marshal(map[string]interface{}{"type": EventMessage, "message": m})
}

func chatMessageEvent(m *models.ChatMessage) ([]byte, error) {
	return json.Marshal(map[string]interface{}{"type": EventChatMessage, "message": m})
}

func presenceEvent(id models.Identity, status string) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"type":     EventPresence,
		"userId":   id.UserID,
		"username": id.Username,
		"status":   status,
	})
}

func onlineUsersEvent(users []models.OnlineUser) ([]byte, error) {
	if users == nil {
		users = []models.OnlineUser{}
	}
	return json.Marshal(map[string]interface{}{"type": EventOnlineUsers, "users": users})
}

func errorEvent(msg string) []byte {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return b
}
