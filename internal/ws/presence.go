package ws

import (
	"context"
	"encoding/json"
	"time"

	"shopchat/internal/metrics"
	"shopchat/internal/models"
	"shopchat/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type notifyRequest struct {
	targetKey string
	payload   []byte
}

// PresenceActor 是全局唯一的在线名录：每个已登录用户至多一条记录，
// 同时承载一个公共聊天频道，并把跨房间通知转发给在线的目标用户。
// 与房间 actor 一样，全部状态由单个 goroutine 独占。
type PresenceActor struct {
	log store.GeneralLog

	entries map[string]*Session // userID -> session
	lastTs  int64

	register   chan *Session
	unregister chan *Session
	inbound    chan inboundFrame
	notify     chan notifyRequest
}

func NewPresenceActor(generalLog store.GeneralLog) *PresenceActor {
	return &PresenceActor{
		log:        generalLog,
		entries:    make(map[string]*Session),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		inbound:    make(chan inboundFrame, 256),
		notify:     make(chan notifyRequest, 64),
	}
}

// Run 启动名录 goroutine，进程存续期间不退出。
func (p *PresenceActor) Run() {
	for {
		select {
		case s := <-p.register:
			p.handleConnect(s)
		case s := <-p.unregister:
			p.handleDisconnect(s)
		case f := <-p.inbound:
			p.handleReceive(f.session, f.data)
		case n := <-p.notify:
			p.handleNotify(n)
		}
	}
}

func (p *PresenceActor) connect(s *Session) { p.register <- s }

func (p *PresenceActor) receive(s *Session, data []byte) {
	p.inbound <- inboundFrame{session: s, data: data}
}

func (p *PresenceActor) disconnect(s *Session) { p.unregister <- s }

// Notify 把通知转发给 shopSlug 匹配的在线用户；目标不在线则静默丢弃。
// 调用方永远得到成功，投递是尽力而为的。
func (p *PresenceActor) Notify(targetKey string, payload []byte) {
	p.notify <- notifyRequest{targetKey: targetKey, payload: payload}
}

// handleConnect 注册名录项（同一用户的旧连接被顶替），向其他人广播
// 上线事件，再把完整在线列表和公共频道历史发给新连接。
func (p *PresenceActor) handleConnect(s *Session) {
	uid := s.Identity.UserID
	if prev, ok := p.entries[uid]; ok && prev != s {
		delete(p.entries, uid)
		prev.shutdown()
		metrics.WsConnections.Dec()
	}
	p.entries[uid] = s
	metrics.WsConnections.Inc()
	metrics.OnlineUsers.Set(float64(len(p.entries)))

	if b, err := presenceEvent(s.Identity, StatusOnline); err == nil {
		p.broadcastExcept(b, s)
	}

	users := make([]models.OnlineUser, 0, len(p.entries))
	for _, e := range p.entries {
		users = append(users, models.OnlineUser{
			UserID:   e.Identity.UserID,
			Username: e.Identity.Username,
			Status:   StatusOnline,
		})
	}
	if b, err := onlineUsersEvent(users); err == nil {
		s.trySend(b)
	}

	msgs, err := p.log.Recent(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("load general history")
		msgs = nil
	}
	if n := len(msgs); n > 0 && msgs[n-1].Timestamp > p.lastTs {
		p.lastTs = msgs[n-1].Timestamp
	}
	if b, err := historyEvent(msgs); err == nil {
		s.trySend(b)
	}
}

// handleDisconnect 只在名录项仍指向该会话时移除：被顶替的旧连接
// 断开时名录里已经是新连接，不能误删。
func (p *PresenceActor) handleDisconnect(s *Session) {
	uid := s.Identity.UserID
	if p.entries[uid] != s {
		return
	}
	delete(p.entries, uid)
	s.shutdown()
	metrics.WsConnections.Dec()
	metrics.OnlineUsers.Set(float64(len(p.entries)))

	if b, err := presenceEvent(s.Identity, StatusOffline); err == nil {
		p.broadcastExcept(b, nil)
	}
}

func (p *PresenceActor) handleReceive(s *Session, data []byte) {
	if p.entries[s.Identity.UserID] != s {
		// 被顶替或淘汰的连接可能仍有在途帧，直接丢弃。
		return
	}
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil || in.Type != EventChatMessage || in.Content == "" {
		s.trySend(errorEvent("invalid message"))
		return
	}

	msg := &models.ChatMessage{
		Timestamp:  p.nextTimestamp(),
		ID:         uuid.NewString(),
		SenderID:   s.Identity.UserID,
		SenderName: s.Identity.Username,
		Content:    in.Content,
		Type:       models.MessageText,
	}
	if err := p.log.Append(context.Background(), msg); err != nil {
		log.Error().Err(err).Msg("persist general message")
		s.trySend(errorEvent("message not delivered"))
		return
	}

	if b, err := chatMessageEvent(msg); err == nil {
		metrics.WsMessagesTotal.Inc()
		p.broadcastExcept(b, nil)
	}
}

func (p *PresenceActor) handleNotify(n notifyRequest) {
	for _, s := range p.entries {
		if s.Identity.ShopSlug != "" && s.Identity.ShopSlug == n.targetKey {
			if s.trySend(n.payload) {
				metrics.NotifyTotal.WithLabelValues("delivered").Inc()
			} else {
				metrics.NotifyTotal.WithLabelValues("dropped").Inc()
			}
			return
		}
	}
	metrics.NotifyTotal.WithLabelValues("offline").Inc()
}

// broadcastExcept 向除 skip 外的所有名录项尽力投递，投递失败的连接被淘汰。
func (p *PresenceActor) broadcastExcept(data []byte, skip *Session) {
	for uid, s := range p.entries {
		if s == skip {
			continue
		}
		if !s.trySend(data) {
			delete(p.entries, uid)
			s.shutdown()
			metrics.WsConnections.Dec()
		}
	}
	metrics.OnlineUsers.Set(float64(len(p.entries)))
}

func (p *PresenceActor) nextTimestamp() int64 {
	ts := time.Now().UnixMilli()
	if ts <= p.lastTs {
		ts = p.lastTs + 1
	}
	p.lastTs = ts
	return ts
}
