package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"shopchat/internal/metrics"
	"shopchat/internal/models"
	"shopchat/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type inboundFrame struct {
	session *Session
	data    []byte
}

// RoomActor 独占一个房间的全部状态：已注册会话、消息日志和时间戳游标。
// 所有操作经由 run goroutine 串行执行，房间之间完全独立。
type RoomActor struct {
	key       string
	log       store.MessageLog
	history   int
	retention time.Duration

	sessions map[*Session]bool
	lastTs   int64

	register   chan *Session
	unregister chan *Session
	inbound    chan inboundFrame
	online     int32
}

func newRoomActor(key string, msgLog store.MessageLog, history int, retention time.Duration) *RoomActor {
	return &RoomActor{
		key:        key,
		log:        msgLog,
		history:    history,
		retention:  retention,
		sessions:   make(map[*Session]bool),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		inbound:    make(chan inboundFrame, 256),
	}
}

func (r *RoomActor) run() {
	for {
		select {
		case s := <-r.register:
			r.handleConnect(s)
		case s := <-r.unregister:
			r.handleDisconnect(s)
		case f := <-r.inbound:
			r.handleReceive(f.session, f.data)
		}
	}
}

// connect 把新会话移交给房间 goroutine。
func (r *RoomActor) connect(s *Session) { r.register <- s }

func (r *RoomActor) receive(s *Session, data []byte) {
	r.inbound <- inboundFrame{session: s, data: data}
}

func (r *RoomActor) disconnect(s *Session) { r.unregister <- s }

// Online 返回房间当前在线会话数，供 REST 接口复用。
func (r *RoomActor) Online() int { return int(atomic.LoadInt32(&r.online)) }

// handleConnect 依次执行：保留期清理、历史回放、注册会话。
// 日志读失败只损失回放，连接照常建立。
func (r *RoomActor) handleConnect(s *Session) {
	ctx := context.Background()
	cutoff := time.Now().Add(-r.retention).UnixMilli()
	if err := r.log.Prune(ctx, r.key, cutoff); err != nil {
		log.Error().Err(err).Str("room", r.key).Msg("retention sweep")
	}

	msgs, err := r.log.Recent(ctx, r.key, r.history, 0)
	if err != nil {
		log.Error().Err(err).Str("room", r.key).Msg("load history")
		msgs = nil
	}
	if n := len(msgs); n > 0 && msgs[n-1].Timestamp > r.lastTs {
		r.lastTs = msgs[n-1].Timestamp
	}
	if b, err := historyEvent(msgs); err == nil {
		s.trySend(b)
	}

	r.sessions[s] = true
	atomic.StoreInt32(&r.online, int32(len(r.sessions)))
	metrics.WsConnections.Inc()
}

func (r *RoomActor) handleDisconnect(s *Session) {
	if _, ok := r.sessions[s]; !ok {
		return
	}
	delete(r.sessions, s)
	s.shutdown()
	atomic.StoreInt32(&r.online, int32(len(r.sessions)))
	metrics.WsConnections.Dec()
}

// handleReceive 解析信封并落库后广播。坏消息只回给发送者，
// 落库失败不广播，保证接收方看到的消息一定能在历史里回放出来。
func (r *RoomActor) handleReceive(s *Session, data []byte) {
	if !r.sessions[s] {
		// 被淘汰会话的在途帧直接丢弃。
		return
	}
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil || in.Type != EventMessage || in.Content == "" {
		s.trySend(errorEvent("invalid message"))
		return
	}
	msgType := in.MessageType
	if msgType == "" {
		msgType = models.MessageText
	}

	msg := &models.ChatMessage{
		RoomKey:    r.key,
		Timestamp:  r.nextTimestamp(),
		ID:         uuid.NewString(),
		SenderID:   s.Identity.UserID,
		SenderName: s.Identity.Username,
		Content:    in.Content,
		Type:       msgType,
		Product:    in.Product,
	}
	if err := r.log.Append(context.Background(), msg); err != nil {
		log.Error().Err(err).Str("room", r.key).Msg("persist message")
		s.trySend(errorEvent("message not delivered"))
		return
	}

	b, err := messageEvent(msg)
	if err != nil {
		return
	}
	metrics.WsMessagesTotal.Inc()
	r.broadcast(b)
}

// broadcast 尽力投递：单个会话失败只淘汰它自己，不影响其余会话。
func (r *RoomActor) broadcast(data []byte) {
	for s := range r.sessions {
		if !s.trySend(data) {
			delete(r.sessions, s)
			s.shutdown()
			metrics.WsConnections.Dec()
		}
	}
	atomic.StoreInt32(&r.online, int32(len(r.sessions)))
}

// nextTimestamp 取当前毫秒时间戳，同毫秒内落到上一条之后，
// 保证存储键在本房间内严格递增。
func (r *RoomActor) nextTimestamp() int64 {
	ts := time.Now().UnixMilli()
	if ts <= r.lastTs {
		ts = r.lastTs + 1
	}
	r.lastTs = ts
	return ts
}
