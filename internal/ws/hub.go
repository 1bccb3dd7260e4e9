package ws

import (
	"sync"
	"time"

	"shopchat/internal/auth"
	"shopchat/internal/models"
	"shopchat/internal/store"
)

// Hub 按房间 key 管理 RoomActor，延迟创建并保证同 key 永远命中同一实例。
type Hub struct {
	mu        sync.RWMutex
	rooms     map[string]*RoomActor
	log       store.MessageLog
	history   int
	retention time.Duration
}

func NewHub(msgLog store.MessageLog, history, retentionDays int) *Hub {
	return &Hub{
		rooms:     make(map[string]*RoomActor),
		log:       msgLog,
		history:   history,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
}

// GetRoom 若房间未初始化则懒加载一个 RoomActor 并启动其 goroutine。
func (h *Hub) GetRoom(key string) *RoomActor {
	h.mu.RLock()
	room := h.rooms[key]
	h.mu.RUnlock()
	if room != nil {
		return room
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	room = h.rooms[key]
	if room != nil {
		return room
	}
	room = newRoomActor(key, h.log, h.history, h.retention)
	h.rooms[key] = room
	go room.run()
	return room
}

func (h *Hub) Online(key string) int {
	h.mu.RLock()
	room := h.rooms[key]
	h.mu.RUnlock()
	if room == nil {
		return 0
	}
	return room.Online()
}

// DeriveRoomKey 由参与方推导稳定的房间 key：同一对参与者无论从哪一端
// 发起都会落到同一个房间。counterpart 可以是另一家店铺的 slug、买家的
// userId，也可以是 auth.GuestKey 生成的访客标识。
func DeriveRoomKey(shopSlug, counterpart string) string {
	if counterpart == "" {
		return shopSlug
	}
	if auth.IsGuestKey(counterpart) {
		return shopSlug + "|" + counterpart
	}
	a, b := shopSlug, counterpart
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// resolveRoomKey 结合目标店铺、可选的 peer 参数与调用方身份得到房间 key。
// 店主查看某段会话时显式携带 peer，其余调用方用自身身份充当对端。
func resolveRoomKey(shop, peer string, id models.Identity) string {
	if peer == "" && id.ShopSlug != shop {
		peer = id.ShopSlug
		if peer == "" {
			peer = id.UserID
		}
	}
	return DeriveRoomKey(shop, peer)
}
