package models

// MessageType 区分消息载荷的类型，图片和文件消息的 content 存的是引用 key。
type MessageType string

const (
	MessageText  MessageType = "TEXT"
	MessageImage MessageType = "IMAGE"
	MessageFile  MessageType = "FILE"
)

// ProductSnapshot 是商品询价消息附带的商品快照，写入后不再随商品变动。
type ProductSnapshot struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Image string  `json:"image"`
	Price float64 `json:"price"`
}

// ChatMessage 是房间消息日志中的一条记录。
// Timestamp 同时充当存储键：毫秒时间戳，由房间 actor 保证同房间内严格递增。
type ChatMessage struct {
	RoomKey    string           `gorm:"primaryKey;size:191" json:"-"`
	Timestamp  int64            `gorm:"primaryKey;autoIncrement:false" json:"timestamp"`
	ID         string           `gorm:"column:message_id;size:36;not null" json:"id"`
	SenderID   string           `gorm:"size:64;not null;index" json:"senderId"`
	SenderName string           `gorm:"size:64;not null" json:"senderName"`
	Content    string           `gorm:"type:text;not null" json:"content"`
	Type       MessageType      `gorm:"size:8;not null" json:"type"`
	Product    *ProductSnapshot `gorm:"serializer:json" json:"product,omitempty"`
}

// Identity 是一次连接携带的身份，由路由层在升级前解析完成。
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	ShopSlug string `json:"shopSlug,omitempty"`
	Guest    bool   `json:"-"`
}

// OnlineUser 是在线名录对外输出的一行。
type OnlineUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Status   string `json:"status"`
}
