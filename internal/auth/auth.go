package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"shopchat/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims 是商城 API 签发的 access token 载荷。本服务只做验签，
// 不负责注册登录，身份解析完全依赖 claims 自带的字段。
type Claims struct {
	UserID   string `json:"uid"`
	Username string `json:"username"`
	ShopSlug string `json:"shop_slug,omitempty"`
	jwt.RegisteredClaims
}

var (
	ErrMissingIdentity = errors.New("missing identity")
	ErrInvalidToken    = errors.New("invalid token")
)

const guestKeyPrefix = "guest:"

// GuestKey 生成访客的全局标识，和登录用户的 userId 处于不同命名空间，
// 也直接用作房间 key 里的访客参与方。
func GuestKey(guestID string) string {
	return guestKeyPrefix + guestID
}

// IsGuestKey 判断一个参与方标识是否由 GuestKey 生成。
func IsGuestKey(key string) bool {
	return strings.HasPrefix(key, guestKeyPrefix)
}

// GenerateAccessToken 按商城侧的格式签发 token，供本地开发和测试使用。
func GenerateAccessToken(identity models.Identity, secret string, ttlMinutes int) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   identity.UserID,
		Username: identity.Username,
		ShopSlug: identity.ShopSlug,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(ttlMinutes) * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseAccessToken(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// bearerToken 从 Authorization 头或 token query 参数提取 token，
// WebSocket 升级请求通常只能走 query。
func bearerToken(c *gin.Context) string {
	if t := c.Query("token"); t != "" {
		return t
	}
	authz := c.GetHeader("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

// ResolveIdentity 在连接升级前解析身份：token 和 guest 参数二选一。
// allowGuest 为 false 时（presence 通道）只接受 token。
func ResolveIdentity(c *gin.Context, secret string, allowGuest bool) (models.Identity, error) {
	if token := bearerToken(c); token != "" {
		claims, err := ParseAccessToken(token, secret)
		if err != nil {
			return models.Identity{}, ErrInvalidToken
		}
		return models.Identity{
			UserID:   claims.UserID,
			Username: claims.Username,
			ShopSlug: claims.ShopSlug,
		}, nil
	}
	if allowGuest {
		guestID := strings.TrimSpace(c.Query("guestId"))
		guestName := strings.TrimSpace(c.Query("guestName"))
		if guestID != "" && guestName != "" {
			return models.Identity{
				UserID:   GuestKey(guestID),
				Username: guestName,
				Guest:    true,
			}, nil
		}
	}
	return models.Identity{}, ErrMissingIdentity
}

// Middleware 校验 Bearer Token 并把身份写入 gin context，供 REST 接口使用。
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := ParseAccessToken(token, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("identity", models.Identity{UserID: claims.UserID, Username: claims.Username, ShopSlug: claims.ShopSlug})
		c.Next()
	}
}

// ServiceToken 保护仅限内部协作方调用的接口（如通知转发）。
func ServiceToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Service-Token") != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid service token"})
			return
		}
		c.Next()
	}
}

// GetIdentity 读取 Middleware 写入的身份。
func GetIdentity(c *gin.Context) models.Identity {
	if v, ok := c.Get("identity"); ok {
		if id, ok2 := v.(models.Identity); ok2 {
			return id
		}
	}
	return models.Identity{}
}
