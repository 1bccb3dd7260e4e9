package auth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"shopchat/internal/models"

	"github.com/gin-gonic/gin"
)

func TestGenerateAndParseAccessToken(t *testing.T) {
	secret := "test-secret-key"
	identity := models.Identity{UserID: "u42", Username: "alice", ShopSlug: "alice-shop"}

	token, err := GenerateAccessToken(identity, secret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateAccessToken() returned empty token")
	}

	claims, err := ParseAccessToken(token, secret)
	if err != nil {
		t.Fatalf("ParseAccessToken() error = %v", err)
	}
	if claims.UserID != "u42" || claims.Username != "alice" || claims.ShopSlug != "alice-shop" {
		t.Errorf("claims = %+v, want u42/alice/alice-shop", claims)
	}
}

func TestParseAccessToken_Invalid(t *testing.T) {
	secret := "test-secret"
	token, err := GenerateAccessToken(models.Identity{UserID: "u1", Username: "alice"}, secret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", token, "wrong-secret"},
		{"garbage token", "invalid.token.here", secret},
		{"empty token", "", secret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseAccessToken(tt.token, tt.secret); err == nil {
				t.Error("ParseAccessToken() should return error")
			}
		})
	}
}

func TestParseAccessToken_Expired(t *testing.T) {
	secret := "test-secret"
	token, err := GenerateAccessToken(models.Identity{UserID: "u1", Username: "alice"}, secret, -1)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	if _, err := ParseAccessToken(token, secret); err == nil {
		t.Error("ParseAccessToken() should reject expired token")
	}
}

func wsRequestContext(t *testing.T, query url.Values) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/ws/room?"+query.Encode(), nil)
	return c
}

func TestResolveIdentity_Token(t *testing.T) {
	secret := "test-secret"
	token, _ := GenerateAccessToken(models.Identity{UserID: "u1", Username: "alice", ShopSlug: "alice-shop"}, secret, 15)

	c := wsRequestContext(t, url.Values{"token": {token}})
	id, err := ResolveIdentity(c, secret, true)
	if err != nil {
		t.Fatalf("ResolveIdentity() error = %v", err)
	}
	if id.UserID != "u1" || id.Username != "alice" || id.ShopSlug != "alice-shop" || id.Guest {
		t.Errorf("identity = %+v, want authenticated u1", id)
	}
}

func TestResolveIdentity_BearerHeader(t *testing.T) {
	secret := "test-secret"
	token, _ := GenerateAccessToken(models.Identity{UserID: "u1", Username: "alice"}, secret, 15)

	c := wsRequestContext(t, url.Values{})
	c.Request.Header.Set("Authorization", "Bearer "+token)
	id, err := ResolveIdentity(c, secret, true)
	if err != nil {
		t.Fatalf("ResolveIdentity() error = %v", err)
	}
	if id.UserID != "u1" {
		t.Errorf("identity = %+v, want u1", id)
	}
}

func TestResolveIdentity_Guest(t *testing.T) {
	c := wsRequestContext(t, url.Values{"guestId": {"g7"}, "guestName": {"visitor"}})
	id, err := ResolveIdentity(c, "secret", true)
	if err != nil {
		t.Fatalf("ResolveIdentity() error = %v", err)
	}
	if id.UserID != "guest:g7" || id.Username != "visitor" || !id.Guest {
		t.Errorf("identity = %+v, want guest:g7/visitor", id)
	}
}

func TestResolveIdentity_GuestNotAllowedOnPresence(t *testing.T) {
	c := wsRequestContext(t, url.Values{"guestId": {"g7"}, "guestName": {"visitor"}})
	if _, err := ResolveIdentity(c, "secret", false); err == nil {
		t.Error("ResolveIdentity() should reject guests when not allowed")
	}
}

func TestResolveIdentity_Missing(t *testing.T) {
	tests := []struct {
		name  string
		query url.Values
	}{
		{"no identity at all", url.Values{}},
		{"guest id without name", url.Values{"guestId": {"g7"}}},
		{"guest name without id", url.Values{"guestName": {"visitor"}}},
		{"bad token", url.Values{"token": {"garbage"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := wsRequestContext(t, tt.query)
			if _, err := ResolveIdentity(c, "secret", true); err == nil {
				t.Error("ResolveIdentity() should return error")
			}
		})
	}
}
