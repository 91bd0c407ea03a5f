package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/CityParkLink/CityParkLink/internal/common/config"
	"github.com/golang-jwt/jwt/v5"
)

func signTestToken(t *testing.T, cfg config.AuthConfig, subject string, roles []string) string {
	t.Helper()
	now := time.Now()
	claims := struct {
		Roles []string `json:"roles"`
		jwt.RegisteredClaims
	}{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWTAuthAndRequireRoles(t *testing.T) {
	authCfg := config.AuthConfig{
		Enabled:     true,
		JWTSecret:   "test-secret",
		Issuer:      "cityparklink",
		Audience:    "cityparklink",
		PublicPaths: []string{"/api/spots"},
	}

	adminOnly := RequireRoles(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ai, ok := AuthFromContext(r.Context())
		if !ok {
			t.Fatalf("missing auth info in ctx")
		}
		if ai.Subject != "u-1" {
			t.Fatalf("subject mismatch: %s", ai.Subject)
		}
		w.WriteHeader(http.StatusNoContent)
	}), "admin")

	mux := http.NewServeMux()
	mux.Handle("DELETE /api/users/{id}", adminOnly)
	mux.HandleFunc("GET /api/spots", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := Chain(mux, JWTAuth(authCfg, nil))

	// 带 admin 角色的 token，应放行
	token := signTestToken(t, authCfg, "u-1", []string{"user", "admin"})
	req := httptest.NewRequest(http.MethodDelete, "/api/users/u-2", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d body=%s", rr.Code, rr.Body.String())
	}

	// 只有 user 角色，应被 RBAC 拒绝
	token2 := signTestToken(t, authCfg, "u-1", []string{"user"})
	req2 := httptest.NewRequest(http.MethodDelete, "/api/users/u-2", nil)
	req2.Header.Set("Authorization", "Bearer "+token2)
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req2)
	if rr2.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr2.Code)
	}

	// 无 token，应 401
	req3 := httptest.NewRequest(http.MethodDelete, "/api/users/u-2", nil)
	rr3 := httptest.NewRecorder()
	handler.ServeHTTP(rr3, req3)
	if rr3.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr3.Code)
	}

	// 公开路径无 token 也放行
	req4 := httptest.NewRequest(http.MethodGet, "/api/spots", nil)
	rr4 := httptest.NewRecorder()
	handler.ServeHTTP(rr4, req4)
	if rr4.Code != http.StatusOK {
		t.Fatalf("expected 200 on public path, got %d", rr4.Code)
	}
}
