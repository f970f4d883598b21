package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sentinela-saude/sentinela/internal/database"
)

func newTestJWT(t *testing.T, enabled bool) *JWTAuthMiddleware {
	t.Helper()
	hash, err := HashPassword("s3nha-forte")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return NewJWTAuthMiddleware(&JWTAuthConfig{
		Enabled:           enabled,
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		AdminTenantID:     7,
		JWTSecret:         "test-secret",
		JWTExpiryHours:    1,
		SkipPaths:         []string{"/health", "/auth/*"},
	})
}

func claimsEcho(captured **UserClaims) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestJWTAuth_TokenRoundTrip(t *testing.T) {
	m := newTestJWT(t, true)
	token, err := m.GenerateToken("helena", 3, database.RoleSectorManager)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Username != "helena" || claims.TenantID != 3 || claims.Role != database.RoleSectorManager {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestJWTAuth_RejectsBadTokens(t *testing.T) {
	m := newTestJWT(t, true)
	other := NewJWTAuthMiddleware(&JWTAuthConfig{JWTSecret: "other-secret", JWTExpiryHours: 1})
	foreign, _ := other.GenerateToken("helena", 3, database.RoleAdmin)
	noTenant, _ := m.GenerateToken("helena", 0, database.RoleAdmin)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, UserClaims{
		Username: "helena",
		TenantID: 3,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	expiredToken, _ := expired.SignedString([]byte("test-secret"))

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", foreign},
		{"missing tenant", noTenant},
		{"expired", expiredToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.ValidateToken(tt.token); err == nil {
				t.Error("expected the token to be rejected")
			}
		})
	}
}

func TestJWTAuth_Wrap(t *testing.T) {
	m := newTestJWT(t, true)
	valid, _ := m.GenerateToken("helena", 3, database.RoleSectorManager)

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantClaims bool
	}{
		{"missing token", "/api/incidents", "", http.StatusUnauthorized, false},
		{"malformed header", "/api/incidents", "Token " + valid, http.StatusUnauthorized, false},
		{"invalid token", "/api/incidents", "Bearer nope", http.StatusUnauthorized, false},
		{"valid token", "/api/incidents", "Bearer " + valid, http.StatusOK, true},
		{"exact skip path", "/health", "", http.StatusOK, false},
		{"prefix skip path", "/auth/login", "", http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured *UserClaims
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			m.Wrap(claimsEcho(&captured)).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate header")
			}
			if (captured != nil) != tt.wantClaims {
				t.Errorf("claims present = %v, want %v", captured != nil, tt.wantClaims)
			}
		})
	}
}

func TestJWTAuth_DisabledRunsAsAdmin(t *testing.T) {
	m := newTestJWT(t, false)
	var captured *UserClaims
	w := httptest.NewRecorder()
	m.Wrap(claimsEcho(&captured)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/incidents", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if captured == nil || captured.TenantID != 7 || captured.Role != database.RoleAdmin {
		t.Errorf("expected admin claims on tenant 7, got %+v", captured)
	}

	m.SetEnabled(true)
	if !m.IsEnabled() {
		t.Error("expected auth to be enabled")
	}
}

func TestJWTAuth_Login(t *testing.T) {
	m := newTestJWT(t, true)

	if _, ok, _ := m.Login("admin", "wrong"); ok {
		t.Error("expected a wrong password to fail")
	}
	if _, ok, _ := m.Login("Admin", "s3nha-forte"); ok {
		t.Error("usernames are case sensitive")
	}

	token, ok, err := m.Login("admin", "s3nha-forte")
	if err != nil || !ok {
		t.Fatalf("Login: ok=%v err=%v", ok, err)
	}
	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.TenantID != 7 || claims.Role != database.RoleAdmin {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestJWTAuth_NoPasswordConfigured(t *testing.T) {
	m := NewJWTAuthMiddleware(&JWTAuthConfig{AdminUsername: "admin", JWTSecret: "x"})
	if m.ValidateCredentials("admin", "") {
		t.Error("an empty password hash must never validate")
	}
}

func TestJWTAuth_AcceptsRoleTokensFromSharedSecret(t *testing.T) {
	m := newTestJWT(t, true)
	authz, err := NewAuthorizer()
	if err != nil {
		t.Fatalf("NewAuthorizer: %v", err)
	}

	// Signed the way an identity integration holding JWT_SECRET would
	now := time.Now()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, UserClaims{
		Username: "diretora.ana",
		TenantID: 7,
		Role:     database.RoleLeadership,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	handler := m.Wrap(authz.Require(ResourceDeadlines, ActionWrite)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/incidents/x/deadline/approve", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("leadership token status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	// Local login never hands out anything but ADMIN
	token, ok, err := m.Login("admin", "s3nha-forte")
	if err != nil || !ok {
		t.Fatalf("Login: ok=%v err=%v", ok, err)
	}
	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Role != database.RoleAdmin {
		t.Errorf("login role = %s, want %s", claims.Role, database.RoleAdmin)
	}
}
