package middleware

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/sentinela-saude/sentinela/internal/api"
	"github.com/sentinela-saude/sentinela/internal/database"
)

const tokenIssuer = "sentinela"

// UserClaims are the JWT claims of an authenticated user. Every request is
// scoped to the tenant carried in the token.
type UserClaims struct {
	Username string               `json:"username"`
	TenantID uint                 `json:"tenant_id"`
	Role     database.ManagerRole `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuthConfig holds JWT authentication configuration
type JWTAuthConfig struct {
	// Enabled determines if JWT authentication is enforced
	Enabled bool

	// AdminUsername is the admin username from env
	AdminUsername string

	// AdminPasswordHash is the bcrypt hash of the admin password
	AdminPasswordHash string

	// AdminTenantID is the tenant the admin account operates on
	AdminTenantID uint

	JWTSecret      string
	JWTExpiryHours int

	// SkipPaths are paths that don't require authentication. A trailing "*"
	// matches by prefix.
	SkipPaths []string
}

// JWTAuthMiddleware provides JWT-based authentication
type JWTAuthMiddleware struct {
	config  *JWTAuthConfig
	mu      sync.RWMutex
	skipMap map[string]bool
}

// ContextKey is a type for context keys
type ContextKey string

const (
	// UserContextKey is the context key for the authenticated user's claims
	UserContextKey ContextKey = "user"
)

// NewJWTAuthMiddleware creates a new JWT authentication middleware
func NewJWTAuthMiddleware(config *JWTAuthConfig) *JWTAuthMiddleware {
	m := &JWTAuthMiddleware{
		config:  config,
		skipMap: make(map[string]bool),
	}
	// Build skip paths map for O(1) lookup
	for _, path := range config.SkipPaths {
		m.skipMap[path] = true
	}
	return m
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword checks if the provided password matches the hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateToken signs a token for username acting on tenantID with role
func (m *JWTAuthMiddleware) GenerateToken(username string, tenantID uint, role database.ManagerRole) (string, error) {
	m.mu.RLock()
	secret := m.config.JWTSecret
	expiryHours := m.config.JWTExpiryHours
	m.mu.RUnlock()

	now := time.Now()
	claims := UserClaims{
		Username: username,
		TenantID: tenantID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(expiryHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken validates a JWT token and returns the claims
func (m *JWTAuthMiddleware) ValidateToken(tokenString string) (*UserClaims, error) {
	m.mu.RLock()
	secret := m.config.JWTSecret
	m.mu.RUnlock()

	// Only HS256 tokens issued by this service are accepted
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}

	// A token without a tenant cannot scope any request
	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid || claims.TenantID == 0 {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// Login checks the admin credentials and returns a signed token with the
// ADMIN role on the configured tenant.
func (m *JWTAuthMiddleware) Login(username, password string) (string, bool, error) {
	if !m.ValidateCredentials(username, password) {
		return "", false, nil
	}
	// The admin account always acts on its configured tenant
	m.mu.RLock()
	tenantID := m.config.AdminTenantID
	m.mu.RUnlock()
	token, err := m.GenerateToken(username, tenantID, database.RoleAdmin)
	if err != nil {
		return "", false, err
	}
	return token, true, nil
}

// ValidateCredentials validates username and password
func (m *JWTAuthMiddleware) ValidateCredentials(username, password string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.config.AdminPasswordHash == "" {
		return false
	}
	// Use constant-time comparison for username
	if subtle.ConstantTimeCompare([]byte(username), []byte(m.config.AdminUsername)) != 1 {
		return false
	}
	return CheckPassword(password, m.config.AdminPasswordHash)
}

// ExpiryHours returns the configured token lifetime
func (m *JWTAuthMiddleware) ExpiryHours() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.JWTExpiryHours
}

// Wrap wraps an http.Handler with JWT authentication. With authentication
// disabled, requests run as the admin on the admin tenant.
func (m *JWTAuthMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check if auth is enabled
		m.mu.RLock()
		enabled := m.config.Enabled
		anonymous := &UserClaims{Username: m.config.AdminUsername, TenantID: m.config.AdminTenantID, Role: database.RoleAdmin}
		m.mu.RUnlock()

		// Check if path should skip authentication
		if m.shouldSkipAuth(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if !enabled {
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), anonymous)))
			return
		}

		// Extract token from request
		tokenString := extractToken(r)
		if tokenString == "" {
			m.unauthorized(w, "Missing authentication token")
			return
		}

		// Validate token
		claims, err := m.ValidateToken(tokenString)
		if err != nil {
			log.Printf("JWTAuthMiddleware: Invalid token from %s: %v", r.RemoteAddr, err)
			m.unauthorized(w, "Invalid or expired token")
			return
		}

		// Add user to context
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// shouldSkipAuth checks if the path should skip authentication
func (m *JWTAuthMiddleware) shouldSkipAuth(path string) bool {
	// Check exact match
	if m.skipMap[path] {
		return true
	}
	// Check prefix matches (skip paths ending in "*")
	for skipPath := range m.skipMap {
		if strings.HasSuffix(skipPath, "*") && strings.HasPrefix(path, strings.TrimSuffix(skipPath, "*")) {
			return true
		}
	}
	return false
}

// extractToken extracts the JWT token from the request
func extractToken(r *http.Request) string {
	// Try Authorization header (Bearer token)
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

// unauthorized sends an unauthorized response
func (m *JWTAuthMiddleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer realm=\"API\"")
	api.RespondError(w, http.StatusUnauthorized, message)
}

// SetEnabled enables or disables authentication
func (m *JWTAuthMiddleware) SetEnabled(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Enabled = enabled
}

// IsEnabled returns whether authentication is enabled
func (m *JWTAuthMiddleware) IsEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Enabled
}

// WithClaims stores claims in ctx
func WithClaims(ctx context.Context, claims *UserClaims) context.Context {
	return context.WithValue(ctx, UserContextKey, claims)
}

// ClaimsFromContext returns the authenticated user's claims, or nil
func ClaimsFromContext(ctx context.Context) *UserClaims {
	claims, _ := ctx.Value(UserContextKey).(*UserClaims)
	return claims
}

// GetUserFromContext returns the username from the request context
func GetUserFromContext(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.Username
	}
	return ""
}
