package handlers

import (
	"log"
	"net/http"

	"github.com/sentinela-saude/sentinela/internal/api"
	"github.com/sentinela-saude/sentinela/internal/middleware"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	jwtAuth *middleware.JWTAuthMiddleware
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(jwtAuth *middleware.JWTAuthMiddleware) *AuthHandler {
	return &AuthHandler{jwtAuth: jwtAuth}
}

// SetupRoutes sets up authentication routes
func (h *AuthHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/auth/verify", h.handleVerify)
}

// handleLogin handles POST /auth/login
func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req api.LoginRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if api.Validate(req) != nil {
		api.RespondError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	// Validate credentials and issue token
	token, ok, err := h.jwtAuth.Login(req.Username, req.Password)
	if err != nil {
		log.Printf("AuthHandler: Failed to generate token for user '%s': %v", req.Username, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	if !ok {
		log.Printf("AuthHandler: Failed login attempt for user '%s' from %s", req.Username, r.RemoteAddr)
		api.RespondError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	log.Printf("AuthHandler: User '%s' logged in from %s", req.Username, r.RemoteAddr)
	api.RespondJSON(w, http.StatusOK, api.LoginResponse{
		Token:     token,
		Username:  req.Username,
		ExpiresIn: h.jwtAuth.ExpiryHours() * 60 * 60,
	})
}

// handleVerify handles GET /auth/verify - reports the claims of the current token
func (h *AuthHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.RespondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		api.RespondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"valid":     true,
		"username":  claims.Username,
		"tenant_id": claims.TenantID,
		"role":      claims.Role,
	})
}
