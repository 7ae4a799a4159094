package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/antibyte/simplimath/pkg/logger"
	"github.com/antibyte/simplimath/pkg/store"
)

// UserStore is the part of the store the auth handlers need.
type UserStore interface {
	CreateUser(username, password string) (*store.User, error)
	VerifyUser(username, password string) (*store.User, error)
}

// Handlers serves the /api/auth endpoints.
type Handlers struct {
	users UserStore
}

// NewHandlers creates auth handlers backed by users.
func NewHandlers(users UserStore) *Handlers {
	return &Handlers{users: users}
}

// CredentialsRequest is the body of register and login requests.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is returned by every auth endpoint.
type TokenResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Username  string `json:"username,omitempty"`
	Message   string `json:"message"`
}

// Register mounts the handlers on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/auth/session", h.HandleCreateSession)
	mux.HandleFunc("/api/auth/register", h.HandleRegister)
	mux.HandleFunc("/api/auth/login", h.HandleLogin)
	mux.HandleFunc("/api/auth/logout", h.HandleLogout)
	mux.HandleFunc("/api/auth/validate", HandleTokenValidation)
}

func setHeaders(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Content-Type", "application/json")
}

// preflight handles OPTIONS and rejects anything but POST.
func preflight(w http.ResponseWriter, r *http.Request) bool {
	setHeaders(w, "POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return false
	}
	if r.Method != http.MethodPost {
		logger.AuthWarn("Invalid method for %s: %s", r.URL.Path, r.Method)
		respondWithError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// HandleCreateSession starts a guest session and returns its token.
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r) {
		return
	}
	sessionID := uuid.New().String()
	token, err := GenerateGuestToken(sessionID)
	if err != nil {
		logger.AuthError("Failed to generate guest token: %v", err)
		respondWithError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	setTokenCookie(w, token)
	logger.AuthInfo("New guest session %s for %s", sessionID, getClientIP(r))
	writeJSON(w, http.StatusOK, TokenResponse{
		Success:   true,
		Token:     token,
		SessionID: sessionID,
		Message:   "Session created successfully",
	})
}

// HandleRegister creates an account and logs it in.
func (h *Handlers) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r) {
		return
	}
	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}
	user, err := h.users.CreateUser(creds.Username, creds.Password)
	switch {
	case errors.Is(err, store.ErrUserExists):
		respondWithError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		logger.AuthWarn("Registration of %q failed: %v", creds.Username, err)
		respondWithError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.issueUserToken(w, user.Username, "Registration successful")
}

// HandleLogin verifies credentials and issues a user token.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r) {
		return
	}
	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}
	user, err := h.users.VerifyUser(creds.Username, creds.Password)
	switch {
	case errors.Is(err, store.ErrInvalidCredentials):
		logger.AuthWarn("Login failed for %q from %s", creds.Username, getClientIP(r))
		respondWithError(w, err.Error(), http.StatusUnauthorized)
		return
	case err != nil:
		logger.AuthError("Login for %q: %v", creds.Username, err)
		respondWithError(w, "Login failed", http.StatusInternalServerError)
		return
	}
	h.issueUserToken(w, user.Username, "Login successful")
}

func (h *Handlers) issueUserToken(w http.ResponseWriter, username, message string) {
	sessionID := uuid.New().String()
	token, err := GenerateUserToken(sessionID, username)
	if err != nil {
		logger.AuthError("Failed to generate user token for %s: %v", username, err)
		respondWithError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	setTokenCookie(w, token)
	logger.AuthInfo("%s: %s (session %s)", message, username, sessionID)
	writeJSON(w, http.StatusOK, TokenResponse{
		Success:   true,
		Token:     token,
		SessionID: sessionID,
		Username:  username,
		Message:   message,
	})
}

// HandleLogout löscht das JWT-Token Cookie
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r) {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, TokenResponse{Success: true, Message: "Logout successful"})
}

// HandleTokenValidation reports whether the request carries a valid token.
func HandleTokenValidation(w http.ResponseWriter, r *http.Request) {
	setHeaders(w, "GET, POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	tokenString, err := ExtractTokenFromRequest(r)
	if err != nil {
		respondWithError(w, "Token not found", http.StatusUnauthorized)
		return
	}
	claims, err := ValidateToken(tokenString)
	if err != nil {
		logger.AuthWarn("Token validation failed: %v", err)
		respondWithError(w, "Invalid token", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{
		Success:   true,
		SessionID: claims.SessionID,
		Username:  claims.Username,
		Message:   "Token valid",
	})
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (CredentialsRequest, bool) {
	var creds CredentialsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&creds); err != nil {
		logger.AuthWarn("Invalid JSON in %s: %v", r.URL.Path, err)
		respondWithError(w, "Invalid request format", http.StatusBadRequest)
		return creds, false
	}
	if creds.Username == "" || creds.Password == "" {
		respondWithError(w, "Username and password required", http.StatusBadRequest)
		return creds, false
	}
	return creds, true
}

func setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(getTokenExpiration().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondWithError sendet eine Fehlerantwort als JSON
func respondWithError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, TokenResponse{Success: false, Message: message})
}
