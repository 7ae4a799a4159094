package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/antibyte/simplimath/pkg/configuration"
	"github.com/antibyte/simplimath/pkg/logger"
)

const (
	issuer       = "simplimath"
	guestSubject = "guest"

	// TokenCookie carries the JWT for browser clients.
	TokenCookie = "session_token"
)

// ErrInvalidToken is returned for every token that fails validation.
var ErrInvalidToken = errors.New("invalid token")

var (
	fallbackSecret     string
	fallbackSecretOnce sync.Once
)

// getJWTSecret reads [JWT] secret_key (or SIMPLIMATH_JWT_SECRET_KEY). Without
// one a random per-process secret is used, so tokens die with the process.
func getJWTSecret() []byte {
	if secret := configuration.GetString("JWT", "secret_key", ""); secret != "" {
		return []byte(secret)
	}
	fallbackSecretOnce.Do(func() {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("auth: cannot generate JWT secret: %v", err))
		}
		fallbackSecret = hex.EncodeToString(buf)
		logger.AuthWarn("No JWT secret configured, using a random per-process secret")
	})
	return []byte(fallbackSecret)
}

func getTokenExpiration() time.Duration {
	hours := configuration.GetInt("JWT", "token_expiration_hours", 24)
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// Claims identify a terminal session. Username is empty for guests.
type Claims struct {
	SessionID string `json:"sid"`
	Username  string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// IsGuest reports whether the token belongs to an anonymous session.
func (c *Claims) IsGuest() bool {
	return c.Username == ""
}

// Owner is the key under which the session's programs and runs are stored.
func (c *Claims) Owner() string {
	if c.IsGuest() {
		return "guest:" + c.SessionID
	}
	return c.Username
}

// GenerateGuestToken signs a token for an anonymous session.
func GenerateGuestToken(sessionID string) (string, error) {
	return generateToken(sessionID, "")
}

// GenerateUserToken signs a token for a logged-in user.
func GenerateUserToken(sessionID, username string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("username required")
	}
	return generateToken(sessionID, username)
}

func generateToken(sessionID, username string) (string, error) {
	now := time.Now()
	subject := username
	if subject == "" {
		subject = guestSubject
	}
	claims := Claims{
		SessionID: sessionID,
		Username:  username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(getTokenExpiration())),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   subject,
			ID:        sessionID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(getJWTSecret())
	if err != nil {
		return "", fmt.Errorf("token could not be signed: %w", err)
	}
	logger.AuthDebug("Token generated for session %s (subject %s)", sessionID, subject)
	return signed, nil
}

// ValidateToken parses and verifies a token of either kind.
func ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing algorithm: %v", token.Header["alg"])
			}
			return getJWTSecret(), nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	if claims.IsGuest() != (claims.Subject == guestSubject) {
		return nil, fmt.Errorf("%w: subject does not match username", ErrInvalidToken)
	}
	return claims, nil
}

// ExtractTokenFromRequest looks in the Authorization header (Bearer), then
// the session cookie, then the token query parameter.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		scheme, token, ok := strings.Cut(authHeader, " ")
		if ok && scheme == "Bearer" && token != "" {
			return token, nil
		}
		return "", fmt.Errorf("invalid authorization header format")
	}

	if cookie, err := r.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}

	return "", fmt.Errorf("no token found in request")
}

// RequireToken rejects requests without a valid token and stores the claims
// in the request context.
func RequireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next(w, r)
			return
		}
		tokenString, err := ExtractTokenFromRequest(r)
		if err != nil {
			logger.AuthWarn("No token in request to %s: %v", r.URL.Path, err)
			respondWithError(w, "Unauthorized: token missing", http.StatusUnauthorized)
			return
		}
		claims, err := ValidateToken(tokenString)
		if err != nil {
			logger.AuthWarn("Rejected token for %s: %v", r.URL.Path, err)
			respondWithError(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(AddClaimsToContext(r.Context(), claims)))
	}
}
