package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/antibyte/simplimath/pkg/store"
)

// TestGuestTokenRoundTrip tests guest token creation and validation
func TestGuestTokenRoundTrip(t *testing.T) {
	token, err := GenerateGuestToken("session-1")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims.SessionID != "session-1" {
		t.Errorf("Expected session ID session-1, got %s", claims.SessionID)
	}
	if !claims.IsGuest() {
		t.Error("Guest token should report IsGuest")
	}
	if claims.Owner() != "guest:session-1" {
		t.Errorf("Owner() = %q", claims.Owner())
	}
}

func TestUserTokenRoundTrip(t *testing.T) {
	token, err := GenerateUserToken("session-2", "alice")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims.IsGuest() || claims.Owner() != "alice" || claims.Subject != "alice" {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if _, err := GenerateUserToken("session-3", ""); err == nil {
		t.Error("empty username should be rejected")
	}
}

// TestInvalidTokens tests rejection of tampered, expired and foreign tokens
func TestInvalidTokens(t *testing.T) {
	valid, _ := GenerateGuestToken("session-x")

	sign := func(claims Claims, method jwt.SigningMethod, key interface{}) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	now := time.Now()
	base := func() Claims {
		return Claims{
			SessionID: "s",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				IssuedAt:  jwt.NewNumericDate(now),
				Issuer:    issuer,
				Subject:   guestSubject,
			},
		}
	}

	expired := base()
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Hour))

	foreignIssuer := base()
	foreignIssuer.Issuer = "someone-else"

	noExpiry := base()
	noExpiry.ExpiresAt = nil

	mismatched := base()
	mismatched.Username = "mallory"

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"tampered", valid[:len(valid)-2] + "xx"},
		{"wrong key", sign(base(), jwt.SigningMethodHS256, []byte("other-secret"))},
		{"none alg", sign(base(), jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)},
		{"expired", sign(expired, jwt.SigningMethodHS256, getJWTSecret())},
		{"foreign issuer", sign(foreignIssuer, jwt.SigningMethodHS256, getJWTSecret())},
		{"no expiry", sign(noExpiry, jwt.SigningMethodHS256, getJWTSecret())},
		{"guest subject with username", sign(mismatched, jwt.SigningMethodHS256, getJWTSecret())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestExtractTokenFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(r *http.Request)
		want    string
		wantErr bool
	}{
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") }, "abc", false},
		{"bad header", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, "", true},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: TokenCookie, Value: "c"}) }, "c", false},
		{"query", func(r *http.Request) { r.URL.RawQuery = "token=q" }, "q", false},
		{"none", func(r *http.Request) {}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tt.setup(req)
			got, err := ExtractTokenFromRequest(req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("token = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRequireToken(t *testing.T) {
	var seen *Claims
	handler := RequireToken(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/programs", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: status %d, want 401", rec.Code)
	}

	token, _ := GenerateUserToken("sess", "bob")
	req := httptest.NewRequest(http.MethodGet, "/api/programs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("valid token: status %d, want 204", rec.Code)
	}
	if seen == nil || seen.Username != "bob" {
		t.Errorf("claims not in context: %+v", seen)
	}
	if SessionIDFromContext(req.Context()) != "" {
		t.Error("original request context should carry no claims")
	}
}

type fakeUsers struct {
	users map[string]string
}

func (f *fakeUsers) CreateUser(username, password string) (*store.User, error) {
	if _, ok := f.users[username]; ok {
		return nil, store.ErrUserExists
	}
	if len(password) < store.MinPasswordLength {
		return nil, errors.New("password too short")
	}
	f.users[username] = password
	return &store.User{ID: "id-" + username, Username: username}, nil
}

func (f *fakeUsers) VerifyUser(username, password string) (*store.User, error) {
	if pw, ok := f.users[username]; !ok || pw != password {
		return nil, store.ErrInvalidCredentials
	}
	return &store.User{ID: "id-" + username, Username: username}, nil
}

func postJSON(t *testing.T, mux *http.ServeMux, path string, body interface{}) (*httptest.ResponseRecorder, TokenResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, &buf))
	var resp TokenResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	return rec, resp
}

// TestHandlers tests the session, register, login and logout endpoints
func TestHandlers(t *testing.T) {
	mux := http.NewServeMux()
	NewHandlers(&fakeUsers{users: map[string]string{}}).Register(mux)

	rec, resp := postJSON(t, mux, "/api/auth/session", nil)
	if rec.Code != http.StatusOK || !resp.Success || resp.SessionID == "" {
		t.Fatalf("session: %d %+v", rec.Code, resp)
	}
	if claims, err := ValidateToken(resp.Token); err != nil || !claims.IsGuest() {
		t.Errorf("session token: %v %+v", err, claims)
	}

	creds := CredentialsRequest{Username: "erin", Password: "secret99"}
	rec, resp = postJSON(t, mux, "/api/auth/register", creds)
	if rec.Code != http.StatusOK || resp.Username != "erin" {
		t.Fatalf("register: %d %+v", rec.Code, resp)
	}
	if len(rec.Result().Cookies()) == 0 {
		t.Error("register should set the token cookie")
	}

	rec, _ = postJSON(t, mux, "/api/auth/register", creds)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate register: status %d, want 409", rec.Code)
	}

	rec, resp = postJSON(t, mux, "/api/auth/login", creds)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %+v", rec.Code, resp)
	}
	if claims, err := ValidateToken(resp.Token); err != nil || claims.Username != "erin" {
		t.Errorf("login token: %v %+v", err, claims)
	}

	rec, _ = postJSON(t, mux, "/api/auth/login", CredentialsRequest{Username: "erin", Password: "nope"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad login: status %d, want 401", rec.Code)
	}

	rec, _ = postJSON(t, mux, "/api/auth/login", map[string]string{"username": "erin"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing password: status %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET login: status %d, want 405", rec.Code)
	}

	rec, resp = postJSON(t, mux, "/api/auth/logout", nil)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Errorf("logout: %d %+v", rec.Code, resp)
	}
}
