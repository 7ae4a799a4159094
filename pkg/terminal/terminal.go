// Package terminal serves SimpliMath sessions over WebSocket and the
// program API over HTTP.
package terminal

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/antibyte/simplimath/pkg/auth"
	"github.com/antibyte/simplimath/pkg/configuration"
	"github.com/antibyte/simplimath/pkg/logger"
	"github.com/antibyte/simplimath/pkg/store"
)

// ProgramStore is the persistence the terminal needs.
type ProgramStore interface {
	SaveProgram(owner, name, source string) (*store.Program, error)
	LoadProgram(owner, name string) (*store.Program, error)
	ListPrograms(owner string) ([]store.Program, error)
	DeleteProgram(owner, name string) error
	RecordRun(r *store.Run) error
	ListRuns(owner string, limit int) ([]store.Run, error)
}

// Hilfsfunktionen für WebSocket-Konfigurationswerte
func getWriteWait() time.Duration {
	return configuration.GetDuration("Server", "write_wait_timeout", 10*time.Second)
}

func getPongWait() time.Duration {
	return configuration.GetDuration("Server", "pong_timeout", 60*time.Second)
}

func getPingPeriod() time.Duration {
	return (getPongWait() * 9) / 10
}

func getMaxMessageSize() int64 {
	return int64(configuration.GetInt("Server", "max_message_size_kb", 512) * 1024)
}

// Handler verwaltet WebSocket-Verbindungen und Terminal-Sitzungen
type Handler struct {
	store        ProgramStore
	upgrader     websocket.Upgrader
	clients      *ClientManager
	validator    *MessageValidator
	inputTimeout time.Duration
}

// NewHandler creates a terminal handler backed by st.
func NewHandler(st ProgramStore) *Handler {
	return &Handler{
		store: st,
		clients: NewClientManager(
			configuration.GetInt("Server", "max_clients", 100),
			configuration.GetInt("Server", "max_messages_per_minute", 200),
		),
		validator:    NewMessageValidator(),
		inputTimeout: configuration.GetDuration("Server", "input_timeout", 5*time.Minute),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  configuration.GetInt("Server", "read_buffer_size", 1024),
			WriteBufferSize: configuration.GetInt("Server", "write_buffer_size", 1024),
			CheckOrigin:     checkOrigin,
		},
	}
}

// Register mounts the terminal endpoints on mux, all behind token auth.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws", auth.RequireToken(h.HandleWebSocket))
	mux.HandleFunc("/api/programs", auth.RequireToken(h.HandlePrograms))
	mux.HandleFunc("/api/runs", auth.RequireToken(h.HandleRuns))
}

// checkOrigin accepts requests without Origin (non-browser clients), origins
// listed in [Server] allowed_origins, or the request's own host when no list
// is configured.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	allowed := configuration.GetList("Server", "allowed_origins")
	if len(allowed) == 0 {
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
	for _, a := range allowed {
		if origin == a {
			return true
		}
	}
	logger.TerminalWarn("WebSocket request from disallowed origin rejected: %s", origin)
	return false
}

// clientIP extracts the first X-Forwarded-For hop or the remote address.
func clientIP(r *http.Request) string {
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}

// HandleWebSocket upgrades an authenticated request and serves one session
// until the connection closes.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	ipAddress := clientIP(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.TerminalError("WebSocket upgrade failed for %s: %v", ipAddress, err)
		return
	}

	client := newClient(h, conn, claims, uuid.New().String(), ipAddress)
	if err := h.clients.AddClient(client.sessionID, client); err != nil {
		logger.TerminalWarn("Rejecting %s: %v", ipAddress, err)
		conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server overloaded"))
		conn.Close()
		return
	}
	logger.TerminalInfo("Session %s opened for %s (%s)", client.sessionID, claims.Owner(), ipAddress)

	go client.writePump()
	client.readPump()
}

// ClientCount returns the number of open sessions.
func (h *Handler) ClientCount() int {
	return h.clients.GetClientCount()
}
