package terminal

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antibyte/simplimath/pkg/auth"
	"github.com/antibyte/simplimath/pkg/shared"
	"github.com/antibyte/simplimath/pkg/simplimath"
	"github.com/antibyte/simplimath/pkg/store"
)

type testServer struct {
	*httptest.Server
	store *store.Store
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "terminal.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	mux := http.NewServeMux()
	NewHandler(st).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	token, err := auth.GenerateUserToken("test-session", "tester")
	if err != nil {
		t.Fatalf("GenerateUserToken: %v", err)
	}
	return &testServer{Server: srv, store: st, token: token}
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?token=" + s.token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if msg := readMessage(t, conn); msg.Type != shared.MessageTypeSession || msg.SessionID == "" {
		t.Fatalf("first message = %+v, want session", msg)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) shared.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg shared.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

// collect reads text frames until a done or error frame arrives.
func collect(t *testing.T, conn *websocket.Conn) ([]string, shared.Message) {
	t.Helper()
	var lines []string
	for {
		msg := readMessage(t, conn)
		switch msg.Type {
		case shared.MessageTypeText:
			lines = append(lines, msg.Content)
		case shared.MessageTypeDone, shared.MessageTypeError:
			return lines, msg
		default:
			t.Fatalf("unexpected message %+v", msg)
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msg shared.Message) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

func TestRunProgram(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t)

	send(t, conn, shared.Message{Type: shared.MessageTypeRun, Content: "a = 2 + 3\noutput(/{a}/)\nend"})
	lines, final := collect(t, conn)

	want := []string{simplimath.EndBanner, simplimath.ExecutionBanner, "5"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", lines, want)
	}
	if final.Type != shared.MessageTypeDone || final.RunID == "" {
		t.Fatalf("final = %+v, want done with run ID", final)
	}

	runs, err := srv.store.ListRuns("tester", 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != final.RunID {
		t.Fatalf("runs = %+v", runs)
	}
	if !strings.Contains(runs[0].Transcript, "5\n") {
		t.Errorf("transcript = %q", runs[0].Transcript)
	}
}

func TestRunWithInput(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t)

	send(t, conn, shared.Message{Type: shared.MessageTypeRun, Content: "x = input(\"Number?\")\noutput(/{x}/ squared)"})

	prompt := readMessage(t, conn)
	if prompt.Type != shared.MessageTypePrompt || prompt.Content != "Number?" {
		t.Fatalf("prompt = %+v", prompt)
	}
	send(t, conn, shared.Message{Type: shared.MessageTypeInput, Content: "7"})

	lines, final := collect(t, conn)
	if final.Type != shared.MessageTypeDone {
		t.Fatalf("final = %+v", final)
	}
	want := []string{simplimath.ExecutionBanner, "7 squared"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", lines, want)
	}
}

func TestRunError(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t)

	send(t, conn, shared.Message{Type: shared.MessageTypeRun, Content: "a = 1\nb = a +"})
	lines, final := collect(t, conn)
	if len(lines) != 0 {
		t.Errorf("unexpected output %q", lines)
	}
	if final.Type != shared.MessageTypeError || final.Error == nil {
		t.Fatalf("final = %+v, want error", final)
	}
	if final.Error.Category != simplimath.ErrCategorySyntax || final.Error.Line != 2 || final.Error.Command != "b = a +" {
		t.Errorf("error = %+v", final.Error)
	}

	runs, _ := srv.store.ListRuns("tester", 0)
	if len(runs) != 1 || runs[0].Error == "" {
		t.Errorf("failed run not recorded: %+v", runs)
	}
}

func TestRunStoredProgram(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(SaveProgramRequest{Name: "hello", Source: "output(hello)"})
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/programs", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+srv.token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST status %d", resp.StatusCode)
	}

	conn := srv.dial(t)
	send(t, conn, shared.Message{Type: shared.MessageTypeRun, Name: "hello"})
	lines, final := collect(t, conn)
	if final.Type != shared.MessageTypeDone || len(lines) != 2 || lines[1] != "hello" {
		t.Fatalf("lines = %q, final = %+v", lines, final)
	}

	send(t, conn, shared.Message{Type: shared.MessageTypeRun, Name: "missing"})
	if msg := readMessage(t, conn); msg.Type != shared.MessageTypeError {
		t.Errorf("running a missing program: %+v", msg)
	}
}

func TestProtocolErrors(t *testing.T) {
	srv := newTestServer(t)
	conn := srv.dial(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != shared.MessageTypeError {
		t.Errorf("unknown type: %+v", msg)
	}

	send(t, conn, shared.Message{Type: shared.MessageTypeInput, Content: "1"})
	msg := readMessage(t, conn)
	if msg.Type != shared.MessageTypeError || msg.Error.Message != errNotRunning.Error() {
		t.Errorf("input without run: %+v", msg)
	}
}

func TestWebSocketRequiresToken(t *testing.T) {
	srv := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %+v, want 401", resp)
	}
}

func TestProgramAPI(t *testing.T) {
	srv := newTestServer(t)
	h := NewHandler(srv.store)
	claims, _ := auth.ValidateToken(srv.token)

	do := func(method, target string, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		req = req.WithContext(auth.AddClaimsToContext(req.Context(), claims))
		rec := httptest.NewRecorder()
		h.HandlePrograms(rec, req)
		return rec
	}

	if rec := do(http.MethodPost, "/api/programs", `{"name":"p1","source":"end"}`); rec.Code != http.StatusOK {
		t.Fatalf("save: %d %s", rec.Code, rec.Body)
	}
	if rec := do(http.MethodPost, "/api/programs", `{"name":"bad name","source":"end"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad name: %d", rec.Code)
	}

	rec := do(http.MethodGet, "/api/programs", "")
	var list []store.Program
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list) != 1 || list[0].Name != "p1" {
		t.Errorf("list = %+v", list)
	}

	rec = do(http.MethodGet, "/api/programs?name=p1", "")
	var p store.Program
	json.NewDecoder(rec.Body).Decode(&p)
	if p.Source != "end" {
		t.Errorf("load = %+v", p)
	}

	if rec := do(http.MethodDelete, "/api/programs?name=p1", ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete: %d", rec.Code)
	}
	if rec := do(http.MethodGet, "/api/programs?name=p1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("load after delete: %d", rec.Code)
	}
	if rec := do(http.MethodPut, "/api/programs", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT: %d", rec.Code)
	}
}

func TestMessageValidator(t *testing.T) {
	v := NewMessageValidator()
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{"run content", `{"type":"run","content":"end"}`, false},
		{"run name", `{"type":"run","name":"prog-1"}`, false},
		{"run both", `{"type":"run","name":"p","content":"end"}`, true},
		{"run bad name", `{"type":"run","name":"../x"}`, true},
		{"input", `{"type":"input","content":"42"}`, false},
		{"input too long", `{"type":"input","content":"` + strings.Repeat("x", MaxInputLen+1) + `"}`, true},
		{"server type", `{"type":"done"}`, true},
		{"unknown field", `{"type":"run","content":"end","evil":1}`, true},
		{"trailing", `{"type":"run"}{"type":"run"}`, true},
		{"not json", `run`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Decode([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Errorf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCheckOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com/ws", nil)
	if !checkOrigin(req) {
		t.Error("missing Origin should be accepted")
	}
	req.Header.Set("Origin", "http://example.com")
	if !checkOrigin(req) {
		t.Error("same-host origin should be accepted")
	}
	req.Header.Set("Origin", "http://evil.example")
	if checkOrigin(req) {
		t.Error("foreign origin should be rejected")
	}
}

func TestClientManagerLimits(t *testing.T) {
	cm := NewClientManager(1, 2)
	if err := cm.AddClient("a", &Client{}); err != nil {
		t.Fatalf("AddClient: %v", err)
	}
	if err := cm.AddClient("b", &Client{}); err == nil {
		t.Error("second client should exceed the limit")
	}
	cm.RemoveClient("a")
	if cm.HasClient("a") || cm.GetClientCount() != 0 {
		t.Error("client not removed")
	}

	for i := 0; i < 2; i++ {
		if err := cm.CheckRateLimit("1.2.3.4"); err != nil {
			t.Fatalf("message %d rejected: %v", i+1, err)
		}
	}
	if err := cm.CheckRateLimit("1.2.3.4"); err == nil {
		t.Error("third message should be rate limited")
	}
	if err := cm.CheckRateLimit("5.6.7.8"); err != nil {
		t.Errorf("other IP limited: %v", err)
	}
}
