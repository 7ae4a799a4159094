package terminal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antibyte/simplimath/pkg/auth"
	"github.com/antibyte/simplimath/pkg/logger"
	"github.com/antibyte/simplimath/pkg/shared"
	"github.com/antibyte/simplimath/pkg/simplimath"
	"github.com/antibyte/simplimath/pkg/store"
)

const sendBufferSize = 256

var errNotRunning = errors.New("no program is running")

// Client repräsentiert einen verbundenen WebSocket-Client
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	handler   *Handler
	claims    *auth.Claims
	sessionID string
	ipAddress string

	ctx    context.Context
	cancel context.CancelFunc

	inputs chan string // answers for a pending prompt, capacity 1

	mu           sync.Mutex
	running      bool
	waitingInput bool
}

func newClient(h *Handler, conn *websocket.Conn, claims *auth.Claims, sessionID, ipAddress string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		handler:   h,
		claims:    claims,
		sessionID: sessionID,
		ipAddress: ipAddress,
		ctx:       ctx,
		cancel:    cancel,
		inputs:    make(chan string, 1),
	}
}

// sendMessage queues msg for the write pump. It fails once the connection is gone.
func (c *Client) sendMessage(msg shared.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return fmt.Errorf("session %s closed: %w", c.sessionID, c.ctx.Err())
	}
}

// readPump reads client frames until the connection fails, then tears the
// session down. Any running program is cancelled.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		c.handler.clients.RemoveClient(c.sessionID)
		c.conn.Close()
		logger.TerminalInfo("Session %s closed", c.sessionID)
	}()

	c.conn.SetReadLimit(getMaxMessageSize())
	c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
		return nil
	})

	c.sendMessage(shared.Message{Type: shared.MessageTypeSession, SessionID: c.sessionID})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.TerminalWarn("Unexpected close for session %s: %v", c.sessionID, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := c.handler.clients.CheckRateLimit(c.ipAddress); err != nil {
			c.sendMessage(shared.Fail(err.Error()))
			continue
		}
		msg, err := c.handler.validator.Decode(data)
		if err != nil {
			logger.TerminalDebug("Invalid frame from session %s: %v", c.sessionID, err)
			c.sendMessage(shared.Fail(err.Error()))
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg *shared.Message) {
	switch msg.Type {
	case shared.MessageTypeRun:
		if err := c.startRun(msg); err != nil {
			c.sendMessage(shared.Fail(err.Error()))
		}
	case shared.MessageTypeInput:
		if err := c.deliverInput(msg.Content); err != nil {
			c.sendMessage(shared.Fail(err.Error()))
		}
	}
}

// writePump schreibt Nachrichten aus dem send-Kanal und sendet Pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(getPingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.TerminalDebug("Write to session %s failed: %v", c.sessionID, err)
				c.cancel()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// startRun resolves the program source and runs it on its own goroutine.
func (c *Client) startRun(msg *shared.Message) error {
	source, programID := msg.Content, ""
	if msg.Name != "" {
		p, err := c.handler.store.LoadProgram(c.claims.Owner(), msg.Name)
		if err != nil {
			return fmt.Errorf("cannot run %q: %w", msg.Name, err)
		}
		source, programID = p.Source, p.ID
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("a program is already running")
	}
	c.running = true
	select {
	case <-c.inputs: // stale answer from a timed-out prompt
	default:
	}
	c.mu.Unlock()

	go c.run(source, programID)
	return nil
}

func (c *Client) run(source, programID string) {
	defer func() {
		c.mu.Lock()
		c.running = false
		c.waitingInput = false
		c.mu.Unlock()
	}()

	console := newConsole(c, c.handler.inputTimeout)
	opts := append(simplimath.ConfiguredOptions(), simplimath.WithSleeper(c.sleep))
	interpreter := simplimath.New(console, opts...)

	started := time.Now()
	execErr := interpreter.Execute(source)

	record := &store.Run{
		ProgramID:  programID,
		Owner:      c.claims.Owner(),
		Source:     source,
		Transcript: console.Transcript(),
		StartedAt:  started,
		Duration:   time.Since(started),
	}
	if execErr != nil {
		record.Error = execErr.Error()
	}
	if err := c.handler.store.RecordRun(record); err != nil {
		logger.StorageError("Recording run for session %s: %v", c.sessionID, err)
		record.ID = ""
	}

	if execErr != nil {
		logger.TerminalDebug("Run in session %s failed: %v", c.sessionID, execErr)
		msg := errorMessage(execErr)
		msg.RunID = record.ID
		c.sendMessage(msg)
		return
	}
	c.sendMessage(shared.Message{Type: shared.MessageTypeDone, SessionID: c.sessionID, RunID: record.ID})
}

// sleep backs wait(...); it returns early when the session closes.
func (c *Client) sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-c.ctx.Done():
	}
}

// expectInput marks that the running program waits for one answer.
func (c *Client) expectInput() {
	c.mu.Lock()
	c.waitingInput = true
	c.mu.Unlock()
}

// abandonInput stops waiting for an answer. A late answer is refused and
// one that raced the timeout is dropped.
func (c *Client) abandonInput() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waitingInput = false
	select {
	case <-c.inputs:
	default:
	}
}

func (c *Client) deliverInput(answer string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return errNotRunning
	}
	if !c.waitingInput {
		return errors.New("no input requested")
	}
	c.waitingInput = false
	c.inputs <- answer
	return nil
}

// errorMessage converts a run failure into an error frame.
func errorMessage(err error) shared.Message {
	info := &shared.ErrorInfo{Message: err.Error()}
	var se *simplimath.Error
	if errors.As(err, &se) {
		info.Category = se.Category
		info.Command = se.Command
		info.Line = se.Line
	}
	return shared.Message{Type: shared.MessageTypeError, Error: info}
}
