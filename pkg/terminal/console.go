package terminal

import (
	"fmt"
	"strings"
	"time"

	"github.com/antibyte/simplimath/pkg/shared"
)

// wsConsole is the simplimath.Console of a websocket session. It also keeps
// a plain-text transcript of the run.
type wsConsole struct {
	client     *Client
	timeout    time.Duration
	transcript strings.Builder
}

func newConsole(c *Client, timeout time.Duration) *wsConsole {
	return &wsConsole{client: c, timeout: timeout}
}

// Println sends one text frame.
func (w *wsConsole) Println(text string) error {
	w.transcript.WriteString(text)
	w.transcript.WriteByte('\n')
	return w.client.sendMessage(shared.Text(text))
}

// Prompt sends a prompt frame and blocks until the client answers, the
// session closes or the input timeout expires.
func (w *wsConsole) Prompt(text string) (string, error) {
	w.transcript.WriteString(text)
	w.transcript.WriteByte('\n')

	w.client.expectInput()
	if err := w.client.sendMessage(shared.Prompt(text)); err != nil {
		return "", err
	}

	var timeout <-chan time.Time
	if w.timeout > 0 {
		timer := time.NewTimer(w.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case answer := <-w.client.inputs:
		w.transcript.WriteString("> " + answer + "\n")
		return answer, nil
	case <-w.client.ctx.Done():
		return "", fmt.Errorf("session closed while waiting for input: %w", w.client.ctx.Err())
	case <-timeout:
		w.client.abandonInput()
		return "", fmt.Errorf("no input received within %s", w.timeout)
	}
}

// Transcript returns everything printed and answered so far.
func (w *wsConsole) Transcript() string {
	return w.transcript.String()
}
