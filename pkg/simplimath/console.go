package simplimath

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Console is the interactive I/O collaborator of an interpreter.
type Console interface {
	// Prompt shows text and reads one line of input (without the line break).
	Prompt(text string) (string, error)
	// Println prints one line of output.
	Println(text string) error
}

// StdConsole is a Console over a line reader and a writer.
type StdConsole struct {
	in  *bufio.Reader
	out io.Writer
}

// NewStdConsole wraps r and w. Pass the same *bufio.Reader that was used
// to read the program so buffered answers are not lost.
func NewStdConsole(r io.Reader, w io.Writer) *StdConsole {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &StdConsole{in: br, out: w}
}

// Prompt prints text on its own line and reads the answer.
func (c *StdConsole) Prompt(text string) (string, error) {
	if err := c.Println(text); err != nil {
		return "", err
	}
	line, err := readLine(c.in)
	if err != nil {
		return "", fmt.Errorf("reading answer to %q: %w", text, err)
	}
	return line, nil
}

// Println writes text followed by a newline.
func (c *StdConsole) Println(text string) error {
	_, err := fmt.Fprintln(c.out, text)
	return err
}

// readLine reads one line, dropping the trailing "\n" or "\r\n". A final
// unterminated line is returned without error; io.EOF is returned only
// when nothing was read.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			err = nil
		} else {
			return "", err
		}
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, nil
}

// ReadProgram collects program lines from r until a line that is exactly
// "end" (surrounding whitespace ignored). The end line is included.
// Reaching EOF first returns whatever was collected.
func ReadProgram(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	for {
		line, err := readLine(r)
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(line)
		sb.WriteString("\n")
		if strings.TrimSpace(line) == "end" {
			return sb.String(), nil
		}
	}
}
