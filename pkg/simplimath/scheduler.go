package simplimath

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/antibyte/simplimath/pkg/logger"
)

// resolveInputs prompts for every queued input in FIFO order. Each request
// is consumed once; integer answers are stored as Int, others as String.
func (in *Interpreter) resolveInputs() error {
	queue := in.inputs
	in.inputs = nil
	for i, req := range queue {
		answer, err := in.console.Prompt(req.Prompt)
		if err != nil {
			return fmt.Errorf("input %d (%q): %w", i+1, req.Prompt, err)
		}
		if req.Variable == "" {
			continue
		}
		value, err := parseInputValue(answer)
		if err != nil {
			return err
		}
		in.variables.Set(req.Variable, value)
		logger.Debug(logger.AreaScheduler, "Resolved input %s = %s (%s)", req.Variable, value, value.Kind)
	}
	return nil
}

// handleOutputs prints the execution banner and drains the output queue.
// It only runs once every input has been resolved.
func (in *Interpreter) handleOutputs() error {
	if err := in.console.Println(ExecutionBanner); err != nil {
		return err
	}
	queue := in.outputs
	in.outputs = nil
	for _, req := range queue {
		var err error
		switch {
		case req.Kind == OutputPrint && strings.HasPrefix(req.Command, outputPrefix) && strings.HasSuffix(req.Command, ")"):
			err = in.handleOutput(innerText(req.Command, outputPrefix))
		case req.Kind == OutputWait && strings.HasPrefix(req.Command, waitPrefix) && strings.HasSuffix(req.Command, ")"):
			err = in.handleWait(innerText(req.Command, waitPrefix))
		default:
			err = NewSyntaxError("Unknown or unsupported command during execution: %s", req.Command)
		}
		if err != nil {
			return annotate(err, req.Command, 0)
		}
	}
	return nil
}

// innerText returns the trimmed text between prefix and the final ")".
func innerText(command, prefix string) string {
	return strings.TrimSpace(command[len(prefix) : len(command)-1])
}

func (in *Interpreter) handleOutput(template string) error {
	text, err := in.formatString(template)
	if err != nil {
		return err
	}
	return in.console.Println(text)
}

// maxWaitSeconds keeps the duration conversion within int64 nanoseconds.
const maxWaitSeconds = float64(math.MaxInt64 / int64(time.Second))

// handleWait evaluates the duration and blocks for that many seconds.
// The sleep cannot be interrupted.
func (in *Interpreter) handleWait(expr string) error {
	duration, err := in.evaluateExpression(expr)
	if err != nil {
		err = asInvalidExpression(expr, err)
		return waitError(err.Error(), err)
	}
	if !duration.IsNumeric() {
		return waitError(fmt.Sprintf("Invalid duration for wait: %s", expr), nil)
	}
	seconds := duration.AsFloat()
	if seconds < 0 || math.IsNaN(seconds) {
		return waitError("sleep length must be non-negative", nil)
	}
	if seconds > maxWaitSeconds {
		return waitError("sleep length is too large", nil)
	}
	d := time.Duration(seconds * float64(time.Second))
	if in.maxWait > 0 && d > in.maxWait {
		return waitError(fmt.Sprintf("wait of %s seconds exceeds the limit of %s", duration, in.maxWait), nil)
	}

	if err := in.console.Println(fmt.Sprintf("Waiting for %s seconds...", duration)); err != nil {
		return err
	}
	logger.Debug(logger.AreaScheduler, "Sleeping %v", d)
	in.sleep(d)
	return nil
}

func waitError(detail string, cause error) *Error {
	return NewSyntaxError("Error in wait command: %s", detail).WithCause(cause)
}
