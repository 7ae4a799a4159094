package simplimath

import (
	"strings"

	"github.com/antibyte/simplimath/pkg/logger"
)

// Command prefixes and keywords.
const (
	commentPrefix    = "***"
	inputCall        = "input("
	inputQuotedOpen  = `input("`
	inputQuotedClose = `")`
	outputPrefix     = "output("
	waitPrefix       = "wait("
	loopPrefix       = "loop if("
	finishLoopCmd    = "finish loop"
	notHoldPrefix    = "not hold"
	endCmd           = "end"
)

// ParseCommand classifies one trimmed source line and applies it: flag
// commands and assignments take effect immediately, input/output/wait
// commands are only queued. The first matching rule wins.
func (in *Interpreter) ParseCommand(command string) error {
	switch {
	case command == "" || strings.HasPrefix(command, commentPrefix):
		return nil
	case isInputCommand(command):
		return in.queueInput(command)
	case strings.HasPrefix(command, outputPrefix) && strings.HasSuffix(command, ")"):
		in.outputs = append(in.outputs, OutputRequest{Kind: OutputPrint, Command: command})
		return nil
	case strings.HasPrefix(command, waitPrefix) && strings.HasSuffix(command, ")"):
		in.outputs = append(in.outputs, OutputRequest{Kind: OutputWait, Command: command})
		return nil
	case strings.HasPrefix(command, loopPrefix) && strings.HasSuffix(command, ")"):
		in.handleLoop(command)
		return nil
	case command == finishLoopCmd:
		in.finishLoop()
		return nil
	case strings.HasPrefix(command, notHoldPrefix):
		in.notHold()
		return nil
	case command == endCmd:
		return in.end()
	case strings.Contains(command, "="):
		return in.assignVariable(command)
	}
	return NewSyntaxError("Unknown command: %s", command)
}

func isInputCommand(command string) bool {
	if strings.Contains(command, "=") && strings.Contains(command, inputCall) && strings.HasSuffix(command, ")") {
		return true
	}
	return isBareInput(command)
}

func isBareInput(command string) bool {
	return len(command) >= len(inputQuotedOpen)+len(inputQuotedClose) &&
		strings.HasPrefix(command, inputQuotedOpen) && strings.HasSuffix(command, inputQuotedClose)
}

// promptOf extracts the trimmed text between input(" and ").
func promptOf(call string) string {
	if len(call) < len(inputQuotedOpen)+len(inputQuotedClose) {
		return ""
	}
	return strings.TrimSpace(call[len(inputQuotedOpen) : len(call)-len(inputQuotedClose)])
}

// queueInput validates an input command and appends it to the input queue.
func (in *Interpreter) queueInput(command string) error {
	var req InputRequest
	switch {
	case !strings.Contains(command, "=") && isBareInput(command):
		req.Prompt = promptOf(command)
	case strings.Contains(command, "="):
		name, call, _ := strings.Cut(command, "=")
		name, call = strings.TrimSpace(name), strings.TrimSpace(call)
		if !IsValidIdentifier(name) {
			return NewSyntaxError("Invalid variable name: %s", name)
		}
		if !strings.HasPrefix(call, inputQuotedOpen) || !strings.HasSuffix(call, inputQuotedClose) {
			return NewSyntaxError("Invalid input command: %s", command)
		}
		req = InputRequest{Variable: name, Prompt: promptOf(call)}
	default:
		return NewSyntaxError("Invalid input syntax: %s", command)
	}
	in.inputs = append(in.inputs, req)
	logger.Debug(logger.AreaInterpreter, "Queued input %d for %q", len(in.inputs), req.Variable)
	return nil
}

// loopConditionStart is where the condition is read from: one past the
// "loop if(" prefix, so its first character is skipped.
const loopConditionStart = len(loopPrefix) + 1

// handleLoop sets hold iff the condition names a variable holding the
// string "true".
func (in *Interpreter) handleLoop(command string) {
	condition := ""
	if len(command)-1 > loopConditionStart {
		condition = strings.TrimSpace(command[loopConditionStart : len(command)-1])
	}
	value, ok := in.variables.Get(condition)
	in.hold = ok && value.Kind == KindString && value.Str == "true"
}

func (in *Interpreter) finishLoop() {
	in.hold = false
}

func (in *Interpreter) notHold() {
	in.hold = !in.hold
}

// end stops the parse pass and prints the termination banner right away.
func (in *Interpreter) end() error {
	in.running = false
	return in.console.Println(EndBanner)
}

// assignVariable evaluates the right-hand side and binds it.
func (in *Interpreter) assignVariable(command string) error {
	if !in.running {
		return NewRuntimeError("Code has already ended. Use 'end' to restart.")
	}

	name, expr, _ := strings.Cut(command, "=")
	name, expr = strings.TrimSpace(name), strings.TrimSpace(expr)
	if !IsValidIdentifier(name) {
		return NewSyntaxError("Invalid variable name: %s", name)
	}

	value, err := in.evaluateExpression(expr)
	if err != nil {
		return NewSyntaxError("Invalid value or expression: %s", expr).WithCause(err)
	}
	in.variables.Set(name, value)
	return nil
}
