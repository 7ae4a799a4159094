package simplimath

import (
	"strings"
	"time"

	"github.com/antibyte/simplimath/pkg/logger"
)

// Banners printed by the interpreter.
const (
	EndBanner       = "---Execution of function is below---"
	ExecutionBanner = "---Execution of code is below---"
)

// InputRequest is a queued input("...") prompt. Variable is empty for the
// bare form, whose answer is discarded.
type InputRequest struct {
	Variable string
	Prompt   string
}

// OutputKind tags a queued output-phase command.
type OutputKind int

const (
	OutputPrint OutputKind = iota
	OutputWait
)

// OutputRequest is a queued output(...) or wait(...) command, kept verbatim.
type OutputRequest struct {
	Kind    OutputKind
	Command string
}

// Interpreter holds the complete state of one SimpliMath run: variable
// store, both queues and the control flags. It is not safe for concurrent
// use and state is not reset between Execute calls.
type Interpreter struct {
	console   Console
	variables Variables
	inputs    []InputRequest
	outputs   []OutputRequest
	running   bool
	hold      bool

	sleep           func(time.Duration)
	maxProgramLines int
	maxWait         time.Duration
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithSleeper replaces time.Sleep for wait(...).
func WithSleeper(sleep func(time.Duration)) Option {
	return func(in *Interpreter) { in.sleep = sleep }
}

// WithMaxProgramLines rejects programs longer than n lines (0 = unlimited).
func WithMaxProgramLines(n int) Option {
	return func(in *Interpreter) { in.maxProgramLines = n }
}

// WithMaxWait rejects single waits longer than d (0 = unlimited).
func WithMaxWait(d time.Duration) Option {
	return func(in *Interpreter) { in.maxWait = d }
}

// New creates an interpreter printing and prompting through console.
func New(console Console, opts ...Option) *Interpreter {
	in := &Interpreter{
		console:   console,
		variables: make(Variables),
		running:   true,
		sleep:     time.Sleep,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Execute runs program: a parse pass over every line until end, then input
// resolution, then the output queue. The first error aborts the run.
func (in *Interpreter) Execute(program string) error {
	lines := strings.Split(strings.TrimSpace(program), "\n")
	if in.maxProgramLines > 0 && len(lines) > in.maxProgramLines {
		return NewSyntaxError("Program too long: %d lines (limit %d)", len(lines), in.maxProgramLines)
	}
	logger.Debug(logger.AreaInterpreter, "Executing program with %d lines", len(lines))

	for i, line := range lines {
		if !in.running {
			logger.Debug(logger.AreaInterpreter, "Program ended at line %d, skipping %d lines", i, len(lines)-i)
			break
		}
		command := strings.TrimSpace(line)
		if err := in.ParseCommand(command); err != nil {
			logger.Debug(logger.AreaInterpreter, "Parse pass failed at line %d: %v", i+1, err)
			return annotate(err, command, i+1)
		}
	}

	if err := in.resolveInputs(); err != nil {
		return err
	}
	return in.handleOutputs()
}

// Variables returns a copy of the variable store.
func (in *Interpreter) Variables() Variables {
	out := make(Variables, len(in.variables))
	for k, v := range in.variables {
		out[k] = v
	}
	return out
}

// Variable looks up a single variable.
func (in *Interpreter) Variable(name string) (Value, bool) {
	return in.variables.Get(name)
}

// Running reports whether end has not been reached yet.
func (in *Interpreter) Running() bool { return in.running }

// Hold reports the hold flag. Nothing in the language reads it.
func (in *Interpreter) Hold() bool { return in.hold }

// PendingInputs returns the queued input requests.
func (in *Interpreter) PendingInputs() []InputRequest {
	return append([]InputRequest(nil), in.inputs...)
}

// PendingOutputs returns the queued output and wait commands.
func (in *Interpreter) PendingOutputs() []OutputRequest {
	return append([]OutputRequest(nil), in.outputs...)
}
