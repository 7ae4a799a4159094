package simplimath

import (
	"errors"
	"reflect"
	"testing"
)

func newTestInterpreter() (*Interpreter, *scriptConsole) {
	console := &scriptConsole{}
	return New(console), console
}

func TestParseCommandQueues(t *testing.T) {
	in, console := newTestInterpreter()
	lines := []string{
		"*** a comment",
		"",
		`age = input("How old? ")`,
		`input("Press enter")`,
		"output(Age: /{age}/)",
		"wait(1)",
	}
	for _, line := range lines {
		if err := in.ParseCommand(line); err != nil {
			t.Fatalf("ParseCommand(%q) error: %v", line, err)
		}
	}

	wantInputs := []InputRequest{
		{Variable: "age", Prompt: "How old?"},
		{Variable: "", Prompt: "Press enter"},
	}
	if got := in.PendingInputs(); !reflect.DeepEqual(got, wantInputs) {
		t.Errorf("inputs = %+v, want %+v", got, wantInputs)
	}
	wantOutputs := []OutputRequest{
		{Kind: OutputPrint, Command: "output(Age: /{age}/)"},
		{Kind: OutputWait, Command: "wait(1)"},
	}
	if got := in.PendingOutputs(); !reflect.DeepEqual(got, wantOutputs) {
		t.Errorf("outputs = %+v, want %+v", got, wantOutputs)
	}
	if len(console.events) != 0 {
		t.Errorf("queued commands must not touch the console, got %q", console.events)
	}
}

func TestParseCommandAssignment(t *testing.T) {
	in, _ := newTestInterpreter()
	for _, line := range []string{"a = 5", "b=a*2", "greeting = 'hi ' + 'there'", "a = a + 1"} {
		if err := in.ParseCommand(line); err != nil {
			t.Fatalf("ParseCommand(%q) error: %v", line, err)
		}
	}
	want := Variables{
		"a":        IntValue(6),
		"b":        IntValue(10),
		"greeting": StringValue("hi there"),
	}
	if got := in.Variables(); !reflect.DeepEqual(got, want) {
		t.Errorf("variables = %v, want %v", got, want)
	}
}

func TestParseCommandErrors(t *testing.T) {
	tests := []struct {
		command string
		message string
	}{
		{"foo", "Unknown command: foo"},
		{"print(5)", "Unknown command: print(5)"},
		{"1x = 3", "Invalid variable name: 1x"},
		{"a b = 3", "Invalid variable name: a b"},
		{"a = ", "Invalid value or expression: "},
		{"a = 1 +", "Invalid value or expression: 1 +"},
		{"a = y", "Invalid value or expression: y"},
		{`1x = input("a")`, "Invalid variable name: 1x"},
		{"x = input(Age)", "Invalid input command: x = input(Age)"},
		{"x = input('Age')", "Invalid input command: x = input('Age')"},
		{`input("a=b")`, `Invalid variable name: input("a`},
		{`input("1 = 1")`, `Invalid variable name: input("1`},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			in, _ := newTestInterpreter()
			err := in.ParseCommand(tt.command)
			if !errors.Is(err, ErrSyntax) {
				t.Fatalf("expected SyntaxError, got %v", err)
			}
			if err.Error() != tt.message {
				t.Errorf("error = %q, want %q", err.Error(), tt.message)
			}
			if len(in.PendingInputs()) != 0 || len(in.Variables()) != 0 {
				t.Error("failed command changed interpreter state")
			}
		})
	}
}

func TestAssignmentKeepsCause(t *testing.T) {
	in, _ := newTestInterpreter()
	err := in.ParseCommand("a = 1 / 0")
	if !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("expected division by zero cause, got %v", err)
	}
}

func TestHoldFlag(t *testing.T) {
	in, _ := newTestInterpreter()
	// The condition is read from one past the "loop if(" prefix.
	steps := []struct {
		command string
		hold    bool
	}{
		{"flag = 'true'", false},
		{"loop if(flag)", false},
		{"lag = 'true'", false},
		{"loop if(flag)", true},
		{"finish loop", false},
		{"loop if(x flag )", true},
		{"not hold", false},
		{"not hold", true},
		{"n = 1", true},
		{"loop if(xn)", false},
		{"loop if(xmissing)", false},
		{"other = 'True'", false},
		{"loop if(xother)", false},
		{"not hold please", true},
		{"loop if()", false},
		{"not hold", true},
		{"loop if(x)", false},
	}
	for _, step := range steps {
		if err := in.ParseCommand(step.command); err != nil {
			t.Fatalf("ParseCommand(%q) error: %v", step.command, err)
		}
		if in.Hold() != step.hold {
			t.Errorf("after %q hold = %v, want %v", step.command, in.Hold(), step.hold)
		}
	}
}

func TestEndCommand(t *testing.T) {
	in, console := newTestInterpreter()
	if err := in.ParseCommand("end"); err != nil {
		t.Fatal(err)
	}
	if in.Running() {
		t.Error("still running after end")
	}
	if want := []string{EndBanner}; !reflect.DeepEqual(console.lines, want) {
		t.Errorf("lines = %q, want %q", console.lines, want)
	}

	err := in.ParseCommand("a = 1")
	if !errors.Is(err, ErrRuntime) {
		t.Fatalf("expected RuntimeError, got %v", err)
	}
	if want := "Code has already ended. Use 'end' to restart."; err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}

	var se *Error
	if errors.As(err, &se) && se.Kind() != "RuntimeError" {
		t.Errorf("kind = %q", se.Kind())
	}
}
