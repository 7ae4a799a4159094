package simplimath

import (
	"time"

	"github.com/antibyte/simplimath/pkg/configuration"
)

// ConfiguredOptions returns the limits from the [Interpreter] config section.
func ConfiguredOptions() []Option {
	var opts []Option
	if n := configuration.GetInt("Interpreter", "max_program_lines", 0); n > 0 {
		opts = append(opts, WithMaxProgramLines(n))
	}
	if s := configuration.GetFloat("Interpreter", "max_wait_seconds", 0); s > 0 {
		opts = append(opts, WithMaxWait(time.Duration(s*float64(time.Second))))
	}
	return opts
}
