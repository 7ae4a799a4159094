package simplimath

import "strings"

// Placeholder delimiters for output templates: /{name}/
const (
	placeholderOpen  = "/{"
	placeholderClose = "}/"
)

// FormatString replaces every /{name}/ placeholder in template with the
// current value of name. Placeholders are resolved one occurrence at a time,
// left to right; scanning resumes after the inserted text, so substituted
// values are never expanded again.
func FormatString(template string, vars Variables) (string, error) {
	var sb strings.Builder
	rest := template
	for {
		start := strings.Index(rest, placeholderOpen)
		if start < 0 {
			break
		}
		end := strings.Index(rest[start+len(placeholderOpen):], placeholderClose)
		if end < 0 {
			break
		}
		end += start + len(placeholderOpen)

		name := strings.TrimSpace(rest[start+len(placeholderOpen) : end])
		value, ok := vars.Get(name)
		if !ok {
			return "", NewSyntaxError("Undefined variable in string: %s", name)
		}
		sb.WriteString(rest[:start])
		sb.WriteString(value.String())
		rest = rest[end+len(placeholderClose):]
	}
	sb.WriteString(rest)
	return sb.String(), nil
}

// formatString substitutes placeholders against the interpreter's store.
func (in *Interpreter) formatString(template string) (string, error) {
	return FormatString(template, in.variables)
}
