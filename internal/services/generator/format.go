package generator

import "strings"

// Artifact post-processing selected by Profile.Format.
const (
	FormatNone   = ""
	FormatBraces = "braces"
)

const indentUnit = "  "

// ReindentBraces rebuilds indentation from brace nesting: a line ending in
// "{" opens a level after itself, a line starting with "}" closes one before
// itself. Existing leading whitespace is discarded.
func ReindentBraces(code string) string {
	lines := strings.Split(code, "\n")
	out := make([]string, 0, len(lines))
	depth := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasSuffix(line, "{"):
			out = append(out, strings.Repeat(indentUnit, depth)+line)
			depth++
		case strings.HasPrefix(line, "}"):
			if depth > 0 {
				depth--
			}
			out = append(out, strings.Repeat(indentUnit, depth)+line)
		default:
			out = append(out, strings.Repeat(indentUnit, depth)+line)
		}
	}
	return strings.Join(out, "\n")
}

func (p *Profile) format(code string) string {
	switch p.Format {
	case FormatBraces:
		return ReindentBraces(code)
	default:
		return code
	}
}
