package promptstyle

import "strings"

const marker = "RULEMANAGER_PROMPT_STYLE_V1"

// ApplySystem prepends the shared output-discipline block to a system
// prompt. language is the artifact language ("sql", "scala", ...). Prompts
// that already carry the block are returned unchanged.
func ApplySystem(system string, language string) string {
	base := strings.TrimSpace(system)
	if base == "" {
		return base
	}
	if strings.Contains(base, marker) {
		return base
	}
	language = strings.ToLower(strings.TrimSpace(language))

	taskSummary := ""
	for _, line := range strings.Split(base, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			taskSummary = trimmed
			break
		}
	}

	var b strings.Builder
	b.WriteString(marker)
	b.WriteString("\nYou write stream processing jobs for a telecom fraud detection platform.")
	if taskSummary != "" {
		b.WriteString("\nTask summary: " + taskSummary)
	}
	b.WriteString("\nFollow the system and user instructions precisely.")
	if language != "" {
		b.WriteString("\nOutput only " + language + " source code, with no explanation before or after it.")
	} else {
		b.WriteString("\nOutput only source code, with no explanation before or after it.")
	}
	b.WriteString("\nUse only the tables and columns defined below; do not invent fields.")
	b.WriteString("\nIf the request is ambiguous, pick the most conservative threshold.")
	b.WriteString("\n---\n")
	b.WriteString(base)
	return strings.TrimSpace(b.String())
}
