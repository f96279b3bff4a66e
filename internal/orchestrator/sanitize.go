package orchestrator

import (
	"regexp"
	"strings"
)

// Some models leak reasoning tags or echoed tool-call text into their final
// answer. Strip those before the reply reaches a customer.
var thinkingTagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>`),
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	regexp.MustCompile(`(?is)<thought>.*?</thought>`),
}

var toolEchoPattern = regexp.MustCompile(`(?m)^\[(?:Tool Call|Tool Result)[^\]]*\].*$`)

func sanitizeReply(content string) string {
	if content == "" {
		return content
	}

	lower := strings.ToLower(content)
	if strings.Contains(lower, "<think") || strings.Contains(lower, "<thought") {
		for _, pat := range thinkingTagPatterns {
			content = pat.ReplaceAllString(content, "")
		}
	}

	if strings.Contains(content, "[Tool") {
		content = toolEchoPattern.ReplaceAllString(content, "")
	}

	// Collapse 3+ blank lines left behind by the stripping.
	for strings.Contains(content, "\n\n\n") {
		content = strings.ReplaceAll(content, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(content)
}
