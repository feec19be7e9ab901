package producer

import (
	"fmt"
	"strings"
)

// extractScript pulls the script text out of a model response. It prefers
// the first fenced code block; a bare response that looks like a script
// (starts with a shebang) is accepted as-is. Anything else is an error;
// an empty script is never substituted.
func extractScript(response string) (string, error) {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return "", fmt.Errorf("model returned an empty response")
	}

	if block, ok := firstFencedBlock(trimmed); ok {
		block = strings.TrimSpace(block)
		if block == "" {
			return "", fmt.Errorf("model returned an empty code block")
		}
		return ensureTrailingNewline(block), nil
	}

	if strings.HasPrefix(trimmed, "#!") {
		return ensureTrailingNewline(trimmed), nil
	}

	return "", fmt.Errorf("no script found in model response")
}

// firstFencedBlock returns the contents of the first ``` fenced block.
// The opening fence's language tag (bash, sh, shell, ...) is discarded.
func firstFencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}
	rest := s[start+3:]

	// Drop the language tag line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		return "", false
	}

	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

func ensureTrailingNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
