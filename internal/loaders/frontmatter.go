package loaders

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const fence = "---"

// ParseFrontMatter splits a leading YAML front matter block from content.
// Content without a block is returned unchanged with nil data. An opening
// fence with no closing fence is not treated as front matter.
func ParseFrontMatter(content string) (map[string]any, string, error) {
	first, rest, ok := cutLine(content)
	if !ok || strings.TrimRight(first, " \t\r") != fence {
		return nil, content, nil
	}

	var block strings.Builder
	for {
		line, next, more := cutLine(rest)
		if strings.TrimRight(line, " \t\r") == fence {
			data := map[string]any{}
			if err := yaml.Unmarshal([]byte(block.String()), &data); err != nil {
				return nil, "", fmt.Errorf("front matter: %w", err)
			}
			return data, next, nil
		}
		if !more {
			return nil, content, nil
		}
		block.WriteString(line)
		block.WriteByte('\n')
		rest = next
	}
}

// cutLine splits s after its first newline. more is false when s has no
// newline, in which case line is all of s.
func cutLine(s string) (line, rest string, more bool) {
	line, rest, more = strings.Cut(s, "\n")
	return line, rest, more
}
