package docparse

import (
	"regexp"
	"strings"
)

var spaceRuns = regexp.MustCompile(` +`)

// NormalizeText cleans extracted text: trims every line, drops blank lines,
// rejoins with single newlines and collapses runs of spaces. Line boundaries
// are otherwise preserved.
func NormalizeText(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return spaceRuns.ReplaceAllString(strings.Join(cleaned, "\n"), " ")
}

// textStats fills the count fields of a Metadata from normalized content.
func textStats(content string) (words, chars, lines int) {
	chars = len(content)
	words = len(strings.Fields(content))
	if content != "" {
		lines = strings.Count(content, "\n") + 1
	}
	return
}
