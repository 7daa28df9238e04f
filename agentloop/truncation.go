package agentloop

import (
	"fmt"
	"strings"
)

// TruncationMode specifies how output is truncated.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// DefaultMaxPageChars bounds the rendered page text placed in a prompt.
const DefaultMaxPageChars = 20000

// TruncateOutput applies character-based truncation to text. A maxChars of
// zero or less disables truncation.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}

	removed := len(output) - maxChars
	switch mode {
	case TruncateTail:
		return fmt.Sprintf("[WARNING: Page content was truncated. First %d characters were removed.]\n\n", removed) +
			output[len(output)-maxChars:]

	default:
		half := maxChars / 2
		return output[:half] +
			fmt.Sprintf("\n\n[WARNING: Page content was truncated. %d characters were removed from the middle. "+
				"Scroll to bring other parts of the page into view.]\n\n", removed) +
			output[len(output)-(maxChars-half):]
	}
}

// TruncateLines applies line-based truncation using head/tail split. A
// maxLines of zero or less disables it.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncatePage applies the full truncation pipeline to rendered page text:
// characters first, then lines.
func TruncatePage(page string, maxChars, maxLines int) string {
	return TruncateLines(TruncateOutput(page, maxChars, TruncateHeadTail), maxLines)
}
