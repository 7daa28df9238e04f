package memory

import (
	"fmt"
	"strconv"
	"strings"
)

// RangeError reports a line address outside the document.
type RangeError struct {
	Op    string
	From  int
	To    int
	Lines int
}

func (e *RangeError) Error() string {
	if e.Op == "insert" {
		return fmt.Sprintf("cannot insert at line %d: valid lines are 1 to %d", e.From, e.Lines+1)
	}
	if e.From > e.To {
		return fmt.Sprintf("cannot replace lines %d-%d: start line is after end line", e.From, e.To)
	}
	if e.Lines == 0 {
		return fmt.Sprintf("cannot replace lines %d-%d: the document is empty", e.From, e.To)
	}
	return fmt.Sprintf("cannot replace lines %d-%d: valid lines are 1 to %d", e.From, e.To, e.Lines)
}

// BudgetError reports a mutation that would exceed the document's token cap.
type BudgetError struct {
	Tokens    int
	MaxTokens int
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("document would grow to %d tokens, exceeding the limit of %d", e.Tokens, e.MaxTokens)
}

// Document is a mutable, 1-indexed list of text lines with a token budget.
// Every mutation either applies fully or leaves the document untouched.
type Document struct {
	maxTokens int
	tokenize  Tokenizer
	lines     []string
	tokens    int
}

// NewDocument creates an empty Document.
func NewDocument(maxTokens int, tokenize Tokenizer) (*Document, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("document max tokens must be positive, got %d", maxTokens)
	}
	if tokenize == nil {
		return nil, fmt.Errorf("document requires a tokenizer")
	}
	return &Document{maxTokens: maxTokens, tokenize: tokenize}, nil
}

// Insert places text at line atLine, shifting that line and all following
// lines down. Text containing line breaks becomes several lines.
func (d *Document) Insert(text string, atLine int) error {
	if atLine < 1 || atLine > len(d.lines)+1 {
		return &RangeError{Op: "insert", From: atLine, To: atLine, Lines: len(d.lines)}
	}
	added := splitLines(text)
	next := make([]string, 0, len(d.lines)+len(added))
	next = append(next, d.lines[:atLine-1]...)
	next = append(next, added...)
	next = append(next, d.lines[atLine-1:]...)
	return d.commit(next)
}

// Replace removes lines from..to inclusive and puts text in their place.
func (d *Document) Replace(text string, from, to int) error {
	if from > to || from < 1 || to > len(d.lines) {
		return &RangeError{Op: "replace", From: from, To: to, Lines: len(d.lines)}
	}
	added := splitLines(text)
	next := make([]string, 0, len(d.lines)-(to-from+1)+len(added))
	next = append(next, d.lines[:from-1]...)
	next = append(next, added...)
	next = append(next, d.lines[to:]...)
	return d.commit(next)
}

func (d *Document) commit(next []string) error {
	n, err := d.tokenize(renderLines(next))
	if err != nil {
		return fmt.Errorf("tokenize document: %w", err)
	}
	if n > d.maxTokens {
		return &BudgetError{Tokens: n, MaxTokens: d.maxTokens}
	}
	d.lines = next
	d.tokens = n
	return nil
}

// Render returns the document as "<n>: <content>" lines.
func (d *Document) Render() string {
	return renderLines(d.lines)
}

// Lines returns a copy of the document lines.
func (d *Document) Lines() []string {
	out := make([]string, len(d.lines))
	copy(out, d.lines)
	return out
}

// Line returns the content of line n (1-indexed).
func (d *Document) Line(n int) (string, bool) {
	if n < 1 || n > len(d.lines) {
		return "", false
	}
	return d.lines[n-1], true
}

// Len returns the number of lines.
func (d *Document) Len() int { return len(d.lines) }

// Tokens returns the token count of the rendered document.
func (d *Document) Tokens() int { return d.tokens }

// MaxTokens returns the document's token cap.
func (d *Document) MaxTokens() int { return d.maxTokens }

// Reset empties the document.
func (d *Document) Reset() {
	d.lines = nil
	d.tokens = 0
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

func renderLines(lines []string) string {
	var sb strings.Builder
	for i, line := range lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(": ")
		sb.WriteString(line)
	}
	return sb.String()
}
