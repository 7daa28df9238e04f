package agentloop

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// HumanChannel presents agent text to a person and blocks for their reply.
type HumanChannel interface {
	Ask(ctx context.Context, text string) (string, error)
}

var (
	agentLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	agentTextStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	promptStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
)

// ConsoleChannel is a HumanChannel over a terminal. It is also an
// io.Writer, so other output can share the terminal without interleaving
// with prompts.
type ConsoleChannel struct {
	in           *bufio.Reader
	out          io.Writer
	beforePrompt func()

	writeMu sync.Mutex
	readMu  sync.Mutex
	pending chan lineResult // read in flight from an abandoned ReadLine
}

type lineResult struct {
	line string
	err  error
}

// ConsoleOption configures a ConsoleChannel.
type ConsoleOption func(*ConsoleChannel)

// WithBeforePrompt runs fn before anything is printed for a question or a
// prompt, e.g. to flush queued transcript lines.
func WithBeforePrompt(fn func()) ConsoleOption {
	return func(c *ConsoleChannel) { c.beforePrompt = fn }
}

// NewConsoleChannel reads replies from in and writes prompts to out.
func NewConsoleChannel(in io.Reader, out io.Writer, opts ...ConsoleOption) *ConsoleChannel {
	c := &ConsoleChannel{in: bufio.NewReader(in), out: out}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Write writes p to the terminal, serialized with prompts.
func (c *ConsoleChannel) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.out.Write(p)
}

// Ask prints text as the agent and reads one line.
func (c *ConsoleChannel) Ask(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.flush()
	fmt.Fprintf(c, "%s %s\n", agentLabelStyle.Render("agent:"), agentTextStyle.Render(text))
	return c.readLine(ctx, promptStyle.Render("> "))
}

// ReadLine writes prompt and returns the next input line without its
// newline. It returns ctx.Err() as soon as ctx is done; a line typed after
// that is delivered to the next call.
func (c *ConsoleChannel) ReadLine(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.flush()
	return c.readLine(ctx, prompt)
}

func (c *ConsoleChannel) flush() {
	if c.beforePrompt != nil {
		c.beforePrompt()
	}
}

func (c *ConsoleChannel) readLine(ctx context.Context, prompt string) (string, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	fmt.Fprint(c, prompt)
	if c.pending == nil {
		ch := make(chan lineResult, 1)
		c.pending = ch
		go func() {
			line, err := c.in.ReadString('\n')
			ch <- lineResult{line: line, err: err}
		}()
	}

	select {
	case <-ctx.Done():
		fmt.Fprintln(c)
		return "", ctx.Err()
	case r := <-c.pending:
		c.pending = nil
		if r.err != nil && !(r.err == io.EOF && r.line != "") {
			return "", fmt.Errorf("read human reply: %w", r.err)
		}
		return strings.TrimRight(r.line, "\r\n"), nil
	}
}
