package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/martinemde/webpilot/agentloop"
	"github.com/martinemde/webpilot/browser"
	"github.com/martinemde/webpilot/config"
	"github.com/martinemde/webpilot/llm"
	"github.com/martinemde/webpilot/memory"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	rationaleStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8"))
	commandStyle   = lipgloss.NewStyle().Bold(true)
	feedbackStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// agent bundles a session with the resources it depends on.
type agent struct {
	session *agentloop.Session
	browser *browser.Browser
	client  *llm.Client
	human   *agentloop.ConsoleChannel
	log     *transcript
}

// newAgent wires the model client, the browser and the session from cfg.
func newAgent(ctx context.Context, cfg *config.Config, logger *zap.Logger, in io.Reader, out io.Writer) (*agent, error) {
	provider, err := llm.NewGollmProvider(cfg.LLM.Provider, cfg.LLM.APIKey,
		llm.WithModel(cfg.Model()),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTemperature(cfg.LLM.Temperature),
	)
	if err != nil {
		return nil, err
	}
	client := llm.NewClient(
		llm.WithProvider(provider),
		llm.WithMiddleware(llm.LoggingMiddleware(logger.Named("llm"))),
	)

	tokenizer, err := cfg.Tokenizer()
	if err != nil {
		logger.Warn("falling back to approximate token counts", zap.Error(err))
		tokenizer = memory.ApproxTokenizer
	}

	b, err := browser.Launch(ctx, cfg.Browser, browser.WithLogger(logger.Named("browser")))
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	// Transcript lines and prompts share one locked writer; queued lines
	// are flushed before every prompt.
	log := newTranscript(nil)
	human := agentloop.NewConsoleChannel(in, out, agentloop.WithBeforePrompt(log.Sync))
	log.out = human
	sessionCfg := cfg.SessionConfig()
	session, err := agentloop.NewSession(agentloop.Collaborators{
		Actuator: b,
		Oracle: agentloop.NewLLMOracle(client, cfg.Model(),
			agentloop.WithOracleTemperature(cfg.LLM.Temperature),
			agentloop.WithOracleRetry(cfg.RetryPolicy()),
		),
		Human:      human,
		Tokenizer:  tokenizer,
		Summarizer: agentloop.NewLLMSummarizer(client, cfg.SummaryModel()),
	}, &sessionCfg, agentloop.WithLogger(logger))
	if err != nil {
		_ = b.Close()
		_ = client.Close()
		return nil, err
	}

	log.start(session.Events())
	return &agent{session: session, browser: b, client: client, human: human, log: log}, nil
}

// Close stops the session, waits for the transcript to drain and shuts
// down Chrome and the model client.
func (a *agent) Close() error {
	a.session.Close()
	a.log.Wait()
	return errors.Join(a.browser.Close(), a.client.Close())
}

// runObjective pursues one objective and prints the text file.
func runObjective(ctx context.Context, objective string) error {
	a, err := newAgent(ctx, cfg, logger, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	runErr := a.session.Run(ctx, objective)
	a.log.Sync()
	printDeliverable(a.human, a.session.Deliverable())
	if errors.Is(runErr, agentloop.ErrTurnLimit) {
		return fmt.Errorf("gave up after %d turns", cfg.Agent.MaxTurns)
	}
	return runErr
}

// runInteractive reads objectives until "exit" or end of input. Every
// objective starts from a fresh history, text file and blank tab.
func runInteractive(ctx context.Context) error {
	a, err := newAgent(ctx, cfg, logger, os.Stdin, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	fmt.Fprintln(a.human, headerStyle.Render("webpilot")+" - type an objective, or exit to quit")
	for {
		objective, err := a.human.ReadLine(ctx, headerStyle.Render("objective> "))
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		objective = strings.TrimSpace(objective)
		switch objective {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if err := a.session.Reset(ctx); err != nil {
			return err
		}
		runErr := a.session.Run(ctx, objective)
		a.log.Sync()
		printDeliverable(a.human, a.session.Deliverable())
		switch {
		case runErr == nil:
		case errors.Is(runErr, agentloop.ErrTurnLimit):
			fmt.Fprintln(a.human, warnStyle.Render(fmt.Sprintf("gave up after %d turns", cfg.Agent.MaxTurns)))
		case ctx.Err() != nil:
			fmt.Fprintln(a.human, warnStyle.Render("interrupted"))
			return nil
		default:
			return runErr
		}
	}
}

// formatEvent renders the transcript line for a session event, or "" for
// events the terminal does not show.
func formatEvent(ev agentloop.SessionEvent) string {
	switch ev.Kind {
	case agentloop.EventAction:
		return rationaleStyle.Render(ev.Rationale) + "\n" + commandStyle.Render("> "+ev.Command)
	case agentloop.EventFeedback:
		// Handoff questions and replies are already on screen.
		if ev.Role == memory.RoleUser || ev.Role == memory.RoleAgent {
			return ""
		}
		return feedbackStyle.Render(ev.Content)
	case agentloop.EventTerminal:
		return headerStyle.Render("done: ") + ev.Content
	case agentloop.EventCompaction:
		if ev.Compaction == nil {
			return ""
		}
		return feedbackStyle.Render(fmt.Sprintf("(history compacted: %d -> %d tokens)",
			ev.Compaction.TokensBefore, ev.Compaction.TokensAfter))
	case agentloop.EventLoopDetection:
		return warnStyle.Render("(repeating pattern detected, warning the agent)")
	default:
		return ""
	}
}

func printDeliverable(w io.Writer, doc string) {
	if doc == "" {
		return
	}
	fmt.Fprintln(w, headerStyle.Render("text file:"))
	fmt.Fprintln(w, doc)
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
