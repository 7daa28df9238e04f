package agentloop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/martinemde/webpilot/llm"
	"github.com/martinemde/webpilot/memory"
)

const summarizerPrompt = `You are given part of the interaction history between an agent, a user and a browser.
The agent controls the browser to reach an objective the user gave at the start. The agent issues
commands, the browser answers with short status reports or errors, and the user may add information
along the way.

Summarize the messages in three sentences. A reader of the summary must be able to tell what the
objective is, which actions the agent has tried so far and how close it is to finishing.`

// NewLLMSummarizer returns a memory.Summarizer that condenses history with a
// language model. An empty model uses the provider's default.
func NewLLMSummarizer(client *llm.Client, model string) memory.Summarizer {
	return func(ctx context.Context, messages []memory.Message) (string, error) {
		lines := make([]string, len(messages))
		for i, m := range messages {
			lines[i] = m.String()
		}
		resp, err := llm.Generate(ctx, client, llm.GenerateOptions{
			Model:  model,
			System: summarizerPrompt,
			Prompt: strings.Join(lines, "\n"),
		})
		if err != nil {
			return "", fmt.Errorf("summarize %d messages: %w", len(messages), err)
		}
		summary := strings.TrimSpace(resp.Text)
		if summary == "" {
			return "", errors.New("summarizer returned an empty summary")
		}
		return summary, nil
	}
}
