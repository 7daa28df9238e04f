package memory

import (
	"context"
	"fmt"
	"strings"
)

// HistoryConfig bounds the interaction history.
type HistoryConfig struct {
	MaxTokens        int     `json:"max_tokens"`
	TriggerThreshold float64 `json:"trigger_threshold"` // fraction of MaxTokens that starts compaction
	TargetThreshold  float64 `json:"target_threshold"`  // fraction of MaxTokens compaction aims for
	// MaxPasses caps summarization rounds per insert. One pass bounds each
	// insert to a single summarizer round-trip, at the cost of possibly
	// staying above target after a burst.
	MaxPasses int `json:"max_passes"`
}

// DefaultHistoryConfig returns the default history bounds.
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		MaxTokens:        1024,
		TriggerThreshold: 0.8,
		TargetThreshold:  0.5,
		MaxPasses:        1,
	}
}

// Validate reports whether the configuration is usable.
func (c HistoryConfig) Validate() error {
	if c.MaxTokens <= 0 {
		return fmt.Errorf("history max tokens must be positive, got %d", c.MaxTokens)
	}
	if c.TriggerThreshold <= 0 || c.TriggerThreshold > 1 {
		return fmt.Errorf("history trigger threshold must be in (0,1], got %v", c.TriggerThreshold)
	}
	if c.TargetThreshold <= 0 || c.TargetThreshold > 1 {
		return fmt.Errorf("history target threshold must be in (0,1], got %v", c.TargetThreshold)
	}
	if c.MaxPasses < 1 {
		return fmt.Errorf("history max passes must be at least 1, got %d", c.MaxPasses)
	}
	return nil
}

// CompactionReport describes one compaction triggered by an insert.
type CompactionReport struct {
	TokensBefore int `json:"tokens_before"`
	TokensAfter  int `json:"tokens_after"`
	Summarized   int `json:"summarized"` // messages folded into summaries
	Passes       int `json:"passes"`
}

type historyEntry struct {
	msg    Message
	tokens int
}

// History is an ordered, token-bounded log of messages. When an insert
// pushes it past the trigger threshold, the oldest messages are folded into
// a single summary message. The newest message is never folded and
// surviving messages keep their order.
//
// History is not safe for concurrent use.
type History struct {
	config    HistoryConfig
	tokenize  Tokenizer
	summarize Summarizer
	onCompact func(CompactionReport)

	entries []historyEntry
	total   int
}

// NewHistory creates an empty History.
func NewHistory(config HistoryConfig, tokenize Tokenizer, summarize Summarizer) (*History, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if tokenize == nil {
		return nil, fmt.Errorf("history requires a tokenizer")
	}
	if summarize == nil {
		return nil, fmt.Errorf("history requires a summarizer")
	}
	return &History{
		config:    config,
		tokenize:  tokenize,
		summarize: summarize,
	}, nil
}

// OnCompact registers a callback invoked after each compaction.
func (h *History) OnCompact(fn func(CompactionReport)) {
	h.onCompact = fn
}

// Insert appends msg and compacts if the trigger threshold is exceeded.
// Tokenizer and summarizer failures are returned unchanged in meaning; the
// history is left without the failed summary.
func (h *History) Insert(ctx context.Context, msg Message) error {
	n, err := h.tokenize(msg.String())
	if err != nil {
		return fmt.Errorf("tokenize message: %w", err)
	}
	h.entries = append(h.entries, historyEntry{msg: msg, tokens: n})
	h.total += n
	return h.compact(ctx)
}

func (h *History) compact(ctx context.Context) error {
	if float64(h.total) <= h.limit(h.config.TriggerThreshold) {
		return nil
	}

	report := CompactionReport{TokensBefore: h.total}
	for pass := 0; pass < h.config.MaxPasses; pass++ {
		if pass > 0 && float64(h.total) <= h.limit(h.config.TargetThreshold) {
			break
		}
		cut := h.selectRun()
		if cut == 0 {
			break
		}

		run := make([]Message, cut)
		removed := 0
		for i := 0; i < cut; i++ {
			run[i] = h.entries[i].msg
			removed += h.entries[i].tokens
		}

		text, err := h.summarize(ctx, run)
		if err != nil {
			return fmt.Errorf("summarize %d messages: %w", cut, err)
		}
		summary := Message{
			Role:      RoleSummary,
			Content:   text,
			Timestamp: run[cut-1].Timestamp,
		}
		n, err := h.tokenize(summary.String())
		if err != nil {
			return fmt.Errorf("tokenize summary: %w", err)
		}

		rest := h.entries[cut:]
		entries := make([]historyEntry, 0, len(rest)+1)
		entries = append(entries, historyEntry{msg: summary, tokens: n})
		entries = append(entries, rest...)
		h.entries = entries
		h.total = h.total - removed + n

		report.Summarized += cut
		report.Passes++
	}

	report.TokensAfter = h.total
	if report.Passes > 0 && h.onCompact != nil {
		h.onCompact(report)
	}
	return nil
}

// selectRun returns how many leading entries must be folded for the
// remainder to fit the target. The newest entry is never selected.
func (h *History) selectRun() int {
	target := h.limit(h.config.TargetThreshold)
	remaining := h.total
	cut := 0
	for cut < len(h.entries)-1 && float64(remaining) > target {
		remaining -= h.entries[cut].tokens
		cut++
	}
	return cut
}

func (h *History) limit(fraction float64) float64 {
	return float64(h.config.MaxTokens) * fraction
}

// Render serializes all held messages in order, one per line.
func (h *History) Render() string {
	parts := make([]string, len(h.entries))
	for i, e := range h.entries {
		parts[i] = e.msg.String()
	}
	return strings.Join(parts, "\n")
}

// Messages returns a copy of the held messages.
func (h *History) Messages() []Message {
	msgs := make([]Message, len(h.entries))
	for i, e := range h.entries {
		msgs[i] = e.msg
	}
	return msgs
}

// Tokens returns the current token count.
func (h *History) Tokens() int { return h.total }

// Len returns the number of held messages.
func (h *History) Len() int { return len(h.entries) }

// Config returns the history bounds.
func (h *History) Config() HistoryConfig { return h.config }

// Reset discards all messages.
func (h *History) Reset() {
	h.entries = nil
	h.total = 0
}
