package memory

import (
	"context"
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts the tokens in a piece of text. It must be deterministic
// for a fixed input.
type Tokenizer func(text string) (int, error)

// Summarizer condenses an ordered run of messages into a single text.
type Summarizer func(ctx context.Context, messages []Message) (string, error)

// DefaultEncoding is used when a model has no registered tiktoken encoding.
const DefaultEncoding = "cl100k_base"

// NewTiktokenTokenizer returns a Tokenizer backed by the BPE encoding of the
// given model, falling back to DefaultEncoding for unknown models.
func NewTiktokenTokenizer(model string) (Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			return nil, fmt.Errorf("load tiktoken encoding for %q: %w", model, err)
		}
	}
	return func(text string) (int, error) {
		return len(enc.Encode(text, nil, nil)), nil
	}, nil
}

// ApproxTokenizer estimates roughly four characters per token. It is useful
// offline, where the BPE tables cannot be fetched.
func ApproxTokenizer(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return (len(text) + 3) / 4, nil
}
