// Package llm is a small provider-agnostic completion client built on the
// gollm library (github.com/teilomillet/gollm).
//
// It is the agent's only route to a language model: the agent loop asks it
// for one structured action per turn and the history buffer asks it for
// summaries when compacting.
//
// # Architecture
//
//   - Provider: the backend contract (GollmProvider wraps gollm.LLM)
//   - Client: provider routing plus onion-style middleware
//   - Retry: exponential backoff driven by the typed error hierarchy
//   - Generate / CompleteObject: text and JSON-schema constrained completions
//
// # Quick Start
//
//	provider, err := llm.NewGollmProvider("openai", os.Getenv("OPENAI_API_KEY"), llm.WithModel("gpt-4o"))
//	if err != nil {
//	    return err
//	}
//	client := llm.NewClient(llm.WithProvider(provider))
//
//	var reply struct {
//	    Answer string `json:"answer"`
//	}
//	_, err = llm.CompleteObject(ctx, client, llm.GenerateOptions{
//	    Model:  "gpt-4o",
//	    System: "Answer briefly.",
//	    Prompt: "What is the capital of France?",
//	}, &reply)
package llm
