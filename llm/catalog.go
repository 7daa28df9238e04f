package llm

// ModelInfo describes a model the agent is known to work with.
type ModelInfo struct {
	ID            string   `json:"id"`
	Provider      string   `json:"provider"`
	DisplayName   string   `json:"display_name"`
	ContextWindow int      `json:"context_window"`
	MaxOutput     int      `json:"max_output,omitempty"`
	Aliases       []string `json:"aliases,omitempty"`
}

// Models is the built-in catalog. The first entry per provider is its
// default in DefaultModels.
var Models = []ModelInfo{
	// OpenAI
	{ID: "gpt-4o", Provider: "openai", DisplayName: "GPT-4o", ContextWindow: 128000, MaxOutput: 16384, Aliases: []string{"4o"}},
	{ID: "gpt-4o-mini", Provider: "openai", DisplayName: "GPT-4o mini", ContextWindow: 128000, MaxOutput: 16384, Aliases: []string{"4o-mini"}},
	{ID: "gpt-4.1", Provider: "openai", DisplayName: "GPT-4.1", ContextWindow: 1047576, MaxOutput: 32768},

	// Anthropic
	{ID: "claude-sonnet-4-5", Provider: "anthropic", DisplayName: "Claude Sonnet 4.5", ContextWindow: 200000, MaxOutput: 16384, Aliases: []string{"sonnet", "claude-sonnet"}},
	{ID: "claude-opus-4-6", Provider: "anthropic", DisplayName: "Claude Opus 4.6", ContextWindow: 200000, MaxOutput: 32768, Aliases: []string{"opus", "claude-opus"}},

	// Groq
	{ID: "llama-3.3-70b-versatile", Provider: "groq", DisplayName: "Llama 3.3 70B (Groq)", ContextWindow: 131072, MaxOutput: 32768},

	// Ollama; the context window depends on the local num_ctx.
	{ID: "llama3.1", Provider: "ollama", DisplayName: "Llama 3.1 (local)", ContextWindow: 8192},
}

// GetModelInfo returns the catalog entry for a model id or alias, or nil if
// unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// ListModels returns all known models, optionally filtered by provider.
func ListModels(provider string) []ModelInfo {
	if provider == "" {
		result := make([]ModelInfo, len(Models))
		copy(result, Models)
		return result
	}
	var result []ModelInfo
	for _, m := range Models {
		if m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// ResolveModel expands an alias to its model id. Unknown names are returned
// unchanged so uncatalogued models still work.
func ResolveModel(name string) string {
	if info := GetModelInfo(name); info != nil {
		return info.ID
	}
	return name
}
