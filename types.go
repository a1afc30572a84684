package converse

// --- LLM protocol types ---

type ChatMessage struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
	// Params tunes sampling for this request. Nil uses provider defaults.
	Params *GenerationParams `json:"params,omitempty"`
}

type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// GenerationParams are optional sampling parameters for a single request.
// Nil pointer fields fall back to the provider's defaults. A fixed Seed with
// Temperature 0 yields deterministic output on backends that support seeding.
type GenerationParams struct {
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Seed        *int     `json:"seed,omitempty"`
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}

// IntPtr returns a pointer to n, for use in GenerationParams literals.
func IntPtr(n int) *int { return &n }

// Float64Ptr returns a pointer to f, for use in GenerationParams literals.
func Float64Ptr(f float64) *float64 { return &f }
