// Package openai defines the typed request/response/stream-chunk shapes
// of the OpenAI Chat Completions API that this bridge speaks to upstream
// providers.
package openai

import "encoding/json"

// ChatRequest is the body posted to POST {base_url}/chat/completions.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	ToolChoice  any       `json:"tool_choice,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

// Message is one flattened chat message. Its text is carried either in
// Content (a plain string) or in Parts (a multimodal array); an
// assistant message may also carry ToolCalls, with or without text.
type Message struct {
	Role       string              `json:"role"`
	Content    string              `json:"content,omitempty"`
	Parts      []ContentPart       `json:"-"`
	ToolCalls  []ToolCall          `json:"tool_calls,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
}

// MarshalJSON emits Content as a plain string when Parts is empty, or as
// a multimodal array when Parts is populated — OpenAI user messages
// accept either shape for `content`. An assistant message with tool
// calls and no text omits `content` entirely rather than sending `""`,
// per spec.md §4.2 rule 3.
func (m Message) MarshalJSON() ([]byte, error) {
	wire := struct {
		Role       string        `json:"role"`
		Content    any           `json:"content,omitempty"`
		ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
		ToolCallID string        `json:"tool_call_id,omitempty"`
	}{
		Role:       m.Role,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
	}
	switch {
	case len(m.Parts) > 0:
		wire.Content = m.Parts
	case m.Content != "" || len(m.ToolCalls) == 0:
		wire.Content = m.Content
	}
	return json.Marshal(wire)
}

// ContentPart is one element of a multimodal user-message content array.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL wraps the data: URI ccproxy-style image parts carry.
type ImageURL struct {
	URL string `json:"url"`
}

// Tool is a function-tool definition.
type Tool struct {
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the function body of a Tool.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolChoiceFunction is the object form of tool_choice (spec.md §4.2
// rule 5's {tool, name} case).
type ToolChoiceFunction struct {
	Type     string                     `json:"type"`
	Function ToolChoiceFunctionByName   `json:"function"`
}

// ToolChoiceFunctionByName names the forced function.
type ToolChoiceFunctionByName struct {
	Name string `json:"name"`
}

// ToolCall is one assistant tool invocation.
type ToolCall struct {
	Index    *int         `json:"index,omitempty"`
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall is the name/arguments pair of a ToolCall.
type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ChatResponse is a non-streaming chat completion response.
type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice is one completion choice; only index 0 is used (spec.md §4.3).
type Choice struct {
	Index        int            `json:"index"`
	Message      ResponseMsg    `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

// ResponseMsg is the assistant message of a non-streaming choice.
type ResponseMsg struct {
	Role             string     `json:"role"`
	Content          string     `json:"content"`
	ReasoningContent string     `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall `json:"tool_calls,omitempty"`
}

// Usage is OpenAI's token accounting shape.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamChunk is one parsed `data: {...}` line of a streaming chat
// completion (spec.md §4.4.2).
type StreamChunk struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
	Usage   *Usage         `json:"usage"`
}

// StreamChoice is one choice of a StreamChunk.
type StreamChoice struct {
	Index        int          `json:"index"`
	Delta        StreamDelta  `json:"delta"`
	FinishReason *string      `json:"finish_reason"`
}

// StreamDelta is the incremental content of one StreamChoice.
type StreamDelta struct {
	Role             string             `json:"role,omitempty"`
	Content          string             `json:"content,omitempty"`
	ReasoningContent string             `json:"reasoning_content,omitempty"`
	ToolCalls        []StreamToolCall   `json:"tool_calls,omitempty"`
}

// StreamToolCall is an incremental tool_calls entry keyed by Index; any
// of ID/Function.Name/Function.Arguments may be absent on a given chunk.
type StreamToolCall struct {
	Index    int              `json:"index"`
	ID       string           `json:"id,omitempty"`
	Function StreamFunctionCall `json:"function"`
}

// StreamFunctionCall is the partial function body of a StreamToolCall.
type StreamFunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// FinishReason constants as returned by OpenAI-compatible upstreams.
const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishToolCalls     = "tool_calls"
	FinishFunctionCall  = "function_call"
	FinishContentFilter = "content_filter"
)
