// Package anthropic defines the typed request/response shapes of the
// Anthropic Messages API that this bridge accepts from and returns to
// clients.
package anthropic

import "encoding/json"

// MessagesRequest is the body of a POST /v1/messages request.
type MessagesRequest struct {
	Model         string          `json:"model"`
	Messages      []Message       `json:"messages" binding:"required,min=1"`
	System        json.RawMessage `json:"system,omitempty"`
	MaxTokens     int             `json:"max_tokens,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	TopK          *int            `json:"top_k,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	Tools         []Tool          `json:"tools,omitempty"`
	ToolChoice    json.RawMessage `json:"tool_choice,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// Message is one turn of a conversation. Content is either a plain string
// or an ordered sequence of Content blocks; UnmarshalJSON below resolves
// which.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// UnmarshalJSON resolves Message.Content to either a string or a
// []Content, mirroring models.Message's custom unmarshaling in the
// teacher.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	m.Role = a.Role

	var asString string
	if err := json.Unmarshal(a.Content, &asString); err == nil {
		m.Content = asString
		return nil
	}

	var asBlocks []Content
	if err := json.Unmarshal(a.Content, &asBlocks); err == nil {
		m.Content = asBlocks
		return nil
	}

	return &UnknownContentError{Path: "message.content"}
}

// Content is a single content block. Type discriminates which of the
// other fields are meaningful; unknown kinds are rejected rather than
// silently dropped (see DESIGN.md: sum-typed content blocks).
type Content struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image
	Source *ImageSource `json:"source,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   any    `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// MarshalJSON emits only the fields meaningful for c.Type, and — unlike
// the struct's own `omitempty` tags — always carries "input" on a
// tool_use block even when Input is nil/empty, matching the wire shape
// real Anthropic clients expect (spec.md §4.3 step 3, §4.4.3).
func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Type {
	case BlockText:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text,omitempty"`
		}{c.Type, c.Text})
	case BlockImage:
		return json.Marshal(struct {
			Type   string       `json:"type"`
			Source *ImageSource `json:"source,omitempty"`
		}{c.Type, c.Source})
	case BlockToolUse:
		input := c.Input
		if input == nil {
			input = map[string]any{}
		}
		return json.Marshal(struct {
			Type  string         `json:"type"`
			ID    string         `json:"id,omitempty"`
			Name  string         `json:"name,omitempty"`
			Input map[string]any `json:"input"`
		}{c.Type, c.ID, c.Name, input})
	case BlockToolResult:
		return json.Marshal(struct {
			Type      string `json:"type"`
			ToolUseID string `json:"tool_use_id,omitempty"`
			Content   any    `json:"content,omitempty"`
			IsError   bool   `json:"is_error,omitempty"`
		}{c.Type, c.ToolUseID, c.Content, c.IsError})
	default:
		type alias Content
		return json.Marshal(alias(c))
	}
}

// ImageSource is the inline base64 image payload of an image block.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// Known content block kinds.
const (
	BlockText       = "text"
	BlockImage      = "image"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// UnknownContentError reports a content block of an unrecognized kind,
// or one missing a field required for its declared kind.
type UnknownContentError struct {
	Kind string
	Path string
}

func (e *UnknownContentError) Error() string {
	if e.Kind == "" {
		return "anthropic: malformed content at " + e.Path
	}
	return "anthropic: unknown content block kind " + e.Kind + " at " + e.Path
}

// Tool is a tool definition offered to the model.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolChoice mirrors the decoded form of the request's tool_choice field.
type ToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// MessagesResponse is the non-streaming response body for /v1/messages.
type MessagesResponse struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Role         string    `json:"role"`
	Model        string    `json:"model"`
	Content      []Content `json:"content"`
	StopReason   string    `json:"stop_reason"`
	StopSequence *string   `json:"stop_sequence"`
	Usage        Usage     `json:"usage"`
}

// Usage reports token accounting on a response.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ErrorBody is the Anthropic-shaped error envelope written for every
// client-visible failure (see spec.md §7).
type ErrorBody struct {
	Type  string    `json:"type"`
	Error ErrorInfo `json:"error"`
}

// ErrorInfo is the inner error object of ErrorBody.
type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Stop reason values.
const (
	StopEndTurn      = "end_turn"
	StopMaxTokens    = "max_tokens"
	StopToolUse      = "tool_use"
	StopStopSequence = "stop_sequence"
)

// FieldDropList is the set of top-level request field names the config's
// [params].drop list can name for removal before forwarding (spec.md
// §4.2 rule 7). These are the ones ccproxy's own request shape never
// recognized; kept here as the default well-known set.
var FieldDropList = []string{"betas", "anthropic_beta", "context_management", "reasoning_effort"}
