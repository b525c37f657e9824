package anthropic

import "encoding/json"

// Event names emitted on the /v1/messages SSE stream (spec.md §4.4.3).
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
)

// MessageStartPayload is the data payload of a message_start event.
type MessageStartPayload struct {
	Message MessageStartMessage `json:"message"`
}

// MessageStartMessage is the partial message object carried by
// message_start; content is always empty at this point.
type MessageStartMessage struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Role       string    `json:"role"`
	Model      string    `json:"model"`
	Content    []Content `json:"content"`
	StopReason *string   `json:"stop_reason"`
	Usage      Usage     `json:"usage"`
}

// ContentBlockStartPayload is the data payload of a content_block_start
// event.
type ContentBlockStartPayload struct {
	Index        int          `json:"index"`
	ContentBlock StartedBlock `json:"content_block"`
}

// StartedBlock is the content block as it looks the instant it opens:
// a text block with empty text, or a tool_use block with empty input.
type StartedBlock struct {
	Type  string
	Text  string
	ID    string
	Name  string
	Input map[string]any
}

// MarshalJSON emits only the fields meaningful for the block's type. A
// tool_use block always carries "input" — {} when nothing has arrived
// yet — per spec.md §4.4.3's grammar; a text block never carries it.
func (s StartedBlock) MarshalJSON() ([]byte, error) {
	if s.Type == BlockToolUse {
		input := s.Input
		if input == nil {
			input = map[string]any{}
		}
		return json.Marshal(struct {
			Type  string         `json:"type"`
			ID    string         `json:"id,omitempty"`
			Name  string         `json:"name,omitempty"`
			Input map[string]any `json:"input"`
		}{s.Type, s.ID, s.Name, input})
	}
	return json.Marshal(struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	}{s.Type, s.Text})
}

// ContentBlockDeltaPayload is the data payload of a content_block_delta
// event.
type ContentBlockDeltaPayload struct {
	Index int   `json:"index"`
	Delta Delta `json:"delta"`
}

// Delta is either a text_delta or an input_json_delta, discriminated by
// Type.
type Delta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// ContentBlockStopPayload is the data payload of a content_block_stop
// event.
type ContentBlockStopPayload struct {
	Index int `json:"index"`
}

// MessageDeltaPayload is the data payload of a message_delta event.
type MessageDeltaPayload struct {
	Delta MessageDeltaInfo `json:"delta"`
	Usage MessageDeltaUsage `json:"usage"`
}

// MessageDeltaInfo carries the terminal stop_reason/stop_sequence.
type MessageDeltaInfo struct {
	StopReason   string  `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

// MessageDeltaUsage is the partial usage reported with message_delta:
// only output tokens, per spec.md §4.4.3.
type MessageDeltaUsage struct {
	OutputTokens int `json:"output_tokens"`
}
