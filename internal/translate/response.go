package translate

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/orchestre-dev/anthropic-bridge/internal/anthropic"
	"github.com/orchestre-dev/anthropic-bridge/internal/openai"
)

// Warning is a non-fatal translation diagnostic — spec.md §4.3/§7
// require that unparseable tool_calls arguments become `input:{}` with a
// recorded warning, never a failed response.
type Warning struct {
	Field   string
	Message string
}

// Response translates a non-streaming OpenAI ChatResponse into an
// Anthropic MessagesResponse (spec.md §4.3). originalModel is the
// pre-remap Anthropic model name the caller supplied; it is echoed back
// rather than the upstream's (possibly remapped) model name.
func Response(resp *openai.ChatResponse, originalModel string) (*anthropic.MessagesResponse, []Warning, error) {
	if len(resp.Choices) == 0 {
		return nil, nil, &anthropic.UnknownContentError{Path: "choices"}
	}
	choice := resp.Choices[0]

	id := resp.ID
	if id == "" {
		id = uuid.NewString()
	}
	if !strings.HasPrefix(id, "msg_") {
		id = "msg_" + id
	}

	var content []anthropic.Content
	var warnings []Warning

	if choice.Message.ReasoningContent != "" {
		content = append(content, anthropic.Content{Type: anthropic.BlockText, Text: choice.Message.ReasoningContent})
	}
	if choice.Message.Content != "" {
		content = append(content, anthropic.Content{Type: anthropic.BlockText, Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		input := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				input = map[string]any{}
				warnings = append(warnings, Warning{
					Field:   "tool_calls.function.arguments",
					Message: "could not parse arguments as JSON object: " + err.Error(),
				})
			}
		}
		content = append(content, anthropic.Content{
			Type:  anthropic.BlockToolUse,
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: input,
		})
	}

	out := &anthropic.MessagesResponse{
		ID:         id,
		Type:       "message",
		Role:       "assistant",
		Model:      originalModel,
		Content:    content,
		StopReason: mapFinishReason(choice.FinishReason),
		Usage: anthropic.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}

	return out, warnings, nil
}

// mapFinishReason applies the OpenAI finish_reason -> Anthropic
// stop_reason table of spec.md §4.3. Unknown/empty reasons default to
// end_turn; callers should log a warning when that default is taken for
// a non-empty, unrecognized value.
func mapFinishReason(reason string) string {
	switch reason {
	case openai.FinishStop, openai.FinishContentFilter, "":
		return anthropic.StopEndTurn
	case openai.FinishLength:
		return anthropic.StopMaxTokens
	case openai.FinishToolCalls, openai.FinishFunctionCall:
		return anthropic.StopToolUse
	default:
		return anthropic.StopEndTurn
	}
}
