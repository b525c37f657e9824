package translate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestre-dev/anthropic-bridge/internal/anthropic"
	"github.com/orchestre-dev/anthropic-bridge/internal/openai"
)

// S1 from spec.md §8.
func TestResponse_SimpleText(t *testing.T) {
	resp := &openai.ChatResponse{
		Choices: []openai.Choice{
			{Message: openai.ResponseMsg{Content: "hello"}, FinishReason: "stop"},
		},
		Usage: openai.Usage{PromptTokens: 3, CompletionTokens: 1},
	}

	out, warnings, err := Response(resp, "claude-sonnet-4-20250514")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "assistant", out.Role)
	assert.Equal(t, "claude-sonnet-4-20250514", out.Model)
	require.Len(t, out.Content, 1)
	assert.Equal(t, anthropic.Content{Type: "text", Text: "hello"}, out.Content[0])
	assert.Equal(t, anthropic.StopEndTurn, out.StopReason)
	assert.Equal(t, anthropic.Usage{InputTokens: 3, OutputTokens: 1}, out.Usage)
}

func TestResponse_IDGetsMsgPrefix(t *testing.T) {
	resp := &openai.ChatResponse{
		ID:      "chatcmpl-abc",
		Choices: []openai.Choice{{Message: openai.ResponseMsg{Content: "hi"}}},
	}
	out, _, err := Response(resp, "m")
	require.NoError(t, err)
	assert.Equal(t, "msg_chatcmpl-abc", out.ID)
}

func TestResponse_ReasoningThenText(t *testing.T) {
	resp := &openai.ChatResponse{
		Choices: []openai.Choice{{Message: openai.ResponseMsg{
			ReasoningContent: "thinking...",
			Content:          "the answer",
		}}},
	}
	out, _, err := Response(resp, "m")
	require.NoError(t, err)
	require.Len(t, out.Content, 2)
	assert.Equal(t, "thinking...", out.Content[0].Text)
	assert.Equal(t, "the answer", out.Content[1].Text)
}

func TestResponse_ToolCalls(t *testing.T) {
	resp := &openai.ChatResponse{
		Choices: []openai.Choice{{
			Message: openai.ResponseMsg{
				ToolCalls: []openai.ToolCall{
					{ID: "call_1", Function: openai.FunctionCall{Name: "get_weather", Arguments: `{"city":"SF"}`}},
				},
			},
			FinishReason: "tool_calls",
		}},
	}
	out, warnings, err := Response(resp, "m")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, out.Content, 1)
	assert.Equal(t, anthropic.BlockToolUse, out.Content[0].Type)
	assert.Equal(t, "call_1", out.Content[0].ID)
	assert.Equal(t, "get_weather", out.Content[0].Name)
	assert.Equal(t, map[string]any{"city": "SF"}, out.Content[0].Input)
	assert.Equal(t, anthropic.StopToolUse, out.StopReason)
}

func TestResponse_UnparseableArguments_YieldsEmptyInputAndWarning(t *testing.T) {
	resp := &openai.ChatResponse{
		Choices: []openai.Choice{{
			Message: openai.ResponseMsg{
				ToolCalls: []openai.ToolCall{
					{ID: "call_1", Function: openai.FunctionCall{Name: "f", Arguments: "not json"}},
				},
			},
		}},
	}
	out, warnings, err := Response(resp, "m")
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, map[string]any{}, out.Content[0].Input)

	// The wire shape still carries "input":{} rather than omitting it
	// (spec.md §4.3 step 3).
	data, err := json.Marshal(out.Content[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool_use","id":"call_1","name":"f","input":{}}`, string(data))
}

func TestResponse_FinishReasonMapping(t *testing.T) {
	cases := map[string]string{
		"stop":           anthropic.StopEndTurn,
		"length":         anthropic.StopMaxTokens,
		"tool_calls":     anthropic.StopToolUse,
		"function_call":  anthropic.StopToolUse,
		"content_filter": anthropic.StopEndTurn,
		"":               anthropic.StopEndTurn,
		"something_new":  anthropic.StopEndTurn,
	}
	for reason, want := range cases {
		got := mapFinishReason(reason)
		assert.Equal(t, want, got, "finish_reason=%q", reason)
	}
}

func TestResponse_EmptyChoicesFails(t *testing.T) {
	_, _, err := Response(&openai.ChatResponse{}, "m")
	require.Error(t, err)
}
