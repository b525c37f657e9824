package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestre-dev/anthropic-bridge/internal/anthropic"
	"github.com/orchestre-dev/anthropic-bridge/internal/openai"
)

func strPtr(s string) *string { return &s }

// S2 from spec.md §8: a pure tool-call stream.
func TestTranslator_ToolCallStreaming(t *testing.T) {
	tr := New("claude-sonnet-4-20250514")

	var events []Event
	events = append(events, tr.ProcessChunk(&openai.StreamChunk{
		Choices: []openai.StreamChoice{{Delta: openai.StreamDelta{Role: "assistant"}}},
	})...)
	events = append(events, tr.ProcessChunk(&openai.StreamChunk{
		Choices: []openai.StreamChoice{{Delta: openai.StreamDelta{
			ToolCalls: []openai.StreamToolCall{{Index: 0, ID: "call_1", Function: openai.StreamFunctionCall{Name: "get_weather"}}},
		}}},
	})...)
	events = append(events, tr.ProcessChunk(&openai.StreamChunk{
		Choices: []openai.StreamChoice{{Delta: openai.StreamDelta{
			ToolCalls: []openai.StreamToolCall{{Index: 0, Function: openai.StreamFunctionCall{Arguments: `{"city":`}}},
		}}},
	})...)
	events = append(events, tr.ProcessChunk(&openai.StreamChunk{
		Choices: []openai.StreamChoice{{Delta: openai.StreamDelta{
			ToolCalls: []openai.StreamToolCall{{Index: 0, Function: openai.StreamFunctionCall{Arguments: `"SF"}`}}},
		}}},
	})...)
	events = append(events, tr.ProcessChunk(&openai.StreamChunk{
		Choices: []openai.StreamChoice{{FinishReason: strPtr("tool_calls")}},
	})...)
	events = append(events, tr.Finish()...)

	names := eventNames(events)
	assert.Equal(t, []string{
		anthropic.EventMessageStart,
		anthropic.EventContentBlockStart,
		anthropic.EventContentBlockDelta,
		anthropic.EventContentBlockDelta,
		anthropic.EventContentBlockStop,
		anthropic.EventMessageDelta,
		anthropic.EventMessageStop,
	}, names)

	start := events[1].Data.(anthropic.ContentBlockStartPayload)
	assert.Equal(t, 0, start.Index)
	assert.Equal(t, "call_1", start.ContentBlock.ID)
	assert.Equal(t, "get_weather", start.ContentBlock.Name)

	d1 := events[2].Data.(anthropic.ContentBlockDeltaPayload)
	assert.Equal(t, `{"city":`, d1.Delta.PartialJSON)
	d2 := events[3].Data.(anthropic.ContentBlockDeltaPayload)
	assert.Equal(t, `"SF"}`, d2.Delta.PartialJSON)

	delta := events[5].Data.(anthropic.MessageDeltaPayload)
	assert.Equal(t, anthropic.StopToolUse, delta.Delta.StopReason)

	// Invariant 5: the concatenated partial_json parses as a JSON object.
	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(d1.Delta.PartialJSON+d2.Delta.PartialJSON), &parsed))
	assert.Equal(t, "SF", parsed["city"])
}

// S3 from spec.md §8: text then a tool call.
func TestTranslator_TextThenTool(t *testing.T) {
	tr := New("m")

	var events []Event
	events = append(events, tr.ProcessChunk(&openai.StreamChunk{
		Choices: []openai.StreamChoice{{Delta: openai.StreamDelta{Content: "Let me check."}}},
	})...)
	events = append(events, tr.ProcessChunk(&openai.StreamChunk{
		Choices: []openai.StreamChoice{{Delta: openai.StreamDelta{
			ToolCalls: []openai.StreamToolCall{{Index: 0, ID: "call_1", Function: openai.StreamFunctionCall{Name: "f"}}},
		}}},
	})...)
	events = append(events, tr.Finish()...)

	names := eventNames(events)
	assert.Equal(t, []string{
		anthropic.EventMessageStart,
		anthropic.EventContentBlockStart, // text, index 0
		anthropic.EventContentBlockDelta,
		anthropic.EventContentBlockStop, // text closes before tool opens
		anthropic.EventContentBlockStart, // tool, index 1
		anthropic.EventContentBlockStop,
		anthropic.EventMessageDelta,
		anthropic.EventMessageStop,
	}, names)

	textStart := events[1].Data.(anthropic.ContentBlockStartPayload)
	assert.Equal(t, 0, textStart.Index)
	toolStart := events[4].Data.(anthropic.ContentBlockStartPayload)
	assert.Equal(t, 1, toolStart.Index)
}

// Reasoning-then-content flow-through (spec.md §8 property 6): both are
// unified into the same text block, concatenated in arrival order.
func TestTranslator_ReasoningThenContent_SameBlock(t *testing.T) {
	tr := New("m")

	var events []Event
	events = append(events, tr.ProcessChunk(&openai.StreamChunk{
		Choices: []openai.StreamChoice{{Delta: openai.StreamDelta{ReasoningContent: "because X"}}},
	})...)
	events = append(events, tr.ProcessChunk(&openai.StreamChunk{
		Choices: []openai.StreamChoice{{Delta: openai.StreamDelta{Content: "the answer"}}},
	})...)
	events = append(events, tr.Finish()...)

	var gotText string
	var blockStarts int
	for _, ev := range events {
		if ev.Name == anthropic.EventContentBlockStart {
			blockStarts++
		}
		if ev.Name == anthropic.EventContentBlockDelta {
			gotText += ev.Data.(anthropic.ContentBlockDeltaPayload).Delta.Text
		}
	}
	assert.Equal(t, 1, blockStarts)
	assert.Equal(t, "because Xthe answer", gotText)
}

// Property 1/2 (spec.md §8): well-formedness and index monotonicity over
// an arbitrary chunk sequence mixing text and multiple tool calls.
func TestTranslator_WellFormedAndMonotonicIndices(t *testing.T) {
	tr := New("m")
	chunks := []*openai.StreamChunk{
		{Choices: []openai.StreamChoice{{Delta: openai.StreamDelta{Content: "hi "}}}},
		{Choices: []openai.StreamChoice{{Delta: openai.StreamDelta{
			ToolCalls: []openai.StreamToolCall{{Index: 0, ID: "a", Function: openai.StreamFunctionCall{Name: "f1"}}},
		}}}},
		{Choices: []openai.StreamChoice{{Delta: openai.StreamDelta{
			ToolCalls: []openai.StreamToolCall{{Index: 1, ID: "b", Function: openai.StreamFunctionCall{Name: "f2"}}},
		}}}},
		{Choices: []openai.StreamChoice{{Delta: openai.StreamDelta{
			ToolCalls: []openai.StreamToolCall{{Index: 0, Function: openai.StreamFunctionCall{Arguments: `{}`}}},
		}}}},
		{Choices: []openai.StreamChoice{{FinishReason: strPtr("tool_calls")}}},
	}

	var events []Event
	for _, c := range chunks {
		events = append(events, tr.ProcessChunk(c)...)
	}
	events = append(events, tr.Finish()...)

	assertWellFormed(t, events)
}

func TestTranslator_FirstChunkEmitsMessageStart(t *testing.T) {
	tr := New("claude-x")
	events := tr.ProcessChunk(&openai.StreamChunk{ID: "chatcmpl-1", Choices: []openai.StreamChoice{{Delta: openai.StreamDelta{Role: "assistant"}}}})
	require.NotEmpty(t, events)
	assert.Equal(t, anthropic.EventMessageStart, events[0].Name)
	start := events[0].Data.(anthropic.MessageStartPayload)
	assert.Equal(t, "msg_chatcmpl-1", start.Message.ID)
	assert.Equal(t, "claude-x", start.Message.Model)
}

func TestTranslator_FinishIsIdempotent(t *testing.T) {
	tr := New("m")
	tr.ProcessChunk(&openai.StreamChunk{Choices: []openai.StreamChoice{{Delta: openai.StreamDelta{Content: "hi"}}}})
	first := tr.Finish()
	require.NotEmpty(t, first)
	second := tr.Finish()
	assert.Empty(t, second)
}

func TestTranslator_ChunksAfterFinishAreIgnored(t *testing.T) {
	tr := New("m")
	tr.Finish()
	events := tr.ProcessChunk(&openai.StreamChunk{Choices: []openai.StreamChoice{{Delta: openai.StreamDelta{Content: "hi"}}}})
	assert.Empty(t, events)
}

func TestTranslator_DefaultStopReasonIsEndTurn(t *testing.T) {
	tr := New("m")
	tr.ProcessChunk(&openai.StreamChunk{Choices: []openai.StreamChoice{{Delta: openai.StreamDelta{Content: "hi"}}}})
	events := tr.Finish()
	var delta anthropic.MessageDeltaPayload
	for _, ev := range events {
		if ev.Name == anthropic.EventMessageDelta {
			delta = ev.Data.(anthropic.MessageDeltaPayload)
		}
	}
	assert.Equal(t, anthropic.StopEndTurn, delta.Delta.StopReason)
}

// Open question (spec.md §9): finish_reason=tool_calls with no deltas
// still produces a well-formed stream with stop_reason=tool_use and no
// tool blocks.
func TestTranslator_FinishReasonToolCallsWithNoDeltas(t *testing.T) {
	tr := New("m")
	tr.ProcessChunk(&openai.StreamChunk{Choices: []openai.StreamChoice{{Delta: openai.StreamDelta{Content: "hi"}}}})
	tr.ProcessChunk(&openai.StreamChunk{Choices: []openai.StreamChoice{{FinishReason: strPtr("tool_calls")}}})
	events := tr.Finish()

	var delta anthropic.MessageDeltaPayload
	toolBlocks := 0
	for _, ev := range events {
		if ev.Name == anthropic.EventMessageDelta {
			delta = ev.Data.(anthropic.MessageDeltaPayload)
		}
		if ev.Name == anthropic.EventContentBlockStart {
			if ev.Data.(anthropic.ContentBlockStartPayload).ContentBlock.Type == anthropic.BlockToolUse {
				toolBlocks++
			}
		}
	}
	assert.Equal(t, anthropic.StopToolUse, delta.Delta.StopReason)
	assert.Equal(t, 0, toolBlocks)
}

func TestParseChunk_Done(t *testing.T) {
	_, done, err := ParseChunk("[DONE]")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestParseChunk_Malformed(t *testing.T) {
	_, _, err := ParseChunk("{not json")
	require.Error(t, err)
}

func eventNames(events []Event) []string {
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return names
}

// assertWellFormed checks property 1/2 of spec.md §8: message_start
// first, balanced block_start/block_stop pairs with deltas strictly
// between them, message_delta then message_stop last, and indices
// 0..n-1 without gaps or reuse.
func assertWellFormed(t *testing.T, events []Event) {
	t.Helper()
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, anthropic.EventMessageStart, events[0].Name)
	assert.Equal(t, anthropic.EventMessageStop, events[len(events)-1].Name)
	assert.Equal(t, anthropic.EventMessageDelta, events[len(events)-2].Name)

	open := map[int]bool{}
	seenIndices := map[int]bool{}
	maxIndex := -1
	deltaSeenFor := map[int]bool{}

	for _, ev := range events[1 : len(events)-2] {
		switch ev.Name {
		case anthropic.EventContentBlockStart:
			idx := ev.Data.(anthropic.ContentBlockStartPayload).Index
			require.False(t, open[idx], "index %d started twice", idx)
			require.False(t, seenIndices[idx], "index %d reused", idx)
			open[idx] = true
			seenIndices[idx] = true
			require.Equal(t, maxIndex+1, idx, "indices must be gapless")
			maxIndex = idx
		case anthropic.EventContentBlockDelta:
			idx := ev.Data.(anthropic.ContentBlockDeltaPayload).Index
			require.True(t, open[idx], "delta for unopened index %d", idx)
			deltaSeenFor[idx] = true
		case anthropic.EventContentBlockStop:
			idx := ev.Data.(anthropic.ContentBlockStopPayload).Index
			require.True(t, open[idx], "stop for unopened index %d", idx)
			open[idx] = false
		case anthropic.EventMessageDelta, anthropic.EventMessageStart, anthropic.EventMessageStop:
			t.Fatalf("unexpected %s between first and last event", ev.Name)
		}
	}
	for idx, stillOpen := range open {
		require.False(t, stillOpen, "index %d never closed", idx)
	}

	secondToLast := events[len(events)-2]
	assert.Equal(t, anthropic.EventMessageDelta, secondToLast.Name)
}

// content_block_start for a tool_use block must carry "input":{} on the
// wire even before any arguments have arrived (spec.md §4.4.3 grammar).
func TestTranslator_ToolUseContentBlockStartCarriesEmptyInput(t *testing.T) {
	tr := New("claude-sonnet-4-20250514")
	events := tr.ProcessChunk(&openai.StreamChunk{
		Choices: []openai.StreamChoice{{Delta: openai.StreamDelta{
			ToolCalls: []openai.StreamToolCall{{Index: 0, ID: "call_1", Function: openai.StreamFunctionCall{Name: "get_weather"}}},
		}}},
	})

	var start *Event
	for i := range events {
		if events[i].Name == anthropic.EventContentBlockStart {
			start = &events[i]
		}
	}
	require.NotNil(t, start)

	data, err := json.Marshal(start.Data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"index":0,"content_block":{"type":"tool_use","id":"call_1","name":"get_weather","input":{}}}`, string(data))
}
