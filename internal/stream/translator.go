// Package stream implements the stateful OpenAI-delta-chunk to
// Anthropic-SSE-event converter (spec.md §3.3, §4.4). Grounded on the
// teacher's internal/transformer/anthropic.go transformStreamEvent
// state machine and internal/transformer/streaming.go's SSE plumbing,
// generalized to run in the opposite direction (OpenAI in, Anthropic
// out) and to the full text/tool-call/usage bookkeeping spec.md
// requires.
package stream

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/orchestre-dev/anthropic-bridge/internal/anthropic"
	"github.com/orchestre-dev/anthropic-bridge/internal/openai"
)

// Event is one logical Anthropic SSE event: a name and its JSON-encodable
// data payload. The HTTP layer is responsible for wire formatting
// (spec.md §4.4.6); Translator only ever returns these.
type Event struct {
	Name string
	Data any
}

// toolBlockState tracks one upstream tool_call index as it accumulates
// id/name/arguments across chunks (spec.md §4.4.4 step 2).
type toolBlockState struct {
	anthropicIndex int
	id             string
	name           string
	argsBuffer     string
	started        bool // content_block_start has been emitted
}

// Translator is a per-request, single-owner state machine converting a
// sequence of OpenAI stream chunks into Anthropic SSE events. Not safe
// for concurrent use; each HTTP request owns exactly one (spec.md §5).
type Translator struct {
	originalModel string

	started   bool
	messageID string

	currentTextIndex *int
	nextBlockIndex   int

	toolOrder  []int // upstream tool_call index, in first-seen order
	toolBlocks map[int]*toolBlockState

	stopReason   string
	outputTokens int
	inputTokens  int

	finished bool
}

// New creates a Translator for one request. originalModel is the
// pre-remap Anthropic model name to echo in message_start.
func New(originalModel string) *Translator {
	return &Translator{
		originalModel: originalModel,
		toolBlocks:    make(map[int]*toolBlockState),
	}
}

// ProcessChunk feeds one parsed upstream chunk and returns the Anthropic
// events it produces, in emission order (spec.md §4.4.5). Chunks
// received after Finish has run are ignored.
func (t *Translator) ProcessChunk(chunk *openai.StreamChunk) []Event {
	if t.finished {
		return nil
	}

	var events []Event
	if !t.started {
		t.started = true
		t.messageID = chunk.ID
		if t.messageID == "" {
			t.messageID = uuid.NewString()
		}
		if len(t.messageID) < 4 || t.messageID[:4] != "msg_" {
			t.messageID = "msg_" + t.messageID
		}
		events = append(events, Event{
			Name: anthropic.EventMessageStart,
			Data: anthropic.MessageStartPayload{
				Message: anthropic.MessageStartMessage{
					ID:      t.messageID,
					Type:    "message",
					Role:    "assistant",
					Model:   t.originalModel,
					Content: []anthropic.Content{},
					Usage:   anthropic.Usage{},
				},
			},
		})
	}

	if chunk.Usage != nil {
		t.inputTokens = chunk.Usage.PromptTokens
		t.outputTokens = chunk.Usage.CompletionTokens
	}

	if len(chunk.Choices) == 0 {
		return events
	}
	choice := chunk.Choices[0]

	// Step 1: text content (plain or reasoning — unified, spec.md §4.4.4
	// step 1 / §9 design note).
	text := choice.Delta.Content
	if choice.Delta.ReasoningContent != "" {
		text = choice.Delta.ReasoningContent + text
	}
	if text != "" {
		if t.currentTextIndex == nil {
			idx := t.nextBlockIndex
			t.nextBlockIndex++
			t.currentTextIndex = &idx
			events = append(events, Event{
				Name: anthropic.EventContentBlockStart,
				Data: anthropic.ContentBlockStartPayload{
					Index:        idx,
					ContentBlock: anthropic.StartedBlock{Type: anthropic.BlockText},
				},
			})
		}
		events = append(events, Event{
			Name: anthropic.EventContentBlockDelta,
			Data: anthropic.ContentBlockDeltaPayload{
				Index: *t.currentTextIndex,
				Delta: anthropic.Delta{Type: "text_delta", Text: text},
			},
		})
	}

	// Step 2: tool calls.
	for _, tc := range choice.Delta.ToolCalls {
		events = append(events, t.processToolCallDelta(tc)...)
	}

	// Step 3: finish_reason.
	if choice.FinishReason != nil && *choice.FinishReason != "" {
		t.stopReason = mapFinishReason(*choice.FinishReason)
	}

	return events
}

// processToolCallDelta handles one upstream tool_calls[] entry, opening
// a new tool block on first sight of its index and buffering id/name
// until both are known before emitting content_block_start (spec.md
// §4.4.4 step 2 / §9 design note on tool-call interleaving).
func (t *Translator) processToolCallDelta(tc openai.StreamToolCall) []Event {
	var events []Event

	block, known := t.toolBlocks[tc.Index]
	if !known {
		if t.currentTextIndex != nil {
			events = append(events, Event{
				Name: anthropic.EventContentBlockStop,
				Data: anthropic.ContentBlockStopPayload{Index: *t.currentTextIndex},
			})
			t.currentTextIndex = nil
		}
		block = &toolBlockState{anthropicIndex: t.nextBlockIndex}
		t.nextBlockIndex++
		t.toolBlocks[tc.Index] = block
		t.toolOrder = append(t.toolOrder, tc.Index)
	}

	if tc.ID != "" {
		block.id = tc.ID
	}
	if tc.Function.Name != "" {
		block.name = tc.Function.Name
	}

	if !block.started {
		if tc.Function.Arguments != "" {
			block.argsBuffer += tc.Function.Arguments
		}
		if block.id == "" || block.name == "" {
			return events
		}
		block.started = true
		events = append(events, Event{
			Name: anthropic.EventContentBlockStart,
			Data: anthropic.ContentBlockStartPayload{
				Index: block.anthropicIndex,
				ContentBlock: anthropic.StartedBlock{
					Type:  anthropic.BlockToolUse,
					ID:    block.id,
					Name:  block.name,
					Input: map[string]any{},
				},
			},
		})
		if block.argsBuffer != "" {
			events = append(events, Event{
				Name: anthropic.EventContentBlockDelta,
				Data: anthropic.ContentBlockDeltaPayload{
					Index: block.anthropicIndex,
					Delta: anthropic.Delta{Type: "input_json_delta", PartialJSON: block.argsBuffer},
				},
			})
		}
		return events
	}

	if tc.Function.Arguments != "" {
		block.argsBuffer += tc.Function.Arguments
		events = append(events, Event{
			Name: anthropic.EventContentBlockDelta,
			Data: anthropic.ContentBlockDeltaPayload{
				Index: block.anthropicIndex,
				Delta: anthropic.Delta{Type: "input_json_delta", PartialJSON: tc.Function.Arguments},
			},
		})
	}

	return events
}

// Finish closes the stream: any open text block, every tool block in
// insertion order, then message_delta and message_stop (spec.md §4.4.4
// "On [DONE]"). Safe to call once; further ProcessChunk/Finish calls are
// no-ops.
func (t *Translator) Finish() []Event {
	if t.finished {
		return nil
	}
	t.finished = true

	var events []Event

	if t.currentTextIndex != nil {
		events = append(events, Event{
			Name: anthropic.EventContentBlockStop,
			Data: anthropic.ContentBlockStopPayload{Index: *t.currentTextIndex},
		})
		t.currentTextIndex = nil
	}

	for _, upstreamIdx := range t.toolOrder {
		block := t.toolBlocks[upstreamIdx]
		if !block.started {
			// id/name never completed; still emit a well-formed block so
			// the stream stays structurally valid (open question, spec.md §9).
			events = append(events, Event{
				Name: anthropic.EventContentBlockStart,
				Data: anthropic.ContentBlockStartPayload{
					Index: block.anthropicIndex,
					ContentBlock: anthropic.StartedBlock{
						Type: anthropic.BlockToolUse,
						ID:   block.id,
						Name: block.name,
						Input: map[string]any{},
					},
				},
			})
		}
		events = append(events, Event{
			Name: anthropic.EventContentBlockStop,
			Data: anthropic.ContentBlockStopPayload{Index: block.anthropicIndex},
		})
	}

	stopReason := t.stopReason
	if stopReason == "" {
		stopReason = anthropic.StopEndTurn
	}
	events = append(events, Event{
		Name: anthropic.EventMessageDelta,
		Data: anthropic.MessageDeltaPayload{
			Delta: anthropic.MessageDeltaInfo{StopReason: stopReason},
			Usage: anthropic.MessageDeltaUsage{OutputTokens: t.outputTokens},
		},
	})
	events = append(events, Event{Name: anthropic.EventMessageStop, Data: struct{}{}})

	return events
}

// mapFinishReason is the stream-side twin of translate.mapFinishReason;
// duplicated (rather than imported) to keep the stream package's only
// dependency on translate-adjacent logic self-contained and because the
// OpenAI type it switches on lives in this module already.
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

// ParseChunk parses one upstream SSE data line into a StreamChunk. A
// data value of exactly "[DONE]" (the SSE reader has already removed the
// "data:" prefix, one following space and the line ending) is reported
// via the bool return rather than attempted as JSON.
func ParseChunk(data string) (*openai.StreamChunk, bool, error) {
	if data == "[DONE]" {
		return nil, true, nil
	}
	var chunk openai.StreamChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return nil, false, fmt.Errorf("parse stream chunk: %w", err)
	}
	return &chunk, false, nil
}
