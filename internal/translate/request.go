// Package translate implements the pure Anthropic<->OpenAI request and
// non-streaming response translators (spec.md §4.2, §4.3). Grounded on
// the teacher's internal/converter/converter.go and
// internal/handlers/proxy.go conversion flow, generalized from the
// teacher's OpenAI-is-the-hub design to this bridge's Anthropic-in,
// OpenAI-out direction.
package translate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/orchestre-dev/anthropic-bridge/internal/anthropic"
	"github.com/orchestre-dev/anthropic-bridge/internal/openai"
)

// ModelMap resolves an Anthropic model name to the upstream model name
// (spec.md §4.1). A nil or missing-key map is the identity.
type ModelMap map[string]string

// Resolve returns the mapped model name, or name unchanged if absent.
// Never fails; case-sensitive exact match only.
func (m ModelMap) Resolve(name string) string {
	if mapped, ok := m[name]; ok {
		return mapped
	}
	return name
}

// DropSet is the configured set of top-level Anthropic request field
// names to discard before forwarding (spec.md §4.2 rule 7).
type DropSet map[string]bool

// NewDropSet builds a DropSet from a field name list.
func NewDropSet(fields []string) DropSet {
	s := make(DropSet, len(fields))
	for _, f := range fields {
		s[f] = true
	}
	return s
}

func (d DropSet) has(field string) bool {
	return d != nil && d[field]
}

// Request translates an Anthropic MessagesRequest into an OpenAI
// ChatRequest, applying the rules of spec.md §4.2 in order. Pure: no I/O,
// no retries, no logging side effects.
func Request(req *anthropic.MessagesRequest, models ModelMap, drop DropSet) (*openai.ChatRequest, error) {
	out := &openai.ChatRequest{
		Model:     models.Resolve(req.Model),
		MaxTokens: req.MaxTokens,
		Stream:    req.Stream,
	}
	if !drop.has("temperature") {
		out.Temperature = req.Temperature
	}
	if !drop.has("top_p") {
		out.TopP = req.TopP
	}
	// top_k has no OpenAI equivalent and is always dropped (rule 6).
	if !drop.has("stop_sequences") && len(req.StopSequences) > 0 {
		out.Stop = req.StopSequences
	}

	var messages []openai.Message

	if sys, err := systemPrompt(req.System); err != nil {
		return nil, err
	} else if sys != "" && !drop.has("system") {
		messages = append(messages, openai.Message{Role: "system", Content: sys})
	}

	for i, msg := range req.Messages {
		converted, err := translateMessage(msg)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		messages = append(messages, converted...)
	}
	out.Messages = messages

	if len(req.Tools) > 0 && !drop.has("tools") {
		out.Tools = translateTools(req.Tools)
	}

	if req.ToolChoice != nil && !drop.has("tool_choice") {
		choice, err := translateToolChoice(req.ToolChoice)
		if err != nil {
			return nil, err
		}
		out.ToolChoice = choice
	}

	return out, nil
}

// systemPrompt concatenates a string or text-block-sequence system field
// per spec.md §4.2 rule 2. Non-text blocks are ignored (not expected).
func systemPrompt(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var blocks []anthropic.Content
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", &anthropic.UnknownContentError{Path: "system"}
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == anthropic.BlockText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// translateMessage flattens one Anthropic message into zero or more
// OpenAI messages, per spec.md §4.2 rule 3.
func translateMessage(msg anthropic.Message) ([]openai.Message, error) {
	switch content := msg.Content.(type) {
	case string:
		return []openai.Message{{Role: msg.Role, Content: content}}, nil

	case []anthropic.Content:
		return translateBlocks(msg.Role, content)

	default:
		return nil, &anthropic.UnknownContentError{Path: "message.content"}
	}
}

// translateBlocks implements the block-partitioning rules of spec.md
// §4.2 rule 3: tool_result blocks become one `tool` message each;
// tool_use blocks on an assistant message become tool_calls on that
// assistant message; text/image blocks become a single multimodal
// message.
func translateBlocks(role string, blocks []anthropic.Content) ([]openai.Message, error) {
	var out []openai.Message
	var parts []openai.ContentPart
	var toolCalls []openai.ToolCall
	var text strings.Builder

	flushMultimodal := func() {
		if len(parts) == 0 && text.Len() == 0 && len(toolCalls) == 0 {
			return
		}
		msg := openai.Message{Role: role}
		switch {
		case len(parts) > 0:
			msg.Parts = parts
		default:
			msg.Content = text.String()
		}
		if len(toolCalls) > 0 {
			msg.ToolCalls = toolCalls
		}
		out = append(out, msg)
		parts = nil
		toolCalls = nil
		text.Reset()
	}

	for _, b := range blocks {
		switch b.Type {
		case anthropic.BlockToolResult:
			flushMultimodal()
			out = append(out, openai.Message{
				Role:       "tool",
				Content:    toolResultText(b.Content),
				ToolCallID: b.ToolUseID,
			})

		case anthropic.BlockToolUse:
			if b.ID == "" || b.Name == "" {
				return nil, &anthropic.UnknownContentError{Path: "content.tool_use"}
			}
			args, err := json.Marshal(b.Input)
			if err != nil {
				return nil, fmt.Errorf("marshal tool_use input: %w", err)
			}
			toolCalls = append(toolCalls, openai.ToolCall{
				ID:   b.ID,
				Type: "function",
				Function: openai.FunctionCall{
					Name:      b.Name,
					Arguments: string(args),
				},
			})

		case anthropic.BlockText:
			if len(parts) > 0 {
				parts = append(parts, openai.ContentPart{Type: "text", Text: b.Text})
			} else {
				text.WriteString(b.Text)
			}

		case anthropic.BlockImage:
			if b.Source == nil {
				return nil, &anthropic.UnknownContentError{Path: "content.image"}
			}
			if text.Len() > 0 {
				parts = append(parts, openai.ContentPart{Type: "text", Text: text.String()})
				text.Reset()
			}
			url := fmt.Sprintf("data:%s;base64,%s", b.Source.MediaType, b.Source.Data)
			parts = append(parts, openai.ContentPart{Type: "image_url", ImageURL: &openai.ImageURL{URL: url}})

		default:
			return nil, &anthropic.UnknownContentError{Path: "content", Kind: b.Type}
		}
	}
	flushMultimodal()

	return out, nil
}

// toolResultText renders a tool_result's content (string or block
// sequence) as the flat string an OpenAI tool message carries.
func toolResultText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		var b strings.Builder
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if t, _ := m["text"].(string); t != "" {
				b.WriteString(t)
			}
		}
		return b.String()
	default:
		return ""
	}
}

// translateTools converts Anthropic tool definitions to OpenAI function
// tools (spec.md §4.2 rule 4).
func translateTools(tools []anthropic.Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: "function",
			Function: openai.ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}

// translateToolChoice maps the Anthropic tool_choice shape to the
// OpenAI one per spec.md §4.2 rule 5.
func translateToolChoice(raw json.RawMessage) (any, error) {
	var tc anthropic.ToolChoice
	if err := json.Unmarshal(raw, &tc); err != nil {
		return nil, fmt.Errorf("parse tool_choice: %w", err)
	}
	switch tc.Type {
	case "auto":
		return "auto", nil
	case "any":
		return "required", nil
	case "none":
		return "none", nil
	case "tool":
		return openai.ToolChoiceFunction{
			Type:     "function",
			Function: openai.ToolChoiceFunctionByName{Name: tc.Name},
		}, nil
	default:
		return nil, fmt.Errorf("unknown tool_choice type %q", tc.Type)
	}
}
