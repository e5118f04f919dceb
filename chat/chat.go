// Package chat holds the conversation data model shared by the engine, the
// stream aggregator and the backend adapters.
package chat

import (
	"context"
	"iter"
)

// Role identifies the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of a conversation. ToolCalls is set only on assistant
// messages and ToolCallID only on tool messages.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// System returns a system directive.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// ToolResult returns the tool-role message answering the call with id.
func ToolResult(id, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: id}
}

// ToolCall is a tool invocation reassembled from stream deltas. Index is the
// stream slot the call was announced at; Arguments is raw JSON text.
type ToolCall struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// ToolCallDelta is one fragment of a tool call. A non-empty ID starts a new
// call at Index; an empty ID continues the call already at Index.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Delta is one streamed fragment of a model response.
type Delta struct {
	Text      string
	ToolCalls []ToolCallDelta
}

// ToolDeclaration advertises a tool to the model. Parameters is a JSON Schema
// document.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  map[string]any
	Strict      bool
}

// ToolChoiceMode selects how the model may use the declared tools.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceTool     ToolChoiceMode = "tool"
)

// ToolChoice is the tool-selection policy sent with a request. Name is used
// only with ToolChoiceTool. The zero value means auto.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// Request is everything a backend needs for one model turn.
type Request struct {
	Model             string
	Messages          []Message
	Tools             []ToolDeclaration
	ToolChoice        ToolChoice
	ParallelToolCalls bool
}

// Backend streams a model response. The sequence ends when the response is
// complete or after yielding a non-nil error. Implementations must release
// the underlying stream when the consumer stops iterating early.
type Backend interface {
	Stream(ctx context.Context, req Request) iter.Seq2[Delta, error]
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, req Request) iter.Seq2[Delta, error]

// Stream calls f.
func (f BackendFunc) Stream(ctx context.Context, req Request) iter.Seq2[Delta, error] {
	return f(ctx, req)
}

// CloneMessages returns a deep copy of msgs.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		if m.ToolCalls != nil {
			out[i].ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
		}
	}
	return out
}
