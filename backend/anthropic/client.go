// Package anthropic adapts the Anthropic Messages streaming API to
// chat.Backend.
//
// A tool_use content block start becomes an id-bearing tool-call delta at the
// block index, and each input_json_delta becomes an id-less argument fragment
// at the same index, so stream.Aggregator reassembles calls unchanged.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/skosovsky/toolflow/chat"
)

// DefaultMaxTokens is sent when Options.MaxTokens is zero.
const DefaultMaxTokens = 1024

// Options configure a Backend.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxTokens      int64
	Logger         *slog.Logger
	RequestOptions []option.RequestOption
}

// Backend streams Anthropic messages.
type Backend struct {
	api       *anthropic.Client
	model     string
	maxTokens int64
	logger    *slog.Logger
}

var _ chat.Backend = (*Backend)(nil)

// New creates a Backend. APIKey is required.
func New(opts Options) (*Backend, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, errors.New("anthropic: missing api key")
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(key),
	}
	if base := normalizeBaseURL(opts.BaseURL); base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}
	reqOpts = append(reqOpts, opts.RequestOptions...)
	client := anthropic.NewClient(reqOpts...)

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		api:       &client,
		model:     strings.TrimSpace(opts.Model),
		maxTokens: maxTokens,
		logger:    logger,
	}, nil
}

func normalizeBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/v1") {
		base = strings.TrimSuffix(base, "/v1")
		base = strings.TrimRight(base, "/")
	}
	return base
}

func (b *Backend) resolveModel(m string) anthropic.Model {
	if strings.TrimSpace(m) != "" {
		return anthropic.Model(strings.TrimSpace(m))
	}
	return anthropic.Model(b.model)
}

// Stream sends req and yields text and tool-call deltas as content blocks
// arrive. The SSE stream is closed when the sequence ends.
func (b *Backend) Stream(ctx context.Context, req chat.Request) iter.Seq2[chat.Delta, error] {
	return func(yield func(chat.Delta, error) bool) {
		params := b.buildParams(req)
		b.logger.Debug("anthropic stream start", "model", params.Model, "messages", len(params.Messages), "tools", len(params.Tools))

		stream := b.api.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			d, ok := toDelta(stream.Current())
			if !ok {
				continue
			}
			if !yield(d, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			yield(chat.Delta{}, wrapHTTPError(err))
		}
	}
}

func toDelta(event anthropic.MessageStreamEventUnion) (chat.Delta, bool) {
	switch v := event.AsAny().(type) {
	case anthropic.ContentBlockStartEvent:
		if b, ok := v.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
			return chat.Delta{ToolCalls: []chat.ToolCallDelta{{Index: int(v.Index), ID: b.ID, Name: b.Name}}}, true
		}
	case anthropic.ContentBlockDeltaEvent:
		switch d := v.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			if d.Text != "" {
				return chat.Delta{Text: d.Text}, true
			}
		case anthropic.InputJSONDelta:
			if d.PartialJSON != "" {
				return chat.Delta{ToolCalls: []chat.ToolCallDelta{{Index: int(v.Index), Arguments: d.PartialJSON}}}, true
			}
		}
	}
	return chat.Delta{}, false
}

func (b *Backend) buildParams(req chat.Request) anthropic.MessageNewParams {
	system, messages := toMessages(req.Messages)
	params := anthropic.MessageNewParams{
		Model:     b.resolveModel(req.Model),
		MaxTokens: b.maxTokens,
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = toTools(req.Tools)
		params.ToolChoice = toToolChoice(req.ToolChoice, req.ParallelToolCalls)
	}
	return params
}

// toMessages splits system directives out and groups consecutive tool
// results into a single user message.
func toMessages(msgs []chat.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	var out []anthropic.MessageParam
	var results []anthropic.ContentBlockParamUnion
	flush := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}
	for _, msg := range msgs {
		if msg.Role == chat.RoleTool {
			results = append(results, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
			continue
		}
		flush()
		text := strings.TrimSpace(msg.Content)
		switch msg.Role {
		case chat.RoleSystem:
			if text != "" {
				system = append(system, anthropic.TextBlockParam{Text: text})
			}
		case chat.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if text != "" {
				blocks = append(blocks, anthropic.NewTextBlock(text))
			}
			for _, call := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, toolInput(call.Arguments), call.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			if text != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			}
		}
	}
	flush()
	return system, out
}

func toolInput(args string) json.RawMessage {
	args = strings.TrimSpace(args)
	if args == "" || !json.Valid([]byte(args)) {
		return json.RawMessage("{}")
	}
	return json.RawMessage(args)
}

func toTools(decls []chat.ToolDeclaration) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, 0, len(decls))
	for _, decl := range decls {
		name := strings.TrimSpace(decl.Name)
		if name == "" {
			continue
		}
		tool := anthropic.ToolParam{
			Name:        name,
			InputSchema: toInputSchema(decl.Parameters),
		}
		if desc := strings.TrimSpace(decl.Description); desc != "" {
			tool.Description = anthropic.String(desc)
		}
		tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return tools
}

func toInputSchema(params map[string]any) anthropic.ToolInputSchemaParam {
	var s anthropic.ToolInputSchemaParam
	for key, value := range params {
		switch key {
		case "type":
		case "properties":
			s.Properties = value
		case "required":
			s.Required = toStrings(value)
		default:
			if s.ExtraFields == nil {
				s.ExtraFields = make(map[string]any)
			}
			s.ExtraFields[key] = value
		}
	}
	return s
}

func toStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toToolChoice(choice chat.ToolChoice, parallel bool) anthropic.ToolChoiceUnionParam {
	disableParallel := anthropic.Bool(!parallel)
	switch choice.Mode {
	case chat.ToolChoiceNone:
		none := anthropic.NewToolChoiceNoneParam()
		return anthropic.ToolChoiceUnionParam{OfNone: &none}
	case chat.ToolChoiceRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{DisableParallelToolUse: disableParallel}}
	case chat.ToolChoiceTool:
		tc := anthropic.ToolChoiceParamOfTool(choice.Name)
		tc.OfTool.DisableParallelToolUse = disableParallel
		return tc
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{DisableParallelToolUse: disableParallel}}
	}
}

func wrapHTTPError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return fmt.Errorf("anthropic: http_%d: %w", apiErr.StatusCode, err)
	}
	return fmt.Errorf("anthropic: %w", err)
}
