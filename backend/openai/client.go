// Package openai adapts the OpenAI Chat Completions streaming API to
// chat.Backend.
package openai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/skosovsky/toolflow/chat"
)

// Options configure a Backend. RequestOptions are appended after the ones
// derived from the other fields.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	Logger         *slog.Logger
	RequestOptions []option.RequestOption
}

// Backend streams chat completions.
type Backend struct {
	api    *openai.Client
	model  string
	logger *slog.Logger
}

var _ chat.Backend = (*Backend)(nil)

// New creates a Backend. APIKey is required.
func New(opts Options) (*Backend, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai: missing api key")
	}
	cfg := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg = append(cfg, option.WithBaseURL(strings.TrimRight(normalizeBaseURL(base), "/")))
	}
	cfg = append(cfg, opts.RequestOptions...)
	client := openai.NewClient(cfg...)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{api: &client, model: strings.TrimSpace(opts.Model), logger: logger}, nil
}

func (b *Backend) resolveModel(model string) string {
	if strings.TrimSpace(model) != "" {
		return model
	}
	return b.model
}

// Stream sends req and yields one delta per non-empty chunk choice. The SSE
// stream is closed when the sequence ends, including when the consumer stops
// early.
func (b *Backend) Stream(ctx context.Context, req chat.Request) iter.Seq2[chat.Delta, error] {
	return func(yield func(chat.Delta, error) bool) {
		params := buildParams(req, b.resolveModel(req.Model))
		b.logger.Debug("openai stream start", "model", params.Model, "messages", len(req.Messages), "tools", len(req.Tools))

		stream := b.api.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			for _, choice := range chunk.Choices {
				d := toDelta(choice.Delta)
				if d.Text == "" && len(d.ToolCalls) == 0 {
					continue
				}
				if !yield(d, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield(chat.Delta{}, wrapHTTPError(err))
		}
	}
}

func toDelta(delta openai.ChatCompletionChunkChoiceDelta) chat.Delta {
	d := chat.Delta{Text: delta.Content}
	for _, call := range delta.ToolCalls {
		d.ToolCalls = append(d.ToolCalls, chat.ToolCallDelta{
			Index:     int(call.Index),
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return d
}

func buildParams(req chat.Request, model string) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: toChatMessages(req.Messages),
	}
	if len(req.Tools) > 0 {
		params.Tools = toChatTools(req.Tools)
		params.ParallelToolCalls = openai.Bool(req.ParallelToolCalls)
		params.ToolChoice = toToolChoice(req.ToolChoice)
	}
	return params
}

func toChatMessages(msgs []chat.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case chat.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case chat.RoleAssistant:
			out = append(out, toAssistantMessage(msg))
		case chat.RoleTool:
			out = append(out, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func toAssistantMessage(msg chat.Message) openai.ChatCompletionMessageParamUnion {
	if len(msg.ToolCalls) == 0 {
		return openai.AssistantMessage(msg.Content)
	}
	var p openai.ChatCompletionAssistantMessageParam
	if msg.Content != "" {
		p.Content.OfString = openai.String(msg.Content)
	}
	for _, call := range msg.ToolCalls {
		p.ToolCalls = append(p.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: call.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      call.Name,
					Arguments: call.Arguments,
				},
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &p}
}

func toChatTools(decls []chat.ToolDeclaration) []openai.ChatCompletionToolUnionParam {
	tools := make([]openai.ChatCompletionToolUnionParam, 0, len(decls))
	for _, decl := range decls {
		name := strings.TrimSpace(decl.Name)
		if name == "" {
			continue
		}
		fn := shared.FunctionDefinitionParam{
			Name:       name,
			Parameters: shared.FunctionParameters(decl.Parameters),
		}
		if decl.Strict {
			fn.Strict = openai.Bool(true)
		}
		if desc := strings.TrimSpace(decl.Description); desc != "" {
			fn.Description = openai.String(desc)
		}
		tools = append(tools, openai.ChatCompletionToolUnionParam{
			OfFunction: &openai.ChatCompletionFunctionToolParam{
				Function: fn,
			},
		})
	}
	return tools
}

func toToolChoice(choice chat.ToolChoice) openai.ChatCompletionToolChoiceOptionUnionParam {
	switch choice.Mode {
	case chat.ToolChoiceNone:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String(string(openai.ChatCompletionToolChoiceOptionAutoNone))}
	case chat.ToolChoiceRequired:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String(string(openai.ChatCompletionToolChoiceOptionAutoRequired))}
	case chat.ToolChoiceTool:
		return openai.ToolChoiceOptionFunctionToolChoice(openai.ChatCompletionNamedToolChoiceFunctionParam{Name: choice.Name})
	case chat.ToolChoiceAuto:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String(string(openai.ChatCompletionToolChoiceOptionAutoAuto))}
	default:
		return openai.ChatCompletionToolChoiceOptionUnionParam{}
	}
}

func wrapHTTPError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		raw := strings.TrimSpace(apiErr.RawJSON())
		if raw != "" {
			return fmt.Errorf("openai: http_%d: %s: %w", apiErr.StatusCode, raw, err)
		}
		return fmt.Errorf("openai: http_%d: %w", apiErr.StatusCode, err)
	}
	return fmt.Errorf("openai: %w", err)
}
