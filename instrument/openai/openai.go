// Package openai provides a completion instrument backed by the OpenAI Chat
// Completions API. Like its Anthropic sibling it is single-shot: one query
// in, one result out.
package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/maestrohq/maestro/core"
	"github.com/maestrohq/maestro/instrument"
	"github.com/openai/openai-go"
)

// Options configure the OpenAI completion instrument. Fields mirror a subset
// of Chat Completion parameters intentionally kept minimal; extend via
// functional options without breaking callers.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64

	// Instructions is an optional system prompt prepended to every call.
	Instructions string

	// RequiredCapabilities drives capability-based node resolution.
	RequiredCapabilities []string

	// Confidence is stamped on the produced finding and result.
	Confidence float64
}

// Instrument wraps the OpenAI Chat Completions API behind core.Instrument.
type Instrument struct {
	instrument.BaseInstrument
	client *openai.Client
	opts   Options
}

// NewInstrument creates an OpenAI-backed instrument using the official
// client, configured from the environment.
func NewInstrument(name string, optFns ...func(o *Options)) *Instrument {
	client := openai.NewClient()
	return NewInstrumentFromClient(name, &client, optFns...)
}

// NewInstrumentFromClient creates an OpenAI-backed instrument from an
// existing client.
func NewInstrumentFromClient(name string, client *openai.Client, optFns ...func(o *Options)) *Instrument {
	opts := Options{
		Model:                openai.ChatModelGPT4oMini,
		Temperature:          0.7,
		MaxCompletionTokens:  4096,
		RequiredCapabilities: []string{"reasoning"},
		Confidence:           0.7,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Instrument{
		BaseInstrument: instrument.NewBaseInstrument(name, opts.RequiredCapabilities, nil),
		client:         client,
		opts:           opts,
	}
}

// Execute implements core.Instrument.
func (i *Instrument) Execute(ctx context.Context, query string, taskCtx *core.TaskContext) (*core.InstrumentResult, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if i.opts.Instructions != "" {
		messages = append(messages, openai.SystemMessage(i.opts.Instructions))
	}
	messages = append(messages, openai.UserMessage(buildPrompt(query, taskCtx)))

	resp, err := i.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               i.opts.Model,
		Messages:            messages,
		Temperature:         openai.Float(i.opts.Temperature),
		MaxCompletionTokens: openai.Int(i.opts.MaxCompletionTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai api returned no choices")
	}

	answer := resp.Choices[0].Message.Content
	source := "openai:" + i.opts.Model

	return &core.InstrumentResult{
		Outcome:          core.OutcomeComplete,
		Findings:         []core.Finding{core.NewFinding(answer, source, i.opts.Confidence)},
		Summary:          answer,
		Confidence:       i.opts.Confidence,
		Iterations:       1,
		SourcesConsulted: []string{source},
	}, nil
}

func buildPrompt(query string, taskCtx *core.TaskContext) string {
	var sb strings.Builder
	if taskCtx != nil {
		if taskCtx.ConversationSummary != "" {
			sb.WriteString("Conversation so far:\n")
			sb.WriteString(taskCtx.ConversationSummary)
			sb.WriteString("\n\n")
		}
		if len(taskCtx.InputResults) > 0 {
			sb.WriteString("Prior stage results:\n")
			for _, r := range taskCtx.InputResults {
				sb.WriteString(r)
				sb.WriteString("\n")
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString(query)
	return sb.String()
}
