// Package anthropic provides a completion instrument backed by the Anthropic
// Claude Messages API. It is a single-shot instrument: one query in, one
// result out, with the model's answer carried as both the summary and a
// finding attributed to the model.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/maestrohq/maestro/core"
	"github.com/maestrohq/maestro/instrument"
)

// Options configures the Claude completion instrument (model id, sampling,
// API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string

	// Instructions is an optional system prompt prepended to every call.
	Instructions string

	// RequiredCapabilities drives capability-based node resolution.
	RequiredCapabilities []string

	// Confidence is stamped on the produced finding and result. Completion
	// calls carry no intrinsic confidence signal, so this is a fixed prior.
	Confidence float64
}

// Instrument wraps the Anthropic Messages API behind core.Instrument.
type Instrument struct {
	instrument.BaseInstrument
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:                anthropic.ModelClaude3_5Sonnet20241022,
		Temperature:          0.7,
		MaxTokens:            4096,
		RequiredCapabilities: []string{"reasoning"},
		Confidence:           0.7,
	}
}

// NewInstrument creates a Claude-backed instrument using the official client.
// The API key falls back to the SDK's environment lookup when unset.
func NewInstrument(name string, optFns ...func(o *Options)) *Instrument {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return newInstrument(name, &client, opts)
}

// NewInstrumentFromClient creates a Claude-backed instrument from an existing
// client.
func NewInstrumentFromClient(name string, client *anthropic.Client, optFns ...func(o *Options)) *Instrument {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return newInstrument(name, client, opts)
}

func newInstrument(name string, client *anthropic.Client, opts Options) *Instrument {
	return &Instrument{
		BaseInstrument: instrument.NewBaseInstrument(name, opts.RequiredCapabilities, nil),
		client:         client,
		opts:           opts,
	}
}

// Execute implements core.Instrument. The task context's conversation summary
// and prior-stage input results are folded into the prompt.
func (i *Instrument) Execute(ctx context.Context, query string, taskCtx *core.TaskContext) (*core.InstrumentResult, error) {
	prompt := buildPrompt(query, taskCtx)

	params := anthropic.MessageNewParams{
		Model:       i.opts.Model,
		MaxTokens:   i.opts.MaxTokens,
		Temperature: anthropic.Float(i.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if i.opts.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: i.opts.Instructions}}
	}

	resp, err := i.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	answer := sb.String()
	source := "anthropic:" + string(i.opts.Model)

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
