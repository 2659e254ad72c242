// Package agent runs one conversational turn: the model proposes analytics
// tool calls, the dispatcher executes them against the active dataset and feeds
// the answers back until the model replies in plain text.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/vinodismyname/partnerlens/config"
	"github.com/vinodismyname/partnerlens/internal/analytics"
	"golang.org/x/time/rate"
)

// Fixed answers for turns that never reach the model.
const (
	UnavailableText    = "Chatbot is not available (LLM or agent initialization failed)."
	NoDataText         = "Data has not been loaded for analysis. Please upload and process a file first."
	IterationLimitText = "Agent stopped due to iteration limit."
)

// ModelCallError wraps a failure of the language model capability.
type ModelCallError struct {
	Err error
}

func (e *ModelCallError) Error() string { return "model call failed: " + e.Err.Error() }
func (e *ModelCallError) Unwrap() error { return e.Err }

// ErrEmptyResponse is reported when the model returns no choices.
var ErrEmptyResponse = errors.New("model returned no choices")

// ToolObserver is notified after every tool execution. telemetry.Hooks
// satisfies it.
type ToolObserver interface {
	OnToolCall(sessionID, toolName string, duration time.Duration, err error)
}

// Message is one prior turn as the dashboard sends it.
type Message struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

// Dispatcher drives the tool-calling loop. A zero MaxSteps uses the default
// limit; a nil Limiter disables throttling.
type Dispatcher struct {
	Model       llms.Model
	Catalog     *analytics.Catalog
	MaxSteps    int
	Limiter     *rate.Limiter
	Observer    ToolObserver
	Temperature float64
}

// New constructs a Dispatcher with the default step limit and model throttle.
func New(model llms.Model, catalog *analytics.Catalog) *Dispatcher {
	return &Dispatcher{
		Model:    model,
		Catalog:  catalog,
		MaxSteps: config.DefaultAgentMaxSteps,
		Limiter:  rate.NewLimiter(rate.Limit(config.DefaultModelRequestsPerSec), config.DefaultModelRequestBurst),
	}
}

// Turn answers query against ac. The returned text is always suitable for the
// user; a non-nil error is a *ModelCallError accompanying the apology text.
func (d *Dispatcher) Turn(ctx context.Context, ac *analytics.Context, query string, history []Message) (string, error) {
	if d == nil || d.Model == nil || d.Catalog == nil {
		return UnavailableText, nil
	}
	if !ac.Loaded() {
		return NoDataText, nil
	}

	logger := zerolog.Ctx(ctx).With().Str("component", "agent").Str("dataset_id", ac.ID).Logger()
	msgs := make([]llms.MessageContent, 0, len(history)+2)
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, SystemPrompt(d.Catalog)+DatasetNote(ac)))
	msgs = append(msgs, ConvertHistory(history)...)
	msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, query))

	tools := Definitions(d.Catalog)
	steps := d.MaxSteps
	if steps <= 0 {
		steps = config.DefaultAgentMaxSteps
	}

	for step := 0; step < steps; step++ {
		choice, err := d.generate(ctx, msgs, tools)
		if err != nil {
			logger.Error().Err(err).Int("step", step).Msg("model call failed")
			mErr := &ModelCallError{Err: err}
			return fmt.Sprintf("Error processing your request via chatbot: %v", err), mErr
		}
		if len(choice.ToolCalls) == 0 {
			logger.Info().Int("steps", step+1).Int("history", len(history)).Msg("turn completed")
			return choice.Content, nil
		}

		parts := make([]llms.ContentPart, 0, len(choice.ToolCalls)+1)
		if choice.Content != "" {
			parts = append(parts, llms.TextContent{Text: choice.Content})
		}
		for _, tc := range choice.ToolCalls {
			parts = append(parts, tc)
		}
		msgs = append(msgs, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})

		for _, tc := range choice.ToolCalls {
			name, out := d.execute(ctx, ac, tc)
			logger.Debug().Str("tool", name).Int("chars", len(out)).Msg("tool observation")
			msgs = append(msgs, llms.MessageContent{
				Role:  llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{ToolCallID: tc.ID, Name: name, Content: out}},
			})
		}
	}
	logger.Warn().Int("max_steps", steps).Msg("agent step limit reached")
	return IterationLimitText, nil
}

func (d *Dispatcher) generate(ctx context.Context, msgs []llms.MessageContent, tools []llms.Tool) (*llms.ContentChoice, error) {
	if d.Limiter != nil {
		if err := d.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	start := time.Now()
	resp, err := d.Model.GenerateContent(ctx, msgs,
		llms.WithTools(tools),
		llms.WithTemperature(d.Temperature),
	)
	zerolog.Ctx(ctx).Debug().Dur("duration", time.Since(start)).Msg("model call")
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, ErrEmptyResponse
	}
	return resp.Choices[0], nil
}

// execute runs one proposed call. Malformed calls come back as error
// observations so the model can correct itself.
func (d *Dispatcher) execute(ctx context.Context, ac *analytics.Context, tc llms.ToolCall) (string, string) {
	if tc.FunctionCall == nil || tc.FunctionCall.Name == "" {
		return "", "Error: tool call is missing a function name"
	}
	name := tc.FunctionCall.Name
	start := time.Now()

	var out string
	args, err := RepairArguments(tc.FunctionCall.Arguments)
	if err != nil {
		out = fmt.Sprintf("Error: could not parse arguments for %s: %v", name, err)
	} else {
		out = d.Catalog.Run(ctx, name, args, ac)
	}

	if d.Observer != nil {
		var obsErr error
		if strings.HasPrefix(out, "Error") {
			obsErr = errors.New(out)
		}
		d.Observer.OnToolCall(ac.ID, name, time.Since(start), obsErr)
	}
	return name, out
}

// RepairArguments returns raw as JSON, fixing the quoting and trailing-comma
// mistakes models commonly make. Blank input is an empty object.
func RepairArguments(raw string) (json.RawMessage, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return json.RawMessage("{}"), nil
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s), nil
	}
	repaired, err := jsonrepair.RepairJSON(s)
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(repaired)) {
		return nil, fmt.Errorf("unrecoverable JSON %q", raw)
	}
	return json.RawMessage(repaired), nil
}

// Definitions describes the catalog in the model's function-calling format.
func Definitions(c *analytics.Catalog) []llms.Tool {
	tools := c.Tools()
	out := make([]llms.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Schema(),
			},
		})
	}
	return out
}

// ConvertHistory maps dashboard turns to model messages: "user" becomes a
// human message, "bot" an assistant message. Other senders are skipped.
func ConvertHistory(history []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(history))
	for _, m := range history {
		switch m.Sender {
		case "user":
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Text))
		case "bot":
			out = append(out, llms.TextParts(llms.ChatMessageTypeAI, m.Text))
		}
	}
	return out
}
