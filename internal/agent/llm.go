package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"

	"github.com/signalnine/srebench/internal/model"
	"github.com/signalnine/srebench/internal/scenario"
)

// LLM is the reference adapter: one chat completion over a langchaingo
// model, answering in JSON.
type LLM struct {
	name      string
	modelName string
	llm       llms.Model
	opts      []llms.CallOption
	now       func() time.Time
}

// NewLLM wraps m. opts are passed to every GenerateContent call.
func NewLLM(name, modelName string, m llms.Model, opts ...llms.CallOption) *LLM {
	return &LLM{name: name, modelName: modelName, llm: m, opts: opts, now: time.Now}
}

func (l *LLM) Name() string { return l.name }

func (l *LLM) Present(sc *scenario.Scenario) (Payload, error) { return present(sc) }

func (l *LLM) Invoke(ctx context.Context, p Payload) (Response, error) {
	msgs := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, p.Prompt),
	}
	started := l.now()
	resp, err := l.llm.GenerateContent(ctx, msgs, l.opts...)
	if err != nil {
		return Response{}, fmt.Errorf("generating content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return Response{}, errors.New("model returned no choices")
	}
	choice := resp.Choices[0]
	in, out := tokenUsage(choice.GenerationInfo)
	return Response{
		Raw: choice.Content,
		Trace: []model.TraceStep{{
			Timestamp:    started,
			Action:       "llm_call",
			Detail:       l.modelName,
			InputTokens:  in,
			OutputTokens: out,
		}},
	}, nil
}

// Parse decodes the model's answer. Steps reported by the model are kept
// and the adapter's own call record is appended.
func (l *LLM) Parse(r Response) (*model.AgentOutput, error) {
	out, err := DecodeOutput(r.Raw)
	if err != nil {
		return nil, err
	}
	out.ExecutionTrace = append(out.ExecutionTrace, r.Trace...)
	return out, nil
}

// Providers disagree on how they name token counts in GenerationInfo.
var (
	inputTokenKeys  = []string{"PromptTokens", "input_tokens", "prompt_tokens", "InputTokens"}
	outputTokenKeys = []string{"CompletionTokens", "output_tokens", "completion_tokens", "OutputTokens"}
)

func tokenUsage(info map[string]any) (int, int) {
	return firstInt(info, inputTokenKeys), firstInt(info, outputTokenKeys)
}

func firstInt(info map[string]any, keys []string) int {
	for _, k := range keys {
		switch v := info[k].(type) {
		case int:
			return v
		case int32:
			return int(v)
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
