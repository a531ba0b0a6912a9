package onboarding

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openclaw/coachd/internal/llm"
)

// PlanGenerator produces draft plans for the planning phases. Generate
// creates a fresh draft from the user's accumulated data; Modify
// revises an existing draft against the user's change requests.
type PlanGenerator interface {
	Generate(ctx context.Context, kind string, userContext map[string]json.RawMessage) (json.RawMessage, error)
	Modify(ctx context.Context, kind string, current json.RawMessage, instructions string) (json.RawMessage, error)
}

// LLMPlanner generates plans with a dedicated model call. The planner
// can run on a different (typically larger) model than the
// conversational agent.
type LLMPlanner struct {
	provider llm.Provider
	timeout  time.Duration
}

// NewLLMPlanner creates a planner over the given provider. A zero
// timeout means the caller's context governs.
func NewLLMPlanner(provider llm.Provider, timeout time.Duration) *LLMPlanner {
	return &LLMPlanner{provider: provider, timeout: timeout}
}

const plannerSystemPrompt = `You are a fitness planning engine. You respond with a single JSON object and nothing else. No prose, no markdown outside the JSON.`

var planShapes = map[string]string{
	"workout": `{"summary": string, "days": [{"day": string, "focus": string, "exercises": [{"name": string, "sets": int, "reps": string}]}]}`,
	"diet":    `{"summary": string, "daily_calories": int, "meals": [{"name": string, "description": string, "approx_calories": int}]}`,
}

// Generate produces a fresh draft plan of the given kind.
func (p *LLMPlanner) Generate(ctx context.Context, kind string, userContext map[string]json.RawMessage) (json.RawMessage, error) {
	shape, ok := planShapes[kind]
	if !ok {
		return nil, fmt.Errorf("unknown plan kind %q", kind)
	}

	ctxJSON, err := json.Marshal(userContext)
	if err != nil {
		return nil, fmt.Errorf("marshal planning context: %w", err)
	}

	prompt := fmt.Sprintf(`Create a %s plan for this user.

User data (from onboarding so far):
%s

Respond with a JSON object of this shape:
%s`, kind, string(ctxJSON), shape)

	return p.complete(ctx, prompt)
}

// Modify revises a draft according to the user's requested changes.
func (p *LLMPlanner) Modify(ctx context.Context, kind string, current json.RawMessage, instructions string) (json.RawMessage, error) {
	shape, ok := planShapes[kind]
	if !ok {
		return nil, fmt.Errorf("unknown plan kind %q", kind)
	}

	prompt := fmt.Sprintf(`Revise this %s plan according to the user's requested changes. Keep everything the user did not ask to change.

Current plan:
%s

Requested changes:
%s

Respond with the complete revised plan as a JSON object of this shape:
%s`, kind, string(current), instructions, shape)

	return p.complete(ctx, prompt)
}

func (p *LLMPlanner) complete(ctx context.Context, prompt string) (json.RawMessage, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.provider.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: plannerSystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("plan generation: %w", err)
	}

	raw := extractJSON(resp.Content)
	if raw == "" {
		return nil, fmt.Errorf("plan generation returned no JSON object")
	}
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("plan generation returned invalid JSON")
	}
	return json.RawMessage(raw), nil
}
