package onboarding

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/openclaw/coachd/internal/llm"
)

func TestLLMPlanner_Generate(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.SetResponse("Here you go:\n```json\n{\"summary\": \"3 day split\", \"days\": []}\n```")
	p := NewLLMPlanner(mock, 0)

	draft, err := p.Generate(context.Background(), "workout", map[string]json.RawMessage{
		"assessment": json.RawMessage(`{"fitness_level":"beginner"}`),
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	var plan map[string]interface{}
	if err := json.Unmarshal(draft, &plan); err != nil {
		t.Fatalf("draft is not valid JSON: %v", err)
	}
	if plan["summary"] != "3 day split" {
		t.Errorf("unexpected draft: %v", plan)
	}

	prompt := mock.LastRequest().Messages[1].Content
	if !strings.Contains(prompt, "fitness_level") {
		t.Error("user context missing from planning prompt")
	}
}

func TestLLMPlanner_Modify(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.SetResponse(`{"summary": "4 day split"}`)
	p := NewLLMPlanner(mock, 0)

	revised, err := p.Modify(context.Background(), "workout",
		json.RawMessage(`{"summary":"3 day split"}`), "add a fourth day")
	if err != nil {
		t.Fatalf("modify: %v", err)
	}
	if string(revised) != `{"summary": "4 day split"}` {
		t.Errorf("unexpected revision: %s", revised)
	}

	prompt := mock.LastRequest().Messages[1].Content
	if !strings.Contains(prompt, "add a fourth day") {
		t.Error("user instructions missing from revision prompt")
	}
	if !strings.Contains(prompt, "3 day split") {
		t.Error("current plan missing from revision prompt")
	}
}

func TestLLMPlanner_NoJSON(t *testing.T) {
	mock := llm.NewMockProvider()
	mock.SetResponse("I can't make a plan right now.")
	p := NewLLMPlanner(mock, 0)

	if _, err := p.Generate(context.Background(), "diet", nil); err == nil {
		t.Error("expected error when response has no JSON")
	}
}

func TestLLMPlanner_UnknownKind(t *testing.T) {
	p := NewLLMPlanner(llm.NewMockProvider(), 0)
	if _, err := p.Generate(context.Background(), "sleep", nil); err == nil {
		t.Error("expected error for unknown plan kind")
	}
}
