package llm

import (
	"context"
	"sync"
)

// MockProvider is a scriptable Provider for tests.
type MockProvider struct {
	mu        sync.Mutex
	responses []*ChatResponse
	fallback  *ChatResponse
	requests  []ChatRequest

	// ChatFunc, when set, fully overrides response selection.
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// NewMockProvider creates a mock provider with an empty response script.
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// SetResponse sets the fallback text response returned when the script is empty.
func (m *MockProvider) SetResponse(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &ChatResponse{Content: text}
}

// QueueResponse appends a scripted response; responses are consumed in order.
func (m *MockProvider) QueueResponse(resp *ChatResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
}

// QueueToolCall appends a scripted response that invokes a single tool.
func (m *MockProvider) QueueToolCall(id, name string, args map[string]interface{}) {
	m.QueueResponse(&ChatResponse{
		ToolCalls: []ToolCallResponse{{ID: id, Name: name, Args: args}},
	})
}

// Chat records the request and returns the next scripted response.
func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if m.ChatFunc != nil {
		m.mu.Lock()
		m.requests = append(m.requests, req)
		m.mu.Unlock()
		return m.ChatFunc(ctx, req)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if len(m.responses) > 0 {
		resp := m.responses[0]
		m.responses = m.responses[1:]
		return resp, nil
	}
	if m.fallback != nil {
		return m.fallback, nil
	}
	return &ChatResponse{Content: "ok"}, nil
}

// LastRequest returns the most recent recorded request.
func (m *MockProvider) LastRequest() ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return ChatRequest{}
	}
	return m.requests[len(m.requests)-1]
}

// Requests returns all recorded requests in order.
func (m *MockProvider) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChatRequest, len(m.requests))
	copy(out, m.requests)
	return out
}
