// Package llm provides the language model abstraction and provider adapters.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Message represents one entry in a chat conversation.
type Message struct {
	Role       string             // system, user, assistant, tool
	Content    string
	ToolCalls  []ToolCallResponse // assistant messages that invoked tools
	ToolCallID string             // tool messages: the call being answered
}

// ToolDef is the LLM-facing definition of a callable tool.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON schema
}

// ToolCallResponse is a tool invocation requested by the model.
type ToolCallResponse struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// ChatRequest is a single request to the model.
type ChatRequest struct {
	Messages  []Message
	Tools     []ToolDef
	MaxTokens int
}

// ChatResponse is the model's reply.
type ChatResponse struct {
	Content      string
	Thinking     string
	ToolCalls    []ToolCallResponse
	StopReason   string
	InputTokens  int
	OutputTokens int
	Model        string
}

// Provider is the chat capability consumed by the onboarding engine.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// RetryConfig controls transient-error retry behavior in adapters.
type RetryConfig struct {
	MaxRetries  int
	InitBackoff time.Duration
	MaxBackoff  time.Duration
}

// FantasyConfig configures a fantasy-backed provider.
type FantasyConfig struct {
	Provider    string // anthropic, openai, google, groq, mistral, openai-compat, ...
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	RetryConfig RetryConfig
}

// Validate checks the configuration for required fields.
func (c *FantasyConfig) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

// ApplyDefaults fills in default values for unset fields.
func (c *FantasyConfig) ApplyDefaults() {
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
}
