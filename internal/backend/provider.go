package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// SystemPrompt frames every completion.
const SystemPrompt = "You are a helpful AI assistant for analyzing CSV data."

// Prompt is one completion request.
type Prompt struct {
	System string
	User   string
}

// Provider produces an answer for a prompt.
type Provider interface {
	Name() string
	Complete(ctx context.Context, p Prompt) (string, error)
}

// ProviderOptions configures NewProvider.
type ProviderOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// NewProvider returns an OpenAI provider, or a MockProvider when no API key
// is configured so the service runs offline.
func NewProvider(opts ProviderOptions) Provider {
	if opts.APIKey == "" {
		return MockProvider{}
	}
	return NewOpenAIProvider(opts)
}

// BuildUserPrompt assembles the question and serialized data context.
func BuildUserPrompt(question, dataContext string) string {
	var b strings.Builder
	b.WriteString("You are a helpful AI assistant that analyzes CSV data.\n")
	b.WriteString("Answer questions about the data in a clear, concise manner.\n\n")
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\n")
	if dataContext != "" {
		b.WriteString("\nData Context:\n")
		b.WriteString(dataContext)
		b.WriteString("\n")
	}
	b.WriteString("\nPlease provide a helpful answer based on the data.")
	return b.String()
}

// OpenAIProvider calls the chat completions API.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIProvider creates a provider for opts.Model. BaseURL overrides the
// API endpoint for compatible servers.
func NewOpenAIProvider(opts ProviderOptions) *OpenAIProvider {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: float32(opts.Temperature),
	}
}

// Name returns the model in use.
func (p *OpenAIProvider) Name() string { return p.model }

// Complete sends one system and one user message.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt Prompt) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt.User},
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("llm request failed: no choices returned")
	}

	return resp.Choices[0].Message.Content, nil
}

// MockProvider answers without an external API. It is used when no API key
// is set.
type MockProvider struct{}

// Name identifies the mock.
func (MockProvider) Name() string { return "mock" }

// Complete echoes the question back with a note that no model is configured.
func (MockProvider) Complete(ctx context.Context, p Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	question := p.User
	if _, after, ok := strings.Cut(p.User, "Question: "); ok {
		question, _, _ = strings.Cut(after, "\n")
	}
	return fmt.Sprintf("(mock) No language model is configured. You asked: %q", question), nil
}
