// Package ai asks an OpenAI-compatible model to summarize confirmed incidents.
package ai

import (
	"context"
	"errors"
	"fmt"

	"Go2NetShield/internal/config"

	"github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are a senior network security analyst reviewing intrusion detection output. " +
	"Answer in Markdown."

// IncidentAnalyzer implements model.Analyzer using the chat completion API.
type IncidentAnalyzer struct {
	model  string
	client *openai.Client
}

// NewIncidentAnalyzer creates an analyzer. The API key is required.
func NewIncidentAnalyzer(cfg config.AIConfig) (*IncidentAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("AI API key is not configured")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &IncidentAnalyzer{
		model:  cfg.Model,
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

// AnalyzeIncidents returns the model's assessment of a block of incident lines.
func (a *IncidentAnalyzer) AnalyzeIncidents(ctx context.Context, input string) (string, error) {
	prompt := fmt.Sprintf(
		"The following sources were confirmed as attackers by a two-stage classifier and blocked at the firewall. "+
			"Group them by likely campaign, estimate severity, and list follow-up checks for the on-call engineer.\n\n"+
			"--- Incidents ---\n%s\n--- End of Incidents ---", input,
	)

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     a.model,
		MaxTokens: 1024,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("AI request timeout: %w", err)
		}
		if errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("AI request canceled by client: %w", err)
		}
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI API returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
