package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"subtitle-pipeline-go/internal/remote"
)

// Service is the translation backend: one request in, raw text out. The
// stage owns batching, validation, and reconstruction.
type Service interface {
	Translate(ctx context.Context, systemInstruction, userPrompt string) (string, error)
}

// OpenAIService calls a chat-completion endpoint, walking an ordered model
// list so a rejected or unavailable model falls through to the next one.
type OpenAIService struct {
	models []string

	// create is the chat call, split out so tests can stub the API.
	create func(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func NewOpenAIService(apiKey, baseURL string, models []string) *OpenAIService {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	client := openai.NewClientWithConfig(cfg)
	return &OpenAIService{
		models: models,
		create: client.CreateChatCompletion,
	}
}

// Translate issues one request. Rate limits propagate classified so the
// retry controller can back off; model-level rejections advance down the
// fallback list.
func (s *OpenAIService) Translate(ctx context.Context, systemInstruction, userPrompt string) (string, error) {
	var lastErr error
	for i, model := range s.models {
		resp, err := s.create(ctx, openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemInstruction},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
			Temperature: 0.2,
		})
		if err != nil {
			classified := classify(err)
			if remote.KindOf(classified) == remote.KindRateLimited {
				return "", classified
			}
			lastErr = classified
			if i < len(s.models)-1 {
				continue
			}
			return "", lastErr
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			lastErr = remote.Validation("translate", fmt.Errorf("model %s returned an empty response", model))
			if i < len(s.models)-1 {
				continue
			}
			return "", lastErr
		}
		return resp.Choices[0].Message.Content, nil
	}
	if lastErr == nil {
		lastErr = remote.Fatal("translate", fmt.Errorf("no models configured"))
	}
	return "", lastErr
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		// a rejected API key is not refreshable like the catalog session,
		// so auth failures here are fatal rather than auth-expired
		if apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403 {
			return remote.Fatal("translate", fmt.Errorf("status %d: %s", apiErr.HTTPStatusCode, apiErr.Message))
		}
		return remote.FromStatus("translate", apiErr.HTTPStatusCode, apiErr.Message)
	}
	// transport-level failures get bounded backoff
	return remote.RateLimited("translate", err)
}
