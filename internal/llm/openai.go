package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"medroom/internal/config"
	"medroom/pkg/interfaces"
	"medroom/pkg/types"
)

// Client is the OpenAI-compatible language model collaborator.
// ARCHITECTURAL DISCOVERY: All transport detail stays here; callers see
// interfaces.LanguageModel and a single failure class
type Client struct {
	client      *openai.Client
	chatModel   string
	visionModel string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	configured  bool
	logger      zerolog.Logger
}

// NewClient builds a client from the AI configuration section
func NewClient(cfg *config.AIConfig, logger zerolog.Logger) *Client {
	oaConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaConfig.BaseURL = cfg.BaseURL
	}

	visionModel := cfg.VisionModel
	if visionModel == "" {
		visionModel = cfg.ChatModel
	}

	return &Client{
		client:      openai.NewClientWithConfig(oaConfig),
		chatModel:   cfg.ChatModel,
		visionModel: visionModel,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		configured:  cfg.APIKey != "",
		logger:      logger.With().Str("component", "llm").Logger(),
	}
}

// Configured reports whether an API key was supplied
func (c *Client) Configured() bool {
	return c.configured
}

// Complete sends role-tagged segments and returns the reply text
func (c *Client) Complete(ctx context.Context, segments []interfaces.PromptSegment) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(segments))
	for _, s := range segments {
		role := s.Role
		if role != openai.ChatMessageRoleSystem && role != openai.ChatMessageRoleUser && role != openai.ChatMessageRoleAssistant {
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: s.Content})
	}
	return c.create(ctx, c.chatModel, messages)
}

// DescribeImage asks the vision model to transcribe an image.
// TECHNICAL DISCOVERY: Images travel inline as a data URI so no public file URL is needed
func (c *Client) DescribeImage(ctx context.Context, mimeType string, data []byte, instruction string) (string, error) {
	uri := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
	messages := []openai.ChatCompletionMessage{{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: instruction},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    uri,
				Detail: openai.ImageURLDetailAuto,
			}},
		},
	}}
	return c.create(ctx, c.visionModel, messages)
}

func (c *Client) create(ctx context.Context, model string, messages []openai.ChatCompletionMessage) (string, error) {
	if !c.configured {
		return "", fmt.Errorf("%w: no API key configured", types.ErrModelUnavailable)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("model", model).Dur("elapsed", time.Since(start)).Msg("completion failed")
		return "", fmt.Errorf("%w: %v", types.ErrModelUnavailable, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: empty completion", types.ErrModelUnavailable)
	}

	c.logger.Debug().Str("model", model).Int("tokens", resp.Usage.TotalTokens).Dur("elapsed", time.Since(start)).Msg("completion")
	return resp.Choices[0].Message.Content, nil
}
