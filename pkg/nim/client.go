// Package nim provides the client for the NVIDIA NIM inference API.
// NIM exposes an OpenAI-compatible chat completion endpoint, so the
// standard openai client is pointed at the configured base URL.
package nim

import (
	"context"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/sashabaranov/go-openai"

	"github.com/nimslack/schedbot/pkg/config"
)

// Client calls the NIM endpoint to generate schedule text
type Client struct {
	api *openai.Client
	cfg config.NIMSettings
}

// system message framing every request; the user's text is forwarded as-is
const systemPrompt = `You are a scheduling assistant for a Slack workspace. ` +
	`Users describe what they need to get done and you reply with a clear, ` +
	`realistic schedule formatted as a short list with times. Keep replies ` +
	`concise and suitable for a Slack message.`

// New creates a NIM client from inference API settings
func New(cfg config.NIMSettings) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.Endpoint

	return &Client{
		api: openai.NewClientWithConfig(clientConfig),
		cfg: cfg,
	}
}

// Generate forwards the user's request text to the inference endpoint and
// returns the completion. Transport failures are retried with backoff up
// to the configured max retries; each attempt gets the configured timeout.
func (c *Client) Generate(ctx context.Context, userText string) (string, error) {
	attempts := c.cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	retrier := repeater.NewBackoff(attempts, 500*time.Millisecond, repeater.WithMaxDelay(5*time.Second))

	var result string
	err := retrier.Do(ctx, func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		resp, err := c.api.CreateChatCompletion(reqCtx, openai.ChatCompletionRequest{
			Model: c.cfg.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userText},
			},
		})
		if err != nil {
			return fmt.Errorf("chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty completion from %s", c.cfg.Model)
		}
		result = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("generate with %s: %w", c.cfg.Model, err)
	}
	return result, nil
}
