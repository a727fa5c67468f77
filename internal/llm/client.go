// Package llm wraps structured-output requests to the external
// language model. Callers hand in a system prompt, a user prompt, and
// a destination schema; the client strips code fences and internal
// tokens from the reply and decodes it.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// ErrIncompleteResponse marks a reply that stopped for a reason other
// than a normal end of turn, or carried no content.
var ErrIncompleteResponse = errors.New("incomplete model response")

// SchemaError wraps a parse or validation failure of the reply body.
type SchemaError struct {
	err error
}

func (e *SchemaError) Error() string { return fmt.Sprintf("response does not match schema: %v", e.err) }
func (e *SchemaError) Unwrap() error { return e.err }

// TransportError wraps a failure to reach the model at all.
type TransportError struct {
	err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("model transport: %v", e.err) }
func (e *TransportError) Unwrap() error { return e.err }

// Generator is the collaborator interface consumed by the question
// generator; Client is the production implementation.
type Generator interface {
	GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, maxTokens int64, out any) error
}

// Client talks to the Anthropic Messages API. Credentials come from
// the environment (ANTHROPIC_API_KEY) via the SDK's default client.
type Client struct {
	client           anthropic.Client
	model            anthropic.Model
	defaultMaxTokens int64
}

// New builds a client for the given model. defaultMaxTokens applies
// when a call passes maxTokens <= 0.
func New(model string, defaultMaxTokens int64) *Client {
	if defaultMaxTokens <= 0 {
		defaultMaxTokens = 300
	}
	return &Client{
		client:           anthropic.NewClient(),
		model:            anthropic.Model(model),
		defaultMaxTokens: defaultMaxTokens,
	}
}

// GenerateStructured sends one structured-output request and decodes
// the sanitized reply into out. No retries happen at this layer.
func (c *Client) GenerateStructured(ctx context.Context, systemPrompt, userPrompt string, maxTokens int64, out any) error {
	if maxTokens <= 0 {
		maxTokens = c.defaultMaxTokens
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		return &TransportError{err: err}
	}

	if msg.StopReason != anthropic.StopReasonEndTurn {
		return fmt.Errorf("%w: stop reason %q", ErrIncompleteResponse, msg.StopReason)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: empty content", ErrIncompleteResponse)
	}

	cleaned := Sanitize(text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return &SchemaError{err: err}
	}
	return nil
}

// Sanitize strips the JSON wrapping some models add: leading ```json
// fences, trailing ``` fences, internal <think></think> tokens, and
// surrounding whitespace.
func Sanitize(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "```json"); ok {
		s = strings.TrimSpace(rest)
	} else if rest, ok := strings.CutPrefix(s, "```"); ok {
		s = strings.TrimSpace(rest)
	}
	if rest, ok := strings.CutSuffix(s, "```"); ok {
		s = strings.TrimSpace(rest)
	}
	s = strings.ReplaceAll(s, "<think></think>", "")
	return strings.TrimSpace(s)
}
