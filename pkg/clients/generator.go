package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"github.com/tmc/langchaingo/llms"
)

// DefaultMaxRetries is how many times a generation is attempted before giving up.
const DefaultMaxRetries = 3

// Generator produces schema-shaped JSON answers from a langchaingo model.
type Generator struct {
	LLM        llms.Model
	MaxRetries int
	// Backoff is the base delay between attempts; attempt i waits i*Backoff.
	Backoff time.Duration
	Logger  *slog.Logger
}

func NewGenerator(llm llms.Model, maxRetries int) *Generator {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Generator{
		LLM:        llm,
		MaxRetries: maxRetries,
		Backoff:    time.Second,
		Logger:     slog.Default(),
	}
}

// Generate asks the model for a JSON object following schema and decodes it into out.
func (g *Generator) Generate(ctx context.Context, system, prompt, schema string, out any) error {
	_, err := g.generateWithRetry(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system+"\n\n# Response Format: \n\n"+schema),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, func(content string) error {
		return DecodeJSON(content, out)
	})
	return err
}

// generateWithRetry attempts to generate content and validates it using the provided function.
// It retries up to MaxRetries times if the LLM fails or the validator returns an error.
func (g *Generator) generateWithRetry(ctx context.Context, prompts []llms.MessageContent, validator func(string) error) (string, error) {
	maxRetries := g.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	logger := g.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			logger.Warn("Retrying LLM generation", "attempt", i+1, "last_error", lastErr)
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("llm generation aborted: %w (last error: %v)", ctx.Err(), lastErr)
			case <-time.After(g.Backoff * time.Duration(i)): // Linear backoff
			}
		}

		resp, err := g.LLM.GenerateContent(ctx, prompts, llms.WithJSONMode())
		if err != nil {
			lastErr = fmt.Errorf("llm generation failed: %w", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("llm returned no choices")
			continue
		}

		content := resp.Choices[0].Content
		if err := validator(content); err != nil {
			lastErr = fmt.Errorf("validation failed: %w", err)
			continue
		}

		return content, nil
	}

	return "", fmt.Errorf("operation failed after %d retries: %w", maxRetries, lastErr)
}

// DecodeJSON unmarshals a model answer into out. Markdown code fences are
// stripped and malformed JSON is repaired before giving up. out is only
// written when decoding succeeds, so a rejected answer leaves no partial data.
func DecodeJSON(content string, out any) error {
	target := reflect.ValueOf(out)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return fmt.Errorf("decode target must be a non-nil pointer, got %T", out)
	}

	content = stripFences(content)
	if content == "" {
		return fmt.Errorf("empty response")
	}

	fresh := reflect.New(target.Elem().Type())
	err := json.Unmarshal([]byte(content), fresh.Interface())
	if err == nil {
		target.Elem().Set(fresh.Elem())
		return nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(content)
	if repairErr != nil {
		return fmt.Errorf("json parse error: %w (repair error: %v)", err, repairErr)
	}
	fresh = reflect.New(target.Elem().Type())
	if err := json.Unmarshal([]byte(repaired), fresh.Interface()); err != nil {
		return fmt.Errorf("json parse error after repair: %w (content: %s)", err, content)
	}
	target.Elem().Set(fresh.Elem())
	return nil
}

func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
