package clients

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// ModelType identifies a generation model.
type ModelType string

const (
	O3Mini    ModelType = "o3-mini"
	GPT4o     ModelType = "gpt-4o"
	GPT4oMini ModelType = "gpt-4o-mini"
	Gemini    ModelType = "gemini-3-flash-preview"
	GeminiPro ModelType = "gemini-3-pro-preview"

	// DefaultModel is the default model to use if none is specified
	DefaultModel = O3Mini
)

// Provider is the API a model is served from.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGoogle Provider = "google"
)

// ModelInfo describes a selectable model.
type ModelInfo struct {
	ID       ModelType `json:"id"`
	Name     string    `json:"name"`
	Provider Provider  `json:"provider"`
	Vision   bool      `json:"vision"`
}

// AvailableModels lists the models a research request may select.
var AvailableModels = []ModelInfo{
	{ID: GPT4o, Name: "GPT-4o", Provider: ProviderOpenAI, Vision: true},
	{ID: GPT4oMini, Name: "GPT-4o mini", Provider: ProviderOpenAI, Vision: true},
	{ID: O3Mini, Name: "o3 mini", Provider: ProviderOpenAI},
	{ID: Gemini, Name: "Gemini 3 Flash", Provider: ProviderGoogle, Vision: true},
	{ID: GeminiPro, Name: "Gemini 3 Pro", Provider: ProviderGoogle, Vision: true},
}

// LookupModel resolves a model id. Unlisted ids starting with "gemini-" are
// routed to Google; everything else must be in AvailableModels.
func LookupModel(id string) (ModelInfo, bool) {
	for _, m := range AvailableModels {
		if string(m.ID) == id {
			return m, true
		}
	}
	if strings.HasPrefix(id, "gemini-") {
		return ModelInfo{ID: ModelType(id), Name: id, Provider: ProviderGoogle}, true
	}
	return ModelInfo{}, false
}

// Credentials carries the provider API keys.
type Credentials struct {
	OpenAIKey string
	GoogleKey string
}

// KeyFor returns the API key needed by provider.
func (c Credentials) KeyFor(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return c.OpenAIKey
	case ProviderGoogle:
		return c.GoogleKey
	}
	return ""
}

// NewLLM builds the langchaingo model behind a model id.
func NewLLM(ctx context.Context, id string, creds Credentials) (llms.Model, error) {
	info, ok := LookupModel(id)
	if !ok {
		return nil, fmt.Errorf("invalid model type: %s", id)
	}
	apiKey := creds.KeyFor(info.Provider)
	if apiKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %s", info.Provider)
	}

	switch info.Provider {
	case ProviderOpenAI:
		llm, err := openai.New(openai.WithToken(apiKey), openai.WithModel(string(info.ID)))
		if err != nil {
			return nil, fmt.Errorf("failed to init OpenAI model: %w", err)
		}
		return llm, nil
	case ProviderGoogle:
		// See https://ai.google.dev/gemini-api/docs/models/gemini for possible models
		llm, err := googleai.New(ctx, googleai.WithAPIKey(apiKey), googleai.WithDefaultModel(string(info.ID)))
		if err != nil {
			return nil, fmt.Errorf("failed to init Google AI model: %w", err)
		}
		return llm, nil
	}
	return nil, fmt.Errorf("unsupported provider: %s", info.Provider)
}
