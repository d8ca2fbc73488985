// Package embed turns identifier text into query vectors for the soft-match
// candidate search. Two backends are provided, selected by the AI_ADAPTER
// environment variable: "ollama" for a local Ollama server, anything else
// for an OpenAI-compatible embeddings API.
//
// Vector dimensionality is capped by AI_EMBED_DIM and must match the
// reference embedding index shipped with the knowledge graph.
package embed

import (
	"context"
	"fmt"

	"github.com/BioMedGraphica/conn-backend/internal/util"
	"github.com/BioMedGraphica/conn-backend/pkg/embed/ollama"
	"github.com/BioMedGraphica/conn-backend/pkg/embed/openai"
)

// Client produces one embedding vector per text input.
type Client interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// NewFromEnv builds the embedding client selected by AI_ADAPTER.
func NewFromEnv() (Client, error) {
	switch util.GetEnv("AI_ADAPTER") {
	case "ollama":
		client, err := ollama.New(ollama.Params{
			Model:                 util.GetEnv("AI_EMBED_MODEL"),
			BaseURL:               util.GetEnv("AI_EMBED_URL"),
			APIKey:                util.GetEnv("AI_EMBED_KEY"),
			MaxConcurrentRequests: int64(util.GetEnvInt("AI_MAX_CONCURRENT_REQUESTS", 4)),
			TimeoutMinutes:        util.GetEnvInt("AI_TIMEOUT_MIN", 2),
		})
		if err != nil {
			return nil, fmt.Errorf("create ollama embedding client: %w", err)
		}
		return client, nil
	default:
		client, err := openai.New(openai.Params{
			Model:                 util.GetEnv("AI_EMBED_MODEL"),
			BaseURL:               util.GetEnv("AI_EMBED_URL"),
			APIKey:                util.GetEnv("AI_EMBED_KEY"),
			MaxConcurrentRequests: int64(util.GetEnvInt("AI_MAX_CONCURRENT_REQUESTS", 4)),
			TimeoutMinutes:        util.GetEnvInt("AI_TIMEOUT_MIN", 2),
		})
		if err != nil {
			return nil, fmt.Errorf("create openai embedding client: %w", err)
		}
		return client, nil
	}
}
