// Package openai implements the embedding client against an
// OpenAI-compatible embeddings API.
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"

	"github.com/BioMedGraphica/conn-backend/internal/util"
)

const defaultDim = 384

// Client calls the embeddings endpoint with bounded concurrency.
type Client struct {
	model      string
	timeoutMin int

	reqLock *semaphore.Weighted

	api *openai.Client
}

// Params configures a Client.
type Params struct {
	Model   string
	BaseURL string
	APIKey  string

	MaxConcurrentRequests int64
	TimeoutMinutes        int
}

// New creates a Client. An API key is required.
func New(params Params) (*Client, error) {
	if params.APIKey == "" {
		return nil, fmt.Errorf("embedding API key is not configured")
	}

	options := []option.RequestOption{
		option.WithAPIKey(params.APIKey),
	}
	if params.BaseURL != "" {
		options = append(options, option.WithBaseURL(params.BaseURL))
	}
	client := openai.NewClient(options...)

	if params.MaxConcurrentRequests <= 0 {
		params.MaxConcurrentRequests = 1
	}
	if params.TimeoutMinutes <= 0 {
		params.TimeoutMinutes = 2
	}

	return &Client{
		model:      params.Model,
		timeoutMin: params.TimeoutMinutes,
		reqLock:    semaphore.NewWeighted(params.MaxConcurrentRequests),
		api:        &client,
	}, nil
}

// Embed creates an embedding vector for the given text, truncated or
// zero-padded to AI_EMBED_DIM values. Blank input yields a zero vector
// without a request.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	dim := util.GetEnvInt("AI_EMBED_DIM", defaultDim)
	if strings.TrimSpace(text) == "" {
		return make([]float64, dim), nil
	}

	rCtx, cancel := context.WithTimeout(ctx, time.Minute*time.Duration(c.timeoutMin))
	defer cancel()

	if err := c.reqLock.Acquire(rCtx, 1); err != nil {
		return nil, err
	}
	defer c.reqLock.Release(1)

	response, err := c.api.Embeddings.New(rCtx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
		Model: c.model,
	})
	if err != nil {
		return nil, err
	}
	if len(response.Data) != 1 {
		return nil, fmt.Errorf("embedding response size mismatch: got %d want 1", len(response.Data))
	}

	out := make([]float64, 0, dim)
	for _, v := range response.Data[0].Embedding {
		if len(out) >= dim {
			break
		}
		out = append(out, v)
	}
	if len(out) < dim {
		padded := make([]float64, dim)
		copy(padded, out)
		out = padded
	}
	return out, nil
}
