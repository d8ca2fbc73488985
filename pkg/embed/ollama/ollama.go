// Package ollama implements the embedding client against a local or proxied
// Ollama server.
package ollama

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"

	"github.com/BioMedGraphica/conn-backend/internal/util"
)

const defaultDim = 384

// Client calls the Ollama embed API with bounded concurrency.
type Client struct {
	model      string
	timeoutMin int

	reqLock *semaphore.Weighted

	api *api.Client
}

// Params configures a Client.
type Params struct {
	Model   string
	BaseURL string
	APIKey  string

	MaxConcurrentRequests int64
	TimeoutMinutes        int
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// New creates a Client against the Ollama server at BaseURL, or the default
// local server when BaseURL is empty.
func New(params Params) (*Client, error) {
	var (
		u   *url.URL
		err error
	)
	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: map[string]string{
				"Authorization": "Bearer " + params.APIKey,
			},
			rt: http.DefaultTransport,
		},
	}

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
		api:        api.NewClient(u, httpClient),
	}, nil
}

// Embed creates an embedding vector for the given text, truncated to
// AI_EMBED_DIM values. Blank input yields a zero vector without a request.
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

	res, err := c.api.Embed(rCtx, &api.EmbedRequest{
		Model: c.model,
		Input: text,
	})
	if err != nil {
		return nil, err
	}

	out := make([]float64, 0, dim)
	for _, vec := range res.Embeddings {
		for _, v := range vec {
			if len(out) >= dim {
				break
			}
			out = append(out, float64(v))
		}
	}
	return out, nil
}
