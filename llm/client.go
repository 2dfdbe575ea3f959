// Package llm provides a pluggable HTTP client for the embedding and
// completion calls the Knowledge Retrieval Layer and Struggle Detector
// make against an external model provider.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ofircohen205/aura-sub001/apierr"
	"github.com/ofircohen205/aura-sub001/engine"
	"github.com/ofircohen205/aura-sub001/retrieval"
)

// Config configures a Client.
type Config struct {
	BaseURL          string
	APIKey           string
	EmbeddingModel   string
	CompletionModel  string
	Timeout          time.Duration
	Retry            engine.RetryConfig
	EmbeddingDimension int
}

// Client is a minimal HTTP client for a model provider's embedding and
// chat-completion endpoints, retrying transient failures per Config.Retry
// and treating a 4xx response as non-retryable.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = engine.DefaultRetryConfig()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed satisfies retrieval.Embedder and telemetry's Embedder indirectly
// through retrieval.Layer.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	var out []float64
	err := engine.Retry(ctx, c.cfg.Retry, func(ctx context.Context) error {
		body, err := json.Marshal(embedRequest{Model: c.cfg.EmbeddingModel, Input: text})
		if err != nil {
			return apierr.Internal(err)
		}

		resp, err := c.post(ctx, "/embeddings", body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var parsed embedResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return apierr.Wrap(apierr.KindDegraded, "decode embedding response", err)
		}
		if len(parsed.Data) == 0 {
			return apierr.Degraded("embedding provider returned no vectors")
		}
		out = parsed.Data[0].Embedding
		return nil
	})
	return out, err
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Synthesize satisfies telemetry.Synthesizer: it prompts the completion
// model with the retrieved chunks and returns a bounded lesson body.
func (c *Client) Synthesize(ctx context.Context, query string, chunks []retrieval.SimilarChunk, userLevel string, maxChars int) (string, error) {
	prompt := buildLessonPrompt(query, chunks, userLevel, maxChars)

	var out string
	err := engine.Retry(ctx, c.cfg.Retry, func(ctx context.Context) error {
		body, err := json.Marshal(chatRequest{
			Model: c.cfg.CompletionModel,
			Messages: []chatMessage{
				{Role: "system", Content: "You are a terse programming tutor."},
				{Role: "user", Content: prompt},
			},
			MaxTokens:   maxChars / 3,
			Temperature: 0.2,
		})
		if err != nil {
			return apierr.Internal(err)
		}

		resp, err := c.post(ctx, "/chat/completions", body)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var parsed chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return apierr.Wrap(apierr.KindDegraded, "decode completion response", err)
		}
		if len(parsed.Choices) == 0 {
			return apierr.Degraded("completion provider returned no choices")
		}
		out = truncate(parsed.Choices[0].Message.Content, maxChars)
		return nil
	})
	return out, err
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, apierr.Internal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTransient, "model provider request", err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(resp.Body)
		return nil, apierr.New(apierr.KindDegraded, fmt.Sprintf("model provider rejected request: %s", string(msg)))
	}
	if resp.StatusCode >= 500 {
		defer resp.Body.Close()
		return nil, apierr.Transient("model provider returned %d", resp.StatusCode)
	}
	return resp, nil
}

func buildLessonPrompt(query string, chunks []retrieval.SimilarChunk, userLevel string, maxChars int) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Level: %s\nError pattern: %s\nMax length: %d chars\n\nReference material:\n", userLevel, query, maxChars)
	for _, c := range chunks {
		fmt.Fprintf(&b, "- [%s] %s\n", c.Chunk.ID, c.Chunk.Title)
	}
	return b.String()
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	return s[:maxChars]
}
