package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type embedRequest struct {
	Content string `json:"content"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// Embed requests an embedding vector for script content. Unlike Analyze,
// failures here are plain errors; embedding runs in background jobs where
// the caller just logs and gives up.
func (c *Client) Embed(ctx context.Context, content string) ([]float32, string, error) {
	if content == "" {
		return nil, "", fmt.Errorf("empty content")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Content: content})
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embedding", bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("failed to build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("embedding service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, snippet)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, "", fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if len(parsed.Embedding) == 0 {
		return nil, "", fmt.Errorf("embedding service returned an empty vector")
	}

	return parsed.Embedding, parsed.Model, nil
}
