package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClient generates completions via a local Ollama server.
type OllamaClient struct {
	HTTPClient *http.Client
	BaseURL    string
	Model      string
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func NewOllamaClient(baseURL, model string) *OllamaClient {
	return &OllamaClient{
		HTTPClient: &http.Client{Timeout: 100 * time.Second},
		BaseURL:    baseURL,
		Model:      model,
	}
}

// Generate requests a single non-streamed completion. One attempt, no
// retry: a live voice interface should fail fast rather than pile on
// latency.
func (c *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody, _ := json.Marshal(generateRequest{
		Model:  c.Model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: 0.3,
			TopP:        0.8,
			NumPredict:  200,
		},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", err
	}
	answer := strings.TrimSpace(gr.Response)
	if answer == "" {
		return "", fmt.Errorf("ollama: empty response")
	}
	return answer, nil
}

// HealthCheck verifies the Ollama server is reachable and serving models.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable at %s: %w", c.BaseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health check: status=%d", resp.StatusCode)
	}
	return nil
}
