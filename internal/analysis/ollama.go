package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// OllamaBridge answers requests with a local Ollama vision model. Send
// returns as soon as the request is queued; the generated text, or the
// failure, is delivered to the subscribed handler like any other bridge
// answer.
type OllamaBridge struct {
	httpClient *http.Client
	baseURL    string
	model      string
	log        *slog.Logger

	mu      sync.Mutex
	handler func(Payload)
	wg      sync.WaitGroup
}

type ollamaRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images,omitempty"`
	Format string   `json:"format,omitempty"`
	Stream bool     `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllamaBridge returns a bridge for the Ollama server at baseURL.
func NewOllamaBridge(baseURL, model string, timeout time.Duration, logger *slog.Logger) *OllamaBridge {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaBridge{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		log:        logger.With("component", "bridge", "bridge", "ollama"),
	}
}

// Subscribe registers the inbound handler.
func (o *OllamaBridge) Subscribe(fn func(Payload)) {
	o.mu.Lock()
	o.handler = fn
	o.mu.Unlock()
}

// Send validates req and generates in the background. The generation is
// detached from ctx cancellation; the HTTP client timeout bounds it.
func (o *OllamaBridge) Send(ctx context.Context, req Request) error {
	if req.ImageBase64 == "" {
		return fmt.Errorf("no image data provided")
	}
	body, err := json.Marshal(ollamaRequest{
		Model:  o.model,
		Prompt: req.Message,
		Images: []string{req.ImageBase64},
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		text, err := o.generate(context.WithoutCancel(ctx), body)
		if err != nil {
			o.log.Warn("generate failed", "error", err)
			o.deliver(FailurePayload(err))
			return
		}
		o.deliver(TextPayload(stripFences(text)))
	}()
	return nil
}

func (o *OllamaBridge) deliver(p Payload) {
	o.mu.Lock()
	fn := o.handler
	o.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

// Wait blocks until background generations have finished.
func (o *OllamaBridge) Wait() { o.wg.Wait() }

func (o *OllamaBridge) generate(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	o.log.Debug("ollama responded", "chars", len(out.Response))
	return out.Response, nil
}

// IsAvailable checks the server's model list.
func (o *OllamaBridge) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// stripFences removes a surrounding ```json fence, which some models add
// even when asked not to.
func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	t = strings.TrimPrefix(t, "```")
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = t[i+1:]
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}
