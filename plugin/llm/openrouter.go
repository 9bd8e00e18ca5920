package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/parleyhq/parley/store"
)

const defaultBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterProvider talks to any OpenAI-compatible chat-completions endpoint.
type OpenRouterProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenRouterProvider builds a provider from a connection profile record.
func NewOpenRouterProvider(profile *store.ConnectionProfile) *OpenRouterProvider {
	baseURL := strings.TrimSuffix(profile.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &OpenRouterProvider{
		baseURL: baseURL,
		apiKey:  profile.APIKey,
		model:   profile.Model,
		client:  http.DefaultClient,
	}
}

// Generate implements Provider. With req.Stream set it returns a Completion
// whose Stream lazily opens the SSE response; otherwise it blocks for the
// full reply text.
func (p *OpenRouterProvider) Generate(ctx context.Context, req *Request) (*Completion, error) {
	if req.Stream {
		return &Completion{Stream: func(ctx context.Context, onDelta func(string) error) error {
			return p.stream(ctx, req, onDelta)
		}}, nil
	}
	text, err := p.complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Completion{Text: text}, nil
}

func (p *OpenRouterProvider) buildBody(req *Request, stream bool) ([]byte, error) {
	messages := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, Message{Role: "system", Content: req.System})
	}
	messages = append(messages, req.Messages...)
	return json.Marshal(map[string]any{
		"model":    p.model,
		"messages": messages,
		"stream":   stream,
	})
}

func (p *OpenRouterProvider) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

func (p *OpenRouterProvider) complete(ctx context.Context, req *Request) (string, error) {
	body, err := p.buildBody(req, false)
	if err != nil {
		return "", err
	}
	httpReq, err := p.newRequest(ctx, body)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm: backend returned %s", resp.Status)
	}
	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", err
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("llm: empty response from backend")
	}
	return apiResp.Choices[0].Message.Content, nil
}

// stream opens the SSE response and forwards each content delta to onDelta.
func (p *OpenRouterProvider) stream(ctx context.Context, req *Request, onDelta func(string) error) error {
	body, err := p.buildBody(req, true)
	if err != nil {
		return err
	}
	httpReq, err := p.newRequest(ctx, body)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llm: backend returned %s", resp.Status)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		for _, ch := range chunk.Choices {
			if ch.Delta.Content == "" {
				continue
			}
			if err := onDelta(ch.Delta.Content); err != nil {
				return err
			}
		}
	}
	return scanner.Err()
}

var _ Provider = (*OpenRouterProvider)(nil)
