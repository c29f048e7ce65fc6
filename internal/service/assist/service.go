// Package assist is a thin synchronous client for the external
// text-generation collaborator. The collaborator is advisory: when it
// is unreachable or misbehaves, the service answers from a small set
// of canned replies instead of failing the caller.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"time"

	"go.uber.org/zap"

	"carelink-backend/pkg/logger"
)

const defaultTimeout = 10 * time.Second

// cannedReplies are the deterministic fallback answers. The pick is a
// stable function of the prompt so retries of the same prompt read the
// same.
var cannedReplies = []string{
	"I'm having trouble reaching my knowledge service right now, but I'm still here with you.",
	"Let me get back to you on that in a moment. Is there anything else I can help with?",
	"I couldn't look that up just now. Please try again shortly.",
}

// Request is one generation request
type Request struct {
	Prompt  string   `json:"prompt"`
	Context []string `json:"context,omitempty"`
	// ExtractJSON asks the collaborator to answer with a bare JSON
	// object instead of free text.
	ExtractJSON bool `json:"extract_json,omitempty"`
}

// Response is the collaborator's answer
type Response struct {
	Reply  string          `json:"reply"`
	Parsed json.RawMessage `json:"parsed,omitempty"`
	// Canned marks a fallback answer produced locally.
	Canned bool `json:"canned,omitempty"`
}

// Service calls the collaborator over HTTP
type Service struct {
	baseURL string
	client  *http.Client
}

// Option configures a Service
type Option func(*Service)

// WithHTTPClient overrides the underlying HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) { s.client = client }
}

// NewService creates a client for the collaborator at baseURL
func NewService(baseURL string, timeout time.Duration, opts ...Option) *Service {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	s := &Service{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate asks the collaborator for a reply. Transport and decode
// failures degrade to a canned response; only an empty prompt is an
// error.
func (s *Service) Generate(ctx context.Context, req *Request) (*Response, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("assist: empty prompt")
	}

	resp, err := s.call(ctx, req)
	if err != nil {
		logger.Warn("assist collaborator unavailable", zap.Error(err))
		return canned(req.Prompt), nil
	}
	return resp, nil
}

func (s *Service) call(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", httpResp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Reply == "" && len(out.Parsed) == 0 {
		return nil, fmt.Errorf("empty collaborator response")
	}
	return &out, nil
}

func canned(prompt string) *Response {
	h := fnv.New32a()
	h.Write([]byte(prompt))
	return &Response{
		Reply:  cannedReplies[int(h.Sum32())%len(cannedReplies)],
		Canned: true,
	}
}
