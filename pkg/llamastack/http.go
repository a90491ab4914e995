package llamastack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient talks to a llama-stack server over REST.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Options configures an HTTPClient.
type Options struct {
	// BaseURL is the upstream root, for example http://localhost:8321.
	BaseURL string
	// APIKey, when set, is sent as a bearer token on every request.
	APIKey string
	// Timeout bounds unary calls. Streaming turns use the request context
	// instead. Defaults to 120 seconds.
	Timeout time.Duration
}

// NewHTTPClient creates a REST client for the upstream.
func NewHTTPClient(opts Options) (*HTTPClient, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("upstream base URL is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid upstream base URL: %w", err)
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &HTTPClient{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// do issues one JSON request and decodes the response into out when out is
// non-nil.
func (c *HTTPClient) do(ctx context.Context, method, path string, payload any, extraHeaders map[string]string, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, extraHeaders)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode upstream response: %w", err)
	}
	return nil
}

func (c *HTTPClient) setHeaders(req *http.Request, extra map[string]string) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, raw)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, raw)
	default:
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}

// Models implements Client.
func (c *HTTPClient) Models(ctx context.Context) ([]Model, error) {
	var out listResponse[Model]
	if err := c.do(ctx, http.MethodGet, "/v1/models", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Shields implements Client.
func (c *HTTPClient) Shields(ctx context.Context) ([]Shield, error) {
	var out listResponse[Shield]
	if err := c.do(ctx, http.MethodGet, "/v1/shields", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// VectorDBs implements Client.
func (c *HTTPClient) VectorDBs(ctx context.Context) ([]VectorDB, error) {
	var out listResponse[VectorDB]
	if err := c.do(ctx, http.MethodGet, "/v1/vector-dbs", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Providers implements Client.
func (c *HTTPClient) Providers(ctx context.Context) ([]ProviderInfo, error) {
	var out listResponse[ProviderInfo]
	if err := c.do(ctx, http.MethodGet, "/v1/providers", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Version implements Client.
func (c *HTTPClient) Version(ctx context.Context) (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/version", nil, nil, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// RetrieveAgent implements Client.
func (c *HTTPClient) RetrieveAgent(ctx context.Context, agentID string) (*Agent, error) {
	var out Agent
	if err := c.do(ctx, http.MethodGet, "/v1/agents/"+url.PathEscape(agentID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAgent implements Client.
func (c *HTTPClient) CreateAgent(ctx context.Context, cfg AgentConfig) (string, error) {
	payload := struct {
		AgentConfig AgentConfig `json:"agent_config"`
	}{AgentConfig: cfg}
	var out struct {
		AgentID string `json:"agent_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/agents", payload, nil, &out); err != nil {
		return "", err
	}
	return out.AgentID, nil
}

// DeleteAgent implements Client.
func (c *HTTPClient) DeleteAgent(ctx context.Context, agentID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/agents/"+url.PathEscape(agentID), nil, nil, nil)
}

// CreateSession implements Client.
func (c *HTTPClient) CreateSession(ctx context.Context, agentID, sessionName string) (string, error) {
	payload := struct {
		SessionName string `json:"session_name"`
	}{SessionName: sessionName}
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/agents/"+url.PathEscape(agentID)+"/session", payload, nil, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// ListSessions implements Client.
func (c *HTTPClient) ListSessions(ctx context.Context, agentID string) ([]Session, error) {
	var out listResponse[Session]
	if err := c.do(ctx, http.MethodGet, "/v1/agents/"+url.PathEscape(agentID)+"/sessions", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

type turnPayload struct {
	Messages   []Message   `json:"messages"`
	Documents  []Document  `json:"documents,omitempty"`
	Toolgroups []Toolgroup `json:"toolgroups"`
	Stream     bool        `json:"stream"`
}

func turnPath(req TurnRequest) string {
	return "/v1/agents/" + url.PathEscape(req.AgentID) + "/session/" + url.PathEscape(req.SessionID) + "/turn"
}

// CreateTurn implements Client.
func (c *HTTPClient) CreateTurn(ctx context.Context, req TurnRequest) (*Turn, error) {
	payload := turnPayload{
		Messages:   req.Messages,
		Documents:  req.Documents,
		Toolgroups: req.Toolgroups,
		Stream:     false,
	}
	var out struct {
		Turn Turn `json:"turn"`
	}
	if err := c.do(ctx, http.MethodPost, turnPath(req), payload, req.ExtraHeaders, &out); err != nil {
		return nil, err
	}
	return &out.Turn, nil
}

// StreamTurn implements Client.
func (c *HTTPClient) StreamTurn(ctx context.Context, req TurnRequest) (*Stream, error) {
	payload := turnPayload{
		Messages:   req.Messages,
		Documents:  req.Documents,
		Toolgroups: req.Toolgroups,
		Stream:     true,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal turn payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+turnPath(req), bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq, req.ExtraHeaders)
	httpReq.Header.Set("Accept", "text/event-stream")

	// A client timeout would cut long streams short; the context bounds
	// this request instead.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return newStream(resp.Body), nil
}
