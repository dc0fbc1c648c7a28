package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"geo-chat/internal/domain"
)

const defaultBaseURL = "https://api.openai.com/v1"

// tokenPayload is the expected JSON shape stored in SSM for the API token.
type tokenPayload struct {
	Token string `json:"token"`
}

type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// ProviderError describes a failed completion call. Message is the upstream
// error text when the provider returned one.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("openai: status %d: %s", e.StatusCode, e.describe())
	}
	return "openai: " + e.describe()
}

func (e *ProviderError) describe() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "request failed"
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func (e *ProviderError) HTTPStatusCode() int {
	return e.StatusCode
}

// ProviderMessage returns the upstream message, or "" when there is none.
func (e *ProviderError) ProviderMessage() string {
	return e.Message
}

// Client is a chat completion client for OpenAI-compatible APIs. It is built
// once at startup and is safe for concurrent use.
type Client struct {
	api        *goopenai.Client
	model      string
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client that completes with model using apiKey.
func NewClient(apiKey, model string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai: api key must not be empty")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("openai: model must not be empty")
	}
	c := &Client{
		model:      model,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = normalizeBaseURL(c.baseURL)
	if c.httpClient != nil {
		cfg.HTTPClient = c.httpClient
	}
	c.api = goopenai.NewClientWithConfig(cfg)
	return c, nil
}

// normalizeBaseURL makes sure the base URL ends in the /v1 API root.
func normalizeBaseURL(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}

// Complete sends one Chat Completions request and returns the text of the first
// choice. It never retries.
func (c *Client) Complete(ctx context.Context, messages []domain.ChatTurn) (string, error) {
	req := goopenai.ChatCompletionRequest{
		Model:    c.model,
		Messages: make([]goopenai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, goopenai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", toProviderError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Message: "no choices in response"}
	}
	return resp.Choices[0].Message.Content, nil
}

func toProviderError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		msg := ""
		if reqErr.HTTPStatusCode != 0 {
			msg = fmt.Sprintf("unexpected status %d", reqErr.HTTPStatusCode)
		}
		return &ProviderError{StatusCode: reqErr.HTTPStatusCode, Message: msg, Err: err}
	}
	return &ProviderError{Err: err}
}

// ResolveAPIKey returns apiKey when set. Otherwise it reads the JSON token
// document stored at {paramPrefix}/open-ai-token through getter.
func ResolveAPIKey(ctx context.Context, apiKey string, getter Getter, paramPrefix string) (string, error) {
	if key := strings.TrimSpace(apiKey); key != "" {
		return key, nil
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return "", errors.New("openai: no API key and no parameter prefix configured")
	}
	return fetchAPIKeyFromParamStore(ctx, getter, tokenParameterName(paramPrefix))
}

func tokenParameterName(paramPrefix string) string {
	return paramPrefix + "/open-ai-token"
}

// fetchAPIKeyFromParamStore reads the token document at name. Surrounding
// whitespace in the stored token is ignored.
func fetchAPIKeyFromParamStore(ctx context.Context, getter Getter, name string) (string, error) {
	if getter == nil {
		return "", fmt.Errorf("openai: no parameter store client to read %q", name)
	}

	raw, err := getter.GetParameter(ctx, name)
	if err != nil {
		return "", fmt.Errorf("openai: read API key parameter %q: %w", name, err)
	}
	var doc tokenPayload
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return "", fmt.Errorf("openai: parameter %q is not a JSON token document: %w", name, err)
	}
	key := strings.TrimSpace(doc.Token)
	if key == "" {
		return "", fmt.Errorf("openai: parameter %q holds an empty token", name)
	}
	return key, nil
}
