package usecase

import (
	"context"
	"errors"
	"time"

	"geo-chat/internal/domain"
)

const (
	defaultProviderTimeout = 30 * time.Second
	genericProviderMessage = "completion provider error"
)

// LLMClient is the completion provider capability: given role-tagged messages it
// returns one text completion.
type LLMClient interface {
	Complete(ctx context.Context, messages []domain.ChatTurn) (string, error)
}

// providerMessager is implemented by provider errors that carry an upstream
// message fit to relay to the client.
type providerMessager interface {
	ProviderMessage() string
}

// ChatService validates chat requests and invokes the completion provider. It
// holds no per-request state and is safe for concurrent use.
type ChatService struct {
	llm             LLMClient
	maxMessageLen   int
	providerTimeout time.Duration
}

func NewChatService(llm LLMClient, maxMessageLen int, providerTimeout time.Duration) (*ChatService, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if maxMessageLen <= 0 {
		maxMessageLen = domain.DefaultMaxContentLength
	}
	if providerTimeout <= 0 {
		providerTimeout = defaultProviderTimeout
	}
	return &ChatService{
		llm:             llm,
		maxMessageLen:   maxMessageLen,
		providerTimeout: providerTimeout,
	}, nil
}

// Validate decodes and checks a raw request body. See ValidateRequest.
func (s *ChatService) Validate(raw []byte) (domain.OutboundRequest, error) {
	return ValidateRequest(raw, s.maxMessageLen)
}

// Complete makes exactly one provider call for req and returns the completion
// text. Provider failures are reported as ErrorUpstream and never retried.
func (s *ChatService) Complete(ctx context.Context, req domain.OutboundRequest) (string, error) {
	messages := buildPromptMessages(BuildPrompt(req.Mode, req.Prefs), req.History, req.Message)

	ctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	text, err := s.llm.Complete(ctx, messages)
	if err != nil {
		ucErr := newError(ErrorUpstream, "provider_error", err)
		ucErr.Detail = providerMessage(err)
		return "", ucErr
	}
	return text, nil
}

func providerMessage(err error) string {
	var pm providerMessager
	if errors.As(err, &pm) && pm.ProviderMessage() != "" {
		return pm.ProviderMessage()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "completion provider timed out"
	}
	return genericProviderMessage
}
