// Package app wires configuration into a ready Handler for the server and
// Lambda entry points.
package app

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"geo-chat/handler"
	"geo-chat/internal/config"
	"geo-chat/internal/integrations/openai"
	"geo-chat/internal/integrations/paramstore"
	"geo-chat/internal/stream"
	"geo-chat/internal/usecase"
)

// NewHandler resolves the provider credential and builds the handler. AWS
// configuration is only loaded when the key has to come from Parameter Store.
func NewHandler(ctx context.Context, cfg *config.Config) (*handler.Handler, error) {
	var getter openai.Getter
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("app: load AWS config: %w", err)
		}
		ssmClient, err := paramstore.NewFromConfig(awsCfg)
		if err != nil {
			return nil, fmt.Errorf("app: create SSM client: %w", err)
		}
		getter = ssmClient
	}
	return newHandler(ctx, cfg, getter)
}

func newHandler(ctx context.Context, cfg *config.Config, getter openai.Getter) (*handler.Handler, error) {
	apiKey, err := openai.ResolveAPIKey(ctx, cfg.OpenAIAPIKey, getter, cfg.ParamPrefix)
	if err != nil {
		return nil, fmt.Errorf("app: resolve API key: %w", err)
	}

	var opts []openai.Option
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	llm, err := openai.NewClient(apiKey, cfg.OpenAIModel, opts...)
	if err != nil {
		return nil, fmt.Errorf("app: create OpenAI client: %w", err)
	}

	chat, err := usecase.NewChatService(llm, cfg.MaxMessageLength, cfg.ProviderTimeout)
	if err != nil {
		return nil, fmt.Errorf("app: create chat service: %w", err)
	}
	tx, err := stream.NewTransmitter(cfg.StreamDelay, cfg.MaxStreamDuration)
	if err != nil {
		return nil, fmt.Errorf("app: create transmitter: %w", err)
	}
	return handler.NewHandler(chat, tx)
}
