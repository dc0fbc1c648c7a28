package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"geo-chat/internal/app"
	"geo-chat/internal/config"
	"geo-chat/internal/observability"
)

func main() {
	ctx := context.Background()
	log := observability.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	h, err := app.NewHandler(ctx, cfg)
	if err != nil {
		log.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.HandleFunctionURL)
}
