package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"geo-chat/internal/domain"
	"geo-chat/internal/observability"
	"geo-chat/internal/usecase"
)

const (
	StreamPath = "/api/stream"
	HealthPath = "/healthz"

	maxBodyBytes     = 1 << 20
	contentTypePlain = "text/plain; charset=utf-8"
)

// ChatUseCase validates a raw request and produces the completion text.
type ChatUseCase interface {
	Validate(raw []byte) (domain.OutboundRequest, error)
	Complete(ctx context.Context, req domain.OutboundRequest) (string, error)
}

// Transmitter paces completion text onto a writer.
type Transmitter interface {
	Transmit(ctx context.Context, w io.Writer, text string) (int, error)
}

// Handler serves the chat streaming contract over net/http and AWS Lambda
// Function URLs. It keeps no state between requests.
type Handler struct {
	chat ChatUseCase
	tx   Transmitter
}

func NewHandler(chat ChatUseCase, tx Transmitter) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if tx == nil {
		return nil, errors.New("handler: transmitter must not be nil")
	}
	return &Handler{chat: chat, tx: tx}, nil
}

// Routes returns the HTTP handler with all routes and middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(StreamPath, h.handleStream)
	mux.HandleFunc(HealthPath, handleHealth)
	return chainMiddlewares(mux, withRecover, withLogging, withCORS, withCorrelationID)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeText(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusBadRequest, fmt.Sprintf("request body exceeds %d bytes", maxBodyBytes))
			return
		}
		writeText(w, http.StatusBadRequest, "could not read request body")
		return
	}

	ctx := r.Context()
	text, err := h.answer(ctx, raw)
	if err != nil {
		status, msg := errorResponse(err)
		logFailure(ctx, err)
		writeText(w, status, msg)
		return
	}

	w.Header().Set("Content-Type", contentTypePlain)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	sent, err := h.tx.Transmit(ctx, w, text)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("stream aborted", "sent", sent, "err", err)
		return
	}
	observability.LoggerFromContext(ctx).Info("stream complete", "chars", sent)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeText(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeText(w, http.StatusOK, "ok")
}

// answer validates raw and, only when it is valid, calls the provider once.
func (h *Handler) answer(ctx context.Context, raw []byte) (string, error) {
	req, err := h.chat.Validate(raw)
	if err != nil {
		return "", err
	}
	return h.chat.Complete(ctx, req)
}

// errorResponse maps an error to a status code and a plain-text body.
func errorResponse(err error) (int, string) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, "internal error"
	}
	switch ucErr.Code {
	case usecase.ErrorMalformedInput, usecase.ErrorValidation:
		return http.StatusBadRequest, ucErr.Message()
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, ucErr.Message()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func logFailure(ctx context.Context, err error) {
	log := observability.LoggerFromContext(ctx)
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		switch ucErr.Code {
		case usecase.ErrorMalformedInput, usecase.ErrorValidation:
			log.Warn("request rejected", "code", ucErr.Code, "reason", ucErr.Reason)
			return
		case usecase.ErrorUpstream:
			log.Error("completion provider failed", "code", ucErr.Code, "err", ucErr.Err)
			return
		}
	}
	log.Error("request failed", "err", err)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", contentTypePlain)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}
