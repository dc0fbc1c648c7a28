package handler

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"geo-chat/internal/observability"
	"geo-chat/internal/stream"
)

// HandleFunctionURL serves the streaming contract behind an AWS Lambda
// Function URL configured with the RESPONSE_STREAM invoke mode. The completion
// is piped through the transmitter so the runtime forwards each paced
// character as it is produced.
func (h *Handler) HandleFunctionURL(ctx context.Context, req events.LambdaFunctionURLRequest) (*events.LambdaFunctionURLStreamingResponse, error) {
	id := correlationID(headerValue(req.Headers, correlationHeader))
	ctx = observability.WithCorrelationID(ctx, id)
	headers := map[string]string{
		correlationHeader:             id,
		"Access-Control-Allow-Origin": "*",
	}

	switch req.RequestContext.HTTP.Method {
	case http.MethodPost:
	case http.MethodOptions:
		headers["Access-Control-Allow-Methods"] = "POST, OPTIONS"
		headers["Access-Control-Allow-Headers"] = "Content-Type, " + correlationHeader
		return textResponse(http.StatusNoContent, headers, ""), nil
	default:
		headers["Allow"] = http.MethodPost
		return textResponse(http.StatusMethodNotAllowed, headers, "method not allowed"), nil
	}

	raw := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return textResponse(http.StatusBadRequest, headers, "request body is not valid base64"), nil
		}
		raw = decoded
	}
	if len(raw) > maxBodyBytes {
		return textResponse(http.StatusBadRequest, headers, "request body too large"), nil
	}

	text, err := h.answer(ctx, raw)
	if err != nil {
		status, msg := errorResponse(err)
		logFailure(ctx, err)
		return textResponse(status, headers, msg), nil
	}

	headers["Content-Type"] = contentTypePlain
	headers["Cache-Control"] = "no-cache"
	return &events.LambdaFunctionURLStreamingResponse{
		StatusCode: http.StatusOK,
		Headers:    headers,
		Body:       stream.Pipe(ctx, h.tx, text),
	}, nil
}

func textResponse(status int, headers map[string]string, body string) *events.LambdaFunctionURLStreamingResponse {
	headers["Content-Type"] = contentTypePlain
	return &events.LambdaFunctionURLStreamingResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       strings.NewReader(body),
	}
}

// headerValue looks a header up case-insensitively; Function URL events carry
// lower-cased keys.
func headerValue(headers map[string]string, key string) string {
	for k, v := range headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
