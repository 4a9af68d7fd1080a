package dify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/nakt/dify-workflow-api-executor/internal/core/domain"
)

// apiError is the error body returned by the Dify API.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// ClassifyStatus maps an HTTP status code to an error kind.
func ClassifyStatus(status int) domain.ErrorKind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrorKindAuthentication
	case http.StatusBadRequest,
		http.StatusNotFound,
		http.StatusRequestEntityTooLarge,
		http.StatusUnsupportedMediaType,
		http.StatusUnprocessableEntity:
		return domain.ErrorKindValidation
	case http.StatusTooManyRequests:
		return domain.ErrorKindRateLimit
	default:
		return domain.ErrorKindAPI
	}
}

// classifyAPIError refines the status classification with the Dify error code.
func classifyAPIError(status int, body apiError) domain.ErrorKind {
	code := strings.ToLower(body.Code)
	switch {
	case code == "invalid_param":
		return domain.ErrorKindValidation
	case code == "unauthorized" || code == "invalid_api_key":
		return domain.ErrorKindAuthentication
	case strings.Contains(code, "quota") || strings.Contains(code, "rate_limit"):
		return domain.ErrorKindRateLimit
	}
	return ClassifyStatus(status)
}

// ClassifyError maps a transport-level error to an error kind.
func ClassifyError(err error) domain.ErrorKind {
	if err == nil {
		return domain.ErrorKindAPI // Should not happen
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorKindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ErrorKindTimeout
	}
	return domain.ErrorKindTransport
}
