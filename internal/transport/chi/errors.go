package chi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/flagsearch/internal/domain"
)

// ErrorCode is the machine-readable code of an error response.
type ErrorCode string

// Error codes returned in ErrorResponse.Code.
const (
	ErrorCodeBadRequest         ErrorCode = "bad_request"
	ErrorCodeValidationFailed   ErrorCode = "validation_failed"
	ErrorCodeUnauthorized       ErrorCode = "unauthorized"
	ErrorCodeVectorDimMismatch  ErrorCode = "vector_dim_mismatch"
	ErrorCodeFlagNotFound       ErrorCode = "flag_not_found"
	ErrorCodeNotFound           ErrorCode = "not_found"
	ErrorCodeMethodNotAllowed   ErrorCode = "method_not_allowed"
	ErrorCodeEmptyCorpus        ErrorCode = "empty_corpus"
	ErrorCodePayloadTooLarge    ErrorCode = "payload_too_large"
	ErrorCodeEncoderUnavailable ErrorCode = "encoder_unavailable"
	ErrorCodeEncoderError       ErrorCode = "encoder_error"
	ErrorCodeInternalError      ErrorCode = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		dimMismatchHandler,
		sentinelHandler(domain.ErrInvalidTopK, http.StatusBadRequest, ErrorCodeValidationFailed),
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, ErrorCodeValidationFailed),
		sentinelHandler(domain.ErrIndexOutOfRange, http.StatusNotFound, ErrorCodeFlagNotFound),
		sentinelHandler(domain.ErrEmptyCorpus, http.StatusConflict, ErrorCodeEmptyCorpus),
		sentinelHandler(domain.ErrEncoderUnavailable, http.StatusNotImplemented, ErrorCodeEncoderUnavailable),
		sentinelHandler(domain.ErrEncoderFailure, http.StatusBadGateway, ErrorCodeEncoderError),
	}
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidTopK,
		domain.ErrInvalidQuery,
		domain.ErrIndexOutOfRange,
		domain.ErrEmptyCorpus,
		domain.ErrEncoderUnavailable,
		domain.ErrEncoderFailure,
		domain.ErrVectorDimMismatch,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// dimMismatchHandler reports both dimensions; they are the only detail a client needs to fix the request.
func dimMismatchHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrVectorDimMismatch) {
		return false
	}
	var dme *domain.DimensionMismatchError
	if errors.As(err, &dme) {
		msg = dme.Error()
	}
	writeError(w, http.StatusBadRequest, ErrorCodeVectorDimMismatch, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
