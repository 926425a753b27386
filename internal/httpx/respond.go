// Package httpx holds the JSON request/response helpers shared by every
// HTTP handler.
package httpx

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"libraryhub/internal/errs"
	"libraryhub/internal/logging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	maxBodyBytes = 1 << 20

	// InternalMessage replaces the text of server-side failures.
	InternalMessage = "internal server error"
)

type loggerKey struct{}

// WithLogger makes logger available to Error for every request.
func WithLogger(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), loggerKey{}, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func loggerFrom(ctx context.Context) logging.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(logging.Logger); ok {
		return logger
	}
	return logging.Discard()
}

// ErrorBody is the payload written for every failed request.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// MessageBody acknowledges operations without a resource to return.
type MessageBody struct {
	Message string `json:"message"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes err with the status matching its kind. Server-side
// failures are logged and answered with a generic message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		loggerFrom(r.Context()).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err.Error(),
		)
		message = InternalMessage
	}

	JSON(w, status, ErrorBody{
		Error:   errs.CodeOf(err),
		Message: message,
	})
}

// StatusOf maps an error kind to an HTTP status code.
func StatusOf(err error) int {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindPolicy:
		return http.StatusUnprocessableEntity
	case errs.KindUnauthenticated:
		return http.StatusUnauthorized
	case errs.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Decode reads a JSON body into v. Malformed bodies are validation errors.
func Decode(r *http.Request, v any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errs.Invalid("request body is empty")
		}
		return errs.Invalid("malformed request body: %v", err)
	}
	return nil
}

// IDParam parses the {id} route parameter.
func IDParam(r *http.Request) (uuid.UUID, error) {
	return ParseID(chi.URLParam(r, "id"), "id")
}

// ParseID parses a UUID named field, returning a validation error on
// failure.
func ParseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errs.Invalid("invalid %s %q", field, raw)
	}
	return id, nil
}
