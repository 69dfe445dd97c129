package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"bilancio/internal/notify"
)

// ResponseBuilder provides a fluent API for building JSON responses. It
// encapsulates the envelope format shared by every endpoint: a data payload
// plus an optional notice for the UI toast layer.
type ResponseBuilder struct {
	statusCode int
	data       any
	errMsg     string
	notice     *notify.Notice
	headers    map[string]string
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Data sets the payload under the "data" envelope key.
func (b *ResponseBuilder) Data(data any) *ResponseBuilder {
	b.data = data
	return b
}

// Notice attaches a UI notice to the envelope.
func (b *ResponseBuilder) Notice(n notify.Notice) *ResponseBuilder {
	b.notice = &n
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

type envelope struct {
	Data   any     `json:"data,omitempty"`
	Error  string  `json:"error,omitempty"`
	Notice *notice `json:"notice,omitempty"`
}

type notice struct {
	Level      string `json:"level"`
	Message    string `json:"message"`
	DurationMs int64  `json:"durationMs"`
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	env := envelope{Data: b.data, Error: b.errMsg}
	if b.notice != nil {
		env.Notice = &notice{
			Level:      string(b.notice.Level),
			Message:    b.notice.Message,
			DurationMs: b.notice.Duration.Milliseconds(),
		}
	}

	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// ErrorResponse creates an error envelope with a matching UI notice.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	b := NewResponse().Status(statusCode).Notice(notify.Error(message))
	b.errMsg = message
	return b
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}
