package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
)

// CallbackBody is the fixed response to every callback request.
const CallbackBody = "success!"

// CodeHandler receives authorization codes (implemented by tasks.Session).
type CodeHandler interface {
	HandleCode(ctx context.Context, code string) error
}

// CallbackHandler serves the OAuth redirect URI.
//
// The code is handed off in a goroutine and the browser always gets 200 with [CallbackBody];
// the outcome of the exchange is only visible in the logs.
type CallbackHandler struct {
	codes  CodeHandler
	logger *log.Logger
	path   string
}

// NewCallbackHandler creates a handler for path, usually "/callback".
func NewCallbackHandler(codes CodeHandler, path string, logger *log.Logger) *CallbackHandler {
	if path == "" {
		path = "/callback"
	}
	return &CallbackHandler{codes: codes, logger: logger, path: path}
}

func (h *CallbackHandler) Routes() []Route {
	return []Route{{Method: http.MethodGet, Path: h.path}}
}

func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFrom(r.Context(), h.logger)
	query := r.URL.Query()

	if reason := query.Get("error"); reason != "" {
		logger.Warn("authorization denied", "error", reason, "description", query.Get("error_description"))
	} else if code := ExtractCode(r.URL.RawQuery); code == "" {
		logger.Warn("callback without authorization code")
	} else {
		ctx := context.WithoutCancel(r.Context())
		go func() {
			if err := h.codes.HandleCode(ctx, code); err != nil {
				logger.Debug("callback code rejected", "error", err)
			}
		}()
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(CallbackBody))
}

// ExtractCode returns the "code" query parameter. Queries without one fall back to
// everything after the first '=', which is how older redirect URIs were parsed.
func ExtractCode(rawQuery string) string {
	if values, err := url.ParseQuery(rawQuery); err == nil {
		if code := values.Get("code"); code != "" {
			return code
		}
	}

	_, value, found := strings.Cut(rawQuery, "=")
	if !found {
		return ""
	}
	if unescaped, err := url.QueryUnescape(value); err == nil {
		return unescaped
	}
	return value
}
