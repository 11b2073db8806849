package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/nowplaying/internal/shared"
)

type codeSpy struct {
	mu    sync.Mutex
	codes []string
	err   error
	got   chan string
}

func newCodeSpy() *codeSpy {
	return &codeSpy{got: make(chan string, 4)}
}

func (c *codeSpy) HandleCode(ctx context.Context, code string) error {
	c.mu.Lock()
	c.codes = append(c.codes, code)
	c.mu.Unlock()
	c.got <- code
	return c.err
}

func (c *codeSpy) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.codes)
}

func (c *codeSpy) wait(t *testing.T) string {
	t.Helper()
	select {
	case code := <-c.got:
		return code
	case <-time.After(2 * time.Second):
		t.Fatal("code was not handed off")
		return ""
	}
}

func TestExtractCode(t *testing.T) {
	tc := []struct {
		name  string
		query string
		want  string
	}{
		{name: "code param", query: "code=abc123", want: "abc123"},
		{name: "code with state", query: "code=abc123&state=xyz", want: "abc123"},
		{name: "code not first", query: "state=xyz&code=abc123", want: "abc123"},
		{name: "escaped code", query: "code=a%2Fb", want: "a/b"},
		{name: "legacy key", query: "token=abc123", want: "abc123"},
		{name: "no equals", query: "abc123", want: ""},
		{name: "empty", query: "", want: ""},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractCode(tt.query); got != tt.want {
				t.Errorf("ExtractCode(%q) = %q, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestCallbackHandler(t *testing.T) {
	logger := shared.NewLogger(io.Discard)

	t.Run("Hands Off Code", func(t *testing.T) {
		codes := newCodeSpy()
		router := NewCallbackRouter(codes, "/callback", logger)

		req := httptest.NewRequest(http.MethodGet, "/callback?code=abc123", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", w.Code)
		}
		if w.Body.String() != "success!" {
			t.Errorf("expected body success!, got %q", w.Body.String())
		}
		if got := codes.wait(t); got != "abc123" {
			t.Errorf("expected abc123, got %s", got)
		}
	})

	t.Run("Exchange Failure Still Succeeds", func(t *testing.T) {
		codes := newCodeSpy()
		codes.err = shared.ErrAuthFailed
		router := NewCallbackRouter(codes, "/callback", logger)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/callback?code=bad", nil))

		if w.Code != http.StatusOK || w.Body.String() != "success!" {
			t.Errorf("expected 200 success!, got %d %q", w.Code, w.Body.String())
		}
		codes.wait(t)
	})

	t.Run("Provider Error", func(t *testing.T) {
		var logs bytes.Buffer
		codes := newCodeSpy()
		router := NewCallbackRouter(codes, "/callback", shared.NewLogger(&logs))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/callback?error=access_denied", nil))

		if w.Code != http.StatusOK || w.Body.String() != "success!" {
			t.Errorf("expected 200 success!, got %d %q", w.Code, w.Body.String())
		}
		if codes.count() != 0 {
			t.Error("provider errors must not be exchanged")
		}
		if !strings.Contains(logs.String(), "access_denied") {
			t.Errorf("expected denial to be logged, got %q", logs.String())
		}
	})

	t.Run("Method Not Allowed", func(t *testing.T) {
		codes := newCodeSpy()
		router := NewCallbackRouter(codes, "/callback", logger)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/callback?code=abc123", nil))

		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status 405, got %d", w.Code)
		}
		if w.Header().Get("Allow") != http.MethodGet {
			t.Errorf("expected Allow: GET, got %q", w.Header().Get("Allow"))
		}
		if codes.count() != 0 {
			t.Error("code must not be handed off for POST")
		}
	})

	t.Run("Unknown Path", func(t *testing.T) {
		router := NewCallbackRouter(newCodeSpy(), "/callback", logger)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/other", nil))

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", w.Code)
		}
	})
}

func TestRequestLogger(t *testing.T) {
	var logs bytes.Buffer
	logger := shared.NewLogger(&logs)

	var inner string
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if LoggerFrom(r.Context(), nil) == nil {
			t.Error("expected request-scoped logger")
		}
		inner = w.Header().Get(RequestIDHeader)
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/callback", nil))

	id := w.Header().Get(RequestIDHeader)
	if len(id) != 36 {
		t.Errorf("expected uuid request id, got %q", id)
	}
	if inner != id {
		t.Errorf("expected handler to see request id %q, got %q", id, inner)
	}
	for _, want := range []string{id, "418", "/callback"} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("expected %q in logs, got %q", want, logs.String())
		}
	}

	t.Run("Unique Per Request", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/callback", nil))
		if next := w.Header().Get(RequestIDHeader); next == id || len(next) != 36 {
			t.Errorf("expected a fresh uuid, got %q after %q", next, id)
		}
	})

	t.Run("Fallback", func(t *testing.T) {
		if LoggerFrom(context.Background(), logger) != logger {
			t.Error("expected fallback logger outside middleware")
		}
	})
}

func TestRouterMiddlewareOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	router := NewBasicRouter()
	router.Use(mark("first"), mark("second"))
	router.Handle(http.MethodGet, "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if strings.Join(order, ",") != "first,second,handler" {
		t.Errorf("unexpected middleware order %v", order)
	}
}

func TestListener(t *testing.T) {
	logger := shared.NewLogger(io.Discard)

	t.Run("Serves Callback", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		codes := newCodeSpy()
		l := NewListener(NewCallbackRouter(codes, "/callback", logger), logger)
		errs := l.Start(ctx, "127.0.0.1:0")

		resp, err := http.Get("http://" + l.Addr().String() + "/callback?code=abc123")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK || string(body) != "success!" {
			t.Errorf("expected 200 success!, got %d %q", resp.StatusCode, body)
		}
		if got := codes.wait(t); got != "abc123" {
			t.Errorf("expected abc123, got %s", got)
		}

		cancel()
		select {
		case err, ok := <-errs:
			if ok && err != nil {
				t.Errorf("expected clean shutdown, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("listener did not stop")
		}
	})

	t.Run("Address In Use", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("failed to reserve port: %v", err)
		}
		defer ln.Close()

		l := NewListener(http.NotFoundHandler(), logger)
		err = <-l.Start(context.Background(), ln.Addr().String())
		if err == nil {
			t.Fatal("expected bind error")
		}
		var opErr *net.OpError
		if !errors.As(err, &opErr) {
			t.Errorf("expected *net.OpError in chain, got %T", err)
		}
	})

	t.Run("Shutdown Before Start", func(t *testing.T) {
		l := NewListener(http.NotFoundHandler(), logger)
		if err := l.Shutdown(context.Background()); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})
}
