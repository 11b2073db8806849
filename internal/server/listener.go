package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Listener runs the local HTTP server that receives the OAuth redirect.
type Listener struct {
	handler http.Handler
	logger  *log.Logger

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
}

// NewListener creates a listener serving handler.
func NewListener(handler http.Handler, logger *log.Logger) *Listener {
	return &Listener{handler: handler, logger: logger}
}

// Start binds addr and serves in the background.
//
// The returned channel yields at most one error (bind or serve failure) and is closed when
// the server stops. Cancelling ctx shuts the server down.
func (l *Listener) Start(ctx context.Context, addr string) <-chan error {
	errs := make(chan error, 1)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		errs <- fmt.Errorf("listen on %s: %w", addr, err)
		close(errs)
		return errs
	}

	srv := &http.Server{
		Handler:           l.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	l.mu.Lock()
	l.server = srv
	l.addr = ln.Addr()
	l.mu.Unlock()

	l.logger.Info("listening for authorization callback", "addr", ln.Addr().String())

	go func() {
		defer close(errs)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		l.Shutdown(shutdownCtx)
	}()

	return errs
}

// Addr returns the bound address, or nil before [Listener.Start].
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr
}

// Shutdown stops accepting requests and waits for active ones until ctx expires.
func (l *Listener) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	srv := l.server
	l.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// NewCallbackRouter wires the callback handler behind the request logging middleware.
func NewCallbackRouter(codes CodeHandler, path string, logger *log.Logger) *BasicRouter {
	router := NewBasicRouter()
	router.Use(RequestLogger(logger))
	router.Handler(NewCallbackHandler(codes, path, logger))
	return router
}
