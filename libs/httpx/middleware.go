package httpx

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"
)

type Middleware func(http.Handler) http.Handler

// Chain wraps h so that m[0] is the outermost middleware.
func Chain(h http.Handler, m ...Middleware) http.Handler {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func WithBodyLimit(limitBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limitBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithTimeout puts a deadline on the request context. Handlers observe it through
// ctx; when one gives up without writing, the client gets a 503.
func WithTimeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			gw := &guardedWriter{ResponseWriter: w}
			next.ServeHTTP(gw, r.WithContext(ctx))
			if !gw.written() && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				WriteError(gw, http.StatusServiceUnavailable, "request timed out")
			}
		})
	}
}

type guardedWriter struct {
	http.ResponseWriter
	mu    sync.Mutex
	wrote bool
}

func (w *guardedWriter) WriteHeader(code int) {
	w.mu.Lock()
	w.wrote = true
	w.mu.Unlock()
	w.ResponseWriter.WriteHeader(code)
}

func (w *guardedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.wrote = true
	w.mu.Unlock()
	return w.ResponseWriter.Write(p)
}

func (w *guardedWriter) written() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.wrote
}
