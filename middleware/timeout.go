package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Timeout enforces a wall-clock deadline per request. The handler runs on
// its own goroutine with a deadline context; if it has not committed a
// response when the deadline fires, a 503 timeout response is written and
// any later writes from the handler are discarded. Exactly one response
// reaches the client either way.
//
// The deadline context does propagate to downstream calls, so database and
// provider requests issued with the request context are cancelled when the
// governor fires. Work started on a detached context (the background spoiler
// classifier) is unaffected and may complete after the client saw 503.
func Timeout(d time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			r = r.WithContext(ctx)

			tw := &timeoutWriter{w: w, header: make(http.Header)}
			done := make(chan struct{})
			panicChan := make(chan any, 1)
			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicChan <- p
					}
				}()
				next.ServeHTTP(tw, r)
				close(done)
			}()

			select {
			case p := <-panicChan:
				panic(p)
			case <-done:
				// Disarmed: the handler's response (or lack of one) stands.
			case <-ctx.Done():
				tw.fire()
			}
		})
	}
}

// timeoutWriter is the governor's single-response guard. State machine:
// armed -> disarmed (handler finished) | fired (timeout response sent).
// Whichever transition happens first wins; the loser becomes a no-op.
type timeoutWriter struct {
	w      http.ResponseWriter
	header http.Header

	mu          sync.Mutex
	wroteHeader bool
	timedOut    bool
}

func (tw *timeoutWriter) Header() http.Header { return tw.header }

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.wroteHeader || tw.timedOut {
		return
	}
	tw.writeHeaderLocked(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	if !tw.wroteHeader {
		tw.writeHeaderLocked(http.StatusOK)
	}
	return tw.w.Write(b)
}

func (tw *timeoutWriter) writeHeaderLocked(code int) {
	dst := tw.w.Header()
	for k, v := range tw.header {
		dst[k] = v
	}
	tw.w.WriteHeader(code)
	tw.wroteHeader = true
}

// fire writes the timeout response unless the handler already committed
// headers, then suppresses all further handler writes.
func (tw *timeoutWriter) fire() {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if !tw.wroteHeader {
		tw.w.Header().Set("Content-Type", "application/json")
		tw.w.WriteHeader(http.StatusServiceUnavailable)
		tw.w.Write([]byte(`{"error":"request timeout"}`))
		tw.wroteHeader = true
	}
	tw.timedOut = true
}
