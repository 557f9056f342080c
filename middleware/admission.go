package middleware

import (
	"net/http"
	"sync/atomic"
)

// AdmissionGate caps the number of requests concurrently inside the dispatch
// layer. Requests beyond the ceiling are rejected immediately with 503; the
// client is expected to retry.
type AdmissionGate struct {
	tokens chan struct{}
	active atomic.Int64
	max    int
}

func NewAdmissionGate(maxConcurrent int) *AdmissionGate {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &AdmissionGate{
		tokens: make(chan struct{}, maxConcurrent),
		max:    maxConcurrent,
	}
}

// Active returns the number of requests currently between admission and
// completion. Never exceeds Max.
func (g *AdmissionGate) Active() int64 {
	return g.active.Load()
}

func (g *AdmissionGate) Max() int {
	return g.max
}

// Middleware admits or rejects the request. The token is released through a
// defer so exactly one release happens per admitted request on every exit
// path, including panics and timeouts.
func (g *AdmissionGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case g.tokens <- struct{}{}:
			g.active.Add(1)
			defer func() {
				g.active.Add(-1)
				<-g.tokens
			}()
			next.ServeHTTP(w, r)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server busy"}`))
		}
	})
}
