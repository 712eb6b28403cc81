package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/computebaker/tekir-quota/internal/util"
)

const hashedIPContextKey contextKey = "hashedIp"

// HashedIP returns the keyed hash of the caller's network address, or nil
// when no address could be determined.
func HashedIP(ctx context.Context) *string {
	if h, ok := ctx.Value(hashedIPContextKey).(string); ok && h != "" {
		return &h
	}
	return nil
}

// WithHashedIP is used by tests to inject a fingerprint.
func WithHashedIP(ctx context.Context, hashedIP string) context.Context {
	return context.WithValue(ctx, hashedIPContextKey, hashedIP)
}

// FingerprintMiddleware hashes the client address before anything else sees
// it; the raw IP never reaches the session store. Expects chi's RealIP
// middleware to have normalized RemoteAddr.
type FingerprintMiddleware struct {
	salt string
}

func NewFingerprintMiddleware(salt string) *FingerprintMiddleware {
	return &FingerprintMiddleware{salt: salt}
}

func (m *FingerprintMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		if ip == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := context.WithValue(r.Context(), hashedIPContextKey, util.HashIP(m.salt, ip))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
