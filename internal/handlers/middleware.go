package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MemberIDHeader carries the authenticated member id. It is set by the
// upstream gateway after it has verified the member's credentials.
const MemberIDHeader = "X-Member-ID"

type memberIDKey struct{}

// RequireMember rejects requests without a valid member id with 401 and
// stores the id in the request context.
func RequireMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(MemberIDHeader))
		if raw == "" {
			sendErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Member identity is missing")
			return
		}
		memberID, err := uuid.Parse(raw)
		if err != nil || memberID == uuid.Nil {
			sendErrorResponse(w, http.StatusUnauthorized, "UNAUTHORIZED", "Member identity is invalid")
			return
		}

		ctx := context.WithValue(r.Context(), memberIDKey{}, memberID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MemberIDFromContext returns the member id stored by RequireMember.
func MemberIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	memberID, ok := ctx.Value(memberIDKey{}).(uuid.UUID)
	return memberID, ok
}

// RateLimit answers 429 once a member exceeds its token bucket.
// It must run after RequireMember.
func RateLimit(limiter *MemberLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			memberID, _ := MemberIDFromContext(r.Context())
			if !limiter.Allow(memberID.String(), time.Now()) {
				w.Header().Set("Retry-After", "1")
				sendErrorResponse(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
