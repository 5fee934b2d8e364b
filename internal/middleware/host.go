package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	apperrors "github.com/quizblitz/live-server/internal/errors"
	"github.com/quizblitz/live-server/internal/util"
)

// HostIDHeader carries the authenticated host id set by the upstream gateway.
const HostIDHeader = "X-Host-Id"

const maxHostIDLength = 128

type contextKey string

const HostIDContextKey contextKey = "hostId"

func GetHostID(ctx context.Context) string {
	if hostID, ok := ctx.Value(HostIDContextKey).(string); ok {
		return hostID
	}
	return ""
}

// WithHostID returns a copy of ctx carrying hostID.
func WithHostID(ctx context.Context, hostID string) context.Context {
	return context.WithValue(ctx, HostIDContextKey, hostID)
}

// HostIdentity rejects requests without a host id header.
func HostIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hostID := strings.TrimSpace(r.Header.Get(HostIDHeader))
		if hostID == "" {
			writeError(w, apperrors.Unauthorized("Missing host identity"))
			return
		}
		if len(hostID) > maxHostIDLength || util.ContainsControlChars(hostID) {
			log.Warn().Str("path", r.URL.Path).Msg("malformed host identity header")
			writeError(w, apperrors.Unauthorized("Invalid host identity"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithHostID(r.Context(), hostID)))
	})
}
