package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"github.com/damstudio/backend/internal/models"
	"go.uber.org/zap"
)

const actorKey contextKey = "actor"

// TokenValidator verifies an access token and returns the identity it was issued to
type TokenValidator interface {
	ValidateAccessToken(token string) (int64, error)
}

// ActorResolver builds the Actor of an authenticated identity
type ActorResolver interface {
	ResolveActor(ctx context.Context, userID int64) (models.Actor, error)
}

// AuthMiddleware validates the JWT access token, resolves the caller's role and stores the Actor in context
func AuthMiddleware(validator TokenValidator, resolver ActorResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return authenticate(validator, resolver, logger, true)
}

// OptionalAuthMiddleware behaves like AuthMiddleware but lets requests without a token through anonymously.
// A token that is present but invalid is still rejected.
func OptionalAuthMiddleware(validator TokenValidator, resolver ActorResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return authenticate(validator, resolver, logger, false)
}

func authenticate(validator TokenValidator, resolver ActorResolver, logger *zap.Logger, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				if required {
					writeError(w, http.StatusUnauthorized, "authentication required")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			userID, err := validator.ValidateAccessToken(token)
			if err != nil {
				logger.Debug("rejected access token", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			actor, err := resolver.ResolveActor(r.Context(), userID)
			if err != nil {
				logger.Error("failed to resolve actor",
					zap.String("request_id", GetRequestID(r.Context())),
					zap.Int64("user_id", userID),
					zap.Error(err),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			ctx := WithActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken reads the token from the Authorization header or the access_token cookie
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		// Expected format: "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}

	cookie, err := r.Cookie("access_token")
	if err == nil {
		return cookie.Value
	}
	return ""
}

// GetActor retrieves the authenticated Actor from context
func GetActor(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(models.Actor)
	return actor, ok
}

// WithActor returns a copy of ctx carrying actor
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ClientFingerprint identifies an anonymous client by its address and user agent
func ClientFingerprint(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	sum := sha256.Sum256([]byte(host + "|" + r.UserAgent()))
	return hex.EncodeToString(sum[:16])
}
