package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/golang-jwt/jwt/v5"

	"station-records/internal/httpx"
	"station-records/internal/observability"
)

// Principal is the authenticated caller as of the current request.
type Principal struct {
	ID    string
	Badge string
	Admin bool
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, principal)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalKey{}).(Principal)
	return principal, ok
}

// MemberLookup reads the caller's current personnel row.
type MemberLookup interface {
	FindByBadge(ctx context.Context, badge string) (Credential, error)
}

// Middleware accepts a token only while its badge is active and unlocked.
// Admin comes from the row, not from the token.
func Middleware(jwtSecret string, members MemberLookup, next http.Handler) http.Handler {
	secret := []byte(jwtSecret)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid authorization token")
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (any, error) {
			return secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if tokenType, _ := claims["typ"].(string); tokenType != "access" {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid token type")
			return
		}

		subject, _ := claims["sub"].(string)
		badge, _ := claims["badge"].(string)
		if subject == "" || badge == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid authorization token")
			return
		}

		member, err := members.FindByBadge(r.Context(), badge)
		if err != nil {
			if errors.Is(err, ErrCredentialNotFound) {
				httpx.WriteError(w, http.StatusUnauthorized, "invalid authorization token")
				return
			}
			sentry.CaptureException(err)
			httpx.WriteError(w, http.StatusInternalServerError, "failed to verify token")
			return
		}
		if member.ID != subject {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid authorization token")
			return
		}
		if !member.Active || member.Locked {
			httpx.WriteError(w, http.StatusUnauthorized, "account is not active")
			return
		}

		observability.AnnotateRequest(r.Context(), "badge", member.Badge)
		ctx := WithPrincipal(r.Context(), Principal{ID: member.ID, Badge: member.Badge, Admin: member.Admin})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin must run inside Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			httpx.WriteError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}
		if !principal.Admin {
			httpx.WriteError(w, http.StatusForbidden, "admin privileges required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
