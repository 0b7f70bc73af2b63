package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/farmbid-backend/api/responses"
	pkgAuth "github.com/angelmondragon/farmbid-backend/pkg/auth"
	"github.com/angelmondragon/farmbid-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/farmbid-backend/pkg/errors"
	"github.com/angelmondragon/farmbid-backend/pkg/logger"
)

// Auth verifies the caller's bearer token and stores their id and role on
// the request context.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, rejectToken(err))
				return
			}
			// ParseAccessToken already vetted the role.
			role, _ := claims.MarketRole()

			ctx := WithIdentity(r.Context(), claims.UserID, role)
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
				ctx = logg.WithActorRole(ctx, string(role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rejectToken(err error) error {
	switch {
	case errors.Is(err, pkgAuth.ErrTokenExpired):
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "token expired")
	case errors.Is(err, pkgAuth.ErrTokenIdentity):
		return pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "token is not valid for this marketplace")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
}

// bearerToken reads the Authorization header. Browsers cannot set headers on
// a WebSocket upgrade, so the access_token query parameter is accepted too.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return header
}
