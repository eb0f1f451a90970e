package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/placebook/placebook/internal/pkg/httputil"
	"github.com/placebook/placebook/internal/pkg/logger"
)

type ctxKey struct{}

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFrom returns the principal stored by Require, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok && p.UserID != ""
}

// Require rejects requests without a valid bearer token with 401. CORS
// preflight requests pass through untouched.
func (t *Tokens) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := t.Verify(bearerToken(r))
		if err != nil {
			logger.Debug("authentication failed", "path", r.URL.Path, "error", err)
			httputil.Error(w, http.StatusUnauthorized, "Unauthenticated", "Authentication failed!")
			return
		}

		ctx := WithPrincipal(r.Context(), Principal{UserID: claims.UserID, Email: claims.Email})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
