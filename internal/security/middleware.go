package security

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dosdebug/broker/internal/logging"
)

// claimsContextKey is the context key under which RequireAuth stores the
// validated claims for downstream handlers.
type claimsContextKey struct{}

// AuthMiddleware gates net/http handlers behind a bearer JWT, checked
// against a single JWTHandler. It replaces the teacher's JSON-RPC
// method-decorator chain (AuthMiddleware/RBACMiddleware/
// SecureMethodRegistry) with the plain http.Handler wrapping this
// broker's management API actually needs: every gated endpoint requires
// exactly one role, "operator", so there is nothing left to arbitrate.
type AuthMiddleware struct {
	jwt    *JWTHandler
	logger *logging.Logger
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(jwt *JWTHandler, logger *logging.Logger) *AuthMiddleware {
	if logger == nil {
		logger = logging.GetLogger("security-middleware")
	}
	return &AuthMiddleware{jwt: jwt, logger: logger}
}

// RequireAuth wraps an http.Handler so it only runs for requests bearing
// a valid "Authorization: Bearer <token>" header. On failure it writes a
// JSON error body matching the broker's error envelope.
func (am *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			am.deny(w, r, "missing bearer token")
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
		claims, err := am.jwt.ValidateToken(token)
		if err != nil {
			am.logger.WithFields(logging.Fields{
				"path":  r.URL.Path,
				"error": err.Error(),
			}).Warn("rejected management request")
			am.deny(w, r, "invalid or expired token")
			return
		}

		am.logger.WithFields(logging.Fields{
			"path":    r.URL.Path,
			"subject": claims.Subject,
		}).Debug("authenticated management request")

		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (am *AuthMiddleware) deny(w http.ResponseWriter, r *http.Request, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"kind":    "ArgumentError",
			"message": reason,
		},
	})
}

// ClaimsFromContext returns the claims stashed by RequireAuth, if any.
func ClaimsFromContext(ctx context.Context) (*JWTClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*JWTClaims)
	return claims, ok
}
