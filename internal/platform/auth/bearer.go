package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// StaticTokenAuthenticator guards the operator surface with a shared bearer
// secret. Tokens are compared as SHA-256 digests so the comparison stays
// constant time regardless of length.
type StaticTokenAuthenticator struct {
	digest  [sha256.Size]byte
	enabled bool
}

// NewStaticTokenAuthenticator builds an authenticator for the given secret.
// An empty secret yields a disabled authenticator that rejects every request.
func NewStaticTokenAuthenticator(secret string) *StaticTokenAuthenticator {
	secret = strings.TrimSpace(secret)
	a := &StaticTokenAuthenticator{}
	if secret != "" {
		a.digest = sha256.Sum256([]byte(secret))
		a.enabled = true
	}
	return a
}

// RequireOperator enforces the bearer secret and stores the operator identity
// on the request context.
func (a *StaticTokenAuthenticator) RequireOperator() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a == nil || !a.enabled {
				respondAuthError(w, http.StatusServiceUnavailable, "verification_unavailable", "operator credential not configured")
				return
			}

			token, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			}

			presented := sha256.Sum256([]byte(token))
			if subtle.ConstantTimeCompare(presented[:], a.digest[:]) != 1 {
				respondAuthError(w, http.StatusUnauthorized, "invalid_token", "operator credential rejected")
				return
			}

			identity := &Identity{
				Subject: RoleOperator,
				Roles:   []string{RoleOperator, RoleAdmin},
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}

	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   code,
		"message": message,
		"status":  status,
	})
}
