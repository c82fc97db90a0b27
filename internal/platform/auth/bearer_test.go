package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireOperatorAcceptsValidToken(t *testing.T) {
	authenticator := NewStaticTokenAuthenticator("op-secret")

	var identity *Identity
	handler := authenticator.RequireOperator()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/reviews", nil)
	req.Header.Set("Authorization", "Bearer op-secret")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if identity == nil || !identity.HasRole(RoleAdmin) {
		t.Fatalf("expected admin identity on context, got %+v", identity)
	}
}

func TestRequireOperatorRejectsBadToken(t *testing.T) {
	authenticator := NewStaticTokenAuthenticator("op-secret")

	handler := authenticator.RequireOperator()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	cases := map[string]string{
		"wrong token":    "Bearer nope",
		"missing header": "",
		"not bearer":     "Basic b3Atc2VjcmV0",
	}
	for name, header := range cases {
		req := httptest.NewRequest(http.MethodGet, "/admin/reviews", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}

func TestRequireOperatorWithoutSecretRefusesService(t *testing.T) {
	authenticator := NewStaticTokenAuthenticator("")

	handler := authenticator.RequireOperator()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/reviews", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
