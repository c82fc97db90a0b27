package auth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
)

const defaultWebhookSignatureHeader = "X-Webhook-Signature"

// Logger is the minimal logging surface used by the verification middleware.
type Logger interface {
	Printf(format string, args ...any)
}

// WebhookVerifier validates HMAC-SHA256 body signatures attached by trusted
// integrations (the fulfillment vendor signs the raw request body and sends
// the digest in a header).
type WebhookVerifier struct {
	secret []byte
	header string
	logger Logger
}

// WebhookOption customises the verifier.
type WebhookOption func(*WebhookVerifier)

// WithWebhookHeader overrides the signature header name.
func WithWebhookHeader(header string) WebhookOption {
	return func(v *WebhookVerifier) {
		if strings.TrimSpace(header) != "" {
			v.header = strings.TrimSpace(header)
		}
	}
}

// WithWebhookLogger overrides the verifier logger.
func WithWebhookLogger(logger Logger) WebhookOption {
	return func(v *WebhookVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewWebhookVerifier builds a verifier for the shared webhook secret. An empty
// secret disables verification so local environments can receive unsigned
// deliveries.
func NewWebhookVerifier(secret string, opts ...WebhookOption) *WebhookVerifier {
	verifier := &WebhookVerifier{
		secret: []byte(strings.TrimSpace(secret)),
		header: defaultWebhookSignatureHeader,
		logger: log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(verifier)
		}
	}
	return verifier
}

// RequireSignature verifies the body signature and restores the body for the
// next handler.
func (v *WebhookVerifier) RequireSignature() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil || len(v.secret) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			signatureValue := strings.TrimSpace(r.Header.Get(v.header))
			if signatureValue == "" {
				respondAuthError(w, http.StatusUnauthorized, "signature_missing", "signature header missing")
				return
			}

			signature, err := decodeSignature(signatureValue)
			if err != nil {
				respondAuthError(w, http.StatusUnauthorized, "signature_invalid", "signature encoding invalid")
				return
			}

			body, err := readAndRestoreBody(r)
			if err != nil {
				respondAuthError(w, http.StatusBadRequest, "invalid_body", "unable to read body for signature verification")
				return
			}

			expected := computeHMAC(v.secret, body)
			if !hmac.Equal(signature, expected) {
				if v.logger != nil {
					v.logger.Printf("auth: webhook signature mismatch on %s", r.URL.Path)
				}
				respondAuthError(w, http.StatusUnauthorized, "signature_mismatch", "signature verification failed")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func readAndRestoreBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	buf, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	r.Body = io.NopCloser(bytes.NewReader(buf))
	return buf, nil
}

func decodeSignature(value string) ([]byte, error) {
	value = strings.TrimPrefix(value, "sha256=")
	if value == "" {
		return nil, errors.New("auth: empty signature")
	}
	if decoded, err := hex.DecodeString(value); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, nil
	}
	return nil, errors.New("auth: signature must be hex or base64 encoded")
}

func computeHMAC(secret []byte, message []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(message)
	return mac.Sum(nil)
}
