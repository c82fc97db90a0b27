package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type stubMailer struct {
	sendFunc func(ctx context.Context, msg Message) (string, error)
	sent     []Message
}

func (s *stubMailer) Send(ctx context.Context, msg Message) (string, error) {
	s.sent = append(s.sent, msg)
	if s.sendFunc != nil {
		return s.sendFunc(ctx, msg)
	}
	return "msg-1", nil
}

func newTestDispatcher(t *testing.T, mailer *stubMailer) *Dispatcher {
	t.Helper()
	dispatcher, err := NewDispatcher(DispatcherConfig{
		Mailer:      mailer,
		FromAddress: "hello@updates.pawtrait.example",
		FromName:    "Pawtrait Studio",
		ReplyTo:     "hello@pawtrait.example",
		AdminEmail:  "ops@pawtrait.example",
	})
	if err != nil {
		t.Fatalf("NewDispatcher returned error: %v", err)
	}
	return dispatcher
}

func TestArtworkCompletedRendersCustomerEmail(t *testing.T) {
	mailer := &stubMailer{}
	dispatcher := newTestDispatcher(t, mailer)

	err := dispatcher.ArtworkCompleted(context.Background(), CompletedData{
		CustomerName:  "Jane",
		CustomerEmail: "jane@example.com",
		PetName:       "Biscuit",
		ArtworkURL:    "https://pawtrait.example/artworks/token/tok-1",
		ImageURL:      "https://cdn.example.com/preview.png",
	})
	if err != nil {
		t.Fatalf("ArtworkCompleted returned error: %v", err)
	}

	if len(mailer.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mailer.sent))
	}
	msg := mailer.sent[0]
	if msg.To != "jane@example.com" {
		t.Errorf("unexpected recipient %s", msg.To)
	}
	if msg.From != "Pawtrait Studio <hello@updates.pawtrait.example>" {
		t.Errorf("unexpected from %s", msg.From)
	}
	if msg.Subject != "Your masterpiece is ready!" {
		t.Errorf("unexpected subject %s", msg.Subject)
	}
	for _, want := range []string{"Biscuit", "https://cdn.example.com/preview.png", "https://pawtrait.example/artworks/token/tok-1"} {
		if !strings.Contains(msg.HTML, want) {
			t.Errorf("expected body to contain %q", want)
		}
	}
}

func TestOrderConfirmationFormatsAmount(t *testing.T) {
	mailer := &stubMailer{}
	dispatcher := newTestDispatcher(t, mailer)

	err := dispatcher.OrderConfirmation(context.Background(), OrderConfirmationData{
		CustomerEmail: "jane@example.com",
		OrderNumber:   "PW-0001-000042",
		ProductType:   "framed_canvas",
		ProductSize:   "16x20",
		AmountCents:   9999,
		Currency:      "usd",
	})
	if err != nil {
		t.Fatalf("OrderConfirmation returned error: %v", err)
	}
	if !strings.Contains(mailer.sent[0].HTML, "99.99 USD") {
		t.Errorf("expected formatted amount in body, got %s", mailer.sent[0].HTML)
	}
	if !strings.Contains(mailer.sent[0].HTML, "PW-0001-000042") {
		t.Error("expected order number in body")
	}
}

func TestAdminReviewAlertGoesToOperator(t *testing.T) {
	mailer := &stubMailer{}
	dispatcher := newTestDispatcher(t, mailer)

	err := dispatcher.AdminReviewAlert(context.Background(), AdminReviewData{
		ReviewID:      "rev_01H",
		ReviewType:    "edit_request",
		CustomerName:  "Jane",
		CustomerEmail: "jane@example.com",
		ImageURL:      "https://cdn.example.com/preview.png",
	})
	if err != nil {
		t.Fatalf("AdminReviewAlert returned error: %v", err)
	}
	msg := mailer.sent[0]
	if msg.To != "ops@pawtrait.example" {
		t.Errorf("expected operator recipient, got %s", msg.To)
	}
	if !strings.Contains(msg.Subject, "Edit request review required") {
		t.Errorf("unexpected subject %s", msg.Subject)
	}
}

func TestDispatcherSurfacesSendFailure(t *testing.T) {
	mailer := &stubMailer{
		sendFunc: func(context.Context, Message) (string, error) {
			return "", errors.New("vendor unavailable")
		},
	}
	dispatcher := newTestDispatcher(t, mailer)

	err := dispatcher.MasterpieceCreating(context.Background(), CreatingData{
		CustomerEmail: "jane@example.com",
		ArtworkURL:    "https://pawtrait.example/artworks/token/tok-1",
	})
	if err == nil || !strings.Contains(err.Error(), "vendor unavailable") {
		t.Fatalf("expected send failure, got %v", err)
	}
}

func TestClientSendsThroughVendorAPI(t *testing.T) {
	var received Message

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer mail-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "email-123"})
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, "mail-key", WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	id, err := client.Send(context.Background(), Message{
		From:    "Pawtrait Studio <hello@updates.pawtrait.example>",
		To:      "jane@example.com",
		Subject: "Hello",
		HTML:    "<p>Hi</p>",
	})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if id != "email-123" {
		t.Errorf("unexpected message id %s", id)
	}
	if received.To != "jane@example.com" {
		t.Errorf("unexpected recipient %s", received.To)
	}
}

func TestClientSurfacesVendorError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"message":"rate limit exceeded"}`))
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, "mail-key", WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	_, err = client.Send(context.Background(), Message{To: "jane@example.com", Subject: "Hello"})
	if err == nil || !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Fatalf("expected vendor error detail, got %v", err)
	}
}
