package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	domain "github.com/pawtrait-studio/api/internal/domain"
	"github.com/pawtrait-studio/api/internal/services"
)

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func buildSubmission(t *testing.T, fields map[string]string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	for name, data := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, name, name+".png"))
		header.Set("Content-Type", "image/png")
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("create part %s: %v", name, err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part %s: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func newArtworkRouter(t *testing.T, cfg ArtworkHandlersConfig) http.Handler {
	t.Helper()
	if cfg.Artworks == nil {
		cfg.Artworks = &stubArtworkService{}
	}
	if cfg.Reviews == nil {
		cfg.Reviews = &stubReviewService{}
	}
	h, err := NewArtworkHandlers(cfg)
	if err != nil {
		t.Fatalf("NewArtworkHandlers: %v", err)
	}
	return NewRouter(WithArtworkRoutes(h.Routes))
}

func TestSubmitAcceptsPhotosAndStartsGeneration(t *testing.T) {
	artworks := &stubArtworkService{processed: make(chan string, 1)}
	router := newArtworkRouter(t, ArtworkHandlersConfig{Artworks: artworks})

	body, contentType := buildSubmission(t,
		map[string]string{
			"customerName":  "Jamie Doe",
			"customerEmail": "jamie@example.com",
			"petName":       "Biscuit",
		},
		map[string][]byte{
			"petMomPhoto": pngBytes,
			"petPhoto":    pngBytes,
		},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/artworks/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp artworkResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "art_01H" || resp.AccessToken != "tok_01H" {
		t.Errorf("unexpected response %+v", resp)
	}

	if len(artworks.submitCommands) != 1 {
		t.Fatalf("expected one submit command, got %d", len(artworks.submitCommands))
	}
	cmd := artworks.submitCommands[0]
	if cmd.CustomerEmail != "jamie@example.com" || cmd.PetName != "Biscuit" {
		t.Errorf("unexpected submit command %+v", cmd)
	}
	if len(cmd.PetMomPhoto.Data) == 0 || len(cmd.PetPhoto.Data) == 0 {
		t.Error("uploads were not forwarded to the service")
	}

	select {
	case artworkID := <-artworks.processed:
		if artworkID != "art_01H" {
			t.Errorf("generation started for wrong artwork %q", artworkID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("generation was never started")
	}
}

func TestSubmitStripsMarkupFromNames(t *testing.T) {
	artworks := &stubArtworkService{processed: make(chan string, 1)}
	router := newArtworkRouter(t, ArtworkHandlersConfig{Artworks: artworks})

	body, contentType := buildSubmission(t,
		map[string]string{
			"customerName":  `<script>alert(1)</script>Jamie`,
			"customerEmail": "jamie@example.com",
		},
		map[string][]byte{
			"petMomPhoto": pngBytes,
			"petPhoto":    pngBytes,
		},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/artworks/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if got := artworks.submitCommands[0].CustomerName; got != "Jamie" {
		t.Errorf("expected sanitized name, got %q", got)
	}
	<-artworks.processed
}

func TestSubmitRequiresBothPhotos(t *testing.T) {
	artworks := &stubArtworkService{}
	router := newArtworkRouter(t, ArtworkHandlersConfig{Artworks: artworks})

	body, contentType := buildSubmission(t,
		map[string]string{"customerEmail": "jamie@example.com"},
		map[string][]byte{"petMomPhoto": pngBytes},
	)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/artworks/", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(artworks.submitCommands) != 0 {
		t.Error("service must not be called without both photos")
	}
}

func TestSubmitEnforcesRateLimit(t *testing.T) {
	artworks := &stubArtworkService{processed: make(chan string, 2)}
	router := newArtworkRouter(t, ArtworkHandlersConfig{
		Artworks: artworks,
		Limiter:  newWindowLimiter(1, time.Minute, nil),
	})

	send := func() int {
		body, contentType := buildSubmission(t,
			map[string]string{"customerEmail": "jamie@example.com"},
			map[string][]byte{"petMomPhoto": pngBytes, "petPhoto": pngBytes},
		)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/artworks/", body)
		req.Header.Set("Content-Type", contentType)
		req.RemoteAddr = "203.0.113.7:51000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(); code != http.StatusAccepted {
		t.Fatalf("first submission should pass, got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("second submission should be limited, got %d", code)
	}
	<-artworks.processed
}

func TestGetByTokenMapsExpiryToGone(t *testing.T) {
	artworks := &stubArtworkService{
		getByTokenFunc: func(ctx context.Context, token string) (domain.Artwork, error) {
			return domain.Artwork{}, services.ErrArtworkTokenExpired
		},
	}
	router := newArtworkRouter(t, ArtworkHandlersConfig{Artworks: artworks})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/artworks/token/tok_expired", nil))
	if rec.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRequestUpscaleReturnsAccepted(t *testing.T) {
	artworks := &stubArtworkService{}
	router := newArtworkRouter(t, ArtworkHandlersConfig{Artworks: artworks})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/artworks/art_01H/upscale", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(artworks.upscaleRequests) != 1 || artworks.upscaleRequests[0] != "art_01H" {
		t.Errorf("unexpected upscale requests %v", artworks.upscaleRequests)
	}
}

func TestRequestEditMapsQuotaToConflict(t *testing.T) {
	reviews := &stubReviewService{
		requestEditFunc: func(ctx context.Context, cmd services.RequestEditCommand) (domain.Review, error) {
			return domain.Review{}, services.ErrEditQuotaExceeded
		},
	}
	router := newArtworkRouter(t, ArtworkHandlersConfig{Reviews: reviews})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/artworks/art_01H/edit-request",
		strings.NewReader(`{"text":"please make the bow tie red"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "edit_quota_exceeded" {
		t.Errorf("unexpected error code %v", body["error"])
	}
}

func TestRequestEditForwardsSanitizedText(t *testing.T) {
	reviews := &stubReviewService{}
	router := newArtworkRouter(t, ArtworkHandlersConfig{Reviews: reviews})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/artworks/art_01H/edit-request",
		strings.NewReader(`{"text":"<b>bigger</b> ears please"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(reviews.editRequests) != 1 {
		t.Fatalf("expected one edit request, got %d", len(reviews.editRequests))
	}
	cmd := reviews.editRequests[0]
	if cmd.ArtworkID != "art_01H" {
		t.Errorf("unexpected artwork id %q", cmd.ArtworkID)
	}
	if cmd.Text != "bigger ears please" {
		t.Errorf("expected sanitized text, got %q", cmd.Text)
	}
}
