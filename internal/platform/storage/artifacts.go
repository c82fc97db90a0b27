package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
)

const (
	defaultFetchTimeout = 2 * time.Minute
	maxArtifactBytes    = 256 << 20
)

// HTTPDoer abstracts the HTTP client used to fetch remote artifacts.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ArtifactStore persists generated images in Cloud Storage and hands out
// stable public URLs for stored objects.
type ArtifactStore struct {
	client        *gcs.Client
	bucket        string
	publicURLBase string
	httpClient    HTTPDoer
	fetchTimeout  time.Duration
}

// ArtifactStoreOption customises store behaviour.
type ArtifactStoreOption func(*ArtifactStore)

// WithHTTPClient overrides the HTTP client used for PutFromURL fetches.
func WithHTTPClient(client HTTPDoer) ArtifactStoreOption {
	return func(s *ArtifactStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithFetchTimeout bounds the time spent downloading a remote artifact.
func WithFetchTimeout(timeout time.Duration) ArtifactStoreOption {
	return func(s *ArtifactStore) {
		if timeout > 0 {
			s.fetchTimeout = timeout
		}
	}
}

// NewArtifactStore constructs an ArtifactStore bound to a bucket.
func NewArtifactStore(client *gcs.Client, bucket string, publicURLBase string, opts ...ArtifactStoreOption) (*ArtifactStore, error) {
	if client == nil {
		return nil, errors.New("artifact store: storage client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("artifact store: bucket is required")
	}

	store := &ArtifactStore{
		client:        client,
		bucket:        bucket,
		publicURLBase: strings.TrimRight(strings.TrimSpace(publicURLBase), "/"),
		httpClient:    &http.Client{Timeout: defaultFetchTimeout},
		fetchTimeout:  defaultFetchTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// Bucket returns the bucket name the store writes into.
func (s *ArtifactStore) Bucket() string {
	if s == nil {
		return ""
	}
	return s.bucket
}

// PutBytes writes the payload under the given object path and returns its public URL.
func (s *ArtifactStore) PutBytes(ctx context.Context, object string, contentType string, payload []byte) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("artifact store not initialised")
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return "", errors.New("artifact store: object path is required")
	}
	if len(payload) == 0 {
		return "", errors.New("artifact store: payload is empty")
	}

	writer := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	if contentType = strings.TrimSpace(contentType); contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := writer.Write(payload); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("artifact store: write %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("artifact store: close %s: %w", object, err)
	}
	return s.PublicURL(object), nil
}

// PutFromURL downloads the remote artifact and stores it under the object path,
// returning the stored object's public URL. Generation providers expose their
// outputs on short-lived URLs, so results are copied into the bucket promptly.
func (s *ArtifactStore) PutFromURL(ctx context.Context, sourceURL string, object string) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("artifact store not initialised")
	}
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return "", errors.New("artifact store: source url is required")
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return "", errors.New("artifact store: object path is required")
	}

	fetchCtx := ctx
	var cancel context.CancelFunc
	if s.fetchTimeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("artifact store: build fetch request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("artifact store: fetch %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("artifact store: fetch %s: unexpected status %d", sourceURL, resp.StatusCode)
	}

	writer := s.client.Bucket(s.bucket).Object(object).NewWriter(fetchCtx)
	if contentType := strings.TrimSpace(resp.Header.Get("Content-Type")); contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, io.LimitReader(resp.Body, maxArtifactBytes)); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("artifact store: copy %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("artifact store: close %s: %w", object, err)
	}
	return s.PublicURL(object), nil
}

// CopyFromURL stages an artifact under a new object path. Sources already in
// this bucket are copied server-side; anything else falls back to the HTTP
// fetch path of PutFromURL.
func (s *ArtifactStore) CopyFromURL(ctx context.Context, sourceURL string, object string) (string, error) {
	if s == nil || s.client == nil {
		return "", errors.New("artifact store not initialised")
	}
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return "", errors.New("artifact store: source url is required")
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return "", errors.New("artifact store: object path is required")
	}

	source := s.ObjectFromURL(sourceURL)
	if source == "" {
		return s.PutFromURL(ctx, sourceURL, object)
	}
	if source == object {
		return s.PublicURL(object), nil
	}

	bucket := s.client.Bucket(s.bucket)
	if _, err := bucket.Object(object).CopierFrom(bucket.Object(source)).Run(ctx); err != nil {
		return "", fmt.Errorf("artifact store: copy %s to %s: %w", source, object, err)
	}
	return s.PublicURL(object), nil
}

// PublicURL composes the externally reachable URL for a stored object.
func (s *ArtifactStore) PublicURL(object string) string {
	object = strings.TrimLeft(strings.TrimSpace(object), "/")
	if s.publicURLBase != "" {
		return fmt.Sprintf("%s/%s", s.publicURLBase, object)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucket, object)
}

// ObjectFromURL reverses PublicURL, returning the object path when the URL
// points into this store's bucket, or an empty string otherwise.
func (s *ArtifactStore) ObjectFromURL(artifactURL string) string {
	artifactURL = strings.TrimSpace(artifactURL)
	if artifactURL == "" {
		return ""
	}
	prefixes := []string{
		fmt.Sprintf("https://storage.googleapis.com/%s/", s.bucket),
	}
	if s.publicURLBase != "" {
		prefixes = append(prefixes, s.publicURLBase+"/")
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(artifactURL, prefix) {
			return strings.TrimPrefix(artifactURL, prefix)
		}
	}
	return ""
}
