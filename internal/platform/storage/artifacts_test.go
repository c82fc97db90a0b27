package storage

import (
	"context"
	"testing"

	gcs "cloud.google.com/go/storage"
)

func TestObjectFromURLRecognisesStoreURLs(t *testing.T) {
	store := &ArtifactStore{
		bucket:        "pawtrait-artifacts",
		publicURLBase: "https://cdn.pawtrait.example",
	}

	cases := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "public base url",
			url:  "https://cdn.pawtrait.example/artworks/art_01H/fullres.png",
			want: "artworks/art_01H/fullres.png",
		},
		{
			name: "direct bucket url",
			url:  "https://storage.googleapis.com/pawtrait-artifacts/orders/ord_01H/artwork-print.png",
			want: "orders/ord_01H/artwork-print.png",
		},
		{
			name: "foreign host",
			url:  "https://queue.example/outputs/result.png",
			want: "",
		},
		{
			name: "other bucket",
			url:  "https://storage.googleapis.com/another-bucket/object.png",
			want: "",
		},
		{
			name: "empty",
			url:  "  ",
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := store.ObjectFromURL(tc.url); got != tc.want {
				t.Errorf("ObjectFromURL(%q) = %q, want %q", tc.url, got, tc.want)
			}
		})
	}
}

func TestCopyFromURLSameObjectShortCircuits(t *testing.T) {
	store := &ArtifactStore{
		client:        &gcs.Client{},
		bucket:        "pawtrait-artifacts",
		publicURLBase: "https://cdn.pawtrait.example",
	}

	url, err := store.CopyFromURL(context.Background(),
		"https://cdn.pawtrait.example/orders/ord_01H/artwork-print.png",
		"orders/ord_01H/artwork-print.png")
	if err != nil {
		t.Fatalf("CopyFromURL returned error: %v", err)
	}
	if url != "https://cdn.pawtrait.example/orders/ord_01H/artwork-print.png" {
		t.Errorf("unexpected staged url %q", url)
	}
}

func TestCopyFromURLRequiresSourceAndObject(t *testing.T) {
	store := &ArtifactStore{client: &gcs.Client{}, bucket: "pawtrait-artifacts"}

	if _, err := store.CopyFromURL(context.Background(), "", "orders/ord_01H/file.png"); err == nil {
		t.Error("expected error for empty source url")
	}
	if _, err := store.CopyFromURL(context.Background(), "https://cdn.example/a.png", ""); err == nil {
		t.Error("expected error for empty object path")
	}
}
