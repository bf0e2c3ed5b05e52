package storage

import (
	"context"
	"strings"
	"testing"
)

func TestLocalStorageUploadAndList(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewLocalStorage(dir, "http://localhost:8787/evidence/")
	if err != nil {
		t.Fatalf("NewLocalStorage() error: %v", err)
	}
	ctx := context.Background()

	resp, err := s.Upload(ctx, &UploadRequest{
		Key:         "sos/abc123/audio/one.wav",
		Reader:      strings.NewReader("RIFF"),
		ContentType: "audio/wav",
	})
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if resp.Size != 4 {
		t.Errorf("Size = %d, want 4", resp.Size)
	}
	if resp.URL != "http://localhost:8787/evidence/sos/abc123/audio/one.wav" {
		t.Errorf("URL = %q", resp.URL)
	}
	if _, err := s.Upload(ctx, &UploadRequest{Key: "sos/other/photo/x.jpg", Reader: strings.NewReader("x")}); err != nil {
		t.Fatal(err)
	}

	files, err := s.ListFiles(ctx, "sos/abc123/")
	if err != nil {
		t.Fatalf("ListFiles() error: %v", err)
	}
	if len(files) != 1 || files[0].Key != "sos/abc123/audio/one.wav" {
		t.Fatalf("ListFiles() = %+v", files)
	}

	if _, err := s.Upload(ctx, &UploadRequest{Key: "sos/abc123/audio/one.wav", Reader: strings.NewReader("later")}); err == nil {
		t.Error("Upload() overwrote existing evidence")
	}

	photos, err := s.ListFiles(ctx, "sos/other/")
	if err != nil {
		t.Fatal(err)
	}
	if len(photos) != 1 || photos[0].ContentType != "image/jpeg" {
		t.Errorf("ListFiles() = %+v, want one image/jpeg", photos)
	}
}

func TestLocalStorageRejectsEscapingKeys(t *testing.T) {
	t.Parallel()

	s, err := NewLocalStorage(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Upload(context.Background(), &UploadRequest{Key: "../../etc/passwd", Reader: strings.NewReader("x")})
	if err == nil {
		t.Fatal("Upload() accepted key outside base path")
	}
}
