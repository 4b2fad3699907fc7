package storage

import (
	"context"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	key, err := store.Write(ctx, "./results//7/attempt-01.png", []byte("png"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if key != "results/7/attempt-01.png" {
		t.Fatalf("key = %q", key)
	}
	data, err := store.Read(ctx, key)
	if err != nil || string(data) != "png" {
		t.Fatalf("Read = %q, %v", data, err)
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "  ", "../etc/passwd", "a/../../b", "."} {
		if _, err := sanitizeKey(key); err == nil {
			t.Errorf("sanitizeKey(%q) accepted", key)
		}
	}
	if got, err := sanitizeKey(`\results\1\x.png`); err != nil || got != "results/1/x.png" {
		t.Fatalf("sanitizeKey backslashes = %q, %v", got, err)
	}
}

func TestResultKey(t *testing.T) {
	cases := map[string]string{
		"image/png":  "results/42/attempt-02.png",
		"image/jpeg": "results/42/attempt-02.jpg",
		"":           "results/42/attempt-02.bin",
	}
	for mime, want := range cases {
		if got := ResultKey(42, 1, mime); got != want {
			t.Errorf("ResultKey(%q) = %q, want %q", mime, got, want)
		}
	}
}

func TestNewFileStoreRequiresPath(t *testing.T) {
	if _, err := NewFileStore(" "); err == nil {
		t.Fatal("expected error for empty base path")
	}
}
