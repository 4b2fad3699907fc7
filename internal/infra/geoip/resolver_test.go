package geoip

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestNewResolverWithoutPathIsDisabled(t *testing.T) {
	r, err := NewResolver("  ")
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if r != nil {
		t.Fatalf("expected nil resolver, got %+v", r)
	}
	if _, err := r.CountryCode("1.1.1.1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("CountryCode on disabled resolver: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close on disabled resolver: %v", err)
	}
}

func TestNewResolverMissingDatabase(t *testing.T) {
	if _, err := NewResolver(filepath.Join(t.TempDir(), "GeoLite2-Country.mmdb")); err == nil {
		t.Fatal("expected error for missing database")
	}
}
