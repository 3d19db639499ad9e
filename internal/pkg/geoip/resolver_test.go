package geoip

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestNoopResolver(t *testing.T) {
	r := NewNoopResolver()
	loc, err := r.Lookup(context.Background(), "8.8.8.8")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
	if loc != nil {
		t.Errorf("Expected nil location, got %+v", loc)
	}
}

func TestNew(t *testing.T) {
	r, err := New("")
	if err != nil {
		t.Fatalf("New(\"\") error = %v", err)
	}
	if _, ok := r.(*NoopResolver); !ok {
		t.Errorf("Expected NoopResolver, got %T", r)
	}

	if _, err := New(filepath.Join(t.TempDir(), "missing.mmdb")); err == nil {
		t.Error("Expected error for missing database file")
	}
}
