package calendar

import (
	"context"
	"errors"
	"testing"

	"calman/internal/eventstore"
)

// mapProvider is a ConfigProvider backed by a plain map.
type mapProvider map[string]string

func (p mapProvider) Lookup(key string) (string, bool) {
	v, ok := p[key]
	return v, ok
}

func configWithUsageDescription() mapProvider {
	return mapProvider{UsageDescriptionKey: "Used to show your schedule"}
}

func TestGate_MissingUsageDescription(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore(true)
	gate := NewGate(store, mapProvider{})

	_, err := gate.Authorize(ctx)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected a ConfigurationError, got %v", err)
	}
	if cfgErr.Key != UsageDescriptionKey {
		t.Errorf("Expected key %q, got %q", UsageDescriptionKey, cfgErr.Key)
	}

	// The guard fires before the store is ever consulted.
	if store.PromptCount() != 0 {
		t.Errorf("Expected no prompt, got %d", store.PromptCount())
	}
	if gate.Status() != eventstore.StatusNotDetermined {
		t.Errorf("Expected status to remain not determined, got %v", gate.Status())
	}
}

func TestGate_EmptyUsageDescription(t *testing.T) {
	ctx := context.Background()
	gate := NewGate(eventstore.NewMemoryStore(true), mapProvider{UsageDescriptionKey: ""})

	_, err := gate.Authorize(ctx)
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected a ConfigurationError for an empty value, got %v", err)
	}
}

func TestGate_GrantedOnce(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore(true)
	gate := NewGate(store, configWithUsageDescription())

	for i := 0; i < 3; i++ {
		granted, err := gate.Authorize(ctx)
		if err != nil {
			t.Fatalf("Authorize() returned an error: %v", err)
		}
		if !granted {
			t.Fatalf("Expected access to be granted on call %d", i+1)
		}
	}

	if store.PromptCount() != 1 {
		t.Errorf("Expected exactly 1 prompt across repeated calls, got %d", store.PromptCount())
	}
	if gate.Status() != eventstore.StatusAuthorized {
		t.Errorf("Expected StatusAuthorized, got %v", gate.Status())
	}
}

func TestGate_DeniedIsCachedNotAnError(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore(false)
	gate := NewGate(store, configWithUsageDescription())

	for i := 0; i < 2; i++ {
		granted, err := gate.Authorize(ctx)
		if err != nil {
			t.Fatalf("Authorize() returned an error: %v", err)
		}
		if granted {
			t.Fatalf("Expected access to be denied on call %d", i+1)
		}
	}

	if store.PromptCount() != 1 {
		t.Errorf("Expected exactly 1 prompt, got %d", store.PromptCount())
	}
	if gate.Status() != eventstore.StatusDenied {
		t.Errorf("Expected StatusDenied, got %v", gate.Status())
	}
}

func TestGate_RestrictedNeverPrompts(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore(true)
	store.SetStatus(eventstore.StatusRestricted)
	gate := NewGate(store, configWithUsageDescription())

	granted, err := gate.Authorize(ctx)
	if err != nil {
		t.Fatalf("Authorize() returned an error: %v", err)
	}
	if granted {
		t.Error("Expected restricted access to resolve to false")
	}
	if store.PromptCount() != 0 {
		t.Errorf("Expected no prompt for a restricted store, got %d", store.PromptCount())
	}
	if gate.Status() != eventstore.StatusRestricted {
		t.Errorf("Expected StatusRestricted, got %v", gate.Status())
	}
}

func TestGate_AlreadyAuthorizedSkipsPrompt(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore(true)
	store.SetStatus(eventstore.StatusAuthorized)
	gate := NewGate(store, configWithUsageDescription())

	granted, err := gate.Authorize(ctx)
	if err != nil {
		t.Fatalf("Authorize() returned an error: %v", err)
	}
	if !granted {
		t.Error("Expected access to be granted")
	}
	if store.PromptCount() != 0 {
		t.Errorf("Expected no prompt when already authorized, got %d", store.PromptCount())
	}
}

func TestGate_ConcurrentFirstAccess(t *testing.T) {
	ctx := context.Background()
	store := eventstore.NewMemoryStore(true)
	gate := NewGate(store, configWithUsageDescription())

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := gate.Authorize(ctx)
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Fatalf("Authorize() returned an error: %v", err)
		}
	}

	if store.PromptCount() != 1 {
		t.Errorf("Expected exactly 1 prompt under concurrent access, got %d", store.PromptCount())
	}
}
