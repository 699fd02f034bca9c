package calendar

import (
	"context"
	"sync"

	"calman/internal/eventstore"
)

// UsageDescriptionKey is the configuration key holding the human-readable
// justification shown to the user when calendar access is requested. Authorize
// refuses to prompt when it is absent.
const UsageDescriptionKey = "calendars_usage_description"

// ConfigProvider is a string-keyed configuration lookup.
type ConfigProvider interface {
	Lookup(key string) (string, bool)
}

// AccessChecker is the authorization slice of an event store.
type AccessChecker interface {
	AuthorizationStatus(ctx context.Context) (eventstore.Status, error)
	RequestAccess(ctx context.Context) (bool, error)
}

// Gate decides whether the application may touch the calendar store. It asks
// the user for consent at most once per process: once a terminal outcome
// (authorized, denied or restricted) is known it is cached and every later
// Authorize call resolves immediately from the cache.
type Gate struct {
	store  AccessChecker
	config ConfigProvider

	mu       sync.Mutex
	status   eventstore.Status
	resolved bool
}

// NewGate creates a Gate over the given store and configuration.
func NewGate(store AccessChecker, config ConfigProvider) *Gate {
	return &Gate{store: store, config: config}
}

// Authorize resolves the authorization state, prompting the user only when it
// has never been determined. It blocks until the outcome is known; callers
// wanting asynchrony run it in a goroutine. Denied and restricted are valid
// results (false, nil), not errors.
func (g *Gate) Authorize(ctx context.Context) (bool, error) {
	if desc, ok := g.config.Lookup(UsageDescriptionKey); !ok || desc == "" {
		return false, &ConfigurationError{Key: UsageDescriptionKey}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.resolved {
		return g.status == eventstore.StatusAuthorized, nil
	}

	status, err := g.store.AuthorizationStatus(ctx)
	if err != nil {
		return false, err
	}

	switch status {
	case eventstore.StatusAuthorized, eventstore.StatusDenied, eventstore.StatusRestricted:
		g.status = status
		g.resolved = true
		return status == eventstore.StatusAuthorized, nil
	}

	// Not determined: this is the one consent prompt of the process.
	granted, err := g.store.RequestAccess(ctx)
	if err != nil {
		g.status = eventstore.StatusDenied
		g.resolved = true
		return false, err
	}

	if granted {
		g.status = eventstore.StatusAuthorized
	} else {
		g.status = eventstore.StatusDenied
	}
	g.resolved = true
	return granted, nil
}

// Status reports the gate's current view of the authorization state. It is
// StatusNotDetermined until Authorize has resolved.
func (g *Gate) Status() eventstore.Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.resolved {
		return eventstore.StatusNotDetermined
	}
	return g.status
}
