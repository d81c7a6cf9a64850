package engine

import (
	"context"
)

//go:generate mockgen -destination mocks/mock_engine.go -package mocks github.com/use-agent/liveprice/engine Engine,Session,Element

// Engine is the interface that all session backends must implement.
type Engine interface {
	// Name returns the backend identifier (e.g. "rod-managed", "http").
	Name() string

	// NewSession opens a fresh session (a browser tab for rod).
	NewSession(ctx context.Context) (Session, error)

	// Close tears down the backend and anything it launched.
	Close() error
}

// Session is one browser context. It is not safe for concurrent use;
// the Pool hands it to one caller at a time.
//
// Errors returned by a Session are *models.AutomationError.
type Session interface {
	// Navigate loads url and waits for the load event.
	Navigate(ctx context.Context, url string) error

	// FindByClass returns the first element carrying the class.
	FindByClass(ctx context.Context, class string) (Element, error)

	// Reset drops the current document so the next caller starts clean.
	Reset(ctx context.Context) error

	Close() error
}

// Element is a node inside a Session's current document.
type Element interface {
	// FindByTag returns the first descendant with the tag name.
	FindByTag(ctx context.Context, tag string) (Element, error)

	// Text returns the rendered inner text.
	Text(ctx context.Context) (string, error)
}
