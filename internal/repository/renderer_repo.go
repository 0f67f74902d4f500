package repository

import (
	"context"
	"time"
)

// RenderRequest describes one browser rendering session.
type RenderRequest struct {
	URL            string
	ExpectedMarker string // CSS selector to wait for; empty skips the wait
	UserAgent      string
	NavTimeout     time.Duration
	WaitTimeout    time.Duration
}

// Renderer loads a page in a full browser engine and returns the rendered markup.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (string, error)
	// Close tears down the underlying engine. Safe to call more than once.
	Close() error
}
