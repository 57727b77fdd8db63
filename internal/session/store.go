package session

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Peek when no session exists for the phone.
var ErrNotFound = errors.New("session not found")

// Store manages sessions keyed by phone number.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// Do runs fn with exclusive access to the session for phone, creating a
	// fresh session on first contact or after TTL expiry. Calls for the same
	// phone are serialized in arrival order; distinct phones run in parallel.
	// fn's error is returned unchanged.
	Do(ctx context.Context, phone string, fn func(*Session) error) error

	// Peek returns a copy of the session for phone without touching its
	// activity clock. Returns [ErrNotFound] when no live session exists.
	// The copy shares slice backing arrays; treat it as read-only.
	Peek(ctx context.Context, phone string) (Session, error)

	// Len returns the number of live sessions, expired ones included until
	// the next sweep.
	Len() int

	// Sweep drops sessions idle past the TTL and returns how many went.
	Sweep() int
}
