// Package storage defines the durable backends the session store persists
// its blob to. A backend holds exactly one opaque JSON blob per store.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no blob has been saved yet.
// Callers must treat it as "no session", never as a failure.
var ErrNotFound = errors.New("session blob not found")

//go:generate mockgen -source=$GOFILE -destination=../mocks/mock_$GOPACKAGE/mock_$GOFILE -package=mock_$GOPACKAGE
type Storage interface {
	// Load returns the previously saved blob, or ErrNotFound.
	Load(ctx context.Context) ([]byte, error)
	// Save overwrites the blob.
	Save(ctx context.Context, data []byte) error
	// Clear removes the blob. Clearing an absent blob is not an error.
	Clear(ctx context.Context) error
}
