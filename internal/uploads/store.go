package uploads

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is returned for an unknown or expired session id.
	ErrSessionNotFound = errors.New("upload session not found")

	// ErrIncompleteUpload is returned when completion is requested before
	// every declared chunk has landed. The session survives for a retry.
	ErrIncompleteUpload = errors.New("upload is incomplete")
)

// Session is the metadata of one in-flight chunked upload.
type Session struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	TotalSize   int64     `json:"total_size"`
	TotalChunks int       `json:"total_chunks"`
	Received    int       `json:"received"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// SessionStore tracks in-flight chunked uploads. Implementations decide
// durability: the memory store is single-instance only, the redis store
// survives restarts and scale-out.
//
// Expiry is sliding: PutChunk extends the session's life by the ttl it
// is given. Enforcement is opportunistic via SweepExpired, called on
// every request into the upload subsystem; there is no background timer.
type SessionStore interface {
	// Create registers a fresh session.
	Create(ctx context.Context, session *Session) error

	// Get returns session metadata, ErrSessionNotFound when absent or
	// already past expiry.
	Get(ctx context.Context, id string) (*Session, error)

	// PutChunk stores one chunk (last write wins per index), refreshes
	// the expiry by ttl, and returns the updated received count. The
	// count only grows on the first receipt of an index.
	PutChunk(ctx context.Context, id string, index int, data []byte, ttl time.Duration) (received int, err error)

	// Chunks returns all stored chunks keyed by index.
	Chunks(ctx context.Context, id string) (map[int][]byte, error)

	// Delete removes a session. Removing an absent session is a no-op.
	Delete(ctx context.Context, id string) error

	// SweepExpired drops every session past its expiry and returns how
	// many were removed.
	SweepExpired(ctx context.Context) int
}
