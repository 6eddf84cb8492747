package uploads

import (
	"context"
	"fmt"
	"time"

	"github.com/gitpix/gitpix/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Manager drives the chunked-upload session lifecycle:
// created → receiving → complete | cancelled | expired.
type Manager struct {
	store    SessionStore
	uploader *Uploader
	ttl      time.Duration
}

// NewManager creates a chunked upload session manager.
func NewManager(store SessionStore, uploader *Uploader, ttl time.Duration) *Manager {
	return &Manager{store: store, uploader: uploader, ttl: ttl}
}

// Sweep drops expired sessions. Called on every request into the upload
// surface; expiry is only as prompt as the next request.
func (m *Manager) Sweep(ctx context.Context) {
	m.store.SweepExpired(ctx)
}

// CreateSession allocates a fresh session and returns its id.
func (m *Manager) CreateSession(ctx context.Context, filename string, totalSize int64, totalChunks int) (string, error) {
	if filename == "" || totalChunks <= 0 {
		return "", fmt.Errorf("invalid session parameters: filename=%q chunks=%d", filename, totalChunks)
	}

	now := time.Now()
	session := &Session{
		ID:          uuid.New().String(),
		Filename:    filename,
		TotalSize:   totalSize,
		TotalChunks: totalChunks,
		CreatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
	}
	if err := m.store.Create(ctx, session); err != nil {
		return "", fmt.Errorf("failed to create upload session: %w", err)
	}

	log.Info().Str("session", session.ID).Str("file", filename).
		Int("chunks", totalChunks).Int64("size", totalSize).Msg("upload session created")
	return session.ID, nil
}

// ReceiveChunk stores one chunk. A duplicate index overwrites the
// previous bytes without growing the received count, and every arrival
// slides the session expiry forward.
func (m *Manager) ReceiveChunk(ctx context.Context, id string, index int, data []byte) (*types.ChunkReceipt, error) {
	session, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= session.TotalChunks {
		return nil, fmt.Errorf("chunk index %d out of range for %d chunks", index, session.TotalChunks)
	}

	received, err := m.store.PutChunk(ctx, id, index, data, m.ttl)
	if err != nil {
		return nil, err
	}

	return &types.ChunkReceipt{ReceivedCount: received, TotalChunks: session.TotalChunks}, nil
}

// CompleteSession reassembles the chunks and hands the file to the
// write path. Completion requires every declared chunk: strictly
// receivedCount == totalChunks. On write failure the session is left
// intact so the client can retry completion.
func (m *Manager) CompleteSession(ctx context.Context, id string) (*types.UploadResult, error) {
	session, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Received != session.TotalChunks {
		return nil, fmt.Errorf("%w: %d of %d chunks received",
			ErrIncompleteUpload, session.Received, session.TotalChunks)
	}

	chunks, err := m.store.Chunks(ctx, id)
	if err != nil {
		return nil, err
	}

	var total int
	for i := 0; i < session.TotalChunks; i++ {
		chunk, ok := chunks[i]
		if !ok {
			return nil, fmt.Errorf("%w: chunk %d missing", ErrIncompleteUpload, i)
		}
		total += len(chunk)
	}

	buf := make([]byte, 0, total)
	for i := 0; i < session.TotalChunks; i++ {
		buf = append(buf, chunks[i]...)
	}

	result, err := m.uploader.Upload(ctx, session.Filename, "", buf, false)
	if err != nil {
		// Keep the session: completion is retryable.
		return nil, err
	}

	if err := m.store.Delete(ctx, id); err != nil {
		log.Warn().Err(err).Str("session", id).Msg("failed to delete completed session")
	}

	log.Info().Str("session", id).Str("file", session.Filename).Msg("chunked upload completed")
	return result, nil
}

// CancelSession removes a session. Cancelling an unknown id is a no-op.
func (m *Manager) CancelSession(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}
