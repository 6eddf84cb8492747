package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the remote path or repository does not
// exist. A 404 from the remote API maps here and is the happy path for
// "safe to create".
var ErrNotFound = errors.New("blobstore: not found")

// PutResult describes a file written to the remote store.
type PutResult struct {
	SHA         string
	DownloadURL string
}

// Client is the narrow surface the capacity and upload services consume
// from the remote blob store. Everything else the hosting API offers is
// deliberately out of reach so the services stay testable against a fake.
type Client interface {
	// GetRepoSize returns the authoritative stored size of a repository
	// in bytes.
	GetRepoSize(ctx context.Context, owner, repo string) (int64, error)

	// CreateRepo creates a private repository. With inOrg set the
	// repository is created under the owner organization, otherwise under
	// the authenticated user.
	CreateRepo(ctx context.Context, owner, repo, description string, inOrg bool) error

	// GetFile fetches a file's raw content and blob SHA.
	GetFile(ctx context.Context, owner, repo, path, ref string) ([]byte, string, error)

	// PutFile writes content to path on the given branch.
	PutFile(ctx context.Context, owner, repo, path, branch, message string, content []byte) (*PutResult, error)
}

// Factory builds a Client authenticated with the given token. Backends
// carry their own tokens, so services hold a Factory rather than a
// single client.
type Factory func(token string) Client
