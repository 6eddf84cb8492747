package blobstore

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v66/github"
	"github.com/rs/zerolog/log"
)

// githubClient adapts the GitHub REST API to the Client interface.
type githubClient struct {
	gh *github.Client
}

// NewGitHubFactory returns a Factory producing GitHub-backed clients.
func NewGitHubFactory() Factory {
	return func(token string) Client {
		return &githubClient{gh: github.NewClient(nil).WithAuthToken(token)}
	}
}

// GetRepoSize returns the repository size in bytes. The API reports
// kilobytes, converted here.
func (c *githubClient) GetRepoSize(ctx context.Context, owner, repo string) (int64, error) {
	r, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		if isNotFound(resp) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to get repository %s/%s: %w", owner, repo, err)
	}
	return int64(r.GetSize()) * 1024, nil
}

// CreateRepo creates a private, auto-initialized repository.
func (c *githubClient) CreateRepo(ctx context.Context, owner, repo, description string, inOrg bool) error {
	org := ""
	if inOrg {
		org = owner
	}

	_, _, err := c.gh.Repositories.Create(ctx, org, &github.Repository{
		Name:        github.String(repo),
		Private:     github.Bool(true),
		AutoInit:    github.Bool(true),
		Description: github.String(description),
	})
	if err != nil {
		return fmt.Errorf("failed to create repository %s: %w", repo, err)
	}

	log.Info().Str("repo", repo).Bool("in_org", inOrg).Msg("remote repository created")
	return nil
}

// GetFile fetches file content and its blob SHA from the given ref.
func (c *githubClient) GetFile(ctx context.Context, owner, repo, path, ref string) ([]byte, string, error) {
	file, _, resp, err := c.gh.Repositories.GetContents(ctx, owner, repo, path,
		&github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if isNotFound(resp) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("failed to get %s from %s/%s: %w", path, owner, repo, err)
	}
	if file == nil {
		return nil, "", fmt.Errorf("%s in %s/%s is not a file", path, owner, repo)
	}

	content, err := file.GetContent()
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return []byte(content), file.GetSHA(), nil
}

// PutFile writes content to path on branch. The library handles base64
// encoding of the payload.
func (c *githubClient) PutFile(ctx context.Context, owner, repo, path, branch, message string, content []byte) (*PutResult, error) {
	res, _, err := c.gh.Repositories.CreateFile(ctx, owner, repo, path, &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
		Branch:  github.String(branch),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write %s to %s/%s: %w", path, owner, repo, err)
	}

	return &PutResult{
		SHA:         res.Content.GetSHA(),
		DownloadURL: res.Content.GetDownloadURL(),
	}, nil
}

func isNotFound(resp *github.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusNotFound
}
