// Package remote speaks to the GitHub repository that backs materialized
// uploads. It is the only place retry/backoff logic for remote writes
// lives; callers (the materializer) never loop on rate limits themselves.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v60/github"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/dariusreyes/gitvault/pkg/config"
)

const (
	retryBaseDelay   = time.Second
	retryMaxAttempts = 5
)

// Client is the subset of GitHub functionality the materializer needs to
// write completed uploads into the backing repository.
type Client struct {
	client *gogithub.Client
	owner  string
	repo   string
	branch string
}

// New creates a GitHub-backed remote client from the configured owner,
// repo, and static access token.
func New(cfg config.GitHubConfig) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})
	tc := oauth2.NewClient(context.Background(), ts)
	return &Client{
		client: gogithub.NewClient(tc),
		owner:  cfg.Owner,
		repo:   cfg.Repo,
		branch: cfg.Branch,
	}
}

// SetBaseURLForTesting points the client at a local test server instead of
// the real GitHub API. Only ever called from tests.
func (c *Client) SetBaseURLForTesting(rawURL string) {
	if !strings.HasSuffix(rawURL, "/") {
		rawURL += "/"
	}
	base, err := url.Parse(rawURL)
	if err != nil {
		panic(err)
	}
	c.client.BaseURL = base
}

// PutFile creates or updates a file at path in the backing repository.
// It tries CreateFile first; on a 422 (file already exists) it fetches the
// current content SHA and retries as an update.
func (c *Client) PutFile(ctx context.Context, path, message string, content []byte) (sha string, err error) {
	err = c.withRetry(ctx, "put_file", func() error {
		opts := &gogithub.RepositoryContentFileOptions{
			Message: gogithub.String(message),
			Content: content,
			Branch:  gogithub.String(c.branch),
		}

		file, _, createErr := c.client.Repositories.CreateFile(ctx, c.owner, c.repo, path, opts)
		if createErr == nil {
			sha = file.GetSHA()
			return nil
		}
		if !IsUnprocessable(createErr) {
			return createErr
		}

		existing, _, _, getErr := c.client.Repositories.GetContents(ctx, c.owner, c.repo, path, &gogithub.RepositoryContentGetOptions{Ref: c.branch})
		if getErr != nil {
			return getErr
		}

		opts.SHA = existing.SHA
		file, _, updateErr := c.client.Repositories.UpdateFile(ctx, c.owner, c.repo, path, opts)
		if updateErr != nil {
			return updateErr
		}
		sha = file.GetSHA()
		return nil
	})
	return sha, err
}

// DeletePath removes a file from the backing repository. Deleting a path
// that does not exist is not an error, so repeated or best-effort cleanup
// calls succeed.
func (c *Client) DeletePath(ctx context.Context, path, message string) error {
	return c.withRetry(ctx, "delete_path", func() error {
		contents, _, _, err := c.client.Repositories.GetContents(ctx, c.owner, c.repo, path, &gogithub.RepositoryContentGetOptions{Ref: c.branch})
		if err != nil {
			if IsNotFound(err) {
				return nil
			}
			return err
		}
		opts := &gogithub.RepositoryContentFileOptions{
			Message: gogithub.String(message),
			SHA:     contents.SHA,
			Branch:  gogithub.String(c.branch),
		}
		_, _, err = c.client.Repositories.DeleteFile(ctx, c.owner, c.repo, path, opts)
		return err
	})
}

// EnsureRelease fetches the release for tag, creating it if it does not
// already exist.
func (c *Client) EnsureRelease(ctx context.Context, tag, releaseName, body string) (*gogithub.RepositoryRelease, error) {
	var release *gogithub.RepositoryRelease
	err := c.withRetry(ctx, "ensure_release", func() error {
		existing, _, err := c.client.Repositories.GetReleaseByTag(ctx, c.owner, c.repo, tag)
		if err == nil {
			release = existing
			return nil
		}
		if !IsNotFound(err) {
			return err
		}

		created, _, createErr := c.client.Repositories.CreateRelease(ctx, c.owner, c.repo, &gogithub.RepositoryRelease{
			TagName: gogithub.String(tag),
			Name:    gogithub.String(releaseName),
			Body:    gogithub.String(body),
		})
		if createErr != nil {
			return createErr
		}
		release = created
		return nil
	})
	return release, err
}

// UploadReleaseAsset attaches a file to an existing release.
func (c *Client) UploadReleaseAsset(ctx context.Context, releaseID int64, name, contentType string, file *os.File) (*gogithub.ReleaseAsset, error) {
	var asset *gogithub.ReleaseAsset
	err := c.withRetry(ctx, "upload_release_asset", func() error {
		if _, err := file.Seek(0, 0); err != nil {
			return err
		}
		uploaded, _, err := c.client.Repositories.UploadReleaseAsset(ctx, c.owner, c.repo, releaseID,
			&gogithub.UploadOptions{Name: name, MediaType: contentType}, file)
		if err != nil {
			return err
		}
		asset = uploaded
		return nil
	})
	return asset, err
}

// withRetry wraps a remote call with capped exponential backoff, honoring
// a Retry-After header on rate-limit responses. This is the only retry
// loop in the service; materializer strategies never retry on their own.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	delay := retryBaseDelay

	for attempt := 1; attempt <= retryMaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !IsRateLimited(lastErr) && !isServerError(lastErr) {
			return lastErr
		}

		wait := delay
		if retryAfter := rateLimitRetryAfter(lastErr); retryAfter > 0 {
			wait = retryAfter
		}

		log.Warn().
			Str("op", op).
			Int("attempt", attempt).
			Dur("wait", wait).
			Err(lastErr).
			Msg("remote call failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay *= 2
	}

	return fmt.Errorf("remote call %q failed after %d attempts: %w", op, retryMaxAttempts, lastErr)
}

// IsUnprocessable reports whether err is a GitHub 422 response, which
// PutFile uses to detect "file already exists".
func IsUnprocessable(err error) bool {
	return statusCodeOf(err) == http.StatusUnprocessableEntity
}

// IsNotFound reports whether err is a GitHub 404 response.
func IsNotFound(err error) bool {
	return statusCodeOf(err) == http.StatusNotFound
}

// IsRateLimited reports whether err is a GitHub rate-limit response.
func IsRateLimited(err error) bool {
	var rateErr *gogithub.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var abuseErr *gogithub.AbuseRateLimitError
	return errors.As(err, &abuseErr)
}

func isServerError(err error) bool {
	code := statusCodeOf(err)
	return code >= http.StatusInternalServerError
}

func statusCodeOf(err error) int {
	var ghErr *gogithub.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode
	}
	return 0
}

func rateLimitRetryAfter(err error) time.Duration {
	var abuseErr *gogithub.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.RetryAfter != nil {
		return *abuseErr.RetryAfter
	}
	var rateErr *gogithub.RateLimitError
	if errors.As(err, &rateErr) {
		return time.Until(rateErr.Rate.Reset.Time)
	}
	return 0
}

// ContentTypeFromName infers a content type from a filename's extension,
// falling back to a generic binary stream.
func ContentTypeFromName(name string) string {
	switch {
	case strings.HasSuffix(name, ".zip"):
		return "application/zip"
	case strings.HasSuffix(name, ".tar"):
		return "application/x-tar"
	case strings.HasSuffix(name, ".gz"):
		return "application/gzip"
	case strings.HasSuffix(name, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
