// Package release publishes packaged archives to a release host.
//
// The only supported provider is GitHub Releases, spoken over its REST
// API with net/http. The flow mirrors what a CI deploy step does:
//
//  1. Find the release for the tag, creating it when absent. The
//     release name comes from the deploy section's template.
//  2. When an asset with the archive's name already exists, delete it
//     if force is set, otherwise fail.
//  3. Upload the archive as a release asset.
//
// The API token is supplied by the caller (read from the environment
// variable named in the deploy section) and never written anywhere.
package release

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/pipewright/pipewright/internal/model"
)

// Default API endpoints. Tests substitute an httptest server.
const (
	defaultBaseURL   = "https://api.github.com"
	defaultUploadURL = "https://uploads.github.com"
)

// uploadTimeout bounds the whole publish conversation. Release assets
// here are single zipped executables, not multi-gigabyte bundles.
const uploadTimeout = 5 * time.Minute

// GitHubClient publishes release assets via the GitHub REST API.
// It implements runner.Publisher.
type GitHubClient struct {
	// BaseURL is the REST API root. Overridable for tests.
	BaseURL string

	// UploadURL is the asset upload root. Overridable for tests.
	UploadURL string

	// Token is the API token sent as a bearer credential.
	Token string

	// HTTP is the underlying client. Defaults to a client with a
	// publish-scoped timeout.
	HTTP *http.Client
}

// NewGitHubClient creates a client for api.github.com with the given token.
func NewGitHubClient(token string) *GitHubClient {
	return &GitHubClient{
		BaseURL:   defaultBaseURL,
		UploadURL: defaultUploadURL,
		Token:     token,
		HTTP:      &http.Client{Timeout: uploadTimeout},
	}
}

// githubRelease is the subset of the release resource we consume.
type githubRelease struct {
	ID      int64  `json:"id"`
	TagName string `json:"tag_name"`
	Name    string `json:"name"`
}

// githubAsset is the subset of the release asset resource we consume.
type githubAsset struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Publish uploads the archive to the release for the given tag,
// creating the release when it does not exist and honoring the force
// flag for same-named assets.
func (c *GitHubClient) Publish(ctx context.Context, deploy *model.Deploy, tag, archivePath string) error {
	if c.Token == "" {
		return fmt.Errorf("no release token: set %s", deploy.TokenEnv)
	}
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}

	rel, err := c.ensureRelease(ctx, deploy, tag)
	if err != nil {
		return err
	}

	assetName := filepath.Base(archivePath)
	if err := c.resolveAssetConflict(ctx, deploy, rel, assetName); err != nil {
		return err
	}

	return c.uploadAsset(ctx, deploy, rel, assetName, data)
}

// ensureRelease fetches the release for the tag, creating it on 404.
func (c *GitHubClient) ensureRelease(ctx context.Context, deploy *model.Deploy, tag string) (*githubRelease, error) {
	getURL := fmt.Sprintf("%s/repos/%s/releases/tags/%s", c.BaseURL, deploy.Repository, url.PathEscape(tag))

	var rel githubRelease
	status, err := c.doJSON(ctx, http.MethodGet, getURL, nil, &rel)
	if err != nil {
		return nil, err
	}
	if status == http.StatusOK {
		return &rel, nil
	}
	if status != http.StatusNotFound {
		return nil, fmt.Errorf("lookup release for tag %s: unexpected status %d", tag, status)
	}

	body := map[string]string{
		"tag_name": tag,
		"name":     deploy.ReleaseName(tag),
	}
	createURL := fmt.Sprintf("%s/repos/%s/releases", c.BaseURL, deploy.Repository)
	status, err = c.doJSON(ctx, http.MethodPost, createURL, body, &rel)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, fmt.Errorf("create release for tag %s: unexpected status %d", tag, status)
	}
	return &rel, nil
}

// resolveAssetConflict deletes an existing asset of the same name when
// force is enabled, and fails otherwise.
func (c *GitHubClient) resolveAssetConflict(ctx context.Context, deploy *model.Deploy, rel *githubRelease, assetName string) error {
	listURL := fmt.Sprintf("%s/repos/%s/releases/%d/assets", c.BaseURL, deploy.Repository, rel.ID)

	var assets []githubAsset
	status, err := c.doJSON(ctx, http.MethodGet, listURL, nil, &assets)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("list release assets: unexpected status %d", status)
	}

	for _, a := range assets {
		if a.Name != assetName {
			continue
		}
		if !deploy.Force {
			return fmt.Errorf("release asset %q already exists (set force to overwrite)", assetName)
		}
		delURL := fmt.Sprintf("%s/repos/%s/releases/assets/%d", c.BaseURL, deploy.Repository, a.ID)
		status, err := c.doJSON(ctx, http.MethodDelete, delURL, nil, nil)
		if err != nil {
			return err
		}
		if status != http.StatusNoContent {
			return fmt.Errorf("delete existing asset %q: unexpected status %d", assetName, status)
		}
	}
	return nil
}

// uploadAsset posts the archive bytes to the upload endpoint.
func (c *GitHubClient) uploadAsset(ctx context.Context, deploy *model.Deploy, rel *githubRelease, assetName string, data []byte) error {
	uploadURL := fmt.Sprintf("%s/repos/%s/releases/%d/assets?name=%s",
		c.UploadURL, deploy.Repository, rel.ID, url.QueryEscape(assetName))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/zip")
	req.ContentLength = int64(len(data))

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("upload asset %q: %w", assetName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload asset %q: unexpected status %d: %s", assetName, resp.StatusCode, msg)
	}
	return nil
}

// doJSON performs a JSON request/response exchange and returns the
// status code. A nil out skips response decoding; 404 on GET is
// returned to the caller rather than treated as an error so
// ensureRelease can branch on it.
func (c *GitHubClient) doJSON(ctx context.Context, method, rawURL string, body, out interface{}) (int, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return 0, err
	}
	c.authorize(req)
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response from %s: %w", rawURL, err)
		}
	}
	return resp.StatusCode, nil
}

// authorize attaches the bearer token.
func (c *GitHubClient) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.Token)
}

// httpClient returns the configured client or a default one.
func (c *GitHubClient) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: uploadTimeout}
}
