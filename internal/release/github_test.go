package release

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipewright/pipewright/internal/model"
)

// fakeGitHub is a minimal in-memory GitHub Releases API for tests.
// It serves both the REST endpoints and the upload endpoint from one
// httptest server.
type fakeGitHub struct {
	t *testing.T

	// releases maps tag → release ID; assets maps asset ID → name.
	releases map[string]int64
	assets   map[int64]string

	nextID        int64
	createdName   string
	uploadedBody  []byte
	uploadedName  string
	deletedAssets []int64
	authHeaders   []string
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	return &fakeGitHub{
		t:        t,
		releases: map[string]int64{},
		assets:   map[int64]string{},
		nextID:   100,
	}
}

func (f *fakeGitHub) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /repos/acme/spawner/releases/tags/{tag}", func(w http.ResponseWriter, r *http.Request) {
		f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
		id, ok := f.releases[r.PathValue("tag")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": id, "tag_name": r.PathValue("tag")})
	})

	mux.HandleFunc("POST /repos/acme/spawner/releases", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TagName string `json:"tag_name"`
			Name    string `json:"name"`
		}
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.nextID++
		f.releases[body.TagName] = f.nextID
		f.createdName = body.Name
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": f.nextID, "tag_name": body.TagName, "name": body.Name})
	})

	// The trailing {rest...} wildcard keeps this pattern strictly less
	// specific than "releases/tags/{tag}" above; a literal "assets"
	// segment would make the two patterns conflict in ServeMux.
	mux.HandleFunc("GET /repos/acme/spawner/releases/{id}/{rest...}", func(w http.ResponseWriter, r *http.Request) {
		var list []map[string]interface{}
		for id, name := range f.assets {
			list = append(list, map[string]interface{}{"id": id, "name": name})
		}
		_ = json.NewEncoder(w).Encode(list)
	})

	mux.HandleFunc("DELETE /repos/acme/spawner/releases/assets/{id}", func(w http.ResponseWriter, r *http.Request) {
		var id int64
		_, err := fmt.Sscan(r.PathValue("id"), &id)
		require.NoError(f.t, err)
		delete(f.assets, id)
		f.deletedAssets = append(f.deletedAssets, id)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /repos/acme/spawner/releases/{id}/assets", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(f.t, err)
		f.uploadedBody = body
		f.uploadedName = r.URL.Query().Get("name")
		f.nextID++
		f.assets[f.nextID] = f.uploadedName
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": f.nextID, "name": f.uploadedName})
	})

	return mux
}

// newTestClient wires a GitHubClient to the fake server.
func newTestClient(srv *httptest.Server) *GitHubClient {
	c := NewGitHubClient("test-token")
	c.BaseURL = srv.URL
	c.UploadURL = srv.URL
	c.HTTP = srv.Client()
	return c
}

// writeArchive creates a fake zip on disk and returns its path.
func writeArchive(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("zip bytes"), 0o644))
	return path
}

func testDeploy(force bool) *model.Deploy {
	return &model.Deploy{
		Provider:   "github",
		Repository: "acme/spawner",
		Release:    "spawner-$(tag)",
		Artifact:   "sp.zip",
		TokenEnv:   "GITHUB_TOKEN",
		Force:      force,
	}
}

// TestPublish_CreatesReleaseAndUploads covers the cold path: no release
// exists for the tag yet, so one is created with the templated name and
// the asset is uploaded to it.
func TestPublish_CreatesReleaseAndUploads(t *testing.T) {
	gh := newFakeGitHub(t)
	srv := httptest.NewServer(gh.handler())
	defer srv.Close()

	client := newTestClient(srv)
	err := client.Publish(context.Background(), testDeploy(true), "v1.2.3", writeArchive(t, "sp.zip"))
	require.NoError(t, err)

	assert.Equal(t, "spawner-v1.2.3", gh.createdName, "release name comes from the template")
	assert.Equal(t, "sp.zip", gh.uploadedName)
	assert.Equal(t, []byte("zip bytes"), gh.uploadedBody)
	assert.Contains(t, gh.authHeaders[0], "Bearer test-token")
}

// TestPublish_ReusesExistingRelease verifies a second publish for the
// same tag does not create a duplicate release.
func TestPublish_ReusesExistingRelease(t *testing.T) {
	gh := newFakeGitHub(t)
	gh.releases["v1.2.3"] = 42
	srv := httptest.NewServer(gh.handler())
	defer srv.Close()

	client := newTestClient(srv)
	err := client.Publish(context.Background(), testDeploy(true), "v1.2.3", writeArchive(t, "sp.zip"))
	require.NoError(t, err)

	assert.Empty(t, gh.createdName, "no release should be created")
	assert.Equal(t, "sp.zip", gh.uploadedName)
}

// TestPublish_ForceOverwritesAsset verifies the force flag deletes the
// existing same-named asset before uploading.
func TestPublish_ForceOverwritesAsset(t *testing.T) {
	gh := newFakeGitHub(t)
	gh.releases["v1.2.3"] = 42
	gh.assets[7] = "sp.zip"
	srv := httptest.NewServer(gh.handler())
	defer srv.Close()

	client := newTestClient(srv)
	err := client.Publish(context.Background(), testDeploy(true), "v1.2.3", writeArchive(t, "sp.zip"))
	require.NoError(t, err)

	assert.Equal(t, []int64{7}, gh.deletedAssets)
	assert.Equal(t, "sp.zip", gh.uploadedName)
}

// TestPublish_ConflictWithoutForce verifies an existing asset fails the
// publish when force is off.
func TestPublish_ConflictWithoutForce(t *testing.T) {
	gh := newFakeGitHub(t)
	gh.releases["v1.2.3"] = 42
	gh.assets[7] = "sp.zip"
	srv := httptest.NewServer(gh.handler())
	defer srv.Close()

	client := newTestClient(srv)
	err := client.Publish(context.Background(), testDeploy(false), "v1.2.3", writeArchive(t, "sp.zip"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	assert.Empty(t, gh.deletedAssets)
}

// TestPublish_MissingToken verifies an empty token fails before any
// network traffic.
func TestPublish_MissingToken(t *testing.T) {
	client := NewGitHubClient("")
	err := client.Publish(context.Background(), testDeploy(true), "v1.2.3", writeArchive(t, "sp.zip"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GITHUB_TOKEN")
}

// TestPublish_MissingArchive verifies a missing archive file is
// reported as a read error.
func TestPublish_MissingArchive(t *testing.T) {
	client := NewGitHubClient("token")
	err := client.Publish(context.Background(), testDeploy(true), "v1.2.3", "/nonexistent/sp.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read archive")
}
