package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	gh "github.com/google/go-github/v68/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sec-tools/iac-sentinel/pkg/models/domain"
)

func testClient(t *testing.T, mux *http.ServeMux) *Client {
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	api := gh.NewClient(server.Client())
	baseURL, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	api.BaseURL = baseURL

	return &Client{api: api, statusContext: "security-review"}
}

func testRequest() domain.ChangeRequest {
	return domain.ChangeRequest{
		Owner:   "octo",
		Repo:    "infra",
		Number:  5,
		HeadSHA: "0123456789abcdef",
		HeadRef: "feature",
		BaseRef: "main",
	}
}

func contentJSON(path, content string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	return fmt.Sprintf(`{"type": "file", "encoding": "base64", "name": %q, "path": %q, "sha": "filesha", "content": %q}`, path, path, encoded)
}

func TestClient_ChangedFiles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/infra/pulls/5/files", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"filename": "main.tf"}, {"filename": "README.md"}, {"filename": "broken.yaml"}]`)
	})
	mux.HandleFunc("/repos/octo/infra/contents/main.tf", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0123456789abcdef", r.URL.Query().Get("ref"))
		fmt.Fprint(w, contentJSON("main.tf", "resource \"aws_s3_bucket\" \"b\" {}\n"))
	})
	mux.HandleFunc("/repos/octo/infra/contents/broken.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	files, err := testClient(t, mux).ChangedFiles(context.Background(), testRequest())

	require.NoError(t, err)
	require.Len(t, files, 1, "non-infra files are ignored, undownloadable ones skipped")
	assert.Equal(t, "resource \"aws_s3_bucket\" \"b\" {}\n", files["main.tf"])
}

func TestClient_CreateStatus(t *testing.T) {
	var got gh.RepoStatus
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/infra/statuses/0123456789abcdef", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{}`)
	})

	err := testClient(t, mux).CreateStatus(context.Background(), testRequest(), domain.CommitStateFailure, "Security review found 2 issue(s)")

	require.NoError(t, err)
	assert.Equal(t, "failure", got.GetState())
	assert.Equal(t, "Security review found 2 issue(s)", got.GetDescription())
	assert.Equal(t, "security-review", got.GetContext())
}

func TestClient_CreateReviewComment_OnLine(t *testing.T) {
	var got gh.PullRequestComment
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/infra/pulls/5/comments", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{}`)
	})

	err := testClient(t, mux).CreateReviewComment(context.Background(), testRequest(), "annotation", "main.tf", 12)

	require.NoError(t, err)
	assert.Equal(t, "annotation", got.GetBody())
	assert.Equal(t, "main.tf", got.GetPath())
	assert.Equal(t, 12, got.GetLine())
	assert.Equal(t, "0123456789abcdef", got.GetCommitID())
}

func TestClient_CreateReviewComment_WithoutLineFallsBackToConversation(t *testing.T) {
	var got gh.IssueComment
	hit := false
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/infra/issues/5/comments", func(w http.ResponseWriter, r *http.Request) {
		hit = true
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{}`)
	})

	err := testClient(t, mux).CreateReviewComment(context.Background(), testRequest(), "summary", "", 0)

	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "summary", got.GetBody())
}

func TestClient_SubmitFixes(t *testing.T) {
	var (
		createdRef struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		}
		commitMessages []string
		updateSHA      string
		newPR          gh.NewPullRequest
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/infra/git/ref/heads/feature", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ref": "refs/heads/feature", "object": {"sha": "0123456789abcdef"}}`)
	})
	mux.HandleFunc("/repos/octo/infra/git/refs", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&createdRef))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"ref": "refs/heads/security-fixes-0123456"}`)
	})
	mux.HandleFunc("/repos/octo/infra/contents/main.tf", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			assert.Equal(t, "security-fixes-0123456", r.URL.Query().Get("ref"))
			fmt.Fprint(w, contentJSON("main.tf", "old content\n"))
			return
		}
		var opts gh.RepositoryContentFileOptions
		require.NoError(t, json.NewDecoder(r.Body).Decode(&opts))
		commitMessages = append(commitMessages, opts.GetMessage())
		updateSHA = opts.GetSHA()
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/repos/octo/infra/contents/new.tf", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var opts gh.RepositoryContentFileOptions
		require.NoError(t, json.NewDecoder(r.Body).Decode(&opts))
		commitMessages = append(commitMessages, opts.GetMessage())
		assert.Empty(t, opts.GetSHA(), "a new file is created without a base sha")
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{}`)
	})
	mux.HandleFunc("/repos/octo/infra/pulls", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&newPR))
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"number": 6}`)
	})

	changes := map[string]string{
		"main.tf": "fixed content\n",
		"new.tf":  "brand new\n",
	}
	err := testClient(t, mux).SubmitFixes(context.Background(), testRequest(), changes,
		"🔒 Security fixes suggested by AI review", "This PR contains automated security fixes suggested by the AI security review.")

	require.NoError(t, err)
	assert.Equal(t, "refs/heads/security-fixes-0123456", createdRef.Ref)
	assert.Equal(t, "0123456789abcdef", createdRef.SHA)
	assert.Equal(t, []string{
		"fix: Security improvements for main.tf",
		"fix: Security improvements for new.tf",
	}, commitMessages)
	assert.Equal(t, "filesha", updateSHA)
	assert.Equal(t, "security-fixes-0123456", newPR.GetHead())
	assert.Equal(t, "feature", newPR.GetBase())
	assert.Equal(t, "🔒 Security fixes suggested by AI review", newPR.GetTitle())
}

func TestClient_SubmitFixes_ToleratesExistingBranch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/infra/git/ref/heads/feature", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ref": "refs/heads/feature", "object": {"sha": "0123456789abcdef"}}`)
	})
	mux.HandleFunc("/repos/octo/infra/git/refs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		fmt.Fprint(w, `{"message": "Reference already exists"}`)
	})
	mux.HandleFunc("/repos/octo/infra/pulls", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"number": 6}`)
	})

	err := testClient(t, mux).SubmitFixes(context.Background(), testRequest(), nil, "t", "b")

	require.NoError(t, err)
}

func TestFixBranchName_TruncatesSHA(t *testing.T) {
	assert.Equal(t, "security-fixes-0123456", fixBranchName("0123456789abcdef"))
	assert.Equal(t, "security-fixes-abc", fixBranchName("abc"))
}

func TestIsInfraFile(t *testing.T) {
	assert.True(t, isInfraFile("main.tf"))
	assert.True(t, isInfraFile("deploy/app.yaml"))
	assert.True(t, isInfraFile("ci.yml"))
	assert.False(t, isInfraFile("README.md"))
	assert.False(t, isInfraFile("main.tf.bak"))
}
