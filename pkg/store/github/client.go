// Package github talks to the GitHub REST API for everything the review
// pipeline needs: pull request contents, commit statuses, review comments
// and fix branches.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	gh "github.com/google/go-github/v68/github"
	"github.com/rs/zerolog"

	"github.com/sec-tools/iac-sentinel/pkg/models/domain"
)

// Service is the pipeline's view of the VCS.
type Service interface {
	// ChangedFiles returns the infrastructure files touched by the change
	// request, keyed by repo-relative path, at the head commit.
	ChangedFiles(ctx context.Context, req domain.ChangeRequest) (map[string]string, error)
	// CreateStatus sets the commit status on the head commit.
	CreateStatus(ctx context.Context, req domain.ChangeRequest, state domain.CommitState, description string) error
	// CreateReviewComment annotates a line of the change request. A line of 0
	// posts a plain conversation comment instead.
	CreateReviewComment(ctx context.Context, req domain.ChangeRequest, body, path string, line int) error
	// SubmitFixes pushes changed file contents to a fix branch and opens a
	// pull request against the change request's source branch.
	SubmitFixes(ctx context.Context, req domain.ChangeRequest, changes map[string]string, title, body string) error
}

type Client struct {
	api           *gh.Client
	statusContext string
}

func NewClient(token, statusContext string) *Client {
	return &Client{
		api:           gh.NewClient(nil).WithAuthToken(token),
		statusContext: statusContext,
	}
}

func (c *Client) ChangedFiles(ctx context.Context, req domain.ChangeRequest) (map[string]string, error) {
	files := map[string]string{}
	opts := &gh.ListOptions{PerPage: 100}
	for {
		page, resp, err := c.api.PullRequests.ListFiles(ctx, req.Owner, req.Repo, req.Number, opts)
		if err != nil {
			return nil, fmt.Errorf("list pull request files: %w", err)
		}

		for _, file := range page {
			name := file.GetFilename()
			if !isInfraFile(name) {
				continue
			}
			content, err := c.fileContent(ctx, req, name, req.HeadSHA)
			if err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("file", name).Msg("skipping undownloadable file")
				continue
			}
			files[name] = content
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return files, nil
}

func (c *Client) CreateStatus(ctx context.Context, req domain.ChangeRequest, state domain.CommitState, description string) error {
	_, _, err := c.api.Repositories.CreateStatus(ctx, req.Owner, req.Repo, req.HeadSHA, &gh.RepoStatus{
		State:       gh.Ptr(string(state)),
		Description: gh.Ptr(description),
		Context:     gh.Ptr(c.statusContext),
	})
	if err != nil {
		return fmt.Errorf("create commit status: %w", err)
	}
	return nil
}

func (c *Client) CreateReviewComment(ctx context.Context, req domain.ChangeRequest, body, path string, line int) error {
	if line > 0 {
		_, _, err := c.api.PullRequests.CreateComment(ctx, req.Owner, req.Repo, req.Number, &gh.PullRequestComment{
			Body:     gh.Ptr(body),
			CommitID: gh.Ptr(req.HeadSHA),
			Path:     gh.Ptr(path),
			Line:     gh.Ptr(line),
			Side:     gh.Ptr("RIGHT"),
		})
		if err != nil {
			return fmt.Errorf("create review comment: %w", err)
		}
		return nil
	}

	_, _, err := c.api.Issues.CreateComment(ctx, req.Owner, req.Repo, req.Number, &gh.IssueComment{
		Body: gh.Ptr(body),
	})
	if err != nil {
		return fmt.Errorf("create issue comment: %w", err)
	}
	return nil
}

func (c *Client) SubmitFixes(ctx context.Context, req domain.ChangeRequest, changes map[string]string, title, body string) error {
	baseRef, _, err := c.api.Git.GetRef(ctx, req.Owner, req.Repo, "heads/"+req.HeadRef)
	if err != nil {
		return fmt.Errorf("resolve base branch: %w", err)
	}
	baseSHA := baseRef.GetObject().GetSHA()

	branch := fixBranchName(baseSHA)
	_, _, err = c.api.Git.CreateRef(ctx, req.Owner, req.Repo, &gh.Reference{
		Ref:    gh.Ptr("refs/heads/" + branch),
		Object: &gh.GitObject{SHA: gh.Ptr(baseSHA)},
	})
	if err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("create fix branch: %w", err)
	}

	paths := make([]string, 0, len(changes))
	for path := range changes {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := c.commitFile(ctx, req, branch, path, changes[path]); err != nil {
			return err
		}
	}

	_, _, err = c.api.PullRequests.Create(ctx, req.Owner, req.Repo, &gh.NewPullRequest{
		Title: gh.Ptr(title),
		Head:  gh.Ptr(branch),
		Base:  gh.Ptr(req.HeadRef),
		Body:  gh.Ptr(body),
	})
	if err != nil {
		return fmt.Errorf("create fix pull request: %w", err)
	}
	return nil
}

func (c *Client) commitFile(ctx context.Context, req domain.ChangeRequest, branch, path, content string) error {
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.Ptr(fmt.Sprintf("fix: Security improvements for %s", path)),
		Content: []byte(content),
		Branch:  gh.Ptr(branch),
	}

	current, _, _, err := c.api.Repositories.GetContents(ctx, req.Owner, req.Repo, path, &gh.RepositoryContentGetOptions{Ref: branch})
	if err == nil && current != nil {
		opts.SHA = gh.Ptr(current.GetSHA())
		if _, _, err := c.api.Repositories.UpdateFile(ctx, req.Owner, req.Repo, path, opts); err != nil {
			return fmt.Errorf("update %s on %s: %w", path, branch, err)
		}
		return nil
	}

	if _, _, err := c.api.Repositories.CreateFile(ctx, req.Owner, req.Repo, path, opts); err != nil {
		return fmt.Errorf("create %s on %s: %w", path, branch, err)
	}
	return nil
}

func (c *Client) fileContent(ctx context.Context, req domain.ChangeRequest, path, ref string) (string, error) {
	fc, _, _, err := c.api.Repositories.GetContents(ctx, req.Owner, req.Repo, path, &gh.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return "", err
	}
	if fc == nil {
		return "", fmt.Errorf("path %s points to a directory", path)
	}
	return fc.GetContent()
}

func fixBranchName(sha string) string {
	if len(sha) > 7 {
		sha = sha[:7]
	}
	return "security-fixes-" + sha
}

func isInfraFile(name string) bool {
	return strings.HasSuffix(name, ".tf") ||
		strings.HasSuffix(name, ".yaml") ||
		strings.HasSuffix(name, ".yml")
}

func isAlreadyExists(err error) bool {
	var ghErr *gh.ErrorResponse
	if !errors.As(err, &ghErr) {
		return false
	}
	return ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusUnprocessableEntity
}
