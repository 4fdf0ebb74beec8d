package git

import (
	"context"

	"github.com/pkg/errors"
)

// Identity is the author used for commits.
type Identity struct {
	Name  string
	Email string
}

// BotIdentity is the identity GitHub Actions commits as.
var BotIdentity = Identity{
	Name:  "github-actions[bot]",
	Email: "github-actions[bot]@users.noreply.github.com",
}

// Repo exposes the branch, tag and commit bookkeeping the build preparation
// needs, one method per git invocation.
type Repo struct {
	runner Runner
	remote string
}

// NewRepo returns a Repo that talks to remote through runner.
func NewRepo(runner Runner, remote string) *Repo {
	if remote == "" {
		remote = "origin"
	}
	return &Repo{runner: runner, remote: remote}
}

// Remote is the remote name pushes and fetches go to.
func (r *Repo) Remote() string { return r.remote }

func (r *Repo) run(ctx context.Context, args ...string) (Result, error) {
	return r.runner.Run(ctx, args...)
}

func (r *Repo) exec(ctx context.Context, args ...string) error {
	_, err := r.run(ctx, args...)
	return err
}

// Checkout switches to an existing branch.
func (r *Repo) Checkout(ctx context.Context, branch string) error {
	return r.exec(ctx, "checkout", branch)
}

// FetchRemote updates remote-tracking refs.
func (r *Repo) FetchRemote(ctx context.Context) error {
	return r.exec(ctx, "fetch", r.remote)
}

// RemoteBranchExists reports whether branch exists on the remote.
func (r *Repo) RemoteBranchExists(ctx context.Context, branch string) (bool, error) {
	res, err := r.run(ctx, "ls-remote", "--heads", r.remote, branch)
	if err != nil {
		return false, err
	}
	return res.Stdout != "", nil
}

// DeleteRemoteBranch removes branch from the remote.
func (r *Repo) DeleteRemoteBranch(ctx context.Context, branch string) error {
	return r.exec(ctx, "push", r.remote, "--delete", branch)
}

// LocalBranchExists reports whether a local branch with that name exists.
func (r *Repo) LocalBranchExists(ctx context.Context, branch string) (bool, error) {
	res, err := r.run(ctx, "branch", "--list", branch)
	if err != nil {
		return false, err
	}
	return res.Stdout != "", nil
}

// DeleteLocalBranch force-deletes a local branch.
func (r *Repo) DeleteLocalBranch(ctx context.Context, branch string) error {
	return r.exec(ctx, "branch", "-D", branch)
}

// CreateBranch creates branch from HEAD and switches to it.
func (r *Repo) CreateBranch(ctx context.Context, branch string) error {
	return r.exec(ctx, "checkout", "-b", branch)
}

// UserConfigured reports whether user.name is set in git config.
func (r *Repo) UserConfigured(ctx context.Context) bool {
	res, err := r.run(ctx, "config", "user.name")
	return err == nil && res.Stdout != ""
}

// ConfigureUser writes user.name and user.email to the repository config.
func (r *Repo) ConfigureUser(ctx context.Context, id Identity) error {
	if err := r.exec(ctx, "config", "user.name", id.Name); err != nil {
		return err
	}
	return r.exec(ctx, "config", "user.email", id.Email)
}

// Add stages paths.
func (r *Repo) Add(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return errors.New("git: add: no paths")
	}
	return r.exec(ctx, append([]string{"add"}, paths...)...)
}

// Commit records staged changes with message, authored as id.
func (r *Repo) Commit(ctx context.Context, message string, id Identity) error {
	return r.exec(ctx,
		"-c", "user.name="+id.Name,
		"-c", "user.email="+id.Email,
		"commit", "-m", message,
	)
}

// PushBranch pushes branch to the remote.
func (r *Repo) PushBranch(ctx context.Context, branch string) error {
	return r.exec(ctx, "push", r.remote, branch)
}

// LocalTagExists reports whether tag exists locally.
func (r *Repo) LocalTagExists(ctx context.Context, tag string) (bool, error) {
	res, err := r.run(ctx, "tag", "--list", tag)
	if err != nil {
		return false, err
	}
	return res.Stdout != "", nil
}

// DeleteLocalTag removes a local tag.
func (r *Repo) DeleteLocalTag(ctx context.Context, tag string) error {
	return r.exec(ctx, "tag", "-d", tag)
}

// DeleteRemoteTag removes a tag from the remote.
func (r *Repo) DeleteRemoteTag(ctx context.Context, tag string) error {
	return r.exec(ctx, "push", r.remote, "--delete", "refs/tags/"+tag)
}

// CreateTag creates a lightweight tag at HEAD.
func (r *Repo) CreateTag(ctx context.Context, tag string) error {
	return r.exec(ctx, "tag", tag)
}

// PushTag pushes a single tag to the remote.
func (r *Repo) PushTag(ctx context.Context, tag string) error {
	return r.exec(ctx, "push", r.remote, "refs/tags/"+tag)
}
