package syncer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/itzmeanjan/gh-sync/catalog"
	"github.com/itzmeanjan/gh-sync/internal/utils"
)

// gitStep couples a sync stage with the git arguments that drive it.
type gitStep struct {
	stage Stage
	args  []string
}

// updateSteps refresh an existing clone in order, stopping at the first
// failure. Fetch first so all remote refs and tags are current even when
// the fast-forward is refused, then bring submodules in line with the
// checked out commit.
var updateSteps = []gitStep{
	{StageFetch, []string{"fetch", "--all", "--prune", "--tags"}},
	{StagePull, []string{"pull", "--ff-only"}},
	{StageSubmoduleUpdate, []string{"submodule", "update", "--init", "--recursive"}},
}

// syncOne dispatches a repository on the state of its local path and
// returns the outcome. Every error ends up in the Result, workers never
// propagate them.
func (s *Syncer) syncOne(ctx context.Context, repo catalog.Repo) Result {
	defer updateSyncLatency(repo.Name, time.Now())

	if !isSafeName(repo.Name) {
		return s.failure(repo, ActionNone, StageUnexpected,
			fmt.Errorf("repository name %q is not a safe path segment", repo.Name))
	}

	local := filepath.Join(s.root, repo.Name)

	fi, err := os.Stat(local)
	switch {
	case os.IsNotExist(err):
		return s.clone(ctx, repo, local)
	case err != nil:
		return s.failure(repo, ActionNone, StageUnexpected, err)
	case fi.IsDir() && utils.HasGitDir(local):
		return s.update(ctx, repo, local)
	default:
		// a plain file or a directory without the .git marker is left alone,
		// but the repository still counts as failed
		return Result{
			Repo:   repo,
			Action: ActionNone,
			Stage:  StageSkippedNonGit,
			Err:    fmt.Errorf("skipping %s: path %s exists but is not a git repository", repo.Name, local),
		}
	}
}

// clone creates a fresh clone of the repository, submodules included.
func (s *Syncer) clone(ctx context.Context, repo catalog.Repo, local string) Result {
	s.log.Info("cloning repository", "repo", repo.Name, "url", repo.URL)

	if _, err := s.git(ctx, s.root, "clone", "--recursive", repo.URL, local); err != nil {
		return s.failure(repo, ActionClone, StageClone, err)
	}
	return Result{Repo: repo, Action: ActionClone}
}

// update refreshes an existing clone by running updateSteps inside it.
func (s *Syncer) update(ctx context.Context, repo catalog.Repo, local string) Result {
	s.log.Info("updating repository", "repo", repo.Name, "path", local)

	for _, step := range updateSteps {
		if _, err := s.git(ctx, local, step.args...); err != nil {
			return s.failure(repo, ActionUpdate, step.stage, err)
		}
	}
	return Result{Repo: repo, Action: ActionUpdate}
}

// git runs a single git command in cwd, bounded by the per-invocation
// timeout and carrying the syncer's environment.
func (s *Syncer) git(ctx context.Context, cwd string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return utils.RunCommand(ctx, s.log, s.envs, cwd, s.gitExec, args...)
}
