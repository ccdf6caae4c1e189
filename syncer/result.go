package syncer

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/itzmeanjan/gh-sync/catalog"
)

// Action describes what the syncer set out to do with a repository.
type Action string

const (
	// ActionClone means the repository was missing and a clone was attempted.
	ActionClone Action = "clone"
	// ActionUpdate means an existing clone was refreshed.
	ActionUpdate Action = "update"
	// ActionNone means no git command was run for the repository.
	ActionNone Action = "none"
)

// Stage pins down where a repository sync stopped. It is empty on success.
type Stage string

const (
	StageClone           Stage = "clone"
	StageFetch           Stage = "fetch"
	StagePull            Stage = "pull"
	StageSubmoduleUpdate Stage = "submodule_update"
	StageSkippedNonGit   Stage = "skipped_non_git"
	StageTimeout         Stage = "timeout"
	StageCanceled        Stage = "canceled"
	StageUnexpected      Stage = "unexpected"
)

// stageVerbs and stageCmds feed the error messages attached to failed
// results, keyed by the git step that was running.
var (
	stageVerbs = map[Stage]string{
		StageClone:           "cloning",
		StageFetch:           "fetching",
		StagePull:            "pulling",
		StageSubmoduleUpdate: "updating submodules for",
	}
	stageCmds = map[Stage]string{
		StageClone:           "clone",
		StageFetch:           "fetch",
		StagePull:            "pull",
		StageSubmoduleUpdate: "submodule update",
	}
)

// Result is the outcome of syncing one repository. A sync run produces
// exactly one Result per repository handed to it.
type Result struct {
	Repo   catalog.Repo
	Action Action
	Stage  Stage
	Err    error
}

// Failed reports whether the repository sync ended in an error. A path
// skipped for not being a git repository counts as failed too, it just
// carries the skipped_non_git stage instead of a git step.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Failures filters results down to the failed ones, preserving order.
func Failures(results []Result) []Result {
	var failed []Result
	for _, res := range results {
		if res.Failed() {
			failed = append(failed, res)
		}
	}
	return failed
}

// failure classifies the error of a git step and wraps it into a Result.
// Timeouts and cancellations get their own stages so that callers can tell
// a slow remote from a broken one.
func (s *Syncer) failure(repo catalog.Repo, action Action, step Stage, err error) Result {
	verb := stageVerbs[step]
	if verb == "" {
		// the failure predates any git step
		verb = "syncing"
	}
	var exitErr *exec.ExitError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Result{Repo: repo, Action: action, Stage: StageTimeout,
			Err: fmt.Errorf("timeout %s %s (>%ds) err:%w", verb, repo.Name, int(s.timeout.Seconds()), err)}
	case errors.Is(err, context.Canceled):
		return Result{Repo: repo, Action: action, Stage: StageCanceled,
			Err: fmt.Errorf("canceled %s %s err:%w", verb, repo.Name, err)}
	case errors.As(err, &exitErr):
		return Result{Repo: repo, Action: action, Stage: step,
			Err: fmt.Errorf("error %s %s: git %s exited with %d err:%w",
				verb, repo.Name, stageCmds[step], exitErr.ExitCode(), err)}
	default:
		return Result{Repo: repo, Action: action, Stage: StageUnexpected,
			Err: fmt.Errorf("unexpected error with %s err:%w", repo.Name, err)}
	}
}
