package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/itzmeanjan/gh-sync/catalog"
	"github.com/itzmeanjan/gh-sync/internal/lock"
	"github.com/itzmeanjan/gh-sync/internal/utils"
)

const (
	defaultGitTimeout = 5 * time.Minute

	minAllowedTimeout = time.Second
)

// Config is the configuration of a sync run.
type Config struct {
	// Root is the absolute path of the directory the clones live under.
	Root string `yaml:"root"`

	// GitTimeout bounds every single git invocation. A repository update
	// runs up to three git commands, each gets the full timeout.
	// Defaults to 5m.
	GitTimeout time.Duration `yaml:"git_timeout"`

	// Concurrency caps how many repositories are synced at once.
	// Defaults to DefaultConcurrency.
	Concurrency int `yaml:"concurrency"`
}

// DefaultConcurrency returns twice the CPU count. Repository syncs spend
// their time waiting on the network and on git, not on the CPU.
func DefaultConcurrency() int {
	return max(1, runtime.NumCPU()) * 2
}

// Syncer clones and updates catalog repositories under a root directory.
// A Syncer runs one sync at a time; Sync must not be called concurrently.
type Syncer struct {
	root    string
	gitExec string
	timeout time.Duration
	limit   int
	envs    []string
	log     *slog.Logger

	mu      lock.Mutex
	results []Result
}

// New validates conf and returns a Syncer. gitExec is the git binary to
// drive, resolved on PATH when empty. envs extend the inherited process
// environment of every git invocation; terminal prompts are always
// disabled on top of whatever is passed.
func New(conf Config, gitExec string, envs []string, log *slog.Logger) (*Syncer, error) {
	if log == nil {
		log = slog.Default()
	}

	if !filepath.IsAbs(conf.Root) {
		return nil, fmt.Errorf("sync root '%s' must be absolute", conf.Root)
	}

	if conf.GitTimeout == 0 {
		conf.GitTimeout = defaultGitTimeout
	}
	if conf.GitTimeout < minAllowedTimeout {
		return nil, fmt.Errorf("provided git timeout is too short (%s), must be >= %s",
			conf.GitTimeout, minAllowedTimeout)
	}

	if conf.Concurrency == 0 {
		conf.Concurrency = DefaultConcurrency()
	}
	if conf.Concurrency < 1 {
		return nil, fmt.Errorf("provided concurrency (%d) must be >= 1", conf.Concurrency)
	}

	if gitExec == "" {
		gitExec = "git"
	}

	return &Syncer{
		root:    conf.Root,
		gitExec: gitExec,
		timeout: conf.GitTimeout,
		limit:   conf.Concurrency,
		envs:    append(slices.Clone(envs), "GIT_TERMINAL_PROMPT=0"),
		log:     log,
	}, nil
}

// Sync brings the tree under the root in line with repos and returns one
// Result per repository, in completion order. It returns an error only
// when the root itself cannot be prepared; per-repository failures are
// reported through the results.
//
// Cancelling ctx stops new git commands from starting and terminates the
// running ones, repositories that never got a turn still record a
// canceled Result.
func (s *Syncer) Sync(ctx context.Context, repos []catalog.Repo) ([]Result, error) {
	start := time.Now()

	created, err := utils.EnsureDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("unable to ensure sync root err:%w", err)
	}
	if created {
		s.log.Info("created target directory", "path", s.root)
	}

	s.mu.Lock()
	s.results = make([]Result, 0, len(repos))
	s.mu.Unlock()

	// catalog names become directories under one root, a name appearing
	// twice would put two workers on the same path
	seen := make(map[string]bool, len(repos))

	gate := make(chan struct{}, s.limit)
	var wg sync.WaitGroup

	for _, repo := range repos {
		if seen[repo.Name] {
			s.collect(s.failure(repo, ActionNone, StageUnexpected,
				fmt.Errorf("duplicate repository name %q in catalog", repo.Name)))
			continue
		}
		seen[repo.Name] = true

		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case gate <- struct{}{}:
			case <-ctx.Done():
				// interrupted before this repository got a slot, still
				// record an outcome so the report stays complete
				s.collect(s.failure(repo, ActionNone, StageCanceled, ctx.Err()))
				return
			}
			defer func() { <-gate }()

			s.collect(s.syncOne(ctx, repo))
		}()
	}

	wg.Wait()

	s.mu.Lock()
	results := s.results
	s.results = nil
	s.mu.Unlock()

	s.log.Info("sync finished",
		"repos", len(results), "failed", len(Failures(results)), "time", time.Since(start))
	return results, nil
}

// collect appends one result and logs failures as they happen rather than
// only in the final report.
func (s *Syncer) collect(res Result) {
	if res.Failed() {
		s.log.Error("repository sync failed",
			"repo", res.Repo.Name, "stage", res.Stage, "err", res.Err)
	}
	recordRepoSync(res.Repo.Name, !res.Failed())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.results = append(s.results, res)
}
