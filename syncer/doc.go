// Package syncer keeps a local directory tree in step with a repository
// catalog by cloning missing repositories and updating existing ones in
// parallel, driving the git binary.
//
// Each repository is dispatched on the state of its local path under the
// sync root:
//
//   - missing: cloned with full history and recursive submodules
//   - present with a `.git` directory: fetched (all remotes, pruned, tags),
//     fast-forwarded and its submodules updated, in that order, stopping at
//     the first failing step
//   - present without the marker: left untouched, reported as a failed
//     skipped_non_git outcome
//
// At most a configured number of repositories are synced at once, every git
// invocation is individually bounded by a timeout and runs with terminal
// prompts disabled. A failing repository never affects its siblings; the
// run collects one Result per repository.
//
// # Logging:
//
// package takes slog reference for logging and prints logs up to 'trace' level
//
// Example:
//
//	loggerLevel  = new(slog.LevelVar)
//	levelStrings = map[string]slog.Level{
//		"trace": slog.Level(-8),
//		"debug": slog.LevelDebug,
//		"info":  slog.LevelInfo,
//		"warn":  slog.LevelWarn,
//		"error": slog.LevelError,
//	}
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//		Level: loggerLevel,
//	}))
//	loggerLevel.Set(levelStrings["trace"])
//
//	sync, err := syncer.New(syncConf, "", nil, logger)
//	if err != nil {
//		panic(err)
//	}
package syncer
