package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/itzmeanjan/gh-sync/catalog"
	"github.com/itzmeanjan/gh-sync/internal/utils"
)

// pruneOrphans deletes clones under root whose repository is no longer in
// the catalog. Only directories carrying a `.git` directory are removed;
// plain directories and files were never created by a sync and are
// reported and left alone. Dotfiles are ignored entirely.
//
// This must only run after a complete catalog listing, a partial one
// would make live repositories look orphaned.
func pruneOrphans(root string, repos []catalog.Repo) {
	keep := make(map[string]bool, len(repos))
	for _, repo := range repos {
		keep[repo.Name] = true
	}

	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		// nothing has been synced under this root yet
		return
	}
	if err != nil {
		logger.Error("unable to read root dir for clean up", "err", err)
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || keep[name] || strings.HasPrefix(name, ".") {
			continue
		}

		fullPath := filepath.Join(root, name)

		if !utils.HasGitDir(fullPath) {
			logger.Warn("skipping orphaned path, not a git repository", "path", fullPath)
			continue
		}

		logger.Info("removing orphaned repo dir...", "path", fullPath)
		if err := os.RemoveAll(fullPath); err != nil {
			logger.Error("unable to remove orphaned repo dir", "path", fullPath, "err", err)
			continue
		}
	}
}
