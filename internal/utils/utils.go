package utils

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

const defaultDirMode fs.FileMode = os.FileMode(0755) // 'rwxr-xr-x'

// EnsureDir creates dir and any missing parents. It reports whether the
// directory was newly created.
func EnsureDir(path string) (bool, error) {
	if fi, err := os.Stat(path); err == nil {
		if !fi.IsDir() {
			return false, fmt.Errorf("%s exists but is not a directory", path)
		}
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("unable to stat dir err:%w", err)
	}
	if err := os.MkdirAll(path, defaultDirMode); err != nil {
		return false, fmt.Errorf("unable to create dir err:%w", err)
	}
	return true, nil
}

// HasGitDir reports whether path contains a `.git` directory. Checkouts
// created by `git clone` carry the marker as a directory; linked worktrees
// and submodules carry a `.git` file instead and are not counted.
func HasGitDir(path string) bool {
	fi, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil && fi.IsDir()
}

// RunCommand runs given command with given arguments on given CWD.
// The child inherits the parent environment extended with the given envs.
// When ctx is cancelled or times out the child is sent SIGTERM (signalling
// errors are ignored) and force killed 5 seconds later if still running.
func RunCommand(ctx context.Context, log *slog.Logger, envs []string, cwd string, command string, args ...string) (string, error) {

	cmdStr := command + " " + strings.Join(args, " ")
	log.Log(ctx, -8, "running command", "cwd", cwd, "cmd", cmdStr)

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Cancel = func() error {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		return nil
	}
	cmd.WaitDelay = 5 * time.Second
	if cwd != "" {
		cmd.Dir = cwd
	}
	outbuf := bytes.NewBuffer(nil)
	errbuf := bytes.NewBuffer(nil)
	cmd.Stdout = outbuf
	cmd.Stderr = errbuf

	cmd.Env = append(os.Environ(), envs...)

	start := time.Now()
	err := cmd.Run()
	runTime := time.Since(start)

	stdout := strings.TrimSpace(outbuf.String())
	stderr := strings.TrimSpace(errbuf.String())
	if err != nil {
		// Wait prefers the child's exit error over the context error, so map
		// expiry/cancellation back explicitly for callers to classify.
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return "", fmt.Errorf("Run(%s): err:%w { stdout: %q, stderr: %q }", cmdStr, err, stdout, stderr)
	}
	log.Log(ctx, -8, "command result", "stdout", stdout, "stderr", stderr, "time", runTime)

	return stdout, nil
}
