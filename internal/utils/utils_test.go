package utils

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

var testLog = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestEnsureDir(t *testing.T) {
	tempRoot := t.TempDir()

	// new nested dir
	dir := filepath.Join(tempRoot, "one", "two")
	if created, err := EnsureDir(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	} else if !created {
		t.Errorf("expected %q to be reported as created", dir)
	}

	// dir already exists
	if created, err := EnsureDir(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	} else if created {
		t.Errorf("expected %q to be reported as existing", dir)
	}

	// path exists but is a file
	file := filepath.Join(tempRoot, "file")
	if err := os.WriteFile(file, []byte{}, 0644); err != nil {
		t.Fatalf("failed to write a file: %v", err)
	}
	if _, err := EnsureDir(file); err == nil {
		t.Errorf("expected error for file path %q", file)
	}
}

func TestHasGitDir(t *testing.T) {
	tempRoot := t.TempDir()

	withGitDir := filepath.Join(tempRoot, "checkout")
	if err := os.MkdirAll(filepath.Join(withGitDir, ".git"), 0755); err != nil {
		t.Fatalf("failed to make a temp subdir: %v", err)
	}

	withGitFile := filepath.Join(tempRoot, "linked-worktree")
	if err := os.Mkdir(withGitFile, 0755); err != nil {
		t.Fatalf("failed to make a temp subdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(withGitFile, ".git"), []byte("gitdir: elsewhere"), 0644); err != nil {
		t.Fatalf("failed to write a file: %v", err)
	}

	plain := filepath.Join(tempRoot, "plain")
	if err := os.Mkdir(plain, 0755); err != nil {
		t.Fatalf("failed to make a temp subdir: %v", err)
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"git-dir-marker", withGitDir, true},
		{"git-file-marker", withGitFile, false},
		{"no-marker", plain, false},
		{"missing-path", filepath.Join(tempRoot, "nope"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasGitDir(tt.path); got != tt.want {
				t.Errorf("HasGitDir() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunCommand_capture(t *testing.T) {
	got, err := RunCommand(t.Context(), testLog, nil, "", "sh", "-c", "echo out")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "out" {
		t.Errorf("RunCommand() = %q, want %q", got, "out")
	}
}

func TestRunCommand_env(t *testing.T) {
	t.Setenv("GH_SYNC_TEST_PARENT", "from-parent")

	got, err := RunCommand(t.Context(), testLog, []string{"GH_SYNC_TEST_EXTRA=from-extra"}, "",
		"sh", "-c", `printf '%s:%s' "$GH_SYNC_TEST_PARENT" "$GH_SYNC_TEST_EXTRA"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "from-parent:from-extra"; got != want {
		t.Errorf("RunCommand() = %q, want %q", got, want)
	}
}

func TestRunCommand_exitError(t *testing.T) {
	_, err := RunCommand(t.Context(), testLog, nil, "", "sh", "-c", "echo oops >&2; exit 3")
	if err == nil {
		t.Fatal("expected error for failing command")
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected exit error, got: %v", err)
	}
	if code := exitErr.ExitCode(); code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}
}

func TestRunCommand_deadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := RunCommand(ctx, testLog, nil, "", "sleep", "60")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got: %v", err)
	}
	// sigterm plus the 5s force-kill grace must beat the sleep
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("command not terminated in time, took %v", elapsed)
	}
}
