// Package lock provides drop-in mutexes with optional deadlock detection.
// Detection is off unless GH_SYNC_DEADLOCK_DETECTION is set, so production
// runs pay no reporting cost while race/e2e runs can turn it on.
package lock

import (
	"os"
	"time"

	"github.com/sasha-s/go-deadlock"
)

type (
	Mutex   = deadlock.Mutex
	RWMutex = deadlock.RWMutex
)

func init() {
	if os.Getenv("GH_SYNC_DEADLOCK_DETECTION") == "" {
		deadlock.Opts.Disable = true
		return
	}
	deadlock.Opts.DeadlockTimeout = 30 * time.Second
}
