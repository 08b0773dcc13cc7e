// Package sandbox constructs an isolated execution environment for one
// child process using Linux namespaces, bind mounts, a seccomp filter,
// and resource limits, and collects its exit status and resource usage.
package sandbox

import (
	"context"
	"fmt"
)

// InitArg is the argv[1] sentinel main() checks for before doing anything
// else. When present, the process is the re-exec'd sandbox child running
// inside freshly created namespaces, not the long-lived server.
const InitArg = "__pentagon_sandbox_init__"

// Limits bounds one stage's execution.
type Limits struct {
	CPUSeconds    int
	WallSeconds   int
	MemoryKB      int64
}

// Result is the outcome of running one child to completion or timeout.
type Result struct {
	ExitCode  int64
	CPUTimeMs int64
	PeakRSSKB int64
	Stdout    []byte
	Stderr    []byte
}

// Error wraps a namespace/mount/seccomp setup failure or an exec failure.
// These are not retried by the pipeline.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("sandbox: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// RootBinds are the host directories bind-mounted read-only into every
// sandbox's minimal root.
var RootBinds = []string{"/bin", "/lib", "/lib64", "/usr", "/etc"}

// Config configures a Sandbox factory. A zero Config uses RootBinds.
type Config struct {
	ROBinds []string
}

// Sandbox owns exactly one child process per Run call; no operation
// yields the child handle outside this abstraction.
type Sandbox interface {
	// Run spawns program with argv inside a fresh sandbox rooted at
	// workspaceRoot (bind-mounted read-write as /box), writes stdin if
	// non-nil, and waits until the child exits or the wall clock limit
	// fires. ctx cancellation kills the child's process group and
	// returns ctx.Err().
	Run(ctx context.Context, workspaceRoot, program string, argv []string, limits Limits, stdin []byte) (Result, error)
}

// MaxOutputBytes bounds how much of stdout/stderr is buffered in memory
// per stage; output beyond this is silently dropped from the buffer but
// does not block or kill the child.
const MaxOutputBytes = 16 << 20
