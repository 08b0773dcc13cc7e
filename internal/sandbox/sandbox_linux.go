//go:build linux && amd64

package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"
)

type linuxSandbox struct {
	roBinds []string
}

// New returns the Linux namespace/seccomp/rlimit Sandbox.
func New(cfg Config) Sandbox {
	binds := cfg.ROBinds
	if len(binds) == 0 {
		binds = RootBinds
	}
	return &linuxSandbox{roBinds: binds}
}

func (s *linuxSandbox) Run(ctx context.Context, workspaceRoot, program string, argv []string, limits Limits, stdin []byte) (Result, error) {
	spec := initSpec{
		Program:       program,
		Argv:          argv,
		WorkspaceRoot: workspaceRoot,
		ROBinds:       s.roBinds,
		CPUSeconds:    limits.CPUSeconds,
		MemoryKB:      limits.MemoryKB,
	}
	payload, err := json.Marshal(spec)
	if err != nil {
		return Result{}, &Error{Op: "marshal spec", Err: err}
	}

	self, err := os.Executable()
	if err != nil {
		return Result{}, &Error{Op: "resolve self", Err: err}
	}

	cmd := exec.Command(self, InitArg)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWUSER | syscall.CLONE_NEWNS | syscall.CLONE_NEWPID |
			syscall.CLONE_NEWUTS | syscall.CLONE_NEWIPC | syscall.CLONE_NEWNET | syscall.CLONE_NEWCGROUP,
		UidMappings: []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getuid(), Size: 1}},
		GidMappings: []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getgid(), Size: 1}},
		Setpgid:     true,
		Pdeathsig:   syscall.SIGKILL,
	}

	specR, specW, err := os.Pipe()
	if err != nil {
		return Result{}, &Error{Op: "pipe", Err: err}
	}
	cmd.ExtraFiles = []*os.File{specR}

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return Result{}, &Error{Op: "stdin pipe", Err: err}
	}
	stdout := newBoundedBuffer(MaxOutputBytes)
	stderr := newBoundedBuffer(MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		specR.Close()
		specW.Close()
		return Result{}, &Error{Op: "start", Err: err}
	}
	specR.Close()

	go func() {
		defer specW.Close()
		_, _ = specW.Write(payload)
	}()
	go func() {
		defer stdinPipe.Close()
		if len(stdin) > 0 {
			_, _ = stdinPipe.Write(stdin)
		}
	}()

	var timedOut atomic.Bool
	timer := time.AfterFunc(time.Duration(limits.WallSeconds)*time.Second, func() {
		timedOut.Store(true)
		killGroup(cmd.Process.Pid)
	})

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-waitDone:
		timer.Stop()
	case <-ctx.Done():
		timer.Stop()
		killGroup(cmd.Process.Pid)
		<-waitDone
		return Result{}, ctx.Err()
	}

	cpuMs, rssKB := extractUsage(cmd.ProcessState)

	if timedOut.Load() {
		return Result{
			ExitCode:  -1,
			CPUTimeMs: cpuMs,
			PeakRSSKB: rssKB,
			Stdout:    stdout.Bytes(),
			Stderr:    stderr.Bytes(),
		}, nil
	}

	exitCode := exitCodeFor(waitErr)
	return Result{
		ExitCode:  exitCode,
		CPUTimeMs: cpuMs,
		PeakRSSKB: rssKB,
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
	}, nil
}

func killGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

// exitCodeFor derives the stage exit code from the wait error. A normal
// exit preserves its code; a signal-terminated child reports 128+signo,
// the convention this service applies consistently everywhere a signal
// termination is reported.
func exitCodeFor(waitErr error) int64 {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return -1
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return -1
	}
	if status.Signaled() {
		return int64(128 + int(status.Signal()))
	}
	return int64(status.ExitStatus())
}

func extractUsage(state *os.ProcessState) (cpuMs int64, rssKB int64) {
	if state == nil {
		return 0, 0
	}
	ru, ok := state.SysUsage().(*syscall.Rusage)
	if !ok {
		return 0, 0
	}
	userMs := ru.Utime.Sec*1000 + int64(ru.Utime.Usec)/1000
	sysMs := ru.Stime.Sec*1000 + int64(ru.Stime.Usec)/1000
	return userMs + sysMs, ru.Maxrss
}
