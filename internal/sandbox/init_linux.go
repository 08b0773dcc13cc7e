//go:build linux && amd64

package sandbox

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// initSpec is handed to the re-exec'd child on fd 3 as JSON. It carries
// everything the init stage needs to finish building its own sandbox
// before handing off to the target program.
type initSpec struct {
	Program       string   `json:"program"`
	Argv          []string `json:"argv"`
	WorkspaceRoot string   `json:"workspace_root"`
	ROBinds       []string `json:"ro_binds"`
	CPUSeconds    int      `json:"cpu_seconds"`
	MemoryKB      int64    `json:"memory_kb"`
}

const specFD = 3

// RunInit is the entry point main() calls when argv[1] is InitArg. It
// never returns on success: the final step replaces the process image
// with the target program via exec.
func RunInit() error {
	specFile := os.NewFile(specFD, "spec")
	defer specFile.Close()
	data, err := io.ReadAll(specFile)
	if err != nil {
		return &Error{Op: "read spec", Err: err}
	}
	var spec initSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return &Error{Op: "parse spec", Err: err}
	}

	if err := buildRoot(spec); err != nil {
		return err
	}
	if err := applyRlimits(spec); err != nil {
		return err
	}
	if err := installSeccomp(); err != nil {
		return err
	}

	env := []string{"PATH=/bin"}
	argv0 := spec.Program
	if err := unix.Exec(spec.Program, append([]string{argv0}, spec.Argv...), env); err != nil {
		return &Error{Op: "exec", Err: err}
	}
	return nil // unreachable
}

// buildRoot assembles a minimal root filesystem under a scratch
// directory in the system temporary directory, bind-mounts the host
// read-only directories and the workspace itself into it, and
// pivot_roots the mount namespace into that tree.
func buildRoot(spec initSpec) error {
	if err := unix.Mount("", "/", "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return &Error{Op: "mount private", Err: err}
	}

	rootDir, err := os.MkdirTemp("", "pentagon-root-")
	if err != nil {
		return &Error{Op: "mkdir root", Err: err}
	}

	for _, bind := range spec.ROBinds {
		target := filepath.Join(rootDir, bind)
		if err := os.MkdirAll(target, 0o755); err != nil {
			return &Error{Op: "mkdir " + bind, Err: err}
		}
		if err := unix.Mount(bind, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return &Error{Op: "bind " + bind, Err: err}
		}
		if err := unix.Mount("", target, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_REC, ""); err != nil {
			return &Error{Op: "ro-remount " + bind, Err: err}
		}
	}

	boxDir := filepath.Join(rootDir, "box")
	if err := os.MkdirAll(boxDir, 0o755); err != nil {
		return &Error{Op: "mkdir box", Err: err}
	}
	if err := unix.Mount(spec.WorkspaceRoot, boxDir, "", unix.MS_BIND, ""); err != nil {
		return &Error{Op: "bind box", Err: err}
	}

	procDir := filepath.Join(rootDir, "proc")
	if err := os.MkdirAll(procDir, 0o755); err != nil {
		return &Error{Op: "mkdir proc", Err: err}
	}

	if err := unix.Mount(rootDir, rootDir, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return &Error{Op: "bind root onto itself", Err: err}
	}
	if err := os.Chdir(rootDir); err != nil {
		return &Error{Op: "chdir root", Err: err}
	}
	oldRoot := ".pentagon-oldroot"
	if err := os.Mkdir(oldRoot, 0o700); err != nil {
		return &Error{Op: "mkdir oldroot", Err: err}
	}
	if err := unix.PivotRoot(".", oldRoot); err != nil {
		return &Error{Op: "pivot_root", Err: err}
	}
	if err := os.Chdir("/"); err != nil {
		return &Error{Op: "chdir newroot", Err: err}
	}
	if err := unix.Mount("proc", "/proc", "proc", 0, ""); err != nil {
		return &Error{Op: "mount proc", Err: err}
	}
	if err := unix.Unmount("/"+oldRoot, unix.MNT_DETACH); err != nil {
		return &Error{Op: "unmount oldroot", Err: err}
	}
	_ = os.Remove("/" + oldRoot)

	if err := os.Chdir("/box"); err != nil {
		return &Error{Op: "chdir box", Err: err}
	}
	return nil
}

func applyRlimits(spec initSpec) error {
	limits := []struct {
		name string
		res  int
		rl   unix.Rlimit
	}{
		{"cpu", unix.RLIMIT_CPU, unix.Rlimit{Cur: uint64(spec.CPUSeconds), Max: uint64(spec.CPUSeconds)}},
		{"as", unix.RLIMIT_AS, unix.Rlimit{Cur: uint64(spec.MemoryKB) * 1024, Max: uint64(spec.MemoryKB) * 1024}},
		{"fsize", unix.RLIMIT_FSIZE, unix.Rlimit{Cur: 256 << 20, Max: 256 << 20}},
		{"nproc", unix.RLIMIT_NPROC, unix.Rlimit{Cur: 32, Max: 32}},
		{"nofile", unix.RLIMIT_NOFILE, unix.Rlimit{Cur: 64, Max: 64}},
	}
	for _, l := range limits {
		if err := unix.Setrlimit(l.res, &l.rl); err != nil {
			return &Error{Op: fmt.Sprintf("setrlimit(%s)", l.name), Err: err}
		}
	}
	return nil
}
