//go:build !(linux && amd64)

package sandbox

import (
	"context"
	"errors"
)

// ErrUnsupportedPlatform is returned, wrapped in *Error, by every Run of
// the Sandbox that New gives on anything but linux/amd64, and by RunInit.
// The seccomp program hardcodes an x86_64 architecture check and the
// syscall allowlist is built from amd64 syscall numbers, so this build
// also stands in for non-amd64 Linux (arm64 and friends) in addition to
// the windows/macOS paths that are out of scope outright.
var ErrUnsupportedPlatform = errors.New("sandbox: unsupported platform")

type unsupportedSandbox struct{}

// New returns a Sandbox that always fails; only linux/amd64 hosts can
// run Pentagon's isolation model.
func New(Config) Sandbox { return unsupportedSandbox{} }

func (unsupportedSandbox) Run(context.Context, string, string, []string, Limits, []byte) (Result, error) {
	return Result{}, &Error{Op: "run", Err: ErrUnsupportedPlatform}
}

// RunInit never runs on unsupported builds.
func RunInit() error { return ErrUnsupportedPlatform }
