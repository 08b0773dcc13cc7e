//go:build linux && amd64

package sandbox

import (
	"os/exec"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sys/unix"
)

func TestExitCodeForNormalExit(t *testing.T) {
	err := exec.Command("/bin/sh", "-c", "exit 7").Run()
	assert.Equal(t, int64(7), exitCodeFor(err))
}

func TestExitCodeForSuccess(t *testing.T) {
	err := exec.Command("/bin/sh", "-c", "exit 0").Run()
	assert.Equal(t, int64(0), exitCodeFor(err))
}

func TestExitCodeForSignalTermination(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "kill -KILL $$")
	err := cmd.Run()
	assert.Equal(t, int64(128+int(syscall.SIGKILL)), exitCodeFor(err))
}

func TestBuildFilterProgramEndsAllowThenKill(t *testing.T) {
	prog := buildFilterProgram()
	require := assert.New(t)
	require.True(len(prog) >= 2)

	allow := prog[len(prog)-2]
	deny := prog[len(prog)-1]
	require.EqualValues(unix.SECCOMP_RET_ALLOW, allow.K)
	require.EqualValues(unix.SECCOMP_RET_KILL_PROCESS, deny.K)
}
