package pipeline

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/harrowfung/pentagon/internal/blobstore"
	"github.com/harrowfung/pentagon/internal/metrics"
	"github.com/harrowfung/pentagon/internal/model"
	"github.com/harrowfung/pentagon/internal/sandbox"
)

// fakeSandbox returns a scripted Result per call, in order, standing in
// for the real namespace/seccomp sandbox so the engine's orchestration
// can be tested without root privileges or a Linux host.
type fakeSandbox struct {
	results []sandbox.Result
	errs    []error
	call    int
}

func (f *fakeSandbox) Run(context.Context, string, string, []string, sandbox.Limits, []byte) (sandbox.Result, error) {
	i := f.call
	f.call++
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return f.results[i], err
}

func newTestEngine(t *testing.T, results ...sandbox.Result) (*Engine, *fakeSandbox) {
	t.Helper()
	fs := &fakeSandbox{results: results}
	e := New(t.TempDir(), blobstore.NewMemoryStore(), metrics.New(prometheus.NewRegistry()))
	e.newSandbox = func() sandbox.Sandbox { return fs }
	return e, fs
}

func collect(events <-chan Event) []Event {
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestEchoScenario(t *testing.T) {
	e, _ := newTestEngine(t, sandbox.Result{ExitCode: 0, Stdout: []byte("hello\n")})

	req := model.ExecutionRequest{
		Executions: []model.Execution{{
			Program:     "/bin/sh",
			Args:        []string{"-c", "echo hello"},
			ReturnFiles: []model.FilePath{{Type: model.PathStdout}},
		}},
	}

	events := collect(e.Run(context.Background(), req))
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Result)
	assert.Equal(t, int64(0), events[0].Result.ExitCode)
	require.Len(t, events[0].Result.ReturnFiles, 1)
	assert.Equal(t, "stdout", events[0].Result.ReturnFiles[0].Name)
	assert.Equal(t, []byte("hello\n"), []byte(events[0].Result.ReturnFiles[0].Bytes))
}

func TestDieOnErrorStopsRemainingStages(t *testing.T) {
	e, _ := newTestEngine(t,
		sandbox.Result{ExitCode: 1},
		sandbox.Result{ExitCode: 0},
	)

	req := model.ExecutionRequest{
		Executions: []model.Execution{
			{Program: "/bin/false", DieOnError: true},
			{Program: "/bin/true"},
		},
	}

	events := collect(e.Run(context.Background(), req))
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Result)
	assert.Equal(t, int64(1), events[0].Result.ExitCode)
}

func TestNonDieOnErrorContinues(t *testing.T) {
	e, _ := newTestEngine(t,
		sandbox.Result{ExitCode: 1},
		sandbox.Result{ExitCode: 0},
	)

	req := model.ExecutionRequest{
		Executions: []model.Execution{
			{Program: "/bin/false"},
			{Program: "/bin/true"},
		},
	}

	events := collect(e.Run(context.Background(), req))
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].Result.ExitCode)
	assert.Equal(t, int64(0), events[1].Result.ExitCode)
}

func TestWallTimeoutReportsExitCodeMinusOne(t *testing.T) {
	e, _ := newTestEngine(t, sandbox.Result{ExitCode: -1, CPUTimeMs: 5})

	req := model.ExecutionRequest{
		Executions: []model.Execution{{
			Program:       "/bin/sh",
			Args:          []string{"-c", "sleep 5"},
			WallTimeLimit: 1,
		}},
	}

	events := collect(e.Run(context.Background(), req))
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Result)
	assert.Equal(t, int64(-1), events[0].Result.ExitCode)
}

func TestWorkspaceRemovedAfterStreamEnds(t *testing.T) {
	e, _ := newTestEngine(t, sandbox.Result{ExitCode: 0})
	req := model.ExecutionRequest{Executions: []model.Execution{{Program: "/bin/true"}}}

	var ws string
	e.newSandbox = func() sandbox.Sandbox {
		return sandboxRootCapture{fn: func(root string) { ws = root }}
	}
	collect(e.Run(context.Background(), req))

	require.NotEmpty(t, ws)
	_, err := os.Stat(ws)
	assert.True(t, os.IsNotExist(err))
}

// sandboxRootCapture records the workspace root it was invoked with and
// always succeeds, used to assert the workspace is gone once the event
// stream has drained.
type sandboxRootCapture struct {
	fn func(root string)
}

func (s sandboxRootCapture) Run(_ context.Context, root, _ string, _ []string, _ sandbox.Limits, _ []byte) (sandbox.Result, error) {
	s.fn(root)
	return sandbox.Result{ExitCode: 0}, nil
}
