// Package transfer validates and materializes copy_in, copy_out, and
// return_files transfers against the legal source/sink matrix, reading
// and writing workspace files, tmp buffers, and blob-store keys.
package transfer

import (
	"context"
	"fmt"
	"os"

	"github.com/harrowfung/pentagon/internal/blobstore"
	"github.com/harrowfung/pentagon/internal/model"
	"github.com/harrowfung/pentagon/internal/workspace"
)

// Error reports an invalid source/sink pair, a missing tmp id, a path
// escape, or an I/O failure while materializing a transfer.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("transfer: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// copyInMatrix and copyOutMatrix encode the legal source/sink pairs as
// data rather than nested conditionals, per the matrix in the component
// design: auditable, and mechanical to drive from a property test.
var copyInMatrix = map[model.PathKind]map[model.PathKind]bool{
	model.PathLocal:  {model.PathLocal: true, model.PathTmp: true, model.PathStdin: true},
	model.PathRemote: {model.PathLocal: true, model.PathTmp: true, model.PathStdin: true},
	model.PathTmp:    {model.PathLocal: true, model.PathTmp: true, model.PathStdin: true},
}

var copyOutMatrix = map[model.PathKind]map[model.PathKind]bool{
	model.PathStdout: {model.PathTmp: true, model.PathRemote: true},
	model.PathStderr: {model.PathTmp: true, model.PathRemote: true},
	model.PathLocal:  {model.PathTmp: true, model.PathRemote: true},
}

// Resolver holds the per-request state needed to resolve FilePath
// endpoints: the workspace, the blob-store client, and the tmp buffer
// table. It is reused across every stage of one request; only the
// captured stdout/stderr are supplied fresh per call.
type Resolver struct {
	ws    *workspace.Workspace
	blobs blobstore.Store
	tmp   map[uint32][]byte
}

func NewResolver(ws *workspace.Workspace, blobs blobstore.Store) *Resolver {
	return &Resolver{ws: ws, blobs: blobs, tmp: make(map[uint32][]byte)}
}

// WorkspaceRoot returns the host path of the workspace this resolver is
// bound to, for passing to the sandbox as the /box bind-mount source.
func (r *Resolver) WorkspaceRoot() string { return r.ws.Root() }

// Prestage writes one initial File into the workspace: local files are
// written as given, remote files are fetched from the blob store first.
func (r *Resolver) Prestage(ctx context.Context, f model.File) error {
	var data []byte
	switch f.Type {
	case model.FileLocal:
		data = f.Bytes
	case model.FileRemote:
		fetched, err := r.blobs.Fetch(ctx, f.BlobKey)
		if err != nil {
			return &Error{Op: "prestage fetch " + f.BlobKey, Err: err}
		}
		data = fetched
	default:
		return &Error{Op: "prestage", Err: fmt.Errorf("unknown file type %q", f.Type)}
	}
	return r.writeLocal(f.Name, data)
}

// ResolveCopyIn applies copy_in transfers in order and returns the bytes
// accumulated for the stage's stdin, if any transfer targeted it.
func (r *Resolver) ResolveCopyIn(ctx context.Context, transfers []model.Transfer) ([]byte, error) {
	var stdin []byte
	for i, t := range transfers {
		sinks, ok := copyInMatrix[t.From.Type]
		if !ok || !sinks[t.To.Type] {
			return nil, &Error{Op: fmt.Sprintf("copy_in[%d]", i), Err: fmt.Errorf("illegal transfer %s -> %s", t.From.Type, t.To.Type)}
		}
		data, err := r.read(ctx, t.From)
		if err != nil {
			return nil, &Error{Op: fmt.Sprintf("copy_in[%d]", i), Err: err}
		}
		switch t.To.Type {
		case model.PathLocal:
			if err := r.writeLocal(t.To.Name, data); err != nil {
				return nil, &Error{Op: fmt.Sprintf("copy_in[%d]", i), Err: err}
			}
		case model.PathTmp:
			r.tmp[t.To.ID] = data
		case model.PathStdin:
			stdin = append(stdin, data...)
		default:
			return nil, &Error{Op: fmt.Sprintf("copy_in[%d]", i), Err: fmt.Errorf("invalid copy_in sink %q", t.To.Type)}
		}
	}
	return stdin, nil
}

// ResolveCopyOut applies copy_out transfers in order against the just
// finished stage's captured stdout/stderr and current workspace state.
func (r *Resolver) ResolveCopyOut(ctx context.Context, transfers []model.Transfer, stdout, stderr []byte) error {
	for i, t := range transfers {
		sinks, ok := copyOutMatrix[t.From.Type]
		if !ok || !sinks[t.To.Type] {
			return &Error{Op: fmt.Sprintf("copy_out[%d]", i), Err: fmt.Errorf("illegal transfer %s -> %s", t.From.Type, t.To.Type)}
		}
		data, err := r.readSource(ctx, t.From, stdout, stderr)
		if err != nil {
			return &Error{Op: fmt.Sprintf("copy_out[%d]", i), Err: err}
		}
		switch t.To.Type {
		case model.PathTmp:
			r.tmp[t.To.ID] = data
		case model.PathRemote:
			if err := r.blobs.Store(ctx, t.To.Name, data); err != nil {
				return &Error{Op: fmt.Sprintf("copy_out[%d]", i), Err: err}
			}
		default:
			return &Error{Op: fmt.Sprintf("copy_out[%d]", i), Err: fmt.Errorf("invalid copy_out sink %q", t.To.Type)}
		}
	}
	return nil
}

// ResolveReturnFiles materializes return_files in order. Any source
// except stdin is legal.
func (r *Resolver) ResolveReturnFiles(ctx context.Context, paths []model.FilePath, stdout, stderr []byte) ([]model.ReturnedFile, error) {
	out := make([]model.ReturnedFile, 0, len(paths))
	for i, p := range paths {
		if p.Type == model.PathStdin {
			return nil, &Error{Op: fmt.Sprintf("return_files[%d]", i), Err: fmt.Errorf("stdin is not a valid return_files source")}
		}
		data, err := r.readSource(ctx, p, stdout, stderr)
		if err != nil {
			return nil, &Error{Op: fmt.Sprintf("return_files[%d]", i), Err: err}
		}
		out = append(out, model.ReturnedFile{Name: returnName(p), Bytes: data})
	}
	return out, nil
}

func returnName(p model.FilePath) string {
	switch p.Type {
	case model.PathStdout:
		return "stdout"
	case model.PathStderr:
		return "stderr"
	case model.PathTmp:
		return fmt.Sprintf("tmp:%d", p.ID)
	default:
		return p.Name
	}
}

// read resolves a copy_in source: local, remote, or tmp.
func (r *Resolver) read(ctx context.Context, p model.FilePath) ([]byte, error) {
	switch p.Type {
	case model.PathLocal:
		return r.readLocal(p.Name)
	case model.PathRemote:
		data, err := r.blobs.Fetch(ctx, p.Name)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", p.Name, err)
		}
		return data, nil
	case model.PathTmp:
		data, ok := r.tmp[p.ID]
		if !ok {
			return nil, fmt.Errorf("tmp:%d read before written", p.ID)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("invalid copy_in source %q", p.Type)
	}
}

// readSource resolves a copy_out / return_files source, which may also
// be the just-finished stage's stdout or stderr.
func (r *Resolver) readSource(ctx context.Context, p model.FilePath, stdout, stderr []byte) ([]byte, error) {
	switch p.Type {
	case model.PathStdout:
		return stdout, nil
	case model.PathStderr:
		return stderr, nil
	case model.PathLocal:
		return r.readLocal(p.Name)
	case model.PathRemote:
		data, err := r.blobs.Fetch(ctx, p.Name)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", p.Name, err)
		}
		return data, nil
	case model.PathTmp:
		data, ok := r.tmp[p.ID]
		if !ok {
			return nil, fmt.Errorf("tmp:%d read before written", p.ID)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("invalid source %q", p.Type)
	}
}

func (r *Resolver) readLocal(name string) ([]byte, error) {
	path, err := r.ws.ResolveLocal(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func (r *Resolver) writeLocal(name string, data []byte) error {
	path, err := r.ws.ResolveLocal(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
