// Package model defines the wire and in-memory shapes shared by the
// blob store, workspace, transfer, and pipeline packages.
package model

import "encoding/json"

// Bytes marshals as a JSON array of integers in [0,255] rather than the
// base64 string the standard []byte encoding would produce, matching the
// wire shape clients send and expect for prestaged file contents and
// return_files.
type Bytes []byte

func (b Bytes) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(b))
	for i, v := range b {
		ints[i] = int(v)
	}
	if ints == nil {
		ints = []int{}
	}
	return json.Marshal(ints)
}

func (b *Bytes) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return err
	}
	out := make([]byte, len(ints))
	for i, v := range ints {
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// FileKind discriminates a prestaged File.
type FileKind string

const (
	FileLocal  FileKind = "local"
	FileRemote FileKind = "remote"
)

// File is one entry of an ExecutionRequest's initial file set, prestaged
// into the workspace before the first stage runs.
type File struct {
	Type    FileKind `json:"type"`
	Name    string   `json:"name"`
	Bytes   Bytes    `json:"bytes,omitempty"`
	BlobKey string   `json:"blob_key,omitempty"`
}

// PathKind discriminates a FilePath transfer endpoint.
type PathKind string

const (
	PathLocal  PathKind = "local"
	PathRemote PathKind = "remote"
	PathStdin  PathKind = "stdin"
	PathStdout PathKind = "stdout"
	PathStderr PathKind = "stderr"
	PathTmp    PathKind = "tmp"
)

// FilePath is a tagged transfer endpoint. Name carries the local relative
// path or the remote blob key; ID carries the tmp buffer id.
type FilePath struct {
	Type PathKind `json:"type"`
	Name string   `json:"name,omitempty"`
	ID   uint32   `json:"id,omitempty"`
}

// Transfer is one copy_in or copy_out entry.
type Transfer struct {
	From FilePath `json:"from"`
	To   FilePath `json:"to"`
}

// Execution is one stage of an ExecutionRequest.
type Execution struct {
	Program       string     `json:"program"`
	Args          []string   `json:"args"`
	TimeLimit     int        `json:"time_limit"`
	WallTimeLimit int        `json:"wall_time_limit"`
	MemoryLimit   int64      `json:"memory_limit"`
	CopyIn        []Transfer `json:"copy_in"`
	CopyOut       []Transfer `json:"copy_out"`
	ReturnFiles   []FilePath `json:"return_files"`
	DieOnError    bool       `json:"die_on_error"`
}

// ExecutionRequest is the full POST /execute body.
type ExecutionRequest struct {
	Files      []File      `json:"files"`
	Executions []Execution `json:"executions"`
}

// ReturnedFile is one entry of an ExecutionResult's return_files.
type ReturnedFile struct {
	Name  string `json:"name"`
	Bytes Bytes  `json:"bytes"`
}

// ExecutionResult is the outcome of one completed stage.
type ExecutionResult struct {
	ExitCode    int64          `json:"exit_code"`
	TimeUsed    int64          `json:"time_used"`
	MemoryUsed  int64          `json:"memory_used"`
	ReturnFiles []ReturnedFile `json:"return_files"`
}
