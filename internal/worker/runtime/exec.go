package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"simplane/internal/sim"
)

// ResultFD is the file descriptor a worker process writes its status
// messages to. Stdout and stderr stay free for engine and log output.
const ResultFD = 3

// ExecRuntime implements the Runtime interface using raw OS processes. The
// job spec is written to the worker's stdin as JSON and the worker answers
// with a stream of JSON messages on ResultFD.
type ExecRuntime struct {
	Binary  string
	Args    []string
	WorkDir string

	// Env is added to every worker's environment.
	Env map[string]string

	// Output receives the worker's stdout and stderr (default: os.Stderr).
	Output io.Writer
}

// NewExecRuntime creates a new process-based runtime running binary.
func NewExecRuntime(binary, workDir string) *ExecRuntime {
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "simplane", "jobs")
	}
	return &ExecRuntime{
		Binary:  binary,
		WorkDir: workDir,
		Output:  os.Stderr,
	}
}

// Start implements Runtime.Start using os/exec. The worker's lifetime is
// controlled through the returned handle, not through ctx.
func (e *ExecRuntime) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	if e.Binary == "" {
		return nil, fmt.Errorf("worker binary is required")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("result sink is required")
	}

	payload, err := json.Marshal(opts.Spec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job spec: %w", err)
	}

	workDir := filepath.Join(e.WorkDir, fmt.Sprintf("job-%d", opts.Spec.JobID))
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}

	results, resultsW, err := os.Pipe()
	if err != nil {
		os.RemoveAll(workDir)
		return nil, fmt.Errorf("failed to create result pipe: %w", err)
	}

	cmd := exec.Command(e.Binary, e.Args...)
	cmd.Dir = workDir
	cmd.Env = os.Environ()
	for k, v := range e.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Env = append(cmd.Env, fmt.Sprintf("SIMPLANE_JOB_ID=%d", opts.Spec.JobID))
	cmd.Stdin = bytes.NewReader(payload)
	output := e.Output
	if output == nil {
		output = os.Stderr
	}
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.ExtraFiles = []*os.File{resultsW}
	// own process group: a terminal Ctrl+C reaches the server only, the
	// worker is stopped through Interrupt or Kill
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		results.Close()
		resultsW.Close()
		os.RemoveAll(workDir)
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	// the child holds its own copy; the pump sees EOF once the child exits
	resultsW.Close()

	h := &execHandle{
		cmd:      cmd,
		jobID:    opts.Spec.JobID,
		workDir:  workDir,
		pumpDone: make(chan struct{}),
		waitDone: make(chan struct{}),
	}
	go h.pump(results, opts.Sink)
	go h.wait()

	return h, nil
}

type execHandle struct {
	cmd     *exec.Cmd
	jobID   int64
	workDir string

	pumpDone chan struct{}
	waitDone chan struct{}
	result   ExitResult
}

func (h *execHandle) Pid() int {
	return h.cmd.Process.Pid
}

func (h *execHandle) Interrupt() error {
	if err := h.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to interrupt worker: %w", err)
	}
	return nil
}

func (h *execHandle) Kill() error {
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill worker: %w", err)
	}
	return nil
}

func (h *execHandle) Wait(ctx context.Context) (ExitResult, error) {
	select {
	case <-h.waitDone:
		return h.result, nil
	case <-ctx.Done():
		return ExitResult{ExitCode: -1}, ctx.Err()
	}
}

func (h *execHandle) wait() {
	err := h.cmd.Wait()
	<-h.pumpDone

	switch {
	case err == nil:
		h.result = ExitResult{ExitCode: 0}
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			h.result = ExitResult{ExitCode: exitErr.ExitCode(), Error: err}
		} else {
			h.result = ExitResult{ExitCode: -1, Error: err}
		}
	}

	if err := os.RemoveAll(h.workDir); err != nil {
		log.Printf("Failed to clean work dir for job %d: %v", h.jobID, err)
	}
	close(h.waitDone)
}

// pump forwards decoded messages to the sink until the worker closes its end
// of the pipe. A worker that goes away without a terminal status gets one
// synthesized on its behalf.
func (h *execHandle) pump(r io.ReadCloser, sink func(sim.Message)) {
	defer close(h.pumpDone)
	defer r.Close()

	dec := json.NewDecoder(r)
	terminal := false
	for {
		var msg sim.Message
		if err := dec.Decode(&msg); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("Malformed result from worker for job %d: %v", h.jobID, err)
			}
			break
		}
		if terminal {
			continue
		}
		switch msg.Status {
		case sim.StatusQueued, sim.StatusShuttingDown:
			log.Printf("Ignoring %s status from worker for job %d", msg.Status, h.jobID)
			continue
		}

		msg.JobID = h.jobID
		terminal = msg.Status.Terminal()
		sink(msg)
	}

	if !terminal {
		sink(sim.RunError(h.jobID, ErrChannelClosed.Error()))
	}
}
