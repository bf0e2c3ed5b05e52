package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"rakshak/internal/utils"
)

// CommandRecorder records through an external program such as arecord. The
// program must write to the path substituted for {output} and finish the
// file when it receives an interrupt.
type CommandRecorder struct {
	command []string
	dir     string

	mu   sync.Mutex
	cmd  *exec.Cmd
	path string
	done chan error
}

func NewCommandRecorder(command []string, dir string) (*CommandRecorder, error) {
	if len(command) == 0 {
		return nil, errors.New("audio: empty recorder command")
	}
	return &CommandRecorder{command: command, dir: dir}, nil
}

func (r *CommandRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd != nil {
		return errors.New("audio: recorder already running")
	}
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return fmt.Errorf("audio: create capture dir: %w", err)
	}

	path := filepath.Join(r.dir, utils.GenerateUniqueFilename("audio", ".wav"))
	args := make([]string, len(r.command))
	for i, a := range r.command {
		args[i] = strings.ReplaceAll(a, "{output}", path)
	}

	// Not bound to ctx: the recording outlives the request that started it.
	cmd := exec.Command(args[0], args[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("audio: start %s: %w", args[0], err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	r.cmd = cmd
	r.path = path
	r.done = done
	return nil
}

func (r *CommandRecorder) Stop(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd == nil {
		return "", nil
	}
	cmd, path, done := r.cmd, r.path, r.done
	r.cmd, r.path, r.done = nil, "", nil

	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		cmd.Process.Kill()
	}

	select {
	case <-done:
	case <-ctx.Done():
		cmd.Process.Kill()
		<-done
	}

	// Recorders often exit non-zero on interrupt; the file decides success.
	if size, err := utils.FileSize(path); err != nil || size == 0 {
		os.Remove(path)
		return "", fmt.Errorf("audio: recorder produced no data at %s", path)
	}
	return path, nil
}
