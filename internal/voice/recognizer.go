package voice

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// CommandRecognizer runs an external speech-to-text program that prints one
// transcript per line on stdout. A clean exit is reported as EventEnd, any
// other exit as EventError.
type CommandRecognizer struct {
	command []string
	events  chan Event

	mu  sync.Mutex
	run *recognizerRun
}

type recognizerRun struct {
	cmd     *exec.Cmd
	stopped chan struct{}
	exited  chan struct{}
	once    sync.Once
}

func (r *recognizerRun) stop() {
	r.once.Do(func() {
		close(r.stopped)
		if r.cmd.Process != nil {
			r.cmd.Process.Kill()
		}
	})
}

func NewCommandRecognizer(command []string) (*CommandRecognizer, error) {
	if len(command) == 0 {
		return nil, errors.New("voice: empty recognizer command")
	}
	return &CommandRecognizer{command: command, events: make(chan Event, 16)}, nil
}

func (c *CommandRecognizer) Events() <-chan Event {
	return c.events
}

func (c *CommandRecognizer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run != nil {
		select {
		case <-c.run.exited:
		default:
			return nil
		}
	}

	cmd := exec.Command(c.command[0], c.command[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("voice: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("voice: start %s: %w", c.command[0], err)
	}

	run := &recognizerRun{cmd: cmd, stopped: make(chan struct{}), exited: make(chan struct{})}
	c.run = run

	go func() {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if !c.emit(run, Event{Type: EventResult, Text: line}) {
				break
			}
		}
		err := cmd.Wait()
		close(run.exited)
		if err != nil {
			c.emit(run, Event{Type: EventError, Err: fmt.Errorf("voice: recognizer exited: %w", err)})
		} else {
			c.emit(run, Event{Type: EventEnd})
		}
	}()
	return nil
}

// emit delivers ev unless the run was stopped first.
func (c *CommandRecognizer) emit(run *recognizerRun, ev Event) bool {
	select {
	case <-run.stopped:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	case <-run.stopped:
		return false
	}
}

func (c *CommandRecognizer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run != nil {
		c.run.stop()
		c.run = nil
	}
}
