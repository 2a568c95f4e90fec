package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/GriffinCanCode/webtty/backend/internal/domain/command"
)

const (
	defaultInputQueue = 64
	defaultKillGrace  = 3 * time.Second
	defaultTerm       = "xterm-256color"
)

// Options configures spawned processes.
type Options struct {
	// Env is appended to the server's environment.
	Env map[string]string
	// Dir is the working directory; empty means the server's.
	Dir string
	// Term is exported as TERM.
	Term string
	// InputQueue bounds the number of pending input chunks.
	InputQueue int
	// KillGrace is how long Kill waits after SIGHUP before SIGKILL.
	KillGrace time.Duration
}

func (o Options) withDefaults() Options {
	if o.Term == "" {
		o.Term = defaultTerm
	}
	if o.InputQueue <= 0 {
		o.InputQueue = defaultInputQueue
	}
	if o.KillGrace <= 0 {
		o.KillGrace = defaultKillGrace
	}
	return o
}

// Spawner starts processes for resolved command specs.
type Spawner interface {
	Spawn(ctx context.Context, spec command.Spec, size Geometry) (Process, error)
}

// PTYSpawner spawns processes attached to a fresh pseudo-terminal.
type PTYSpawner struct {
	opts Options
}

// NewPTYSpawner creates a spawner with the given options.
func NewPTYSpawner(opts Options) *PTYSpawner {
	return &PTYSpawner{opts: opts.withDefaults()}
}

// Spawn starts spec under a pty sized to size (zero dimensions default).
func (s *PTYSpawner) Spawn(ctx context.Context, spec command.Spec, size Geometry) (Process, error) {
	if spec.Empty() {
		return nil, &SpawnError{Err: errors.New("empty command")}
	}
	if err := ctx.Err(); err != nil {
		return nil, &SpawnError{Path: spec.Path(), Err: err}
	}

	path, err := exec.LookPath(spec.Path())
	if err != nil {
		return nil, &SpawnError{Path: spec.Path(), Err: err}
	}

	cmd := exec.Command(path, spec.Argv()...)
	cmd.Dir = s.opts.Dir
	cmd.Env = append(os.Environ(), "TERM="+s.opts.Term)
	for key, value := range s.opts.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	size = size.OrDefault()
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: size.Rows, Cols: size.Cols})
	if err != nil {
		return nil, &SpawnError{Path: spec.Path(), Err: err}
	}

	p := &ptyProcess{
		cmd:       cmd,
		ptmx:      ptmx,
		input:     make(chan []byte, s.opts.InputQueue),
		exit:      make(chan ExitStatus, 1),
		done:      make(chan struct{}),
		closing:   make(chan struct{}),
		killGrace: s.opts.KillGrace,
	}

	go p.wait()
	go p.writeInput()

	return p, nil
}

type ptyProcess struct {
	cmd  *exec.Cmd
	ptmx *os.File

	input   chan []byte
	exit    chan ExitStatus
	done    chan struct{}
	closing chan struct{}

	killOnce  sync.Once
	closeOnce sync.Once
	killGrace time.Duration

	mu       sync.Mutex
	closed   bool
	writeErr error
}

func (p *ptyProcess) Pid() int {
	return p.cmd.Process.Pid
}

func (p *ptyProcess) Read(b []byte) (int, error) {
	n, err := p.ptmx.Read(b)
	if err != nil && (errors.Is(err, syscall.EIO) || errors.Is(err, os.ErrClosed)) {
		// Linux reports EIO on the master once the slave side hangs up.
		err = io.EOF
	}
	return n, err
}

func (p *ptyProcess) Write(b []byte) (int, error) {
	p.mu.Lock()
	werr := p.writeErr
	p.mu.Unlock()
	if werr != nil {
		return 0, werr
	}

	chunk := make([]byte, len(b))
	copy(chunk, b)

	select {
	case <-p.done:
		return 0, ErrProcessClosed
	case <-p.closing:
		return 0, ErrProcessClosed
	default:
	}

	select {
	case p.input <- chunk:
		return len(b), nil
	case <-p.done:
		return 0, ErrProcessClosed
	case <-p.closing:
		return 0, ErrProcessClosed
	}
}

// writeInput drains the input queue into the pty. It is the only writer,
// so a stalled pty never blocks the caller beyond a full queue.
func (p *ptyProcess) writeInput() {
	for {
		select {
		case chunk := <-p.input:
			if _, err := p.ptmx.Write(chunk); err != nil {
				p.mu.Lock()
				p.writeErr = fmt.Errorf("pty write: %w", err)
				p.mu.Unlock()
				return
			}
		case <-p.done:
			return
		case <-p.closing:
			return
		}
	}
}

func (p *ptyProcess) Resize(g Geometry) error {
	if !g.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidGeometry, g)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrProcessClosed
	}
	if err := pty.Setsize(p.ptmx, &pty.Winsize{Rows: g.Rows, Cols: g.Cols}); err != nil {
		return fmt.Errorf("pty resize: %w", err)
	}
	return nil
}

func (p *ptyProcess) Exit() <-chan ExitStatus {
	return p.exit
}

func (p *ptyProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *ptyProcess) Kill() error {
	var err error
	p.killOnce.Do(func() {
		if p.exited() {
			return
		}
		err = signalGroup(p.cmd.Process, syscall.SIGHUP)
		go func() {
			select {
			case <-p.done:
			case <-time.After(p.killGrace):
				_ = signalGroup(p.cmd.Process, syscall.SIGKILL)
			}
		}()
	})
	return err
}

func (p *ptyProcess) Close() error {
	var err error
	p.closeOnce.Do(func() {
		_ = p.Kill()

		select {
		case <-p.done:
		case <-time.After(2 * p.killGrace):
			err = fmt.Errorf("process %d did not exit", p.Pid())
		}

		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.closing)

		if cerr := p.ptmx.Close(); cerr != nil && err == nil && !errors.Is(cerr, os.ErrClosed) {
			err = cerr
		}
	})
	return err
}

// wait reaps the process and publishes its status once.
func (p *ptyProcess) wait() {
	err := p.cmd.Wait()
	status := exitStatus(p.cmd.ProcessState, err)
	status.ExitedAt = time.Now()
	close(p.done)
	p.exit <- status
}
