package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/ent0n29/dayroom/internal/audio"
)

// DefaultCommand plays a file and exits when it ends.
const DefaultCommand = "ffplay -nodisp -autoexit -loglevel error"

// CommandPlayer plays replies by writing them to a temporary file and
// running an external player on it.
type CommandPlayer struct {
	Command string
	TempDir string
}

func NewCommandPlayer(command string) *CommandPlayer {
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	return &CommandPlayer{Command: command}
}

func (p *CommandPlayer) Start(ctx context.Context, data []byte, contentType string) (Playback, error) {
	fields := strings.Fields(p.Command)
	if len(fields) == 0 {
		return nil, errors.New("playback command is empty")
	}
	path, err := exec.LookPath(fields[0])
	if err != nil {
		return nil, fmt.Errorf("playback command unavailable: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(p.TempDir, "dayroom-reply-*"+audio.Extension(contentType))
	if err != nil {
		return nil, fmt.Errorf("create reply file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("write reply file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("close reply file: %w", err)
	}

	cmd := exec.Command(path, append(fields[1:], tmp)...)
	if err := cmd.Start(); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("start playback command: %w", err)
	}

	pb := &commandPlayback{
		cmd:    cmd,
		file:   tmp,
		done:   make(chan error, 1),
		exited: make(chan struct{}),
	}
	go pb.wait()
	return pb, nil
}

type commandPlayback struct {
	cmd  *exec.Cmd
	file string
	done chan error

	mu      sync.Mutex
	stopped bool
	exited  chan struct{}
	release sync.Once
}

func (p *commandPlayback) wait() {
	err := p.cmd.Wait()
	close(p.exited)

	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		err = ErrInterrupted
	} else if err != nil {
		err = fmt.Errorf("playback command: %w", err)
	}
	p.cleanup()
	p.done <- err
	close(p.done)
}

func (p *commandPlayback) Done() <-chan error { return p.done }

func (p *commandPlayback) Stop() {
	p.mu.Lock()
	select {
	case <-p.exited:
		p.mu.Unlock()
		p.cleanup()
		return
	default:
	}
	p.stopped = true
	p.mu.Unlock()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	<-p.exited
	p.cleanup()
}

func (p *commandPlayback) cleanup() {
	p.release.Do(func() {
		if err := os.Remove(p.file); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("playback: remove reply file failed", "file", p.file, "error", err)
		}
	})
}
