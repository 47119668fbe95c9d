package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/dayroom/internal/audio"
)

// DefaultCommand records raw PCM16LE mono from the default ALSA input.
const DefaultCommand = "arecord -q -t raw -f S16_LE"

// CommandDevice records by spawning an external capture program that writes
// raw PCM16LE to stdout.
type CommandDevice struct {
	Command string
	Format  audio.Format
	// ChunkMS controls how much audio is read per chunk.
	ChunkMS int
}

func NewCommandDevice(command string, format audio.Format) *CommandDevice {
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	if format.SampleRate <= 0 {
		format.SampleRate = audio.DefaultFormat.SampleRate
	}
	if format.Channels <= 0 {
		format.Channels = audio.DefaultFormat.Channels
	}
	return &CommandDevice{Command: command, Format: format, ChunkMS: 100}
}

func (d *CommandDevice) Acquire(ctx context.Context) (Stream, error) {
	fields := strings.Fields(d.Command)
	if len(fields) == 0 {
		return nil, errors.New("capture command is empty")
	}
	path, err := exec.LookPath(fields[0])
	if err != nil {
		return nil, fmt.Errorf("capture command unavailable: %w", err)
	}
	args := append(fields[1:], d.formatArgs(fields[0])...)

	cmd := exec.Command(path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture stdout: %w", err)
	}
	tail := &tailWriter{limit: 4 << 10}
	cmd.Stderr = tail
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start capture command: %w", err)
	}
	if err := ctx.Err(); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}

	chunkMS := d.ChunkMS
	if chunkMS <= 0 {
		chunkMS = 100
	}
	chunkBytes := d.Format.SampleRate * d.Format.Channels * 2 * chunkMS / 1000

	s := &commandStream{
		cmd:    cmd,
		format: d.Format,
		chunks: make(chan []byte, 64),
		tail:   tail,
		exited: make(chan struct{}),
	}
	go s.read(stdout, chunkBytes)
	return s, nil
}

// formatArgs appends rate/channel flags for arecord; other programs are
// expected to be configured through the command string.
func (d *CommandDevice) formatArgs(program string) []string {
	if !strings.HasSuffix(program, "arecord") {
		return nil
	}
	return []string{"-r", strconv.Itoa(d.Format.SampleRate), "-c", strconv.Itoa(d.Format.Channels)}
}

type commandStream struct {
	cmd    *exec.Cmd
	format audio.Format
	chunks chan []byte
	tail   *tailWriter

	stopOnce sync.Once
	exited   chan struct{}
	waitErr  error
}

func (s *commandStream) read(r io.Reader, chunkBytes int) {
	defer close(s.chunks)
	for {
		buf := make([]byte, chunkBytes)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			s.chunks <- buf[:n]
		}
		if err != nil {
			break
		}
	}
	s.waitErr = s.cmd.Wait()
	close(s.exited)
	if s.waitErr != nil && !isSignalExit(s.waitErr) {
		slog.Debug("capture: command exited", "error", s.waitErr, "stderr", s.tail.String())
	}
}

func (s *commandStream) Chunks() <-chan []byte { return s.chunks }

func (s *commandStream) Tracks() []Track { return []Track{processTrack{s}} }

func (s *commandStream) ContentType() string { return audio.ContentTypePCM }

func (s *commandStream) Format() audio.Format { return s.format }

// Stop asks the recorder to exit so it flushes buffered audio to stdout.
func (s *commandStream) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		if s.cmd.Process == nil {
			return
		}
		select {
		case <-s.exited:
			return
		default:
		}
		err = s.cmd.Process.Signal(os.Interrupt)
	})
	return err
}

type processTrack struct{ s *commandStream }

// Stop kills the capture process if it has not exited after the interrupt.
func (t processTrack) Stop() {
	select {
	case <-t.s.exited:
		return
	case <-time.After(1200 * time.Millisecond):
		_ = t.s.cmd.Process.Kill()
		<-t.s.exited
	}
}

func isSignalExit(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return !exitErr.Exited()
	}
	return false
}

// tailWriter keeps the last limit bytes written to it.
type tailWriter struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	if len(w.buf) > w.limit {
		w.buf = w.buf[len(w.buf)-w.limit:]
	}
	return len(p), nil
}

func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.TrimSpace(string(w.buf))
}
