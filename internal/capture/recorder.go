package capture

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ent0n29/dayroom/internal/audio"
)

const defaultFlushTimeout = 2 * time.Second

// Recorder owns the device handle for the duration of one recording.
type Recorder struct {
	device       Device
	flushTimeout time.Duration

	mu        sync.Mutex
	active    *recording
	acquiring bool
}

type recording struct {
	stream    Stream
	startedAt time.Time
	done      chan struct{}

	mu     sync.Mutex
	chunks [][]byte

	release sync.Once
}

func NewRecorder(device Device, flushTimeout time.Duration) *Recorder {
	if flushTimeout <= 0 {
		flushTimeout = defaultFlushTimeout
	}
	return &Recorder{device: device, flushTimeout: flushTimeout}
}

// Active reports whether a recording is in progress or being acquired.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil || r.acquiring
}

// Start acquires the device and begins buffering chunks into a fresh buffer.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.active != nil || r.acquiring {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}
	r.acquiring = true
	r.mu.Unlock()

	stream, err := r.device.Acquire(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.acquiring = false
	if err != nil {
		return &DeviceAccessError{Message: DefaultDeniedMessage, Err: err}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		rec := &recording{stream: stream}
		_ = stream.Stop()
		rec.releaseTracks()
		return &DeviceAccessError{Message: DefaultDeniedMessage, Err: ctxErr}
	}

	rec := &recording{
		stream:    stream,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	go rec.collect()
	r.active = rec
	return nil
}

// Stop ends the active recording and returns its finalized payload, which
// may be empty. All device tracks are released before Stop returns.
func (r *Recorder) Stop(ctx context.Context) (Payload, error) {
	r.mu.Lock()
	rec := r.active
	r.active = nil
	r.mu.Unlock()
	if rec == nil {
		return Payload{}, ErrNotRecording
	}
	defer rec.releaseTracks()

	if err := rec.stream.Stop(); err != nil {
		slog.Warn("capture: stream stop failed", "error", err)
	}

	timer := time.NewTimer(r.flushTimeout)
	defer timer.Stop()
	select {
	case <-rec.done:
	case <-timer.C:
		slog.Warn("capture: flush timed out, finalizing partial buffer", "timeout", r.flushTimeout)
	case <-ctx.Done():
		slog.Warn("capture: finalize interrupted, using partial buffer", "error", ctx.Err())
	}

	return rec.finalize()
}

// Abort drops the active recording without producing a payload.
func (r *Recorder) Abort() {
	r.mu.Lock()
	rec := r.active
	r.active = nil
	r.mu.Unlock()
	if rec == nil {
		return
	}
	_ = rec.stream.Stop()
	rec.releaseTracks()
}

func (rec *recording) collect() {
	defer close(rec.done)
	for chunk := range rec.stream.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		rec.mu.Lock()
		rec.chunks = append(rec.chunks, chunk)
		rec.mu.Unlock()
	}
}

func (rec *recording) releaseTracks() {
	rec.release.Do(func() {
		for _, track := range rec.stream.Tracks() {
			track.Stop()
		}
	})
}

func (rec *recording) finalize() (Payload, error) {
	rec.mu.Lock()
	chunks := rec.chunks
	rec.chunks = nil
	rec.mu.Unlock()

	var buf bytes.Buffer
	for _, c := range chunks {
		buf.Write(c)
	}
	payload := Payload{
		Data:        buf.Bytes(),
		ContentType: rec.stream.ContentType(),
		Chunks:      len(chunks),
		Duration:    time.Since(rec.startedAt),
	}

	if pcm, ok := rec.stream.(PCMStream); ok {
		wav, err := audio.EncodeWAVPCM16LE(payload.Data, pcm.Format())
		if err != nil {
			return Payload{}, fmt.Errorf("encode wav: %w", err)
		}
		payload.Data = wav
		payload.ContentType = audio.ContentTypeWAV
	}
	if payload.ContentType == "" {
		payload.ContentType = audio.Sniff(payload.Data)
	}
	return payload, nil
}
