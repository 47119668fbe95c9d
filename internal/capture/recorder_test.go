package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ent0n29/dayroom/internal/audio"
)

func TestRecorderStartStopProducesPayload(t *testing.T) {
	dev := NewMockDevice([]byte("ab"), nil, []byte("cd"))
	dev.SetTracks(2)
	r := NewRecorder(dev, time.Second)

	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !r.Active() {
		t.Fatalf("Active() = false, want true")
	}

	payload, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if string(payload.Data) != "abcd" {
		t.Fatalf("payload.Data = %q, want %q", payload.Data, "abcd")
	}
	if payload.Chunks != 2 {
		t.Fatalf("payload.Chunks = %d, want 2 (empty chunks dropped)", payload.Chunks)
	}
	if payload.ContentType != audio.ContentTypeWebM {
		t.Fatalf("payload.ContentType = %q, want %q", payload.ContentType, audio.ContentTypeWebM)
	}

	stops := dev.Streams()[0].TrackStops()
	for i, n := range stops {
		if n != 1 {
			t.Fatalf("track %d stopped %d times, want 1", i, n)
		}
	}
	if r.Active() {
		t.Fatalf("Active() after Stop = true, want false")
	}
}

func TestRecorderStopBeforeAnyChunk(t *testing.T) {
	r := NewRecorder(NewMockDevice(), time.Second)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	payload, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !payload.Empty() {
		t.Fatalf("payload should be empty, got %d bytes", len(payload.Data))
	}
}

func TestRecorderStopWithoutRecording(t *testing.T) {
	r := NewRecorder(NewMockDevice(), time.Second)
	if _, err := r.Stop(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("Stop() error = %v, want ErrNotRecording", err)
	}
}

func TestRecorderRejectsConcurrentStart(t *testing.T) {
	dev := NewMockDevice([]byte("x"))
	r := NewRecorder(dev, time.Second)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := r.Start(context.Background()); !errors.Is(err, ErrAlreadyRecording) {
		t.Fatalf("second Start() error = %v, want ErrAlreadyRecording", err)
	}
	if dev.Acquisitions() != 1 {
		t.Fatalf("Acquisitions() = %d, want 1", dev.Acquisitions())
	}
	r.Abort()
	if got := dev.Streams()[0].TrackStops()[0]; got != 1 {
		t.Fatalf("track stops after Abort = %d, want 1", got)
	}
}

func TestRecorderDeviceDenied(t *testing.T) {
	dev := NewMockDevice()
	denied := errors.New("NotAllowedError")
	dev.Fail(denied)
	r := NewRecorder(dev, time.Second)

	err := r.Start(context.Background())
	var accessErr *DeviceAccessError
	if !errors.As(err, &accessErr) {
		t.Fatalf("Start() error = %v, want *DeviceAccessError", err)
	}
	if !errors.Is(err, denied) {
		t.Fatalf("Start() error should wrap the device cause")
	}
	if accessErr.UserMessage() != DefaultDeniedMessage {
		t.Fatalf("UserMessage() = %q, want %q", accessErr.UserMessage(), DefaultDeniedMessage)
	}
	if r.Active() {
		t.Fatalf("Active() after failed Start = true, want false")
	}

	dev.Fail(nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() after recovery error = %v", err)
	}
	r.Abort()
}

type pcmStream struct{ *MockStream }

func (pcmStream) Format() audio.Format { return audio.Format{SampleRate: 8000, Channels: 1} }

type pcmDevice struct{ inner *MockDevice }

func (d pcmDevice) Acquire(ctx context.Context) (Stream, error) {
	s, err := d.inner.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return pcmStream{s.(*MockStream)}, nil
}

func TestRecorderWrapsPCMInWAV(t *testing.T) {
	r := NewRecorder(pcmDevice{NewMockDevice([]byte{1, 0, 2, 0})}, time.Second)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	payload, err := r.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if payload.ContentType != audio.ContentTypeWAV {
		t.Fatalf("ContentType = %q, want %q", payload.ContentType, audio.ContentTypeWAV)
	}
	if len(payload.Data) != 44+4 {
		t.Fatalf("len(Data) = %d, want 48", len(payload.Data))
	}
}

func TestCommandDeviceMissingBinary(t *testing.T) {
	dev := NewCommandDevice("definitely-not-a-recorder-binary -x", audio.DefaultFormat)
	r := NewRecorder(dev, time.Second)
	var accessErr *DeviceAccessError
	if err := r.Start(context.Background()); !errors.As(err, &accessErr) {
		t.Fatalf("Start() error = %v, want *DeviceAccessError", err)
	}
}
