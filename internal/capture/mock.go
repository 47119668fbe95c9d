package capture

import (
	"context"
	"sync"

	"github.com/ent0n29/dayroom/internal/audio"
)

// MockDevice is an in-process device used in tests and when no capture
// program is configured. Each acquisition emits Chunks and then idles until
// stopped.
type MockDevice struct {
	mu          sync.Mutex
	chunks      [][]byte
	err         error
	contentType string
	trackCount  int
	acquired    int
	streams     []*MockStream
}

func NewMockDevice(chunks ...[]byte) *MockDevice {
	return &MockDevice{chunks: chunks, contentType: audio.ContentTypeWebM, trackCount: 1}
}

// Fail makes subsequent acquisitions return err (nil restores success).
func (d *MockDevice) Fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// SetTracks sets how many tracks each stream reports.
func (d *MockDevice) SetTracks(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.trackCount = n
}

func (d *MockDevice) Acquire(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	d.acquired++

	s := &MockStream{
		chunks:      make(chan []byte, len(d.chunks)),
		contentType: d.contentType,
		stopped:     make(chan struct{}),
	}
	for i := 0; i < d.trackCount; i++ {
		s.tracks = append(s.tracks, &MockTrack{})
	}
	for _, c := range d.chunks {
		s.chunks <- c
	}
	go func() {
		<-s.stopped
		close(s.chunks)
	}()
	d.streams = append(d.streams, s)
	return s, nil
}

// Acquisitions returns how many streams have been handed out.
func (d *MockDevice) Acquisitions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acquired
}

// Streams returns every stream handed out so far.
func (d *MockDevice) Streams() []*MockStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*MockStream, len(d.streams))
	copy(out, d.streams)
	return out
}

type MockStream struct {
	chunks      chan []byte
	contentType string
	tracks      []*MockTrack

	stopOnce sync.Once
	stopped  chan struct{}
}

func (s *MockStream) Chunks() <-chan []byte { return s.chunks }

func (s *MockStream) Tracks() []Track {
	out := make([]Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

func (s *MockStream) ContentType() string { return s.contentType }

func (s *MockStream) Stop() error {
	s.stopOnce.Do(func() { close(s.stopped) })
	return nil
}

// TrackStops reports how many times each track was stopped.
func (s *MockStream) TrackStops() []int {
	out := make([]int, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t.Stops()
	}
	return out
}

type MockTrack struct {
	mu    sync.Mutex
	stops int
}

func (t *MockTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
}

func (t *MockTrack) Stops() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}
