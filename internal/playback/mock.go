package playback

import (
	"context"
	"sync"
	"time"
)

// MockPlayer records playbacks in memory. With a positive auto-finish delay
// each playback ends by itself; otherwise tests end it with Finish.
type MockPlayer struct {
	mu         sync.Mutex
	err        error
	autoFinish time.Duration
	started    []*MockPlayback
}

func NewMockPlayer(autoFinish time.Duration) *MockPlayer {
	return &MockPlayer{autoFinish: autoFinish}
}

// Fail makes subsequent starts return err (nil restores success).
func (p *MockPlayer) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *MockPlayer) Start(ctx context.Context, audio []byte, contentType string) (Playback, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	pb := &MockPlayback{
		Audio:       append([]byte(nil), audio...),
		ContentType: contentType,
		done:        make(chan error, 1),
	}
	p.started = append(p.started, pb)
	if p.autoFinish > 0 {
		time.AfterFunc(p.autoFinish, func() { pb.Finish(nil) })
	}
	return pb, nil
}

// Started returns every playback begun so far.
func (p *MockPlayer) Started() []*MockPlayback {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*MockPlayback, len(p.started))
	copy(out, p.started)
	return out
}

// Last returns the most recent playback or nil.
func (p *MockPlayer) Last() *MockPlayback {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.started) == 0 {
		return nil
	}
	return p.started[len(p.started)-1]
}

type MockPlayback struct {
	Audio       []byte
	ContentType string

	mu       sync.Mutex
	done     chan error
	finished bool
	stops    int
}

// Finish ends the playback with err; later calls are ignored.
func (p *MockPlayback) Finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.finished = true
	p.done <- err
	close(p.done)
}

func (p *MockPlayback) Done() <-chan error { return p.done }

func (p *MockPlayback) Stop() {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
	p.Finish(ErrInterrupted)
}

// Stops reports how many times Stop was called.
func (p *MockPlayback) Stops() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops
}

// Finished reports whether the playback has ended.
func (p *MockPlayback) Finished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}
