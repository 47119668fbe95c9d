package playback

import (
	"context"
	"sync"
)

// Controller guarantees at most one live playback. Starting a new one stops
// the previous one first.
type Controller struct {
	player Player

	mu     sync.Mutex
	active Playback
}

func NewController(player Player) *Controller {
	return &Controller{player: player}
}

// Play starts audio and returns a channel that receives the playback result
// once. A refused start is reported as *PlaybackError.
func (c *Controller) Play(ctx context.Context, audio []byte, contentType string) (<-chan error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		c.active.Stop()
		c.active = nil
	}

	pb, err := c.player.Start(ctx, audio, contentType)
	if err != nil {
		return nil, &PlaybackError{Message: DefaultBlockedMessage, Err: err}
	}
	c.active = pb

	out := make(chan error, 1)
	go func() {
		defer close(out)
		err, ok := <-pb.Done()
		if !ok {
			err = ErrInterrupted
		}
		c.mu.Lock()
		if c.active == pb {
			c.active = nil
		}
		c.mu.Unlock()
		pb.Stop()
		out <- err
	}()
	return out, nil
}

// Active reports whether a playback currently owns the output.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// Stop releases the active playback, if any.
func (c *Controller) Stop() {
	c.mu.Lock()
	pb := c.active
	c.active = nil
	c.mu.Unlock()
	if pb != nil {
		pb.Stop()
	}
}
