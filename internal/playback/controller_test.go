package playback

import (
	"context"
	"errors"
	"testing"
	"time"
)

func waitResult(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for playback result")
		return nil
	}
}

func TestControllerPlayNaturalEnd(t *testing.T) {
	player := NewMockPlayer(0)
	c := NewController(player)

	done, err := c.Play(context.Background(), []byte("reply"), "audio/mpeg")
	if err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if !c.Active() {
		t.Fatalf("Active() = false, want true")
	}
	player.Last().Finish(nil)
	if err := waitResult(t, done); err != nil {
		t.Fatalf("playback result = %v, want nil", err)
	}
	if c.Active() {
		t.Fatalf("Active() after end = true, want false")
	}
	if string(player.Last().Audio) != "reply" {
		t.Fatalf("played audio = %q, want reply", player.Last().Audio)
	}
}

func TestControllerSecondPlayStopsFirst(t *testing.T) {
	player := NewMockPlayer(0)
	c := NewController(player)

	first, err := c.Play(context.Background(), []byte("one"), "audio/mpeg")
	if err != nil {
		t.Fatalf("Play(one) error = %v", err)
	}
	if _, err := c.Play(context.Background(), []byte("two"), "audio/mpeg"); err != nil {
		t.Fatalf("Play(two) error = %v", err)
	}

	if err := waitResult(t, first); !errors.Is(err, ErrInterrupted) {
		t.Fatalf("first playback result = %v, want ErrInterrupted", err)
	}
	started := player.Started()
	if len(started) != 2 {
		t.Fatalf("len(Started()) = %d, want 2", len(started))
	}
	if started[0].Stops() == 0 {
		t.Fatalf("first playback was not stopped")
	}
	if started[1].Finished() {
		t.Fatalf("second playback should still be live")
	}
	c.Stop()
	if !started[1].Finished() {
		t.Fatalf("Stop() did not release the active playback")
	}
}

func TestControllerRefusedStart(t *testing.T) {
	player := NewMockPlayer(0)
	player.Fail(errors.New("NotAllowedError"))
	c := NewController(player)

	_, err := c.Play(context.Background(), []byte("x"), "audio/mpeg")
	var pe *PlaybackError
	if !errors.As(err, &pe) {
		t.Fatalf("Play() error = %v, want *PlaybackError", err)
	}
	if pe.UserMessage() != DefaultBlockedMessage {
		t.Fatalf("UserMessage() = %q, want %q", pe.UserMessage(), DefaultBlockedMessage)
	}
	if c.Active() {
		t.Fatalf("Active() after refused start = true, want false")
	}
}

func TestCommandPlayerMissingBinary(t *testing.T) {
	c := NewController(NewCommandPlayer("definitely-not-a-player-binary"))
	var pe *PlaybackError
	if _, err := c.Play(context.Background(), []byte("x"), "audio/mpeg"); !errors.As(err, &pe) {
		t.Fatalf("Play() error = %v, want *PlaybackError", err)
	}
}
