// Package voice drives the voice link: it turns push-to-talk gestures into
// bounded, stateful turns against the brain backend.
package voice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ent0n29/dayroom/internal/brain"
	"github.com/ent0n29/dayroom/internal/capture"
	"github.com/ent0n29/dayroom/internal/memory"
	"github.com/ent0n29/dayroom/internal/observability"
	"github.com/ent0n29/dayroom/internal/playback"
	"github.com/ent0n29/dayroom/internal/policy"
	"github.com/ent0n29/dayroom/internal/session"
)

const (
	defaultTurnTimeout = 60 * time.Second
	finalizeTimeout    = 5 * time.Second
	eventQueueSize     = 64
)

// Outcome labels for turn metrics.
const (
	OutcomeSuccess       = "success"
	OutcomeDeviceError   = "device_error"
	OutcomeCaptureError  = "capture_error"
	OutcomeTransport     = "transport_error"
	OutcomePlaybackError = "playback_error"
)

// Transport sends one turn to the brain backend.
type Transport interface {
	SendTurn(ctx context.Context, req brain.TurnRequest) (brain.TurnResponse, error)
}

// Config wires the controller's collaborators.
type Config struct {
	Session     *session.Machine
	Recorder    *capture.Recorder
	Transport   Transport
	Memory      *memory.Window
	Playback    *playback.Controller
	Metrics     *observability.Metrics
	TurnTimeout time.Duration
}

// Controller owns every Session transition. StartRecording and
// StopRecording only enqueue requests; device, network and playback work
// runs asynchronously and reports back into a single event loop, so at most
// one turn is in flight.
type Controller struct {
	session     *session.Machine
	recorder    *capture.Recorder
	transport   Transport
	memory      *memory.Window
	playback    *playback.Controller
	metrics     *observability.Metrics
	turnTimeout time.Duration

	events  chan event
	runOnce sync.Once
	stopped chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	closeMu sync.Mutex
	closed  bool

	// Loop-owned turn state.
	turn turnState
}

type turnState struct {
	id          string
	acquiring   bool
	stopPending bool
	requestedAt time.Time
	stopAt      time.Time
	playingAt   time.Time
	ctx         context.Context
	span        trace.Span
}

func NewController(cfg Config) (*Controller, error) {
	switch {
	case cfg.Session == nil:
		return nil, errors.New("voice controller requires a session")
	case cfg.Recorder == nil:
		return nil, errors.New("voice controller requires a recorder")
	case cfg.Transport == nil:
		return nil, errors.New("voice controller requires a transport")
	case cfg.Playback == nil:
		return nil, errors.New("voice controller requires a playback controller")
	}
	if cfg.Memory == nil {
		cfg.Memory = memory.NewWindow(memory.DefaultTurns)
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = defaultTurnTimeout
	}

	c := &Controller{
		session:     cfg.Session,
		recorder:    cfg.Recorder,
		transport:   cfg.Transport,
		memory:      cfg.Memory,
		playback:    cfg.Playback,
		metrics:     cfg.Metrics,
		turnTimeout: cfg.TurnTimeout,
		events:      make(chan event, eventQueueSize),
		stopped:     make(chan struct{}),
	}
	c.session.SetChangeHook(func(from, to session.State) {
		if from.Status != to.Status {
			c.metrics.ObserveTransition(string(to.Status))
		}
	})
	return c, nil
}

// StartRecording requests a new recording. Requests while a turn is active
// are ignored.
func (c *Controller) StartRecording() { c.post(event{kind: evStartRequested}) }

// StopRecording ends the active recording and sends it to the brain. It is
// a no-op when nothing is recording.
func (c *Controller) StopRecording() { c.post(event{kind: evStopRequested}) }

func (c *Controller) State() session.State { return c.session.Snapshot() }

func (c *Controller) Status() session.Status { return c.session.Status() }

// ErrorMessage returns the last failure text, or "" when none is set.
func (c *Controller) ErrorMessage() string { return c.session.Snapshot().ErrorMessage }

func (c *Controller) ComplianceScore() int { return c.session.Snapshot().ComplianceScore }

// Subscribe streams state changes; call the returned func to stop.
func (c *Controller) Subscribe() (<-chan session.State, func()) { return c.session.Subscribe() }

// History returns the remembered conversation.
func (c *Controller) History() []memory.HistoryItem { return c.memory.Snapshot() }

// Done is closed once Run has returned.
func (c *Controller) Done() <-chan struct{} { return c.stopped }

// Run processes events until ctx is cancelled, then releases the input
// device and audio output. It must be called once.
func (c *Controller) Run(ctx context.Context) error {
	started := false
	c.runOnce.Do(func() { started = true })
	if !started {
		return errors.New("voice controller already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		close(c.stopped)
		return nil
	}
	c.ctx, c.cancel = ctx, cancel
	c.closeMu.Unlock()
	defer close(c.stopped)

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

// Close stops the event loop and waits for Run to release the recorder and
// playback. It is safe to call more than once and before Run.
func (c *Controller) Close() {
	c.closeMu.Lock()
	c.closed = true
	cancel := c.cancel
	c.closeMu.Unlock()
	if cancel == nil {
		c.recorder.Abort()
		c.playback.Stop()
		return
	}
	cancel()
	<-c.stopped
}

func (c *Controller) post(ev event) {
	select {
	case <-c.stopped:
		return
	default:
	}
	select {
	case c.events <- ev:
	default:
		slog.Warn("voice: event queue full, dropping event", "event", ev.kind.String())
	}
}

// complete delivers an async completion, giving up when the loop has exited.
func (c *Controller) complete(ev event) {
	select {
	case c.events <- ev:
	case <-c.stopped:
	}
}

func (c *Controller) handle(ev event) {
	switch ev.kind {
	case evStartRequested:
		c.onStartRequested()
	case evStopRequested:
		c.onStopRequested()
	default:
		if ev.turnID != c.turn.id {
			slog.Debug("voice: dropping stale completion", "event", ev.kind.String(), "turn_id", ev.turnID)
			return
		}
		switch ev.kind {
		case evDeviceAcquired:
			c.onDeviceAcquired(ev)
		case evRecordingFinalized:
			c.onRecordingFinalized(ev)
		case evBrainReplied:
			c.onBrainReplied(ev)
		case evPlaybackEnded:
			c.onPlaybackEnded(ev)
		}
	}
}

func (c *Controller) onStartRequested() {
	if c.turn.acquiring || !c.session.Status().CanStartRecording() {
		slog.Debug("voice: ignoring start request", "status", c.session.Status(), "acquiring", c.turn.acquiring)
		return
	}

	turnID := uuid.NewString()
	c.turn = turnState{id: turnID, acquiring: true, requestedAt: time.Now()}
	ctx := c.ctx
	go func() {
		err := c.recorder.Start(ctx)
		c.complete(event{kind: evDeviceAcquired, turnID: turnID, err: err})
	}()
}

func (c *Controller) onDeviceAcquired(ev event) {
	c.turn.acquiring = false
	c.metrics.ObserveStage(observability.StageAcquire, time.Since(c.turn.requestedAt))
	if ev.err != nil {
		c.fail(ev.err, capture.DefaultDeniedMessage, OutcomeDeviceError)
		return
	}
	if err := c.session.BeginRecording(c.turn.id); err != nil {
		slog.Error("voice: begin recording rejected", "error", err)
		c.recorder.Abort()
		return
	}
	slog.Debug("voice: recording", "turn_id", c.turn.id)
	if c.turn.stopPending {
		c.onStopRequested()
	}
}

func (c *Controller) onStopRequested() {
	if c.turn.acquiring {
		// Released before the device was ready; stop as soon as it is.
		c.turn.stopPending = true
		return
	}
	if c.session.Status() != session.StatusRecording {
		return
	}
	if err := c.session.BeginThinking(); err != nil {
		slog.Error("voice: begin thinking rejected", "error", err)
		return
	}

	c.turn.stopPending = false
	c.turn.stopAt = time.Now()
	c.turn.ctx, c.turn.span = observability.StartSpan(c.ctx, "voice.turn",
		trace.WithAttributes(attribute.String("turn.id", c.turn.id)))

	turnID := c.turn.id
	ctx := c.turn.ctx
	go func() {
		fctx, cancel := context.WithTimeout(ctx, finalizeTimeout)
		defer cancel()
		payload, err := c.recorder.Stop(fctx)
		c.complete(event{kind: evRecordingFinalized, turnID: turnID, payload: payload, err: err})
	}()
}

func (c *Controller) onRecordingFinalized(ev event) {
	c.metrics.ObserveStage(observability.StageFinalize, time.Since(c.turn.stopAt))
	if ev.err != nil {
		c.fail(ev.err, "Recording failed.", OutcomeCaptureError)
		return
	}

	req := brain.TurnRequest{
		TurnID:  c.turn.id,
		Audio:   ev.payload,
		History: c.memory.Snapshot(),
	}
	observability.Logger(c.turn.ctx).Debug("voice: sending turn",
		"turn_id", req.TurnID,
		"audio_bytes", len(req.Audio.Data),
		"history_items", len(req.History),
	)

	turnID := c.turn.id
	ctx := c.turn.ctx
	timeout := c.turnTimeout
	go func() {
		sctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		sent := time.Now()
		reply, err := c.transport.SendTurn(sctx, req)
		c.metrics.ObserveStage(observability.StageTransport, time.Since(sent))
		c.complete(event{kind: evBrainReplied, turnID: turnID, reply: reply, err: err})
	}()
}

func (c *Controller) onBrainReplied(ev event) {
	if ev.err != nil {
		c.fail(ev.err, brain.MessageConnectionLost, OutcomeTransport)
		return
	}
	reply := ev.reply
	log := observability.Logger(c.turn.ctx)

	if !c.memory.Append(reply.UserText, reply.AIText) {
		log.Debug("voice: reply lacks transcript, history unchanged", "turn_id", c.turn.id)
	}
	if reply.ComplianceScore != nil && c.session.SetComplianceScore(*reply.ComplianceScore) {
		c.metrics.SetComplianceScore(*reply.ComplianceScore)
	}
	log.Info("voice: brain replied",
		"turn_id", c.turn.id,
		"user_text", policy.LoggableTranscript(reply.UserText),
		"ai_text", policy.LoggableTranscript(reply.AIText),
		"compliance_score", c.session.Snapshot().ComplianceScore,
	)

	startAt := time.Now()
	done, err := c.playback.Play(c.turn.ctx, reply.Audio, reply.ContentType)
	if err != nil {
		c.fail(err, playback.DefaultBlockedMessage, OutcomePlaybackError)
		return
	}
	if err := c.session.BeginSpeaking(); err != nil {
		slog.Error("voice: begin speaking rejected", "error", err)
		c.playback.Stop()
		return
	}
	c.turn.playingAt = time.Now()
	c.metrics.ObserveStage(observability.StagePlaybackStart, c.turn.playingAt.Sub(startAt))
	c.metrics.ObserveTurnLatency(c.turn.playingAt.Sub(c.turn.stopAt))

	turnID := c.turn.id
	go func() {
		err := <-done
		c.complete(event{kind: evPlaybackEnded, turnID: turnID, err: err})
	}()
}

func (c *Controller) onPlaybackEnded(ev event) {
	c.metrics.ObserveStage(observability.StageSpeech, time.Since(c.turn.playingAt))
	if ev.err != nil {
		if errors.Is(ev.err, playback.ErrInterrupted) && c.session.Status() != session.StatusSpeaking {
			return
		}
		c.fail(ev.err, playback.MessageFailed, OutcomePlaybackError)
		return
	}
	if err := c.session.Complete(); err != nil {
		slog.Error("voice: complete rejected", "error", err)
		return
	}
	c.metrics.ObserveStage(observability.StageTurnTotal, time.Since(c.turn.stopAt))
	c.metrics.ObserveTurn(OutcomeSuccess)
	c.endSpan(nil)
	c.turn = turnState{}
}

// fail records err on the Session. Every failure leaves the Session in a
// state from which a new recording may start.
func (c *Controller) fail(err error, fallback, outcome string) {
	msg := userMessage(err, fallback)
	observability.Logger(c.spanCtx()).Warn("voice: turn failed",
		"turn_id", c.turn.id,
		"outcome", outcome,
		"error", err,
	)
	if ferr := c.session.Fail(msg); ferr != nil {
		slog.Error("voice: fail rejected", "error", ferr)
	}
	c.metrics.ObserveError(outcome)
	c.metrics.ObserveTurn(outcome)
	c.endSpan(err)
	c.turn = turnState{}
}

func (c *Controller) spanCtx() context.Context {
	if c.turn.ctx != nil {
		return c.turn.ctx
	}
	return c.ctx
}

func (c *Controller) endSpan(err error) {
	if c.turn.span == nil {
		return
	}
	if err != nil {
		c.turn.span.RecordError(err)
		c.turn.span.SetStatus(codes.Error, err.Error())
	}
	c.turn.span.End()
}

func (c *Controller) shutdown() {
	c.recorder.Abort()
	c.playback.Stop()
	c.endSpan(nil)
	c.turn = turnState{}
}

func userMessage(err error, fallback string) string {
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		if msg := um.UserMessage(); msg != "" {
			return msg
		}
	}
	return fallback
}
