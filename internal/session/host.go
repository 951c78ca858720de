package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mweiss/tagduel/internal/channel"
	"github.com/mweiss/tagduel/internal/game"
	"github.com/mweiss/tagduel/internal/wire"
)

var ErrSessionClosed = errors.New("session is closed")

type hostMsg interface{ isHostMsg() }

type submitIntent struct {
	Intent game.Intent
	Reply  chan error
}

type startGame struct{}

type voteRematch struct{}

type retryChallenge struct{}

type endSession struct{}

type getHostView struct{ Reply chan Snapshot }

type resolverResult struct {
	count   int64
	err     error
	attempt int
}

func (submitIntent) isHostMsg()   {}
func (startGame) isHostMsg()      {}
func (voteRematch) isHostMsg()    {}
func (retryChallenge) isHostMsg() {}
func (endSession) isHostMsg()     {}
func (getHostView) isHostMsg()    {}
func (resolverResult) isHostMsg() {}

// pendingBroadcast tracks the one snapshot awaiting acknowledgment.
// Retransmissions reuse the stored payload byte-identically; only the retry
// counter moves.
type pendingBroadcast struct {
	version uint64
	payload wire.Envelope
	retries int
}

// Host owns the authoritative state for one session. It exists from the
// moment the channel opens until teardown, and is the only thing that ever
// mutates the game state.
type Host struct {
	inbox  chan hostMsg
	events chan Event

	ch       channel.Channel
	state    game.State
	version  uint64
	votes    [2]bool
	wins     [2]int
	pending  *pendingBroadcast
	resolver Resolver

	ackTimer  *time.Timer
	heartbeat *time.Ticker

	timings Timings
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	final   Event
}

func NewHost(parent context.Context, ch channel.Channel, initial game.State, resolver Resolver, timings Timings, log *zap.Logger) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Host{
		inbox:    make(chan hostMsg, 64),
		events:   make(chan Event, eventBuffer),
		ch:       ch,
		state:    initial,
		resolver: resolver,
		timings:  timings,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Host) Events() <-chan Event { return h.events }

// Done is closed once the loop has fully torn down.
func (h *Host) Done() <-chan struct{} { return h.done }

// Final reports why the session ended. Meaningful once Done is closed,
// whether or not the event was ever read off Events.
func (h *Host) Final() Event {
	select {
	case <-h.done:
		return h.final
	default:
		return Event{}
	}
}

// Submit runs a host-side intent through the same validation as guest
// intents. The error comes straight back instead of over the wire.
func (h *Host) Submit(in game.Intent) error {
	in.Player = 0
	reply := make(chan error, 1)
	select {
	case h.inbox <- submitIntent{Intent: in, Reply: reply}:
	case <-h.done:
		return ErrSessionClosed
	}
	select {
	case err := <-reply:
		return err
	case <-h.done:
		// The loop may have answered just before exiting.
		select {
		case err := <-reply:
			return err
		default:
		}
		return ErrSessionClosed
	}
}

// Start moves the session out of setup into round one.
func (h *Host) Start() { h.post(startGame{}) }

// VoteRematch registers the host's side of the rematch vote.
func (h *Host) VoteRematch() { h.post(voteRematch{}) }

// RetryChallenge re-runs the oracle after a surfaced resolve failure.
func (h *Host) RetryChallenge() { h.post(retryChallenge{}) }

// End tears the session down voluntarily, telling the guest first.
func (h *Host) End() { h.post(endSession{}) }

// View snapshots the host's authoritative state, for UIs and tests.
func (h *Host) View() (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case h.inbox <- getHostView{Reply: reply}:
	case <-h.done:
		return Snapshot{}, ErrSessionClosed
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-h.done:
		select {
		case snap := <-reply:
			return snap, nil
		default:
		}
		return Snapshot{}, ErrSessionClosed
	}
}

func (h *Host) post(m hostMsg) {
	select {
	case h.inbox <- m:
	case <-h.done:
	}
}

func (h *Host) loop() {
	defer close(h.done)

	h.heartbeat = time.NewTicker(h.timings.Heartbeat)
	defer h.heartbeat.Stop()
	h.ackTimer = time.NewTimer(h.timings.AckTimeout)
	h.disarmAck()
	defer h.ackTimer.Stop()

	// The guest is connected the moment this session exists.
	h.send(wire.Welcome(1))
	h.broadcastState()

	for {
		select {
		case <-h.ctx.Done():
			// The embedding application is going away. Tell the guest so the
			// other side ends cleanly instead of waiting out its liveness
			// window.
			h.send(wire.GameEnded(wire.EndHostLeft))
			h.finish(Event{Type: EventEnded, End: wire.EndHostLeft})
			h.closeChannel()
			return

		case m := <-h.inbox:
			if !h.handleLocal(m) {
				return
			}

		case env := <-h.ch.Inbound():
			if !h.handleGuestMessage(env) {
				return
			}

		case <-h.ch.Done():
			h.log.Warn("channel closed under the session")
			h.finish(Event{Type: EventConnectionLost})
			h.cancel()
			return

		case <-h.heartbeat.C:
			h.send(wire.Envelope{Type: wire.MsgPing})

		case <-h.ackTimer.C:
			if !h.onAckTimeout() {
				return
			}
		}
	}
}

// handleLocal processes one message from the embedding application. Returns
// false when the loop must exit.
func (h *Host) handleLocal(m hostMsg) bool {
	switch msg := m.(type) {
	case submitIntent:
		err := h.applyIntent(msg.Intent)
		msg.Reply <- err

	case startGame:
		if h.state.Phase != game.PhaseSetup {
			return true
		}
		h.state = game.StartRound(h.state, 1)
		h.broadcastState()

	case voteRematch:
		h.recordVote(0)

	case retryChallenge:
		if h.state.Phase == game.PhaseChallenge {
			h.startResolve(0)
		}

	case endSession:
		h.send(wire.GameEnded(wire.EndHostEndedSession))
		h.finish(Event{Type: EventEnded, End: wire.EndHostEndedSession})
		h.cancel()
		h.closeChannel()
		return false

	case getHostView:
		msg.Reply <- h.snapshot()

	case resolverResult:
		h.onResolved(msg)
	}
	return true
}

func (h *Host) handleGuestMessage(env wire.Envelope) bool {
	switch env.Type {
	case wire.MsgAck:
		// Acks for anything but the in-flight version are duplicates or
		// stragglers and clear nothing.
		if h.pending != nil && env.Version == h.pending.version {
			h.pending = nil
			h.disarmAck()
		}

	case wire.MsgPong:
		// Inbound traffic is all the host needs; the ack loop does the
		// actual failure detection.

	case wire.MsgSetName:
		h.state.Players[1].Name = env.Name
		h.broadcastState()

	case wire.MsgSubmitTurn:
		kind := game.IntentKind(env.Action)
		if kind != game.IntentAddTag && kind != game.IntentSpecifyValue {
			h.send(wire.ActionRejected(wire.ReasonInvalidAction, "unknown action kind"))
			return true
		}
		in := game.Intent{Kind: kind, Player: 1, Key: env.Key, Value: env.Value}
		if err := h.applyIntent(in); err != nil {
			h.send(wire.ActionRejected(wire.IntentReason(err), err.Error()))
		}

	case wire.MsgChallenge:
		in := game.Intent{Kind: game.IntentChallenge, Player: 1}
		if err := h.applyIntent(in); err != nil {
			h.send(wire.ActionRejected(wire.IntentReason(err), err.Error()))
		}

	case wire.MsgRequestRematch:
		h.recordVote(1)

	default:
		h.log.Warn("unexpected message from guest", zap.String("type", string(env.Type)))
	}
	return true
}

// applyIntent is the single validation path for both players' intents.
func (h *Host) applyIntent(in game.Intent) error {
	next, err := game.Apply(h.state, in)
	if err != nil {
		return err
	}
	h.state = next
	h.broadcastState()
	if in.Kind == game.IntentChallenge {
		h.startResolve(0)
	}
	return nil
}

// recordVote flips one side's rematch vote. Two yes votes start the next
// round with a rotated opening player; a lone vote only changes the
// advertised vote status.
func (h *Host) recordVote(side int) {
	h.votes[side] = true
	if h.votes[0] && h.votes[1] {
		h.votes = [2]bool{}
		h.state = game.StartRound(h.state, h.state.Round+1)
	}
	h.broadcastState()
}

// broadcastState cuts a new version and puts it on the wire. Everything that
// changes shared state funnels through here, so versions strictly increase
// per change and retransmissions elsewhere reuse the stored payload.
func (h *Host) broadcastState() {
	h.version = wire.NextVersion(h.version)
	payload := wire.StateSync(h.version, h.state.Clone(), h.votes, h.wins)
	h.send(payload)
	h.pending = &pendingBroadcast{version: h.version, payload: payload}
	h.armAck()
	emit(h.events, Event{Type: EventState, Snapshot: snapshotPtr(h.snapshot())})
}

// onAckTimeout resends the unacknowledged snapshot, or declares the guest
// gone once the retry budget is spent. This is the only host-side path that
// declares loss of the guest. Returns false when the loop must exit.
func (h *Host) onAckTimeout() bool {
	if h.pending == nil {
		return true
	}
	if h.pending.retries < h.timings.AckRetries {
		h.pending.retries++
		h.log.Debug("resending unacknowledged snapshot",
			zap.Uint64("version", h.pending.version),
			zap.Int("retry", h.pending.retries))
		h.send(h.pending.payload)
		h.armAck()
		return true
	}
	h.log.Warn("guest stopped acknowledging", zap.Uint64("version", h.pending.version))
	h.finish(Event{Type: EventConnectionLost})
	h.cancel()
	h.closeChannel()
	return false
}

// startResolve asks the oracle off-loop; the verdict comes back through the
// inbox so all state changes stay on the loop goroutine.
func (h *Host) startResolve(attempt int) {
	tags := h.state.Clone().Tags
	region := h.state.Region
	go func() {
		count, err := h.resolver.Count(h.ctx, tags, region)
		select {
		case h.inbox <- resolverResult{count: count, err: err, attempt: attempt}:
		case <-h.ctx.Done():
		}
	}()
}

func (h *Host) onResolved(res resolverResult) {
	if h.state.Phase != game.PhaseChallenge {
		return
	}
	if res.err != nil {
		if res.attempt == 0 {
			h.log.Warn("challenge resolution failed, retrying", zap.Error(res.err))
			h.startResolve(1)
			return
		}
		h.log.Error("challenge resolution failed", zap.Error(res.err))
		emit(h.events, Event{Type: EventResolveFailed, Err: res.err})
		return
	}
	h.state = game.ResolveChallenge(h.state, res.count)
	h.wins[h.state.Result.Winner]++
	h.broadcastState()
}

// finish records the terminal event so it is still readable through Final
// when the events buffer has overflowed, then offers it on Events as usual.
func (h *Host) finish(ev Event) {
	h.final = ev
	emit(h.events, ev)
}

func (h *Host) send(env wire.Envelope) {
	if err := h.ch.Send(env); err != nil {
		h.log.Error("send failed, dropping message",
			zap.String("type", string(env.Type)), zap.Error(err))
	}
}

func (h *Host) armAck() {
	h.disarmAck()
	h.ackTimer.Reset(h.timings.AckTimeout)
}

func (h *Host) disarmAck() {
	if !h.ackTimer.Stop() {
		select {
		case <-h.ackTimer.C:
		default:
		}
	}
}

func (h *Host) closeChannel() {
	_ = h.ch.Close()
}

func (h *Host) snapshot() Snapshot {
	return Snapshot{
		Version: h.version,
		State:   h.state.Clone(),
		Votes:   h.votes,
		Wins:    h.wins,
	}
}

func snapshotPtr(s Snapshot) *Snapshot { return &s }
