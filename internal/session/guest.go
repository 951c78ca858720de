package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mweiss/tagduel/internal/channel"
	"github.com/mweiss/tagduel/internal/game"
	"github.com/mweiss/tagduel/internal/wire"
)

type guestMsg interface{ isGuestMsg() }

type guestIntent struct{ env wire.Envelope }

type leaveSession struct{}

type getGuestView struct{ Reply chan GuestView }

func (guestIntent) isGuestMsg()  {}
func (leaveSession) isGuestMsg() {}
func (getGuestView) isGuestMsg() {}

// GuestView is the guest's local picture of the session, for UIs and tests.
type GuestView struct {
	PlayerIndex int
	Version     uint64
	State       game.State
	Votes       [2]bool
	Wins        [2]int
	Pending     bool
}

// Guest mirrors the host's broadcasts and submits intents. It never mutates
// game state on its own authority: a submitted intent is pending until the
// next StateSync accepts it or an ActionRejected declines it.
type Guest struct {
	inbox  chan guestMsg
	events chan Event

	ch          channel.Channel
	playerIndex int
	lastVersion uint64
	state       game.State
	votes       [2]bool
	wins        [2]int
	pending     bool

	liveness     *time.Timer
	pendingTimer *time.Timer

	timings Timings
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	final   Event
}

func NewGuest(parent context.Context, ch channel.Channel, timings Timings, log *zap.Logger) *Guest {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	g := &Guest{
		inbox:   make(chan guestMsg, 64),
		events:  make(chan Event, eventBuffer),
		ch:      ch,
		timings: timings,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go g.loop()
	return g
}

func (g *Guest) Events() <-chan Event { return g.events }

func (g *Guest) Done() <-chan struct{} { return g.done }

// Final reports why the session ended. Meaningful once Done is closed,
// whether or not the event was ever read off Events.
func (g *Guest) Final() Event {
	select {
	case <-g.done:
		return g.final
	default:
		return Event{}
	}
}

func (g *Guest) SetName(name string) {
	g.post(guestIntent{env: wire.SetName(name)})
}

func (g *Guest) SubmitTurn(action, key string, value *string) {
	g.post(guestIntent{env: wire.SubmitTurn(action, key, value)})
}

func (g *Guest) Challenge() {
	g.post(guestIntent{env: wire.Envelope{Type: wire.MsgChallenge}})
}

func (g *Guest) RequestRematch() {
	g.post(guestIntent{env: wire.Envelope{Type: wire.MsgRequestRematch}})
}

// Leave closes the guest's side of the session.
func (g *Guest) Leave() { g.post(leaveSession{}) }

func (g *Guest) View() (GuestView, error) {
	reply := make(chan GuestView, 1)
	select {
	case g.inbox <- getGuestView{Reply: reply}:
	case <-g.done:
		return GuestView{}, ErrSessionClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-g.done:
		// The loop may have answered just before exiting.
		select {
		case v := <-reply:
			return v, nil
		default:
		}
		return GuestView{}, ErrSessionClosed
	}
}

func (g *Guest) post(m guestMsg) {
	select {
	case g.inbox <- m:
	case <-g.done:
	}
}

func (g *Guest) loop() {
	defer close(g.done)

	g.liveness = time.NewTimer(g.timings.LivenessTimeout)
	defer g.liveness.Stop()
	g.pendingTimer = time.NewTimer(g.timings.PendingTimeout)
	stopTimer(g.pendingTimer)
	defer g.pendingTimer.Stop()

	for {
		select {
		case <-g.ctx.Done():
			g.finish(Event{Type: EventEnded})
			_ = g.ch.Close()
			return

		case m := <-g.inbox:
			if !g.handleLocal(m) {
				return
			}

		case env := <-g.ch.Inbound():
			g.resetLiveness()
			if !g.handleHostMessage(env) {
				return
			}

		case <-g.ch.Done():
			// A GameEnded can race the close; anything already delivered
			// still counts as heard before the drop.
			for drained := false; !drained; {
				select {
				case env := <-g.ch.Inbound():
					if !g.handleHostMessage(env) {
						return
					}
				default:
					drained = true
				}
			}
			g.log.Warn("channel closed under the session")
			g.finish(Event{Type: EventConnectionLost})
			g.cancel()
			return

		case <-g.liveness.C:
			// No inbound traffic for the whole window, pings included. The
			// host is gone as far as this side is concerned.
			g.log.Warn("host silent past the liveness window")
			g.finish(Event{Type: EventConnectionLost})
			g.cancel()
			_ = g.ch.Close()
			return

		case <-g.pendingTimer.C:
			if g.pending {
				g.pending = false
				emit(g.events, Event{Type: EventPendingExpired})
			}
		}
	}
}

func (g *Guest) handleLocal(m guestMsg) bool {
	switch msg := m.(type) {
	case guestIntent:
		if err := g.ch.Send(msg.env); err != nil {
			g.log.Error("send failed, dropping intent",
				zap.String("type", string(msg.env.Type)), zap.Error(err))
			return true
		}
		g.pending = true
		resetTimer(g.pendingTimer, g.timings.PendingTimeout)

	case leaveSession:
		g.finish(Event{Type: EventEnded})
		g.cancel()
		_ = g.ch.Close()
		return false

	case getGuestView:
		msg.Reply <- GuestView{
			PlayerIndex: g.playerIndex,
			Version:     g.lastVersion,
			State:       g.state.Clone(),
			Votes:       g.votes,
			Wins:        g.wins,
			Pending:     g.pending,
		}
	}
	return true
}

func (g *Guest) handleHostMessage(env wire.Envelope) bool {
	switch env.Type {
	case wire.MsgWelcome:
		g.playerIndex = env.PlayerIndex

	case wire.MsgStateSync:
		// Always ack, even stale versions: the ack exists to clear the
		// host's retry timer, and correctness never depends on it arriving.
		if err := g.ch.Send(wire.Ack(env.Version)); err != nil {
			g.log.Error("ack send failed", zap.Error(err))
		}
		if env.State == nil || !wire.IsNewer(env.Version, g.lastVersion) {
			g.log.Debug("discarding stale snapshot", zap.Uint64("version", env.Version))
			return true
		}
		g.lastVersion = env.Version
		g.state = env.State.Clone()
		if env.RematchVotes != nil {
			g.votes = *env.RematchVotes
		}
		if env.SessionWins != nil {
			g.wins = *env.SessionWins
		}
		g.pending = false
		stopTimer(g.pendingTimer)
		emit(g.events, Event{Type: EventState, Snapshot: &Snapshot{
			Version: g.lastVersion,
			State:   g.state.Clone(),
			Votes:   g.votes,
			Wins:    g.wins,
		}})

	case wire.MsgActionRejected:
		g.pending = false
		stopTimer(g.pendingTimer)
		emit(g.events, Event{Type: EventRejected, Reason: env.Reason, Message: env.Message})

	case wire.MsgPing:
		if err := g.ch.Send(wire.Envelope{Type: wire.MsgPong}); err != nil {
			g.log.Debug("pong send failed", zap.Error(err))
		}

	case wire.MsgGameEnded:
		g.finish(Event{Type: EventEnded, End: env.EndReason})
		g.cancel()
		_ = g.ch.Close()
		return false

	default:
		g.log.Warn("unexpected message from host", zap.String("type", string(env.Type)))
	}
	return true
}

// finish records the terminal event so it is still readable through Final
// when the events buffer has overflowed, then offers it on Events as usual.
func (g *Guest) finish(ev Event) {
	g.final = ev
	emit(g.events, ev)
}

func (g *Guest) resetLiveness() {
	resetTimer(g.liveness, g.timings.LivenessTimeout)
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	stopTimer(t)
	t.Reset(d)
}
