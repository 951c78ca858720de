// Package session holds the two halves of the synchronization protocol: the
// Host, which owns the authoritative game state, and the Guest, which mirrors
// it. Each runs a single goroutine that owns all of its state; public methods
// post messages into that loop, so there is no locking anywhere.
package session

import (
	"context"
	"time"

	"github.com/mweiss/tagduel/internal/game"
	"github.com/mweiss/tagduel/internal/wire"
)

// CountUnknown is the resolver's sentinel for "could not count, assume the
// combination exists" (typically the oracle's own timeout).
const CountUnknown int64 = 1<<53 - 1

// Resolver answers whether the accumulated tag pool matches anything real.
// Implementations must return an error for transport failures rather than a
// zero count; a zero count is a substantive "nothing matches" verdict.
type Resolver interface {
	Count(ctx context.Context, tags []game.Tag, region string) (int64, error)
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(ctx context.Context, tags []game.Tag, region string) (int64, error)

func (f ResolverFunc) Count(ctx context.Context, tags []game.Tag, region string) (int64, error) {
	return f(ctx, tags, region)
}

// IntentProducer supplies the host's own moves, whether from a human UI or a
// bot. The host validates produced intents through the same path as
// guest-submitted ones.
type IntentProducer interface {
	NextIntent(ctx context.Context, s game.State, player int) (game.Intent, error)
}

// Timings collects every protocol timer. Tests compress these; production
// uses DefaultTimings.
type Timings struct {
	Heartbeat       time.Duration // host ping cadence
	AckTimeout      time.Duration // per-broadcast ack deadline
	AckRetries      int           // resends before declaring the guest gone
	LivenessTimeout time.Duration // guest-side inbound silence bound
	PendingTimeout  time.Duration // guest-side stuck-intent bound
}

func DefaultTimings() Timings {
	return Timings{
		Heartbeat:  10 * time.Second,
		AckTimeout: 3 * time.Second,
		AckRetries: 3,
		// Deliberately longer than the host's heartbeat interval so one
		// dropped ping never trips it.
		LivenessTimeout: 30 * time.Second,
		// Covers the host's full retry budget plus one heartbeat of slack.
		PendingTimeout: 22 * time.Second,
	}
}

// Snapshot is one broadcast's worth of shared state as either side sees it.
type Snapshot struct {
	Version uint64
	State   game.State
	Votes   [2]bool
	Wins    [2]int
}

type EventType string

const (
	// EventState fires whenever the local view of shared state changes.
	EventState EventType = "state"
	// EventRejected surfaces an ActionRejected (guest side only).
	EventRejected EventType = "rejected"
	// EventEnded is a voluntary teardown; never styled as an error.
	EventEnded EventType = "ended"
	// EventConnectionLost is a liveness failure: ack-retry exhaustion on the
	// host, inbound silence on the guest.
	EventConnectionLost EventType = "connection_lost"
	// EventResolveFailed reports an oracle failure after retry; the session
	// stays in the challenge phase awaiting RetryChallenge.
	EventResolveFailed EventType = "resolve_failed"
	// EventPendingExpired clears a stuck pending-intent indicator (guest).
	EventPendingExpired EventType = "pending_expired"
)

type Event struct {
	Type     EventType
	Snapshot *Snapshot
	Reason   wire.RejectReason
	Message  string
	End      wire.EndReason
	Err      error
}

// emit delivers an event without ever blocking the session loop. A consumer
// that has fallen this far behind forfeits intermediate events, same as the
// slow-client drop in any broadcast hub. Terminal events are additionally
// recorded on the session and stay readable through Final.
func emit(events chan Event, ev Event) {
	select {
	case events <- ev:
	default:
	}
}

const eventBuffer = 32
