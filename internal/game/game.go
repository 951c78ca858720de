package game

import "errors"

var ErrNotYourTurn = errors.New("not your turn")
var ErrGameNotPlaying = errors.New("game is not in the playing phase")
var ErrDuplicateTag = errors.New("tag key already in the pool")
var ErrInvalidTag = errors.New("invalid tag reference")
var ErrInvalidAction = errors.New("unsupported action")

type Phase string

const (
	PhaseSetup     Phase = "setup"
	PhasePlaying   Phase = "playing"
	PhaseChallenge Phase = "challenge"
	PhaseFinished  Phase = "finished"
)

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

// NoChallenger marks the Challenger field while no challenge is in flight.
const NoChallenger = -1

type Player struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// Tag is one entry of the pool: a key with an optional value. A nil Value
// means the key was added bare and may still be specified later.
type Tag struct {
	Key   string  `json:"key"`
	Value *string `json:"value"`
}

// ChallengeResult records the oracle's verdict for a resolved challenge.
type ChallengeResult struct {
	Count  int64 `json:"count"`
	Winner int   `json:"winner"`
	Loser  int   `json:"loser"`
	Exists bool  `json:"exists"`
}

type State struct {
	Players    [2]Player        `json:"players"`
	Current    int              `json:"current_player"`
	Tags       []Tag            `json:"tags"`
	Region     string           `json:"region"`
	Phase      Phase            `json:"phase"`
	Challenger int              `json:"challenger"`
	Result     *ChallengeResult `json:"result,omitempty"`
	Round      int              `json:"round"`
}

type IntentKind string

const (
	IntentAddTag       IntentKind = "add_tag"
	IntentSpecifyValue IntentKind = "specify_value"
	IntentChallenge    IntentKind = "challenge"
)

// Intent is a requested state change from either player. Guest intents arrive
// over the wire; host intents come from the local intent producer. Both run
// through the same Apply path.
type Intent struct {
	Kind   IntentKind
	Player int
	Key    string
	Value  *string
}

// Apply validates an intent against s and returns the successor state. On any
// error the returned state is s itself, untouched. Successful turn actions
// advance Current modulo the player count; a challenge freezes the turn and
// moves the game into the challenge phase.
func Apply(s State, in Intent) (State, error) {
	if in.Player != s.Current {
		return s, ErrNotYourTurn
	}
	if s.Phase != PhasePlaying {
		return s, ErrGameNotPlaying
	}

	switch in.Kind {
	case IntentAddTag:
		if in.Key == "" {
			return s, ErrInvalidTag
		}
		if findTag(s.Tags, in.Key) != nil {
			return s, ErrDuplicateTag
		}
		next := s.Clone()
		next.Tags = append(next.Tags, Tag{Key: in.Key, Value: cloneValue(in.Value)})
		next.Current = (next.Current + 1) % len(next.Players)
		return next, nil

	case IntentSpecifyValue:
		existing := findTag(s.Tags, in.Key)
		if existing == nil || existing.Value != nil || in.Value == nil {
			return s, ErrInvalidTag
		}
		next := s.Clone()
		findTag(next.Tags, in.Key).Value = cloneValue(in.Value)
		next.Current = (next.Current + 1) % len(next.Players)
		return next, nil

	case IntentChallenge:
		next := s.Clone()
		next.Phase = PhaseChallenge
		next.Challenger = in.Player
		return next, nil

	default:
		return s, ErrInvalidAction
	}
}

// ResolveChallenge applies the oracle's match count to a state in the
// challenge phase. A count of zero means the pool names nothing real and the
// challenger wins; any positive (or unknown-huge) count means the combination
// exists and the challenger loses.
func ResolveChallenge(s State, count int64) State {
	exists := count > 0
	winner := s.Challenger
	if exists {
		winner = otherPlayer(s.Challenger, len(s.Players))
	}
	next := s.Clone()
	next.Result = &ChallengeResult{
		Count:  count,
		Winner: winner,
		Loser:  otherPlayer(winner, len(s.Players)),
		Exists: exists,
	}
	next.Phase = PhaseFinished
	return next
}

// StartRound resets the pool and challenge fields for round n. The starting
// player rotates with the round number rather than always being the host.
func StartRound(s State, round int) State {
	next := s.Clone()
	next.Round = round
	next.Current = (round - 1) % len(next.Players)
	next.Tags = nil
	next.Challenger = NoChallenger
	next.Result = nil
	next.Phase = PhasePlaying
	return next
}

func findTag(tags []Tag, key string) *Tag {
	for i := range tags {
		if tags[i].Key == key {
			return &tags[i]
		}
	}
	return nil
}

func otherPlayer(idx, count int) int {
	return (idx + 1) % count
}
