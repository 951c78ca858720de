package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mweiss/tagduel/internal/game"
)

// MaxVersion is the largest state version carried on the wire. JSON numbers
// are exact only up to 2^53-1, so versions wrap back to 1 past this bound.
const MaxVersion uint64 = 1<<53 - 1

var ErrMalformed = errors.New("malformed message")

type MsgType string

// Host -> guest.
const (
	MsgWelcome        MsgType = "Welcome"
	MsgStateSync      MsgType = "StateSync"
	MsgActionRejected MsgType = "ActionRejected"
	MsgPing           MsgType = "Ping"
	MsgGameEnded      MsgType = "GameEnded"
)

// Guest -> host.
const (
	MsgSetName        MsgType = "SetName"
	MsgSubmitTurn     MsgType = "SubmitTurn"
	MsgChallenge      MsgType = "Challenge"
	MsgRequestRematch MsgType = "RequestRematch"
	MsgAck            MsgType = "Ack"
	MsgPong           MsgType = "Pong"
)

type RejectReason string

const (
	ReasonNotYourTurn    RejectReason = "NotYourTurn"
	ReasonInvalidTag     RejectReason = "InvalidTag"
	ReasonDuplicateTag   RejectReason = "DuplicateTag"
	ReasonGameNotPlaying RejectReason = "GameNotPlaying"
	ReasonInvalidAction  RejectReason = "InvalidAction"
)

type EndReason string

const (
	EndHostLeft         EndReason = "HostLeft"
	EndHostEndedSession EndReason = "HostEndedSession"
	EndConnectionLost   EndReason = "ConnectionLost"
)

// Envelope is the single tagged record both peers exchange. Type selects
// which of the optional fields are meaningful.
type Envelope struct {
	Type MsgType `json:"type"`

	// Welcome
	PlayerIndex int `json:"player_index,omitempty"`

	// StateSync / Ack
	Version      uint64      `json:"version,omitempty"`
	State        *game.State `json:"state,omitempty"`
	RematchVotes *[2]bool    `json:"rematch_votes,omitempty"`
	SessionWins  *[2]int     `json:"session_wins,omitempty"`

	// ActionRejected
	Reason  RejectReason `json:"reason,omitempty"`
	Message string       `json:"message,omitempty"`

	// GameEnded
	EndReason EndReason `json:"end_reason,omitempty"`

	// SetName
	Name string `json:"name,omitempty"`

	// SubmitTurn
	Action string  `json:"action,omitempty"`
	Key    string  `json:"key,omitempty"`
	Value  *string `json:"value,omitempty"`
}

func Welcome(playerIndex int) Envelope {
	return Envelope{Type: MsgWelcome, PlayerIndex: playerIndex}
}

func StateSync(version uint64, s game.State, votes [2]bool, wins [2]int) Envelope {
	return Envelope{
		Type:         MsgStateSync,
		Version:      version,
		State:        &s,
		RematchVotes: &votes,
		SessionWins:  &wins,
	}
}

func ActionRejected(reason RejectReason, msg string) Envelope {
	return Envelope{Type: MsgActionRejected, Reason: reason, Message: msg}
}

func GameEnded(reason EndReason) Envelope {
	return Envelope{Type: MsgGameEnded, EndReason: reason}
}

func SetName(name string) Envelope {
	return Envelope{Type: MsgSetName, Name: name}
}

func SubmitTurn(action string, key string, value *string) Envelope {
	return Envelope{Type: MsgSubmitTurn, Action: action, Key: key, Value: value}
}

func Ack(version uint64) Envelope {
	return Envelope{Type: MsgAck, Version: version}
}

// Decode parses one wire message, rejecting unknown types so a peer speaking
// a different vocabulary fails loudly instead of being silently ignored.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch env.Type {
	case MsgWelcome, MsgStateSync, MsgActionRejected, MsgPing, MsgGameEnded,
		MsgSetName, MsgSubmitTurn, MsgChallenge, MsgRequestRematch, MsgAck, MsgPong:
		return env, nil
	default:
		return Envelope{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}
}

// IsNewer reports whether a received version supersedes the last applied one.
// Plain numeric comparison, except that a received version far *below* the
// last one (gap over half the version space) is a wraparound and counts as
// newer.
func IsNewer(received, last uint64) bool {
	if received == last {
		return false
	}
	if received > last {
		return true
	}
	return last-received > MaxVersion/2
}

// NextVersion advances a state version, wrapping to 1 past MaxVersion. Zero
// is reserved for "nothing applied yet" on the guest side.
func NextVersion(v uint64) uint64 {
	if v >= MaxVersion {
		return 1
	}
	return v + 1
}

// IntentReason maps a rules-engine rejection to its wire reason code.
func IntentReason(err error) RejectReason {
	switch {
	case errors.Is(err, game.ErrNotYourTurn):
		return ReasonNotYourTurn
	case errors.Is(err, game.ErrGameNotPlaying):
		return ReasonGameNotPlaying
	case errors.Is(err, game.ErrDuplicateTag):
		return ReasonDuplicateTag
	case errors.Is(err, game.ErrInvalidTag):
		return ReasonInvalidTag
	default:
		return ReasonInvalidAction
	}
}
