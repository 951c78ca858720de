package signal

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrMalformedBlob = errors.New("malformed handshake blob")

// offerBlob is what the host publishes under the room code: a session token
// and every endpoint the guest might reach the host's listener on. All
// candidates are gathered before publishing, so establishment needs exactly
// one signaling round trip.
type offerBlob struct {
	Token      string   `json:"token"`
	Candidates []string `json:"candidates"`
}

// answerBlob echoes the offer token (proof the guest saw the offer) and
// introduces the guest's own identity token.
type answerBlob struct {
	Token      string `json:"token"`
	GuestToken string `json:"guest_token"`
}

func encodeOffer(o offerBlob) string {
	data, _ := json.Marshal(o)
	return string(data)
}

func decodeOffer(blob string) (offerBlob, error) {
	var o offerBlob
	if err := json.Unmarshal([]byte(blob), &o); err != nil {
		return offerBlob{}, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	if o.Token == "" || len(o.Candidates) == 0 {
		return offerBlob{}, fmt.Errorf("%w: missing token or candidates", ErrMalformedBlob)
	}
	return o, nil
}

func encodeAnswer(a answerBlob) string {
	data, _ := json.Marshal(a)
	return string(data)
}

func decodeAnswer(blob string) (answerBlob, error) {
	var a answerBlob
	if err := json.Unmarshal([]byte(blob), &a); err != nil {
		return answerBlob{}, fmt.Errorf("%w: %v", ErrMalformedBlob, err)
	}
	if a.Token == "" || a.GuestToken == "" {
		return answerBlob{}, fmt.Errorf("%w: missing tokens", ErrMalformedBlob)
	}
	return a, nil
}
