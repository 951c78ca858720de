package signal

import (
	"context"
	"errors"
	"fmt"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mweiss/tagduel/internal/channel"
	"github.com/mweiss/tagduel/internal/rendezvous"
)

var ErrNoRoute = errors.New("could not reach the host on any candidate")

// Join is the answering side: fetch the offer, claim the room, dial the host.
// Every failure is final from the protocol's point of view; retrying a
// handshake is a user decision, never automatic.
func Join(ctx context.Context, client *rendezvous.Client, code string, opts Options, log *zap.Logger) (channel.Channel, error) {
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.withDefaults()

	status, err := client.RoomStatus(ctx, code)
	if err != nil {
		return nil, err
	}
	if status.HasAnswer {
		return nil, rendezvous.ErrClaimed
	}
	offer, err := decodeOffer(status.Offer)
	if err != nil {
		return nil, err
	}

	answer := answerBlob{Token: offer.Token, GuestToken: uuid.NewString()}
	if _, err := client.SubmitAnswer(ctx, code, encodeAnswer(answer)); err != nil {
		return nil, err
	}

	var lastErr error
	for _, candidate := range offer.Candidates {
		dialCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
		conn, _, err := websocket.Dial(dialCtx, candidate+"?token="+offer.Token, nil)
		cancel()
		if err != nil {
			log.Debug("candidate dial failed", zap.String("candidate", candidate), zap.Error(err))
			lastErr = err
			continue
		}
		log.Info("channel established", zap.String("candidate", candidate))
		return channel.NewWS(conn, log), nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRoute, lastErr)
	}
	return nil, ErrNoRoute
}
