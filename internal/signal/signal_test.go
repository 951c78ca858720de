package signal

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mweiss/tagduel/internal/channel"
	"github.com/mweiss/tagduel/internal/rendezvous"
	"github.com/mweiss/tagduel/internal/wire"
)

func fastOptions() Options {
	return Options{
		GatherTimeout: time.Second,
		PollInterval:  20 * time.Millisecond,
		PollTimeout:   2 * time.Second,
		DialTimeout:   time.Second,
	}
}

func newRelayClient(t *testing.T) *rendezvous.Client {
	t.Helper()
	store := rendezvous.NewStore(600*time.Second, 100, time.Minute)
	srv := httptest.NewServer(rendezvous.NewServer(store, nil, nil, nil).Routes())
	t.Cleanup(srv.Close)
	return rendezvous.NewClient(srv.URL)
}

func TestEstablish_EndToEnd(t *testing.T) {
	client := newRelayClient(t)
	ctx := context.Background()

	host := NewHost(client, fastOptions(), nil)
	t.Cleanup(host.Close)

	code, err := host.CreateRoom(ctx)
	require.NoError(t, err)
	require.Len(t, code, rendezvous.CodeLength)

	type hostResult struct {
		ch  channel.Channel
		err error
	}
	hostDone := make(chan hostResult, 1)
	go func() {
		ch, err := host.WaitForGuest(ctx, nil)
		hostDone <- hostResult{ch, err}
	}()

	guestCh, err := Join(ctx, client, code, fastOptions(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = guestCh.Close() })

	res := <-hostDone
	require.NoError(t, res.err)
	hostCh := res.ch
	t.Cleanup(func() { _ = hostCh.Close() })

	// Both directions carry protocol frames.
	require.NoError(t, hostCh.Send(wire.Welcome(1)))
	select {
	case env := <-guestCh.Inbound():
		assert.Equal(t, wire.MsgWelcome, env.Type)
		assert.Equal(t, 1, env.PlayerIndex)
	case <-time.After(2 * time.Second):
		t.Fatal("welcome never crossed the channel")
	}

	require.NoError(t, guestCh.Send(wire.Ack(1)))
	select {
	case env := <-hostCh.Inbound():
		assert.Equal(t, wire.MsgAck, env.Type)
		assert.EqualValues(t, 1, env.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("ack never crossed the channel")
	}
}

func TestJoin_UnknownRoom(t *testing.T) {
	client := newRelayClient(t)

	_, err := Join(context.Background(), client, "AAAAAA", fastOptions(), nil)
	assert.ErrorIs(t, err, rendezvous.ErrNotFound)
}

func TestJoin_ClaimedRoom(t *testing.T) {
	client := newRelayClient(t)
	ctx := context.Background()

	host := NewHost(client, fastOptions(), nil)
	t.Cleanup(host.Close)
	code, err := host.CreateRoom(ctx)
	require.NoError(t, err)

	_, err = client.SubmitAnswer(ctx, code, encodeAnswer(answerBlob{Token: "x", GuestToken: "y"}))
	require.NoError(t, err)

	_, err = Join(ctx, client, code, fastOptions(), nil)
	assert.ErrorIs(t, err, rendezvous.ErrClaimed)
}

func TestWaitForGuest_Timeout(t *testing.T) {
	client := newRelayClient(t)
	ctx := context.Background()

	opts := fastOptions()
	opts.PollTimeout = 100 * time.Millisecond

	host := NewHost(client, opts, nil)
	t.Cleanup(host.Close)
	_, err := host.CreateRoom(ctx)
	require.NoError(t, err)

	fired := false
	_, err = host.WaitForGuest(ctx, func() { fired = true })
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.True(t, fired, "onTimeout must fire")
}

func TestWaitForGuest_MalformedAnswer(t *testing.T) {
	client := newRelayClient(t)
	ctx := context.Background()

	host := NewHost(client, fastOptions(), nil)
	t.Cleanup(host.Close)
	code, err := host.CreateRoom(ctx)
	require.NoError(t, err)

	_, err = client.SubmitAnswer(ctx, code, "{{{not a blob")
	require.NoError(t, err)

	_, err = host.WaitForGuest(ctx, nil)
	assert.ErrorIs(t, err, ErrMalformedBlob)
}

func TestDecodeOffer_Malformed(t *testing.T) {
	_, err := decodeOffer("garbage")
	assert.ErrorIs(t, err, ErrMalformedBlob)

	_, err = decodeOffer(`{"token":"","candidates":[]}`)
	assert.ErrorIs(t, err, ErrMalformedBlob)

	o, err := decodeOffer(`{"token":"t","candidates":["ws://127.0.0.1:1/channel"]}`)
	require.NoError(t, err)
	assert.Equal(t, "t", o.Token)
}
