package rendezvous

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRelay(t *testing.T) (*Client, *Store) {
	t.Helper()
	store := NewStore(600*time.Second, 10, 60*time.Second)
	srv := httptest.NewServer(NewServer(store, nil, nil, nil).Routes())
	t.Cleanup(srv.Close)
	return NewClient(srv.URL), store
}

func TestCreateRoom_CodeShape(t *testing.T) {
	client, _ := newTestRelay(t)

	code, err := client.CreateRoom(context.Background(), "offer-blob")
	require.NoError(t, err)
	assert.Len(t, code, CodeLength)
	for _, r := range code {
		assert.Contains(t, CodeAlphabet, string(r), "code %q uses a character outside the alphabet", code)
	}
	for _, ambiguous := range []string{"I", "O", "0", "1"} {
		assert.NotContains(t, code, ambiguous)
	}
}

func TestRoomStatus_NotFound(t *testing.T) {
	client, _ := newTestRelay(t)

	_, err := client.RoomStatus(context.Background(), "AAAAAA")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = client.SubmitAnswer(context.Background(), "AAAAAA", "answer")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRoom_SingleUse(t *testing.T) {
	client, _ := newTestRelay(t)
	ctx := context.Background()

	code, err := client.CreateRoom(ctx, "offer-blob")
	require.NoError(t, err)

	offer, err := client.SubmitAnswer(ctx, code, "first-answer")
	require.NoError(t, err)
	assert.Equal(t, "offer-blob", offer)

	_, err = client.SubmitAnswer(ctx, code, "second-answer")
	assert.ErrorIs(t, err, ErrClaimed, "first writer wins")

	status, err := client.RoomStatus(ctx, code)
	require.NoError(t, err)
	assert.True(t, status.HasAnswer)
	assert.Equal(t, "first-answer", status.Answer)
}

func TestCreateRoom_RateLimit(t *testing.T) {
	client, _ := newTestRelay(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := client.CreateRoom(ctx, "offer")
		require.NoError(t, err, "creation %d within the window", i+1)
	}
	_, err := client.CreateRoom(ctx, "offer")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestStore_TTLExpiry(t *testing.T) {
	store := NewStore(600*time.Second, 10, 60*time.Second)
	now := time.Now()
	store.now = func() time.Time { return now }

	ticket, err := store.Create("origin", "offer")
	require.NoError(t, err)

	now = now.Add(599 * time.Second)
	_, err = store.Get(ticket.Code)
	assert.NoError(t, err, "still inside the TTL")

	now = now.Add(2 * time.Second)
	_, err = store.Get(ticket.Code)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Answer(ticket.Code, "answer")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 0, store.Sweep())
}

func TestStore_AnswerKeepsRemainingTTL(t *testing.T) {
	store := NewStore(600*time.Second, 10, 60*time.Second)
	now := time.Now()
	store.now = func() time.Time { return now }

	ticket, err := store.Create("origin", "offer")
	require.NoError(t, err)

	now = now.Add(590 * time.Second)
	_, err = store.Answer(ticket.Code, "answer")
	require.NoError(t, err)

	// Joining must not stretch the room's lifetime.
	now = now.Add(11 * time.Second)
	_, err = store.Get(ticket.Code)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RateWindowSlides(t *testing.T) {
	store := NewStore(600*time.Second, 2, 60*time.Second)
	now := time.Now()
	store.now = func() time.Time { return now }

	_, err := store.Create("origin", "offer")
	require.NoError(t, err)
	_, err = store.Create("origin", "offer")
	require.NoError(t, err)
	_, err = store.Create("origin", "offer")
	assert.ErrorIs(t, err, ErrRateLimited)

	// A different origin has its own budget.
	_, err = store.Create("elsewhere", "offer")
	assert.NoError(t, err)

	// The window elapsing readmits the first origin.
	now = now.Add(61 * time.Second)
	_, err = store.Create("origin", "offer")
	assert.NoError(t, err)
}

func TestServer_OriginAllowlist(t *testing.T) {
	store := NewStore(600*time.Second, 10, 60*time.Second)
	routes := NewServer(store, []string{"https://game.example"}, nil, nil).Routes()

	req := httptest.NewRequest("POST", "/rooms", strings.NewReader(`{"offer":"o"}`))
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	assert.Equal(t, 403, rec.Code)

	req = httptest.NewRequest("POST", "/rooms", strings.NewReader(`{"offer":"o"}`))
	req.Header.Set("Origin", "https://game.example")
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, req)
	assert.Equal(t, 201, rec.Code)
}
