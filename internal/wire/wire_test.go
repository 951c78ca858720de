package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mweiss/tagduel/internal/game"
)

func TestIsNewer(t *testing.T) {
	tests := []struct {
		name           string
		received, last uint64
		want           bool
	}{
		{"plainly newer", 5, 4, true},
		{"equal", 7, 7, false},
		{"plainly older", 4, 5, false},
		{"first snapshot", 1, 0, true},
		{"wraparound: tiny received vs huge last", 1, MaxVersion, true},
		{"gap exactly half the space is not wraparound", 10, MaxVersion/2 + 10, false},
		{"just inside the band", 3, MaxVersion/2 + 4, true},
		{"large but not wrapped", MaxVersion / 2, MaxVersion/2 - 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNewer(tt.received, tt.last))
		})
	}
}

func TestIsNewer_MatchesPlainComparisonOutsideBand(t *testing.T) {
	// Exhaustive over a small window at both ends of the version space.
	versions := []uint64{0, 1, 2, 100, MaxVersion / 2, MaxVersion/2 + 1, MaxVersion - 1, MaxVersion}
	for _, a := range versions {
		for _, b := range versions {
			got := IsNewer(a, b)
			inBand := b > a && b-a > MaxVersion/2
			want := a > b
			if inBand {
				want = true
			}
			assert.Equal(t, want, got, "IsNewer(%d, %d)", a, b)
		}
	}
}

func TestNextVersion_WrapsToOne(t *testing.T) {
	assert.EqualValues(t, 1, NextVersion(0))
	assert.EqualValues(t, 43, NextVersion(42))
	assert.EqualValues(t, 1, NextVersion(MaxVersion))
}

func TestDecode_RoundTrip(t *testing.T) {
	v := "house"
	env := SubmitTurn("specify_value", "building", &v)
	data, err := json.Marshal(env)
	require.NoError(t, err)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, MsgSubmitTurn, got.Type)
	assert.Equal(t, "building", got.Key)
	require.NotNil(t, got.Value)
	assert.Equal(t, "house", *got.Value)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`{"type":"SelfDestruct"}`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Decode([]byte(`{}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestStateSyncCarriesDeepState(t *testing.T) {
	s := game.NewState("a", "Berlin")
	s = game.StartRound(s, 1)
	env := StateSync(9, s, [2]bool{true, false}, [2]int{2, 1})

	data, err := json.Marshal(env)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)

	require.NotNil(t, got.State)
	assert.Equal(t, game.PhasePlaying, got.State.Phase)
	assert.EqualValues(t, 9, got.Version)
	require.NotNil(t, got.RematchVotes)
	assert.Equal(t, [2]bool{true, false}, *got.RematchVotes)
	require.NotNil(t, got.SessionWins)
	assert.Equal(t, [2]int{2, 1}, *got.SessionWins)
}

func TestIntentReason(t *testing.T) {
	assert.Equal(t, ReasonNotYourTurn, IntentReason(game.ErrNotYourTurn))
	assert.Equal(t, ReasonGameNotPlaying, IntentReason(game.ErrGameNotPlaying))
	assert.Equal(t, ReasonDuplicateTag, IntentReason(game.ErrDuplicateTag))
	assert.Equal(t, ReasonInvalidTag, IntentReason(game.ErrInvalidTag))
	assert.Equal(t, ReasonInvalidAction, IntentReason(game.ErrInvalidAction))
}
