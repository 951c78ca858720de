package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func playingState() State {
	s := NewState("host", "Berlin")
	return StartRound(s, 1)
}

func TestApply_TurnAndPhaseGate(t *testing.T) {
	tests := []struct {
		name    string
		current int
		phase   Phase
		player  int
		wantErr error
	}{
		{"wrong player", 0, PhasePlaying, 1, ErrNotYourTurn},
		{"setup phase", 0, PhaseSetup, 0, ErrGameNotPlaying},
		{"challenge phase", 0, PhaseChallenge, 0, ErrGameNotPlaying},
		{"finished phase", 0, PhaseFinished, 0, ErrGameNotPlaying},
		{"right player and phase", 0, PhasePlaying, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := playingState()
			s.Current = tt.current
			s.Phase = tt.phase
			before := s.Clone()

			next, err := Apply(s, Intent{Kind: IntentAddTag, Player: tt.player, Key: "building"})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, next, "rejected intent must not change state")
				return
			}
			require.NoError(t, err)
			assert.Len(t, next.Tags, 1)
			assert.Equal(t, before.Tags, s.Tags, "input state must stay untouched")
		})
	}
}

func TestApply_AddTag(t *testing.T) {
	s := playingState()

	next, err := Apply(s, Intent{Kind: IntentAddTag, Player: 0, Key: "building"})
	require.NoError(t, err)
	require.Len(t, next.Tags, 1)
	assert.Equal(t, "building", next.Tags[0].Key)
	assert.Nil(t, next.Tags[0].Value)
	assert.Equal(t, 1, next.Current, "turn must advance")

	// Duplicate key, now on player 1's turn.
	dup, err := Apply(next, Intent{Kind: IntentAddTag, Player: 1, Key: "building"})
	require.ErrorIs(t, err, ErrDuplicateTag)
	assert.Equal(t, next, dup)

	// A valued add is fine.
	valued, err := Apply(next, Intent{Kind: IntentAddTag, Player: 1, Key: "amenity", Value: strptr("cafe")})
	require.NoError(t, err)
	require.Len(t, valued.Tags, 2)
	require.NotNil(t, valued.Tags[1].Value)
	assert.Equal(t, "cafe", *valued.Tags[1].Value)
	assert.Equal(t, 0, valued.Current)
}

func TestApply_SpecifyValue(t *testing.T) {
	s := playingState()
	s, err := Apply(s, Intent{Kind: IntentAddTag, Player: 0, Key: "building"})
	require.NoError(t, err)

	next, err := Apply(s, Intent{Kind: IntentSpecifyValue, Player: 1, Key: "building", Value: strptr("house")})
	require.NoError(t, err)
	require.NotNil(t, next.Tags[0].Value)
	assert.Equal(t, "house", *next.Tags[0].Value)
	assert.Equal(t, 0, next.Current)

	// Absent key.
	_, err = Apply(next, Intent{Kind: IntentSpecifyValue, Player: 0, Key: "highway", Value: strptr("primary")})
	assert.ErrorIs(t, err, ErrInvalidTag)

	// Already valued.
	_, err = Apply(next, Intent{Kind: IntentSpecifyValue, Player: 0, Key: "building", Value: strptr("church")})
	assert.ErrorIs(t, err, ErrInvalidTag)
}

func TestApply_UnknownKind(t *testing.T) {
	s := playingState()
	_, err := Apply(s, Intent{Kind: "delete_tag", Player: 0, Key: "building"})
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestApply_Challenge(t *testing.T) {
	s := playingState()
	s, err := Apply(s, Intent{Kind: IntentAddTag, Player: 0, Key: "building"})
	require.NoError(t, err)

	next, err := Apply(s, Intent{Kind: IntentChallenge, Player: 1})
	require.NoError(t, err)
	assert.Equal(t, PhaseChallenge, next.Phase)
	assert.Equal(t, 1, next.Challenger)
	assert.Equal(t, 1, next.Current, "a challenge freezes the turn")
}

func TestResolveChallenge(t *testing.T) {
	s := playingState()
	s, _ = Apply(s, Intent{Kind: IntentAddTag, Player: 0, Key: "building"})
	s, _ = Apply(s, Intent{Kind: IntentChallenge, Player: 1})

	t.Run("nothing matches, challenger wins", func(t *testing.T) {
		done := ResolveChallenge(s, 0)
		require.NotNil(t, done.Result)
		assert.Equal(t, PhaseFinished, done.Phase)
		assert.False(t, done.Result.Exists)
		assert.Equal(t, 1, done.Result.Winner)
		assert.Equal(t, 0, done.Result.Loser)
	})

	t.Run("matches exist, challenger loses", func(t *testing.T) {
		done := ResolveChallenge(s, 42)
		require.NotNil(t, done.Result)
		assert.True(t, done.Result.Exists)
		assert.Equal(t, 0, done.Result.Winner)
		assert.EqualValues(t, 42, done.Result.Count)
	})
}

func TestStartRound_RotatesStarter(t *testing.T) {
	s := NewState("host", "Berlin")
	for round, wantStarter := range map[int]int{1: 0, 2: 1, 3: 0, 4: 1} {
		next := StartRound(s, round)
		assert.Equal(t, wantStarter, next.Current, "round %d", round)
		assert.Equal(t, PhasePlaying, next.Phase)
		assert.Empty(t, next.Tags)
		assert.Equal(t, NoChallenger, next.Challenger)
		assert.Nil(t, next.Result)
	}
}

func TestClone_DoesNotAlias(t *testing.T) {
	s := playingState()
	s, _ = Apply(s, Intent{Kind: IntentAddTag, Player: 0, Key: "building", Value: strptr("house")})

	c := s.Clone()
	*c.Tags[0].Value = "church"
	c.Tags[0].Key = "landuse"

	assert.Equal(t, "building", s.Tags[0].Key)
	assert.Equal(t, "house", *s.Tags[0].Value)
}
