package game

// NewState builds the pre-game state for a fresh session. The guest's name
// stays empty until a SetName arrives.
func NewState(hostName, region string) State {
	return State{
		Players: [2]Player{
			{Name: hostName, Role: RoleHost},
			{Role: RoleGuest},
		},
		Region:     region,
		Phase:      PhaseSetup,
		Challenger: NoChallenger,
		Round:      0,
	}
}

// Clone returns a deep copy: the tag slice, tag values and challenge result
// never alias the receiver's, so snapshots stay immutable once broadcast.
func (s State) Clone() State {
	next := s
	if s.Tags != nil {
		next.Tags = make([]Tag, len(s.Tags))
		for i, t := range s.Tags {
			next.Tags[i] = Tag{Key: t.Key, Value: cloneValue(t.Value)}
		}
	}
	if s.Result != nil {
		r := *s.Result
		next.Result = &r
	}
	return next
}

func cloneValue(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// HasTag reports whether key is already in the pool.
func (s State) HasTag(key string) bool {
	return findTag(s.Tags, key) != nil
}
