package rendezvous

import (
	"crypto/rand"
	"errors"
	"math/big"
	"sync"
	"time"
)

var ErrNotFound = errors.New("room not found")
var ErrClaimed = errors.New("room already claimed")
var ErrRateLimited = errors.New("room creation rate limit exceeded")
var errCodeSpace = errors.New("could not find a free room code")

// CodeAlphabet excludes the visually ambiguous characters I, O, 0 and 1 so a
// code can be read out loud or copied from a screen without guesswork.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const CodeLength = 6

const codeRetries = 10

// Ticket is one stored handshake pair. The answer may be written at most
// once; writing it does not extend the ticket's lifetime.
type Ticket struct {
	Code      string
	Offer     string
	Answer    string
	HasAnswer bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store keeps live tickets and per-origin creation counters in memory.
// Nothing here survives a restart.
type Store struct {
	mu      sync.Mutex
	tickets map[string]*Ticket
	created map[string][]time.Time

	ttl        time.Duration
	rateLimit  int
	rateWindow time.Duration
	now        func() time.Time
}

func NewStore(ttl time.Duration, rateLimit int, rateWindow time.Duration) *Store {
	return &Store{
		tickets:    make(map[string]*Ticket),
		created:    make(map[string][]time.Time),
		ttl:        ttl,
		rateLimit:  rateLimit,
		rateWindow: rateWindow,
		now:        time.Now,
	}
}

// Create stores an offer under a fresh code, retrying code generation on
// collision a bounded number of times before giving up.
func (s *Store) Create(origin, offer string) (*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.admitLocked(origin, now) {
		return nil, ErrRateLimited
	}

	for i := 0; i < codeRetries; i++ {
		code, err := generateCode()
		if err != nil {
			return nil, err
		}
		if t, ok := s.tickets[code]; ok && t.ExpiresAt.After(now) {
			continue
		}
		t := &Ticket{
			Code:      code,
			Offer:     offer,
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		}
		s.tickets[code] = t
		snap := *t
		return &snap, nil
	}
	return nil, errCodeSpace
}

// Get returns a snapshot of the ticket, or ErrNotFound once it has expired.
func (s *Store) Get(code string) (*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[code]
	if !ok || !t.ExpiresAt.After(s.now()) {
		return nil, ErrNotFound
	}
	snap := *t
	return &snap, nil
}

// Answer stores the guest's answer. First writer wins: a second write fails
// with ErrClaimed. The remaining TTL is untouched.
func (s *Store) Answer(code, answer string) (*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[code]
	if !ok || !t.ExpiresAt.After(s.now()) {
		return nil, ErrNotFound
	}
	if t.HasAnswer {
		return nil, ErrClaimed
	}
	t.Answer = answer
	t.HasAnswer = true
	snap := *t
	return &snap, nil
}

// Sweep drops expired tickets and stale rate-limit entries, returning how
// many tickets were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for code, t := range s.tickets {
		if !t.ExpiresAt.After(now) {
			delete(s.tickets, code)
			removed++
		}
	}
	cutoff := now.Add(-s.rateWindow)
	for origin, times := range s.created {
		kept := times[:0]
		for _, at := range times {
			if at.After(cutoff) {
				kept = append(kept, at)
			}
		}
		if len(kept) == 0 {
			delete(s.created, origin)
		} else {
			s.created[origin] = kept
		}
	}
	return removed
}

func (s *Store) admitLocked(origin string, now time.Time) bool {
	cutoff := now.Add(-s.rateWindow)
	kept := s.created[origin][:0]
	for _, at := range s.created[origin] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	if len(kept) >= s.rateLimit {
		s.created[origin] = kept
		return false
	}
	s.created[origin] = append(kept, now)
	return true
}

func generateCode() (string, error) {
	code := make([]byte, CodeLength)
	for i := 0; i < CodeLength; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(CodeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = CodeAlphabet[num.Int64()]
	}
	return string(code), nil
}
