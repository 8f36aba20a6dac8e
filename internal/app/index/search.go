package index

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gather/internal/domain"
)

// Search is the server-side half of a resumable CustomAuto search. Clients
// only ever hold ID; the predicate used for resumption is the copy kept here.
type Search struct {
	ID         string
	Definition string
	User       domain.UserID
	Predicate  domain.Predicate
	Attributes domain.Attributes
	Cursor     uint64
	Expires    time.Time
}

// Searches is an arena of in-flight searches keyed by opaque id.
type Searches struct {
	mu     sync.Mutex
	states map[string]*Search
	ttl    time.Duration
	now    func() time.Time
}

func NewSearches(ttl time.Duration) *Searches {
	return &Searches{
		states: make(map[string]*Search),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Begin registers a new search and returns its copy.
func (s *Searches) Begin(definition string, user domain.UserID, pred domain.Predicate, attrs domain.Attributes) Search {
	st := &Search{
		ID:         uuid.NewString(),
		Definition: definition,
		User:       user,
		Predicate:  pred.Clone(),
		Attributes: append(domain.Attributes(nil), attrs...),
		Expires:    s.now().Add(s.ttl),
	}
	s.mu.Lock()
	s.states[st.ID] = st
	s.mu.Unlock()
	return *st
}

// Resume looks up a search owned by user under definition.
func (s *Searches) Resume(id, definition string, user domain.UserID) (Search, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return Search{}, fmt.Errorf("%w: %s", domain.ErrContextNotFound, id)
	}
	if !s.now().Before(st.Expires) {
		delete(s.states, id)
		return Search{}, fmt.Errorf("%w: %s expired", domain.ErrContextNotFound, id)
	}
	if st.Definition != definition || st.User != user {
		return Search{}, fmt.Errorf("%w: %s", domain.ErrContextNotFound, id)
	}
	return *st, nil
}

// Advance records scan progress.
func (s *Searches) Advance(id string, cursor uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[id]; ok && cursor > st.Cursor {
		st.Cursor = cursor
	}
}

func (s *Searches) Finish(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, id)
}

func (s *Searches) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// Sweep drops expired searches and returns how many went.
func (s *Searches) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, st := range s.states {
		if !now.Before(st.Expires) {
			delete(s.states, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (s *Searches) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				log.Debug().Str("module", "app.index").Int("expired", n).Msg("search contexts swept")
			}
		}
	}
}
