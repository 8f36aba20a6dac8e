package match

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gather/internal/app/lifecycle"
	"github.com/dkeye/Gather/internal/core"
	"github.com/dkeye/Gather/internal/domain"
)

// Anybody joins the oldest open gathering with room, or creates one.
type Anybody struct {
	ctl      *lifecycle.Controller
	store    core.GatheringStore
	creating *core.KeyLock
	attempts int
}

func NewAnybody(ctl *lifecycle.Controller, store core.GatheringStore, attempts int) *Anybody {
	if attempts < 1 {
		attempts = 1
	}
	return &Anybody{ctl: ctl, store: store, creating: core.NewKeyLock(), attempts: attempts}
}

func (a *Anybody) Type() domain.StrategyType { return domain.StrategyAnybody }

func (a *Anybody) Match(ctx context.Context, req Request) (Result, error) {
	g, created, err := a.MatchAnybody(ctx, req.Definition, req.User)
	if err != nil {
		return Result{}, err
	}
	return Result{Gathering: g, Created: created, Done: true}, nil
}

// MatchAnybody returns the gathering user ended up in and whether the call
// created it. Races lost at the join step are retried, never surfaced.
func (a *Anybody) MatchAnybody(ctx context.Context, def *domain.Definition, user domain.UserID) (*domain.Gathering, bool, error) {
	if g, ok := current(ctx, a.store, def, user); ok {
		return g, false, nil
	}

	for attempt := 0; attempt < a.attempts; attempt++ {
		g, tried, err := a.joinOldest(ctx, def, user)
		if err != nil || g != nil {
			return g, false, err
		}
		if tried == 0 {
			break
		}
		log.Debug().
			Str("module", "app.match").
			Str("definition", def.Name).
			Int("attempt", attempt+1).
			Msg("anybody candidates all lost, retrying")
	}

	// Creation is serialized per definition and re-checks candidates, so
	// simultaneous first arrivals share one gathering.
	release := a.creating.Lock(def.Name)
	defer release()

	g, _, err := a.joinOldest(ctx, def, user)
	if err != nil || g != nil {
		return g, false, err
	}
	g, err = a.ctl.Create(ctx, lifecycle.CreateParams{Definition: def, Creator: user})
	if err != nil {
		return nil, false, err
	}
	return g, true, nil
}

// joinOldest tries open gatherings oldest first. tried counts candidates
// whose join was attempted and lost.
func (a *Anybody) joinOldest(ctx context.Context, def *domain.Definition, user domain.UserID) (*domain.Gathering, int, error) {
	open, err := a.store.ListGatherings(ctx, def.Name, domain.StatusOpen, 0, 0)
	if err != nil {
		return nil, 0, err
	}
	tried := 0
	for _, cand := range open {
		if !cand.Joinable() {
			continue
		}
		g, err := a.ctl.Join(ctx, cand.ID, user)
		if err == nil {
			return g, tried, nil
		}
		if !lifecycle.IsRaceLost(err) {
			return nil, tried, err
		}
		tried++
	}
	return nil, tried, nil
}

// current returns the open gathering user already belongs to, if any.
func current(ctx context.Context, store core.GatheringStore, def *domain.Definition, user domain.UserID) (*domain.Gathering, bool) {
	id, ok := store.MemberOf(ctx, def.Name, user)
	if !ok {
		return nil, false
	}
	g, err := store.GetGathering(ctx, id)
	if err != nil || g.Status != domain.StatusOpen {
		return nil, false
	}
	return g, true
}
