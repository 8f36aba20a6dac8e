package match

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gather/internal/app/index"
	"github.com/dkeye/Gather/internal/app/lifecycle"
	"github.com/dkeye/Gather/internal/core"
	"github.com/dkeye/Gather/internal/domain"
)

// ScanLimits bounds the work of one CustomAuto call.
type ScanLimits struct {
	Budget time.Duration
	// Batch caps inspected gatherings per call; zero means no cap.
	Batch int
}

// CustomAuto joins the first open gathering whose attributes satisfy every
// requested range, scanning the attribute index across as many calls as the
// per-call budget requires.
type CustomAuto struct {
	ctl      *lifecycle.Controller
	store    core.GatheringStore
	index    *index.Index
	searches *index.Searches
	limits   ScanLimits
	now      func() time.Time
}

func NewCustomAuto(
	ctl *lifecycle.Controller,
	store core.GatheringStore,
	idx *index.Index,
	searches *index.Searches,
	limits ScanLimits,
) *CustomAuto {
	return &CustomAuto{
		ctl:      ctl,
		store:    store,
		index:    idx,
		searches: searches,
		limits:   limits,
		now:      time.Now,
	}
}

func (c *CustomAuto) Type() domain.StrategyType { return domain.StrategyCustomAuto }

func (c *CustomAuto) Match(ctx context.Context, req Request) (Result, error) {
	return c.MatchCustomAuto(ctx, req.Definition, req.User, req.Attributes, req.Predicate, req.SearchContext)
}

// MatchCustomAuto runs or resumes one search. A resumed search uses the
// predicate and create attributes retained from its first call; the ones
// passed alongside the context are ignored.
func (c *CustomAuto) MatchCustomAuto(
	ctx context.Context,
	def *domain.Definition,
	user domain.UserID,
	attrs domain.Attributes,
	pred domain.Predicate,
	searchContext string,
) (Result, error) {
	if err := attrs.Validate(); err != nil {
		return Result{}, err
	}
	if err := pred.Validate(); err != nil {
		return Result{}, err
	}

	var st index.Search
	if searchContext == "" {
		st = c.searches.Begin(def.Name, user, pred, attrs)
	} else {
		var err error
		if st, err = c.searches.Resume(searchContext, def.Name, user); err != nil {
			return Result{}, err
		}
	}

	// an id the caller never received cannot be resumed
	fail := func(err error) (Result, error) {
		if searchContext == "" {
			c.searches.Finish(st.ID)
		} else {
			c.searches.Advance(st.ID, st.Cursor)
		}
		return Result{}, err
	}

	if g, ok := current(ctx, c.store, def, user); ok {
		c.searches.Finish(st.ID)
		return Result{Gathering: g, Done: true}, nil
	}

	budget := index.Budget{Deadline: c.now().Add(c.limits.Budget)}
	remaining := c.limits.Batch
	for {
		if c.limits.Batch > 0 {
			budget.MaxVisits = remaining
		}
		res := c.index.Scan(def.Name, st.Cursor, st.Predicate, budget, c.now)
		st.Cursor = res.Cursor
		remaining -= res.Visited

		if res.Match != nil {
			g, err := c.ctl.Join(ctx, res.Match.ID, user)
			if err == nil {
				c.searches.Finish(st.ID)
				return Result{Gathering: g, Done: true}, nil
			}
			if !lifecycle.IsRaceLost(err) {
				return fail(err)
			}
		}

		if res.Exhausted {
			g, err := c.ctl.Create(ctx, lifecycle.CreateParams{
				Definition: def,
				Creator:    user,
				Attributes: st.Attributes,
				OnCreated:  c.index.Add,
			})
			if err != nil {
				return fail(err)
			}
			c.searches.Finish(st.ID)
			return Result{Gathering: g, Created: true, Done: true}, nil
		}

		if (c.limits.Batch > 0 && remaining <= 0) || !c.now().Before(budget.Deadline) {
			c.searches.Advance(st.ID, st.Cursor)
			log.Debug().
				Str("module", "app.match").
				Str("definition", def.Name).
				Str("search", st.ID).
				Uint64("cursor", st.Cursor).
				Msg("customauto search suspended")
			return Result{Done: false, SearchContext: st.ID}, nil
		}
	}
}
