package match

import (
	"context"
	"fmt"

	"github.com/dkeye/Gather/internal/app/lifecycle"
	"github.com/dkeye/Gather/internal/core"
	"github.com/dkeye/Gather/internal/domain"
)

// Room separates discovery from joining so players can browse gatherings by
// their metadata. A listed gathering may fill or break up before the join;
// that surfaces as an ordinary Conflict or NotFound.
type Room struct {
	ctl   *lifecycle.Controller
	store core.GatheringStore
}

func NewRoom(ctl *lifecycle.Controller, store core.GatheringStore) *Room {
	return &Room{ctl: ctl, store: store}
}

func (r *Room) Type() domain.StrategyType { return domain.StrategyRoom }

// Match joins req.GatheringID when set and creates a room otherwise.
func (r *Room) Match(ctx context.Context, req Request) (Result, error) {
	if req.GatheringID != "" {
		g, err := r.JoinGathering(ctx, req.Definition, req.GatheringID, req.User)
		if err != nil {
			return Result{}, err
		}
		return Result{Gathering: g, Done: true}, nil
	}
	g, err := r.CreateGathering(ctx, req.Definition, req.User, req.Meta)
	if err != nil {
		return Result{}, err
	}
	return Result{Gathering: g, Created: true, Done: true}, nil
}

func (r *Room) CreateGathering(ctx context.Context, def *domain.Definition, user domain.UserID, meta string) (*domain.Gathering, error) {
	return r.ctl.Create(ctx, lifecycle.CreateParams{Definition: def, Creator: user, Meta: meta})
}

// ListGatherings pages open rooms in creation order. next is the cursor for
// the following page and more reports whether one exists.
func (r *Room) ListGatherings(ctx context.Context, def *domain.Definition, after uint64, limit int) (rooms []*domain.Gathering, next uint64, more bool, err error) {
	if limit <= 0 {
		return nil, 0, false, fmt.Errorf("%w: limit must be positive", domain.ErrInvalidArgument)
	}
	rooms, err = r.store.ListGatherings(ctx, def.Name, domain.StatusOpen, after, limit+1)
	if err != nil {
		return nil, 0, false, err
	}
	if len(rooms) > limit {
		rooms = rooms[:limit]
		more = true
	}
	if len(rooms) > 0 {
		next = rooms[len(rooms)-1].Seq
	}
	return rooms, next, more, nil
}

func (r *Room) JoinGathering(ctx context.Context, def *domain.Definition, id domain.GatheringID, user domain.UserID) (*domain.Gathering, error) {
	g, err := r.ctl.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.Definition != def.Name {
		return nil, fmt.Errorf("%w: %s", domain.ErrGatheringNotFound, id)
	}
	return r.ctl.Join(ctx, id, user)
}
