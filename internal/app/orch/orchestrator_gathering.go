package orch

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dkeye/Gather/internal/domain"
)

// Gathering returns a gathering of the named definition. strategy may be
// empty to skip the strategy check.
func (o *Orchestrator) Gathering(ctx context.Context, strategy domain.StrategyType, name string, id domain.GatheringID) (*domain.Gathering, error) {
	if _, err := o.definitionFor(ctx, strategy, name); err != nil {
		return nil, err
	}
	g, err := o.Lifecycle.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.Definition != name {
		return nil, fmt.Errorf("%w: %s", domain.ErrGatheringNotFound, id)
	}
	return g, nil
}

// JoinedUsers lists participants in join order.
func (o *Orchestrator) JoinedUsers(ctx context.Context, strategy domain.StrategyType, name string, id domain.GatheringID) ([]domain.UserID, error) {
	g, err := o.Gathering(ctx, strategy, name, id)
	if err != nil {
		return nil, err
	}
	return g.Players, nil
}

func (o *Orchestrator) Leave(ctx context.Context, strategy domain.StrategyType, name string, id domain.GatheringID, user domain.UserID) error {
	if _, err := o.Gathering(ctx, strategy, name, id); err != nil {
		return err
	}
	_, err := o.Lifecycle.Leave(ctx, id, user)
	return err
}

func (o *Orchestrator) Breakup(ctx context.Context, strategy domain.StrategyType, name string, id domain.GatheringID, user domain.UserID) (*domain.Gathering, error) {
	if _, err := o.Gathering(ctx, strategy, name, id); err != nil {
		return nil, err
	}
	return o.Lifecycle.Breakup(ctx, id, user)
}

func (o *Orchestrator) EarlyComplete(ctx context.Context, strategy domain.StrategyType, name string, id domain.GatheringID, user domain.UserID) (*domain.Gathering, error) {
	if _, err := o.Gathering(ctx, strategy, name, id); err != nil {
		return nil, err
	}
	return o.Lifecycle.EarlyComplete(ctx, id, user)
}

// ListRooms pages the open gatherings of a Room definition.
func (o *Orchestrator) ListRooms(ctx context.Context, name, pageToken string, limit int) ([]*domain.Gathering, string, error) {
	def, err := o.definitionFor(ctx, domain.StrategyRoom, name)
	if err != nil {
		return nil, "", err
	}
	after, err := decodeSeqToken(roomPage, pageToken)
	if err != nil {
		return nil, "", err
	}
	rooms, next, more, err := o.Rooms.ListGatherings(ctx, def, after, o.Paging.clamp(limit))
	if err != nil {
		return nil, "", err
	}
	token := ""
	if more {
		token = encodeToken(roomPage, strconv.FormatUint(next, 10))
	}
	return rooms, token, nil
}
