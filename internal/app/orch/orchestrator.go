package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/Gather/internal/app/index"
	"github.com/dkeye/Gather/internal/app/lifecycle"
	"github.com/dkeye/Gather/internal/app/match"
	"github.com/dkeye/Gather/internal/core"
	"github.com/dkeye/Gather/internal/domain"
)

// DeletePolicy decides what deleting a definition does to its open gatherings.
type DeletePolicy string

const (
	DeleteReject  DeletePolicy = "reject"
	DeleteCascade DeletePolicy = "cascade"
)

const fallbackPageSize = 50

type Paging struct {
	Default int
	Max     int
}

func (p Paging) clamp(limit int) int {
	if limit <= 0 {
		limit = p.Default
	}
	if limit <= 0 {
		limit = fallbackPageSize
	}
	if p.Max > 0 && limit > p.Max {
		return p.Max
	}
	return limit
}

// Orchestrator is the engine facade the transport calls. Caller identity
// arrives already resolved; nothing here inspects credentials.
type Orchestrator struct {
	Definitions core.DefinitionStore
	Gatherings  core.GatheringStore
	Lifecycle   *lifecycle.Controller
	Strategies  match.Set
	Rooms       *match.Room
	Index       *index.Index
	Quota       *lifecycle.Quota
	Policy      DeletePolicy
	Paging      Paging
}

// Match runs the definition's strategy. The route's strategy must equal the
// definition's configured type.
func (o *Orchestrator) Match(ctx context.Context, strategy domain.StrategyType, name string, req match.Request) (match.Result, error) {
	def, err := o.definitionFor(ctx, strategy, name)
	if err != nil {
		return match.Result{}, err
	}
	st, err := o.Strategies.For(def)
	if err != nil {
		return match.Result{}, err
	}
	req.Definition = def
	return st.Match(ctx, req)
}

func (o *Orchestrator) definitionFor(ctx context.Context, strategy domain.StrategyType, name string) (*domain.Definition, error) {
	def, err := o.Definitions.GetDefinition(ctx, name)
	if err != nil {
		return nil, err
	}
	if strategy != "" && def.Type != strategy {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrWrongStrategy, name, def.Type)
	}
	return def, nil
}
