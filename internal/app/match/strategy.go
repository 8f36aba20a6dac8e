// Package match implements the four matching strategies. Each supplies its
// own way of finding a candidate gathering; all of them create and join
// through the lifecycle controller, which owns the atomic join step.
package match

import (
	"context"
	"fmt"

	"github.com/dkeye/Gather/internal/domain"
)

// Request carries every input a strategy may use. Fields a strategy does
// not understand are ignored.
type Request struct {
	Definition *domain.Definition
	User       domain.UserID

	// CustomAuto
	Attributes    domain.Attributes
	Predicate     domain.Predicate
	SearchContext string

	// Room
	Meta        string
	GatheringID domain.GatheringID

	// Passcode
	Passcode string
}

type Result struct {
	Gathering *domain.Gathering
	// Created is set when the caller created Gathering.
	Created bool
	// Done is false only for a CustomAuto search that ran out of budget.
	Done          bool
	SearchContext string
}

// Strategy is the find-or-create-then-join contract.
type Strategy interface {
	Type() domain.StrategyType
	Match(ctx context.Context, req Request) (Result, error)
}

// Set dispatches on a definition's strategy type.
type Set map[domain.StrategyType]Strategy

func NewSet(strategies ...Strategy) Set {
	s := make(Set, len(strategies))
	for _, st := range strategies {
		s[st.Type()] = st
	}
	return s
}

func (s Set) For(def *domain.Definition) (Strategy, error) {
	st, ok := s[def.Type]
	if !ok {
		return nil, fmt.Errorf("%w: no strategy %q", domain.ErrInvalidArgument, def.Type)
	}
	return st, nil
}
