package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gather/internal/app/lifecycle"
	"github.com/dkeye/Gather/internal/domain"
)

type DefinitionInput struct {
	Name         string
	Description  string
	Type         domain.StrategyType
	MaxPlayer    int
	ServiceClass domain.ServiceClass
	Callback     string
}

// DefinitionUpdate changes only the fields that are set. Type and
// MaxPlayer are fixed at creation.
type DefinitionUpdate struct {
	Description  *string
	ServiceClass *domain.ServiceClass
	Callback     *string
}

func (o *Orchestrator) CreateDefinition(ctx context.Context, owner domain.UserID, in DefinitionInput) (*domain.Definition, error) {
	now := time.Now()
	def := &domain.Definition{
		ID:           uuid.NewString(),
		OwnerID:      owner,
		Name:         in.Name,
		Description:  in.Description,
		Type:         in.Type,
		MaxPlayer:    in.MaxPlayer,
		ServiceClass: in.ServiceClass,
		Callback:     in.Callback,
		CreateAt:     now,
		UpdateAt:     now,
	}
	if err := o.validate(def); err != nil {
		return nil, err
	}
	if err := o.Definitions.CreateDefinition(ctx, def); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "app.orch").
		Str("definition", def.Name).
		Str("type", string(def.Type)).
		Int("max_player", def.MaxPlayer).
		Str("owner", string(owner)).
		Msg("matchmaking created")
	return def, nil
}

func (o *Orchestrator) GetDefinition(ctx context.Context, name string) (*domain.Definition, error) {
	return o.Definitions.GetDefinition(ctx, name)
}

func (o *Orchestrator) ListDefinitions(ctx context.Context, pageToken string, limit int) ([]*domain.Definition, string, error) {
	after, err := decodeToken(definitionPage, pageToken)
	if err != nil {
		return nil, "", err
	}
	limit = o.Paging.clamp(limit)
	defs, err := o.Definitions.ListDefinitions(ctx, after, limit+1)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(defs) > limit {
		defs = defs[:limit]
		next = encodeToken(definitionPage, defs[limit-1].Name)
	}
	return defs, next, nil
}

func (o *Orchestrator) UpdateDefinition(ctx context.Context, name string, requester domain.UserID, upd DefinitionUpdate) (*domain.Definition, error) {
	def, err := o.owned(ctx, name, requester)
	if err != nil {
		return nil, err
	}
	if upd.Description != nil {
		def.Description = *upd.Description
	}
	if upd.ServiceClass != nil {
		def.ServiceClass = *upd.ServiceClass
	}
	if upd.Callback != nil {
		def.Callback = *upd.Callback
	}
	def.UpdateAt = time.Now()
	if err := o.validate(def); err != nil {
		return nil, err
	}
	if err := o.Definitions.PutDefinition(ctx, def); err != nil {
		return nil, err
	}
	log.Info().Str("module", "app.orch").Str("definition", name).Msg("matchmaking updated")
	return def, nil
}

// cascadeRounds bounds how often a cascading delete chases gatherings
// created while it was dissolving the previous ones.
const cascadeRounds = 8

// DeleteDefinition removes a definition according to the delete policy. The
// store refuses the delete while any gathering is OPEN, so a gathering
// created concurrently either blocks the delete or is refused itself.
func (o *Orchestrator) DeleteDefinition(ctx context.Context, name string, requester domain.UserID) error {
	if _, err := o.owned(ctx, name, requester); err != nil {
		return err
	}
	dissolved := 0
	for round := 0; ; round++ {
		err := o.Definitions.DeleteDefinition(ctx, name)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrGatheringsOpen) || o.Policy != DeleteCascade || round == cascadeRounds {
			return err
		}
		open, err := o.Gatherings.ListGatherings(ctx, name, domain.StatusOpen, 0, 0)
		if err != nil {
			return err
		}
		for _, g := range open {
			if _, err := o.Lifecycle.Dissolve(ctx, g.ID); err != nil && !lifecycle.IsRaceLost(err) {
				return err
			}
			dissolved++
		}
	}
	if o.Index != nil {
		o.Index.Drop(name)
	}
	if o.Quota != nil {
		o.Quota.Forget(name)
	}
	log.Info().
		Str("module", "app.orch").
		Str("definition", name).
		Int("dissolved", dissolved).
		Msg("matchmaking deleted")
	return nil
}

func (o *Orchestrator) DefinitionStatus(ctx context.Context, name string) (*domain.DefinitionStatus, error) {
	if _, err := o.Definitions.GetDefinition(ctx, name); err != nil {
		return nil, err
	}
	counts, err := o.Gatherings.CountByStatus(ctx, name)
	if err != nil {
		return nil, err
	}
	return &domain.DefinitionStatus{Name: name, Counts: counts}, nil
}

func (o *Orchestrator) ServiceClasses() []lifecycle.ClassInfo {
	if o.Quota == nil {
		return nil
	}
	return o.Quota.Classes()
}

func (o *Orchestrator) owned(ctx context.Context, name string, requester domain.UserID) (*domain.Definition, error) {
	def, err := o.Definitions.GetDefinition(ctx, name)
	if err != nil {
		return nil, err
	}
	if def.OwnerID != requester {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotOwner, name)
	}
	return def, nil
}

func (o *Orchestrator) validate(def *domain.Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if o.Quota != nil && !o.Quota.Known(def.ServiceClass) {
		return fmt.Errorf("%w: unknown service class %q", domain.ErrInvalidArgument, def.ServiceClass)
	}
	return nil
}
