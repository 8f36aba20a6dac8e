package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Gather/internal/core"
	"github.com/dkeye/Gather/internal/domain"
)

// Controller owns the gathering state machine. Every mutation of a given
// gathering runs under that gathering's lock, so capacity checks and the
// FULL transition are applied as one step.
type Controller struct {
	defs     core.DefinitionStore
	store    core.GatheringStore
	locks    *core.KeyLock
	notifier core.Notifier
	quota    *Quota
	now      func() time.Time
}

// NewController wires the controller. notifier and quota may be nil.
func NewController(defs core.DefinitionStore, store core.GatheringStore, notifier core.Notifier, quota *Quota) *Controller {
	if notifier == nil {
		notifier = core.NotifierFunc(func(core.Event) {})
	}
	return &Controller{
		defs:     defs,
		store:    store,
		locks:    core.NewKeyLock(),
		notifier: notifier,
		quota:    quota,
		now:      time.Now,
	}
}

// CreateParams describes a new gathering. Creator becomes its first player.
type CreateParams struct {
	Definition *domain.Definition
	Creator    domain.UserID
	Attributes domain.Attributes
	Meta       string
	Passcode   string
	// OnCreated runs once the gathering is stored, still under its lock, so
	// no join or close can reach it first.
	OnCreated func(g *domain.Gathering)
}

func (c *Controller) Create(ctx context.Context, p CreateParams) (*domain.Gathering, error) {
	if p.Definition == nil {
		return nil, fmt.Errorf("%w: definition required", domain.ErrInvalidArgument)
	}
	if p.Creator == "" {
		return nil, fmt.Errorf("%w: creator required", domain.ErrInvalidArgument)
	}
	if err := p.Attributes.Validate(); err != nil {
		return nil, err
	}
	if err := domain.CheckMeta(p.Meta); err != nil {
		return nil, err
	}
	if id, ok := c.store.MemberOf(ctx, p.Definition.Name, p.Creator); ok {
		return nil, fmt.Errorf("%w: user %s is in %s", domain.ErrAlreadyJoined, p.Creator, id)
	}
	if err := c.admit(p.Definition); err != nil {
		return nil, err
	}

	now := c.now()
	g := &domain.Gathering{
		ID:           domain.GatheringID(uuid.NewString()),
		Definition:   p.Definition.Name,
		DefinitionID: p.Definition.ID,
		Strategy:     p.Definition.Type,
		CreatorID:    p.Creator,
		Players:      []domain.UserID{p.Creator},
		Capacity:     p.Definition.MaxPlayer,
		Attributes:   slices.Clone(p.Attributes),
		Meta:         p.Meta,
		Passcode:     p.Passcode,
		Status:       domain.StatusOpen,
		CreateAt:     now,
		UpdateAt:     now,
	}
	release := c.locks.Lock(string(g.ID))
	defer release()
	if err := c.store.CreateGathering(ctx, g); err != nil {
		c.refund(p.Definition)
		return nil, err
	}
	if p.OnCreated != nil {
		p.OnCreated(g.Clone())
	}
	log.Info().
		Str("module", "app.lifecycle").
		Str("definition", g.Definition).
		Str("gathering", string(g.ID)).
		Str("user", string(p.Creator)).
		Msg("gathering created")
	return g, nil
}

// Join adds user to the gathering. Joining a gathering the user is already
// in returns it unchanged.
func (c *Controller) Join(ctx context.Context, id domain.GatheringID, user domain.UserID) (*domain.Gathering, error) {
	if user == "" {
		return nil, fmt.Errorf("%w: user required", domain.ErrInvalidArgument)
	}
	release := c.locks.Lock(string(id))
	defer release()

	g, err := c.store.GetGathering(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.Has(user) {
		return g, nil
	}
	switch {
	case g.Status == domain.StatusFull, g.Status == domain.StatusOpen && len(g.Players) >= g.Capacity:
		return nil, fmt.Errorf("%w: gathering %s", domain.ErrCapacityExceeded, id)
	case g.Status != domain.StatusOpen:
		return nil, fmt.Errorf("%w: gathering %s is %s", domain.ErrNotJoinable, id, g.Status)
	}
	if other, ok := c.store.MemberOf(ctx, g.Definition, user); ok {
		return nil, fmt.Errorf("%w: user %s is in %s", domain.ErrAlreadyJoined, user, other)
	}
	def, err := c.defs.GetDefinition(ctx, g.Definition)
	if err != nil {
		return nil, err
	}
	if err := c.admit(def); err != nil {
		return nil, err
	}

	g.Players = append(g.Players, user)
	g.UpdateAt = c.now()
	full := len(g.Players) == g.Capacity
	if full {
		g.Status = domain.StatusFull
	}
	if err := c.store.PutGathering(ctx, g); err != nil {
		c.refund(def)
		return nil, err
	}
	log.Info().
		Str("module", "app.lifecycle").
		Str("gathering", string(id)).
		Str("user", string(user)).
		Int("players", len(g.Players)).
		Int("capacity", g.Capacity).
		Msg("player joined")

	if full {
		c.publish(g, core.ReasonFull, def.Callback)
	}
	return g, nil
}

// Leave removes user. Absent users are a no-op; an empty gathering stays open.
func (c *Controller) Leave(ctx context.Context, id domain.GatheringID, user domain.UserID) (*domain.Gathering, error) {
	release := c.locks.Lock(string(id))
	defer release()

	g, err := c.store.GetGathering(ctx, id)
	if err != nil {
		return nil, err
	}
	idx := slices.Index(g.Players, user)
	if idx < 0 {
		return g, nil
	}
	if g.Status.Terminal() {
		return nil, fmt.Errorf("%w: gathering %s is %s", domain.ErrNotJoinable, id, g.Status)
	}
	g.Players = slices.Delete(g.Players, idx, idx+1)
	g.UpdateAt = c.now()
	if err := c.store.PutGathering(ctx, g); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "app.lifecycle").
		Str("gathering", string(id)).
		Str("user", string(user)).
		Int("players", len(g.Players)).
		Msg("player left")
	return g, nil
}

// Breakup cancels an open gathering. No completion callback fires.
func (c *Controller) Breakup(ctx context.Context, id domain.GatheringID, requester domain.UserID) (*domain.Gathering, error) {
	return c.close(ctx, id, requester, domain.StatusBrokenUp)
}

// EarlyComplete ends an open gathering below capacity and fires the
// completion callback.
func (c *Controller) EarlyComplete(ctx context.Context, id domain.GatheringID, requester domain.UserID) (*domain.Gathering, error) {
	return c.close(ctx, id, requester, domain.StatusEarlyCompleted)
}

// Dissolve breaks up a gathering without the creator check. Used when the
// owning definition is deleted.
func (c *Controller) Dissolve(ctx context.Context, id domain.GatheringID) (*domain.Gathering, error) {
	return c.close(ctx, id, "", domain.StatusBrokenUp)
}

func (c *Controller) close(
	ctx context.Context,
	id domain.GatheringID,
	requester domain.UserID,
	to domain.Status,
) (*domain.Gathering, error) {
	release := c.locks.Lock(string(id))
	defer release()

	g, err := c.store.GetGathering(ctx, id)
	if err != nil {
		return nil, err
	}
	if requester != "" && g.CreatorID != requester {
		return nil, fmt.Errorf("%w: gathering %s", domain.ErrNotCreator, id)
	}
	if g.Status != domain.StatusOpen {
		return nil, fmt.Errorf("%w: gathering %s is %s", domain.ErrNotJoinable, id, g.Status)
	}
	g.Status = to
	g.UpdateAt = c.now()
	if err := c.store.PutGathering(ctx, g); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "app.lifecycle").
		Str("gathering", string(id)).
		Str("status", string(to)).
		Int("players", len(g.Players)).
		Msg("gathering closed")

	if to == domain.StatusBrokenUp {
		c.publish(g, core.ReasonBrokenUp, "")
		return g, nil
	}
	callback := ""
	if def, err := c.defs.GetDefinition(ctx, g.Definition); err == nil {
		callback = def.Callback
	}
	c.publish(g, core.ReasonEarlyCompleted, callback)
	return g, nil
}

func (c *Controller) Get(ctx context.Context, id domain.GatheringID) (*domain.Gathering, error) {
	return c.store.GetGathering(ctx, id)
}

func (c *Controller) admit(def *domain.Definition) error {
	if c.quota == nil || c.quota.Allow(def.Name, def.ServiceClass) {
		return nil
	}
	log.Warn().
		Str("module", "app.lifecycle").
		Str("definition", def.Name).
		Str("service_class", string(def.ServiceClass)).
		Msg("admission rejected")
	return fmt.Errorf("%w: %s", domain.ErrThrottled, def.Name)
}

// refund returns the admission of a mutation the store refused.
func (c *Controller) refund(def *domain.Definition) {
	if c.quota != nil {
		c.quota.Release(def.Name, def.ServiceClass)
	}
}

// publish runs inside the gathering lock, so each transition is published once.
func (c *Controller) publish(g *domain.Gathering, reason core.Reason, callback string) {
	ev := core.Event{
		GatheringID: g.ID,
		Definition:  g.Definition,
		Players:     slices.Clone(g.Players),
		Reason:      reason,
		Callback:    callback,
		OccurredAt:  g.UpdateAt,
	}
	c.notifier.Publish(ev)
}

// IsRaceLost reports errors a strategy may answer by picking another
// candidate: the gathering filled, closed or vanished after selection.
func IsRaceLost(err error) bool {
	return errors.Is(err, domain.ErrCapacityExceeded) ||
		errors.Is(err, domain.ErrNotJoinable) ||
		errors.Is(err, domain.ErrGatheringNotFound)
}
