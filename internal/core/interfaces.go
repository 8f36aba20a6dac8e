package core

import (
	"context"
	"time"

	"github.com/dkeye/Gather/internal/domain"
)

// DefinitionStore persists matchmaking definitions keyed by name.
type DefinitionStore interface {
	CreateDefinition(ctx context.Context, def *domain.Definition) error
	GetDefinition(ctx context.Context, name string) (*domain.Definition, error)
	PutDefinition(ctx context.Context, def *domain.Definition) error
	// DeleteDefinition removes the definition together with all of its
	// gatherings in one step. Fails with ErrGatheringsOpen while any of them
	// is OPEN.
	DeleteDefinition(ctx context.Context, name string) error
	// ListDefinitions returns up to limit definitions with names after the
	// given one, ordered by name.
	ListDefinitions(ctx context.Context, after string, limit int) ([]*domain.Definition, error)
}

// GatheringStore is the only place gathering state physically changes.
// Returned gatherings are copies. Callers serialize mutations per gathering
// id; the store only guarantees its own indexes stay consistent.
type GatheringStore interface {
	// CreateGathering inserts g and claims membership for g.Players.
	// Fails with ErrDefinitionNotFound unless the stored definition named
	// g.Definition has id g.DefinitionID, ErrPasscodeInUse when another OPEN
	// gathering of the same definition holds g.Passcode, and ErrAlreadyJoined
	// on a membership clash.
	CreateGathering(ctx context.Context, g *domain.Gathering) error
	GetGathering(ctx context.Context, id domain.GatheringID) (*domain.Gathering, error)
	// PutGathering replaces the record and reconciles the membership and
	// passcode indexes against the previous version.
	PutGathering(ctx context.Context, g *domain.Gathering) error

	// ListGatherings returns gatherings of a definition in creation order,
	// starting after seq, filtered by status when status is non-empty.
	ListGatherings(ctx context.Context, definition string, status domain.Status, afterSeq uint64, limit int) ([]*domain.Gathering, error)
	FindByPasscode(ctx context.Context, definition, passcode string) (*domain.Gathering, error)
	// MemberOf returns the non-terminal gathering user belongs to under
	// definition, if any.
	MemberOf(ctx context.Context, definition string, user domain.UserID) (domain.GatheringID, bool)
	CountByStatus(ctx context.Context, definition string) (map[domain.Status]int, error)
}

// Reason is why a lifecycle event fired.
type Reason string

const (
	ReasonFull           Reason = "FULL"
	ReasonEarlyCompleted Reason = "EARLY_COMPLETED"
	ReasonBrokenUp       Reason = "BROKEN_UP"
)

// Event describes a terminal transition of a gathering.
type Event struct {
	GatheringID domain.GatheringID `json:"gatheringId"`
	Definition  string             `json:"matchmakingName"`
	Players     []domain.UserID    `json:"players"`
	Reason      Reason             `json:"reason"`
	Callback    string             `json:"-"`
	OccurredAt  time.Time          `json:"occurredAt"`
}

// Notifier accepts lifecycle events. Publish must not block on delivery.
// Only FULL and EARLY_COMPLETED reach the definition callback.
type Notifier interface {
	Publish(ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ev Event)

func (f NotifierFunc) Publish(ev Event) { f(ev) }
