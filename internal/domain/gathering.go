package domain

import (
	"fmt"
	"slices"
	"time"
)

type GatheringID string

type Status string

const (
	StatusOpen           Status = "OPEN"
	StatusFull           Status = "FULL"
	StatusEarlyCompleted Status = "EARLY_COMPLETED"
	StatusBrokenUp       Status = "BROKEN_UP"
)

func (s Status) Terminal() bool { return s != StatusOpen }

const MaxMetaBytes = 128

// Gathering is one bounded-capacity grouping of players.
// Players keeps join order; Players[0] at creation time is CreatorID.
// DefinitionID pins the gathering to one incarnation of its definition, so a
// deleted and recreated name never adopts it.
type Gathering struct {
	ID           GatheringID  `json:"gatheringId"`
	Definition   string       `json:"matchmakingName"`
	DefinitionID string       `json:"-"`
	Strategy     StrategyType `json:"type"`
	CreatorID    UserID       `json:"creatorId"`
	Players      []UserID     `json:"players"`
	Capacity     int          `json:"capacity"`
	Attributes   Attributes   `json:"attributes,omitempty"`
	Meta         string       `json:"meta,omitempty"`
	Passcode     string       `json:"passcode,omitempty"`
	Status       Status       `json:"status"`
	Seq          uint64       `json:"-"`
	CreateAt     time.Time    `json:"createAt"`
	UpdateAt     time.Time    `json:"updateAt"`
}

func (g *Gathering) Clone() *Gathering {
	c := *g
	c.Players = slices.Clone(g.Players)
	c.Attributes = slices.Clone(g.Attributes)
	return &c
}

func (g *Gathering) Has(user UserID) bool {
	return slices.Contains(g.Players, user)
}

func (g *Gathering) Free() int { return g.Capacity - len(g.Players) }

func (g *Gathering) Joinable() bool {
	return g.Status == StatusOpen && len(g.Players) < g.Capacity
}

// CheckMeta enforces the room metadata size limit.
func CheckMeta(meta string) error {
	if len(meta) > MaxMetaBytes {
		return fmt.Errorf("%w: meta exceeds %d bytes", ErrInvalidArgument, MaxMetaBytes)
	}
	return nil
}
