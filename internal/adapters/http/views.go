package http

import (
	"github.com/dkeye/Gather/internal/core"
	"github.com/dkeye/Gather/internal/domain"
)

type gatheringView struct {
	GatheringID     domain.GatheringID  `json:"gatheringId"`
	MatchmakingName string              `json:"matchmakingName"`
	Type            domain.StrategyType `json:"type"`
	JoinPlayer      int                 `json:"joinPlayer"`
	Capacity        int                 `json:"capacity"`
	Attributes      []int64             `json:"attributes,omitempty"`
	Passcode        string              `json:"passcode,omitempty"`
	Meta            string              `json:"meta,omitempty"`
	Status          domain.Status       `json:"status"`
	CreateAt        int64               `json:"createAt"`
	UpdateAt        int64               `json:"updateAt"`
}

func viewOf(g *domain.Gathering) *gatheringView {
	if g == nil {
		return nil
	}
	return &gatheringView{
		GatheringID:     g.ID,
		MatchmakingName: g.Definition,
		Type:            g.Strategy,
		JoinPlayer:      len(g.Players),
		Capacity:        g.Capacity,
		Attributes:      g.Attributes,
		Passcode:        g.Passcode,
		Meta:            g.Meta,
		Status:          g.Status,
		CreateAt:        g.CreateAt.UnixMilli(),
		UpdateAt:        g.UpdateAt.UnixMilli(),
	}
}

func viewsOf(gs []*domain.Gathering) []*gatheringView {
	out := make([]*gatheringView, 0, len(gs))
	for _, g := range gs {
		out = append(out, viewOf(g))
	}
	return out
}

type eventView struct {
	Type            core.Reason        `json:"type"`
	GatheringID     domain.GatheringID `json:"gatheringId"`
	MatchmakingName string             `json:"matchmakingName"`
	Players         []domain.UserID    `json:"players"`
	OccurredAt      int64              `json:"occurredAt"`
}

func eventViewOf(ev core.Event) eventView {
	return eventView{
		Type:            ev.Reason,
		GatheringID:     ev.GatheringID,
		MatchmakingName: ev.Definition,
		Players:         ev.Players,
		OccurredAt:      ev.OccurredAt.UnixMilli(),
	}
}

var reasonByStatus = map[domain.Status]core.Reason{
	domain.StatusFull:           core.ReasonFull,
	domain.StatusEarlyCompleted: core.ReasonEarlyCompleted,
	domain.StatusBrokenUp:       core.ReasonBrokenUp,
}

// closedEvent rebuilds the event of a gathering that closed before the
// watcher subscribed.
func closedEvent(g *domain.Gathering) core.Event {
	return core.Event{
		GatheringID: g.ID,
		Definition:  g.Definition,
		Players:     g.Players,
		Reason:      reasonByStatus[g.Status],
		OccurredAt:  g.UpdateAt,
	}
}
