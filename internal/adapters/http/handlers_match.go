package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Gather/internal/app/match"
	"github.com/dkeye/Gather/internal/domain"
)

type rangeRequest struct {
	Min *int64 `json:"min"`
	Max *int64 `json:"max"`
}

type customAutoRequest struct {
	Attributes    []int64        `json:"attributes" binding:"max=5"`
	Ranges        []rangeRequest `json:"ranges" binding:"max=5"`
	SearchContext string         `json:"searchContext"`
}

type roomRequest struct {
	Meta string `json:"meta"`
}

// bindOptionalJSON binds a body that callers may omit entirely.
func bindOptionalJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (h *handlers) match(c *gin.Context, st domain.StrategyType, req match.Request) (match.Result, bool) {
	req.User = userOf(c)
	res, err := h.orch.Match(c.Request.Context(), st, c.Param("name"), req)
	if err != nil {
		writeError(c, err)
		return match.Result{}, false
	}
	return res, true
}

func (h *handlers) matchAnybody(c *gin.Context) {
	res, ok := h.match(c, domain.StrategyAnybody, match.Request{})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": viewOf(res.Gathering), "created": res.Created})
}

func (h *handlers) matchCustomAuto(c *gin.Context) {
	var body customAutoRequest
	if err := bindOptionalJSON(c, &body); err != nil {
		badRequest(c, err)
		return
	}
	pred := make(domain.Predicate, 0, len(body.Ranges))
	for _, r := range body.Ranges {
		pred = append(pred, domain.Range{Min: r.Min, Max: r.Max})
	}
	res, ok := h.match(c, domain.StrategyCustomAuto, match.Request{
		Attributes:    body.Attributes,
		Predicate:     pred,
		SearchContext: body.SearchContext,
	})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"done":          res.Done,
		"item":          viewOf(res.Gathering),
		"created":       res.Created,
		"searchContext": res.SearchContext,
	})
}

func (h *handlers) createPasscodeGathering(c *gin.Context) {
	res, ok := h.match(c, domain.StrategyPasscode, match.Request{})
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"item": viewOf(res.Gathering)})
}

func (h *handlers) joinByPasscode(c *gin.Context) {
	code := c.Param("passcode")
	if code == "" {
		badRequest(c, errors.New("passcode required"))
		return
	}
	res, ok := h.match(c, domain.StrategyPasscode, match.Request{Passcode: code})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": viewOf(res.Gathering)})
}

func (h *handlers) createRoom(c *gin.Context) {
	var body roomRequest
	if err := bindOptionalJSON(c, &body); err != nil {
		badRequest(c, err)
		return
	}
	res, ok := h.match(c, domain.StrategyRoom, match.Request{Meta: body.Meta})
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"item": viewOf(res.Gathering)})
}

func (h *handlers) joinRoom(c *gin.Context) {
	res, ok := h.match(c, domain.StrategyRoom, match.Request{GatheringID: domain.GatheringID(c.Param("gatheringId"))})
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": viewOf(res.Gathering)})
}

func (h *handlers) listRooms(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	rooms, next, err := h.orch.ListRooms(c.Request.Context(), c.Param("name"), q.PageToken, q.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": viewsOf(rooms), "nextPageToken": next})
}

func (h *handlers) joinedUsers(st domain.StrategyType) gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := h.orch.JoinedUsers(c.Request.Context(), st, c.Param("name"), domain.GatheringID(c.Param("gatheringId")))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": users})
	}
}

func (h *handlers) leave(st domain.StrategyType) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.orch.Leave(c.Request.Context(), st, c.Param("name"), domain.GatheringID(c.Param("gatheringId")), userOf(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func (h *handlers) breakup(st domain.StrategyType) gin.HandlerFunc {
	return func(c *gin.Context) {
		g, err := h.orch.Breakup(c.Request.Context(), st, c.Param("name"), domain.GatheringID(c.Param("gatheringId")), userOf(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"item": viewOf(g)})
	}
}

func (h *handlers) earlyComplete(st domain.StrategyType) gin.HandlerFunc {
	return func(c *gin.Context) {
		g, err := h.orch.EarlyComplete(c.Request.Context(), st, c.Param("name"), domain.GatheringID(c.Param("gatheringId")), userOf(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"item": viewOf(g)})
	}
}
