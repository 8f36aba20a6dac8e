package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Gather/internal/app/orch"
	"github.com/dkeye/Gather/internal/domain"
)

type pageQuery struct {
	PageToken string `form:"pageToken"`
	Limit     int    `form:"limit" binding:"min=0"`
}

type createDefinitionRequest struct {
	Name         string              `json:"name" binding:"required"`
	Description  string              `json:"description"`
	Type         domain.StrategyType `json:"type" binding:"required"`
	MaxPlayer    int                 `json:"maxPlayer" binding:"required"`
	ServiceClass domain.ServiceClass `json:"serviceClass" binding:"required"`
	Callback     string              `json:"callback"`
}

type updateDefinitionRequest struct {
	Description  *string              `json:"description"`
	ServiceClass *domain.ServiceClass `json:"serviceClass"`
	Callback     *string              `json:"callback"`
}

func (h *handlers) listDefinitions(c *gin.Context) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	defs, next, err := h.orch.ListDefinitions(c.Request.Context(), q.PageToken, q.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": defs, "nextPageToken": next})
}

func (h *handlers) createDefinition(c *gin.Context) {
	var req createDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	def, err := h.orch.CreateDefinition(c.Request.Context(), userOf(c), orch.DefinitionInput{
		Name:         req.Name,
		Description:  req.Description,
		Type:         req.Type,
		MaxPlayer:    req.MaxPlayer,
		ServiceClass: req.ServiceClass,
		Callback:     req.Callback,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"item": def})
}

func (h *handlers) getDefinition(c *gin.Context) {
	def, err := h.orch.GetDefinition(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": def})
}

func (h *handlers) updateDefinition(c *gin.Context) {
	var req updateDefinitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	def, err := h.orch.UpdateDefinition(c.Request.Context(), c.Param("name"), userOf(c), orch.DefinitionUpdate{
		Description:  req.Description,
		ServiceClass: req.ServiceClass,
		Callback:     req.Callback,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": def})
}

func (h *handlers) deleteDefinition(c *gin.Context) {
	if err := h.orch.DeleteDefinition(c.Request.Context(), c.Param("name"), userOf(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) definitionStatus(c *gin.Context) {
	st, err := h.orch.DefinitionStatus(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": st})
}

func (h *handlers) serviceClasses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.orch.ServiceClasses()})
}
