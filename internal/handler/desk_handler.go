package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/resource"
	"github.com/opennewsroom/newsdesk-api/internal/store"
	appErrors "github.com/opennewsroom/newsdesk-api/pkg/errors"
	"github.com/opennewsroom/newsdesk-api/pkg/response"
)

// DeskHandler exposes desks and stages.
type DeskHandler struct {
	desks  *resource.Service
	stages *resource.Service
}

// NewDeskHandler constructs the handler.
func NewDeskHandler(desks, stages *resource.Service) *DeskHandler {
	return &DeskHandler{desks: desks, stages: stages}
}

// ListDesks returns all desks.
func (h *DeskHandler) ListDesks(c *gin.Context) {
	result, pagination, err := h.desks.Find(c.Request.Context(), store.Query{PageSize: 200})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result.Docs, pagination)
}

// GetDesk returns one desk.
func (h *DeskHandler) GetDesk(c *gin.Context) {
	desk, err := h.desks.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Document(c, http.StatusOK, desk)
}

// CreateDesk registers a desk. Admin only.
func (h *DeskHandler) CreateDesk(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.Role != models.RoleAdmin {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	var desk models.Doc
	if err := c.ShouldBindJSON(&desk); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid desk payload"))
		return
	}
	if _, err := h.desks.Create(c.Request.Context(), []models.Doc{desk}); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, desk)
}

// ListStages returns the stages of a desk.
func (h *DeskHandler) ListStages(c *gin.Context) {
	result, pagination, err := h.stages.Find(c.Request.Context(), store.Query{
		Where:    store.Eq(models.FieldDeskID, c.Param("id")),
		PageSize: 200,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result.Docs, pagination)
}

// CreateStage registers a stage on a desk. Admin only.
func (h *DeskHandler) CreateStage(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.Role != models.RoleAdmin {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	var stage models.Doc
	if err := c.ShouldBindJSON(&stage); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid stage payload"))
		return
	}
	stage[models.FieldDeskID] = c.Param("id")
	if _, err := h.stages.Create(c.Request.Context(), []models.Doc{stage}); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, stage)
}
