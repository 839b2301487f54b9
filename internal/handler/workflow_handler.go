package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/opennewsroom/newsdesk-api/internal/dto"
	"github.com/opennewsroom/newsdesk-api/internal/lock"
	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/workflow"
	appErrors "github.com/opennewsroom/newsdesk-api/pkg/errors"
	"github.com/opennewsroom/newsdesk-api/pkg/response"
)

// WorkflowHandler exposes the editorial actions on archive items.
type WorkflowHandler struct {
	workflow   *workflow.ItemWorkflow
	locks      *lock.Manager
	correction *workflow.CorrectionService
	rewrite    *workflow.RewriteService
	validate   *validator.Validate
}

// NewWorkflowHandler constructs the handler.
func NewWorkflowHandler(
	wf *workflow.ItemWorkflow,
	locks *lock.Manager,
	correction *workflow.CorrectionService,
	rewrite *workflow.RewriteService,
	validate *validator.Validate,
) *WorkflowHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &WorkflowHandler{
		workflow:   wf,
		locks:      locks,
		correction: correction,
		rewrite:    rewrite,
		validate:   validate,
	}
}

// Lock acquires the soft lock on an item for the caller's session.
func (h *WorkflowHandler) Lock(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.LockRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid lock payload"))
			return
		}
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lock payload"))
		return
	}
	action := req.Action
	if action == "" {
		action = "edit"
	}

	item, err := h.locks.Lock(c.Request.Context(), c.Param("id"), claims.UserID, claims.SessionID, action)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Document(c, http.StatusOK, item)
}

// Unlock releases the lock. Admins and editors may force-release a lock
// held by someone else.
func (h *WorkflowHandler) Unlock(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UnlockRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid unlock payload"))
			return
		}
	}
	if req.Force && claims.Role == models.RoleJournalist {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only editors may force unlock"))
		return
	}

	item, err := h.locks.Unlock(c.Request.Context(), c.Param("id"), claims.UserID, claims.SessionID, req.Force)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Document(c, http.StatusOK, item)
}

// Spike parks the item outside the active workflow.
func (h *WorkflowHandler) Spike(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	item, err := h.workflow.Spike(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Document(c, http.StatusOK, item)
}

// Unspike restores a spiked item.
func (h *WorkflowHandler) Unspike(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	item, err := h.workflow.Unspike(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Document(c, http.StatusOK, item)
}

// Duplicate copies the item under a new identity.
func (h *WorkflowHandler) Duplicate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DuplicateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid duplicate payload"))
			return
		}
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid duplicate payload"))
		return
	}

	newID, err := h.workflow.Duplicate(c.Request.Context(), c.Param("id"), workflow.DuplicateOptions{
		UserID: claims.UserID,
		State:  models.State(req.State),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{models.FieldID: newID})
}

// Deschedule takes a scheduled item back to in_progress.
func (h *WorkflowHandler) Deschedule(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	item, err := h.workflow.Deschedule(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Document(c, http.StatusOK, item)
}

// CreateCorrection opens a correction document for a published item.
func (h *WorkflowHandler) CreateCorrection(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	correction, err := h.correction.Create(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Document(c, http.StatusCreated, correction)
}

// DeleteCorrection withdraws an unpublished correction.
func (h *WorkflowHandler) DeleteCorrection(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.correction.Delete(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Rewrite creates or links the update story of a published item.
func (h *WorkflowHandler) Rewrite(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RewriteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid rewrite payload"))
			return
		}
	}

	item, err := h.rewrite.Rewrite(c.Request.Context(), c.Param("id"), workflow.RewriteOptions{
		UserID:   claims.UserID,
		UpdateID: req.UpdateID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Document(c, http.StatusCreated, item)
}
