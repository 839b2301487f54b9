package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/opennewsroom/newsdesk-api/internal/models"
	appErrors "github.com/opennewsroom/newsdesk-api/pkg/errors"
	"github.com/opennewsroom/newsdesk-api/pkg/jobs"
	"github.com/opennewsroom/newsdesk-api/pkg/response"
)

// KindReindex replays the document store into the search index.
const KindReindex jobs.Kind = "reindex"

// AdminHandler exposes maintenance operations.
type AdminHandler struct {
	maintenance *jobs.Queue
}

// NewAdminHandler constructs the handler. queue carries reindex tasks.
func NewAdminHandler(maintenance *jobs.Queue) *AdminHandler {
	return &AdminHandler{maintenance: maintenance}
}

// Reindex schedules a replay of the document store into the search
// index; the repair path for index drift. Admin only.
func (h *AdminHandler) Reindex(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil || claims.Role != models.RoleAdmin {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	if h.maintenance == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "maintenance queue not configured"))
		return
	}

	task := jobs.Task{ID: uuid.NewString(), Kind: KindReindex}
	if err := h.maintenance.Enqueue(task); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule reindex"))
		return
	}
	response.JSON(c, http.StatusAccepted, gin.H{"job_id": task.ID}, nil)
}
