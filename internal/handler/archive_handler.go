package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/opennewsroom/newsdesk-api/internal/audit"
	"github.com/opennewsroom/newsdesk-api/internal/dto"
	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/store"
	"github.com/opennewsroom/newsdesk-api/internal/workflow"
	appErrors "github.com/opennewsroom/newsdesk-api/pkg/errors"
	"github.com/opennewsroom/newsdesk-api/pkg/response"
)

// ArchiveHandler exposes the archive item CRUD surface.
type ArchiveHandler struct {
	workflow *workflow.ItemWorkflow
	history  *audit.History
	validate *validator.Validate
}

// NewArchiveHandler constructs the handler.
func NewArchiveHandler(wf *workflow.ItemWorkflow, history *audit.History, validate *validator.Validate) *ArchiveHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &ArchiveHandler{workflow: wf, history: history, validate: validate}
}

// Create persists one or more new items.
func (h *ArchiveHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload models.Doc
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid item payload"))
		return
	}

	docs := []models.Doc{payload}
	if _, err := h.workflow.Create(c.Request.Context(), docs, workflow.CreateOptions{
		UserID:  claims.UserID,
		SignOff: claims.SignOff,
	}); err != nil {
		response.Error(c, err)
		return
	}
	response.Document(c, http.StatusCreated, docs[0])
}

// Get returns one item with its ETag header.
func (h *ArchiveHandler) Get(c *gin.Context) {
	doc, err := h.workflow.Archive().FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Document(c, http.StatusOK, doc)
}

// List queries the archive with filters, sorting, pagination and
// projection.
func (h *ArchiveHandler) List(c *gin.Context) {
	var q dto.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	if err := h.validate.Struct(q); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query parameters"))
		return
	}

	result, pagination, err := h.workflow.Archive().Find(c.Request.Context(), buildQuery(q))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result.Docs, pagination)
}

// Update applies an editorial save guarded by If-Match.
func (h *ArchiveHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var updates models.Doc
	if err := c.ShouldBindJSON(&updates); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid update payload"))
		return
	}

	updated, err := h.workflow.Update(c.Request.Context(), c.Param("id"), updates, workflow.UpdateOptions{
		UserID:  claims.UserID,
		SignOff: claims.SignOff,
		ETag:    ifMatch(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Document(c, http.StatusOK, updated)
}

// Delete removes an item guarded by If-Match.
func (h *ArchiveHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	archive := h.workflow.Archive()
	doc, err := archive.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := archive.Delete(c.Request.Context(), doc, ifMatch(c)); err != nil {
		response.Error(c, err)
		return
	}
	h.history.DeleteForItem(c.Request.Context(), doc.ID())
	response.NoContent(c)
}

// Versions lists the full version history of an item.
func (h *ArchiveHandler) Versions(c *gin.Context) {
	archive := h.workflow.Archive()
	records, err := archive.Versions().ListVersions(c.Request.Context(), archive.Name(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Version returns one version snapshot.
func (h *ArchiveHandler) Version(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		response.Error(c, appErrors.Clone(appErrors.ErrBadRequest, "version must be a positive integer"))
		return
	}
	archive := h.workflow.Archive()
	record, err := archive.Versions().GetVersion(c.Request.Context(), archive.Name(), c.Param("id"), version)
	if err != nil {
		response.Error(c, appErrors.ErrNotFound)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// History lists the audit trail of an item.
func (h *ArchiveHandler) History(c *gin.Context) {
	entries, err := h.history.ListForItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Chain returns the ordered rewrite chain of an item including
// translations.
func (h *ArchiveHandler) Chain(c *gin.Context) {
	archive := h.workflow.Archive()
	item, err := archive.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	chain, err := h.workflow.ItemsChain(c.Request.Context(), item)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, chain, nil)
}

func buildQuery(q dto.ListQuery) store.Query {
	conds := make([]store.Cond, 0, 5)
	if q.Desk != "" {
		conds = append(conds, store.Eq(models.FieldTask+"."+models.TaskDesk, q.Desk))
	}
	if q.Stage != "" {
		conds = append(conds, store.Eq(models.FieldTask+"."+models.TaskStage, q.Stage))
	}
	if q.State != "" {
		states := strings.Split(q.State, ",")
		values := make([]interface{}, len(states))
		for i, s := range states {
			values[i] = strings.TrimSpace(s)
		}
		conds = append(conds, store.In(models.FieldState, values...))
	}
	if q.ItemType != "" {
		conds = append(conds, store.Eq(models.FieldType, q.ItemType))
	}
	if q.Slugline != "" {
		conds = append(conds, store.Eq(models.FieldSlugline, q.Slugline))
	}

	query := store.Query{Page: q.Page, PageSize: q.MaxResults}
	if len(conds) > 0 {
		query.Where = store.And(conds...)
	}
	if q.Sort != "" {
		for _, field := range strings.Split(q.Sort, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			sf := store.SortField{Field: field}
			if strings.HasPrefix(field, "-") {
				sf = store.SortField{Field: field[1:], Desc: true}
			}
			query.Sort = append(query.Sort, sf)
		}
	}
	if q.Projection != "" {
		query.Projection = &store.Projection{Include: splitFields(q.Projection)}
	}
	return query
}

func splitFields(raw string) []string {
	parts := strings.Split(raw, ",")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			fields = append(fields, p)
		}
	}
	return fields
}
