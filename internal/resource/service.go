// Package resource implements the generic CRUD engine every registered
// resource builds on: etag-based optimistic concurrency, dual persistence
// through the document store and search index, lifecycle hook chains, and
// translation of the neutral query vocabulary.
package resource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/schema"
	"github.com/opennewsroom/newsdesk-api/internal/store"
	"github.com/opennewsroom/newsdesk-api/internal/versions"
	appErrors "github.com/opennewsroom/newsdesk-api/pkg/errors"
)

// Config declares one resource.
type Config struct {
	// Name is the collection name on both stores.
	Name string
	// Schema validates documents; nil disables validation.
	Schema *schema.Schema
	// Versioned resources get a snapshot per mutation.
	Versioned bool
	// ETagIgnore extends the default volatile-field ignore list.
	ETagIgnore []string
	// DefaultSort applies when a query specifies no sort.
	DefaultSort []store.SortField
	// DefaultPageSize caps unpaged finds.
	DefaultPageSize int
}

// Service is the generic resource engine.
type Service struct {
	cfg      Config
	store    *store.DualStore
	versions *versions.Store
	hooks    Hooks
	logger   *zap.Logger
}

// NewService builds a resource service. versionStore may be nil for
// unversioned resources.
func NewService(cfg Config, dual *store.DualStore, versionStore *versions.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 25
	}
	if len(cfg.DefaultSort) == 0 {
		cfg.DefaultSort = []store.SortField{{Field: models.FieldUniqueID}}
	}
	return &Service{cfg: cfg, store: dual, versions: versionStore, logger: logger.With(zap.String("resource", cfg.Name))}
}

// Name returns the resource name.
func (s *Service) Name() string { return s.cfg.Name }

// Hooks exposes the lifecycle hook registry for wiring-time registration.
func (s *Service) Hooks() *Hooks { return &s.hooks }

// Create persists the documents and returns their ids. Each document gets
// a generated id when missing, a fresh etag, and — for versioned
// resources — an initial version snapshot.
func (s *Service) Create(ctx context.Context, docs []models.Doc) ([]string, error) {
	now := models.FormatTime(time.Now())
	for _, doc := range docs {
		if doc.GetString(models.FieldID) == "" {
			doc[models.FieldID] = uuid.NewString()
		}
		if doc.GetString(models.FieldGUID) == "" {
			doc[models.FieldGUID] = doc.ID()
		}
		doc[models.FieldCreated] = now
		doc[models.FieldUpdated] = now
		if s.cfg.Versioned && doc.GetInt(models.FieldCurrentVersion) <= 0 {
			doc[models.FieldCurrentVersion] = 1
		}
	}

	if err := s.hooks.runPreCreate(ctx, docs); err != nil {
		return nil, err
	}

	for _, doc := range docs {
		if s.cfg.Schema != nil {
			if issues := s.cfg.Schema.Validate(doc); issues != nil {
				return nil, appErrors.Validation(issues)
			}
		}
		doc[models.FieldETag] = ETag(doc, s.cfg.ETagIgnore)
	}

	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		id, err := s.store.Insert(ctx, s.cfg.Name, doc)
		if err != nil {
			return ids, s.translate(err)
		}
		ids = append(ids, id)
		if err := s.recordVersion(ctx, doc); err != nil {
			return ids, err
		}
	}

	s.hooks.runPostCreate(ctx, docs)
	return ids, nil
}

// FindByID loads one document, echoing the current version into the
// read-only latest-version field.
func (s *Service) FindByID(ctx context.Context, id string) (models.Doc, error) {
	doc, err := s.store.FindByID(ctx, s.cfg.Name, id)
	if err != nil {
		return nil, s.translate(err)
	}
	if s.cfg.Versioned {
		doc[models.FieldLatestVersion] = doc.GetInt(models.FieldCurrentVersion)
	}
	return doc, nil
}

// FindOne queries the source of truth directly.
func (s *Service) FindOne(ctx context.Context, where store.Cond) (models.Doc, error) {
	doc, err := s.store.FindOne(ctx, s.cfg.Name, where)
	if err != nil {
		return nil, s.translate(err)
	}
	return doc, nil
}

// Update merges updates onto the stored document under optimistic
// concurrency. An empty etag skips the precondition check (trusted
// internal callers); hooks may mutate updates before the merge.
func (s *Service) Update(ctx context.Context, id string, updates models.Doc, etag string) (models.Doc, error) {
	original, err := s.store.FindOne(ctx, s.cfg.Name, store.Eq(models.FieldID, id))
	if err != nil {
		return nil, s.translate(err)
	}

	storedETag := original.GetString(models.FieldETag)
	if etag != "" && NormalizeETag(etag) != storedETag {
		return nil, appErrors.ErrPreconditionFailed
	}

	if err := s.hooks.runPreUpdate(ctx, updates, original); err != nil {
		return nil, err
	}

	if s.cfg.Schema != nil {
		if issues := s.cfg.Schema.ReadonlyViolations(original, updates); issues != nil {
			return nil, appErrors.Validation(issues)
		}
	}

	updated := original.Clone()
	updated.Apply(updates)
	if s.cfg.Schema != nil {
		if issues := s.cfg.Schema.Validate(updated); issues != nil {
			return nil, appErrors.Validation(issues)
		}
	}

	if s.cfg.Versioned {
		updated[models.FieldCurrentVersion] = original.GetInt(models.FieldCurrentVersion) + 1
	}
	updated[models.FieldUpdated] = models.FormatTime(time.Now())
	updated[models.FieldETag] = ETag(updated, s.cfg.ETagIgnore)

	// The stored etag guards the write itself so a concurrent update
	// cannot slip between the check above and the replace.
	if err := s.store.Replace(ctx, s.cfg.Name, id, updated, storedETag); err != nil {
		return nil, s.translate(err)
	}
	if err := s.recordVersion(ctx, updated); err != nil {
		return nil, err
	}

	s.hooks.runPostUpdate(ctx, updated, original)
	return updated, nil
}

// SystemUpdate applies an internal patch: no hooks, no schema
// validation, no version bump. Used for denormalized link maintenance
// where the edit is not an editorial action.
func (s *Service) SystemUpdate(ctx context.Context, id string, updates models.Doc) (models.Doc, error) {
	original, err := s.store.FindOne(ctx, s.cfg.Name, store.Eq(models.FieldID, id))
	if err != nil {
		return nil, s.translate(err)
	}

	updated := original.Clone()
	updated.Apply(updates)
	updated[models.FieldUpdated] = models.FormatTime(time.Now())
	updated[models.FieldETag] = ETag(updated, s.cfg.ETagIgnore)

	if err := s.store.Replace(ctx, s.cfg.Name, id, updated, ""); err != nil {
		return nil, s.translate(err)
	}
	return updated, nil
}

// Delete removes the document (and its version history) under the same
// etag precondition as Update.
func (s *Service) Delete(ctx context.Context, doc models.Doc, etag string) error {
	id := doc.ID()
	current, err := s.store.FindOne(ctx, s.cfg.Name, store.Eq(models.FieldID, id))
	if err != nil {
		return s.translate(err)
	}
	if etag != "" && NormalizeETag(etag) != current.GetString(models.FieldETag) {
		return appErrors.ErrPreconditionFailed
	}

	if err := s.hooks.runPreDelete(ctx, current); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, s.cfg.Name, id); err != nil {
		return s.translate(err)
	}
	if s.cfg.Versioned && s.versions != nil {
		if _, err := s.versions.DeleteVersions(ctx, s.cfg.Name, id); err != nil {
			s.logger.Warn("version cleanup failed", zap.String("id", id), zap.Error(err))
		}
	}

	s.hooks.runPostDelete(ctx, current)
	return nil
}

// DeleteWhere removes matching documents without hooks or etag checks;
// reserved for maintenance paths such as the expiry reaper.
func (s *Service) DeleteWhere(ctx context.Context, where store.Cond) (int, error) {
	return s.store.DeleteWhere(ctx, s.cfg.Name, where)
}

// Find runs the neutral query, applying default sort and page size,
// projecting fields, and computing pagination from the total count.
func (s *Service) Find(ctx context.Context, q store.Query) (*store.Result, *models.Pagination, error) {
	if len(q.Sort) == 0 {
		q.Sort = s.cfg.DefaultSort
	}
	if q.PageSize <= 0 {
		q.PageSize = s.cfg.DefaultPageSize
	}
	if q.Page < 1 {
		q.Page = 1
	}

	result, err := s.store.Find(ctx, s.cfg.Name, q)
	if err != nil {
		return nil, nil, s.translate(err)
	}

	if q.Projection != nil {
		for i, doc := range result.Docs {
			result.Docs[i] = applyProjection(doc, q.Projection)
		}
	}
	if s.cfg.Versioned {
		for _, doc := range result.Docs {
			if doc.Has(models.FieldCurrentVersion) {
				doc[models.FieldLatestVersion] = doc.GetInt(models.FieldCurrentVersion)
			}
		}
	}

	pagination := &models.Pagination{
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalCount: result.Total,
		Links:      buildPageLinks(s.cfg.Name, q.Page, q.PageSize, result.Total),
	}
	return result, pagination, nil
}

// Count counts matching documents.
func (s *Service) Count(ctx context.Context, where store.Cond) (int, error) {
	return s.store.Count(ctx, s.cfg.Name, where)
}

// Versions exposes the version store for this resource, nil when the
// resource is unversioned.
func (s *Service) Versions() *versions.Store {
	if !s.cfg.Versioned {
		return nil
	}
	return s.versions
}

// Reindex replays the source of truth into the search index.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	return s.store.Reindex(ctx, s.cfg.Name)
}

func (s *Service) recordVersion(ctx context.Context, doc models.Doc) error {
	if !s.cfg.Versioned || s.versions == nil {
		return nil
	}
	if err := s.versions.RecordVersion(ctx, s.cfg.Name, doc); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
			fmt.Sprintf("failed to record version of %s", doc.ID()))
	}
	return nil
}

func (s *Service) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return appErrors.ErrNotFound
	case errors.Is(err, store.ErrPrecondition):
		return appErrors.ErrPreconditionFailed
	case errors.Is(err, store.ErrDuplicate):
		return appErrors.Clone(appErrors.ErrConflict, "duplicate document id")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "store operation failed")
	}
}

// systemProjectionFields are always retained regardless of projection
// polarity.
var systemProjectionFields = []string{models.FieldID, models.FieldType, models.FieldETag}

func applyProjection(doc models.Doc, p *store.Projection) models.Doc {
	if p == nil || (len(p.Include) == 0 && len(p.Exclude) == 0) {
		return doc
	}
	if len(p.Include) > 0 {
		out := models.Doc{}
		for _, f := range p.Include {
			if v, ok := doc[f]; ok {
				out[f] = v
			}
		}
		for _, f := range systemProjectionFields {
			if v, ok := doc[f]; ok {
				out[f] = v
			}
		}
		return out
	}
	out := doc.Clone()
	for _, f := range p.Exclude {
		if isSystem(f) {
			continue
		}
		delete(out, f)
	}
	return out
}

func isSystem(field string) bool {
	for _, f := range systemProjectionFields {
		if f == field {
			return true
		}
	}
	return false
}

func buildPageLinks(resource string, page, size, total int) *models.PageLinks {
	if size <= 0 {
		return nil
	}
	last := (total + size - 1) / size
	if last < 1 {
		last = 1
	}
	link := func(p int) string {
		return fmt.Sprintf("%s?page=%d&max_results=%d", resource, p, size)
	}
	links := &models.PageLinks{Self: link(page), Last: link(last)}
	if page > 1 {
		links.Prev = link(page - 1)
	}
	if page < last {
		links.Next = link(page + 1)
	}
	return links
}
