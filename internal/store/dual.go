package store

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/opennewsroom/newsdesk-api/internal/models"
)

// DualStore mirrors every write to a document store and a search index.
// The document store is the source of truth; index writes are best-effort
// and logged, never propagated. Reads prefer the index for indexed
// collections, falling back to the document store on an index miss so a
// lagging index is not mistaken for a missing document.
type DualStore struct {
	docs    DocumentStore
	index   SearchIndex
	indexed map[string]bool
	logger  *zap.Logger
}

// NewDualStore wires the two sides together. index may be nil when no
// collection is indexed.
func NewDualStore(docs DocumentStore, index SearchIndex, indexedCollections []string, logger *zap.Logger) *DualStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	indexed := make(map[string]bool, len(indexedCollections))
	for _, c := range indexedCollections {
		indexed[c] = true
	}
	return &DualStore{docs: docs, index: index, indexed: indexed, logger: logger}
}

func (s *DualStore) hasIndex(collection string) bool {
	return s.index != nil && s.indexed[collection]
}

// Insert writes to the document store, then mirrors to the index.
func (s *DualStore) Insert(ctx context.Context, collection string, doc models.Doc) (string, error) {
	id, err := s.docs.Insert(ctx, collection, doc)
	if err != nil {
		return "", err
	}
	s.mirror(ctx, collection, doc)
	return id, nil
}

// Replace writes to the document store (conditionally when ifETag is
// set), then mirrors to the index.
func (s *DualStore) Replace(ctx context.Context, collection, id string, doc models.Doc, ifETag string) error {
	if err := s.docs.Replace(ctx, collection, id, doc, ifETag); err != nil {
		return err
	}
	s.mirror(ctx, collection, doc)
	return nil
}

// Delete removes the document from both sides.
func (s *DualStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.docs.Delete(ctx, collection, id); err != nil {
		return err
	}
	if s.hasIndex(collection) {
		if err := s.index.Remove(ctx, collection, id); err != nil {
			s.logger.Warn("index remove failed",
				zap.String("collection", collection), zap.String("id", id), zap.Error(err))
		}
	}
	return nil
}

// FindByID prefers the index for indexed collections; an index miss
// triggers the document-store fallback rather than a not-found.
func (s *DualStore) FindByID(ctx context.Context, collection, id string) (models.Doc, error) {
	if s.hasIndex(collection) {
		doc, err := s.index.Get(ctx, collection, id)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("index get failed, falling back",
				zap.String("collection", collection), zap.String("id", id), zap.Error(err))
		}
	}
	return s.docs.FindByID(ctx, collection, id)
}

// FindOne queries the document store directly; it is used by internal
// read-after-write paths that must see the source of truth.
func (s *DualStore) FindOne(ctx context.Context, collection string, where Cond) (models.Doc, error) {
	return s.docs.FindOne(ctx, collection, where)
}

// Find routes queries through the index when available.
func (s *DualStore) Find(ctx context.Context, collection string, q Query) (*Result, error) {
	if s.hasIndex(collection) {
		result, err := s.index.Search(ctx, collection, q)
		if err == nil {
			return result, nil
		}
		s.logger.Warn("index search failed, falling back",
			zap.String("collection", collection), zap.Error(err))
	}
	return s.docs.Find(ctx, collection, q)
}

// DeleteWhere removes matching documents from both sides.
func (s *DualStore) DeleteWhere(ctx context.Context, collection string, where Cond) (int, error) {
	if s.hasIndex(collection) {
		// Resolve ids first so the index can be purged after the primary delete.
		result, err := s.docs.Find(ctx, collection, Query{Where: where})
		if err != nil {
			return 0, err
		}
		removed, err := s.docs.DeleteWhere(ctx, collection, where)
		if err != nil {
			return removed, err
		}
		for _, doc := range result.Docs {
			if err := s.index.Remove(ctx, collection, doc.ID()); err != nil {
				s.logger.Warn("index remove failed",
					zap.String("collection", collection), zap.String("id", doc.ID()), zap.Error(err))
			}
		}
		return removed, nil
	}
	return s.docs.DeleteWhere(ctx, collection, where)
}

// Count counts against the document store.
func (s *DualStore) Count(ctx context.Context, collection string, where Cond) (int, error) {
	return s.docs.Count(ctx, collection, where)
}

// Reindex repairs index drift by replaying every document from the
// source of truth into the index. It is the reconciliation path for the
// best-effort mirroring above.
func (s *DualStore) Reindex(ctx context.Context, collection string) (int, error) {
	if !s.hasIndex(collection) {
		return 0, nil
	}
	const pageSize = 200
	total := 0
	for page := 1; ; page++ {
		result, err := s.docs.Find(ctx, collection, Query{
			Sort:     []SortField{{Field: models.FieldUniqueID}},
			Page:     page,
			PageSize: pageSize,
		})
		if err != nil {
			return total, err
		}
		if len(result.Docs) == 0 {
			return total, nil
		}
		for _, doc := range result.Docs {
			if err := s.index.Index(ctx, collection, doc); err != nil {
				return total, err
			}
			total++
		}
		if len(result.Docs) < pageSize {
			return total, nil
		}
	}
}

func (s *DualStore) mirror(ctx context.Context, collection string, doc models.Doc) {
	if !s.hasIndex(collection) {
		return
	}
	if err := s.index.Index(ctx, collection, doc); err != nil {
		s.logger.Warn("index write failed",
			zap.String("collection", collection), zap.String("id", doc.ID()), zap.Error(err))
	}
}
