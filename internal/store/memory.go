package store

import (
	"context"
	"sort"
	"sync"

	"github.com/opennewsroom/newsdesk-api/internal/models"
)

// MemoryStore is an in-process DocumentStore used in tests and as a
// fallback when Postgres is not configured.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]models.Doc
	uniqueSeq   int64
}

// NewMemoryStore builds an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]models.Doc)}
}

func (s *MemoryStore) collection(name string) map[string]models.Doc {
	col, ok := s.collections[name]
	if !ok {
		col = make(map[string]models.Doc)
		s.collections[name] = col
	}
	return col
}

// Insert stores a new document, assigning unique_id when absent.
func (s *MemoryStore) Insert(ctx context.Context, collection string, doc models.Doc) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := doc.ID()
	col := s.collection(collection)
	if _, exists := col[id]; exists {
		return "", ErrDuplicate
	}
	if !doc.Has(models.FieldUniqueID) {
		s.uniqueSeq++
		doc[models.FieldUniqueID] = int(s.uniqueSeq)
	}
	col[id] = doc.Clone()
	return id, nil
}

// FindByID returns a copy of the stored document.
func (s *MemoryStore) FindByID(ctx context.Context, collection, id string) (models.Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if doc, ok := s.collections[collection][id]; ok {
		return doc.Clone(), nil
	}
	return nil, ErrNotFound
}

// FindOne returns the first matching document in unique_id order.
func (s *MemoryStore) FindOne(ctx context.Context, collection string, where Cond) (models.Doc, error) {
	result, err := s.Find(ctx, collection, Query{Where: where, PageSize: 1})
	if err != nil {
		return nil, err
	}
	if len(result.Docs) == 0 {
		return nil, ErrNotFound
	}
	return result.Docs[0], nil
}

// Find evaluates the neutral query against the collection.
func (s *MemoryStore) Find(ctx context.Context, collection string, q Query) (*Result, error) {
	s.mu.RLock()
	matched := make([]models.Doc, 0)
	for _, doc := range s.collections[collection] {
		if q.Where.Matches(doc) {
			matched = append(matched, doc.Clone())
		}
	}
	s.mu.RUnlock()

	sortDocs(matched, q.Sort)
	total := len(matched)
	matched = paginate(matched, q.Page, q.PageSize)
	return &Result{Docs: matched, Total: total}, nil
}

// Replace swaps the stored document, honouring the etag guard.
func (s *MemoryStore) Replace(ctx context.Context, collection, id string, doc models.Doc, ifETag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collection(collection)
	current, ok := col[id]
	if !ok {
		return ErrNotFound
	}
	if ifETag != "" && current.GetString(models.FieldETag) != ifETag {
		return ErrPrecondition
	}
	col[id] = doc.Clone()
	return nil
}

// Delete removes the document.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collection(collection)
	if _, ok := col[id]; !ok {
		return ErrNotFound
	}
	delete(col, id)
	return nil
}

// DeleteWhere removes every matching document and returns the count.
func (s *MemoryStore) DeleteWhere(ctx context.Context, collection string, where Cond) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collection(collection)
	removed := 0
	for id, doc := range col {
		if where.Matches(doc) {
			delete(col, id)
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of matching documents.
func (s *MemoryStore) Count(ctx context.Context, collection string, where Cond) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, doc := range s.collections[collection] {
		if where.Matches(doc) {
			count++
		}
	}
	return count, nil
}

// MemoryIndex is an in-process SearchIndex implementing the same neutral
// query surface as an external engine. It stands in for the excluded
// search collaborator and is swappable behind the SearchIndex interface.
type MemoryIndex struct {
	mu          sync.RWMutex
	collections map[string]map[string]models.Doc
}

// NewMemoryIndex builds an empty in-memory search index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{collections: make(map[string]map[string]models.Doc)}
}

// Index upserts a document into the index.
func (s *MemoryIndex) Index(ctx context.Context, collection string, doc models.Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[collection]
	if !ok {
		col = make(map[string]models.Doc)
		s.collections[collection] = col
	}
	col[doc.ID()] = doc.Clone()
	return nil
}

// Remove deletes a document from the index. Removing an absent document
// is not an error: index writes are best-effort and may have been lost.
func (s *MemoryIndex) Remove(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections[collection], id)
	return nil
}

// Get returns an indexed document.
func (s *MemoryIndex) Get(ctx context.Context, collection, id string) (models.Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if doc, ok := s.collections[collection][id]; ok {
		return doc.Clone(), nil
	}
	return nil, ErrNotFound
}

// Search evaluates the neutral query against the index.
func (s *MemoryIndex) Search(ctx context.Context, collection string, q Query) (*Result, error) {
	s.mu.RLock()
	matched := make([]models.Doc, 0)
	for _, doc := range s.collections[collection] {
		if q.Where.Matches(doc) {
			matched = append(matched, doc.Clone())
		}
	}
	s.mu.RUnlock()

	sortDocs(matched, q.Sort)
	total := len(matched)
	matched = paginate(matched, q.Page, q.PageSize)
	return &Result{Docs: matched, Total: total}, nil
}

func sortDocs(docs []models.Doc, fields []SortField) {
	if len(fields) == 0 {
		fields = []SortField{{Field: models.FieldID}}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			av, _ := Lookup(docs[i], f.Field)
			bv, _ := Lookup(docs[j], f.Field)
			cmp, ok := compareValues(av, bv)
			if !ok || cmp == 0 {
				continue
			}
			if f.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func paginate(docs []models.Doc, page, size int) []models.Doc {
	if size <= 0 {
		return docs
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start >= len(docs) {
		return nil
	}
	end := start + size
	if end > len(docs) {
		end = len(docs)
	}
	return docs[start:end]
}
