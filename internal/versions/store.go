// Package versions maintains the append-only version history of mutable
// resources: one snapshot per (document id, version number), written
// after every successful create/update and removed only when the owning
// document is hard-deleted.
package versions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/store"
)

// FieldDocumentID links a version record back to its owning document.
const FieldDocumentID = "_id_document"

// Store writes version snapshots into a <resource>_versions collection on
// the document store. Version collections are never indexed for search.
type Store struct {
	docs   store.DocumentStore
	logger *zap.Logger
}

// NewStore builds a version store on top of the document store.
func NewStore(docs store.DocumentStore, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{docs: docs, logger: logger}
}

func collection(resource string) string {
	return resource + "_versions"
}

// RecordVersion appends a full snapshot of the document at its current
// version. The (document id, version) pair is unique; recording the same
// version twice fails with store.ErrDuplicate.
func (s *Store) RecordVersion(ctx context.Context, resource string, doc models.Doc) error {
	version := doc.GetInt(models.FieldCurrentVersion)
	if version <= 0 {
		return fmt.Errorf("record version: document %s has no version", doc.ID())
	}

	existing, err := s.docs.FindOne(ctx, collection(resource), store.And(
		store.Eq(FieldDocumentID, doc.ID()),
		store.Eq(models.FieldCurrentVersion, version),
	))
	if err == nil && existing != nil {
		return store.ErrDuplicate
	}

	record := doc.Clone()
	record[FieldDocumentID] = doc.ID()
	record[models.FieldID] = uuid.NewString()
	if _, err := s.docs.Insert(ctx, collection(resource), record); err != nil {
		// The unique index on (document id, version) catches the race a
		// concurrent writer wins between the lookup above and this insert.
		if errors.Is(err, store.ErrDuplicate) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("record version %d of %s: %w", version, doc.ID(), err)
	}
	return nil
}

// GetVersion fetches one snapshot.
func (s *Store) GetVersion(ctx context.Context, resource, documentID string, version int) (models.Doc, error) {
	return s.docs.FindOne(ctx, collection(resource), store.And(
		store.Eq(FieldDocumentID, documentID),
		store.Eq(models.FieldCurrentVersion, version),
	))
}

// ListVersions returns every snapshot of a document in ascending version
// order.
func (s *Store) ListVersions(ctx context.Context, resource, documentID string) ([]models.Doc, error) {
	result, err := s.docs.Find(ctx, collection(resource), store.Query{
		Where: store.Eq(FieldDocumentID, documentID),
		Sort:  []store.SortField{{Field: models.FieldCurrentVersion}},
	})
	if err != nil {
		return nil, err
	}
	return result.Docs, nil
}

// DuplicateVersions copies the full history of oldID onto the new
// document's identity, preserving version numbers, then appends one
// record for the new document's own current state. Returns the number of
// records written.
func (s *Store) DuplicateVersions(ctx context.Context, resource, oldID string, newDoc models.Doc) (int, error) {
	history, err := s.ListVersions(ctx, resource, oldID)
	if err != nil {
		return 0, err
	}

	written := 0
	for _, record := range history {
		copied := record.Clone()
		copied[models.FieldID] = uuid.NewString()
		copied[FieldDocumentID] = newDoc.ID()
		copied[models.FieldGUID] = newDoc.GetString(models.FieldGUID)
		if newDoc.Has(models.FieldUniqueID) {
			copied[models.FieldUniqueID] = newDoc[models.FieldUniqueID]
		}
		if newDoc.Has(models.FieldUniqueName) {
			copied[models.FieldUniqueName] = newDoc[models.FieldUniqueName]
		}
		if _, err := s.docs.Insert(ctx, collection(resource), copied); err != nil {
			return written, fmt.Errorf("duplicate version of %s: %w", oldID, err)
		}
		written++
	}

	// The owning service records the new document's current state on
	// insert; tolerate that snapshot already existing.
	if err := s.RecordVersion(ctx, resource, newDoc); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return written, nil
		}
		return written, err
	}
	return written + 1, nil
}

// DeleteVersions removes the entire history of a document. Partial
// deletion of individual versions is not supported.
func (s *Store) DeleteVersions(ctx context.Context, resource, documentID string) (int, error) {
	return s.docs.DeleteWhere(ctx, collection(resource), store.Eq(FieldDocumentID, documentID))
}
