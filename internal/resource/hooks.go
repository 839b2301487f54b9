package resource

import (
	"context"

	"github.com/opennewsroom/newsdesk-api/internal/models"
)

// PreCreateHook runs before documents are persisted and may mutate them.
type PreCreateHook func(ctx context.Context, docs []models.Doc) error

// PostCreateHook runs after documents are persisted.
type PostCreateHook func(ctx context.Context, docs []models.Doc)

// PreUpdateHook runs before an update is merged and persisted; it may
// mutate updates in place.
type PreUpdateHook func(ctx context.Context, updates, original models.Doc) error

// PostUpdateHook runs after the merged document is persisted.
type PostUpdateHook func(ctx context.Context, updated, original models.Doc)

// PreDeleteHook runs before a delete; returning an error aborts it.
type PreDeleteHook func(ctx context.Context, doc models.Doc) error

// PostDeleteHook runs after a delete.
type PostDeleteHook func(ctx context.Context, doc models.Doc)

// Hooks is an ordered set of lifecycle callbacks per event, invoked
// synchronously in registration order. It replaces ambient signal
// dispatch with explicit registration at wiring time.
type Hooks struct {
	preCreate  []PreCreateHook
	postCreate []PostCreateHook
	preUpdate  []PreUpdateHook
	postUpdate []PostUpdateHook
	preDelete  []PreDeleteHook
	postDelete []PostDeleteHook
}

// OnPreCreate appends a pre-create callback.
func (h *Hooks) OnPreCreate(fn PreCreateHook) { h.preCreate = append(h.preCreate, fn) }

// OnPostCreate appends a post-create callback.
func (h *Hooks) OnPostCreate(fn PostCreateHook) { h.postCreate = append(h.postCreate, fn) }

// OnPreUpdate appends a pre-update callback.
func (h *Hooks) OnPreUpdate(fn PreUpdateHook) { h.preUpdate = append(h.preUpdate, fn) }

// OnPostUpdate appends a post-update callback.
func (h *Hooks) OnPostUpdate(fn PostUpdateHook) { h.postUpdate = append(h.postUpdate, fn) }

// OnPreDelete appends a pre-delete callback.
func (h *Hooks) OnPreDelete(fn PreDeleteHook) { h.preDelete = append(h.preDelete, fn) }

// OnPostDelete appends a post-delete callback.
func (h *Hooks) OnPostDelete(fn PostDeleteHook) { h.postDelete = append(h.postDelete, fn) }

func (h *Hooks) runPreCreate(ctx context.Context, docs []models.Doc) error {
	for _, fn := range h.preCreate {
		if err := fn(ctx, docs); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hooks) runPostCreate(ctx context.Context, docs []models.Doc) {
	for _, fn := range h.postCreate {
		fn(ctx, docs)
	}
}

func (h *Hooks) runPreUpdate(ctx context.Context, updates, original models.Doc) error {
	for _, fn := range h.preUpdate {
		if err := fn(ctx, updates, original); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hooks) runPostUpdate(ctx context.Context, updated, original models.Doc) {
	for _, fn := range h.postUpdate {
		fn(ctx, updated, original)
	}
}

func (h *Hooks) runPreDelete(ctx context.Context, doc models.Doc) error {
	for _, fn := range h.preDelete {
		if err := fn(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hooks) runPostDelete(ctx context.Context, doc models.Doc) {
	for _, fn := range h.postDelete {
		fn(ctx, doc)
	}
}
