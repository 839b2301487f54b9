// Package lock implements the pessimistic soft lock on editorial items:
// advisory lock_user/lock_session/lock_action/lock_time fields on the
// document, independent of the etag optimistic check. Locks have no
// automatic expiry; a crashed client leaves the lock held until a
// privileged user force-unlocks.
package lock

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/resource"
	"github.com/opennewsroom/newsdesk-api/internal/store"
	appErrors "github.com/opennewsroom/newsdesk-api/pkg/errors"
)

type notifier interface {
	Push(ctx context.Context, event string, payload map[string]interface{})
}

// Manager acquires and releases item locks through the archive resource
// service.
type Manager struct {
	archive *resource.Service
	notify  notifier
	logger  *zap.Logger
}

// NewManager builds a lock manager.
func NewManager(archive *resource.Service, notify notifier, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{archive: archive, notify: notify, logger: logger}
}

// Lock acquires the soft lock for (user, session, action). Re-locking by
// the same user in the same session refreshes the action; any other
// holder conflicts.
func (m *Manager) Lock(ctx context.Context, itemID, userID, sessionID, action string) (models.Doc, error) {
	item, err := m.archive.FindOne(ctx, resourceIDCond(itemID))
	if err != nil {
		return nil, err
	}

	holder := item.GetString(models.FieldLockUser)
	holderSession := item.GetString(models.FieldLockSession)
	if holder != "" && (holder != userID || holderSession != sessionID) {
		return nil, appErrors.Clone(appErrors.ErrLocked, "item is locked by another user or session")
	}
	if models.IsTerminal(models.ItemState(item)) {
		return nil, appErrors.Transition("lock", item.GetString(models.FieldState))
	}

	updated, err := m.archive.SystemUpdate(ctx, itemID, models.Doc{
		models.FieldLockUser:    userID,
		models.FieldLockSession: sessionID,
		models.FieldLockAction:  action,
		models.FieldLockTime:    models.FormatTime(time.Now()),
	})
	if err != nil {
		return nil, err
	}

	m.push(ctx, "item:lock", updated, userID)
	return updated, nil
}

// Unlock clears the lock. Only the holding user (same session) may
// unlock unless force is set, which is reserved for privileged callers.
func (m *Manager) Unlock(ctx context.Context, itemID, userID, sessionID string, force bool) (models.Doc, error) {
	item, err := m.archive.FindOne(ctx, resourceIDCond(itemID))
	if err != nil {
		return nil, err
	}

	holder := item.GetString(models.FieldLockUser)
	if holder == "" {
		return item, nil
	}
	if !force && (holder != userID || item.GetString(models.FieldLockSession) != sessionID) {
		return nil, appErrors.Clone(appErrors.ErrLocked, "item is locked by another user or session")
	}

	updated, err := m.archive.SystemUpdate(ctx, itemID, models.Doc{
		models.FieldLockUser:    nil,
		models.FieldLockSession: nil,
		models.FieldLockAction:  nil,
		models.FieldLockTime:    nil,
	})
	if err != nil {
		return nil, err
	}

	event := "item:unlock"
	if force {
		event = "item:unlock_force"
	}
	m.push(ctx, event, updated, userID)
	return updated, nil
}

// Guard verifies that the requesting user may edit the item. A lock held
// by a different user rejects the edit unless force is set.
func Guard(item models.Doc, userID string, force bool) error {
	holder := item.GetString(models.FieldLockUser)
	if holder == "" || holder == userID || force {
		return nil
	}
	return appErrors.Clone(appErrors.ErrLocked, "item is locked by another user")
}

// Clear returns the update payload that releases a lock; used by save
// paths that implicitly unlock.
func Clear() models.Doc {
	return models.Doc{
		models.FieldLockUser:    nil,
		models.FieldLockSession: nil,
		models.FieldLockAction:  nil,
		models.FieldLockTime:    nil,
	}
}

// IsLocked reports whether a lock is held by someone other than userID.
func IsLocked(item models.Doc, userID string) bool {
	holder := item.GetString(models.FieldLockUser)
	return holder != "" && holder != userID
}

func (m *Manager) push(ctx context.Context, event string, item models.Doc, userID string) {
	if m.notify == nil {
		return
	}
	m.notify.Push(ctx, event, map[string]interface{}{
		"item": item.ID(),
		"user": userID,
	})
}

func resourceIDCond(id string) store.Cond {
	return store.Eq(models.FieldID, id)
}
