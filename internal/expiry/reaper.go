package expiry

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opennewsroom/newsdesk-api/internal/audit"
	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/notify"
	"github.com/opennewsroom/newsdesk-api/internal/packages"
	"github.com/opennewsroom/newsdesk-api/internal/published"
	"github.com/opennewsroom/newsdesk-api/internal/resource"
	"github.com/opennewsroom/newsdesk-api/internal/store"
)

// ArchivedChecker confirms an item has been durably archived by the
// legal archive before the reaper may remove it.
type ArchivedChecker interface {
	IsArchived(ctx context.Context, itemID string) (bool, error)
}

// AlwaysArchived approves every item; used where no legal archive is
// deployed.
type AlwaysArchived struct{}

// IsArchived implements ArchivedChecker.
func (AlwaysArchived) IsArchived(context.Context, string) (bool, error) { return true, nil }

// Stats summarizes one sweep.
type Stats struct {
	Examined int
	Removed  int
	Invalid  int
	Skipped  bool
}

// Reaper sweeps expired items out of the archive.
type Reaper struct {
	archive   *resource.Service
	published *published.Service
	history   *audit.History
	filters   *resource.Service
	archived  store.DocumentStore
	checker   ArchivedChecker
	notify    notify.Publisher
	lease     *Lease
	batchSize int
	logger    *zap.Logger
}

// NewReaper wires the reaper.
func NewReaper(
	archive *resource.Service,
	pub *published.Service,
	history *audit.History,
	filters *resource.Service,
	archived store.DocumentStore,
	checker ArchivedChecker,
	publisher notify.Publisher,
	lease *Lease,
	batchSize int,
	logger *zap.Logger,
) *Reaper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = notify.Nop{}
	}
	if checker == nil {
		checker = AlwaysArchived{}
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Reaper{
		archive:   archive,
		published: pub,
		history:   history,
		filters:   filters,
		archived:  archived,
		checker:   checker,
		notify:    publisher,
		lease:     lease,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run executes one sweep under the distributed lease. When the lease is
// already held the sweep is skipped entirely, never queued. Per-item
// failures are logged and do not abort the sweep.
func (r *Reaper) Run(ctx context.Context) (Stats, error) {
	stats := Stats{}
	if r.lease != nil {
		ok, err := r.lease.Acquire(ctx)
		if err != nil {
			return stats, err
		}
		if !ok {
			stats.Skipped = true
			r.logger.Info("expiry sweep skipped, lease held elsewhere")
			return stats, nil
		}
		defer func() {
			if err := r.lease.Release(ctx); err != nil {
				r.logger.Warn("lease release failed", zap.Error(err))
			}
		}()
	}

	now := models.FormatTime(time.Now())
	archiveFilters, err := r.archiveFilters(ctx)
	if err != nil {
		r.logger.Warn("archive filter load failed", zap.Error(err))
	}
	removable := newRemovableSet(r, now)

	cursor := 0
	for {
		// unique_id is the resumable cursor so the page walk tolerates
		// the deletes it performs itself.
		result, _, err := r.archive.Find(ctx, store.Query{
			Where: store.And(
				store.Exists(models.FieldExpiry),
				store.Lte(models.FieldExpiry, now),
				store.Ne(models.FieldState, string(models.StateScheduled)),
				store.Gt(models.FieldUniqueID, cursor),
			),
			Sort:     []store.SortField{{Field: models.FieldUniqueID}},
			PageSize: r.batchSize,
		})
		if err != nil {
			return stats, err
		}
		if len(result.Docs) == 0 {
			break
		}

		for _, item := range result.Docs {
			cursor = item.GetInt(models.FieldUniqueID)
			stats.Examined++
			r.reapItem(ctx, item, archiveFilters, removable, &stats)
		}
		if len(result.Docs) < r.batchSize {
			break
		}
	}
	return stats, nil
}

func (r *Reaper) reapItem(ctx context.Context, item models.Doc, filters []models.Doc, removable *removableSet, stats *Stats) {
	id := item.ID()
	state := models.ItemState(item)

	// Spiked content is swept without cascade or archive confirmation.
	if state == models.StateSpiked {
		if r.removeItem(ctx, item, false) {
			stats.Removed++
		}
		return
	}

	if state != models.StateKilled && state != models.StateRecalled {
		if !removable.canRemove(ctx, id) {
			return
		}
	}

	archived, err := r.checker.IsArchived(ctx, id)
	if err != nil || !archived {
		if err != nil {
			r.logger.Warn("archive confirmation failed", zap.String("item", id), zap.Error(err))
		} else {
			r.logger.Warn("item not confirmed archived, retrying next sweep", zap.String("item", id))
		}
		if _, err := r.archive.SystemUpdate(ctx, id, models.Doc{
			models.FieldExpiryStatus: models.ExpiryStatusInvalid,
		}); err != nil {
			r.logger.Warn("invalid marking failed", zap.String("item", id), zap.Error(err))
		}
		stats.Invalid++
		return
	}

	// Killed content is never copied to the archived collection.
	keepCopy := state != models.StateKilled && state != models.StateRecalled && !matchesAnyFilter(item, filters)
	if r.removeItem(ctx, item, keepCopy) {
		stats.Removed++
	}
}

// removeItem deletes one item and its satellites: published copies,
// version history and audit history. When keepCopy is set the published
// history is copied into the archived collection first.
func (r *Reaper) removeItem(ctx context.Context, item models.Doc, keepCopy bool) bool {
	id := item.ID()

	if keepCopy {
		if err := r.copyToArchived(ctx, item); err != nil {
			r.logger.Warn("archived copy failed, item retained", zap.String("item", id), zap.Error(err))
			return false
		}
	}

	if _, err := r.published.DeleteCopies(ctx, id); err != nil {
		r.logger.Warn("published cleanup failed", zap.String("item", id), zap.Error(err))
	}
	if err := r.archive.Delete(ctx, item, ""); err != nil {
		r.logger.Warn("archive delete failed", zap.String("item", id), zap.Error(err))
		return false
	}
	r.history.DeleteForItem(ctx, id)

	r.notify.Push(ctx, "item:expired", map[string]interface{}{
		"item":  id,
		"state": item.GetString(models.FieldState),
	})
	return true
}

// copyToArchived moves the item's published history into the archived
// collection, or the archive document itself when it was never
// published.
func (r *Reaper) copyToArchived(ctx context.Context, item models.Doc) error {
	copies, err := r.published.CopiesOf(ctx, item.ID())
	if err != nil {
		return err
	}
	if len(copies) == 0 {
		copies = []models.Doc{item}
	}
	for _, copy := range copies {
		record := copy.Clone()
		record[models.FieldItemID] = item.ID()
		record[models.FieldID] = uuid.NewString()
		record.Remove(models.FieldUniqueID)
		if _, err := r.archived.Insert(ctx, models.ResourceArchived, record); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reaper) archiveFilters(ctx context.Context) ([]models.Doc, error) {
	if r.filters == nil {
		return nil, nil
	}
	result, _, err := r.filters.Find(ctx, store.Query{
		Where:    store.Eq(models.FieldIsArchivedFilter, true),
		PageSize: 200,
	})
	if err != nil {
		return nil, err
	}
	return result.Docs, nil
}

// matchesAnyFilter reports whether the item matches one of the archive
// filters; matching items are dropped without an archived-collection
// copy.
func matchesAnyFilter(item models.Doc, filters []models.Doc) bool {
	for _, filter := range filters {
		conditions := filter.GetList(models.FieldFilterConditions)
		if len(conditions) == 0 {
			continue
		}
		matched := true
		for _, raw := range conditions {
			cond, ok := raw.(map[string]interface{})
			if !ok || !matchesCondition(item, models.Doc(cond)) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func matchesCondition(item models.Doc, cond models.Doc) bool {
	field := cond.GetString(models.FilterCondField)
	want := cond[models.FilterCondValue]
	switch cond.GetString(models.FilterCondOperator) {
	case "eq", "":
		return store.Eq(field, want).Matches(item)
	case "ne":
		return store.Ne(field, want).Matches(item)
	case "in":
		list, _ := want.([]interface{})
		return store.In(field, list...).Matches(item)
	case "like":
		value, _ := store.Lookup(item, field)
		got, _ := value.(string)
		pattern, _ := want.(string)
		return pattern != "" && strings.Contains(strings.ToLower(got), strings.ToLower(pattern))
	case "notlike":
		value, _ := store.Lookup(item, field)
		got, _ := value.(string)
		pattern, _ := want.(string)
		return pattern == "" || !strings.Contains(strings.ToLower(got), strings.ToLower(pattern))
	}
	return false
}

// removableSet is the memoized depth-first closure deciding whether an
// item and everything it references may be removed.
type removableSet struct {
	reaper *Reaper
	now    time.Time
	memo   map[string]bool
}

func newRemovableSet(r *Reaper, now string) *removableSet {
	parsed, _ := models.ParseTime(now)
	return &removableSet{reaper: r, now: parsed, memo: map[string]bool{}}
}

func (s *removableSet) canRemove(ctx context.Context, id string) bool {
	return s.walk(ctx, id, map[string]struct{}{})
}

func (s *removableSet) walk(ctx context.Context, id string, visiting map[string]struct{}) bool {
	if decided, ok := s.memo[id]; ok {
		return decided
	}
	// A cycle member defers to the rest of the cycle; its own expiry was
	// already checked on entry.
	if _, ok := visiting[id]; ok {
		return true
	}
	visiting[id] = struct{}{}

	item, err := s.reaper.archive.FindOne(ctx, store.Eq(models.FieldID, id))
	if err != nil {
		// Already gone; nothing blocks removal.
		s.memo[id] = true
		return true
	}

	decided := s.isExpired(item)
	if decided {
		for _, refID := range s.references(item) {
			if !s.walk(ctx, refID, visiting) {
				decided = false
				break
			}
		}
	}
	delete(visiting, id)
	s.memo[id] = decided
	return decided
}

func (s *removableSet) isExpired(item models.Doc) bool {
	if models.ItemState(item) == models.StateScheduled {
		return false
	}
	expiry, ok := item.GetTime(models.FieldExpiry)
	return ok && !expiry.After(s.now)
}

// references collects every item the given one is tied to: package
// members, broadcast relations, rewrite-chain neighbours and the
// packages referencing it back.
func (s *removableSet) references(item models.Doc) []string {
	refs := make([]string, 0)
	if models.IsPackage(item) {
		refs = append(refs, packages.ReferencedIDs(item)...)
	}
	if broadcast := item.GetDoc(models.FieldBroadcast); broadcast != nil {
		if masterID := broadcast.GetString("master_id"); masterID != "" {
			refs = append(refs, masterID)
		}
	}
	if id := item.GetString(models.FieldRewriteOf); id != "" {
		refs = append(refs, id)
	}
	if id := item.GetString(models.FieldRewrittenBy); id != "" {
		refs = append(refs, id)
	}
	refs = append(refs, packages.LinkedPackageIDs(item, false)...)
	return refs
}
