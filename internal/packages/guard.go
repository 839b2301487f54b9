// Package packages enforces the invariants of composite items: group
// shape, member eligibility, embargo restrictions, takes ordering, and
// the linked_in_packages back-references kept on every member.
package packages

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/opennewsroom/newsdesk-api/internal/models"
	"github.com/opennewsroom/newsdesk-api/internal/store"
	appErrors "github.com/opennewsroom/newsdesk-api/pkg/errors"
)

// maxPackageDepth bounds the nested-package walk; deeper graphs indicate
// corrupted reference data.
const maxPackageDepth = 50

type itemStore interface {
	FindOne(ctx context.Context, where store.Cond) (models.Doc, error)
	SystemUpdate(ctx context.Context, id string, updates models.Doc) (models.Doc, error)
}

// Guard validates package composition and maintains member backlinks.
type Guard struct {
	items  itemStore
	logger *zap.Logger
}

// NewGuard builds a composition guard over the archive resource.
func NewGuard(items itemStore, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{items: items, logger: logger}
}

// ReferencedIDs extracts the member item ids of a package in group order.
func ReferencedIDs(pkg models.Doc) []string {
	ids := make([]string, 0)
	for _, rawGroup := range pkg.GetList(models.FieldGroups) {
		group, ok := rawGroup.(map[string]interface{})
		if !ok {
			continue
		}
		for _, rawRef := range models.Doc(group).GetList(models.FieldRefs) {
			ref, ok := rawRef.(map[string]interface{})
			if !ok {
				continue
			}
			if id := models.Doc(ref).GetString(models.RefResidRef); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// ValidateContent rejects package-level content that composites must not
// carry: PSA/body footer text and embargo timestamps.
func ValidateContent(pkg models.Doc) error {
	if !models.IsPackage(pkg) {
		return nil
	}
	if pkg.GetString(models.FieldBodyFooter) != "" {
		return appErrors.Clone(appErrors.ErrBadRequest, "a package may not carry body footer content")
	}
	if pkg.Has(models.FieldEmbargo) {
		return appErrors.Clone(appErrors.ErrBadRequest, "a package may not be embargoed")
	}
	return nil
}

// ValidateComposition checks that every referenced member exists, is in
// an eligible state, is not embargoed, and that the reference graph is
// acyclic within the depth bound.
func (g *Guard) ValidateComposition(ctx context.Context, pkg models.Doc) error {
	if !models.IsPackage(pkg) {
		return nil
	}
	if err := ValidateContent(pkg); err != nil {
		return err
	}
	visited := map[string]struct{}{}
	if id := pkg.ID(); id != "" {
		visited[id] = struct{}{}
	}
	return g.validateMembers(ctx, pkg, visited, 0)
}

func (g *Guard) validateMembers(ctx context.Context, pkg models.Doc, visited map[string]struct{}, depth int) error {
	if depth >= maxPackageDepth {
		g.logger.Error("package reference graph exceeded depth bound", zap.String("package", pkg.ID()))
		return appErrors.Clone(appErrors.ErrBadRequest, "package reference graph is too deep or cyclic")
	}
	for _, memberID := range ReferencedIDs(pkg) {
		if _, seen := visited[memberID]; seen {
			return appErrors.Clone(appErrors.ErrBadRequest, fmt.Sprintf("circular package reference to %s", memberID))
		}
		visited[memberID] = struct{}{}

		member, err := g.items.FindOne(ctx, store.Eq(models.FieldID, memberID))
		if err != nil {
			return appErrors.Clone(appErrors.ErrBadRequest, fmt.Sprintf("package references missing item %s", memberID))
		}
		switch models.ItemState(member) {
		case models.StateSpiked:
			return appErrors.Clone(appErrors.ErrBadRequest, fmt.Sprintf("item %s is spiked and cannot be packaged", memberID))
		case models.StateKilled, models.StateRecalled:
			return appErrors.Clone(appErrors.ErrBadRequest, fmt.Sprintf("item %s is killed and cannot be packaged", memberID))
		}
		if member.Has(models.FieldEmbargo) {
			return appErrors.Clone(appErrors.ErrBadRequest, fmt.Sprintf("item %s is embargoed and cannot be packaged", memberID))
		}
		if models.IsPackage(member) {
			if err := g.validateMembers(ctx, member, visited, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// AddBacklinks stamps a linked_in_packages entry onto every member of
// the package. Backlink maintenance is best-effort denormalization.
func (g *Guard) AddBacklinks(ctx context.Context, pkg models.Doc) {
	pkgType := pkg.GetString(models.FieldPackageType)
	for _, memberID := range ReferencedIDs(pkg) {
		member, err := g.items.FindOne(ctx, store.Eq(models.FieldID, memberID))
		if err != nil {
			g.logger.Warn("backlink target missing", zap.String("item", memberID), zap.Error(err))
			continue
		}
		links := member.GetList(models.FieldLinkedInPackages)
		if containsPackageRef(links, pkg.ID()) {
			continue
		}
		entry := map[string]interface{}{"package": pkg.ID()}
		if pkgType != "" {
			entry["package_type"] = pkgType
		}
		links = append(links, entry)
		if _, err := g.items.SystemUpdate(ctx, memberID, models.Doc{models.FieldLinkedInPackages: links}); err != nil {
			g.logger.Warn("backlink update failed", zap.String("item", memberID), zap.Error(err))
		}
	}
}

// RemoveBacklinks strips the package's backlink from every member and
// returns the member ids that were unlinked.
func (g *Guard) RemoveBacklinks(ctx context.Context, pkg models.Doc) []string {
	unlinked := make([]string, 0)
	for _, memberID := range ReferencedIDs(pkg) {
		member, err := g.items.FindOne(ctx, store.Eq(models.FieldID, memberID))
		if err != nil {
			continue
		}
		links := member.GetList(models.FieldLinkedInPackages)
		filtered := make([]interface{}, 0, len(links))
		for _, raw := range links {
			if link, ok := raw.(map[string]interface{}); ok {
				if models.Doc(link).GetString("package") == pkg.ID() {
					continue
				}
			}
			filtered = append(filtered, raw)
		}
		if len(filtered) == len(links) {
			continue
		}
		var value interface{} = filtered
		if len(filtered) == 0 {
			value = nil
		}
		if _, err := g.items.SystemUpdate(ctx, memberID, models.Doc{models.FieldLinkedInPackages: value}); err != nil {
			g.logger.Warn("backlink removal failed", zap.String("item", memberID), zap.Error(err))
			continue
		}
		unlinked = append(unlinked, memberID)
	}
	return unlinked
}

// LinkedPackageIDs returns the package ids an item is referenced from,
// optionally filtered to non-takes packages.
func LinkedPackageIDs(item models.Doc, excludeTakes bool) []string {
	ids := make([]string, 0)
	for _, raw := range item.GetList(models.FieldLinkedInPackages) {
		link, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		doc := models.Doc(link)
		if excludeTakes && doc.GetString("package_type") == models.TakesPackage {
			continue
		}
		if id := doc.GetString("package"); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// TakesPackageOf resolves the takes package containing the item, nil
// when the item is not part of one.
func (g *Guard) TakesPackageOf(ctx context.Context, item models.Doc) (models.Doc, error) {
	for _, raw := range item.GetList(models.FieldLinkedInPackages) {
		link, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		doc := models.Doc(link)
		if doc.GetString("package_type") != models.TakesPackage {
			continue
		}
		pkg, err := g.items.FindOne(ctx, store.Eq(models.FieldID, doc.GetString("package")))
		if err != nil {
			return nil, err
		}
		return pkg, nil
	}
	return nil, nil
}

// TakeRefs returns the take references of a takes package ordered by
// sequence.
func TakeRefs(pkg models.Doc) []models.Doc {
	refs := make([]models.Doc, 0)
	for _, rawGroup := range pkg.GetList(models.FieldGroups) {
		group, ok := rawGroup.(map[string]interface{})
		if !ok || models.Doc(group).GetString("id") == models.GroupRoot {
			continue
		}
		for _, rawRef := range models.Doc(group).GetList(models.FieldRefs) {
			if ref, ok := rawRef.(map[string]interface{}); ok {
				refs = append(refs, models.Doc(ref))
			}
		}
	}
	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].GetInt(models.FieldSequence) < refs[j].GetInt(models.FieldSequence)
	})
	return refs
}

// IsLastTake reports whether the item is the final take of its takes
// package. Items outside any takes package are trivially last.
func (g *Guard) IsLastTake(ctx context.Context, item models.Doc) (bool, error) {
	pkg, err := g.TakesPackageOf(ctx, item)
	if err != nil {
		return false, err
	}
	if pkg == nil {
		return true, nil
	}
	refs := TakeRefs(pkg)
	if len(refs) == 0 {
		return true, nil
	}
	return refs[len(refs)-1].GetString(models.RefResidRef) == item.ID(), nil
}

// EmptyGroups produces the update payload that clears a package's
// composition; used when a package is spiked.
func EmptyGroups(pkg models.Doc) models.Doc {
	groups := pkg.GetList(models.FieldGroups)
	emptied := make([]interface{}, 0, len(groups))
	for _, rawGroup := range groups {
		group, ok := rawGroup.(map[string]interface{})
		if !ok {
			continue
		}
		cleared := models.Doc(group).Clone()
		cleared[models.FieldRefs] = []interface{}{}
		emptied = append(emptied, map[string]interface{}(cleared))
	}
	return models.Doc{models.FieldGroups: emptied}
}

func containsPackageRef(links []interface{}, pkgID string) bool {
	for _, raw := range links {
		if link, ok := raw.(map[string]interface{}); ok {
			if models.Doc(link).GetString("package") == pkgID {
				return true
			}
		}
	}
	return false
}
