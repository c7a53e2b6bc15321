package integrity

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/erp/channelsync/internal/domain/attribute"
	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/google/uuid"
)

const entityAssignment = "assignment"

func (v *Validator) deleteAssignments(ids ...uuid.UUID) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return v.assignments.Delete(ctx, ids...)
	}
}

func (v *Validator) definitionsOf(ctx context.Context, page []attribute.Assignment) (map[uuid.UUID]*attribute.Definition, error) {
	ids := make([]uuid.UUID, 0, len(page))
	for i := range page {
		if !slices.Contains(ids, page[i].DefinitionID) {
			ids = append(ids, page[i].DefinitionID)
		}
	}
	return v.definitions.FindByIDs(ctx, ids)
}

func (v *Validator) sourcesOf(ctx context.Context, page []attribute.Assignment) (map[uuid.UUID]*attribute.Assignment, error) {
	ids := make([]uuid.UUID, 0, len(page))
	for i := range page {
		if id := page[i].SourceAssignmentID; id != nil {
			ids = append(ids, *id)
		}
	}
	return v.assignments.FindByIDs(ctx, ids)
}

func keyOf(defs map[uuid.UUID]*attribute.Definition, id uuid.UUID) string {
	if d, ok := defs[id]; ok {
		return d.Key
	}
	return ""
}

// checkOrphanedAttributes flags assignments whose definition or owner is gone
func (v *Validator) checkOrphanedAttributes(ctx context.Context, batchSize int, emit emitFunc) error {
	return v.scanAssignments(ctx, attribute.Filter{}, batchSize, func(page []attribute.Assignment) error {
		defs, err := v.definitionsOf(ctx, page)
		if err != nil {
			return err
		}
		owners := map[catalog.EntityKind][]uuid.UUID{}
		for i := range page {
			owners[page[i].Owner.Kind] = append(owners[page[i].Owner.Kind], page[i].Owner.ID)
		}
		existing := map[catalog.EntityKind]map[uuid.UUID]bool{}
		for kind, ids := range owners {
			if !kind.IsValid() {
				existing[kind] = map[uuid.UUID]bool{}
				continue
			}
			if existing[kind], err = v.catalog.ExistingIDs(ctx, kind, ids); err != nil {
				return err
			}
		}

		for i := range page {
			a := &page[i]
			var reason string
			switch {
			case defs[a.DefinitionID] == nil:
				reason = fmt.Sprintf("definition %s no longer exists", a.DefinitionID)
			case !existing[a.Owner.Kind][a.Owner.ID]:
				reason = fmt.Sprintf("owner %s no longer exists", a.Owner)
			default:
				continue
			}
			emit((&Issue{
				Severity:     SeverityCritical,
				Entity:       entityAssignment,
				EntityID:     a.ID,
				AttributeKey: keyOf(defs, a.DefinitionID),
				Message:      reason,
			}).withFix(v.deleteAssignments(a.ID)))
		}
		return nil
	})
}

// checkOrphanedInheritance flags inherited assignments whose source is gone
func (v *Validator) checkOrphanedInheritance(ctx context.Context, batchSize int, emit emitFunc) error {
	return v.scanAssignments(ctx, attribute.Filter{InheritedOnly: true}, batchSize, func(page []attribute.Assignment) error {
		sources, err := v.sourcesOf(ctx, page)
		if err != nil {
			return err
		}
		defs, err := v.definitionsOf(ctx, page)
		if err != nil {
			return err
		}

		for i := range page {
			a := &page[i]
			var reason string
			switch {
			case a.SourceAssignmentID == nil:
				reason = "inherited value has no source"
			case sources[*a.SourceAssignmentID] == nil:
				reason = fmt.Sprintf("source assignment %s no longer exists", *a.SourceAssignmentID)
			case !sources[*a.SourceAssignmentID].Owner.IsProduct():
				reason = "source assignment is not a product value"
			case sources[*a.SourceAssignmentID].DefinitionID != a.DefinitionID:
				reason = "source assignment belongs to another attribute"
			default:
				continue
			}
			emit((&Issue{
				Severity:     SeverityWarning,
				Entity:       entityAssignment,
				EntityID:     a.ID,
				AttributeKey: keyOf(defs, a.DefinitionID),
				Message:      reason,
			}).withFix(v.deleteAssignments(a.ID)))
		}
		return nil
	})
}

// checkInvalidInheritance flags inherited values of definitions that no
// longer support inheritance
func (v *Validator) checkInvalidInheritance(ctx context.Context, batchSize int, emit emitFunc) error {
	return v.scanAssignments(ctx, attribute.Filter{InheritedOnly: true}, batchSize, func(page []attribute.Assignment) error {
		defs, err := v.definitionsOf(ctx, page)
		if err != nil {
			return err
		}
		for i := range page {
			a := &page[i]
			def := defs[a.DefinitionID]
			if def == nil || def.SupportsInheritance() {
				continue
			}
			id := a.ID
			emit((&Issue{
				Severity:     SeverityWarning,
				Entity:       entityAssignment,
				EntityID:     id,
				AttributeKey: def.Key,
				Message:      fmt.Sprintf("attribute %s does not support inheritance", def.Key),
			}).withFix(func(ctx context.Context) error {
				current, err := v.assignments.FindByID(ctx, id)
				if err != nil {
					return err
				}
				current.ClearInheritance()
				return v.assignments.Save(ctx, current)
			}))
		}
		return nil
	})
}

// checkDuplicateAssignments flags slots filled more than once. The most
// recently validated assignment wins; a tie between different values is
// ambiguous and left alone.
func (v *Validator) checkDuplicateAssignments(ctx context.Context, _ int, emit emitFunc) error {
	slots, err := v.assignments.FindDuplicateSlots(ctx, 0)
	if err != nil {
		return err
	}
	for _, slot := range slots {
		rows, err := v.assignments.FindBySlot(ctx, slot)
		if err != nil {
			return err
		}
		if len(rows) < 2 {
			continue
		}
		defs, err := v.definitionsOf(ctx, rows)
		if err != nil {
			return err
		}

		slices.SortStableFunc(rows, func(a, b attribute.Assignment) int {
			return attribute.MoreRecentlyValidated(&b, &a)
		})
		winner := rows[0]
		ambiguous := false
		var losers []uuid.UUID
		for _, other := range rows[1:] {
			if attribute.MoreRecentlyValidated(&winner, &other) == 0 && other.Value != winner.Value {
				ambiguous = true
			}
			losers = append(losers, other.ID)
		}

		issue := &Issue{
			Entity:       strings.ToLower(string(slot.Owner.Kind)),
			EntityID:     slot.Owner.ID,
			AttributeKey: keyOf(defs, slot.DefinitionID),
		}
		if ambiguous {
			issue.Severity = SeverityInfo
			issue.Message = fmt.Sprintf("%d assignments with no clear winner", len(rows))
			emit(issue)
			continue
		}
		issue.Severity = SeverityWarning
		issue.Message = fmt.Sprintf("%d assignments, keeping %q", len(rows), winner.Value)
		emit(issue.withFix(v.deleteAssignments(losers...)))
	}
	return nil
}

// checkInheritanceDrift flags inherited values that differ from their source
func (v *Validator) checkInheritanceDrift(ctx context.Context, batchSize int, emit emitFunc) error {
	filter := attribute.Filter{InheritedOnly: true, OwnerKind: catalog.EntityKindVariant}
	return v.scanAssignments(ctx, filter, batchSize, func(page []attribute.Assignment) error {
		sources, err := v.sourcesOf(ctx, page)
		if err != nil {
			return err
		}
		defs, err := v.definitionsOf(ctx, page)
		if err != nil {
			return err
		}
		for i := range page {
			a := &page[i]
			if a.SourceAssignmentID == nil {
				continue
			}
			source := sources[*a.SourceAssignmentID]
			def := defs[a.DefinitionID]
			if source == nil || def == nil || a.InSyncWith(source) {
				continue
			}
			variantID, key := a.Owner.ID, def.Key
			emit((&Issue{
				Severity:     SeverityWarning,
				Entity:       entityAssignment,
				EntityID:     a.ID,
				AttributeKey: key,
				Message:      fmt.Sprintf("inherited %q but the product now has %q", a.Value, source.Value),
			}).withFix(func(ctx context.Context) error {
				return v.reinherit(ctx, variantID, key)
			}))
		}
		return nil
	})
}

// checkMissingInheritance flags variants lacking a value their product
// could pass down
func (v *Validator) checkMissingInheritance(ctx context.Context, batchSize int, emit emitFunc) error {
	all, err := v.definitions.FindAll(ctx, true)
	if err != nil {
		return err
	}
	inheritable := map[uuid.UUID]*attribute.Definition{}
	for i := range all {
		if all[i].SupportsInheritance() {
			inheritable[all[i].ID] = &all[i]
		}
	}
	if len(inheritable) == 0 {
		return nil
	}

	cursor := shared.FirstPage(batchSize)
	for {
		ids, err := v.catalog.ListVariantIDs(ctx, cursor)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := v.missingInPage(ctx, ids, inheritable, emit); err != nil {
			return err
		}
		if len(ids) < batchSize {
			return nil
		}
		cursor = cursor.Next(ids[len(ids)-1])
	}
}

func (v *Validator) missingInPage(ctx context.Context, ids []uuid.UUID, inheritable map[uuid.UUID]*attribute.Definition, emit emitFunc) error {
	variants, err := v.catalog.FindVariantsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	var productIDs []uuid.UUID
	for i := range variants {
		if !slices.Contains(productIDs, variants[i].ProductID) {
			productIDs = append(productIDs, variants[i].ProductID)
		}
	}

	productValues, err := v.assignments.FindByOwners(ctx, catalog.EntityKindProduct, productIDs)
	if err != nil {
		return err
	}
	offered := map[uuid.UUID][]uuid.UUID{}
	for i := range productValues {
		a := &productValues[i]
		if inheritable[a.DefinitionID] != nil && a.HasValue() && !slices.Contains(offered[a.Owner.ID], a.DefinitionID) {
			offered[a.Owner.ID] = append(offered[a.Owner.ID], a.DefinitionID)
		}
	}

	variantValues, err := v.assignments.FindByOwners(ctx, catalog.EntityKindVariant, ids)
	if err != nil {
		return err
	}
	has := map[attribute.OwnerDefinition]bool{}
	for i := range variantValues {
		has[attribute.OwnerDefinition{Owner: variantValues[i].Owner, DefinitionID: variantValues[i].DefinitionID}] = true
	}

	for i := range variants {
		variant := &variants[i]
		if !variant.IsActive {
			continue
		}
		for _, defID := range offered[variant.ProductID] {
			if has[attribute.OwnerDefinition{Owner: variant.Ref(), DefinitionID: defID}] {
				continue
			}
			variantID, key := variant.ID, inheritable[defID].Key
			emit((&Issue{
				Severity:     SeverityInfo,
				Entity:       strings.ToLower(string(catalog.EntityKindVariant)),
				EntityID:     variantID,
				AttributeKey: key,
				Message:      fmt.Sprintf("variant %s can inherit %s from its product", variant.SKU, key),
			}).withFix(func(ctx context.Context) error {
				return v.reinherit(ctx, variantID, key)
			}))
		}
	}
	return nil
}
