// Package inheritance copies inheritable attribute values from products to
// their variants.
package inheritance

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/erp/channelsync/internal/domain/attribute"
	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/erp/channelsync/internal/domain/taxonomy"
	"github.com/erp/channelsync/internal/infrastructure/logger"
	"github.com/erp/channelsync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrUnknownAttribute is reported for requested keys with no definition
var ErrUnknownAttribute = errors.New("inheritance: unknown attribute key")

// ValueValidator checks a value against a channel attribute of the taxonomy cache
type ValueValidator interface {
	ValidateValue(ctx context.Context, accountID uuid.UUID, attributeKey, value string) ([]string, error)
}

// Options tune one inheritance run
type Options struct {
	// Force overwrites values set explicitly on the variant
	Force bool
	// DryRun reports decisions without writing
	DryRun bool
	// AttributeKeys limits the run; empty means every inheritable definition
	AttributeKeys []string
}

// Result lists the decisions taken for one variant, by attribute key
type Result struct {
	VariantID uuid.UUID           `json:"variant_id"`
	Inherited []string            `json:"inherited"`
	Skipped   []string            `json:"skipped"`
	Errors    map[string]string   `json:"errors,omitempty"`
	Invalid   map[string][]string `json:"invalid,omitempty"`
}

func newResult(variantID uuid.UUID) *Result {
	return &Result{
		VariantID: variantID,
		Inherited: []string{},
		Skipped:   []string{},
		Errors:    map[string]string{},
		Invalid:   map[string][]string{},
	}
}

func (r *Result) fail(key string, err error) {
	r.Errors[key] = err.Error()
}

// Engine decides and writes inherited values
type Engine struct {
	catalog     catalog.Reader
	definitions attribute.DefinitionRepository
	assignments attribute.AssignmentRepository
	taxonomy    ValueValidator
	txManager   shared.TxManager
	metrics     *telemetry.SyncMetrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewEngine creates a new Engine
func NewEngine(
	catalogReader catalog.Reader,
	definitions attribute.DefinitionRepository,
	assignments attribute.AssignmentRepository,
	txManager shared.TxManager,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		catalog:     catalogReader,
		definitions: definitions,
		assignments: assignments,
		txManager:   txManager,
		logger:      logger,
		now:         time.Now,
	}
}

// SetTaxonomyValidator enables channel rule checks for definitions bound to
// a taxonomy attribute
func (e *Engine) SetTaxonomyValidator(v ValueValidator) {
	e.taxonomy = v
}

// SetMetrics sets the metrics sink
func (e *Engine) SetMetrics(m *telemetry.SyncMetrics) {
	e.metrics = m
}

// definitionSet is the resolved list of definitions a run works on
type definitionSet struct {
	defs []*attribute.Definition
	// errors holds per-key problems found while resolving requested keys
	errors map[string]error
}

func (e *Engine) resolveDefinitions(ctx context.Context, keys []string) (*definitionSet, error) {
	set := &definitionSet{errors: map[string]error{}}

	if len(keys) == 0 {
		all, err := e.definitions.FindAll(ctx, true)
		if err != nil {
			return nil, fmt.Errorf("load definitions: %w", err)
		}
		for i := range all {
			if all[i].SupportsInheritance() {
				set.defs = append(set.defs, &all[i])
			}
		}
	} else {
		found, err := e.definitions.FindByKeys(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("load definitions: %w", err)
		}
		for _, key := range keys {
			def, ok := found[key]
			switch {
			case !ok:
				set.errors[key] = ErrUnknownAttribute
			case !def.SupportsInheritance():
				set.errors[key] = attribute.ErrDefinitionNotInheritable
			default:
				if !slices.Contains(set.defs, def) {
					set.defs = append(set.defs, def)
				}
			}
		}
	}

	sort.Slice(set.defs, func(i, j int) bool { return set.defs[i].Key < set.defs[j].Key })
	return set, nil
}

// InheritAttributesForVariant copies the product's inheritable values onto
// the variant. Values set explicitly on the variant win unless Force is set.
// Problems with single keys are reported in Result.Errors; the returned error
// is reserved for failures that stop the whole variant.
func (e *Engine) InheritAttributesForVariant(ctx context.Context, variantID uuid.UUID, opts Options) (*Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "inheritance", "inherit_variant",
		telemetry.WithAttribute("variant_id", variantID.String()),
	)
	defer span.End()

	variant, err := e.catalog.FindVariant(ctx, variantID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	set, err := e.resolveDefinitions(ctx, opts.AttributeKeys)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	var result *Result
	err = e.txManager.WithinTx(ctx, func(ctx context.Context) error {
		res, changes, err := e.plan(ctx, variant, set, opts)
		if err != nil {
			return err
		}
		if !opts.DryRun {
			if err := e.assignments.ApplyChanges(ctx, changes); err != nil {
				return fmt.Errorf("write inherited values: %w", err)
			}
		}
		result = res
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	e.record(ctx, result)
	telemetry.SetAttributes(span,
		"inherited", len(result.Inherited),
		"skipped", len(result.Skipped),
		"errors", len(result.Errors),
	)
	logger.FromContextOr(ctx, e.logger).Debug("Variant inheritance finished",
		zap.String("variant_id", variantID.String()),
		zap.Strings("inherited", result.Inherited),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("errors", len(result.Errors)),
		zap.Bool("dry_run", opts.DryRun),
	)
	return result, nil
}

// plan reads the product and variant assignments and returns the decisions
// plus the writes that carry them out
func (e *Engine) plan(ctx context.Context, variant *catalog.Variant, set *definitionSet, opts Options) (*Result, attribute.ChangeSet, error) {
	res := newResult(variant.ID)
	var changes attribute.ChangeSet

	for key, err := range set.errors {
		res.fail(key, err)
	}
	if len(set.defs) == 0 {
		return res, changes, nil
	}

	parents, err := e.assignments.FindByOwner(ctx, variant.ParentRef())
	if err != nil {
		return nil, changes, fmt.Errorf("load product values: %w", err)
	}
	own, err := e.assignments.FindByOwner(ctx, variant.Ref())
	if err != nil {
		return nil, changes, fmt.Errorf("load variant values: %w", err)
	}
	parentSlots := bySlot(parents)
	ownSlots := bySlot(own)

	now := e.now()
	for _, def := range set.defs {
		sources := parentSlots[def.ID]
		if len(sources) == 0 || !sources[0].HasValue() {
			continue
		}
		if len(sources) > 1 {
			res.fail(def.Key, fmt.Errorf("product: %w", attribute.ErrAmbiguousAssignment))
			continue
		}
		existing := ownSlots[def.ID]
		if len(existing) > 1 {
			res.fail(def.Key, attribute.ErrAmbiguousAssignment)
			continue
		}

		source := sources[0]
		var target *attribute.Assignment
		if len(existing) == 1 {
			target = existing[0]
			if upToDate(target, source, opts.Force) {
				res.Skipped = append(res.Skipped, def.Key)
				continue
			}
		} else {
			target, err = attribute.NewAssignment(variant.Ref(), def.ID, "")
			if err != nil {
				res.fail(def.Key, err)
				continue
			}
		}

		violations, err := e.validate(ctx, def, source.Value)
		if err != nil {
			res.fail(def.Key, err)
			continue
		}
		target.InheritFrom(source)
		target.RecordValidation(violations, now)
		changes.Save = append(changes.Save, target)

		res.Inherited = append(res.Inherited, def.Key)
		if len(violations) > 0 {
			res.Invalid[def.Key] = violations
		}
	}
	return res, changes, nil
}

// upToDate reports whether the variant's current assignment must be left alone
func upToDate(current, source *attribute.Assignment, force bool) bool {
	if !current.IsInherited {
		return current.HasValue() && !force
	}
	return current.InSyncWith(source) &&
		current.SourceAssignmentID != nil && *current.SourceAssignmentID == source.ID
}

// validate applies the definition's rules and, for definitions mirroring a
// channel attribute, the channel's rules
func (e *Engine) validate(ctx context.Context, def *attribute.Definition, value string) ([]string, error) {
	violations := def.Check(value)
	if e.taxonomy == nil || !def.MirrorsTaxonomy() {
		return violations, nil
	}

	channelViolations, err := e.taxonomy.ValidateValue(ctx, *def.TaxonomyAccountID, def.TaxonomyKey, value)
	switch {
	case errors.Is(err, taxonomy.ErrAttributeNotFound):
		return append(violations, fmt.Sprintf("channel attribute %s is not published", def.TaxonomyKey)), nil
	case err != nil:
		return nil, fmt.Errorf("channel rules: %w", err)
	}
	for _, v := range channelViolations {
		if !slices.Contains(violations, v) {
			violations = append(violations, v)
		}
	}
	return violations, nil
}

func (e *Engine) record(ctx context.Context, res *Result) {
	e.metrics.RecordInheritance(ctx, "inherited", len(res.Inherited))
	e.metrics.RecordInheritance(ctx, "skipped", len(res.Skipped))
	e.metrics.RecordInheritance(ctx, "invalid", len(res.Invalid))
	e.metrics.RecordInheritance(ctx, "error", len(res.Errors))
}

func bySlot(rows []attribute.Assignment) map[uuid.UUID][]*attribute.Assignment {
	slots := make(map[uuid.UUID][]*attribute.Assignment, len(rows))
	for i := range rows {
		slots[rows[i].DefinitionID] = append(slots[rows[i].DefinitionID], &rows[i])
	}
	return slots
}
