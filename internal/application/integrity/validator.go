package integrity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/erp/channelsync/internal/application/inheritance"
	"github.com/erp/channelsync/internal/domain/attribute"
	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/erp/channelsync/internal/domain/link"
	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/erp/channelsync/internal/infrastructure/logger"
	"github.com/erp/channelsync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultBatchSize is the page size used to scan assignments and links
	DefaultBatchSize = 500
	jobName          = "integrity"
)

// ErrUnknownCheck is returned when Options names a check that does not exist
var ErrUnknownCheck = errors.New("integrity: unknown check")

// Inheritor re-runs inheritance for single attributes of a variant
type Inheritor interface {
	InheritAttributesForVariant(ctx context.Context, variantID uuid.UUID, opts inheritance.Options) (*inheritance.Result, error)
}

// Options tune one validator run
type Options struct {
	// Checks limits the run; empty means every check
	Checks []CheckID
	// MinSeverity drops issues below it from the report and from fixing
	MinSeverity Severity
	// Fix applies the fix of every fixable issue
	Fix       bool
	BatchSize int
}

// emitFunc hands a found issue to the run
type emitFunc func(issue *Issue)

// check is one registered check. Issues carry their own severity; the
// registered one is the highest a check reports.
type check struct {
	severity Severity
	run      func(v *Validator, ctx context.Context, batchSize int, emit emitFunc) error
}

var registry = map[CheckID]check{
	CheckOrphanedAttribute:       {severity: SeverityCritical, run: (*Validator).checkOrphanedAttributes},
	CheckOrphanedInheritance:     {severity: SeverityWarning, run: (*Validator).checkOrphanedInheritance},
	CheckInvalidInheritance:      {severity: SeverityWarning, run: (*Validator).checkInvalidInheritance},
	CheckDuplicateAssignment:     {severity: SeverityWarning, run: (*Validator).checkDuplicateAssignments},
	CheckInheritanceDrift:        {severity: SeverityWarning, run: (*Validator).checkInheritanceDrift},
	CheckMissingInheritance:      {severity: SeverityInfo, run: (*Validator).checkMissingInheritance},
	CheckLinkParentIntegrity:     {severity: SeverityCritical, run: (*Validator).checkLinkParents},
	CheckLinkedWithoutExternalID: {severity: SeverityCritical, run: (*Validator).checkLinkedWithoutExternalID},
}

// Validator runs the integrity checks
type Validator struct {
	catalog     catalog.Reader
	definitions attribute.DefinitionRepository
	assignments attribute.AssignmentRepository
	links       link.Repository
	inheritor   Inheritor
	txManager   shared.TxManager
	metrics     *telemetry.SyncMetrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewValidator creates a new Validator
func NewValidator(
	catalogReader catalog.Reader,
	definitions attribute.DefinitionRepository,
	assignments attribute.AssignmentRepository,
	links link.Repository,
	inheritor Inheritor,
	txManager shared.TxManager,
	logger *zap.Logger,
) *Validator {
	return &Validator{
		catalog:     catalogReader,
		definitions: definitions,
		assignments: assignments,
		links:       links,
		inheritor:   inheritor,
		txManager:   txManager,
		logger:      logger,
		now:         time.Now,
	}
}

// SetMetrics sets the metrics sink
func (v *Validator) SetMetrics(m *telemetry.SyncMetrics) {
	v.metrics = m
}

func resolveChecks(ids []CheckID) ([]CheckID, error) {
	if len(ids) == 0 {
		return slices.Clone(AllChecks), nil
	}
	for _, id := range ids {
		if _, ok := registry[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCheck, id)
		}
	}
	// keep the dependency order of AllChecks
	selected := make([]CheckID, 0, len(ids))
	for _, id := range AllChecks {
		if slices.Contains(ids, id) {
			selected = append(selected, id)
		}
	}
	return selected, nil
}

// Run executes the selected checks and, with Fix set, repairs what they
// find. Each fix runs in its own transaction; a failing fix is recorded on
// its issue and the run goes on. A check that cannot scan aborts the run.
func (v *Validator) Run(ctx context.Context, opts Options) (*Report, error) {
	checks, err := resolveChecks(opts.Checks)
	if err != nil {
		return nil, err
	}
	if opts.MinSeverity == "" {
		opts.MinSeverity = SeverityInfo
	}
	if !opts.MinSeverity.IsValid() {
		return nil, fmt.Errorf("integrity: unknown severity %q", opts.MinSeverity)
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	ctx = logger.WithJobID(logger.WithContext(ctx, logger.FromContextOr(ctx, v.logger)), uuid.NewString())
	ctx, span := telemetry.StartServiceSpan(ctx, jobName, "run",
		telemetry.WithAttribute("fix", opts.Fix),
		telemetry.WithAttribute("min_severity", string(opts.MinSeverity)),
	)
	defer span.End()
	log := logger.L(ctx).With(zap.String("job", jobName))

	report := newReport(checks, opts)
	report.StartedAt = v.now()

	for _, id := range checks {
		var found []*Issue
		emit := func(issue *Issue) {
			issue.Check = id
			if issue.Severity.AtLeast(opts.MinSeverity) {
				found = append(found, issue)
			}
		}
		if err := registry[id].run(v, ctx, batchSize, emit); err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("check %s: %w", id, err)
		}

		for _, issue := range found {
			report.add(issue)
			v.metrics.RecordIntegrityIssue(ctx, string(id), string(issue.Severity))
			if opts.Fix && issue.fix != nil {
				v.applyFix(ctx, report, issue)
			}
		}
		log.Debug("Check finished", zap.String("check", string(id)), zap.Int("issues", len(found)))
	}

	report.FinishedAt = v.now()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
	var runErr error
	if report.Failed() {
		runErr = errors.New("critical issues found")
	}
	v.metrics.RecordJob(ctx, jobName, report.Duration, runErr)
	telemetry.SetAttributes(span,
		"issues", len(report.Issues),
		"fixed", report.Fixed,
		"critical", report.BySeverity[SeverityCritical],
	)
	log.Info("Integrity check finished",
		zap.Int("issues", len(report.Issues)),
		zap.Int("fixed", report.Fixed),
		zap.Int("fix_failures", report.FixFailures),
		zap.Int("critical", report.BySeverity[SeverityCritical]),
		zap.Int("warning", report.BySeverity[SeverityWarning]),
		zap.Int("info", report.BySeverity[SeverityInfo]),
	)
	return report, nil
}

func (v *Validator) applyFix(ctx context.Context, report *Report, issue *Issue) {
	err := v.txManager.WithinTx(ctx, issue.fix)
	v.metrics.RecordIntegrityFix(ctx, string(issue.Check), err)
	if err != nil {
		issue.FixError = err.Error()
		report.FixFailures++
		logger.L(ctx).Warn("Fix failed",
			zap.String("check", string(issue.Check)),
			zap.String("entity_id", issue.EntityID.String()),
			zap.Error(err),
		)
		return
	}
	issue.Fixed = true
	report.Fixed++
}

// scanAssignments pages through assignments matching filter
func (v *Validator) scanAssignments(ctx context.Context, filter attribute.Filter, batchSize int, fn func(page []attribute.Assignment) error) error {
	cursor := shared.FirstPage(batchSize)
	for {
		page, err := v.assignments.Scan(ctx, filter, cursor)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		if len(page) < batchSize {
			return nil
		}
		cursor = cursor.Next(page[len(page)-1].ID)
	}
}

// scanLinks pages through links matching filter
func (v *Validator) scanLinks(ctx context.Context, filter link.Filter, batchSize int, fn func(page []link.Link) error) error {
	cursor := shared.FirstPage(batchSize)
	for {
		page, err := v.links.Scan(ctx, filter, cursor)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		if len(page) < batchSize {
			return nil
		}
		cursor = cursor.Next(page[len(page)-1].ID)
	}
}

// reinherit re-runs inheritance of one key for a variant and surfaces a
// per-key error as an error
func (v *Validator) reinherit(ctx context.Context, variantID uuid.UUID, key string) error {
	res, err := v.inheritor.InheritAttributesForVariant(ctx, variantID, inheritance.Options{AttributeKeys: []string{key}})
	if err != nil {
		return err
	}
	if msg, ok := res.Errors[key]; ok {
		return errors.New(msg)
	}
	if !slices.Contains(res.Inherited, key) && !slices.Contains(res.Skipped, key) {
		return fmt.Errorf("product has no value for %s", key)
	}
	return nil
}
