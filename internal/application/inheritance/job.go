package inheritance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/erp/channelsync/internal/infrastructure/logger"
	"github.com/erp/channelsync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultBatchSize is the number of variants committed per transaction
	DefaultBatchSize = 500
	jobName          = "inheritance"
)

// Scope selects the variants and attributes of a sync job. Products expand
// to their variants; with neither products nor variants every variant is
// processed.
type Scope struct {
	ProductIDs    []uuid.UUID
	VariantIDs    []uuid.UUID
	AttributeKeys []string
}

// JobOptions tune a sync job
type JobOptions struct {
	BatchSize int
	DryRun    bool
	Force     bool
}

// ChunkFailure reports a chunk whose writes were rolled back
type ChunkFailure struct {
	Index      int         `json:"index"`
	VariantIDs []uuid.UUID `json:"variant_ids"`
	Error      string      `json:"error"`
}

// JobResult aggregates the per-variant results of a sync job
type JobResult struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
	DryRun     bool          `json:"dry_run"`

	Variants  int `json:"variants"`
	Chunks    int `json:"chunks"`
	Inherited int `json:"inherited"`
	Skipped   int `json:"skipped"`
	Invalid   int `json:"invalid"`
	Errors    int `json:"errors"`

	// Details keeps the results of variants that had errors or invalid values
	Details      []*Result      `json:"details,omitempty"`
	FailedChunks []ChunkFailure `json:"failed_chunks,omitempty"`
	// Cancelled is set when the context ended before every chunk ran
	Cancelled bool `json:"cancelled"`
}

// HasFailures reports whether any chunk was rolled back or the job stopped early
func (r *JobResult) HasFailures() bool {
	return len(r.FailedChunks) > 0 || r.Cancelled
}

func (r *JobResult) merge(results []*Result) {
	for _, res := range results {
		r.Variants++
		r.Inherited += len(res.Inherited)
		r.Skipped += len(res.Skipped)
		r.Invalid += len(res.Invalid)
		r.Errors += len(res.Errors)
		if len(res.Errors) > 0 || len(res.Invalid) > 0 {
			r.Details = append(r.Details, res)
		}
	}
}

// SyncJob runs the engine over many variants, one transaction per chunk
type SyncJob struct {
	engine *Engine
}

// NewSyncJob creates a new SyncJob
func NewSyncJob(engine *Engine) *SyncJob {
	return &SyncJob{engine: engine}
}

// Run resolves the scope and processes it chunk by chunk. Unknown product,
// variant or attribute identifiers fail the job before any work starts.
// A chunk that fails is rolled back and reported; later chunks still run.
// Cancellation is honored between chunks.
func (j *SyncJob) Run(ctx context.Context, scope Scope, opts JobOptions) (*JobResult, error) {
	e := j.engine
	start := e.now()
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	ctx = logger.WithJobID(logger.WithContext(ctx, logger.FromContextOr(ctx, e.logger)), uuid.NewString())
	ctx, span := telemetry.StartServiceSpan(ctx, jobName, "run",
		telemetry.WithAttribute("dry_run", opts.DryRun),
		telemetry.WithAttribute("batch_size", batchSize),
	)
	defer span.End()
	log := logger.L(ctx).With(zap.String("job", jobName))

	set, err := e.resolveDefinitions(ctx, scope.AttributeKeys)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	for key, keyErr := range set.errors {
		if errors.Is(keyErr, ErrUnknownAttribute) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAttribute, key)
		}
	}

	next, err := j.chunks(ctx, scope, batchSize)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	result := &JobResult{StartedAt: start, DryRun: opts.DryRun}
	engineOpts := Options{Force: opts.Force, DryRun: opts.DryRun, AttributeKeys: scope.AttributeKeys}
	for index := 0; ; index++ {
		if ctx.Err() != nil {
			result.Cancelled = true
			log.Warn("Inheritance job cancelled", zap.Int("chunks_done", result.Chunks))
			break
		}
		ids, err := next(ctx)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if len(ids) == 0 {
			break
		}

		results, err := j.runChunk(ctx, ids, set, engineOpts)
		result.Chunks++
		if err != nil {
			log.Error("Inheritance chunk rolled back",
				zap.Int("chunk", index),
				zap.Int("variants", len(ids)),
				zap.Error(err),
			)
			result.FailedChunks = append(result.FailedChunks, ChunkFailure{
				Index:      index,
				VariantIDs: ids,
				Error:      err.Error(),
			})
			continue
		}
		result.merge(results)
		for _, res := range results {
			e.record(ctx, res)
		}
	}

	result.FinishedAt = e.now()
	result.Duration = result.FinishedAt.Sub(start)
	e.metrics.RecordJob(ctx, jobName, result.Duration, nil)
	telemetry.SetAttributes(span,
		"variants", result.Variants,
		"inherited", result.Inherited,
		"failed_chunks", len(result.FailedChunks),
	)
	log.Info("Inheritance job finished",
		zap.Int("variants", result.Variants),
		zap.Int("chunks", result.Chunks),
		zap.Int("inherited", result.Inherited),
		zap.Int("skipped", result.Skipped),
		zap.Int("invalid", result.Invalid),
		zap.Int("errors", result.Errors),
		zap.Int("failed_chunks", len(result.FailedChunks)),
		zap.Bool("dry_run", opts.DryRun),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// runChunk plans and writes every variant of the chunk in one transaction
func (j *SyncJob) runChunk(ctx context.Context, ids []uuid.UUID, set *definitionSet, opts Options) ([]*Result, error) {
	e := j.engine
	var results []*Result
	err := e.txManager.WithinTx(ctx, func(ctx context.Context) error {
		variants, err := e.catalog.FindVariantsByIDs(ctx, ids)
		if err != nil {
			return err
		}
		results = make([]*Result, 0, len(variants))
		for i := range variants {
			res, changes, err := e.plan(ctx, &variants[i], set, opts)
			if err != nil {
				return fmt.Errorf("variant %s: %w", variants[i].SKU, err)
			}
			if !opts.DryRun {
				if err := e.assignments.ApplyChanges(ctx, changes); err != nil {
					return fmt.Errorf("variant %s: %w", variants[i].SKU, err)
				}
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// chunks returns a function yielding the next batch of variant IDs, or an
// empty batch when the scope is exhausted
func (j *SyncJob) chunks(ctx context.Context, scope Scope, batchSize int) (func(context.Context) ([]uuid.UUID, error), error) {
	cat := j.engine.catalog

	if len(scope.ProductIDs) == 0 && len(scope.VariantIDs) == 0 {
		cursor := shared.FirstPage(batchSize)
		done := false
		return func(ctx context.Context) ([]uuid.UUID, error) {
			if done {
				return nil, nil
			}
			ids, err := cat.ListVariantIDs(ctx, cursor)
			if err != nil {
				return nil, fmt.Errorf("list variants: %w", err)
			}
			if len(ids) < batchSize {
				done = true
			}
			if len(ids) > 0 {
				cursor = cursor.Next(ids[len(ids)-1])
			}
			return ids, nil
		}, nil
	}

	if err := requireExisting(ctx, cat, catalog.EntityKindProduct, scope.ProductIDs, catalog.ErrProductNotFound); err != nil {
		return nil, err
	}
	if err := requireExisting(ctx, cat, catalog.EntityKindVariant, scope.VariantIDs, catalog.ErrVariantNotFound); err != nil {
		return nil, err
	}

	ids := slices.Clone(scope.VariantIDs)
	if len(scope.ProductIDs) > 0 {
		variants, err := cat.FindVariantsByProducts(ctx, scope.ProductIDs)
		if err != nil {
			return nil, fmt.Errorf("expand products: %w", err)
		}
		for _, v := range variants {
			ids = append(ids, v.ID)
		}
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
	ids = slices.Compact(ids)

	return func(context.Context) ([]uuid.UUID, error) {
		n := min(batchSize, len(ids))
		batch := ids[:n]
		ids = ids[n:]
		return batch, nil
	}, nil
}

func requireExisting(ctx context.Context, cat catalog.Reader, kind catalog.EntityKind, ids []uuid.UUID, notFound error) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := cat.ExistingIDs(ctx, kind, ids)
	if err != nil {
		return err
	}
	var missing []string
	for _, id := range ids {
		if !found[id] {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", notFound, missing)
	}
	return nil
}

