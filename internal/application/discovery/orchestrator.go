// Package discovery refreshes the taxonomy cache of every channel account
// from its channel's discovery adapter.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apptaxonomy "github.com/erp/channelsync/internal/application/taxonomy"
	"github.com/erp/channelsync/internal/domain/channel"
	"github.com/erp/channelsync/internal/domain/taxonomy"
	"github.com/erp/channelsync/internal/infrastructure/logger"
	"github.com/erp/channelsync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultFreshnessWindow skips accounts discovered within the last 30 days
	DefaultFreshnessWindow = 30 * 24 * time.Hour
	defaultMaxConcurrency  = 4
	jobName                = "discovery"
)

// EntryUpserter is the part of the taxonomy store discovery writes through
type EntryUpserter interface {
	UpsertEntries(ctx context.Context, accountID uuid.UUID, entries []taxonomy.Entry) (*apptaxonomy.UpsertResult, error)
}

// Options scope one discovery run
type Options struct {
	// AccountIDs limits the run; empty means every active account
	AccountIDs []uuid.UUID
	// Force ignores the freshness window
	Force bool
}

// Config tunes the orchestrator
type Config struct {
	FreshnessWindow time.Duration
	MaxConcurrency  int
}

// Orchestrator runs discovery across channel accounts
type Orchestrator struct {
	accounts channel.AccountRepository
	store    EntryUpserter
	adapters map[channel.Type]Adapter
	config   Config
	metrics  *telemetry.SyncMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(
	accounts channel.AccountRepository,
	store EntryUpserter,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = DefaultFreshnessWindow
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	return &Orchestrator{
		accounts: accounts,
		store:    store,
		adapters: make(map[channel.Type]Adapter),
		config:   cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterAdapter sets the adapter used for accounts of channelType
func (o *Orchestrator) RegisterAdapter(channelType channel.Type, adapter Adapter) {
	o.adapters[channelType] = adapter
}

// SetMetrics enables metric recording
func (o *Orchestrator) SetMetrics(m *telemetry.SyncMetrics) {
	o.metrics = m
}

// Run discovers every account in scope. Unknown account ids fail before any
// work starts; failures of individual accounts are isolated and reported in
// the summary.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Summary, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, jobName, "run",
		telemetry.WithAttribute("force", opts.Force))
	defer span.End()

	accounts, err := o.resolveAccounts(ctx, opts.AccountIDs)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	started := o.now()
	log := logger.FromContextOr(ctx, o.logger)
	log.Info("Starting discovery",
		zap.Int("accounts", len(accounts)),
		zap.Bool("force", opts.Force),
		zap.Int("max_concurrency", o.config.MaxConcurrency),
	)

	results := make([]AccountResult, len(accounts))
	var g errgroup.Group
	g.SetLimit(o.config.MaxConcurrency)
	for i := range accounts {
		g.Go(func() error {
			results[i] = o.discoverAccount(ctx, accounts[i], opts.Force)
			return nil
		})
	}
	_ = g.Wait()

	summary := buildSummary(started, o.now(), opts.Force, results)

	var runErr error
	if summary.HasFailures() {
		runErr = fmt.Errorf("%d of %d accounts failed", summary.Failed, len(accounts))
	}
	o.metrics.RecordJob(ctx, jobName, summary.Duration, runErr)
	telemetry.SetAttributes(span,
		"successful", summary.Successful,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)

	log.Info("Discovery finished",
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("fields", summary.Totals.Fields),
		zap.Int("values", summary.Totals.Values),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

func (o *Orchestrator) resolveAccounts(ctx context.Context, ids []uuid.UUID) ([]channel.Account, error) {
	if len(ids) == 0 {
		return o.accounts.FindActive(ctx)
	}

	found, err := o.accounts.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	known := make(map[uuid.UUID]bool, len(found))
	for i := range found {
		known[found[i].ID] = true
	}
	var missing []string
	for _, id := range ids {
		if !known[id] {
			missing = append(missing, id.String())
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", channel.ErrAccountNotFound, strings.Join(missing, ", "))
	}
	return found, nil
}

func (o *Orchestrator) discoverAccount(ctx context.Context, account channel.Account, force bool) AccountResult {
	start := o.now()
	result := o.refreshAccount(ctx, account, force, start)
	result.Duration = o.now().Sub(start)
	o.metrics.RecordDiscoveryAccount(ctx, account.Type.String(), string(result.Status))
	return result
}

func (o *Orchestrator) refreshAccount(ctx context.Context, account channel.Account, force bool, start time.Time) AccountResult {
	result := AccountResult{
		AccountID:   account.ID,
		AccountName: account.Name,
		ChannelType: account.Type,
	}

	ctx = logger.WithAccount(logger.WithContext(ctx, logger.FromContextOr(ctx, o.logger)), account.ID.String(), account.Name)
	ctx, span := telemetry.StartServiceSpan(ctx, jobName, "account",
		telemetry.WithAttribute(string(telemetry.AttrAccountID), account.ID.String()),
		telemetry.WithAttribute(string(telemetry.AttrChannelType), account.Type.String()),
	)
	defer span.End()
	log := logger.L(ctx)

	fail := func(err error) AccountResult {
		telemetry.RecordError(span, err)
		log.Warn("Discovery failed", zap.Error(err))
		result.Status = StatusFailed
		result.Error = err.Error()
		return result
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if !account.IsActive {
		result.Status = StatusSkipped
		result.Reason = channel.ErrAccountInactive.Error()
		return result
	}
	if !force && !account.DiscoveryDue(start, o.config.FreshnessWindow) {
		result.Status = StatusSkipped
		result.Reason = "discovered within freshness window"
		log.Debug("Skipping fresh account", zap.Timep("last_discovered_at", account.LastDiscoveredAt))
		return result
	}

	adapter, ok := o.adapters[account.Type]
	if !ok {
		return fail(fmt.Errorf("no discovery adapter for channel type %s", account.Type))
	}

	callStart := o.now()
	payload, err := adapter.Discover(ctx, account)
	o.metrics.RecordAdapterCall(ctx, account.Type.String(), o.now().Sub(callStart), err)
	if err != nil {
		return fail(fmt.Errorf("discover: %w", err))
	}
	if payload == nil {
		return fail(errors.New("discover: adapter returned no payload"))
	}

	upsert, err := o.store.UpsertEntries(ctx, account.ID, payload.Entries())
	if err != nil {
		return fail(fmt.Errorf("upsert taxonomy: %w", err))
	}

	account.RecordDiscovery(o.now())
	if err := o.accounts.Save(ctx, &account); err != nil {
		return fail(fmt.Errorf("record discovery: %w", err))
	}

	result.Status = StatusSuccess
	result.Counts = payload.Count()
	result.Upsert = upsert
	result.Warnings = append(result.Warnings, payload.Warnings...)
	for _, sk := range upsert.Skipped {
		result.Warnings = append(result.Warnings, fmt.Sprintf("skipped %s/%s: %s", sk.Type, sk.ExternalID, sk.Reason))
	}
	return result
}
