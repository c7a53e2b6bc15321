// Package linkmigration moves the flat legacy product mappings into the
// hierarchical link registry.
package linkmigration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	applink "github.com/erp/channelsync/internal/application/link"
	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/erp/channelsync/internal/domain/channel"
	"github.com/erp/channelsync/internal/domain/link"
	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/erp/channelsync/internal/infrastructure/logger"
	"github.com/erp/channelsync/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultBatchSize is the number of mappings committed per transaction
	DefaultBatchSize = 200
	// MigratedBy is recorded as linked_by on links confirmed by the migration
	MigratedBy = "legacy-migration"
	jobName    = "link_migration"
)

// errDryRun rolls back a chunk that was only simulated
var errDryRun = errors.New("linkmigration: dry run")

// Outcome of one legacy mapping
type Outcome string

const (
	OutcomeMigrated  Outcome = "migrated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeConflict  Outcome = "conflict"
	OutcomeSkipped   Outcome = "skipped"
)

// Options scope one migration run
type Options struct {
	// AccountIDs limits the run; empty means every account
	AccountIDs []uuid.UUID
	BatchSize  int
	// DryRun runs every chunk and rolls it back
	DryRun bool
}

// Conflict is a mapping that could not be migrated without overwriting
// another binding
type Conflict struct {
	MappingID uuid.UUID `json:"mapping_id"`
	ProductID uuid.UUID `json:"product_id"`
	Reason    string    `json:"reason"`
}

// ChunkFailure is a chunk rolled back on an unexpected error
type ChunkFailure struct {
	MappingIDs []uuid.UUID `json:"mapping_ids"`
	Error      string      `json:"error"`
}

// AccountResult reports the migration of one account
type AccountResult struct {
	AccountID    uuid.UUID      `json:"account_id"`
	AccountName  string         `json:"account_name"`
	Mappings     int            `json:"mappings"`
	Migrated     int            `json:"migrated"`
	Unchanged    int            `json:"unchanged"`
	ProductLinks int            `json:"product_links_created"`
	VariantLinks int            `json:"variant_links_written"`
	Placeholders int            `json:"placeholders_created"`
	Conflicts    []Conflict     `json:"conflicts,omitempty"`
	Warnings     []string       `json:"warnings,omitempty"`
	FailedChunks []ChunkFailure `json:"failed_chunks,omitempty"`
}

// Result reports a migration run
type Result struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Duration   time.Duration    `json:"duration"`
	DryRun     bool             `json:"dry_run"`
	Accounts   []*AccountResult `json:"accounts"`
	Mappings   int              `json:"mappings"`
	Migrated   int              `json:"migrated"`
	Conflicts  int              `json:"conflicts"`
	Failed     int              `json:"failed_chunks"`
}

// HasFailures reports whether a chunk was rolled back or a mapping conflicted
func (r *Result) HasFailures() bool {
	return r.Failed > 0 || r.Conflicts > 0
}

// Migrator migrates legacy mappings
type Migrator struct {
	accounts  channel.AccountRepository
	legacy    link.LegacyMappingRepository
	links     link.Repository
	catalog   catalog.Reader
	txManager shared.TxManager
	metrics   *telemetry.SyncMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewMigrator creates a new Migrator
func NewMigrator(
	accounts channel.AccountRepository,
	legacy link.LegacyMappingRepository,
	links link.Repository,
	catalogReader catalog.Reader,
	txManager shared.TxManager,
	logger *zap.Logger,
) *Migrator {
	return &Migrator{
		accounts:  accounts,
		legacy:    legacy,
		links:     links,
		catalog:   catalogReader,
		txManager: txManager,
		logger:    logger,
		now:       time.Now,
	}
}

// SetMetrics sets the metrics sink
func (m *Migrator) SetMetrics(metrics *telemetry.SyncMetrics) {
	m.metrics = metrics
}

// Run migrates the active legacy mappings of the selected accounts. Each
// chunk commits in one transaction. A mapping that would overwrite another
// binding is recorded as a conflict and left out; any other error rolls the
// chunk back. Running it again only fills in what is missing.
func (m *Migrator) Run(ctx context.Context, opts Options) (*Result, error) {
	accounts, err := m.resolveAccounts(ctx, opts.AccountIDs)
	if err != nil {
		return nil, err
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	ctx = logger.WithJobID(logger.WithContext(ctx, logger.FromContextOr(ctx, m.logger)), uuid.NewString())
	ctx, span := telemetry.StartServiceSpan(ctx, jobName, "run",
		telemetry.WithAttribute("dry_run", opts.DryRun),
		telemetry.WithAttribute("accounts", len(accounts)),
	)
	defer span.End()

	result := &Result{StartedAt: m.now(), DryRun: opts.DryRun}
	for i := range accounts {
		if ctx.Err() != nil {
			break
		}
		ar := m.migrateAccount(ctx, &accounts[i], batchSize, opts.DryRun)
		result.Accounts = append(result.Accounts, ar)
		result.Mappings += ar.Mappings
		result.Migrated += ar.Migrated
		result.Conflicts += len(ar.Conflicts)
		result.Failed += len(ar.FailedChunks)
	}

	result.FinishedAt = m.now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	m.metrics.RecordJob(ctx, jobName, result.Duration, nil)
	telemetry.SetAttributes(span,
		"mappings", result.Mappings,
		"migrated", result.Migrated,
		"conflicts", result.Conflicts,
	)
	logger.FromContext(ctx).Info("Legacy link migration finished",
		zap.Int("accounts", len(result.Accounts)),
		zap.Int("mappings", result.Mappings),
		zap.Int("migrated", result.Migrated),
		zap.Int("conflicts", result.Conflicts),
		zap.Int("failed_chunks", result.Failed),
		zap.Bool("dry_run", opts.DryRun),
	)
	return result, nil
}

func (m *Migrator) resolveAccounts(ctx context.Context, ids []uuid.UUID) ([]channel.Account, error) {
	if len(ids) == 0 {
		return m.accounts.FindAll(ctx)
	}
	found, err := m.accounts.FindByIDs(ctx, ids)
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

func (m *Migrator) migrateAccount(ctx context.Context, account *channel.Account, batchSize int, dryRun bool) *AccountResult {
	ctx = logger.WithAccount(ctx, account.ID.String(), account.Name)
	log := logger.L(ctx)
	ar := &AccountResult{AccountID: account.ID, AccountName: account.Name}

	cursor := shared.FirstPage(batchSize)
	for ctx.Err() == nil {
		page, err := m.legacy.FindByAccount(ctx, account.ID, true, cursor)
		if err != nil {
			ar.FailedChunks = append(ar.FailedChunks, ChunkFailure{Error: err.Error()})
			log.Error("Failed to read legacy mappings", zap.Error(err))
			return ar
		}
		if len(page) == 0 {
			break
		}

		chunk := &AccountResult{}
		err = m.txManager.WithinTx(ctx, func(ctx context.Context) error {
			for i := range page {
				if err := m.migrateMapping(ctx, &page[i], chunk); err != nil {
					return fmt.Errorf("mapping %s: %w", page[i].ID, err)
				}
			}
			if dryRun {
				return errDryRun
			}
			return nil
		})
		switch {
		case err == nil || errors.Is(err, errDryRun):
			ar.merge(chunk)
		default:
			ids := make([]uuid.UUID, len(page))
			for i := range page {
				ids[i] = page[i].ID
			}
			ar.FailedChunks = append(ar.FailedChunks, ChunkFailure{MappingIDs: ids, Error: err.Error()})
			log.Error("Legacy mapping chunk rolled back", zap.Int("mappings", len(page)), zap.Error(err))
		}

		if len(page) < batchSize {
			break
		}
		cursor = cursor.Next(page[len(page)-1].ID)
	}

	log.Info("Account migrated",
		zap.Int("mappings", ar.Mappings),
		zap.Int("migrated", ar.Migrated),
		zap.Int("unchanged", ar.Unchanged),
		zap.Int("conflicts", len(ar.Conflicts)),
	)
	return ar
}

func (ar *AccountResult) merge(chunk *AccountResult) {
	ar.Mappings += chunk.Mappings
	ar.Migrated += chunk.Migrated
	ar.Unchanged += chunk.Unchanged
	ar.ProductLinks += chunk.ProductLinks
	ar.VariantLinks += chunk.VariantLinks
	ar.Placeholders += chunk.Placeholders
	ar.Conflicts = append(ar.Conflicts, chunk.Conflicts...)
	ar.Warnings = append(ar.Warnings, chunk.Warnings...)
}

// migrateMapping writes the links of one mapping inside a savepoint, so a
// conflict leaves the rest of the chunk intact
func (m *Migrator) migrateMapping(ctx context.Context, mapping *link.LegacyMapping, ar *AccountResult) error {
	ar.Mappings++

	var written mappingWrites
	err := m.txManager.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		written, err = m.writeLinks(ctx, mapping, ar)
		return err
	})

	outcome := OutcomeMigrated
	switch {
	case link.IsIntegrityError(err):
		outcome = OutcomeConflict
		ar.Conflicts = append(ar.Conflicts, Conflict{
			MappingID: mapping.ID,
			ProductID: mapping.LocalProductID,
			Reason:    err.Error(),
		})
	case errors.Is(err, catalog.ErrProductNotFound):
		outcome = OutcomeSkipped
		ar.Warnings = append(ar.Warnings, fmt.Sprintf("mapping %s: product %s no longer exists", mapping.ID, mapping.LocalProductID))
	case err != nil:
		return err
	case written.empty():
		outcome = OutcomeUnchanged
		ar.Unchanged++
	default:
		ar.Migrated++
		ar.VariantLinks += written.variants
		ar.Placeholders += written.placeholders
		if written.productCreated {
			ar.ProductLinks++
		}
	}
	m.metrics.RecordMigratedMapping(ctx, string(outcome))
	return nil
}

type mappingWrites struct {
	productCreated bool
	productChanged bool
	variants       int
	placeholders   int
}

func (w mappingWrites) empty() bool {
	return !w.productCreated && !w.productChanged && w.variants == 0 && w.placeholders == 0
}

func (m *Migrator) writeLinks(ctx context.Context, mapping *link.LegacyMapping, ar *AccountResult) (mappingWrites, error) {
	var written mappingWrites
	if _, err := m.catalog.FindProduct(ctx, mapping.LocalProductID); err != nil {
		return written, err
	}

	parent, created, err := m.productLink(ctx, mapping)
	if err != nil {
		return written, err
	}
	written.productCreated = created
	if created || parent.Metadata["legacy_mapping_id"] == nil {
		parent.Apply(link.Data{Metadata: legacyMetadata(mapping)})
		if err := m.links.Save(ctx, parent); err != nil {
			return written, err
		}
		written.productChanged = true
	}

	variants, err := m.writeVariantLinks(ctx, mapping, parent, ar)
	written.variants = variants
	if err != nil {
		return written, err
	}

	// active variants missing from the legacy sku list get placeholders
	if created {
		if written.placeholders, err = applink.FanOut(ctx, m.links, m.catalog, m.metrics, parent); err != nil {
			return written, fmt.Errorf("fan out variant links: %w", err)
		}
	}
	return written, nil
}

// writeVariantLinks writes the links of the mapping's active sku mappings
// and returns how many changed
func (m *Migrator) writeVariantLinks(ctx context.Context, mapping *link.LegacyMapping, parent *link.Link, ar *AccountResult) (int, error) {
	skus := mapping.ActiveSKUMappings()
	if len(skus) == 0 {
		return 0, nil
	}
	ids := make([]uuid.UUID, len(skus))
	for i, s := range skus {
		ids[i] = s.LocalVariantID
	}
	variants, err := m.catalog.FindVariantsByIDs(ctx, ids)
	if err != nil {
		return 0, err
	}
	known := make(map[uuid.UUID]*catalog.Variant, len(variants))
	for i := range variants {
		known[variants[i].ID] = &variants[i]
	}

	changed := 0
	for _, s := range skus {
		v := known[s.LocalVariantID]
		switch {
		case v == nil:
			ar.Warnings = append(ar.Warnings, fmt.Sprintf("mapping %s: variant %s no longer exists", mapping.ID, s.LocalVariantID))
			continue
		case v.ProductID != mapping.LocalProductID:
			return changed, &link.IntegrityError{
				Op:     "migrate mapping",
				LinkID: parent.ID,
				Reason: fmt.Sprintf("variant %s does not belong to product %s", v.SKU, mapping.LocalProductID),
			}
		}
		ok, err := m.variantLink(ctx, mapping, parent, v, s)
		if err != nil {
			return changed, err
		}
		if ok {
			changed++
		}
	}
	return changed, nil
}

// productLink returns the account's link for the mapped product, creating
// it with the legacy status when missing
func (m *Migrator) productLink(ctx context.Context, mapping *link.LegacyMapping) (*link.Link, bool, error) {
	bound, err := optional(m.links.FindByExternal(ctx, mapping.AccountID, link.LevelProduct, mapping.ExternalProductID))
	if err != nil {
		return nil, false, err
	}
	if bound != nil {
		if bound.Entity.ID != mapping.LocalProductID {
			return nil, false, &link.IntegrityError{
				Op:     "migrate mapping",
				LinkID: bound.ID,
				Reason: fmt.Sprintf("external product %s is bound to another product", mapping.ExternalProductID),
			}
		}
		return bound, false, nil
	}

	existing, err := optional(m.links.FindByEntity(ctx, mapping.AccountID, catalog.ProductRef(mapping.LocalProductID)))
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return nil, false, &link.IntegrityError{
			Op:     "migrate mapping",
			LinkID: existing.ID,
			Reason: fmt.Sprintf("product is already linked to %s", existing.ExternalProductID),
		}
	}

	l, err := link.NewProductLink(mapping.AccountID, mapping.LocalProductID, mapping.ExternalProductID)
	if err != nil {
		return nil, false, err
	}
	if err := m.applyLegacyStatus(l, mapping); err != nil {
		return nil, false, err
	}
	m.metrics.RecordLinkTransition(ctx, string(l.Level), string(l.Status))
	return l, true, nil
}

// variantLink writes the link of one SKU mapping and reports whether it changed
func (m *Migrator) variantLink(ctx context.Context, mapping *link.LegacyMapping, parent *link.Link, v *catalog.Variant, s link.SKUMapping) (bool, error) {
	bound, err := optional(m.links.FindByExternal(ctx, mapping.AccountID, link.LevelVariant, s.ExternalSKUID))
	if err != nil {
		return false, err
	}
	if bound != nil && bound.Entity.ID != v.ID {
		return false, &link.IntegrityError{
			Op:     "migrate mapping",
			LinkID: bound.ID,
			Reason: fmt.Sprintf("external sku %s is bound to another variant", s.ExternalSKUID),
		}
	}

	l := bound
	if l == nil {
		if l, err = optional(m.links.FindByEntity(ctx, mapping.AccountID, v.Ref())); err != nil {
			return false, err
		}
	}

	switch {
	case l == nil:
		if l, err = link.NewVariantLink(mapping.AccountID, v.ID, s.ExternalSKUID, parent); err != nil {
			return false, err
		}
		if err := m.applyLegacyStatus(l, mapping); err != nil {
			return false, err
		}
	case l.IsPlaceholder():
		if err := l.CheckParent(parent); err != nil {
			return false, err
		}
		l.Rebind(s.ExternalSKUID)
		l.SetParent(parent)
		if err := m.applyLegacyStatus(l, mapping); err != nil {
			return false, err
		}
	case l.ExternalVariantID != s.ExternalSKUID:
		return false, &link.IntegrityError{
			Op:     "migrate mapping",
			LinkID: l.ID,
			Reason: fmt.Sprintf("variant %s is already linked to %s", v.SKU, l.ExternalVariantID),
		}
	case l.ParentLinkID != nil && *l.ParentLinkID == parent.ID:
		return false, nil
	default:
		if err := l.CheckParent(parent); err != nil {
			return false, err
		}
		l.SetParent(parent)
	}

	if s.ExternalName != "" {
		l.Apply(link.Data{Metadata: map[string]any{"external_name": s.ExternalName}})
	}
	if err := m.links.Save(ctx, l); err != nil {
		return false, err
	}
	return true, nil
}

// applyLegacyStatus moves a fresh PENDING link to the status of the mapping
func (m *Migrator) applyLegacyStatus(l *link.Link, mapping *link.LegacyMapping) error {
	now := m.now()
	switch mapping.LastSyncStatus.LinkStatus() {
	case link.StatusLinked:
		at := now
		if mapping.LastSyncAt != nil {
			at = *mapping.LastSyncAt
		}
		if err := l.MarkStatus(link.StatusLinked, "", at); err != nil {
			return err
		}
		l.LinkedBy = MigratedBy
	case link.StatusFailed:
		return l.MarkStatus(link.StatusFailed, mapping.LastSyncError, now)
	}
	return nil
}

func legacyMetadata(mapping *link.LegacyMapping) map[string]any {
	md := map[string]any{"legacy_mapping_id": mapping.ID.String()}
	if mapping.ExternalProductName != "" {
		md["external_name"] = mapping.ExternalProductName
	}
	if mapping.ExternalCategoryID != "" {
		md["external_category_id"] = mapping.ExternalCategoryID
	}
	return md
}

func optional(l *link.Link, err error) (*link.Link, error) {
	if errors.Is(err, link.ErrLinkNotFound) {
		return nil, nil
	}
	return l, err
}
