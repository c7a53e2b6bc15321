// Package taxonomy maintains the local cache of each channel account's
// external schema: categories, attributes and value lists.
package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/erp/channelsync/internal/domain/channel"
	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/erp/channelsync/internal/domain/taxonomy"
	"github.com/erp/channelsync/internal/infrastructure/logger"
	"github.com/erp/channelsync/internal/infrastructure/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultStaleAfter   = 30 * 24 * time.Hour
	defaultValueListTTL = time.Hour
)

// Store is the taxonomy application service
type Store struct {
	accounts   channel.AccountRepository
	entries    taxonomy.EntryRepository
	txManager  shared.TxManager
	cache      taxonomy.ValueListCache
	cacheTTL   time.Duration
	staleAfter time.Duration
	metrics    *telemetry.SyncMetrics
	validate   *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithValueListCache reads value lists through cache, storing them for ttl
func WithValueListCache(cache taxonomy.ValueListCache, ttl time.Duration) Option {
	return func(s *Store) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithStaleAfter sets the freshness window used by health reports
func WithStaleAfter(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// WithMetrics records upsert counts and health scores
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a new Store
func NewStore(
	accounts channel.AccountRepository,
	entries taxonomy.EntryRepository,
	txManager shared.TxManager,
	opts ...Option,
) *Store {
	s := &Store{
		accounts:   accounts,
		entries:    entries,
		txManager:  txManager,
		cacheTTL:   defaultValueListTTL,
		staleAfter: defaultStaleAfter,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ---------------------------------------------------------------------------
// Upsert
// ---------------------------------------------------------------------------

// UpsertEntries writes a full discovery payload for the account.
// Entries keyed by (type, external id) are created, updated or reactivated;
// active entries absent from the payload are deactivated. Malformed entries
// are skipped and reported, and a stored entry whose payload counterpart was
// malformed keeps its current state.
func (s *Store) UpsertEntries(ctx context.Context, accountID uuid.UUID, incoming []taxonomy.Entry) (*UpsertResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "taxonomy", "upsert_entries",
		telemetry.WithAttribute(string(telemetry.AttrAccountID), accountID.String()))
	defer span.End()

	if _, err := s.accounts.FindByID(ctx, accountID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	existing, err := s.entries.FindByAccount(ctx, accountID, taxonomy.EntryFilter{})
	if err != nil {
		return nil, fmt.Errorf("load taxonomy entries: %w", err)
	}
	byKey := make(map[taxonomy.Key]*taxonomy.Entry, len(existing))
	for i := range existing {
		byKey[existing[i].EntryKey()] = &existing[i]
	}

	now := s.now()
	result := &UpsertResult{Skipped: []SkippedEntry{}}
	var changes taxonomy.SyncChanges
	seen := make(map[taxonomy.Key]bool, len(incoming))

	for i := range incoming {
		entry := incoming[i]
		entry.AccountID = accountID
		key := entry.EntryKey()

		if reason := s.check(&entry); reason != "" {
			result.Skipped = append(result.Skipped, SkippedEntry{Type: entry.Type, ExternalID: entry.ExternalID, Reason: reason})
			// a parseable key still protects the stored row from deactivation
			if entry.Type.IsValid() && entry.ExternalID != "" {
				seen[key] = true
			}
			continue
		}
		if seen[key] {
			result.Skipped = append(result.Skipped, SkippedEntry{Type: entry.Type, ExternalID: entry.ExternalID, Reason: "duplicate entry in payload"})
			continue
		}
		seen[key] = true

		current, ok := byKey[key]
		if !ok {
			entry.BaseEntity = shared.NewBaseEntity()
			entry.IsActive = true
			entry.LastSyncedAt = now
			changes.Create = append(changes.Create, &entry)
			result.Created++
			continue
		}

		switch {
		case !current.IsActive:
			result.Reactivated++
		case current.SameContent(&entry):
			result.Unchanged++
		default:
			result.Updated++
		}
		changes.Update = append(changes.Update, refresh(current, &entry, now))
	}

	for key, current := range byKey {
		if current.IsActive && !seen[key] {
			changes.Deactivate = append(changes.Deactivate, current.ID)
		}
	}
	result.Deactivated = len(changes.Deactivate)

	if !changes.IsEmpty() {
		err := s.txManager.WithinTx(ctx, func(txCtx context.Context) error {
			return s.entries.ApplySync(txCtx, accountID, changes)
		})
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, fmt.Errorf("apply taxonomy sync: %w", err)
		}
	}

	s.invalidate(ctx, accountID)

	s.metrics.RecordTaxonomyEntries(ctx, "created", result.Created)
	s.metrics.RecordTaxonomyEntries(ctx, "updated", result.Updated)
	s.metrics.RecordTaxonomyEntries(ctx, "reactivated", result.Reactivated)
	s.metrics.RecordTaxonomyEntries(ctx, "deactivated", result.Deactivated)
	s.metrics.RecordTaxonomyEntries(ctx, "skipped", len(result.Skipped))

	logger.FromContextOr(ctx, s.logger).Info("Taxonomy entries upserted",
		zap.String("account_id", accountID.String()),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("reactivated", result.Reactivated),
		zap.Int("deactivated", result.Deactivated),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// check returns why an entry cannot be stored, or ""
func (s *Store) check(e *taxonomy.Entry) string {
	if err := s.validate.Struct(e); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Sprintf("field %s failed %q", verrs[0].Field(), verrs[0].Tag())
		}
		return err.Error()
	}
	if err := e.Validate(); err != nil {
		return err.Error()
	}
	return ""
}

// refresh copies the discovered content of src onto the stored entry
func refresh(current, src *taxonomy.Entry, now time.Time) *taxonomy.Entry {
	updated := *current
	updated.Key = src.Key
	updated.Name = src.Name
	updated.DataType = src.DataType
	updated.Required = src.Required
	updated.Rules = src.Rules
	updated.Level = src.Level
	updated.ParentExternalID = src.ParentExternalID
	updated.IsActive = true
	updated.LastSyncedAt = now
	updated.UpdatedAt = now
	return &updated
}

func (s *Store) invalidate(ctx context.Context, accountID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAccount(ctx, accountID); err != nil {
		s.logger.Warn("Failed to invalidate value list cache",
			zap.String("account_id", accountID.String()),
			zap.Error(err),
		)
	}
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// GetAttributes returns the active attributes of the account. When category
// is set only attributes applicable to it are returned.
func (s *Store) GetAttributes(ctx context.Context, accountID uuid.UUID, category string) ([]taxonomy.Entry, error) {
	if _, err := s.accounts.FindByID(ctx, accountID); err != nil {
		return nil, err
	}

	attrType := taxonomy.EntryTypeAttribute
	attrs, err := s.entries.FindByAccount(ctx, accountID, taxonomy.EntryFilter{Type: &attrType, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	if category == "" {
		return attrs, nil
	}

	filtered := make([]taxonomy.Entry, 0, len(attrs))
	for i := range attrs {
		if attrs[i].AppliesToCategory(category) {
			filtered = append(filtered, attrs[i])
		}
	}
	return filtered, nil
}

// GetValueList returns the active values of a LIST attribute
func (s *Store) GetValueList(ctx context.Context, accountID uuid.UUID, attributeKey string) ([]string, error) {
	if _, err := s.accounts.FindByID(ctx, accountID); err != nil {
		return nil, err
	}
	if s.cache != nil {
		values, ok, err := s.cache.Get(ctx, accountID, attributeKey)
		switch {
		case err != nil:
			s.logger.Warn("Value list cache read failed", zap.String("attribute", attributeKey), zap.Error(err))
		case ok:
			return values, nil
		}
	}

	attr, err := s.findAttribute(ctx, accountID, attributeKey)
	if err != nil {
		return nil, err
	}
	if attr.DataType != taxonomy.DataTypeList {
		return nil, fmt.Errorf("%w: %s is %s", taxonomy.ErrAttributeNotListTyped, attributeKey, attr.DataType)
	}

	values, err := s.loadValues(ctx, accountID, attr.ExternalID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, accountID, attributeKey, values, s.cacheTTL); err != nil {
			s.logger.Warn("Value list cache write failed", zap.String("attribute", attributeKey), zap.Error(err))
		}
	}
	return values, nil
}

func (s *Store) findAttribute(ctx context.Context, accountID uuid.UUID, key string) (*taxonomy.Entry, error) {
	attrType := taxonomy.EntryTypeAttribute
	found, err := s.entries.FindByAccount(ctx, accountID, taxonomy.EntryFilter{Type: &attrType, ActiveOnly: true, Key: key})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: %s", taxonomy.ErrAttributeNotFound, key)
	}
	return &found[0], nil
}

func (s *Store) loadValues(ctx context.Context, accountID uuid.UUID, attributeExternalID string) ([]string, error) {
	valueType := taxonomy.EntryTypeValue
	rows, err := s.entries.FindByAccount(ctx, accountID, taxonomy.EntryFilter{
		Type:             &valueType,
		ActiveOnly:       true,
		ParentExternalID: attributeExternalID,
	})
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(rows))
	for i := range rows {
		values = append(values, valueOf(&rows[i]))
	}
	slices.Sort(values)
	return slices.Compact(values), nil
}

// valueOf returns the literal of a VALUE entry, falling back to its name
func valueOf(e *taxonomy.Entry) string {
	if e.Key != "" {
		return e.Key
	}
	return e.Name
}

// ValidateValue checks value against the cached attribute of the account.
// LIST attributes without explicit choices are checked against their value
// list. The returned slice holds the violations; nil means valid.
func (s *Store) ValidateValue(ctx context.Context, accountID uuid.UUID, attributeKey, value string) ([]string, error) {
	if _, err := s.accounts.FindByID(ctx, accountID); err != nil {
		return nil, err
	}
	attr, err := s.findAttribute(ctx, accountID, attributeKey)
	if err != nil {
		return nil, err
	}

	rules := attr.Rules
	if attr.DataType == taxonomy.DataTypeList && len(rules.Choices) == 0 {
		values, err := s.GetValueList(ctx, accountID, attributeKey)
		if err != nil {
			return nil, err
		}
		rules.Choices = values
	}
	return rules.Check(attr.DataType, value), nil
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

// HealthReport scores how usable the cached schema of the account is
func (s *Store) HealthReport(ctx context.Context, accountID uuid.UUID) (*taxonomy.HealthReport, error) {
	if _, err := s.accounts.FindByID(ctx, accountID); err != nil {
		return nil, err
	}

	stats, err := s.entries.CountByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("count taxonomy entries: %w", err)
	}

	var emptyLists []string
	if stats.Attributes > 0 {
		if emptyLists, err = s.emptyValueLists(ctx, accountID); err != nil {
			return nil, err
		}
	}

	report := taxonomy.BuildHealthReport(accountID, stats, emptyLists, s.now(), s.staleAfter)
	s.metrics.RecordHealthScore(ctx, accountID.String(), report.Score)
	return report, nil
}

// emptyValueLists returns the keys of active LIST attributes without values
func (s *Store) emptyValueLists(ctx context.Context, accountID uuid.UUID) ([]string, error) {
	attrType := taxonomy.EntryTypeAttribute
	attrs, err := s.entries.FindByAccount(ctx, accountID, taxonomy.EntryFilter{Type: &attrType, ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	valueType := taxonomy.EntryTypeValue
	values, err := s.entries.FindByAccount(ctx, accountID, taxonomy.EntryFilter{Type: &valueType, ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	withValues := make(map[string]bool, len(values))
	for i := range values {
		withValues[values[i].ParentExternalID] = true
	}

	var empty []string
	for i := range attrs {
		if attrs[i].DataType == taxonomy.DataTypeList && len(attrs[i].Rules.Choices) == 0 && !withValues[attrs[i].ExternalID] {
			empty = append(empty, attrs[i].Key)
		}
	}
	return empty, nil
}
