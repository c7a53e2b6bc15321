package taxonomy

import (
	"context"
	"testing"
	"time"

	"github.com/erp/channelsync/internal/domain/channel"
	"github.com/erp/channelsync/internal/domain/taxonomy"
	"github.com/erp/channelsync/internal/infrastructure/cache"
	"github.com/erp/channelsync/internal/infrastructure/persistence"
	"github.com/erp/channelsync/internal/infrastructure/persistence/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var fixedNow = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

type storeFixture struct {
	store   *Store
	account *channel.Account
	cache   *cache.InMemoryValueListCache
	repo    *persistence.GormTaxonomyRepository
}

func newStoreFixture(t *testing.T) *storeFixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)

	accounts := persistence.NewGormAccountRepository(db)
	account, err := channel.NewAccount(channel.TypeShopify, "shop-eu", nil)
	require.NoError(t, err)
	require.NoError(t, accounts.Save(context.Background(), account))

	valueCache := cache.NewInMemoryValueListCache()
	t.Cleanup(func() { _ = valueCache.Close() })

	repo := persistence.NewGormTaxonomyRepository(db)
	store := NewStore(accounts, repo, persistence.NewGormTxManager(db),
		WithValueListCache(valueCache, time.Minute),
		WithStaleAfter(30*24*time.Hour),
		WithLogger(zaptest.NewLogger(t)),
		WithClock(func() time.Time { return fixedNow }),
	)
	return &storeFixture{store: store, account: account, cache: valueCache, repo: repo}
}

func samplePayload() []taxonomy.Entry {
	return []taxonomy.Entry{
		{Type: taxonomy.EntryTypeCategory, ExternalID: "c-1", Key: "apparel", Name: "Apparel"},
		{Type: taxonomy.EntryTypeCategory, ExternalID: "c-2", Key: "shirts", Name: "Shirts", Level: 1, ParentExternalID: "c-1"},
		{Type: taxonomy.EntryTypeAttribute, ExternalID: "a-color", Key: "color", Name: "Color", DataType: taxonomy.DataTypeList, Required: true},
		{
			Type: taxonomy.EntryTypeAttribute, ExternalID: "a-material", Key: "material", Name: "Material",
			DataType: taxonomy.DataTypeString, Rules: taxonomy.Rules{CategoryIDs: []string{"c-2"}},
		},
		{Type: taxonomy.EntryTypeValue, ExternalID: "v-red", Key: "Red", ParentExternalID: "a-color"},
		{Type: taxonomy.EntryTypeValue, ExternalID: "v-blue", Key: "Blue", ParentExternalID: "a-color"},
	}
}

func TestUpsertEntries_Idempotent(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	first, err := f.store.UpsertEntries(ctx, f.account.ID, samplePayload())
	require.NoError(t, err)
	assert.Equal(t, 6, first.Created)
	assert.Empty(t, first.Skipped)

	before, err := f.repo.FindByAccount(ctx, f.account.ID, taxonomy.EntryFilter{})
	require.NoError(t, err)

	second, err := f.store.UpsertEntries(ctx, f.account.ID, samplePayload())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 6, second.Unchanged)
	assert.Equal(t, 0, second.Deactivated)

	after, err := f.repo.FindByAccount(ctx, f.account.ID, taxonomy.EntryFilter{})
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.True(t, before[i].SameContent(&after[i]), "entry %s changed", before[i].EntryKey())
	}
}

func TestUpsertEntries_SkipsMalformed(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	payload := append(samplePayload(),
		taxonomy.Entry{Type: taxonomy.EntryTypeAttribute, ExternalID: "a-broken", DataType: taxonomy.DataTypeString},
		taxonomy.Entry{Type: "WIDGET", ExternalID: "w-1"},
		taxonomy.Entry{Type: taxonomy.EntryTypeValue, ExternalID: "v-orphan", Key: "Green"},
	)

	result, err := f.store.UpsertEntries(ctx, f.account.ID, payload)
	require.NoError(t, err)
	assert.Equal(t, 6, result.Created)
	require.Len(t, result.Skipped, 3)
	assert.Equal(t, "a-broken", result.Skipped[0].ExternalID)
	assert.Contains(t, result.Skipped[0].Reason, "attribute key is required")
}

func TestUpsertEntries_DuplicateInPayload(t *testing.T) {
	f := newStoreFixture(t)

	payload := append(samplePayload(), samplePayload()[0])
	result, err := f.store.UpsertEntries(context.Background(), f.account.ID, payload)
	require.NoError(t, err)
	assert.Equal(t, 6, result.Created)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "duplicate entry in payload", result.Skipped[0].Reason)
}

func TestUpsertEntries_DeactivatesAndReactivates(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	_, err := f.store.UpsertEntries(ctx, f.account.ID, samplePayload())
	require.NoError(t, err)

	withoutBlue := samplePayload()[:5]
	result, err := f.store.UpsertEntries(ctx, f.account.ID, withoutBlue)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deactivated)

	values, err := f.store.GetValueList(ctx, f.account.ID, "color")
	require.NoError(t, err)
	assert.Equal(t, []string{"Red"}, values)

	result, err = f.store.UpsertEntries(ctx, f.account.ID, samplePayload())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reactivated)
	assert.Equal(t, 0, result.Created)

	values, err = f.store.GetValueList(ctx, f.account.ID, "color")
	require.NoError(t, err)
	assert.Equal(t, []string{"Blue", "Red"}, values, "upsert must invalidate the cached list")
}

func TestUpsertEntries_MalformedKeepsStoredRow(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	_, err := f.store.UpsertEntries(ctx, f.account.ID, samplePayload())
	require.NoError(t, err)

	payload := samplePayload()
	payload[3].Key = "" // material arrives malformed
	result, err := f.store.UpsertEntries(ctx, f.account.ID, payload)
	require.NoError(t, err)
	assert.Len(t, result.Skipped, 1)
	assert.Equal(t, 0, result.Deactivated)

	attrs, err := f.store.GetAttributes(ctx, f.account.ID, "")
	require.NoError(t, err)
	assert.Len(t, attrs, 2)
}

func TestUpsertEntries_UpdatesChangedContent(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	_, err := f.store.UpsertEntries(ctx, f.account.ID, samplePayload())
	require.NoError(t, err)

	payload := samplePayload()
	payload[3].Required = true
	result, err := f.store.UpsertEntries(ctx, f.account.ID, payload)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 5, result.Unchanged)
}

func TestUpsertEntries_UnknownAccount(t *testing.T) {
	f := newStoreFixture(t)

	_, err := f.store.UpsertEntries(context.Background(), uuid.New(), samplePayload())
	assert.ErrorIs(t, err, channel.ErrAccountNotFound)
}

func TestGetAttributes_CategoryFilter(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	_, err := f.store.UpsertEntries(ctx, f.account.ID, samplePayload())
	require.NoError(t, err)

	all, err := f.store.GetAttributes(ctx, f.account.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	apparel, err := f.store.GetAttributes(ctx, f.account.ID, "c-1")
	require.NoError(t, err)
	require.Len(t, apparel, 1)
	assert.Equal(t, "color", apparel[0].Key)

	shirts, err := f.store.GetAttributes(ctx, f.account.ID, "c-2")
	require.NoError(t, err)
	assert.Len(t, shirts, 2)
}

func TestGetValueList(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	_, err := f.store.UpsertEntries(ctx, f.account.ID, samplePayload())
	require.NoError(t, err)

	values, err := f.store.GetValueList(ctx, f.account.ID, "color")
	require.NoError(t, err)
	assert.Equal(t, []string{"Blue", "Red"}, values)

	_, err = f.store.GetValueList(ctx, f.account.ID, "color")
	require.NoError(t, err)
	hits, _ := f.cache.GetStats()
	assert.Equal(t, int64(1), hits)

	_, err = f.store.GetValueList(ctx, f.account.ID, "material")
	assert.ErrorIs(t, err, taxonomy.ErrAttributeNotListTyped)

	_, err = f.store.GetValueList(ctx, f.account.ID, "size")
	assert.ErrorIs(t, err, taxonomy.ErrAttributeNotFound)
}

func TestGetValueList_UnknownAccountIgnoresCache(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	missing := uuid.New()
	require.NoError(t, f.cache.Set(ctx, missing, "color", []string{"Red"}, time.Minute))

	_, err := f.store.GetValueList(ctx, missing, "color")
	assert.ErrorIs(t, err, channel.ErrAccountNotFound)
	hits, _ := f.cache.GetStats()
	assert.Zero(t, hits)
}

func TestValidateValue(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()
	_, err := f.store.UpsertEntries(ctx, f.account.ID, samplePayload())
	require.NoError(t, err)

	violations, err := f.store.ValidateValue(ctx, f.account.ID, "color", "red")
	require.NoError(t, err)
	assert.Empty(t, violations)

	violations, err = f.store.ValidateValue(ctx, f.account.ID, "color", "Purple")
	require.NoError(t, err)
	assert.Len(t, violations, 1)
}

func TestHealthReport_EmptyAccount(t *testing.T) {
	f := newStoreFixture(t)

	report, err := f.store.HealthReport(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Score)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, taxonomy.IssueNoFieldDefinitions, report.Issues[0].Code)
	assert.Equal(t, "no field definitions", report.Issues[0].Message)
}

func TestHealthReport_Deductions(t *testing.T) {
	f := newStoreFixture(t)
	ctx := context.Background()

	payload := append(samplePayload(),
		taxonomy.Entry{Type: taxonomy.EntryTypeAttribute, ExternalID: "a-size", Key: "size", DataType: taxonomy.DataTypeList},
	)
	payload[2].Required = false
	_, err := f.store.UpsertEntries(ctx, f.account.ID, payload)
	require.NoError(t, err)

	report, err := f.store.HealthReport(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, report.Score)
	assert.Equal(t, []string{"size"}, report.EmptyLists)
	assert.Equal(t, int64(3), report.Stats.Attributes)
}

func TestHealthReport_UnknownAccount(t *testing.T) {
	f := newStoreFixture(t)

	_, err := f.store.HealthReport(context.Background(), uuid.New())
	assert.ErrorIs(t, err, channel.ErrAccountNotFound)
}
