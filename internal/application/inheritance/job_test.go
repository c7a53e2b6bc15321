package inheritance

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/channelsync/internal/domain/attribute"
	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/erp/channelsync/internal/domain/shared"
	"github.com/erp/channelsync/internal/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// failingAssignments writes the changes and then fails for one owner, so the
// surrounding transaction has something to roll back
type failingAssignments struct {
	attribute.AssignmentRepository
	failOwner uuid.UUID
}

func (r *failingAssignments) ApplyChanges(ctx context.Context, changes attribute.ChangeSet) error {
	if err := r.AssignmentRepository.ApplyChanges(ctx, changes); err != nil {
		return err
	}
	for _, a := range changes.Save {
		if a.Owner.ID == r.failOwner {
			return errors.New("disk full")
		}
	}
	return nil
}

func seedJob(t *testing.T) (*engineFixture, *catalog.Variant) {
	t.Helper()
	f := newEngineFixture(t)
	f.set(t, f.product.Ref(), f.material, "Cotton")
	f.set(t, f.product.Ref(), f.color, "Red")

	mug, variants := f.addProduct(t, "MUG", "MUG-WHITE")
	f.set(t, mug.Ref(), f.material, "Ceramic")
	return f, variants[0]
}

func TestSyncJob_AllVariants(t *testing.T) {
	f, mugVariant := seedJob(t)
	ctx := context.Background()

	res, err := NewSyncJob(f.engine).Run(ctx, Scope{}, JobOptions{BatchSize: 2})
	require.NoError(t, err)
	assert.False(t, res.HasFailures())
	assert.Equal(t, 3, res.Variants)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, 5, res.Inherited)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, "Ceramic", f.valueOf(t, mugVariant.Ref(), f.material).Value)

	again, err := NewSyncJob(f.engine).Run(ctx, Scope{}, JobOptions{BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Inherited)
	assert.Equal(t, 5, again.Skipped)
}

func TestSyncJob_ScopedByProductAndKey(t *testing.T) {
	f, mugVariant := seedJob(t)

	res, err := NewSyncJob(f.engine).Run(context.Background(), Scope{
		ProductIDs:    []uuid.UUID{f.product.ID},
		AttributeKeys: []string{"material"},
	}, JobOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Variants)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, 2, res.Inherited)

	assert.Nil(t, f.valueOf(t, f.variants[0].Ref(), f.color))
	assert.Nil(t, f.valueOf(t, mugVariant.Ref(), f.material))
}

func TestSyncJob_ProductAndVariantScopeIsDeduplicated(t *testing.T) {
	f, _ := seedJob(t)

	res, err := NewSyncJob(f.engine).Run(context.Background(), Scope{
		ProductIDs: []uuid.UUID{f.product.ID},
		VariantIDs: []uuid.UUID{f.variants[0].ID},
	}, JobOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Variants)
}

func TestSyncJob_InvalidScopeFailsFast(t *testing.T) {
	f, _ := seedJob(t)
	job := NewSyncJob(f.engine)
	ctx := context.Background()

	_, err := job.Run(ctx, Scope{ProductIDs: []uuid.UUID{f.product.ID, uuid.New()}}, JobOptions{})
	assert.ErrorIs(t, err, catalog.ErrProductNotFound)

	_, err = job.Run(ctx, Scope{VariantIDs: []uuid.UUID{uuid.New()}}, JobOptions{})
	assert.ErrorIs(t, err, catalog.ErrVariantNotFound)

	_, err = job.Run(ctx, Scope{AttributeKeys: []string{"fit"}}, JobOptions{})
	assert.ErrorIs(t, err, ErrUnknownAttribute)

	assert.Nil(t, f.valueOf(t, f.variants[0].Ref(), f.material))
}

func TestSyncJob_FailedChunkIsRolledBack(t *testing.T) {
	f, mugVariant := seedJob(t)
	failing := f.variants[1]
	engine := NewEngine(f.catalog, f.definitions,
		&failingAssignments{AssignmentRepository: f.assignments, failOwner: failing.ID},
		persistence.NewGormTxManager(f.db), zaptest.NewLogger(t))

	res, err := NewSyncJob(engine).Run(context.Background(), Scope{}, JobOptions{BatchSize: 1})
	require.NoError(t, err)
	assert.True(t, res.HasFailures())
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, 2, res.Variants)
	require.Len(t, res.FailedChunks, 1)
	assert.Equal(t, []uuid.UUID{failing.ID}, res.FailedChunks[0].VariantIDs)
	assert.Contains(t, res.FailedChunks[0].Error, "disk full")

	assert.Nil(t, f.valueOf(t, failing.Ref(), f.material))
	assert.Nil(t, f.valueOf(t, failing.Ref(), f.color))
	assert.NotNil(t, f.valueOf(t, f.variants[0].Ref(), f.material))
	assert.NotNil(t, f.valueOf(t, mugVariant.Ref(), f.material))
}

// cancelAfterTx cancels the job context once the first chunk committed
type cancelAfterTx struct {
	shared.TxManager
	cancel context.CancelFunc
}

func (m *cancelAfterTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	err := m.TxManager.WithinTx(ctx, fn)
	m.cancel()
	return err
}

func TestSyncJob_StopsBetweenChunksWhenCancelled(t *testing.T) {
	f, _ := seedJob(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine := NewEngine(f.catalog, f.definitions, f.assignments,
		&cancelAfterTx{TxManager: persistence.NewGormTxManager(f.db), cancel: cancel},
		zaptest.NewLogger(t))

	res, err := NewSyncJob(engine).Run(ctx, Scope{}, JobOptions{BatchSize: 1})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.True(t, res.HasFailures())
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, 1, res.Variants)
	assert.Empty(t, res.FailedChunks)
}

func TestSyncJob_DryRun(t *testing.T) {
	f, _ := seedJob(t)

	res, err := NewSyncJob(f.engine).Run(context.Background(), Scope{}, JobOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 5, res.Inherited)
	assert.Nil(t, f.valueOf(t, f.variants[0].Ref(), f.material))
}
