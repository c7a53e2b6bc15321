package link

import (
	"errors"
	"testing"
	"time"

	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNewProductLink(t *testing.T) {
	accountID := uuid.New()
	productID := uuid.New()

	t.Run("Valid link creation", func(t *testing.T) {
		l, err := NewProductLink(accountID, productID, "EXT-1")
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, l.ID)
		assert.Equal(t, LevelProduct, l.Level)
		assert.Equal(t, catalog.ProductRef(productID), l.Entity)
		assert.Equal(t, StatusPending, l.Status)
		assert.Equal(t, "EXT-1", l.ExternalID())
		assert.Nil(t, l.ParentLinkID)
	})

	t.Run("Invalid account", func(t *testing.T) {
		_, err := NewProductLink(uuid.Nil, productID, "EXT-1")
		assert.ErrorIs(t, err, ErrLinkInvalidAccount)
	})

	t.Run("Invalid product", func(t *testing.T) {
		_, err := NewProductLink(accountID, uuid.Nil, "EXT-1")
		assert.ErrorIs(t, err, ErrLinkInvalidEntity)
	})
}

func TestNewVariantLink(t *testing.T) {
	accountID := uuid.New()
	parent, err := NewProductLink(accountID, uuid.New(), "EXT-P")
	require.NoError(t, err)

	t.Run("Parent in same account", func(t *testing.T) {
		l, err := NewVariantLink(accountID, uuid.New(), "EXT-V", parent)
		require.NoError(t, err)
		require.NotNil(t, l.ParentLinkID)
		assert.Equal(t, parent.ID, *l.ParentLinkID)
		assert.Equal(t, "EXT-P", l.ExternalProductID)
		assert.Equal(t, "EXT-V", l.ExternalID())
		assert.False(t, l.IsPlaceholder())
	})

	t.Run("Parent from another account", func(t *testing.T) {
		_, err := NewVariantLink(uuid.New(), uuid.New(), "EXT-V", parent)
		var ie *IntegrityError
		require.True(t, errors.As(err, &ie))
		assert.Equal(t, parent.ID, ie.LinkID)
		assert.True(t, IsIntegrityError(err))
	})

	t.Run("Parent is a variant link", func(t *testing.T) {
		v, err := NewVariantLink(accountID, uuid.New(), "EXT-V1", parent)
		require.NoError(t, err)
		_, err = NewVariantLink(accountID, uuid.New(), "EXT-V2", v)
		assert.True(t, IsIntegrityError(err))
	})

	t.Run("Placeholder without external id", func(t *testing.T) {
		l, err := NewVariantLink(accountID, uuid.New(), "", parent)
		require.NoError(t, err)
		assert.True(t, l.IsPlaceholder())
	})
}

// ---------------------------------------------------------------------------
// Status transitions
// ---------------------------------------------------------------------------

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusPending, StatusLinked, true},
		{StatusPending, StatusFailed, true},
		{StatusFailed, StatusPending, true},
		{StatusFailed, StatusLinked, false},
		{StatusLinked, StatusPending, false},
		{StatusLinked, StatusFailed, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestLink_MarkStatus(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("Pending to linked sets linked at", func(t *testing.T) {
		l, _ := NewProductLink(uuid.New(), uuid.New(), "EXT")
		require.NoError(t, l.MarkStatus(StatusLinked, "", now))
		assert.Equal(t, StatusLinked, l.Status)
		require.NotNil(t, l.LinkedAt)
		assert.Equal(t, now, *l.LinkedAt)
	})

	t.Run("Linked requires external id", func(t *testing.T) {
		l, _ := NewVariantLink(uuid.New(), uuid.New(), "", nil)
		assert.ErrorIs(t, l.MarkStatus(StatusLinked, "", now), ErrLinkMissingExternalID)
		assert.Equal(t, StatusPending, l.Status)
	})

	t.Run("Failed records reason and retry clears it", func(t *testing.T) {
		l, _ := NewProductLink(uuid.New(), uuid.New(), "EXT")
		require.NoError(t, l.MarkStatus(StatusFailed, "rejected", now))
		assert.Equal(t, "rejected", l.LastError)
		require.NoError(t, l.MarkStatus(StatusPending, "", now))
		assert.Empty(t, l.LastError)
	})

	t.Run("Linked cannot be downgraded", func(t *testing.T) {
		l, _ := NewProductLink(uuid.New(), uuid.New(), "EXT")
		require.NoError(t, l.MarkStatus(StatusLinked, "", now))
		assert.ErrorIs(t, l.MarkStatus(StatusPending, "", now), ErrLinkInvalidTransition)
		assert.ErrorIs(t, l.MarkStatus(StatusFailed, "x", now), ErrLinkInvalidTransition)
	})

	t.Run("Same status is a no-op", func(t *testing.T) {
		l, _ := NewProductLink(uuid.New(), uuid.New(), "EXT")
		require.NoError(t, l.MarkStatus(StatusLinked, "", now))
		assert.NoError(t, l.MarkStatus(StatusLinked, "", now.Add(time.Hour)))
		assert.Equal(t, now, *l.LinkedAt)
	})

	t.Run("Unknown status", func(t *testing.T) {
		l, _ := NewProductLink(uuid.New(), uuid.New(), "EXT")
		assert.ErrorIs(t, l.MarkStatus("DONE", "", now), ErrLinkInvalidStatus)
	})
}

func TestLink_Unlink(t *testing.T) {
	now := time.Now()
	l, _ := NewProductLink(uuid.New(), uuid.New(), "EXT")
	assert.ErrorIs(t, l.Unlink(now), ErrLinkNotLinked)

	require.NoError(t, l.MarkStatus(StatusLinked, "", now))
	require.NoError(t, l.Unlink(now))
	assert.Equal(t, StatusPending, l.Status)
	assert.Nil(t, l.LinkedAt)
}

func TestLink_Rebind(t *testing.T) {
	l, _ := NewProductLink(uuid.New(), uuid.New(), "EXT-1")
	require.NoError(t, l.MarkStatus(StatusLinked, "", time.Now()))

	l.Rebind("EXT-1")
	assert.Equal(t, StatusLinked, l.Status)

	l.Rebind("EXT-2")
	assert.Equal(t, "EXT-2", l.ExternalProductID)
	assert.Equal(t, StatusPending, l.Status)
	assert.Nil(t, l.LinkedAt)
}

func TestLink_Apply(t *testing.T) {
	l, _ := NewProductLink(uuid.New(), uuid.New(), "EXT")
	l.Apply(Data{ExternalSKU: "SKU-1", Metadata: map[string]any{"title": "Shirt"}, LinkedBy: "importer"})
	l.Apply(Data{Metadata: map[string]any{"price": "9.99"}})

	assert.Equal(t, "SKU-1", l.ExternalSKU)
	assert.Equal(t, "importer", l.LinkedBy)
	assert.Equal(t, map[string]any{"title": "Shirt", "price": "9.99"}, l.Metadata)
}

// ---------------------------------------------------------------------------
// LegacyMapping
// ---------------------------------------------------------------------------

func TestNewLegacyMapping(t *testing.T) {
	accountID := uuid.New()
	productID := uuid.New()

	m, err := NewLegacyMapping(accountID, productID, "TAOBAO_PROD_001")
	require.NoError(t, err)
	assert.True(t, m.IsActive)
	assert.Equal(t, LegacySyncPending, m.LastSyncStatus)
	assert.Empty(t, m.SKUMappings)

	_, err = NewLegacyMapping(accountID, uuid.Nil, "X")
	assert.ErrorIs(t, err, ErrLegacyInvalidProduct)
	_, err = NewLegacyMapping(accountID, productID, "")
	assert.ErrorIs(t, err, ErrLegacyInvalidExternal)
	_, err = NewLegacyMapping(uuid.Nil, productID, "X")
	assert.ErrorIs(t, err, ErrLinkInvalidAccount)
}

func TestLegacyMapping_SKUMappings(t *testing.T) {
	m, _ := NewLegacyMapping(uuid.New(), uuid.New(), "P1")
	v1, v2 := uuid.New(), uuid.New()

	require.NoError(t, m.AddSKUMapping(v1, "SKU_001"))
	require.NoError(t, m.AddSKUMapping(v1, "SKU_001"))
	require.NoError(t, m.AddSKUMapping(v2, "SKU_002"))
	assert.Len(t, m.SKUMappings, 2)

	assert.ErrorIs(t, m.AddSKUMapping(uuid.Nil, "SKU"), ErrLegacyInvalidSKU)
	assert.ErrorIs(t, m.AddSKUMapping(v1, ""), ErrLegacyInvalidSKU)

	m.SKUMappings[1].IsActive = false
	active := m.ActiveSKUMappings()
	require.Len(t, active, 1)
	assert.Equal(t, v1, active[0].LocalVariantID)
}

func TestLegacySyncStatus_LinkStatus(t *testing.T) {
	assert.Equal(t, StatusLinked, LegacySyncSuccess.LinkStatus())
	assert.Equal(t, StatusFailed, LegacySyncFailed.LinkStatus())
	assert.Equal(t, StatusPending, LegacySyncPartial.LinkStatus())
	assert.Equal(t, StatusPending, LegacySyncInProgress.LinkStatus())
	assert.Equal(t, StatusPending, LegacySyncPending.LinkStatus())
}
