package catalog

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityRef_Validate(t *testing.T) {
	t.Run("product ref is valid", func(t *testing.T) {
		ref := ProductRef(uuid.New())
		assert.NoError(t, ref.Validate())
		assert.True(t, ref.IsProduct())
		assert.False(t, ref.IsVariant())
	})

	t.Run("nil id is invalid", func(t *testing.T) {
		assert.ErrorIs(t, VariantRef(uuid.Nil).Validate(), ErrInvalidEntityRef)
	})

	t.Run("unknown kind is invalid", func(t *testing.T) {
		ref := EntityRef{Kind: "CATEGORY", ID: uuid.New()}
		assert.ErrorIs(t, ref.Validate(), ErrInvalidEntityRef)
	})
}

func TestVisit(t *testing.T) {
	id := uuid.New()
	onProduct := func(uuid.UUID) (string, error) { return "product", nil }
	onVariant := func(uuid.UUID) (string, error) { return "variant", nil }

	got, err := Visit(ProductRef(id), onProduct, onVariant)
	require.NoError(t, err)
	assert.Equal(t, "product", got)

	got, err = Visit(VariantRef(id), onProduct, onVariant)
	require.NoError(t, err)
	assert.Equal(t, "variant", got)

	_, err = Visit(EntityRef{Kind: "X", ID: id}, onProduct, onVariant)
	assert.ErrorIs(t, err, ErrInvalidEntityRef)
}

func TestNewVariant(t *testing.T) {
	t.Run("valid variant", func(t *testing.T) {
		productID := uuid.New()
		v, err := NewVariant(productID, " TEE-RED-M ", "Tee red M")
		require.NoError(t, err)
		assert.Equal(t, "TEE-RED-M", v.SKU)
		assert.Equal(t, ProductRef(productID), v.ParentRef())
		assert.Equal(t, 0, v.OverrideCount)
	})

	t.Run("missing product", func(t *testing.T) {
		_, err := NewVariant(uuid.Nil, "SKU", "")
		assert.ErrorIs(t, err, ErrVariantInvalidParent)
	})

	t.Run("missing sku", func(t *testing.T) {
		_, err := NewVariant(uuid.New(), "  ", "")
		assert.ErrorIs(t, err, ErrVariantInvalidSKU)
	})
}
