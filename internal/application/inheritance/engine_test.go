package inheritance

import (
	"context"
	"testing"
	"time"

	"github.com/erp/channelsync/internal/domain/attribute"
	"github.com/erp/channelsync/internal/domain/catalog"
	"github.com/erp/channelsync/internal/domain/taxonomy"
	"github.com/erp/channelsync/internal/infrastructure/persistence"
	"github.com/erp/channelsync/internal/infrastructure/persistence/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var fixedNow = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

type engineFixture struct {
	db          *gorm.DB
	engine      *Engine
	catalog     *persistence.GormCatalogRepository
	definitions *persistence.GormDefinitionRepository
	assignments *persistence.GormAssignmentRepository

	product  *catalog.Product
	variants []*catalog.Variant

	material *attribute.Definition
	color    *attribute.Definition
	care     *attribute.Definition
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)

	f := &engineFixture{
		db:          db,
		catalog:     persistence.NewGormCatalogRepository(db),
		definitions: persistence.NewGormDefinitionRepository(db),
		assignments: persistence.NewGormAssignmentRepository(db),
	}
	f.engine = NewEngine(f.catalog, f.definitions, f.assignments, persistence.NewGormTxManager(db), zaptest.NewLogger(t))
	f.engine.now = func() time.Time { return fixedNow }

	f.material = f.define(t, "material", taxonomy.DataTypeString, true, taxonomy.Rules{})
	f.color = f.define(t, "color", taxonomy.DataTypeList, true, taxonomy.Rules{Choices: []string{"Red", "Blue"}})
	f.care = f.define(t, "care", taxonomy.DataTypeText, false, taxonomy.Rules{})

	f.product, f.variants = f.addProduct(t, "TEE", "TEE-S", "TEE-M")
	return f
}

func (f *engineFixture) define(t *testing.T, key string, dataType taxonomy.DataType, inheritable bool, rules taxonomy.Rules) *attribute.Definition {
	t.Helper()
	d, err := attribute.NewDefinition(key, "", dataType, inheritable)
	require.NoError(t, err)
	d.Rules = rules
	require.NoError(t, f.definitions.Save(context.Background(), d))
	return d
}

func (f *engineFixture) addProduct(t *testing.T, sku string, variantSKUs ...string) (*catalog.Product, []*catalog.Variant) {
	t.Helper()
	ctx := context.Background()
	p, err := catalog.NewProduct(sku, sku)
	require.NoError(t, err)
	require.NoError(t, f.catalog.SaveProduct(ctx, p))

	var variants []*catalog.Variant
	for _, vs := range variantSKUs {
		v, err := catalog.NewVariant(p.ID, vs, vs)
		require.NoError(t, err)
		require.NoError(t, f.catalog.SaveVariant(ctx, v))
		variants = append(variants, v)
	}
	return p, variants
}

func (f *engineFixture) set(t *testing.T, owner catalog.EntityRef, def *attribute.Definition, value string) *attribute.Assignment {
	t.Helper()
	a, err := attribute.NewAssignment(owner, def.ID, value)
	require.NoError(t, err)
	require.NoError(t, f.assignments.Save(context.Background(), a))
	return a
}

func (f *engineFixture) valueOf(t *testing.T, owner catalog.EntityRef, def *attribute.Definition) *attribute.Assignment {
	t.Helper()
	rows, err := f.assignments.FindBySlot(context.Background(), attribute.OwnerDefinition{Owner: owner, DefinitionID: def.ID})
	require.NoError(t, err)
	if len(rows) == 0 {
		return nil
	}
	require.Len(t, rows, 1)
	return &rows[0]
}

func TestInherit_CopiesProductValue(t *testing.T) {
	f := newEngineFixture(t)
	source := f.set(t, f.product.Ref(), f.material, "Cotton")
	v := f.variants[0]
	require.Equal(t, 0, v.OverrideCount)

	res, err := f.engine.InheritAttributesForVariant(context.Background(), v.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"material"}, res.Inherited)
	assert.Empty(t, res.Skipped)
	assert.Empty(t, res.Errors)

	got := f.valueOf(t, v.Ref(), f.material)
	require.NotNil(t, got)
	assert.Equal(t, "Cotton", got.Value)
	assert.True(t, got.IsInherited)
	require.NotNil(t, got.SourceAssignmentID)
	assert.Equal(t, source.ID, *got.SourceAssignmentID)
	assert.Equal(t, attribute.ValidationValid, got.Status)
	require.NotNil(t, got.ValidatedAt)
}

func TestInherit_OverridePrecedence(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.set(t, f.product.Ref(), f.material, "Cotton")
	v := f.variants[0]
	f.set(t, v.Ref(), f.material, "Linen")

	res, err := f.engine.InheritAttributesForVariant(ctx, v.ID, Options{})
	require.NoError(t, err)
	assert.NotContains(t, res.Inherited, "material")
	assert.Contains(t, res.Skipped, "material")
	got := f.valueOf(t, v.Ref(), f.material)
	assert.Equal(t, "Linen", got.Value)
	assert.False(t, got.IsInherited)

	res, err = f.engine.InheritAttributesForVariant(ctx, v.ID, Options{Force: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"material"}, res.Inherited)
	got = f.valueOf(t, v.Ref(), f.material)
	assert.Equal(t, "Cotton", got.Value)
	assert.True(t, got.IsInherited)
}

func TestInherit_Converges(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.set(t, f.product.Ref(), f.material, "Cotton")
	f.set(t, f.product.Ref(), f.color, "Red")
	f.set(t, f.product.Ref(), f.care, "Wash cold")
	v := f.variants[1]

	first, err := f.engine.InheritAttributesForVariant(ctx, v.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"color", "material"}, first.Inherited)

	second, err := f.engine.InheritAttributesForVariant(ctx, v.ID, Options{})
	require.NoError(t, err)
	assert.Empty(t, second.Inherited)
	assert.Equal(t, []string{"color", "material"}, second.Skipped)
	assert.Nil(t, f.valueOf(t, v.Ref(), f.care))
}

func TestInherit_RefreshesAfterProductChange(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	source := f.set(t, f.product.Ref(), f.material, "Cotton")
	v := f.variants[0]

	_, err := f.engine.InheritAttributesForVariant(ctx, v.ID, Options{})
	require.NoError(t, err)
	before := f.valueOf(t, v.Ref(), f.material)

	source.Value = "Wool"
	require.NoError(t, f.assignments.Save(ctx, source))

	res, err := f.engine.InheritAttributesForVariant(ctx, v.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"material"}, res.Inherited)
	after := f.valueOf(t, v.Ref(), f.material)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, "Wool", after.Value)
}

func TestInherit_RecordsInvalidValues(t *testing.T) {
	f := newEngineFixture(t)
	f.set(t, f.product.Ref(), f.color, "Green")
	v := f.variants[0]

	res, err := f.engine.InheritAttributesForVariant(context.Background(), v.ID, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"color"}, res.Inherited)
	require.Contains(t, res.Invalid, "color")
	assert.NotEmpty(t, res.Invalid["color"])

	got := f.valueOf(t, v.Ref(), f.color)
	assert.Equal(t, "Green", got.Value)
	assert.Equal(t, attribute.ValidationInvalid, got.Status)
	assert.Equal(t, res.Invalid["color"], got.ValidationErrors)
}

func TestInherit_PerKeyErrors(t *testing.T) {
	f := newEngineFixture(t)
	f.set(t, f.product.Ref(), f.material, "Cotton")
	f.set(t, f.product.Ref(), f.care, "Wash cold")
	v := f.variants[0]

	res, err := f.engine.InheritAttributesForVariant(context.Background(), v.ID, Options{
		AttributeKeys: []string{"material", "fit", "care"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"material"}, res.Inherited)
	assert.Equal(t, ErrUnknownAttribute.Error(), res.Errors["fit"])
	assert.Equal(t, attribute.ErrDefinitionNotInheritable.Error(), res.Errors["care"])
	assert.Nil(t, f.valueOf(t, v.Ref(), f.care))
}

func TestInherit_AmbiguousVariantValues(t *testing.T) {
	f := newEngineFixture(t)
	f.set(t, f.product.Ref(), f.material, "Cotton")
	f.set(t, f.product.Ref(), f.color, "Blue")
	v := f.variants[0]
	f.set(t, v.Ref(), f.material, "Linen")
	f.set(t, v.Ref(), f.material, "Silk")

	res, err := f.engine.InheritAttributesForVariant(context.Background(), v.ID, Options{Force: true})
	require.NoError(t, err)
	assert.Contains(t, res.Errors["material"], "more than one assignment")
	assert.Equal(t, []string{"color"}, res.Inherited)
}

func TestInherit_DryRunWritesNothing(t *testing.T) {
	f := newEngineFixture(t)
	f.set(t, f.product.Ref(), f.material, "Cotton")
	v := f.variants[0]

	res, err := f.engine.InheritAttributesForVariant(context.Background(), v.ID, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"material"}, res.Inherited)
	assert.Nil(t, f.valueOf(t, v.Ref(), f.material))
}

// MockValueValidator is a mock implementation of ValueValidator
type MockValueValidator struct {
	mock.Mock
}

func (m *MockValueValidator) ValidateValue(ctx context.Context, accountID uuid.UUID, key, value string) ([]string, error) {
	args := m.Called(ctx, accountID, key, value)
	violations, _ := args.Get(0).([]string)
	return violations, args.Error(1)
}

func TestInherit_ChannelRules(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	accountID := uuid.New()
	f.material.BindTaxonomy(accountID, "fabric")
	require.NoError(t, f.definitions.Save(ctx, f.material))
	f.color.BindTaxonomy(accountID, "colour")
	require.NoError(t, f.definitions.Save(ctx, f.color))
	f.set(t, f.product.Ref(), f.material, "Cotton")
	f.set(t, f.product.Ref(), f.color, "Red")

	validator := new(MockValueValidator)
	validator.On("ValidateValue", mock.Anything, accountID, "fabric", "Cotton").
		Return([]string{"Cotton is not offered by the channel"}, nil).Once()
	validator.On("ValidateValue", mock.Anything, accountID, "colour", "Red").
		Return(nil, taxonomy.ErrAttributeNotFound).Once()
	f.engine.SetTaxonomyValidator(validator)

	res, err := f.engine.InheritAttributesForVariant(ctx, f.variants[0].ID, Options{})
	require.NoError(t, err)
	validator.AssertExpectations(t)
	assert.Equal(t, []string{"color", "material"}, res.Inherited)
	assert.Equal(t, []string{"Cotton is not offered by the channel"}, res.Invalid["material"])
	assert.Equal(t, []string{"channel attribute colour is not published"}, res.Invalid["color"])
}

func TestInherit_UnknownVariant(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.InheritAttributesForVariant(context.Background(), uuid.New(), Options{})
	assert.ErrorIs(t, err, catalog.ErrVariantNotFound)
}
