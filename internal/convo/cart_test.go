package convo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiendi/tiendi/internal/domain"
)

func hoodieMedium(qty int) domain.LineItem {
	return domain.LineItem{
		Query:        "2 mediums",
		ProductID:    "p-hoodie",
		ProductName:  "Hoodie",
		VariantLabel: "Medium",
		UnitPrice:    22,
		Quantity:     qty,
	}
}

func TestUpsertAccumulatesQuantity(t *testing.T) {
	cart := UpsertLine(nil, hoodieMedium(2))
	cart = UpsertLine(cart, hoodieMedium(1))

	require.Len(t, cart.Items, 1)
	assert.Equal(t, 3, cart.Items[0].Quantity)
	assert.Equal(t, 66.0, cart.Total)
}

func TestUpsertDistinctVariantsSeparateLines(t *testing.T) {
	cart := UpsertLine(nil, hoodieMedium(1))
	large := hoodieMedium(1)
	large.VariantLabel = "Large"
	large.UnitPrice = 24
	cart = UpsertLine(cart, large)

	require.Len(t, cart.Items, 2)
	assert.Equal(t, 46.0, cart.Total)
}

func TestTotalExcludesUnresolvedLines(t *testing.T) {
	cart := UpsertLine(nil, hoodieMedium(2))
	cart = UpsertLine(cart, domain.LineItem{Query: "something weird", Quantity: 1})

	assert.Len(t, cart.Items, 2)
	assert.Equal(t, 44.0, cart.Total)
	assert.Len(t, ResolvedItems(cart), 1)
}

func TestRemoveByProductID(t *testing.T) {
	cart := UpsertLine(nil, hoodieMedium(2))
	assert.True(t, RemoveLine(cart, "p-hoodie"))
	assert.Empty(t, cart.Items)
	assert.Zero(t, cart.Total)
}

func TestRemoveByQuerySubstring(t *testing.T) {
	cart := UpsertLine(nil, hoodieMedium(2))
	assert.True(t, RemoveLine(cart, "medium"))
	assert.Empty(t, cart.Items)

	cart = UpsertLine(nil, hoodieMedium(2))
	assert.False(t, RemoveLine(cart, "pizza"))
	assert.Len(t, cart.Items, 1)
}

func TestSetQuantity(t *testing.T) {
	cart := UpsertLine(nil, hoodieMedium(2))
	require.True(t, SetQuantity(cart, "hoodie", 5))
	assert.Equal(t, 5, cart.Items[0].Quantity)
	assert.Equal(t, 110.0, cart.Total)

	// Quantity ≤ 0 removes the line.
	require.True(t, SetQuantity(cart, "hoodie", 0))
	assert.Empty(t, cart.Items)
	assert.Zero(t, cart.Total)
}

func TestUpsertDefaultsQuantity(t *testing.T) {
	cart := UpsertLine(nil, domain.LineItem{ProductID: "p1", UnitPrice: 10})
	assert.Equal(t, 1, cart.Items[0].Quantity)
	assert.Equal(t, 10.0, cart.Total)
}
