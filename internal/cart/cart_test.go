package cart

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hakim/go-commerce/internal/database"
	"github.com/hakim/go-commerce/internal/models"
)

type fakeCatalog struct {
	products map[int64]*models.Product
}

func (f *fakeCatalog) Get(_ context.Context, id int64) (*models.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, database.ErrProductNotFound
	}
	return p, nil
}

type addedLine struct {
	orderID   int64
	productID int64
	quantity  int
}

type fakeOrders struct {
	nextOrderID int64
	added       []addedLine
	completed   []int64
	completeErr error
}

func (f *fakeOrders) Create(_ context.Context, customerID *int64) (*models.Order, error) {
	f.nextOrderID++
	return &models.Order{ID: f.nextOrderID, CustomerID: customerID}, nil
}

func (f *fakeOrders) AddLine(_ context.Context, orderID, productID int64, quantity int) (*models.OrderLine, error) {
	f.added = append(f.added, addedLine{orderID, productID, quantity})
	return &models.OrderLine{OrderID: &orderID, ProductID: &productID, Quantity: quantity}, nil
}

func (f *fakeOrders) Complete(_ context.Context, orderID int64, transactionID *string) (*models.Order, error) {
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	f.completed = append(f.completed, orderID)
	return &models.Order{ID: orderID, Complete: true, TransactionID: transactionID}, nil
}

func price(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newFixture() (*Service, *fakeOrders) {
	catalog := &fakeCatalog{products: map[int64]*models.Product{
		1: {ID: 1, Name: "Widget", Price: price("5.00"), Stock: 10},
		2: {ID: 2, Name: "Gadget", Price: price("20.00"), Stock: 2},
	}}
	orders := &fakeOrders{}
	return NewService(catalog, orders), orders
}

func TestAddValidatesQuantity(t *testing.T) {
	svc, _ := newFixture()

	err := svc.Add(context.Background(), "s1", 1, 0)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	err = svc.Add(context.Background(), "s1", 1, -3)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAddUnknownProduct(t *testing.T) {
	svc, _ := newFixture()

	err := svc.Add(context.Background(), "s1", 99, 1)
	assert.ErrorIs(t, err, database.ErrProductNotFound)
}

func TestAddRejectsMoreThanStock(t *testing.T) {
	svc, _ := newFixture()
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, "s1", 2, 1))

	// The check is cumulative over the cart, not per call.
	err := svc.Add(ctx, "s1", 2, 2)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	require.NoError(t, svc.Add(ctx, "s1", 2, 1))
}

func TestCartsAreIsolatedPerSession(t *testing.T) {
	svc, _ := newFixture()
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, "s1", 2, 2))
	// A different session still gets the full stock allowance.
	require.NoError(t, svc.Add(ctx, "s2", 2, 2))

	view1, err := svc.ViewCart(ctx, "s1")
	require.NoError(t, err)
	view2, err := svc.ViewCart(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, view1.Items, 1)
	assert.Len(t, view2.Items, 1)
}

func TestRemove(t *testing.T) {
	svc, _ := newFixture()
	ctx := context.Background()

	assert.ErrorIs(t, svc.Remove("s1", 1), ErrNotInCart)

	require.NoError(t, svc.Add(ctx, "s1", 1, 2))
	require.NoError(t, svc.Remove("s1", 1))

	view, err := svc.ViewCart(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, view.Items)
}

func TestViewCartTotals(t *testing.T) {
	svc, _ := newFixture()
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, "s1", 1, 3))
	require.NoError(t, svc.Add(ctx, "s1", 2, 2))

	view, err := svc.ViewCart(ctx, "s1")
	require.NoError(t, err)

	require.Len(t, view.Items, 2)
	assert.Equal(t, "Widget", view.Items[0].Name)
	assert.True(t, view.Items[0].Subtotal.Equal(price("15.00")))
	assert.True(t, view.Items[1].Subtotal.Equal(price("40.00")))
	assert.True(t, view.Total.Equal(price("55.00")))
}

func TestCheckoutEmptyCart(t *testing.T) {
	svc, _ := newFixture()

	_, err := svc.Checkout(context.Background(), "s1", nil)
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckoutConvertsCartToOrder(t *testing.T) {
	svc, orders := newFixture()
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, "s1", 2, 1))
	require.NoError(t, svc.Add(ctx, "s1", 1, 3))

	customerID := int64(7)
	order, err := svc.Checkout(ctx, "s1", &customerID)
	require.NoError(t, err)

	assert.True(t, order.Complete)
	require.NotNil(t, order.TransactionID)
	assert.NotEmpty(t, *order.TransactionID)

	// One line per cart entry, in product-id order.
	require.Len(t, orders.added, 2)
	assert.Equal(t, addedLine{order.ID, 1, 3}, orders.added[0])
	assert.Equal(t, addedLine{order.ID, 2, 1}, orders.added[1])
	assert.Equal(t, []int64{order.ID}, orders.completed)

	// Successful checkout clears the cart.
	view, err := svc.ViewCart(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, view.Items)
}

func TestCheckoutFailureKeepsCart(t *testing.T) {
	svc, orders := newFixture()
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, "s1", 1, 3))
	orders.completeErr = database.ErrInsufficientStock

	_, err := svc.Checkout(ctx, "s1", nil)
	assert.ErrorIs(t, err, database.ErrInsufficientStock)

	// The user can still adjust and retry.
	view, verr := svc.ViewCart(ctx, "s1")
	require.NoError(t, verr)
	assert.Len(t, view.Items, 1)
}
