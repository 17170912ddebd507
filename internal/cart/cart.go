// Package cart holds the per-session shopping cart and its conversion
// into an order at checkout.
package cart

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hakim/go-commerce/internal/models"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	ErrNotInCart       = errors.New("product is not in the cart")
	ErrEmptyCart       = errors.New("cart is empty")
	// ErrInsufficientStock is returned when adding more units than the
	// catalog has on hand. The old implementation let carts grow past
	// available stock and only failed at fulfillment; validating here
	// keeps checkouts from being rejected for stale carts.
	ErrInsufficientStock = errors.New("not enough stock for requested quantity")
)

// ProductCatalog is the slice of the catalog the cart needs.
type ProductCatalog interface {
	Get(ctx context.Context, id int64) (*models.Product, error)
}

// OrderWriter is the order-side boundary checkout converts a cart through:
// one Create, one AddLine per cart entry, one Complete.
type OrderWriter interface {
	Create(ctx context.Context, customerID *int64) (*models.Order, error)
	AddLine(ctx context.Context, orderID, productID int64, quantity int) (*models.OrderLine, error)
	Complete(ctx context.Context, orderID int64, transactionID *string) (*models.Order, error)
}

// Cart maps product ids to quantities. Not safe for concurrent use on its
// own; Sessions serializes access.
type Cart struct {
	items map[int64]int
}

func NewCart() *Cart {
	return &Cart{items: make(map[int64]int)}
}

func (c *Cart) add(productID int64, quantity int) {
	c.items[productID] += quantity
}

func (c *Cart) remove(productID int64) bool {
	if _, ok := c.items[productID]; !ok {
		return false
	}
	delete(c.items, productID)
	return true
}

func (c *Cart) quantity(productID int64) int {
	return c.items[productID]
}

// Entry is one (product, quantity) pair in a cart snapshot.
type Entry struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (c *Cart) entries() []Entry {
	result := make([]Entry, 0, len(c.items))
	for id, qty := range c.items {
		result = append(result, Entry{ProductID: id, Quantity: qty})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ProductID < result[j].ProductID })
	return result
}

// Sessions keeps one cart per browsing session, keyed by session id.
type Sessions struct {
	mu    sync.Mutex
	carts map[string]*Cart
}

func NewSessions() *Sessions {
	return &Sessions{carts: make(map[string]*Cart)}
}

func (s *Sessions) cart(sessionID string) *Cart {
	c, ok := s.carts[sessionID]
	if !ok {
		c = NewCart()
		s.carts[sessionID] = c
	}
	return c
}

// Service validates cart mutations against the catalog and performs the
// checkout conversion.
type Service struct {
	sessions *Sessions
	catalog  ProductCatalog
	orders   OrderWriter
}

func NewService(catalog ProductCatalog, orders OrderWriter) *Service {
	return &Service{
		sessions: NewSessions(),
		catalog:  catalog,
		orders:   orders,
	}
}

// Add puts quantity more units of the product into the session's cart,
// refusing quantities that exceed what the catalog has on hand.
func (s *Service) Add(ctx context.Context, sessionID string, productID int64, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	product, err := s.catalog.Get(ctx, productID)
	if err != nil {
		return err
	}

	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()

	cart := s.sessions.cart(sessionID)
	if cart.quantity(productID)+quantity > product.Stock {
		return ErrInsufficientStock
	}
	cart.add(productID, quantity)

	return nil
}

func (s *Service) Remove(sessionID string, productID int64) error {
	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()

	if !s.sessions.cart(sessionID).remove(productID) {
		return ErrNotInCart
	}
	return nil
}

// ViewItem is one cart row resolved against the catalog.
type ViewItem struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type View struct {
	Items []ViewItem      `json:"items"`
	Total decimal.Decimal `json:"total"`
}

func (s *Service) ViewCart(ctx context.Context, sessionID string) (*View, error) {
	s.sessions.mu.Lock()
	entries := s.sessions.cart(sessionID).entries()
	s.sessions.mu.Unlock()

	view := &View{Items: []ViewItem{}, Total: decimal.Zero}
	for _, entry := range entries {
		product, err := s.catalog.Get(ctx, entry.ProductID)
		if err != nil {
			return nil, err
		}
		subtotal := models.LineTotal(&product.Price, entry.Quantity)
		view.Items = append(view.Items, ViewItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  entry.Quantity,
			Subtotal:  subtotal,
		})
		view.Total = view.Total.Add(subtotal)
	}

	return view, nil
}

// Checkout turns the session's cart into a completed order: create the
// header, add one line per entry, then complete it with a fresh
// transaction id. The cart is only cleared once completion succeeds, so a
// rejected checkout (say, someone else bought the last unit) leaves the
// cart intact for the user to adjust.
func (s *Service) Checkout(ctx context.Context, sessionID string, customerID *int64) (*models.Order, error) {
	s.sessions.mu.Lock()
	entries := s.sessions.cart(sessionID).entries()
	s.sessions.mu.Unlock()

	if len(entries) == 0 {
		return nil, ErrEmptyCart
	}

	order, err := s.orders.Create(ctx, customerID)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if _, err := s.orders.AddLine(ctx, order.ID, entry.ProductID, entry.Quantity); err != nil {
			return nil, err
		}
	}

	transactionID := uuid.NewString()
	completed, err := s.orders.Complete(ctx, order.ID, &transactionID)
	if err != nil {
		return nil, err
	}

	s.sessions.mu.Lock()
	delete(s.sessions.carts, sessionID)
	s.sessions.mu.Unlock()

	return completed, nil
}
