package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hakim/go-commerce/internal/cart"
	"github.com/hakim/go-commerce/internal/database"
	"github.com/hakim/go-commerce/internal/store"
)

const sessionHeader = "X-Session-ID"

type api struct {
	products  *store.ProductStore
	customers *store.CustomerStore
	orders    *store.OrderStore
	reports   *store.ReportStore
	logs      *store.LogStore
	cart      *cart.Service
	log       *logrus.Logger
}

func (a *api) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /accounts", a.handleCreateAccount)
	mux.HandleFunc("GET /accounts/{id}", a.handleGetAccount)
	mux.HandleFunc("DELETE /accounts/{id}", a.handleDeleteAccount)

	mux.HandleFunc("POST /customers", a.handleCreateCustomer)
	mux.HandleFunc("GET /customers", a.handleListCustomers)
	mux.HandleFunc("GET /customers/{id}", a.handleGetCustomer)
	mux.HandleFunc("DELETE /customers/{id}", a.handleDeleteCustomer)

	mux.HandleFunc("POST /products", a.handleCreateProduct)
	mux.HandleFunc("GET /products", a.handleListProducts)
	mux.HandleFunc("GET /products/{id}", a.handleGetProduct)
	mux.HandleFunc("DELETE /products/{id}", a.handleDeleteProduct)
	mux.HandleFunc("PUT /products/{id}/stock", a.handleSetStock)

	mux.HandleFunc("POST /orders", a.handleCreateOrder)
	mux.HandleFunc("GET /orders", a.handleListOrders)
	mux.HandleFunc("GET /orders/{id}", a.handleGetOrder)
	mux.HandleFunc("GET /orders/{id}/total", a.handleOrderTotal)
	mux.HandleFunc("POST /orders/{id}/lines", a.handleAddLine)
	mux.HandleFunc("POST /orders/{id}/complete", a.handleCompleteOrder)
	mux.HandleFunc("GET /order-lines/{id}", a.handleGetLine)
	mux.HandleFunc("PUT /order-lines/{id}", a.handleUpdateLine)

	mux.HandleFunc("POST /cart/items", a.handleCartAdd)
	mux.HandleFunc("GET /cart", a.handleCartView)
	mux.HandleFunc("DELETE /cart/items/{id}", a.handleCartRemove)
	mux.HandleFunc("POST /cart/checkout", a.handleCartCheckout)

	mux.HandleFunc("GET /reports/summary", a.handleReportSummary)
	mux.HandleFunc("GET /reports/most-expensive-line", a.handleMostExpensiveLine)
	mux.HandleFunc("GET /reports/frequent-customers", a.handleFrequentCustomers)
	mux.HandleFunc("GET /reports/orders-since", a.handleOrdersSince)

	mux.HandleFunc("GET /logs", a.handleRecentLogs)

	return mux
}

func (a *api) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.log.WithError(err).Error("encode JSON response")
	}
}

func (a *api) respondError(w http.ResponseWriter, status int, message string) {
	a.respondJSON(w, status, map[string]string{"error": message})
}

// fail maps the store and cart sentinel errors onto HTTP status codes.
func (a *api) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrAccountNotFound),
		errors.Is(err, database.ErrCustomerNotFound),
		errors.Is(err, database.ErrProductNotFound),
		errors.Is(err, database.ErrOrderNotFound),
		errors.Is(err, database.ErrOrderLineNotFound),
		errors.Is(err, cart.ErrNotInCart):
		a.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrDuplicateOrderLine),
		errors.Is(err, database.ErrInsufficientStock),
		errors.Is(err, database.ErrMultipleResults),
		errors.Is(err, database.ErrOptimisticLockFailed),
		errors.Is(err, cart.ErrInsufficientStock):
		a.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrEmptyCart):
		a.respondError(w, http.StatusBadRequest, err.Error())
	default:
		a.log.WithError(err).Error("internal error")
		a.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil
}

func pageParams(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func (a *api) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	account, err := a.customers.CreateAccount(r.Context(), req.Username, req.Email)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusCreated, account)
}

func (a *api) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		a.respondError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	account, err := a.customers.GetAccount(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, account)
}

func (a *api) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		a.respondError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	if err := a.customers.DeleteAccount(r.Context(), id); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleCreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID int64  `json:"account_id"`
		Name      string `json:"name"`
		Email     string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	customer, err := a.customers.CreateCustomer(r.Context(), req.AccountID, req.Name, req.Email)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusCreated, customer)
}

func (a *api) handleListCustomers(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	result, err := a.customers.ListCustomers(r.Context(), page, pageSize)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, result)
}

func (a *api) handleGetCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		a.respondError(w, http.StatusBadRequest, "Invalid customer ID")
		return
	}

	customer, err := a.customers.GetCustomer(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, customer)
}

func (a *api) handleDeleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		a.respondError(w, http.StatusBadRequest, "Invalid customer ID")
		return
	}

	if err := a.customers.DeleteCustomer(r.Context(), id); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Price       string `json:"price"`
		Stock       int    `json:"stock"`
		Description string `json:"description"`
		ImagePath   string `json:"image_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		a.respondError(w, http.StatusBadRequest, "Invalid price")
		return
	}
	if req.Stock < 0 {
		a.respondError(w, http.StatusBadRequest, "Stock must be non-negative")
		return
	}

	product, err := a.products.Create(r.Context(), req.Name, price, req.Stock, req.Description, req.ImagePath)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusCreated, product)
}

// handleListProducts serves the catalog listing plus the search and price
// filters: ?search= (substring), ?name= (exactly-one lookup), ?price= and
// ?price_gt=.
func (a *api) handleListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	ctx := r.Context()

	if term := query.Get("search"); term != "" {
		products, err := a.products.SearchByName(ctx, term)
		if err != nil {
			a.fail(w, err)
			return
		}
		a.respondJSON(w, http.StatusOK, products)
		return
	}

	if name := query.Get("name"); name != "" {
		product, err := a.products.GetOneByName(ctx, name)
		if err != nil {
			a.fail(w, err)
			return
		}
		a.respondJSON(w, http.StatusOK, product)
		return
	}

	if raw := query.Get("price"); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			a.respondError(w, http.StatusBadRequest, "Invalid price")
			return
		}
		products, err := a.products.FilterByPrice(ctx, price)
		if err != nil {
			a.fail(w, err)
			return
		}
		a.respondJSON(w, http.StatusOK, products)
		return
	}

	if raw := query.Get("price_gt"); raw != "" {
		price, err := decimal.NewFromString(raw)
		if err != nil {
			a.respondError(w, http.StatusBadRequest, "Invalid price")
			return
		}
		products, err := a.products.FilterByPriceAbove(ctx, price)
		if err != nil {
			a.fail(w, err)
			return
		}
		a.respondJSON(w, http.StatusOK, products)
		return
	}

	page, pageSize := pageParams(r)
	result, err := a.products.List(ctx, page, pageSize)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, result)
}

func (a *api) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		a.respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	product, err := a.products.Get(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, product)
}

func (a *api) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		a.respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	if err := a.products.Delete(r.Context(), id); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleSetStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		a.respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	var req struct {
		Stock   int `json:"stock"`
		Version int `json:"version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Stock < 0 {
		a.respondError(w, http.StatusBadRequest, "Stock must be non-negative")
		return
	}

	if err := a.products.SetStockOptimistic(r.Context(), id, req.Stock, req.Version); err != nil {
		a.fail(w, err)
		return
	}

	product, err := a.products.Get(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, product)
}

func (a *api) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID *int64 `json:"customer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	order, err := a.orders.Create(r.Context(), req.CustomerID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusCreated, order)
}

func (a *api) handleListOrders(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(r.URL.Query().Get("customer_id"), 10, 64)
	if err != nil {
		a.respondError(w, http.StatusBadRequest, "Invalid customer_id")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	result, err := a.orders.ListByCustomer(r.Context(), customerID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, result)
}

func (a *api) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		a.respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	order, err := a.orders.Get(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, order)
}

func (a *api) handleOrderTotal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		a.respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	total, err := a.orders.Total(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, map[string]decimal.Decimal{"total": total})
}

func (a *api) handleAddLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		a.respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req struct {
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Quantity < 0 {
		a.respondError(w, http.StatusBadRequest, "Quantity must be non-negative")
		return
	}

	line, err := a.orders.AddLine(r.Context(), id, req.ProductID, req.Quantity)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusCreated, line)
}

func (a *api) handleCompleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		a.respondError(w, http.StatusBadRequest, "Invalid order ID")
		return
	}

	var req struct {
		TransactionID *string `json:"transaction_id"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	order, err := a.orders.Complete(r.Context(), id, req.TransactionID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, order)
}

func (a *api) handleGetLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		a.respondError(w, http.StatusBadRequest, "Invalid line ID")
		return
	}

	line, err := a.orders.GetLine(r.Context(), id)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, line)
}

func (a *api) handleUpdateLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		a.respondError(w, http.StatusBadRequest, "Invalid line ID")
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Quantity < 0 {
		a.respondError(w, http.StatusBadRequest, "Quantity must be non-negative")
		return
	}

	line, err := a.orders.UpdateLineQuantity(r.Context(), id, req.Quantity)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, line)
}

func (a *api) sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		a.respondError(w, http.StatusBadRequest, "Missing "+sessionHeader+" header")
		return "", false
	}
	return sessionID, true
}

func (a *api) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := a.sessionID(w, r)
	if !ok {
		return
	}

	var req struct {
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := a.cart.Add(r.Context(), sessionID, req.ProductID, req.Quantity); err != nil {
		a.fail(w, err)
		return
	}

	view, err := a.cart.ViewCart(r.Context(), sessionID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, view)
}

func (a *api) handleCartView(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := a.sessionID(w, r)
	if !ok {
		return
	}

	view, err := a.cart.ViewCart(r.Context(), sessionID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, view)
}

func (a *api) handleCartRemove(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := a.sessionID(w, r)
	if !ok {
		return
	}

	id, pok := pathID(r)
	if !pok {
		a.respondError(w, http.StatusBadRequest, "Invalid product ID")
		return
	}

	if err := a.cart.Remove(sessionID, id); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) handleCartCheckout(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := a.sessionID(w, r)
	if !ok {
		return
	}

	var req struct {
		CustomerID *int64 `json:"customer_id"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	order, err := a.cart.Checkout(r.Context(), sessionID, req.CustomerID)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusCreated, order)
}

func (a *api) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := a.reports.BuildSummary(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, summary)
}

func (a *api) handleMostExpensiveLine(w http.ResponseWriter, r *http.Request) {
	result, err := a.reports.MostExpensive(r.Context())
	if err != nil {
		a.fail(w, err)
		return
	}
	if result == nil {
		a.respondError(w, http.StatusNotFound, "No line items")
		return
	}
	a.respondJSON(w, http.StatusOK, result)
}

func (a *api) handleFrequentCustomers(w http.ResponseWriter, r *http.Request) {
	minOrders, _ := strconv.Atoi(r.URL.Query().Get("min"))
	if minOrders < 1 {
		minOrders = 3
	}

	ids, err := a.reports.FrequentCustomers(r.Context(), minOrders)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, map[string]any{"min_orders": minOrders, "customer_ids": ids})
}

func (a *api) handleOrdersSince(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("since")
	since, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		a.respondError(w, http.StatusBadRequest, "Invalid since timestamp, want RFC3339")
		return
	}

	count, err := a.reports.OrdersSince(r.Context(), since)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, map[string]any{"since": since, "orders": count})
}

func (a *api) handleRecentLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 500 {
		limit = 50
	}

	records, err := a.logs.Recent(r.Context(), limit)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.respondJSON(w, http.StatusOK, records)
}
