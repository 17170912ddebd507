package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/hakim/go-commerce/internal/database"
	"github.com/hakim/go-commerce/internal/store"
)

func TestDeleteAccountCascadesToCustomer(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	customers := store.NewCustomerStore(db)

	customer := mustCreateCustomer(t, customers, "alice")

	if err := customers.DeleteAccount(ctx, customer.AccountID); err != nil {
		t.Fatalf("Delete account: %v", err)
	}

	_, err := customers.GetCustomer(ctx, customer.ID)
	if !errors.Is(err, database.ErrCustomerNotFound) {
		t.Fatalf("Expected customer to be cascade-deleted, got %v", err)
	}
}

func TestDeleteCustomerNullsOrderReference(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	customers := store.NewCustomerStore(db)
	orders := store.NewOrderStore(db)

	customer := mustCreateCustomer(t, customers, "bob")

	order, err := orders.Create(ctx, &customer.ID)
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}
	if order.CustomerID == nil || *order.CustomerID != customer.ID {
		t.Fatal("Expected order linked to customer")
	}

	if err := customers.DeleteCustomer(ctx, customer.ID); err != nil {
		t.Fatalf("Delete customer: %v", err)
	}

	// The order survives the customer; only the reference is nulled.
	after, err := orders.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if after.CustomerID != nil {
		t.Fatalf("Expected nulled customer reference, got %v", *after.CustomerID)
	}
}

func TestGetCustomerByAccount(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	customers := store.NewCustomerStore(db)

	customer := mustCreateCustomer(t, customers, "carol")

	found, err := customers.GetCustomerByAccount(ctx, customer.AccountID)
	if err != nil {
		t.Fatalf("Get customer by account: %v", err)
	}
	if found.ID != customer.ID {
		t.Fatalf("Expected customer %d, got %d", customer.ID, found.ID)
	}
}

func TestLoggingRecordLifecycle(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	logs := store.NewLogStore(db)

	id, err := logs.CreateRecord(ctx, nil, "GET", "/products")
	if err != nil {
		t.Fatalf("Create logging record: %v", err)
	}

	records, err := logs.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("List records: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if records[0].StatusCode != nil {
		t.Fatal("Status code must be unset before the response is written")
	}

	if err := logs.SetStatus(ctx, id, 200); err != nil {
		t.Fatalf("Set status: %v", err)
	}

	records, err = logs.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("List records: %v", err)
	}
	if records[0].StatusCode == nil || *records[0].StatusCode != 200 {
		t.Fatalf("Expected status 200, got %v", records[0].StatusCode)
	}
}
