package integration

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/hakim/go-commerce/internal/database"
	"github.com/hakim/go-commerce/internal/store"
)

func TestConcurrentStockDecrement(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	products := store.NewProductStore(db)

	product := mustCreateProduct(t, products, "Widget", "100.00", 10)

	concurrency := 5
	var wg sync.WaitGroup
	errCh := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
				return store.DecrementStock(ctx, tx, product.ID, 2)
			})
			if err != nil {
				errCh <- err
			}
		}()
	}

	wg.Wait()
	close(errCh)

	successCount := concurrency
	for err := range errCh {
		if !errors.Is(err, database.ErrInsufficientStock) {
			t.Fatalf("Unexpected error: %v", err)
		}
		successCount--
	}

	final, err := products.Get(ctx, product.ID)
	if err != nil {
		t.Fatalf("Get product: %v", err)
	}

	expectedStock := 10 - successCount*2
	if final.Stock != expectedStock {
		t.Errorf("Expected stock %d, got %d", expectedStock, final.Stock)
	}
	if final.Stock < 0 {
		t.Errorf("Stock must never go negative, got %d", final.Stock)
	}
}

func TestSetStockOptimistic(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	products := store.NewProductStore(db)

	product := mustCreateProduct(t, products, "Widget", "100.00", 50)

	err := products.SetStockOptimistic(ctx, product.ID, 40, product.Version)
	if err != nil {
		t.Fatalf("First update should succeed: %v", err)
	}

	err = products.SetStockOptimistic(ctx, product.ID, 30, product.Version)
	if !errors.Is(err, database.ErrOptimisticLockFailed) {
		t.Errorf("Expected optimistic lock failure, got: %v", err)
	}
}

func TestLockProductNoWait(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	products := store.NewProductStore(db)

	product := mustCreateProduct(t, products, "Widget", "100.00", 20)

	tx1, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("Begin tx1: %v", err)
	}
	defer func() { _ = tx1.Rollback() }()

	if _, err := store.LockProduct(ctx, tx1, product.ID); err != nil {
		t.Fatalf("Lock product in tx1: %v", err)
	}

	tx2, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("Begin tx2: %v", err)
	}
	defer func() { _ = tx2.Rollback() }()

	_, err = store.LockProduct(ctx, tx2, product.ID)
	if !errors.Is(err, database.ErrLockTimeout) {
		t.Errorf("Expected lock timeout, got: %v", err)
	}
}

func TestGetOneByName(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	products := store.NewProductStore(db)

	mustCreateProduct(t, products, "Laptop Pro", "1200.00", 3)
	mustCreateProduct(t, products, "Laptop Air", "900.00", 5)
	mustCreateProduct(t, products, "Laptop Air", "950.00", 2)

	product, err := products.GetOneByName(ctx, "Laptop Pro")
	if err != nil {
		t.Fatalf("Get one by name: %v", err)
	}
	requireDecimal(t, product.Price, "1200.00")

	_, err = products.GetOneByName(ctx, "Laptop Air")
	if !errors.Is(err, database.ErrMultipleResults) {
		t.Fatalf("Expected ErrMultipleResults, got %v", err)
	}

	_, err = products.GetOneByName(ctx, "Desktop")
	if !errors.Is(err, database.ErrProductNotFound) {
		t.Fatalf("Expected ErrProductNotFound, got %v", err)
	}
}

func TestExistsNeverErrors(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	products := store.NewProductStore(db)

	product := mustCreateProduct(t, products, "Widget", "1.00", 1)

	exists, err := products.Exists(ctx, product.ID)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Fatal("Expected product to exist")
	}

	exists, err = products.Exists(ctx, 99999)
	if err != nil {
		t.Fatalf("Exists on missing id must not error: %v", err)
	}
	if exists {
		t.Fatal("Expected product to not exist")
	}
}

func TestSearchByName(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	products := store.NewProductStore(db)

	mustCreateProduct(t, products, "Gaming Laptop", "1500.00", 3)
	mustCreateProduct(t, products, "laptop sleeve", "25.00", 10)
	mustCreateProduct(t, products, "Desk Lamp", "35.00", 7)

	results, err := products.SearchByName(ctx, "laptop")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 case-insensitive matches, got %d", len(results))
	}
	// Results come back price-descending.
	if results[0].Name != "Gaming Laptop" {
		t.Errorf("Expected Gaming Laptop first, got %s", results[0].Name)
	}
}

func TestListProductsOrderedByPriceDesc(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	products := store.NewProductStore(db)

	mustCreateProduct(t, products, "Cheap", "1.00", 1)
	mustCreateProduct(t, products, "Mid", "10.00", 1)
	mustCreateProduct(t, products, "Dear", "100.00", 1)

	page, err := products.List(ctx, 1, 10)
	if err != nil {
		t.Fatalf("List products: %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("Expected total 3, got %d", page.Total)
	}
}
