package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eslamgaber/storefront/internal/app/domain/order"
	"github.com/eslamgaber/storefront/internal/app/domain/user"
	"github.com/eslamgaber/storefront/internal/app/storage/sqlgen"
	"github.com/eslamgaber/storefront/internal/platform/migrations"
)

// openIntegrationDB connects to the database named by TEST_POSTGRES_DSN and
// applies the schema. Tests are skipped when the variable is unset.
func openIntegrationDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		t.Skipf("database unreachable: %v", err)
	}

	if err := migrations.Up(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestIntegrationOrderLifecycle(t *testing.T) {
	db := openIntegrationDB(t)
	store := NewStore(db)
	ctx := context.Background()

	username := fmt.Sprintf("it_%d", time.Now().UnixNano())
	userRes, err := store.Users.Create(ctx, sqlgen.Values{
		"username":  username,
		"firstname": "Integration",
		"lastname":  "Tester",
		"password":  "not-a-real-hash",
		"role":      user.RoleUser,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	u := userRes.First()
	t.Cleanup(func() { store.Users.Delete(ctx, sqlgen.Condition{"id": u.ID}) })

	productRes, err := store.Products.Create(ctx, sqlgen.Values{
		"product_name": "Integration Keyboard",
		"price":        50.0,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	p := productRes.First()
	t.Cleanup(func() { store.Products.Delete(ctx, sqlgen.Condition{"id": p.ID}) })

	orderRes, err := store.Orders.Create(ctx, sqlgen.Values{
		"status":  order.StatusActive,
		"user_id": u.ID,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	o := orderRes.First()

	if _, err := store.OrderProducts.Create(ctx, sqlgen.Values{
		"order_id":   o.ID,
		"product_id": p.ID,
		"quantity":   int64(6),
	}); err != nil {
		t.Fatalf("create line item: %v", err)
	}

	lookup, err := store.Orders.FindOneByLookup(ctx, sqlgen.SelectOptions{
		Condition: sqlgen.Condition{"id": o.ID},
	})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if lookup == nil {
		t.Fatal("expected the order in the lookup")
	}
	if lookup.Username != username {
		t.Fatalf("unexpected username %q", lookup.Username)
	}
	if len(lookup.OrderProducts) != 1 {
		t.Fatalf("expected one line item, got %d", len(lookup.OrderProducts))
	}
	item := lookup.OrderProducts[0]
	if item.Quantity != 6 || item.Product.ID != p.ID {
		t.Fatalf("unexpected line item %+v", item)
	}

	exists, err := store.Orders.Exists(ctx, sqlgen.Condition{
		"status":  order.StatusActive,
		"user_id": u.ID,
	})
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Fatal("expected an active order")
	}

	updated, err := store.Orders.Update(ctx, sqlgen.UpdateOptions{
		Changes:   sqlgen.Values{"status": order.StatusComplete},
		Condition: sqlgen.Condition{"id": o.ID, "status": order.StatusActive},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.RowCount != 1 {
		t.Fatalf("expected one row updated, got %d", updated.RowCount)
	}

	again, err := store.Orders.Update(ctx, sqlgen.UpdateOptions{
		Changes:   sqlgen.Values{"status": order.StatusComplete},
		Condition: sqlgen.Condition{"id": o.ID, "status": order.StatusActive},
	})
	if err != nil {
		t.Fatalf("repeat update: %v", err)
	}
	if again.RowCount != 0 {
		t.Fatalf("expected no rows on repeat update, got %d", again.RowCount)
	}

	// Deleting the order cascades onto its line items.
	if _, err := store.Orders.Delete(ctx, sqlgen.Condition{"id": o.ID}); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestIntegrationEmptyAggregate(t *testing.T) {
	db := openIntegrationDB(t)
	store := NewStore(db)
	ctx := context.Background()

	username := fmt.Sprintf("it_%d", time.Now().UnixNano())
	userRes, err := store.Users.Create(ctx, sqlgen.Values{
		"username":  username,
		"firstname": "Integration",
		"lastname":  "Tester",
		"password":  "not-a-real-hash",
		"role":      user.RoleUser,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	u := userRes.First()
	t.Cleanup(func() { store.Users.Delete(ctx, sqlgen.Condition{"id": u.ID}) })

	orderRes, err := store.Orders.Create(ctx, sqlgen.Values{
		"status":  order.StatusActive,
		"user_id": u.ID,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	o := orderRes.First()
	t.Cleanup(func() { store.Orders.Delete(ctx, sqlgen.Condition{"id": o.ID}) })

	lookup, err := store.Orders.FindOneByLookup(ctx, sqlgen.SelectOptions{
		Condition: sqlgen.Condition{"id": o.ID},
	})
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if lookup == nil {
		t.Fatal("an order without items must still appear in lookups")
	}
	if lookup.OrderProducts == nil || len(lookup.OrderProducts) != 0 {
		t.Fatalf("expected an empty line item list, got %+v", lookup.OrderProducts)
	}
}
