package order

import (
	"encoding/json"
	"fmt"

	"github.com/eslamgaber/storefront/internal/app/domain/product"
)

// Status values stored in the orders.status column.
const (
	StatusActive   = "active"
	StatusComplete = "complete"
)

// Order represents a user's shopping order.
type Order struct {
	ID     int64  `db:"id" json:"id"`
	Status string `db:"status" json:"status"`
	UserID int64  `db:"user_id" json:"user_id"`
}

// OrderProduct is a line item attaching a product to an order.
type OrderProduct struct {
	ID        int64 `db:"id" json:"id"`
	Quantity  int64 `db:"quantity" json:"quantity"`
	OrderID   int64 `db:"order_id" json:"order_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
}

// LineItem is one entry of the denormalized order view: the line item's own
// id and quantity plus the full joined product row.
type LineItem struct {
	ID       int64           `json:"id"`
	Quantity int64           `json:"quantity"`
	Product  product.Product `json:"product"`
}

// LineItems scans the JSON aggregate column produced by the orders lookup.
type LineItems []LineItem

// Scan implements sql.Scanner for the json_agg output.
func (l *LineItems) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = LineItems{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("order: cannot scan %T into LineItems", src)
	}

	items := LineItems{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("order: decode line items: %w", err)
	}
	*l = items
	return nil
}

// Lookup is the denormalized view of one order: its own columns, the owning
// user's username and the aggregated line items (empty, never nil, when the
// order has no products).
type Lookup struct {
	Order
	Username      string    `db:"username" json:"username"`
	OrderProducts LineItems `db:"order_products" json:"order_products"`
}
