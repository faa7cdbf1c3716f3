package postgres

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/eslamgaber/storefront/internal/app/domain/order"
	"github.com/eslamgaber/storefront/internal/app/storage/sqlgen"
)

// orderProductsAggregate collapses the one-to-many line items of an order
// into a single JSON array column. The count guard keeps orders without line
// items in the result set with an empty list instead of a null aggregate.
const orderProductsAggregate = "case when count(products) = 0 then '[]' " +
	"else json_agg(json_build_object(" +
	"'id', order_products.id, " +
	"'quantity', order_products.quantity, " +
	"'product', products.*)) end as order_products"

// ordersLookupJoins are prepended ahead of any caller-supplied joins. LEFT
// joins are required so that orders with zero line items do not disappear.
var ordersLookupJoins = []sqlgen.Join{
	{Kind: sqlgen.LeftJoin, Table: "order_products", On: "orders.id = order_products.order_id"},
	{Kind: sqlgen.LeftJoin, Table: "products", On: "products.id = order_products.product_id"},
	{Kind: sqlgen.LeftJoin, Table: "users", On: "users.id = orders.user_id"},
}

func qualifyOrdersColumn(col string) string {
	if strings.Contains(col, ".") {
		return col
	}
	return "orders." + col
}

// ApplyOrdersLookup returns a new descriptor decorated for the denormalized
// order view: caller columns qualified with the orders prefix, the owning
// user's username and the JSON line-item aggregate appended to the
// projection, grouping by the order's primary key and the username, and the
// three lookup joins placed before any caller joins. The input descriptor is
// left untouched.
func ApplyOrdersLookup(opts sqlgen.SelectOptions) sqlgen.SelectOptions {
	decorated := opts

	projection := make([]string, 0, len(opts.Projection)+2)
	if len(opts.Projection) == 0 {
		projection = append(projection, "orders.*")
	} else {
		for _, col := range opts.Projection {
			projection = append(projection, qualifyOrdersColumn(col))
		}
	}
	decorated.Projection = append(projection, "users.username", orderProductsAggregate)

	if len(opts.Condition) > 0 {
		cond := make(sqlgen.Condition, len(opts.Condition))
		for col, v := range opts.Condition {
			cond[qualifyOrdersColumn(col)] = v
		}
		decorated.Condition = cond
	}

	// The aggregate forces grouping over all non-aggregated columns; grouping
	// by the primary key covers the order's own columns.
	decorated.GroupBy = append([]string{"orders.id", "users.username"}, opts.GroupBy...)
	decorated.Joins = append(append([]sqlgen.Join{}, ordersLookupJoins...), opts.Joins...)

	return decorated
}

// OrdersStore extends the generic orders accessor with the denormalized
// lookup view joining orders, line items, products and the owning user.
type OrdersStore struct {
	*Accessor[order.Order]
	lookup *Accessor[order.Lookup]
}

// NewOrdersStore builds the orders accessor pair over the orders table.
func NewOrdersStore(db *sqlx.DB) *OrdersStore {
	return &OrdersStore{
		Accessor: NewAccessor[order.Order]("orders", db),
		lookup:   NewAccessor[order.Lookup]("orders", db),
	}
}

// IndexByLookup returns the denormalized view of every order matching the
// descriptor.
func (s *OrdersStore) IndexByLookup(ctx context.Context, opts sqlgen.SelectOptions) ([]order.Lookup, error) {
	return s.lookup.Index(ctx, ApplyOrdersLookup(opts))
}

// FindOneByLookup returns the denormalized view of the first matching order,
// or nil when none matches.
func (s *OrdersStore) FindOneByLookup(ctx context.Context, opts sqlgen.SelectOptions) (*order.Lookup, error) {
	return s.lookup.FindOne(ctx, ApplyOrdersLookup(opts))
}

// Rebind swaps the pool handle on both underlying accessors.
func (s *OrdersStore) Rebind(db *sqlx.DB) {
	s.Accessor.Rebind(db)
	s.lookup.Rebind(db)
}
