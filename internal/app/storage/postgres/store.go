package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/eslamgaber/storefront/internal/app/domain/order"
	"github.com/eslamgaber/storefront/internal/app/domain/product"
	"github.com/eslamgaber/storefront/internal/app/domain/user"
)

// Store bundles one accessor per entity, all sharing the injected pool
// handle. UserViews reads the users table through the password-free row
// shape used by display endpoints.
type Store struct {
	Users         *Accessor[user.User]
	UserViews     *Accessor[user.Public]
	Products      *Accessor[product.Product]
	Orders        *OrdersStore
	OrderProducts *Accessor[order.OrderProduct]
}

// NewStore constructs the accessor bundle over the given pool.
func NewStore(db *sqlx.DB) *Store {
	return &Store{
		Users:         NewAccessor[user.User]("users", db),
		UserViews:     NewAccessor[user.Public]("users", db),
		Products:      NewAccessor[product.Product]("products", db),
		Orders:        NewOrdersStore(db),
		OrderProducts: NewAccessor[order.OrderProduct]("order_products", db),
	}
}

// Rebind re-points every accessor at a replacement pool. Used at startup and
// in tests only; rebinds must not race in-flight operations.
func (s *Store) Rebind(db *sqlx.DB) {
	s.Users.Rebind(db)
	s.UserViews.Rebind(db)
	s.Products.Rebind(db)
	s.Orders.Rebind(db)
	s.OrderProducts.Rebind(db)
}
