// Package orders implements cart and order management. Orders move from
// active to complete; line items can only be attached to an active order.
package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/eslamgaber/storefront/internal/app/domain/order"
	"github.com/eslamgaber/storefront/internal/app/domain/user"
	"github.com/eslamgaber/storefront/internal/app/storage/postgres"
	"github.com/eslamgaber/storefront/internal/app/storage/sqlgen"
	"github.com/eslamgaber/storefront/pkg/logger"
)

// Errors
var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrActiveOrderExists = errors.New("active order already exists")
)

// OrderStore covers the orders accessor including the join-decorated reads.
type OrderStore interface {
	IndexByLookup(ctx context.Context, opts sqlgen.SelectOptions) ([]order.Lookup, error)
	FindOneByLookup(ctx context.Context, opts sqlgen.SelectOptions) (*order.Lookup, error)
	Exists(ctx context.Context, condition sqlgen.Condition) (bool, error)
	Create(ctx context.Context, row sqlgen.Values) (postgres.Result[order.Order], error)
	Update(ctx context.Context, opts sqlgen.UpdateOptions) (postgres.Result[order.Order], error)
	Delete(ctx context.Context, condition sqlgen.Condition) (postgres.Result[order.Order], error)
}

// ItemStore covers the order_products accessor.
type ItemStore interface {
	Create(ctx context.Context, row sqlgen.Values) (postgres.Result[order.OrderProduct], error)
	Delete(ctx context.Context, condition sqlgen.Condition) (postgres.Result[order.OrderProduct], error)
}

// NewItem is the payload for attaching a product to an order.
type NewItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// Service manages orders on behalf of an acting user. Admins may operate on
// any user's orders; regular users are scoped to their own.
type Service struct {
	orders OrderStore
	items  ItemStore
	log    *logger.Logger
}

// New constructs the orders service.
func New(orders OrderStore, items ItemStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("orders")
	}
	return &Service{orders: orders, items: items, log: log}
}

// ownerFor resolves which user's orders the call targets. Admins may name
// another user; everyone else gets their own id regardless of the argument.
func ownerFor(actor *user.User, userID int64) int64 {
	if actor.IsAdmin() && userID > 0 {
		return userID
	}
	return actor.ID
}

// List returns orders with their line items. Status defaults to complete;
// anything other than "active" is treated as complete.
func (s *Service) List(ctx context.Context, actor *user.User, status string, userID int64) ([]order.Lookup, error) {
	if status != order.StatusActive {
		status = order.StatusComplete
	}
	return s.orders.IndexByLookup(ctx, sqlgen.SelectOptions{
		Condition: sqlgen.Condition{
			"status":  status,
			"user_id": ownerFor(actor, userID),
		},
	})
}

// Get returns one order with its line items.
func (s *Service) Get(ctx context.Context, actor *user.User, id int64) (*order.Lookup, error) {
	o, err := s.orders.FindOneByLookup(ctx, sqlgen.SelectOptions{
		Condition: s.scope(actor, sqlgen.Condition{"id": id}),
	})
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrNotFound
	}
	return o, nil
}

// GetActive returns the single active order of the targeted user.
func (s *Service) GetActive(ctx context.Context, actor *user.User, userID int64) (*order.Lookup, error) {
	o, err := s.orders.FindOneByLookup(ctx, sqlgen.SelectOptions{
		Condition: sqlgen.Condition{
			"status":  order.StatusActive,
			"user_id": ownerFor(actor, userID),
		},
	})
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrNotFound
	}
	return o, nil
}

// Create opens a new active order for the targeted user. At most one active
// order per user is allowed; the existence probe and the insert are separate
// statements, so two concurrent creates can still both succeed.
func (s *Service) Create(ctx context.Context, actor *user.User, userID int64) (*order.Order, error) {
	owner := ownerFor(actor, userID)

	active, err := s.orders.Exists(ctx, sqlgen.Condition{
		"status":  order.StatusActive,
		"user_id": owner,
	})
	if err != nil {
		return nil, fmt.Errorf("check active order: %w", err)
	}
	if active {
		return nil, ErrActiveOrderExists
	}

	res, err := s.orders.Create(ctx, sqlgen.Values{
		"status":  order.StatusActive,
		"user_id": owner,
	})
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	created := res.First()
	if created == nil {
		return nil, fmt.Errorf("insert order: no row returned")
	}
	s.log.WithField("order_id", created.ID).WithField("user_id", owner).Info("order created")
	return created, nil
}

// Complete marks an active order as complete. The status is part of the
// update condition, so completing an already-complete or foreign order
// matches zero rows and reports not found.
func (s *Service) Complete(ctx context.Context, actor *user.User, id int64) (*order.Order, error) {
	res, err := s.orders.Update(ctx, sqlgen.UpdateOptions{
		Changes:   sqlgen.Values{"status": order.StatusComplete},
		Condition: s.scope(actor, sqlgen.Condition{"id": id, "status": order.StatusActive}),
	})
	if err != nil {
		return nil, fmt.Errorf("complete order: %w", err)
	}
	updated := res.First()
	if updated == nil {
		return nil, ErrNotFound
	}
	s.log.WithField("order_id", id).Info("order completed")
	return updated, nil
}

// Delete removes an order; the cascade takes its line items with it.
func (s *Service) Delete(ctx context.Context, actor *user.User, id int64) (*order.Order, error) {
	res, err := s.orders.Delete(ctx, s.scope(actor, sqlgen.Condition{"id": id}))
	if err != nil {
		return nil, fmt.Errorf("delete order: %w", err)
	}
	removed := res.First()
	if removed == nil {
		return nil, ErrNotFound
	}
	s.log.WithField("order_id", id).Info("order deleted")
	return removed, nil
}

// AddProduct attaches a product to an order. The order must exist, be
// visible to the actor and still be active.
func (s *Service) AddProduct(ctx context.Context, actor *user.User, orderID int64, in NewItem) (*order.OrderProduct, error) {
	if in.ProductID <= 0 {
		return nil, fmt.Errorf("%w: product_id is required", ErrInvalidInput)
	}
	if in.Quantity <= 0 {
		in.Quantity = 1
	}

	if err := s.requireActive(ctx, actor, orderID); err != nil {
		return nil, err
	}

	res, err := s.items.Create(ctx, sqlgen.Values{
		"order_id":   orderID,
		"product_id": in.ProductID,
		"quantity":   in.Quantity,
	})
	if err != nil {
		return nil, fmt.Errorf("insert line item: %w", err)
	}
	created := res.First()
	if created == nil {
		return nil, fmt.Errorf("insert line item: no row returned")
	}
	return created, nil
}

// RemoveProduct detaches a line item from an active order.
func (s *Service) RemoveProduct(ctx context.Context, actor *user.User, orderID, itemID int64) (*order.OrderProduct, error) {
	if err := s.requireActive(ctx, actor, orderID); err != nil {
		return nil, err
	}

	res, err := s.items.Delete(ctx, sqlgen.Condition{
		"id":       itemID,
		"order_id": orderID,
	})
	if err != nil {
		return nil, fmt.Errorf("delete line item: %w", err)
	}
	removed := res.First()
	if removed == nil {
		return nil, ErrNotFound
	}
	return removed, nil
}

func (s *Service) requireActive(ctx context.Context, actor *user.User, orderID int64) error {
	active, err := s.orders.Exists(ctx, s.scope(actor, sqlgen.Condition{
		"id":     orderID,
		"status": order.StatusActive,
	}))
	if err != nil {
		return fmt.Errorf("check active order: %w", err)
	}
	if !active {
		return ErrNotFound
	}
	return nil
}

// scope narrows a condition to the actor's own rows unless the actor is an
// admin.
func (s *Service) scope(actor *user.User, cond sqlgen.Condition) sqlgen.Condition {
	if !actor.IsAdmin() {
		cond["user_id"] = actor.ID
	}
	return cond
}
