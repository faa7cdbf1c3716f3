// Package products implements catalog management.
package products

import (
	"context"
	"errors"
	"fmt"

	"github.com/eslamgaber/storefront/internal/app/domain/product"
	"github.com/eslamgaber/storefront/internal/app/storage/postgres"
	"github.com/eslamgaber/storefront/internal/app/storage/sqlgen"
	"github.com/eslamgaber/storefront/pkg/logger"
)

// Errors
var (
	ErrNotFound     = errors.New("product not found")
	ErrInvalidInput = errors.New("invalid input")
)

// ProductStore is the slice of the products accessor the service needs.
type ProductStore interface {
	Index(ctx context.Context, opts sqlgen.SelectOptions) ([]product.Product, error)
	FindOne(ctx context.Context, opts sqlgen.SelectOptions) (*product.Product, error)
	Create(ctx context.Context, row sqlgen.Values) (postgres.Result[product.Product], error)
	Update(ctx context.Context, opts sqlgen.UpdateOptions) (postgres.Result[product.Product], error)
	Delete(ctx context.Context, condition sqlgen.Condition) (postgres.Result[product.Product], error)
}

// NewProduct is the payload for catalog inserts.
type NewProduct struct {
	ProductName string  `json:"product_name"`
	Price       float64 `json:"price"`
}

// ProductChanges carries the optional fields of a catalog update. Absent
// fields stay untouched.
type ProductChanges struct {
	ProductName *string  `json:"product_name"`
	Price       *float64 `json:"price"`
}

// Service manages the product catalog.
type Service struct {
	products ProductStore
	log      *logger.Logger
}

// New constructs the products service.
func New(products ProductStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("products")
	}
	return &Service{products: products, log: log}
}

// List returns the whole catalog.
func (s *Service) List(ctx context.Context) ([]product.Product, error) {
	return s.products.Index(ctx, sqlgen.SelectOptions{})
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, id int64) (*product.Product, error) {
	p, err := s.products.FindOne(ctx, sqlgen.SelectOptions{
		Condition: sqlgen.Condition{"id": id},
	})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// Create validates and inserts a product.
func (s *Service) Create(ctx context.Context, in NewProduct) (*product.Product, error) {
	if err := validateName(in.ProductName); err != nil {
		return nil, err
	}
	if err := validatePrice(in.Price); err != nil {
		return nil, err
	}

	res, err := s.products.Create(ctx, sqlgen.Values{
		"product_name": in.ProductName,
		"price":        in.Price,
	})
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	created := res.First()
	if created == nil {
		return nil, fmt.Errorf("insert product: no row returned")
	}
	s.log.WithField("product_id", created.ID).Info("product created")
	return created, nil
}

// Update applies a partial change set. An empty change set is rejected before
// it reaches the database.
func (s *Service) Update(ctx context.Context, id int64, in ProductChanges) (*product.Product, error) {
	changes := sqlgen.Values{}
	if in.ProductName != nil {
		if err := validateName(*in.ProductName); err != nil {
			return nil, err
		}
		changes["product_name"] = *in.ProductName
	}
	if in.Price != nil {
		if err := validatePrice(*in.Price); err != nil {
			return nil, err
		}
		changes["price"] = *in.Price
	}
	if len(changes) == 0 {
		return nil, fmt.Errorf("%w: no changes supplied", ErrInvalidInput)
	}

	res, err := s.products.Update(ctx, sqlgen.UpdateOptions{
		Changes:   changes,
		Condition: sqlgen.Condition{"id": id},
	})
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	updated := res.First()
	if updated == nil {
		return nil, ErrNotFound
	}
	return updated, nil
}

// Delete removes a product and returns the removed row.
func (s *Service) Delete(ctx context.Context, id int64) (*product.Product, error) {
	res, err := s.products.Delete(ctx, sqlgen.Condition{"id": id})
	if err != nil {
		return nil, fmt.Errorf("delete product: %w", err)
	}
	removed := res.First()
	if removed == nil {
		return nil, ErrNotFound
	}
	s.log.WithField("product_id", id).Info("product deleted")
	return removed, nil
}

func validateName(name string) error {
	if len(name) < 3 || len(name) > 100 {
		return fmt.Errorf("%w: product_name must be 3 to 100 characters", ErrInvalidInput)
	}
	return nil
}

func validatePrice(price float64) error {
	if price < 1 {
		return fmt.Errorf("%w: price must be at least 1", ErrInvalidInput)
	}
	return nil
}
