package product

// Product represents a purchasable item.
type Product struct {
	ID          int64   `db:"id" json:"id"`
	ProductName string  `db:"product_name" json:"product_name"`
	Price       float64 `db:"price" json:"price"`
}
