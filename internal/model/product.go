package model

import "time"

// Product represents a catalogue product. The checkout core only reads the
// price (snapshotted onto order items) and owns the stock quantity; catalogue
// management lives elsewhere.
type Product struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Price         float64   `json:"price" db:"price"`
	Category      string    `json:"category" db:"category"`
	StockQuantity int       `json:"stockQuantity" db:"stock_quantity"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}
