package model

import "time"

// ItemSnapshot is the last-known state of a catalog item's stock,
// used as the comparison baseline for delta detection.
type ItemSnapshot struct {
	ItemID      string    `json:"item_id" db:"item_id"`
	SKU         string    `json:"sku" db:"sku"`
	Title       string    `json:"title" db:"title"`
	Stock       int       `json:"stock" db:"stock"`
	LastUpdated time.Time `json:"last_updated" db:"last_updated"`
}

// Movement reasons as they appear in the movement log and reports.
const (
	ReasonSale           = "VENTA"
	ReasonStockIncrease  = "INCREMENTO_STOCK"
	ReasonPhantomChange  = "ERROR_SISTEMA_CAMBIO_EXTERNO"
	ReasonChangeDetected = "CAMBIO_DETECTADO"

	// OrderStatusNone marks movements with no associated order.
	OrderStatusNone = "N/A"
	// OrderStatusMissing marks stock decreases with no corroborating order.
	OrderStatusMissing = "SIN_ORDEN"
)

// MovementEntry is one row of the append-only stock movement log.
type MovementEntry struct {
	Timestamp   time.Time `json:"timestamp" db:"ts"`
	ItemID      string    `json:"item_id" db:"item_id"`
	SKU         string    `json:"sku" db:"sku"`
	OldStock    int       `json:"old_stock" db:"old_stock"`
	NewStock    int       `json:"new_stock" db:"new_stock"`
	Difference  int       `json:"difference" db:"difference"`
	Reason      string    `json:"reason" db:"reason"`
	OrderStatus string    `json:"order_status" db:"order_status"`
}

// Alert is a phantom-movement alert surfaced on the admin API.
type Alert struct {
	Timestamp  time.Time `json:"timestamp"`
	ItemID     string    `json:"item_id"`
	SKU        string    `json:"sku"`
	OldStock   int       `json:"old_stock"`
	NewStock   int       `json:"new_stock"`
	Difference int       `json:"difference"`
	Reason     string    `json:"reason"`
}
