package domain

import "time"

// Order statuses driven by the payment saga
const (
	OrderPending       = "PENDING"
	OrderPaid          = "PAID"
	OrderPaymentFailed = "PAYMENT_FAILED"
)

// Payment methods accepted by the saga
const (
	MethodCard   = "card"
	MethodUPI    = "upi"
	MethodWallet = "wallet"
)

// Order is a purchase of listing add-ons (featured slots, boosts, lead packs)
type Order struct {
	ID            string `gorm:"primaryKey;type:varchar(64)"`
	UserID        string `gorm:"index;not null"`
	Amount        int64  `gorm:"not null"` // minor units
	Currency      string `gorm:"type:varchar(3);not null"`
	Method        string `gorm:"type:varchar(16)"`
	Status        string `gorm:"type:varchar(16);not null;default:PENDING"`
	TransactionID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (Order) TableName() string { return "orders" }

// InventoryItem is a countable resource that orders reserve, e.g. featured-listing slots in a city
type InventoryItem struct {
	SKU       string `gorm:"primaryKey;type:varchar(64)"`
	Available int    `gorm:"not null"`
	UpdatedAt time.Time
}

func (InventoryItem) TableName() string { return "inventory_items" }

// LineItem is a requested quantity of one SKU
type LineItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// Reservation holds inventory for an order until it is released. One reservation
// row exists per order and SKU.
type Reservation struct {
	ID        uint   `gorm:"primaryKey"`
	OrderID   string `gorm:"uniqueIndex:idx_reservation_order_sku;type:varchar(64);not null"`
	SKU       string `gorm:"uniqueIndex:idx_reservation_order_sku;type:varchar(64);not null"`
	Quantity  int    `gorm:"not null"`
	Released  bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Reservation) TableName() string { return "reservations" }

// LedgerEntry is one append-only row of a user's credit wallet. Balance is the
// running balance after this entry.
type LedgerEntry struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"index;not null"`
	Amount    int64  `gorm:"not null"`
	Reason    string
	Balance   int64 `gorm:"not null"`
	CreatedAt time.Time
}

func (LedgerEntry) TableName() string { return "ledger_entries" }
