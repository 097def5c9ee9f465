package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order sides
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order statuses. Settlement only ever moves an order forward:
// open -> partial -> filled, or open -> filled on a full fill.
// filled and cancelled are terminal.
const (
	OrderStatusOpen      = "open"
	OrderStatusPartial   = "partial"
	OrderStatusFilled    = "filled"
	OrderStatusCancelled = "cancelled"
)

// Order represents a limit order as handed over by the matcher.
// RemainingQuantity is monotonically non-increasing and is computed by the
// matcher before settlement; the settlement engine only persists it.
type Order struct {
	ID                uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	AccountID         uuid.UUID       `json:"account_id" gorm:"type:uuid;index"`
	Symbol            string          `json:"symbol" gorm:"index"`
	Side              string          `json:"side"` // buy, sell
	Quantity          decimal.Decimal `json:"quantity" gorm:"type:decimal(32,16)"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity" gorm:"type:decimal(32,16)"`
	Status            string          `json:"status" gorm:"index"` // open, partial, filled, cancelled
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Trade is the immutable record of one settled match. Rows are append-only:
// created exactly once per settlement, never updated or deleted.
type Trade struct {
	ID          uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	Symbol      string          `json:"symbol" gorm:"index"`
	BuyOrderID  uuid.UUID       `json:"buy_order_id" gorm:"type:uuid;index"`
	SellOrderID uuid.UUID       `json:"sell_order_id" gorm:"type:uuid;index"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(32,16)"`
	Quantity    decimal.Decimal `json:"quantity" gorm:"type:decimal(32,16)"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Symbol carries the per-instrument market state owned by settlement:
// the last traded price, overwritten on every fill of that instrument.
type Symbol struct {
	Symbol         string          `json:"symbol" gorm:"primaryKey"`
	LastTradePrice decimal.Decimal `json:"last_trade_price" gorm:"type:decimal(32,16)"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Account is a participant's cash wallet. Balance is signed; every
// settlement debits the buyer and credits the seller by the same amount.
type Account struct {
	ID        uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	Balance   decimal.Decimal `json:"balance" gorm:"type:decimal(32,16)"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Holding is a participant's position in one symbol, keyed by
// (account, symbol). AvgPrice is the weighted-average cost basis and is
// only meaningful while Quantity > 0. A holding is created on first
// acquisition and never deleted; quantity may sit at zero.
type Holding struct {
	ID        uuid.UUID       `json:"id" gorm:"primaryKey;type:uuid"`
	AccountID uuid.UUID       `json:"account_id" gorm:"type:uuid;uniqueIndex:idx_holdings_account_symbol"`
	Symbol    string          `json:"symbol" gorm:"uniqueIndex:idx_holdings_account_symbol"`
	Quantity  decimal.Decimal `json:"quantity" gorm:"type:decimal(32,16);check:quantity >= 0"`
	AvgPrice  decimal.Decimal `json:"avg_price" gorm:"type:decimal(32,16)"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
