package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/apexclear/settlement/pkg/metrics"
	"github.com/apexclear/settlement/pkg/models"
)

// Observer is notified after a settlement has committed. Observers run
// outside the transaction; their failures never undo a settlement.
type Observer interface {
	SettlementCommitted(ctx context.Context, trade *models.Trade)
}

// Engine applies one matched trade as a single atomic transaction against
// the ledger database. It holds no state between calls; all serialization
// of contended rows is delegated to the store's row locking, and every
// balance and holding mutation is issued as an atomic column expression so
// no read-modify-write race exists at the application level.
type Engine struct {
	db        *gorm.DB
	logger    *zap.Logger
	observers []Observer

	// beforeCommit runs as the last step inside the transaction; returning
	// an error aborts the whole settlement. Used by tests to force a
	// rollback after all eight writes have been issued.
	beforeCommit func(tx *gorm.DB) error
}

// NewEngine creates a settlement engine on top of the given database.
func NewEngine(db *gorm.DB, logger *zap.Logger, observers ...Observer) *Engine {
	return &Engine{db: db, logger: logger, observers: observers}
}

// Settle persists one matched trade: both order updates, the trade record,
// the symbol's last trade price, both wallet balances and both holdings,
// all-or-nothing. The matcher has already decremented the orders'
// RemainingQuantity by matchedQty; the engine persists that state, it does
// not recompute the match.
//
// The returned error is nil only if every effect committed. ErrInvalidMatch
// means the event was rejected before any write; a ConsistencyError means
// the store contradicted an upstream invariant; anything else is a
// transient store failure the caller may retry, since nothing partially
// committed. The engine itself never retries: a retry decision after an
// unknown-outcome failure belongs to the caller, which knows whether the
// same match was already settled.
func (e *Engine) Settle(ctx context.Context, buyOrder, sellOrder *models.Order, matchedQty, tradePrice decimal.Decimal) (*models.Trade, error) {
	if err := validateMatch(buyOrder, sellOrder, matchedQty, tradePrice); err != nil {
		metrics.SettlementsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	// Computed once so the buyer debit and seller credit are the exact
	// same magnitude with opposite sign.
	tradedValue := matchedQty.Mul(tradePrice)
	now := time.Now().UTC()

	trade := &models.Trade{
		ID:          uuid.New(),
		Symbol:      buyOrder.Symbol,
		BuyOrderID:  buyOrder.ID,
		SellOrderID: sellOrder.ID,
		Price:       tradePrice,
		Quantity:    matchedQty,
		CreatedAt:   now,
	}

	start := time.Now()
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyOrderFill(tx, buyOrder, now); err != nil {
			return err
		}
		if err := applyOrderFill(tx, sellOrder, now); err != nil {
			return err
		}
		if err := tx.Create(trade).Error; err != nil {
			return fmt.Errorf("failed to record trade: %w", err)
		}
		if err := updateLastTradePrice(tx, trade.Symbol, tradePrice, now); err != nil {
			return err
		}
		if err := adjustBalance(tx, buyOrder.AccountID, tradedValue.Neg(), now); err != nil {
			return err
		}
		if err := adjustBalance(tx, sellOrder.AccountID, tradedValue, now); err != nil {
			return err
		}
		if err := decrementHolding(tx, sellOrder.AccountID, trade.Symbol, matchedQty, now); err != nil {
			return err
		}
		if err := upsertHolding(tx, buyOrder.AccountID, trade.Symbol, matchedQty, tradePrice, now); err != nil {
			return err
		}
		if e.beforeCommit != nil {
			return e.beforeCommit(tx)
		}
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		outcome := "retryable_error"
		if !IsRetryable(err) {
			outcome = "consistency_error"
		}
		metrics.SettlementsTotal.WithLabelValues(outcome).Inc()
		e.logger.Error("settlement aborted",
			zap.String("symbol", buyOrder.Symbol),
			zap.String("buy_order_id", buyOrder.ID.String()),
			zap.String("sell_order_id", sellOrder.ID.String()),
			zap.String("quantity", matchedQty.String()),
			zap.String("price", tradePrice.String()),
			zap.Bool("retryable", IsRetryable(err)),
			zap.Error(err))
		return nil, err
	}

	metrics.SettlementsTotal.WithLabelValues("settled").Inc()
	metrics.SettlementLatency.Observe(elapsed.Seconds())
	tradedValueF, _ := tradedValue.Float64()
	metrics.TradedValue.WithLabelValues(trade.Symbol).Add(tradedValueF)

	e.logger.Info("trade settled",
		zap.String("trade_id", trade.ID.String()),
		zap.String("symbol", trade.Symbol),
		zap.String("quantity", matchedQty.String()),
		zap.String("price", tradePrice.String()),
		zap.String("buyer_account_id", buyOrder.AccountID.String()),
		zap.String("seller_account_id", sellOrder.AccountID.String()),
		zap.Duration("elapsed", elapsed))

	for _, obs := range e.observers {
		obs.SettlementCommitted(ctx, trade)
	}
	return trade, nil
}

func validateMatch(buyOrder, sellOrder *models.Order, matchedQty, tradePrice decimal.Decimal) error {
	switch {
	case buyOrder == nil || sellOrder == nil:
		return fmt.Errorf("%w: missing order snapshot", ErrInvalidMatch)
	case !matchedQty.IsPositive():
		return fmt.Errorf("%w: matched quantity %s is not positive", ErrInvalidMatch, matchedQty)
	case !tradePrice.IsPositive():
		return fmt.Errorf("%w: trade price %s is not positive", ErrInvalidMatch, tradePrice)
	case buyOrder.Side != models.SideBuy:
		return fmt.Errorf("%w: order %s is not a buy", ErrInvalidMatch, buyOrder.ID)
	case sellOrder.Side != models.SideSell:
		return fmt.Errorf("%w: order %s is not a sell", ErrInvalidMatch, sellOrder.ID)
	case buyOrder.Symbol != sellOrder.Symbol:
		return fmt.Errorf("%w: symbol mismatch %s vs %s", ErrInvalidMatch, buyOrder.Symbol, sellOrder.Symbol)
	case buyOrder.RemainingQuantity.IsNegative() || sellOrder.RemainingQuantity.IsNegative():
		return fmt.Errorf("%w: negative remaining quantity", ErrInvalidMatch)
	}
	return nil
}

// applyOrderFill persists the matcher-computed remaining quantity and the
// derived status. The update is conditioned on the order still being open
// or partial, so a settlement replayed against a filled or cancelled order
// surfaces as a consistency failure instead of resurrecting it.
func applyOrderFill(tx *gorm.DB, order *models.Order, now time.Time) error {
	status := models.OrderStatusPartial
	if order.RemainingQuantity.IsZero() {
		status = models.OrderStatusFilled
	}

	res := tx.Model(&models.Order{}).
		Where("id = ? AND status IN ?", order.ID,
			[]string{models.OrderStatusOpen, models.OrderStatusPartial}).
		Updates(map[string]interface{}{
			"remaining_quantity": order.RemainingQuantity,
			"status":             status,
			"updated_at":         now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update order %s: %w", order.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return consistencyErrorf("order %s not found or already in a terminal status", order.ID)
	}
	order.Status = status
	return nil
}

func updateLastTradePrice(tx *gorm.DB, symbol string, price decimal.Decimal, now time.Time) error {
	res := tx.Model(&models.Symbol{}).
		Where("symbol = ?", symbol).
		Updates(map[string]interface{}{
			"last_trade_price": price,
			"updated_at":       now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update symbol %s: %w", symbol, res.Error)
	}
	if res.RowsAffected == 0 {
		return consistencyErrorf("unknown symbol %s", symbol)
	}
	return nil
}

func adjustBalance(tx *gorm.DB, accountID uuid.UUID, delta decimal.Decimal, now time.Time) error {
	res := tx.Model(&models.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance + ?", delta),
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update balance of account %s: %w", accountID, res.Error)
	}
	if res.RowsAffected == 0 {
		return consistencyErrorf("unknown account %s", accountID)
	}
	return nil
}

// decrementHolding reduces the seller's position. Sufficiency is an
// upstream invariant from order acceptance; the quantity guard here makes
// the store reject an oversold position instead of silently going
// negative, and the CHECK constraint on holdings backs it up.
func decrementHolding(tx *gorm.DB, accountID uuid.UUID, symbol string, qty decimal.Decimal, now time.Time) error {
	res := tx.Model(&models.Holding{}).
		Where("account_id = ? AND symbol = ? AND quantity >= ?", accountID, symbol, qty).
		Updates(map[string]interface{}{
			"quantity":   gorm.Expr("quantity - ?", qty),
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to decrement holding %s/%s: %w", accountID, symbol, res.Error)
	}
	if res.RowsAffected == 0 {
		return consistencyErrorf("holding %s/%s missing or insufficient for quantity %s", accountID, symbol, qty)
	}
	return nil
}

// upsertHolding credits the buyer's position, creating it on first
// acquisition. The weighted-average cost basis is recomputed by the store
// inside the upsert itself, so concurrent acquisitions of the same
// (account, symbol) key serialize on the row instead of racing a stale
// application-level read.
func upsertHolding(tx *gorm.DB, accountID uuid.UUID, symbol string, qty, price decimal.Decimal, now time.Time) error {
	holding := &models.Holding{
		ID:        uuid.New(),
		AccountID: accountID,
		Symbol:    symbol,
		Quantity:  qty,
		AvgPrice:  price,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "symbol"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity": gorm.Expr("holdings.quantity + ?", qty),
			"avg_price": gorm.Expr(
				"CASE WHEN holdings.quantity = 0 THEN ? "+
					"ELSE (holdings.quantity * holdings.avg_price + ? * ?) / (holdings.quantity + ?) END",
				price, qty, price, qty),
			"updated_at": now,
		}),
	}).Create(holding).Error
	if err != nil {
		return fmt.Errorf("failed to upsert holding %s/%s: %w", accountID, symbol, err)
	}
	return nil
}
