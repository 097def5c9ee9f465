package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/apexclear/settlement/pkg/models"
)

// OrderSnapshot is the matcher's view of one side of a match. The
// remaining quantity has already been decremented by the matched quantity.
type OrderSnapshot struct {
	ID                uuid.UUID       `json:"id"`
	AccountID         uuid.UUID       `json:"account_id"`
	Symbol            string          `json:"symbol"`
	Side              string          `json:"side"`
	Quantity          decimal.Decimal `json:"quantity"`
	RemainingQuantity decimal.Decimal `json:"remaining_quantity"`
}

// MatchMessage is one matched trade emitted by the matcher.
type MatchMessage struct {
	MatchID   string          `json:"match_id"`
	BuyOrder  OrderSnapshot   `json:"buy_order"`
	SellOrder OrderSnapshot   `json:"sell_order"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	MatchedAt time.Time       `json:"matched_at"`
}

// Confirmation reports the outcome of one settlement attempt back to the
// rest of the platform.
type Confirmation struct {
	MatchID     string    `json:"match_id"`
	TradeID     string    `json:"trade_id,omitempty"`
	Symbol      string    `json:"symbol"`
	Status      string    `json:"status"` // "settled" or "failed"
	Retryable   bool      `json:"retryable,omitempty"`
	Error       string    `json:"error,omitempty"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

const (
	ConfirmationSettled = "settled"
	ConfirmationFailed  = "failed"
)

// Settler settles one matched trade. Implemented by *Engine.
type Settler interface {
	Settle(ctx context.Context, buyOrder, sellOrder *models.Order, matchedQty, tradePrice decimal.Decimal) (*models.Trade, error)
}

// ProcessorConfig configures the match-event consumer.
type ProcessorConfig struct {
	Brokers           []string
	GroupID           string
	MatchTopic        string
	ConfirmationTopic string
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Processor consumes matched-trade events, drives the settlement engine
// and publishes confirmations. The engine never retries on its own, so the
// retry policy lives here: transient store failures are re-attempted with
// backoff against the same match parameters (safe, since a failed
// settlement commits nothing); consistency failures are confirmed as
// failed immediately and never retried.
type Processor struct {
	reader       *kafka.Reader
	writer       *kafka.Writer
	settler      Settler
	logger       *zap.Logger
	maxRetries   int
	retryBackoff time.Duration
}

// NewProcessor creates a processor reading match events from Kafka.
func NewProcessor(cfg ProcessorConfig, settler Settler, logger *zap.Logger) *Processor {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.MatchTopic,
		StartOffset: kafka.LastOffset,
	})
	var writer *kafka.Writer
	if cfg.ConfirmationTopic != "" {
		writer = &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.ConfirmationTopic,
			Balancer: &kafka.LeastBytes{},
		}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	backoff := cfg.RetryBackoff
	if backoff == 0 {
		backoff = 200 * time.Millisecond
	}
	return &Processor{
		reader:       reader,
		writer:       writer,
		settler:      settler,
		logger:       logger,
		maxRetries:   maxRetries,
		retryBackoff: backoff,
	}
}

// Run consumes until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		msg, err := p.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Error("match consume error", zap.Error(err))
			continue
		}
		p.handleMessage(ctx, msg.Value)
	}
}

func (p *Processor) handleMessage(ctx context.Context, value []byte) {
	var mm MatchMessage
	if err := json.Unmarshal(value, &mm); err != nil {
		p.logger.Error("invalid match message", zap.Error(err))
		return
	}
	conf, decided := p.settleWithRetry(ctx, &mm)
	if !decided {
		return
	}
	p.publishConfirmation(ctx, conf)
}

// settleWithRetry drives the engine for one match. The returned bool is
// false when shutdown interrupted the attempt before an outcome was
// reached; no confirmation may be published then, since the match will be
// redelivered and settled by the next consumer.
func (p *Processor) settleWithRetry(ctx context.Context, mm *MatchMessage) (Confirmation, bool) {
	buyOrder := orderFromSnapshot(mm.BuyOrder)
	sellOrder := orderFromSnapshot(mm.SellOrder)

	var (
		trade *models.Trade
		err   error
	)
	for attempt := 1; ; attempt++ {
		trade, err = p.settler.Settle(ctx, buyOrder, sellOrder, mm.Quantity, mm.Price)
		if err == nil || !IsRetryable(err) || attempt >= p.maxRetries {
			break
		}
		p.logger.Warn("retrying settlement",
			zap.String("match_id", mm.MatchID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(time.Duration(attempt) * p.retryBackoff):
			continue
		}
		break
	}

	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		p.logger.Warn("settlement interrupted by shutdown",
			zap.String("match_id", mm.MatchID),
			zap.Error(err))
		return Confirmation{}, false
	}

	conf := Confirmation{
		MatchID:     mm.MatchID,
		Symbol:      mm.BuyOrder.Symbol,
		ConfirmedAt: time.Now().UTC(),
	}
	if err != nil {
		conf.Status = ConfirmationFailed
		conf.Retryable = IsRetryable(err)
		conf.Error = err.Error()
		return conf, true
	}
	conf.Status = ConfirmationSettled
	conf.TradeID = trade.ID.String()
	return conf, true
}

func (p *Processor) publishConfirmation(ctx context.Context, conf Confirmation) {
	if p.writer == nil {
		return
	}
	payload, err := json.Marshal(conf)
	if err != nil {
		p.logger.Error("failed to encode confirmation", zap.Error(err))
		return
	}
	msg := kafka.Message{Key: []byte(conf.MatchID), Value: payload}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish confirmation",
			zap.String("match_id", conf.MatchID),
			zap.Error(err))
	}
}

// Close closes the Kafka reader and writer.
func (p *Processor) Close() error {
	err := p.reader.Close()
	if p.writer != nil {
		if werr := p.writer.Close(); err == nil {
			err = werr
		}
	}
	return err
}

func orderFromSnapshot(s OrderSnapshot) *models.Order {
	return &models.Order{
		ID:                s.ID,
		AccountID:         s.AccountID,
		Symbol:            s.Symbol,
		Side:              s.Side,
		Quantity:          s.Quantity,
		RemainingQuantity: s.RemainingQuantity,
	}
}
