package usecase

import (
	"context"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type NotificationDispatcher interface {
	Dispatch(to domain.Recipient, n domain.Notification)
}

// MatchEngine turns ticks into one-shot alert triggers.
type MatchEngine struct {
	alerts     domain.AlertRepository
	users      domain.UserRepository
	registry   *SubscriptionRegistry
	dispatcher NotificationDispatcher
	prices     domain.PriceCache
	metrics    Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func NewMatchEngine(alerts domain.AlertRepository, users domain.UserRepository, registry *SubscriptionRegistry, dispatcher NotificationDispatcher, prices domain.PriceCache, metrics Metrics, logger *zap.Logger) *MatchEngine {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &MatchEngine{
		alerts:     alerts,
		users:      users,
		registry:   registry,
		dispatcher: dispatcher,
		prices:     prices,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Run processes ticks until ctx is done or ticks is closed. A tick that has
// started processing always runs to completion.
func (e *MatchEngine) Run(ctx context.Context, ticks <-chan domain.Tick) {
	work := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-ticks:
			if !ok {
				return
			}
			if _, err := e.Process(work, tick); err != nil {
				e.logger.Error("tick processing failed", zap.String("symbol", tick.Symbol), zap.String("channel", tick.Channel), zap.Error(err))
			}
		}
	}
}

// Process matches one tick and returns the alerts it triggered.
func (e *MatchEngine) Process(ctx context.Context, tick domain.Tick) ([]domain.Alert, error) {
	symbol := tick.Symbol
	e.metrics.TickProcessed(symbol)
	e.logger.Debug("tick received", zap.String("symbol", symbol), zap.String("price", tick.Price.String()))

	if e.prices != nil {
		if err := e.prices.Set(ctx, tick); err != nil {
			e.logger.Warn("price cache update failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	status := domain.AlertCreated
	price := tick.Price
	candidates, err := e.alerts.Find(ctx, domain.AlertFilter{Status: &status, Symbol: &symbol, ThresholdAtMost: &price})
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(candidates))
	for _, alert := range candidates {
		// Candidates are re-checked with exact decimal comparison.
		if alert.Symbol != symbol || !alert.Matches(price) {
			continue
		}
		ids = append(ids, alert.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	changed, err := e.alerts.MarkTriggered(ctx, ids, e.now().UTC())
	if err != nil {
		return nil, err
	}
	if len(changed) == 0 {
		return nil, nil
	}

	changedSet := make(map[uint]struct{}, len(changed))
	for _, id := range changed {
		changedSet[id] = struct{}{}
	}
	triggered := make([]domain.Alert, 0, len(changed))
	keys := make([]string, 0, len(changed))
	for _, alert := range candidates {
		if _, ok := changedSet[alert.ID]; !ok {
			continue
		}
		alert.Status = domain.AlertTriggered
		triggered = append(triggered, alert)
		keys = append(keys, alert.ChannelKey())
	}

	e.registry.Release(keys)
	e.metrics.AlertsTriggered(len(triggered))
	e.logger.Info("alerts triggered", zap.String("symbol", symbol), zap.String("price", price.String()), zap.Int("count", len(triggered)))

	e.notify(ctx, triggered, price)
	return triggered, nil
}

func (e *MatchEngine) notify(ctx context.Context, triggered []domain.Alert, price decimal.Decimal) {
	recipients := make(map[uint]*domain.Recipient)
	for _, alert := range triggered {
		to, ok := recipients[alert.UserID]
		if !ok {
			user, err := e.users.GetByID(ctx, alert.UserID)
			if err != nil {
				e.logger.Warn("recipient lookup failed", zap.Uint("alert_id", alert.ID), zap.Uint("user_id", alert.UserID), zap.Error(err))
				recipients[alert.UserID] = nil
				continue
			}
			to = &domain.Recipient{UserID: user.ID, Email: user.Email, TelegramChatID: user.TelegramChatID}
			recipients[alert.UserID] = to
		}
		if to == nil {
			continue
		}
		e.dispatcher.Dispatch(*to, domain.Notification{
			AlertID:   alert.ID,
			Symbol:    alert.Symbol,
			Threshold: alert.Threshold,
			Price:     price,
		})
	}
}
