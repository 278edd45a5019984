package usecase

import (
	"context"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AlertLifecycle keeps the subscription registry in step with alert status
// changes made by the API.
type AlertLifecycle struct {
	alerts   domain.AlertRepository
	registry *SubscriptionRegistry
	logger   *zap.Logger
}

func NewAlertLifecycle(alerts domain.AlertRepository, registry *SubscriptionRegistry, logger *zap.Logger) *AlertLifecycle {
	return &AlertLifecycle{alerts: alerts, registry: registry, logger: logger}
}

// OnAlertCreated stores a new created alert. The channel reference is taken
// before the row becomes visible to the match path, so a trigger racing the
// insert always releases a reference that exists.
func (l *AlertLifecycle) OnAlertCreated(ctx context.Context, alert *domain.Alert) error {
	key := alert.ChannelKey()
	subscribed := l.registry.Increment(key)
	if err := l.alerts.Insert(ctx, alert); err != nil {
		l.registry.Decrement(key)
		return err
	}
	if subscribed {
		l.logger.Info("channel subscribed", zap.String("channel", key), zap.Uint("alert_id", alert.ID))
	}
	return nil
}

// OnAlertSoftDeleted marks the alert deleted. Only a created alert releases
// its channel; a triggered one already did.
func (l *AlertLifecycle) OnAlertSoftDeleted(ctx context.Context, alert domain.Alert) error {
	switch alert.Status {
	case domain.AlertDeleted:
		return nil
	case domain.AlertCreated:
		ok, err := l.alerts.UpdateStatus(ctx, alert.ID, domain.AlertCreated, domain.AlertDeleted)
		if err != nil {
			return err
		}
		if ok {
			l.release(alert)
			return nil
		}
		// Triggered by the feed in the meantime.
		_, err = l.alerts.UpdateStatus(ctx, alert.ID, domain.AlertTriggered, domain.AlertDeleted)
		return err
	default:
		_, err := l.alerts.UpdateStatus(ctx, alert.ID, alert.Status, domain.AlertDeleted)
		return err
	}
}

// OnAlertRevived moves a deleted alert back to created with a new threshold.
// It reports false if the row was no longer deleted. As with create, the
// reference is taken first and returned if the row did not change.
func (l *AlertLifecycle) OnAlertRevived(ctx context.Context, alert domain.Alert, threshold decimal.Decimal) (bool, error) {
	key := alert.ChannelKey()
	l.registry.Increment(key)
	ok, err := l.alerts.Revive(ctx, alert.ID, threshold)
	if err != nil || !ok {
		l.registry.Decrement(key)
		return false, err
	}
	return true, nil
}

// OnAlertHardDeleted is called with the status the row had when it was removed.
func (l *AlertLifecycle) OnAlertHardDeleted(alert domain.Alert, prior domain.AlertStatus) {
	if prior == domain.AlertCreated {
		l.release(alert)
	}
}

func (l *AlertLifecycle) release(alert domain.Alert) {
	if l.registry.Decrement(alert.ChannelKey()) {
		l.logger.Info("channel unsubscribed", zap.String("channel", alert.ChannelKey()), zap.Uint("alert_id", alert.ID))
	}
}
