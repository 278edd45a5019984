package usecase

import (
	"context"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Dispatcher delivers notifications off the match path on a bounded pool.
// Each send is limited by timeout; failures are logged and counted only.
type Dispatcher struct {
	sink    domain.NotificationSink
	timeout time.Duration
	workers *pool.Pool
	metrics Metrics
	logger  *zap.Logger
}

func NewDispatcher(sink domain.NotificationSink, workers int, timeout time.Duration, metrics Metrics, logger *zap.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Dispatcher{
		sink:    sink,
		timeout: timeout,
		workers: pool.New().WithMaxGoroutines(workers),
		metrics: metrics,
		logger:  logger,
	}
}

func (d *Dispatcher) Dispatch(to domain.Recipient, n domain.Notification) {
	d.workers.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.sink.Notify(ctx, to, n); err != nil {
			d.metrics.NotificationFailed()
			d.logger.Warn("notification failed", zap.Uint("alert_id", n.AlertID), zap.Uint("user_id", to.UserID), zap.Error(err))
			return
		}
		d.logger.Info("notification sent", zap.Uint("alert_id", n.AlertID), zap.Uint("user_id", to.UserID))
	})
}

// Wait blocks until queued notifications finish. Dispatch must not be called
// afterwards.
func (d *Dispatcher) Wait() {
	d.workers.Wait()
}
