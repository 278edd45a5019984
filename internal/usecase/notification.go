package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/NasaVasa/pricealert/internal/domain"
)

const NotificationSubject = "Target Alert"

func FormatNotification(n domain.Notification) string {
	return fmt.Sprintf(
		"Dear User,\nThe coin %s that you set for alert has reached its target of %s (current price %s).\nThank you.",
		n.Symbol,
		n.Threshold.String(),
		n.Price.String(),
	)
}

// MultiSink fans a notification out to every sink and joins their errors.
type MultiSink []domain.NotificationSink

func (m MultiSink) Notify(ctx context.Context, to domain.Recipient, n domain.Notification) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Notify(ctx, to, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
