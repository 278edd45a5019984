package mail

import (
	"context"
	"errors"
	"testing"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap/zaptest"
)

type recordingSender struct {
	sent []*gomail.Msg
	err  error
}

func (s *recordingSender) DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error {
	s.sent = append(s.sent, messages...)
	return s.err
}

func testNotification() domain.Notification {
	return domain.Notification{AlertID: 1, Symbol: "BTC", Threshold: decimal.NewFromInt(50000), Price: decimal.NewFromInt(50001)}
}

func TestSMTPNotifierSends(t *testing.T) {
	sender := &recordingSender{}
	notifier := NewSMTPNotifier(sender, "alerts@example.com", zaptest.NewLogger(t))

	err := notifier.Notify(context.Background(), domain.Recipient{UserID: 7, Email: "alice@example.com"}, testNotification())
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	require.Equal(t, []string{"Target Alert"}, msg.GetGenHeader(gomail.HeaderSubject))
	to := msg.GetToString()
	require.Len(t, to, 1)
	require.Contains(t, to[0], "alice@example.com")
}

func TestSMTPNotifierErrors(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	notifier := NewSMTPNotifier(sender, "alerts@example.com", zaptest.NewLogger(t))

	err := notifier.Notify(context.Background(), domain.Recipient{Email: "alice@example.com"}, testNotification())
	require.ErrorContains(t, err, "smtp down")

	err = notifier.Notify(context.Background(), domain.Recipient{}, testNotification())
	require.ErrorIs(t, err, ErrNoAddress)
}
