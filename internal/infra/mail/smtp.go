package mail

import (
	"context"
	"errors"
	"fmt"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/NasaVasa/pricealert/internal/usecase"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

var ErrNoAddress = errors.New("recipient has no email address")

type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*gomail.Msg) error
}

// SMTPNotifier emails alert notifications.
type SMTPNotifier struct {
	sender Sender
	from   string
	logger *zap.Logger
}

func NewSMTPClient(host string, port int, username, password string) (*gomail.Client, error) {
	options := []gomail.Option{
		gomail.WithPort(port),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
	}
	if username != "" {
		options = append(options,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(username),
			gomail.WithPassword(password),
		)
	}
	return gomail.NewClient(host, options...)
}

func NewSMTPNotifier(sender Sender, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{sender: sender, from: from, logger: logger}
}

func (n *SMTPNotifier) Notify(ctx context.Context, to domain.Recipient, notification domain.Notification) error {
	if to.Email == "" {
		return ErrNoAddress
	}
	msg, err := BuildMessage(n.from, to.Email, notification)
	if err != nil {
		return err
	}

	n.logger.Info("smtp notify send", zap.Uint("user_id", to.UserID), zap.Uint("alert_id", notification.AlertID), zap.String("symbol", notification.Symbol))
	if err := n.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func BuildMessage(from, to string, notification domain.Notification) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(usecase.NotificationSubject)
	msg.SetBodyString(gomail.TypeTextPlain, usecase.FormatNotification(notification))
	return msg, nil
}
