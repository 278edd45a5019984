package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/NasaVasa/pricealert/internal/usecase"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// NewAPI builds a bot client whose HTTP requests give up after timeout.
func NewAPI(token string, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	return tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
}

// Notifier delivers alerts to users that registered a telegram chat id.
// Users without one are skipped silently.
type Notifier struct {
	api    Sender
	logger *zap.Logger
}

func NewNotifier(api Sender, logger *zap.Logger) *Notifier {
	return &Notifier{api: api, logger: logger}
}

func (n *Notifier) Notify(ctx context.Context, to domain.Recipient, notification domain.Notification) error {
	if to.TelegramChatID == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	text := fmt.Sprintf("%s: %s", usecase.NotificationSubject, usecase.FormatNotification(notification))
	n.logger.Info("telegram notify send", zap.Int64("chat_id", *to.TelegramChatID), zap.Uint("alert_id", notification.AlertID))
	msg := tgbotapi.NewMessage(*to.TelegramChatID, text)

	// Send takes no context; the buffered channel lets a late reply finish
	// after ctx has already ended.
	done := make(chan error, 1)
	go func() {
		_, err := n.api.Send(msg)
		done <- err
	}()

	select {
	case <-ctx.Done():
		n.logger.Warn("telegram notify timed out", zap.Int64("chat_id", *to.TelegramChatID), zap.Error(ctx.Err()))
		return fmt.Errorf("telegram send: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			n.logger.Warn("failed to notify", zap.Error(err))
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	}
}
