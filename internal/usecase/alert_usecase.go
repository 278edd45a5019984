package usecase

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

var (
	ErrUserNotRegistered = errors.New("user not registered")
	ErrInvalidSymbol     = errors.New("invalid symbol")
	ErrInvalidThreshold  = errors.New("invalid threshold")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrAlertNotFound     = errors.New("alert not found")
	ErrAlertExists       = errors.New("alert already exists for this coin")
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{1,16}$`)

type AlertUsecase struct {
	users     domain.UserRepository
	alerts    domain.AlertRepository
	lifecycle *AlertLifecycle
}

func NewAlertUsecase(users domain.UserRepository, alerts domain.AlertRepository, lifecycle *AlertLifecycle) *AlertUsecase {
	return &AlertUsecase{users: users, alerts: alerts, lifecycle: lifecycle}
}

// CreateAlert stores a new alert, or revives the user's deleted alert for the
// same coin. revived reports which of the two happened.
func (u *AlertUsecase) CreateAlert(ctx context.Context, userID uint, symbol, threshold string) (alert *domain.Alert, revived bool, err error) {
	if err := u.ensureUser(ctx, userID); err != nil {
		return nil, false, err
	}

	normalizedSymbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, false, err
	}
	decThreshold, err := parseThreshold(threshold)
	if err != nil {
		return nil, false, err
	}

	existing, err := u.alerts.FindByUserAndSymbol(ctx, userID, normalizedSymbol)
	switch {
	case err == nil:
		if existing.Status != domain.AlertDeleted {
			return nil, false, ErrAlertExists
		}
		ok, err := u.lifecycle.OnAlertRevived(ctx, *existing, decThreshold)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, ErrAlertExists
		}
		existing.Status = domain.AlertCreated
		existing.Threshold = decThreshold
		existing.TriggeredAt = nil
		return existing, true, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, err
	}

	alert = &domain.Alert{
		UserID:    userID,
		Symbol:    normalizedSymbol,
		Threshold: decThreshold,
		Status:    domain.AlertCreated,
	}
	if err := u.lifecycle.OnAlertCreated(ctx, alert); err != nil {
		if errors.Is(err, domain.ErrAlertExists) {
			return nil, false, ErrAlertExists
		}
		return nil, false, err
	}
	return alert, false, nil
}

func (u *AlertUsecase) SoftDelete(ctx context.Context, userID, alertID uint) error {
	alert, err := u.getAlert(ctx, userID, alertID)
	if err != nil {
		return err
	}
	return u.lifecycle.OnAlertSoftDeleted(ctx, *alert)
}

func (u *AlertUsecase) HardDelete(ctx context.Context, userID, alertID uint) error {
	alert, err := u.getAlert(ctx, userID, alertID)
	if err != nil {
		return err
	}
	prior, err := u.alerts.Delete(ctx, userID, alertID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrAlertNotFound
		}
		return err
	}
	u.lifecycle.OnAlertHardDeleted(*alert, prior)
	return nil
}

type AlertPage struct {
	Alerts  []domain.Alert
	Total   int64
	Page    int
	PerPage int
}

func (p AlertPage) Pages() int {
	if p.PerPage <= 0 {
		return 0
	}
	return int((p.Total + int64(p.PerPage) - 1) / int64(p.PerPage))
}

// ListAlerts pages through one status, created by default.
func (u *AlertUsecase) ListAlerts(ctx context.Context, userID uint, status string, page, perPage int) (AlertPage, error) {
	parsed := domain.AlertCreated
	if strings.TrimSpace(status) != "" {
		var ok bool
		if parsed, ok = domain.ParseAlertStatus(status); !ok {
			return AlertPage{}, ErrInvalidStatus
		}
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	alerts, total, err := u.alerts.ListByUser(ctx, userID, parsed, (page-1)*perPage, perPage)
	if err != nil {
		return AlertPage{}, err
	}
	return AlertPage{Alerts: alerts, Total: total, Page: page, PerPage: perPage}, nil
}

func (u *AlertUsecase) ListByStatus(ctx context.Context, userID uint, status string) ([]domain.Alert, error) {
	parsed, ok := domain.ParseAlertStatus(status)
	if !ok {
		return nil, ErrInvalidStatus
	}
	return u.alerts.Find(ctx, domain.AlertFilter{UserID: &userID, Status: &parsed})
}

func (u *AlertUsecase) ensureUser(ctx context.Context, userID uint) error {
	if _, err := u.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrUserNotRegistered
		}
		return err
	}
	return nil
}

func (u *AlertUsecase) getAlert(ctx context.Context, userID, alertID uint) (*domain.Alert, error) {
	alert, err := u.alerts.GetByID(ctx, userID, alertID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	return alert, nil
}

func normalizeSymbol(input string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(input))
	if !symbolPattern.MatchString(symbol) {
		return "", ErrInvalidSymbol
	}
	return symbol, nil
}

func parseThreshold(input string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(input))
	if err != nil || !value.IsPositive() {
		return decimal.Decimal{}, ErrInvalidThreshold
	}
	return value, nil
}
