package db

import (
	"context"
	"errors"
	"time"

	"github.com/NasaVasa/pricealert/internal/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const maxDeleteAttempts = 3

var errStatusChanged = errors.New("alert status changed concurrently")

type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Find(ctx context.Context, filter domain.AlertFilter) ([]domain.Alert, error) {
	query := r.db.WithContext(ctx).Model(&alertModel{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.Symbol != nil {
		query = query.Where("symbol = ?", *filter.Symbol)
	}
	if filter.ThresholdAtMost != nil {
		query = query.Where("threshold <= ?", *filter.ThresholdAtMost)
	}

	var models []alertModel
	if err := query.Order("id").Find(&models).Error; err != nil {
		return nil, err
	}
	return mapAlertsToDomain(models), nil
}

func (r *AlertRepository) FindByUserAndSymbol(ctx context.Context, userID uint, symbol string) (*domain.Alert, error) {
	var model alertModel
	if err := r.db.WithContext(ctx).Where("user_id = ? AND symbol = ?", userID, symbol).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	alert := mapAlertToDomain(model)
	return &alert, nil
}

func (r *AlertRepository) GetByID(ctx context.Context, userID uint, alertID uint) (*domain.Alert, error) {
	var model alertModel
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", alertID, userID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	alert := mapAlertToDomain(model)
	return &alert, nil
}

func (r *AlertRepository) ListByUser(ctx context.Context, userID uint, status domain.AlertStatus, offset, limit int) ([]domain.Alert, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&alertModel{}).
		Where("user_id = ? AND status = ?", userID, string(status)).
		Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var models []alertModel
	if err := query.Order("id").Offset(offset).Limit(limit).Find(&models).Error; err != nil {
		return nil, 0, err
	}
	return mapAlertsToDomain(models), total, nil
}

func (r *AlertRepository) Insert(ctx context.Context, alert *domain.Alert) error {
	model := mapAlertToModel(*alert)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrAlertExists
		}
		return err
	}
	*alert = mapAlertToDomain(model)
	return nil
}

func (r *AlertRepository) UpdateStatus(ctx context.Context, alertID uint, from, to domain.AlertStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&alertModel{}).
		Where("id = ? AND status = ?", alertID, string(from)).
		Update("status", string(to))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *AlertRepository) Revive(ctx context.Context, alertID uint, threshold decimal.Decimal) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&alertModel{}).
		Where("id = ? AND status = ?", alertID, string(domain.AlertDeleted)).
		Updates(map[string]interface{}{
			"status":       string(domain.AlertCreated),
			"threshold":    threshold,
			"triggered_at": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *AlertRepository) MarkTriggered(ctx context.Context, alertIDs []uint, at time.Time) ([]uint, error) {
	if len(alertIDs) == 0 {
		return nil, nil
	}

	changed := make([]uint, 0, len(alertIDs))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		changed = changed[:0]
		for _, id := range alertIDs {
			result := tx.Model(&alertModel{}).
				Where("id = ? AND status = ?", id, string(domain.AlertCreated)).
				Updates(map[string]interface{}{
					"status":       string(domain.AlertTriggered),
					"triggered_at": at,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				changed = append(changed, id)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

func (r *AlertRepository) Delete(ctx context.Context, userID uint, alertID uint) (domain.AlertStatus, error) {
	var lastErr error
	for attempt := 0; attempt < maxDeleteAttempts; attempt++ {
		status, err := r.deleteOnce(ctx, userID, alertID)
		if !errors.Is(err, errStatusChanged) {
			return status, err
		}
		lastErr = err
	}
	return "", lastErr
}

// deleteOnce removes the row only if its status is still the one it read, so
// the caller learns the exact status that was removed.
func (r *AlertRepository) deleteOnce(ctx context.Context, userID uint, alertID uint) (domain.AlertStatus, error) {
	var prior domain.AlertStatus
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model alertModel
		if err := tx.Where("id = ? AND user_id = ?", alertID, userID).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}
		result := tx.Where("id = ? AND status = ?", model.ID, model.Status).Delete(&alertModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errStatusChanged
		}
		prior = domain.AlertStatus(model.Status)
		return nil
	})
	if err != nil {
		return "", err
	}
	return prior, nil
}

func (r *AlertRepository) ListActiveChannelKeys(ctx context.Context) ([]string, error) {
	var symbols []string
	if err := r.db.WithContext(ctx).
		Model(&alertModel{}).
		Where("status = ?", string(domain.AlertCreated)).
		Order("id").
		Pluck("symbol", &symbols).Error; err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		keys = append(keys, domain.ChannelKey(symbol))
	}
	return keys, nil
}

func mapAlertsToDomain(models []alertModel) []domain.Alert {
	alerts := make([]domain.Alert, 0, len(models))
	for _, model := range models {
		alerts = append(alerts, mapAlertToDomain(model))
	}
	return alerts
}

func mapAlertToDomain(model alertModel) domain.Alert {
	return domain.Alert{
		ID:          model.ID,
		UserID:      model.UserID,
		Symbol:      model.Symbol,
		Threshold:   model.Threshold,
		Status:      domain.AlertStatus(model.Status),
		TriggeredAt: model.TriggeredAt,
		CreatedAt:   model.CreatedAt,
		UpdatedAt:   model.UpdatedAt,
	}
}

func mapAlertToModel(alert domain.Alert) alertModel {
	status := alert.Status
	if status == "" {
		status = domain.AlertCreated
	}
	return alertModel{
		ID:          alert.ID,
		UserID:      alert.UserID,
		Symbol:      alert.Symbol,
		Threshold:   alert.Threshold,
		Status:      string(status),
		TriggeredAt: alert.TriggeredAt,
		CreatedAt:   alert.CreatedAt,
		UpdatedAt:   alert.UpdatedAt,
	}
}
