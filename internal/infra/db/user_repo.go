package db

import (
	"context"
	"errors"

	"github.com/NasaVasa/pricealert/internal/domain"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var model userModel
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return mapUserToDomain(model), nil
}

func (r *UserRepository) GetByID(ctx context.Context, userID uint) (*domain.User, error) {
	var model userModel
	if err := r.db.WithContext(ctx).First(&model, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return mapUserToDomain(model), nil
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	model := mapUserToModel(*user)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateUser
		}
		return err
	}
	user.ID = model.ID
	user.CreatedAt = model.CreatedAt
	user.UpdatedAt = model.UpdatedAt
	return nil
}

func mapUserToDomain(model userModel) *domain.User {
	return &domain.User{
		ID:             model.ID,
		Username:       model.Username,
		Email:          model.Email,
		PasswordHash:   model.PasswordHash,
		TelegramChatID: model.TelegramChatID,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

func mapUserToModel(user domain.User) userModel {
	return userModel{
		ID:             user.ID,
		Username:       user.Username,
		Email:          user.Email,
		PasswordHash:   user.PasswordHash,
		TelegramChatID: user.TelegramChatID,
		CreatedAt:      user.CreatedAt,
		UpdatedAt:      user.UpdatedAt,
	}
}
