package usecase

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/NasaVasa/pricealert/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingFields      = errors.New("missing required fields")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPasswordTooLong    = errors.New("password too long")
)

// bcrypt only hashes the first 72 bytes and rejects longer input.
const maxPasswordBytes = 72

type TokenIssuer interface {
	Issue(userID uint) (string, error)
	Parse(token string) (uint, error)
}

type UserUsecase struct {
	users  domain.UserRepository
	tokens TokenIssuer
	cost   int
}

func NewUserUsecase(users domain.UserRepository, tokens TokenIssuer) *UserUsecase {
	return &UserUsecase{users: users, tokens: tokens, cost: bcrypt.DefaultCost}
}

func (u *UserUsecase) Register(ctx context.Context, username, password, email string, telegramChatID *int64) (*domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || password == "" || email == "" {
		return nil, ErrMissingFields
	}
	if len(password) > maxPasswordBytes {
		return nil, ErrPasswordTooLong
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}

	if _, err := u.users.GetByUsername(ctx, username); err == nil {
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), u.cost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:       username,
		Email:          email,
		PasswordHash:   string(hash),
		TelegramChatID: telegramChatID,
	}
	if err := u.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrDuplicateUser) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return user, nil
}

func (u *UserUsecase) Login(ctx context.Context, username, password string) (string, error) {
	user, err := u.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return u.tokens.Issue(user.ID)
}

func (u *UserUsecase) Authenticate(token string) (uint, error) {
	userID, err := u.tokens.Parse(token)
	if err != nil {
		return 0, ErrInvalidCredentials
	}
	return userID, nil
}
