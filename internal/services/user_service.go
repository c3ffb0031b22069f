package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/auth"
	"bilancio/internal/core"
	"bilancio/internal/storage"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// defaultCategories are seeded for every new user in the same transaction
// that creates the account.
var defaultCategories = []struct {
	Name string
	Kind core.TransactionKind
}{
	{"Salary", core.Income},
	{"Freelance", core.Income},
	{"Investments", core.Income},
	{"Other Income", core.Income},
	{"Food", core.Expense},
	{"Housing", core.Expense},
	{"Transport", core.Expense},
	{"Utilities", core.Expense},
	{"Health", core.Expense},
	{"Entertainment", core.Expense},
	{"Shopping", core.Expense},
	{"Other Expense", core.Expense},
}

// UserService handles registration, login and balance reads.
type UserService struct {
	repo   *storage.SQLiteRepository
	tokens *auth.TokenIssuer
}

func NewUserService(repo *storage.SQLiteRepository, tokens *auth.TokenIssuer) *UserService {
	return &UserService{repo: repo, tokens: tokens}
}

// Register creates a new account with a zero balance, seeds the default
// categories in the same transaction and returns a signed token.
func (s *UserService) Register(ctx context.Context, name, email, password string) (core.User, string, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" || strings.TrimSpace(password) == "" {
		return core.User{}, "", fmt.Errorf("%w: name, email and password are required", core.ErrValidation)
	}
	if !emailPattern.MatchString(email) {
		return core.User{}, "", fmt.Errorf("%w: invalid email address", core.ErrValidation)
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return core.User{}, "", err
	}

	now := time.Now().UTC()
	user := core.User{
		ID:             uuid.NewString(),
		Name:           name,
		Email:          email,
		HashedPassword: hashed,
		Balance:        core.Money{},
		CreatedAt:      now,
	}

	err = s.repo.WithTx(ctx, func(q *storage.Queries) error {
		_, err := q.GetUserByEmail(ctx, email)
		if err == nil {
			return fmt.Errorf("%w: email already in use", core.ErrDuplicateName)
		}
		if !errors.Is(err, core.ErrNotFound) {
			return err
		}

		if err := q.CreateUser(ctx, user); err != nil {
			return err
		}
		for _, dc := range defaultCategories {
			c := core.Category{
				ID:        uuid.NewString(),
				UserID:    user.ID,
				Name:      dc.Name,
				Kind:      dc.Kind,
				CreatedAt: now,
			}
			if err := q.CreateCategory(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return core.User{}, "", err
	}

	token, err := s.tokens.Issue(user.ID, user.Name)
	if err != nil {
		return core.User{}, "", err
	}

	slog.InfoContext(ctx, "User registered",
		"user_id", user.ID,
		"email", user.Email)
	return user, token, nil
}

// Login verifies credentials and returns a signed token. Unknown emails
// and wrong passwords produce the same caller-facing message.
func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return "", fmt.Errorf("%w: email and password are required", core.ErrValidation)
	}

	var user core.User
	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		user, err = q.GetUserByEmail(ctx, email)
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("%w: invalid email or password", core.ErrNotFound)
		}
		return err
	})
	if err != nil {
		return "", err
	}
	if !auth.CheckPassword(user.HashedPassword, password) {
		return "", fmt.Errorf("%w: invalid email or password", core.ErrValidation)
	}

	token, err := s.tokens.Issue(user.ID, user.Name)
	if err != nil {
		return "", err
	}

	slog.InfoContext(ctx, "User logged in", "user_id", user.ID)
	return token, nil
}

// GetBalance returns the user's current balance.
func (s *UserService) GetBalance(ctx context.Context, userID string) (core.Money, error) {
	return s.repo.Queries().GetUserBalance(ctx, userID)
}
