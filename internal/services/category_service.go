package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// CategoryService manages a user's categories. Names are unique per user;
// a category referenced by any transaction cannot be deleted.
type CategoryService struct {
	repo *storage.SQLiteRepository
}

func NewCategoryService(repo *storage.SQLiteRepository) *CategoryService {
	return &CategoryService{repo: repo}
}

func (s *CategoryService) CreateCategory(ctx context.Context, userID, name string, kind core.TransactionKind) (core.Category, error) {
	c := core.Category{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, fmt.Errorf("%w: %s", core.ErrValidation, err)
	}

	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		if err := checkNameFree(ctx, q, userID, c.Name); err != nil {
			return err
		}
		return q.CreateCategory(ctx, c)
	})
	if err != nil {
		return core.Category{}, err
	}

	slog.InfoContext(ctx, "Category created",
		"category_id", c.ID,
		"user_id", userID,
		"name", c.Name,
		"kind", c.Kind)
	return c, nil
}

// UpdateCategory merges the patch against the stored row. Renaming to a
// name already used by another of the user's categories fails with
// DuplicateName.
func (s *CategoryService) UpdateCategory(ctx context.Context, userID, categoryID string, patch core.CategoryPatch) (core.Category, error) {
	if patch.IsEmpty() {
		return core.Category{}, fmt.Errorf("%w: no fields to update", core.ErrValidation)
	}
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		patch.Name = &trimmed
	}

	var updated core.Category
	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		old, err := q.GetCategory(ctx, categoryID)
		if err != nil {
			return err
		}
		if old.UserID != userID {
			return core.ErrNotOwned
		}

		merged := patch.ApplyTo(old)
		if err := merged.Validate(); err != nil {
			return fmt.Errorf("%w: %s", core.ErrValidation, err)
		}
		if merged.Name != old.Name {
			if err := checkNameFree(ctx, q, userID, merged.Name); err != nil {
				return err
			}
		}

		if err := q.UpdateCategory(ctx, merged); err != nil {
			return err
		}
		updated = merged
		return nil
	})
	if err != nil {
		return core.Category{}, err
	}

	slog.InfoContext(ctx, "Category updated",
		"category_id", categoryID,
		"user_id", userID)
	return updated, nil
}

func (s *CategoryService) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		c, err := q.GetCategory(ctx, categoryID)
		if err != nil {
			return err
		}
		if c.UserID != userID {
			return core.ErrNotOwned
		}

		n, err := q.CountTransactionsByCategory(ctx, categoryID)
		if err != nil {
			return err
		}
		if n > 0 {
			return core.ErrCategoryInUse
		}

		return q.DeleteCategory(ctx, categoryID)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Category deleted",
		"category_id", categoryID,
		"user_id", userID)
	return nil
}

// ListCategories returns the user's categories ordered by name. kind may
// be empty to list both kinds.
func (s *CategoryService) ListCategories(ctx context.Context, userID string, kind core.TransactionKind) ([]core.Category, error) {
	if kind != "" {
		if err := kind.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s", core.ErrValidation, err)
		}
	}
	return s.repo.Queries().ListCategories(ctx, userID, kind)
}

func checkNameFree(ctx context.Context, q *storage.Queries, userID, name string) error {
	_, err := q.GetCategoryByName(ctx, userID, name)
	if err == nil {
		return core.ErrDuplicateName
	}
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	return err
}
