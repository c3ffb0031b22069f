// Package services implements the application operations on top of the
// storage layer: the balance ledger, category management and user accounts.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"bilancio/internal/core"
	"bilancio/internal/storage"
)

// EventPublisher notifies downstream consumers that a transaction changed.
// Publishing happens after commit and is best-effort: a publish failure
// never fails the request, the pending-sync sweep picks the row up later.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, transactionID, userID, action string) error
}

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// LedgerService owns every balance-affecting mutation. Each operation runs
// as one database transaction: read state, validate, adjust the balance and
// persist the row together, so the stored balance always equals the signed
// sum of the user's transactions.
type LedgerService struct {
	repo      *storage.SQLiteRepository
	publisher EventPublisher
}

// NewLedgerService creates a ledger service. publisher may be nil to
// disable event publishing.
func NewLedgerService(repo *storage.SQLiteRepository, publisher EventPublisher) *LedgerService {
	return &LedgerService{repo: repo, publisher: publisher}
}

// CreateTransactionParams are the caller-supplied fields for a new
// transaction. TransactionDate defaults to now when zero.
type CreateTransactionParams struct {
	Kind            core.TransactionKind
	Amount          core.Money
	CategoryID      string
	Note            string
	TransactionDate time.Time
}

func (s *LedgerService) CreateTransaction(ctx context.Context, userID string, params CreateTransactionParams) (core.Transaction, error) {
	now := time.Now().UTC()
	t := core.Transaction{
		ID:              uuid.NewString(),
		UserID:          userID,
		Kind:            params.Kind,
		Amount:          params.Amount,
		CategoryID:      params.CategoryID,
		Note:            params.Note,
		TransactionDate: params.TransactionDate,
		CreatedAt:       now,
	}
	if t.TransactionDate.IsZero() {
		t.TransactionDate = now
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("%w: %s", core.ErrValidation, err)
	}

	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		if err := checkCategoryOwned(ctx, q, userID, t.CategoryID); err != nil {
			return err
		}

		balance, err := q.GetUserBalance(ctx, userID)
		if err != nil {
			return err
		}
		newBalance, err := core.ApplyEffect(balance, core.EffectOf(t))
		if err != nil {
			return err
		}

		if err := q.CreateTransaction(ctx, t); err != nil {
			return err
		}
		return q.UpdateUserBalance(ctx, userID, newBalance)
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction created",
		"transaction_id", t.ID,
		"user_id", userID,
		"kind", t.Kind,
		"amount_cents", t.Amount.Cents)
	s.publish(ctx, t.ID, userID, ActionCreated)

	return t, nil
}

// UpdateTransaction merges the patch against the stored row and swaps the
// old balance effect for the new one. The old effect is reversed first, so
// sufficiency for the new effect is checked against the reversed balance:
// raising an expense past the pre-edit balance is allowed as long as the
// returned old amount covers it. Everything rolls back together on failure.
func (s *LedgerService) UpdateTransaction(ctx context.Context, userID, transactionID string, patch core.TransactionPatch) (core.Transaction, error) {
	if patch.IsEmpty() {
		return core.Transaction{}, fmt.Errorf("%w: no fields to update", core.ErrValidation)
	}

	var updated core.Transaction
	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		old, err := q.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if old.UserID != userID {
			return core.ErrNotOwned
		}

		balance, err := q.GetUserBalance(ctx, userID)
		if err != nil {
			return err
		}
		reversed := core.ReverseEffect(balance, core.EffectOf(old))

		merged := patch.ApplyTo(old)
		if err := merged.Validate(); err != nil {
			return fmt.Errorf("%w: %s", core.ErrValidation, err)
		}
		if merged.CategoryID != old.CategoryID {
			if err := checkCategoryOwned(ctx, q, userID, merged.CategoryID); err != nil {
				return err
			}
		}

		newBalance, err := core.ApplyEffect(reversed, core.EffectOf(merged))
		if err != nil {
			return err
		}

		if err := q.UpdateTransaction(ctx, merged); err != nil {
			return err
		}
		if err := q.UpdateUserBalance(ctx, userID, newBalance); err != nil {
			return err
		}
		updated = merged
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}

	slog.InfoContext(ctx, "Transaction updated",
		"transaction_id", transactionID,
		"user_id", userID)
	s.publish(ctx, transactionID, userID, ActionUpdated)

	return updated, nil
}

// DeleteTransaction removes the row and reverses its balance effect.
// Reversal never checks sufficiency: undoing an income may push the
// balance negative, which only mirrors the sequence that produced it.
func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, transactionID string) error {
	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		t, err := q.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if t.UserID != userID {
			return core.ErrNotOwned
		}

		balance, err := q.GetUserBalance(ctx, userID)
		if err != nil {
			return err
		}
		newBalance := core.ReverseEffect(balance, core.EffectOf(t))

		if err := q.DeleteTransaction(ctx, transactionID); err != nil {
			return err
		}
		return q.UpdateUserBalance(ctx, userID, newBalance)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Transaction deleted",
		"transaction_id", transactionID,
		"user_id", userID)
	s.publish(ctx, transactionID, userID, ActionDeleted)

	return nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, userID, transactionID string) (core.Transaction, error) {
	t, err := s.repo.Queries().GetTransaction(ctx, transactionID)
	if err != nil {
		return core.Transaction{}, err
	}
	if t.UserID != userID {
		return core.Transaction{}, core.ErrNotOwned
	}
	return t, nil
}

func (s *LedgerService) ListTransactions(ctx context.Context, userID string, filter storage.TransactionFilter) ([]core.Transaction, error) {
	return s.repo.Queries().ListTransactions(ctx, userID, filter)
}

func (s *LedgerService) GetBalance(ctx context.Context, userID string) (core.Money, error) {
	return s.repo.Queries().GetUserBalance(ctx, userID)
}

func (s *LedgerService) publish(ctx context.Context, transactionID, userID, action string) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTransactionEvent(ctx, transactionID, userID, action); err != nil {
		slog.WarnContext(ctx, "Failed to publish transaction event, sweep will catch up",
			"transaction_id", transactionID,
			"action", action,
			"error", err)
	}
}

// checkCategoryOwned verifies the category exists and belongs to the user.
func checkCategoryOwned(ctx context.Context, q *storage.Queries, userID, categoryID string) error {
	c, err := q.GetCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	if c.UserID != userID {
		return core.ErrNotOwned
	}
	return nil
}
