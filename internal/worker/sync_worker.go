// Package worker mirrors committed ledger rows into the external
// statement. Events arrive over AMQP; a periodic sweep picks up rows
// whose events were lost.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/core"
	"bilancio/internal/services"
	"bilancio/internal/sheets"
	"bilancio/internal/storage"
)

type SyncWorker struct {
	storage   *storage.SQLiteRepository
	writer    sheets.StatementWriter
	batchSize int
}

func NewSyncWorker(storage *storage.SQLiteRepository, writer sheets.StatementWriter, batchSize int) *SyncWorker {
	return &SyncWorker{
		storage:   storage,
		writer:    writer,
		batchSize: batchSize,
	}
}

// HandleTransactionEvent processes one event from the queue. The current
// row is always re-read from the database, so a stale message cannot
// mirror stale data.
func (w *SyncWorker) HandleTransactionEvent(ctx context.Context, msg *amqp.TransactionEventMessage) error {
	slog.InfoContext(ctx, "Processing transaction event",
		"transaction_id", msg.TransactionID,
		"action", msg.Action)

	if msg.Action == services.ActionDeleted {
		// The statement is append-only; deletions leave no line to mirror.
		return nil
	}

	t, err := w.storage.Queries().GetTransaction(ctx, msg.TransactionID)
	if errors.Is(err, core.ErrNotFound) {
		// Deleted between publish and delivery
		slog.InfoContext(ctx, "Transaction gone before mirroring, skipping",
			"transaction_id", msg.TransactionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction: %w", err)
	}

	return w.mirrorTransaction(ctx, t)
}

// ProcessPending sweeps rows still marked pending. This is the backup
// path for lost AMQP messages.
func (w *SyncWorker) ProcessPending(ctx context.Context) error {
	pending, err := w.storage.Queries().ListPendingSyncTransactions(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending transactions", "count", len(pending))

	for _, t := range pending {
		if err := w.mirrorTransaction(ctx, t); err != nil {
			slog.ErrorContext(ctx, "Failed to mirror transaction",
				"transaction_id", t.ID,
				"error", err)
		}
	}
	return nil
}

// RunSweep runs ProcessPending once at startup and then on every tick
// until the context is cancelled.
func (w *SyncWorker) RunSweep(ctx context.Context, interval time.Duration) error {
	if err := w.ProcessPending(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup sweep failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Sweep failed", "error", err)
			}
		}
	}
}

func (w *SyncWorker) mirrorTransaction(ctx context.Context, t core.Transaction) error {
	q := w.storage.Queries()

	user, err := q.GetUserByID(ctx, t.UserID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	categoryName := ""
	if c, err := q.GetCategory(ctx, t.CategoryID); err == nil {
		categoryName = c.Name
	}

	entry := sheets.StatementEntry{
		TransactionID: t.ID,
		UserEmail:     user.Email,
		Kind:          t.Kind,
		Amount:        t.Amount,
		Category:      categoryName,
		Note:          t.Note,
		Date:          t.TransactionDate,
	}

	ref, err := w.writer.AppendEntry(ctx, entry)
	if err != nil {
		if markErr := q.MarkTransactionSyncError(ctx, t.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error",
				"transaction_id", t.ID,
				"error", markErr)
		}
		return fmt.Errorf("append statement entry: %w", err)
	}

	if err := q.MarkTransactionSynced(ctx, t.ID); err != nil {
		// The append worked; only the bookkeeping failed.
		slog.ErrorContext(ctx, "Failed to mark as synced",
			"transaction_id", t.ID,
			"error", err)
	}

	slog.InfoContext(ctx, "Mirrored transaction to statement",
		"transaction_id", t.ID,
		"sheets_ref", ref)
	return nil
}
