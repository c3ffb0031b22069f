// Package sheets defines the port for mirroring ledger rows into an
// external statement document.
package sheets

import (
	"context"
	"time"

	"bilancio/internal/core"
)

// StatementEntry is one line of the mirrored statement.
type StatementEntry struct {
	TransactionID string
	UserEmail     string
	Kind          core.TransactionKind
	Amount        core.Money
	Category      string
	Note          string
	Date          time.Time
}

// StatementWriter appends entries to the statement and returns a reference
// to the written location.
type StatementWriter interface {
	AppendEntry(ctx context.Context, e StatementEntry) (string, error)
}
