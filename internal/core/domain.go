package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionKind = "income"
	Expense TransactionKind = "expense"
)

type (
	TransactionKind string

	Money struct {
		Cents int64
	}

	// User holds the account row, including the running balance that the
	// ledger keeps equal to the signed sum of the user's transactions.
	User struct {
		ID             string
		Name           string
		Email          string
		HashedPassword string
		Balance        Money
		CreatedAt      time.Time
	}

	Category struct {
		ID        string
		UserID    string
		Name      string
		Kind      TransactionKind
		CreatedAt time.Time
	}

	Transaction struct {
		ID              string
		UserID          string
		Kind            TransactionKind
		Amount          Money
		CategoryID      string
		Note            string
		TransactionDate time.Time
		CreatedAt       time.Time
	}
)

// Error taxonomy. Known conditions are surfaced to callers as-is; anything
// else is treated as an opaque fault.
var (
	ErrValidation          = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrNotOwned            = errors.New("not owned by user")
	ErrDuplicateName       = errors.New("name already in use")
	ErrCategoryInUse       = errors.New("category still referenced by transactions")
	ErrInsufficientBalance = errors.New("insufficient balance")

	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidKind   = errors.New("invalid transaction kind")
)

func (k TransactionKind) Validate() error {
	switch k {
	case Income, Expense:
		return nil
	default:
		return ErrInvalidKind
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

const maxNameLen = 100

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("empty category name")
	}
	if len(c.Name) > maxNameLen {
		return errors.New("category name too long (max 100 characters)")
	}
	return c.Kind.Validate()
}

func (t Transaction) Validate() error {
	if err := t.Kind.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.CategoryID) == "" {
		return errors.New("missing category")
	}
	if len(t.Note) > 500 {
		return errors.New("note too long (max 500 characters)")
	}
	return nil
}

// TransactionPatch is a partial update: nil fields keep the stored value.
// Merging happens against a snapshot read inside the same atomic unit that
// writes the result.
type TransactionPatch struct {
	Kind       *TransactionKind
	Amount     *Money
	CategoryID *string
	Note       *string
}

// IsEmpty reports whether the patch changes nothing.
func (p TransactionPatch) IsEmpty() bool {
	return p.Kind == nil && p.Amount == nil && p.CategoryID == nil && p.Note == nil
}

// ApplyTo returns a copy of t with the patched fields replaced.
func (p TransactionPatch) ApplyTo(t Transaction) Transaction {
	if p.Kind != nil {
		t.Kind = *p.Kind
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.CategoryID != nil {
		t.CategoryID = *p.CategoryID
	}
	if p.Note != nil {
		t.Note = *p.Note
	}
	return t
}

// CategoryPatch is a partial category update with the same semantics.
type CategoryPatch struct {
	Name *string
	Kind *TransactionKind
}

func (p CategoryPatch) IsEmpty() bool {
	return p.Name == nil && p.Kind == nil
}

func (p CategoryPatch) ApplyTo(c Category) Category {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Kind != nil {
		c.Kind = *p.Kind
	}
	return c
}
