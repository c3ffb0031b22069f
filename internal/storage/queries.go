package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bilancio/internal/core"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx so the same queries can
// run standalone or inside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of the queries bound to the given transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const createUser = `
INSERT INTO users (user_id, name, email, hashed_password, balance_cents, created_at)
VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateUser(ctx context.Context, u core.User) error {
	_, err := q.db.ExecContext(ctx, createUser,
		u.ID, u.Name, u.Email, u.HashedPassword, u.Balance.Cents, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

const getUserByEmail = `
SELECT user_id, name, email, hashed_password, balance_cents, created_at
FROM users WHERE email = ?`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	var u core.User
	err := q.db.QueryRowContext(ctx, getUserByEmail, email).
		Scan(&u.ID, &u.Name, &u.Email, &u.HashedPassword, &u.Balance.Cents, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

const getUserByID = `
SELECT user_id, name, email, hashed_password, balance_cents, created_at
FROM users WHERE user_id = ?`

func (q *Queries) GetUserByID(ctx context.Context, id string) (core.User, error) {
	var u core.User
	err := q.db.QueryRowContext(ctx, getUserByID, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.HashedPassword, &u.Balance.Cents, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

const getUserBalance = `SELECT balance_cents FROM users WHERE user_id = ?`

func (q *Queries) GetUserBalance(ctx context.Context, id string) (core.Money, error) {
	var cents int64
	err := q.db.QueryRowContext(ctx, getUserBalance, id).Scan(&cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Money{}, core.ErrNotFound
	}
	if err != nil {
		return core.Money{}, fmt.Errorf("get user balance: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

const updateUserBalance = `UPDATE users SET balance_cents = ? WHERE user_id = ?`

func (q *Queries) UpdateUserBalance(ctx context.Context, id string, balance core.Money) error {
	res, err := q.db.ExecContext(ctx, updateUserBalance, balance.Cents, id)
	if err != nil {
		return fmt.Errorf("update user balance: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	return nil
}

const createCategory = `
INSERT INTO categories (category_id, user_id, name, kind, created_at)
VALUES (?, ?, ?, ?, ?)`

func (q *Queries) CreateCategory(ctx context.Context, c core.Category) error {
	_, err := q.db.ExecContext(ctx, createCategory,
		c.ID, c.UserID, c.Name, string(c.Kind), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

const getCategory = `
SELECT category_id, user_id, name, kind, created_at
FROM categories WHERE category_id = ?`

func (q *Queries) GetCategory(ctx context.Context, id string) (core.Category, error) {
	var c core.Category
	err := q.db.QueryRowContext(ctx, getCategory, id).
		Scan(&c.ID, &c.UserID, &c.Name, &c.Kind, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

const getCategoryByName = `
SELECT category_id, user_id, name, kind, created_at
FROM categories WHERE user_id = ? AND name = ?`

func (q *Queries) GetCategoryByName(ctx context.Context, userID, name string) (core.Category, error) {
	var c core.Category
	err := q.db.QueryRowContext(ctx, getCategoryByName, userID, name).
		Scan(&c.ID, &c.UserID, &c.Name, &c.Kind, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.ErrNotFound
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category by name: %w", err)
	}
	return c, nil
}

const updateCategory = `UPDATE categories SET name = ?, kind = ? WHERE category_id = ?`

func (q *Queries) UpdateCategory(ctx context.Context, c core.Category) error {
	res, err := q.db.ExecContext(ctx, updateCategory, c.Name, string(c.Kind), c.ID)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	return nil
}

const deleteCategory = `DELETE FROM categories WHERE category_id = ?`

func (q *Queries) DeleteCategory(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, deleteCategory, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	return nil
}

const listCategories = `
SELECT category_id, user_id, name, kind, created_at
FROM categories WHERE user_id = ?`

// ListCategories returns the user's categories ordered by name. An empty
// kind returns both kinds.
func (q *Queries) ListCategories(ctx context.Context, userID string, kind core.TransactionKind) ([]core.Category, error) {
	query := listCategories
	args := []any{userID}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY name ASC"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	categories := []core.Category{}
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Kind, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

const countTransactionsByCategory = `
SELECT COUNT(*) FROM transactions WHERE category_id = ?`

func (q *Queries) CountTransactionsByCategory(ctx context.Context, categoryID string) (int64, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, countTransactionsByCategory, categoryID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions by category: %w", err)
	}
	return n, nil
}

const createTransaction = `
INSERT INTO transactions (transaction_id, user_id, kind, amount_cents, category_id, note, transaction_date, created_at, sync_status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending')`

func (q *Queries) CreateTransaction(ctx context.Context, t core.Transaction) error {
	_, err := q.db.ExecContext(ctx, createTransaction,
		t.ID, t.UserID, string(t.Kind), t.Amount.Cents, t.CategoryID, t.Note, t.TransactionDate, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

const getTransaction = `
SELECT transaction_id, user_id, kind, amount_cents, category_id, note, transaction_date, created_at
FROM transactions WHERE transaction_id = ?`

func (q *Queries) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	var t core.Transaction
	err := q.db.QueryRowContext(ctx, getTransaction, id).
		Scan(&t.ID, &t.UserID, &t.Kind, &t.Amount.Cents, &t.CategoryID, &t.Note, &t.TransactionDate, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

const updateTransaction = `
UPDATE transactions
SET kind = ?, amount_cents = ?, category_id = ?, note = ?, transaction_date = ?, sync_status = 'pending'
WHERE transaction_id = ?`

func (q *Queries) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	res, err := q.db.ExecContext(ctx, updateTransaction,
		string(t.Kind), t.Amount.Cents, t.CategoryID, t.Note, t.TransactionDate, t.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	return nil
}

const deleteTransaction = `DELETE FROM transactions WHERE transaction_id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// TransactionFilter narrows ListTransactions. Zero values mean no filter.
type TransactionFilter struct {
	Kind       core.TransactionKind
	CategoryID string
}

const listTransactions = `
SELECT transaction_id, user_id, kind, amount_cents, category_id, note, transaction_date, created_at
FROM transactions WHERE user_id = ?`

func (q *Queries) ListTransactions(ctx context.Context, userID string, filter TransactionFilter) ([]core.Transaction, error) {
	query := listTransactions
	args := []any{userID}
	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, string(filter.Kind))
	}
	if filter.CategoryID != "" {
		query += " AND category_id = ?"
		args = append(args, filter.CategoryID)
	}
	query += " ORDER BY transaction_date DESC, created_at DESC"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	transactions := []core.Transaction{}
	for rows.Next() {
		var t core.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Kind, &t.Amount.Cents, &t.CategoryID, &t.Note, &t.TransactionDate, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return transactions, nil
}

const markTransactionSynced = `
UPDATE transactions SET sync_status = 'synced' WHERE transaction_id = ?`

func (q *Queries) MarkTransactionSynced(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, markTransactionSynced, id); err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	return nil
}

const markTransactionSyncError = `
UPDATE transactions SET sync_status = 'error' WHERE transaction_id = ?`

func (q *Queries) MarkTransactionSyncError(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, markTransactionSyncError, id); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	return nil
}

const listPendingSyncTransactions = `
SELECT transaction_id, user_id, kind, amount_cents, category_id, note, transaction_date, created_at
FROM transactions WHERE sync_status = 'pending'
ORDER BY created_at ASC
LIMIT ?`

func (q *Queries) ListPendingSyncTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listPendingSyncTransactions, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list pending sync transactions: %w", err)
	}
	defer rows.Close()

	transactions := []core.Transaction{}
	for rows.Next() {
		var t core.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Kind, &t.Amount.Cents, &t.CategoryID, &t.Note, &t.TransactionDate, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return transactions, nil
}
