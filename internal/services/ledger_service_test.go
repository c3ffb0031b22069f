package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"bilancio/internal/auth"
	"bilancio/internal/core"
	"bilancio/internal/storage"
)

func newTestRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestUser(t *testing.T, repo *storage.SQLiteRepository, email string) core.User {
	t.Helper()
	users := NewUserService(repo, auth.NewTokenIssuer("test-secret", time.Hour))
	user, _, err := users.Register(context.Background(), "Test User", email, "password123")
	if err != nil {
		t.Fatalf("register test user: %v", err)
	}
	return user
}

func categoryID(t *testing.T, repo *storage.SQLiteRepository, userID, name string) string {
	t.Helper()
	categories, err := NewCategoryService(repo).ListCategories(context.Background(), userID, "")
	if err != nil {
		t.Fatalf("list categories: %v", err)
	}
	for _, c := range categories {
		if c.Name == name {
			return c.ID
		}
	}
	t.Fatalf("category %q not found", name)
	return ""
}

func mustBalance(t *testing.T, repo *storage.SQLiteRepository, userID string) int64 {
	t.Helper()
	b, err := repo.Queries().GetUserBalance(context.Background(), userID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return b.Cents
}

// fund creates an income transaction so later expenses have something to
// draw on.
func fund(t *testing.T, ledger *LedgerService, userID, catID string, cents int64) {
	t.Helper()
	_, err := ledger.CreateTransaction(context.Background(), userID, CreateTransactionParams{
		Kind:       core.Income,
		Amount:     core.Money{Cents: cents},
		CategoryID: catID,
	})
	if err != nil {
		t.Fatalf("fund account: %v", err)
	}
}

func TestCreateExpenseAdjustsBalance(t *testing.T) {
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "a@example.com")
	ledger := NewLedgerService(repo, nil)
	salary := categoryID(t, repo, user.ID, "Salary")
	food := categoryID(t, repo, user.ID, "Food")

	fund(t, ledger, user.ID, salary, 10000)

	tx, err := ledger.CreateTransaction(context.Background(), user.ID, CreateTransactionParams{
		Kind:       core.Expense,
		Amount:     core.Money{Cents: 4000},
		CategoryID: food,
		Note:       "groceries",
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}
	if got := mustBalance(t, repo, user.ID); got != 6000 {
		t.Fatalf("balance = %d, want 6000", got)
	}

	stored, err := ledger.GetTransaction(context.Background(), user.ID, tx.ID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if stored.Amount.Cents != 4000 || stored.Kind != core.Expense {
		t.Fatalf("stored transaction wrong: %+v", stored)
	}
}

func TestCreateExpenseInsufficientBalance(t *testing.T) {
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "a@example.com")
	ledger := NewLedgerService(repo, nil)
	salary := categoryID(t, repo, user.ID, "Salary")
	food := categoryID(t, repo, user.ID, "Food")

	fund(t, ledger, user.ID, salary, 6000)

	_, err := ledger.CreateTransaction(context.Background(), user.ID, CreateTransactionParams{
		Kind:       core.Expense,
		Amount:     core.Money{Cents: 20000},
		CategoryID: food,
	})
	if !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if got := mustBalance(t, repo, user.ID); got != 6000 {
		t.Fatalf("balance changed on failed create: %d", got)
	}
	list, err := ledger.ListTransactions(context.Background(), user.ID, storage.TransactionFilter{Kind: core.Expense})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("failed create left %d expense rows", len(list))
	}
}

func TestUpdateSwapsEffectAgainstReversedBalance(t *testing.T) {
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "a@example.com")
	ledger := NewLedgerService(repo, nil)
	salary := categoryID(t, repo, user.ID, "Salary")
	food := categoryID(t, repo, user.ID, "Food")

	fund(t, ledger, user.ID, salary, 10000)
	tx, err := ledger.CreateTransaction(context.Background(), user.ID, CreateTransactionParams{
		Kind:       core.Expense,
		Amount:     core.Money{Cents: 4000},
		CategoryID: food,
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}
	// balance is now 6000

	amount := core.Money{Cents: 5000}
	updated, err := ledger.UpdateTransaction(context.Background(), user.ID, tx.ID, core.TransactionPatch{Amount: &amount})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Amount.Cents != 5000 {
		t.Fatalf("amount = %d, want 5000", updated.Amount.Cents)
	}
	if got := mustBalance(t, repo, user.ID); got != 5000 {
		t.Fatalf("balance = %d, want 5000", got)
	}
}

// Raising an expense past the pre-edit balance must succeed as long as the
// reversed balance covers the new amount.
func TestUpdateExpensePastPreEditBalance(t *testing.T) {
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "a@example.com")
	ledger := NewLedgerService(repo, nil)
	salary := categoryID(t, repo, user.ID, "Salary")
	food := categoryID(t, repo, user.ID, "Food")

	fund(t, ledger, user.ID, salary, 10000)
	tx, err := ledger.CreateTransaction(context.Background(), user.ID, CreateTransactionParams{
		Kind:       core.Expense,
		Amount:     core.Money{Cents: 9000},
		CategoryID: food,
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}
	// balance is 1000; new amount 9500 exceeds it but not the reversed 10000

	amount := core.Money{Cents: 9500}
	if _, err := ledger.UpdateTransaction(context.Background(), user.ID, tx.ID, core.TransactionPatch{Amount: &amount}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := mustBalance(t, repo, user.ID); got != 500 {
		t.Fatalf("balance = %d, want 500", got)
	}
}

func TestUpdateSameValuesIsNetNoOp(t *testing.T) {
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "a@example.com")
	ledger := NewLedgerService(repo, nil)
	salary := categoryID(t, repo, user.ID, "Salary")
	food := categoryID(t, repo, user.ID, "Food")

	fund(t, ledger, user.ID, salary, 10000)
	tx, err := ledger.CreateTransaction(context.Background(), user.ID, CreateTransactionParams{
		Kind:       core.Expense,
		Amount:     core.Money{Cents: 4000},
		CategoryID: food,
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}
	before := mustBalance(t, repo, user.ID)

	amount := tx.Amount
	kind := tx.Kind
	if _, err := ledger.UpdateTransaction(context.Background(), user.ID, tx.ID, core.TransactionPatch{Kind: &kind, Amount: &amount}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := mustBalance(t, repo, user.ID); got != before {
		t.Fatalf("identical update changed balance: %d -> %d", before, got)
	}
}

func TestFailedUpdateRollsBackCompletely(t *testing.T) {
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "a@example.com")
	ledger := NewLedgerService(repo, nil)
	salary := categoryID(t, repo, user.ID, "Salary")
	food := categoryID(t, repo, user.ID, "Food")

	fund(t, ledger, user.ID, salary, 10000)
	tx, err := ledger.CreateTransaction(context.Background(), user.ID, CreateTransactionParams{
		Kind:       core.Expense,
		Amount:     core.Money{Cents: 4000},
		CategoryID: food,
	})
	if err != nil {
		t.Fatalf("create expense: %v", err)
	}
	before := mustBalance(t, repo, user.ID)

	// New amount exceeds even the reversed balance, so the whole unit
	// (including the reversal) must roll back.
	amount := core.Money{Cents: 99999}
	_, err = ledger.UpdateTransaction(context.Background(), user.ID, tx.ID, core.TransactionPatch{Amount: &amount})
	if !errors.Is(err, core.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}

	if got := mustBalance(t, repo, user.ID); got != before {
		t.Fatalf("balance drifted after failed update: %d -> %d", before, got)
	}
	stored, err := ledger.GetTransaction(context.Background(), user.ID, tx.ID)
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if stored.Amount.Cents != 4000 {
		t.Fatalf("row mutated after failed update: %+v", stored)
	}
}

func TestDeleteIncomeMayGoNegative(t *testing.T) {
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "a@example.com")
	ledger := NewLedgerService(repo, nil)
	salary := categoryID(t, repo, user.ID, "Salary")
	food := categoryID(t, repo, user.ID, "Food")

	fund(t, ledger, user.ID, salary, 3000)
	income, err := ledger.CreateTransaction(context.Background(), user.ID, CreateTransactionParams{
		Kind:       core.Income,
		Amount:     core.Money{Cents: 10000},
		CategoryID: salary,
	})
	if err != nil {
		t.Fatalf("create income: %v", err)
	}
	if _, err := ledger.CreateTransaction(context.Background(), user.ID, CreateTransactionParams{
		Kind:       core.Expense,
		Amount:     core.Money{Cents: 9000},
		CategoryID: food,
	}); err != nil {
		t.Fatalf("create expense: %v", err)
	}
	// balance is 4000; deleting the 10000 income must land at -6000

	if err := ledger.DeleteTransaction(context.Background(), user.ID, income.ID); err != nil {
		t.Fatalf("delete income: %v", err)
	}
	if got := mustBalance(t, repo, user.ID); got != -6000 {
		t.Fatalf("balance = %d, want -6000", got)
	}
	if _, err := ledger.GetTransaction(context.Background(), user.ID, income.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("deleted transaction still readable: %v", err)
	}
}

// After any sequence of successful mutations the balance must equal the
// signed sum of the surviving transactions.
func TestBalanceMatchesSignedSumAfterMutations(t *testing.T) {
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "a@example.com")
	ledger := NewLedgerService(repo, nil)
	salary := categoryID(t, repo, user.ID, "Salary")
	food := categoryID(t, repo, user.ID, "Food")
	ctx := context.Background()

	fund(t, ledger, user.ID, salary, 20000)
	e1, err := ledger.CreateTransaction(ctx, user.ID, CreateTransactionParams{
		Kind: core.Expense, Amount: core.Money{Cents: 3000}, CategoryID: food,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	e2, err := ledger.CreateTransaction(ctx, user.ID, CreateTransactionParams{
		Kind: core.Expense, Amount: core.Money{Cents: 2500}, CategoryID: food,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	amount := core.Money{Cents: 4500}
	if _, err := ledger.UpdateTransaction(ctx, user.ID, e1.ID, core.TransactionPatch{Amount: &amount}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := ledger.DeleteTransaction(ctx, user.ID, e2.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	transactions, err := ledger.ListTransactions(ctx, user.ID, storage.TransactionFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var sum int64
	for _, tx := range transactions {
		sum += core.EffectOf(tx).Cents()
	}
	if got := mustBalance(t, repo, user.ID); got != sum {
		t.Fatalf("balance %d != signed sum %d over %d rows", got, sum, len(transactions))
	}
}

// Concurrent expense creations must serialize on the store's write lock:
// two units may not both pass the sufficiency check against the same
// pre-mutation balance.
func TestConcurrentExpensesNeverOverdraw(t *testing.T) {
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "a@example.com")
	ledger := NewLedgerService(repo, nil)
	salary := categoryID(t, repo, user.ID, "Salary")
	food := categoryID(t, repo, user.ID, "Food")
	ctx := context.Background()

	fund(t, ledger, user.ID, salary, 10000)

	// Each expense is 6000 against a 10000 balance, so exactly one of the
	// racing creations can fit.
	const workers = 8
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.CreateTransaction(ctx, user.ID, CreateTransactionParams{
				Kind:       core.Expense,
				Amount:     core.Money{Cents: 6000},
				CategoryID: food,
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, core.ErrInsufficientBalance):
		default:
			t.Fatalf("unexpected error from concurrent create: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("successes = %d, want exactly 1", successes)
	}

	if got := mustBalance(t, repo, user.ID); got != 4000 {
		t.Fatalf("balance = %d, want 4000", got)
	}
	transactions, err := ledger.ListTransactions(ctx, user.ID, storage.TransactionFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var sum int64
	for _, tx := range transactions {
		sum += core.EffectOf(tx).Cents()
	}
	if got := mustBalance(t, repo, user.ID); got != sum {
		t.Fatalf("balance %d != signed sum %d after racing creates", got, sum)
	}
}

func TestMutationsAgainstForeignTransactionFailNotOwned(t *testing.T) {
	repo := newTestRepo(t)
	owner := newTestUser(t, repo, "owner@example.com")
	intruder := newTestUser(t, repo, "intruder@example.com")
	ledger := NewLedgerService(repo, nil)
	salary := categoryID(t, repo, owner.ID, "Salary")

	tx, err := ledger.CreateTransaction(context.Background(), owner.ID, CreateTransactionParams{
		Kind:       core.Income,
		Amount:     core.Money{Cents: 5000},
		CategoryID: salary,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	amount := core.Money{Cents: 100}
	if _, err := ledger.UpdateTransaction(context.Background(), intruder.ID, tx.ID, core.TransactionPatch{Amount: &amount}); !errors.Is(err, core.ErrNotOwned) {
		t.Fatalf("update err = %v, want ErrNotOwned", err)
	}
	if err := ledger.DeleteTransaction(context.Background(), intruder.ID, tx.ID); !errors.Is(err, core.ErrNotOwned) {
		t.Fatalf("delete err = %v, want ErrNotOwned", err)
	}

	if got := mustBalance(t, repo, owner.ID); got != 5000 {
		t.Fatalf("owner balance mutated: %d", got)
	}
	stored, err := ledger.GetTransaction(context.Background(), owner.ID, tx.ID)
	if err != nil || stored.Amount.Cents != 5000 {
		t.Fatalf("owner row mutated: %+v (err=%v)", stored, err)
	}
}

func TestCreateWithForeignCategoryFails(t *testing.T) {
	repo := newTestRepo(t)
	owner := newTestUser(t, repo, "owner@example.com")
	intruder := newTestUser(t, repo, "intruder@example.com")
	ledger := NewLedgerService(repo, nil)
	ownersFood := categoryID(t, repo, owner.ID, "Food")

	_, err := ledger.CreateTransaction(context.Background(), intruder.ID, CreateTransactionParams{
		Kind:       core.Income,
		Amount:     core.Money{Cents: 100},
		CategoryID: ownersFood,
	})
	if !errors.Is(err, core.ErrNotOwned) {
		t.Fatalf("err = %v, want ErrNotOwned", err)
	}
}

func TestEmptyPatchRejected(t *testing.T) {
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "a@example.com")
	ledger := NewLedgerService(repo, nil)

	_, err := ledger.UpdateTransaction(context.Background(), user.ID, "whatever", core.TransactionPatch{})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

type recordingPublisher struct {
	events []string
	err    error
}

func (p *recordingPublisher) PublishTransactionEvent(_ context.Context, transactionID, userID, action string) error {
	p.events = append(p.events, fmt.Sprintf("%s:%s", action, transactionID))
	return p.err
}

func TestPublishIsBestEffort(t *testing.T) {
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "a@example.com")
	pub := &recordingPublisher{err: errors.New("broker down")}
	ledger := NewLedgerService(repo, pub)
	salary := categoryID(t, repo, user.ID, "Salary")

	tx, err := ledger.CreateTransaction(context.Background(), user.ID, CreateTransactionParams{
		Kind:       core.Income,
		Amount:     core.Money{Cents: 100},
		CategoryID: salary,
	})
	if err != nil {
		t.Fatalf("create must succeed despite publish failure: %v", err)
	}
	if len(pub.events) != 1 || pub.events[0] != "created:"+tx.ID {
		t.Fatalf("unexpected events: %v", pub.events)
	}
}
