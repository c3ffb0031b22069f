package services

import (
	"context"
	"errors"
	"testing"

	"bilancio/internal/core"
)

func TestCreateCategoryDuplicateName(t *testing.T) {
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "a@example.com")
	categories := NewCategoryService(repo)

	if _, err := categories.CreateCategory(context.Background(), user.ID, "Books", core.Expense); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := categories.CreateCategory(context.Background(), user.ID, "Books", core.Income); !errors.Is(err, core.ErrDuplicateName) {
		t.Fatalf("err = %v, want ErrDuplicateName", err)
	}
}

func TestSameNameAllowedAcrossUsers(t *testing.T) {
	repo := newTestRepo(t)
	a := newTestUser(t, repo, "a@example.com")
	b := newTestUser(t, repo, "b@example.com")
	categories := NewCategoryService(repo)

	if _, err := categories.CreateCategory(context.Background(), a.ID, "Books", core.Expense); err != nil {
		t.Fatalf("create for a: %v", err)
	}
	if _, err := categories.CreateCategory(context.Background(), b.ID, "Books", core.Expense); err != nil {
		t.Fatalf("create for b: %v", err)
	}
}

func TestUpdateCategoryMergesFields(t *testing.T) {
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "a@example.com")
	categories := NewCategoryService(repo)

	created, err := categories.CreateCategory(context.Background(), user.ID, "Books", core.Expense)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "Reading"
	updated, err := categories.UpdateCategory(context.Background(), user.ID, created.ID, core.CategoryPatch{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Reading" || updated.Kind != core.Expense {
		t.Fatalf("merge wrong: %+v", updated)
	}
}

func TestUpdateCategoryNotOwned(t *testing.T) {
	repo := newTestRepo(t)
	owner := newTestUser(t, repo, "owner@example.com")
	intruder := newTestUser(t, repo, "intruder@example.com")
	categories := NewCategoryService(repo)

	created, err := categories.CreateCategory(context.Background(), owner.ID, "Books", core.Expense)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "Hijacked"
	if _, err := categories.UpdateCategory(context.Background(), intruder.ID, created.ID, core.CategoryPatch{Name: &name}); !errors.Is(err, core.ErrNotOwned) {
		t.Fatalf("err = %v, want ErrNotOwned", err)
	}
	if err := categories.DeleteCategory(context.Background(), intruder.ID, created.ID); !errors.Is(err, core.ErrNotOwned) {
		t.Fatalf("delete err = %v, want ErrNotOwned", err)
	}
}

func TestDeleteCategoryInUse(t *testing.T) {
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "a@example.com")
	categories := NewCategoryService(repo)
	ledger := NewLedgerService(repo, nil)
	salary := categoryID(t, repo, user.ID, "Salary")

	tx, err := ledger.CreateTransaction(context.Background(), user.ID, CreateTransactionParams{
		Kind:       core.Income,
		Amount:     core.Money{Cents: 100},
		CategoryID: salary,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}

	if err := categories.DeleteCategory(context.Background(), user.ID, salary); !errors.Is(err, core.ErrCategoryInUse) {
		t.Fatalf("err = %v, want ErrCategoryInUse", err)
	}

	// Both the category and the transaction must survive.
	if _, err := ledger.GetTransaction(context.Background(), user.ID, tx.ID); err != nil {
		t.Fatalf("transaction gone after blocked delete: %v", err)
	}
	if got := categoryID(t, repo, user.ID, "Salary"); got != salary {
		t.Fatalf("category gone after blocked delete")
	}

	// Once the referencing transaction is removed the delete goes through.
	if err := ledger.DeleteTransaction(context.Background(), user.ID, tx.ID); err != nil {
		t.Fatalf("delete transaction: %v", err)
	}
	if err := categories.DeleteCategory(context.Background(), user.ID, salary); err != nil {
		t.Fatalf("delete category: %v", err)
	}
}

func TestListCategoriesFilterAndOrder(t *testing.T) {
	repo := newTestRepo(t)
	user := newTestUser(t, repo, "a@example.com")
	categories := NewCategoryService(repo)

	income, err := categories.ListCategories(context.Background(), user.ID, core.Income)
	if err != nil {
		t.Fatalf("list income: %v", err)
	}
	if len(income) == 0 {
		t.Fatal("expected seeded income categories")
	}
	for _, c := range income {
		if c.Kind != core.Income {
			t.Fatalf("kind filter leaked %+v", c)
		}
	}

	all, err := categories.ListCategories(context.Background(), user.ID, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Name > all[i].Name {
			t.Fatalf("not ordered by name: %q before %q", all[i-1].Name, all[i].Name)
		}
	}

	if _, err := categories.ListCategories(context.Background(), user.ID, "bogus"); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
