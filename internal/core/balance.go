package core

// Effect is the signed contribution a transaction makes to its owner's
// balance: +amount for income, -amount for expense.
type Effect struct {
	Kind   TransactionKind
	Amount Money
}

// EffectOf returns the balance effect of a transaction.
func EffectOf(t Transaction) Effect {
	return Effect{Kind: t.Kind, Amount: t.Amount}
}

// Cents returns the signed cent value of the effect.
func (e Effect) Cents() int64 {
	if e.Kind == Expense {
		return -e.Amount.Cents
	}
	return e.Amount.Cents
}

// Reversed returns the effect that undoes e.
func (e Effect) Reversed() Effect {
	if e.Kind == Expense {
		return Effect{Kind: Income, Amount: e.Amount}
	}
	return Effect{Kind: Expense, Amount: e.Amount}
}

// ApplyEffect is the single balance state transition. Income adds
// unconditionally; an expense requires sufficient balance and fails with
// ErrInsufficientBalance otherwise, leaving the input untouched.
func ApplyEffect(balance Money, e Effect) (Money, error) {
	if e.Kind == Expense && balance.Cents < e.Amount.Cents {
		return balance, ErrInsufficientBalance
	}
	return Money{Cents: balance.Cents + e.Cents()}, nil
}

// ReverseEffect undoes a previously applied effect. Reversal never checks
// sufficiency: undoing an expense only adds, and undoing an income may
// legitimately push the balance negative.
func ReverseEffect(balance Money, e Effect) Money {
	return Money{Cents: balance.Cents + e.Reversed().Cents()}
}
