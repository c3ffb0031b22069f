package http

import (
	"fmt"
	"net/http"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/services"
	"bilancio/internal/storage"
)

type createTransactionRequest struct {
	Kind            string `json:"kind"`
	Amount          string `json:"amount"`
	CategoryID      string `json:"category_id"`
	Note            string `json:"note"`
	TransactionDate string `json:"transaction_date"`
}

type updateTransactionRequest struct {
	Kind       *string `json:"kind"`
	Amount     *string `json:"amount"`
	CategoryID *string `json:"category_id"`
	Note       *string `json:"note"`
}

type transactionResponse struct {
	ID              string    `json:"transaction_id"`
	Kind            string    `json:"kind"`
	Amount          string    `json:"amount"`
	CategoryID      string    `json:"category_id"`
	Note            string    `json:"note,omitempty"`
	TransactionDate time.Time `json:"transaction_date"`
	CreatedAt       time.Time `json:"created_at"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:              t.ID,
		Kind:            string(t.Kind),
		Amount:          core.FormatCents(t.Amount.Cents),
		CategoryID:      t.CategoryID,
		Note:            t.Note,
		TransactionDate: t.TransactionDate,
		CreatedAt:       t.CreatedAt,
	}
}

func parseAmount(s string) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return core.Money{}, fmt.Errorf("%w: amount %q", core.ErrValidation, s)
	}
	return core.Money{Cents: cents}, nil
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)

	var req createTransactionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var transactionDate time.Time
	if req.TransactionDate != "" {
		transactionDate, err = time.Parse(time.RFC3339, req.TransactionDate)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: transaction_date must be RFC 3339", core.ErrValidation))
			return
		}
	}

	created, err := s.ledger.CreateTransaction(r.Context(), claims.UserID, services.CreateTransactionParams{
		Kind:            core.TransactionKind(req.Kind),
		Amount:          amount,
		CategoryID:      req.CategoryID,
		Note:            req.Note,
		TransactionDate: transactionDate,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "Transaction created successfully", toTransactionResponse(created))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)

	filter := storage.TransactionFilter{
		Kind:       core.TransactionKind(r.URL.Query().Get("kind")),
		CategoryID: r.URL.Query().Get("category_id"),
	}
	if filter.Kind != "" {
		if err := filter.Kind.Validate(); err != nil {
			writeError(w, r, fmt.Errorf("%w: %s", core.ErrValidation, err))
			return
		}
	}

	transactions, err := s.ledger.ListTransactions(r.Context(), claims.UserID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]transactionResponse, len(transactions))
	for i, t := range transactions {
		out[i] = toTransactionResponse(t)
	}
	writeSuccess(w, http.StatusOK, "Transactions fetched successfully", out)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	id := r.PathValue("id")

	var req updateTransactionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var patch core.TransactionPatch
	if req.Kind != nil {
		kind := core.TransactionKind(*req.Kind)
		patch.Kind = &kind
	}
	if req.Amount != nil {
		amount, err := parseAmount(*req.Amount)
		if err != nil {
			writeError(w, r, err)
			return
		}
		patch.Amount = &amount
	}
	patch.CategoryID = req.CategoryID
	patch.Note = req.Note

	updated, err := s.ledger.UpdateTransaction(r.Context(), claims.UserID, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Transaction updated successfully", toTransactionResponse(updated))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	id := r.PathValue("id")

	if err := s.ledger.DeleteTransaction(r.Context(), claims.UserID, id); err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Transaction deleted successfully", nil)
}
