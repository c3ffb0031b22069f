package http

import (
	"net/http"
	"time"

	"bilancio/internal/core"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Balance   string    `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	user, token, err := s.users.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccessWithToken(w, http.StatusCreated, "User created successfully", map[string]any{
		"user": userResponse{
			ID:        user.ID,
			Name:      user.Name,
			Email:     user.Email,
			Balance:   core.FormatCents(user.Balance.Cents),
			CreatedAt: user.CreatedAt,
		},
	}, token)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	token, err := s.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccessWithToken(w, http.StatusOK, "User logged in successfully", nil, token)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)

	balance, err := s.users.GetBalance(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Balance fetched successfully.", map[string]any{
		"balance": core.FormatCents(balance.Cents),
	})
}
