package http

import (
	"net/http"
	"time"

	"bilancio/internal/core"
)

type createCategoryRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type updateCategoryRequest struct {
	Name *string `json:"name"`
	Kind *string `json:"kind"`
}

type categoryResponse struct {
	ID        string    `json:"category_id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

func toCategoryResponse(c core.Category) categoryResponse {
	return categoryResponse{
		ID:        c.ID,
		Name:      c.Name,
		Kind:      string(c.Kind),
		CreatedAt: c.CreatedAt,
	}
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)

	var req createCategoryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	created, err := s.categories.CreateCategory(r.Context(), claims.UserID, req.Name, core.TransactionKind(req.Kind))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusCreated, "Category created successfully", toCategoryResponse(created))
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)

	kind := core.TransactionKind(r.URL.Query().Get("kind"))
	categories, err := s.categories.ListCategories(r.Context(), claims.UserID, kind)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]categoryResponse, len(categories))
	for i, c := range categories {
		out[i] = toCategoryResponse(c)
	}
	writeSuccess(w, http.StatusOK, "Categories fetched successfully", out)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	id := r.PathValue("id")

	var req updateCategoryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var patch core.CategoryPatch
	patch.Name = req.Name
	if req.Kind != nil {
		kind := core.TransactionKind(*req.Kind)
		patch.Kind = &kind
	}

	updated, err := s.categories.UpdateCategory(r.Context(), claims.UserID, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Category updated successfully", toCategoryResponse(updated))
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	claims := callerClaims(r)
	id := r.PathValue("id")

	if err := s.categories.DeleteCategory(r.Context(), claims.UserID, id); err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, http.StatusOK, "Category deleted successfully", nil)
}
