package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shoplite/catalog-orders/internal/catalog"
)

type CatalogStore interface {
	CreateProduct(ctx context.Context, in catalog.CreateProductInput) (*catalog.Product, error)
	ListProducts(ctx context.Context) ([]catalog.Product, error)
	GetProduct(ctx context.Context, id int64) (*catalog.Product, error)
	UpdateProduct(ctx context.Context, id int64, in catalog.UpdateProductInput) (*catalog.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	CreateReview(ctx context.Context, productID int64, in catalog.CreateReviewInput) (*catalog.Review, error)
	ListReviews(ctx context.Context, productID int64) ([]catalog.Review, error)
	GetReview(ctx context.Context, id int64) (*catalog.Review, error)
	UpdateReview(ctx context.Context, id int64, in catalog.UpdateReviewInput) (*catalog.Review, error)
	DeleteReview(ctx context.Context, id int64) error
}

type CatalogHandler struct {
	Store CatalogStore
}

func (h *CatalogHandler) Register(r *chi.Mux) {
	r.Post("/product", h.createProduct)
	r.Get("/product", h.listProducts)

	// The static "reviews" segment must not be swallowed by {id}; chi routes
	// static segments first.
	r.Get("/product/reviews/{id}", h.getReview)
	r.Patch("/product/reviews/{id}", h.updateReview)
	r.Delete("/product/reviews/{id}", h.removeReview)

	r.Get("/product/{id}", h.getProduct)
	r.Patch("/product/{id}", h.updateProduct)
	r.Delete("/product/{id}", h.removeProduct)
	r.Post("/product/{id}/reviews", h.createReview)
	r.Get("/product/{id}/reviews", h.listReviews)
}

type createProductReq struct {
	Name        string `json:"product_name"`
	Description string `json:"description"`
	Stock       *int   `json:"stock"`
}

func (req createProductReq) validate() map[string]string {
	fields := map[string]string{}
	if strings.TrimSpace(req.Name) == "" {
		fields["product_name"] = "must not be empty"
	}
	if strings.TrimSpace(req.Description) == "" {
		fields["description"] = "must not be empty"
	}
	if req.Stock != nil && *req.Stock < 0 {
		fields["stock"] = "must not be negative"
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func (h *CatalogHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if fields := req.validate(); fields != nil {
		writeValidation(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Store.CreateProduct(ctx, catalog.CreateProductInput{
		Name:        req.Name,
		Description: req.Description,
		Stock:       req.Stock,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *CatalogHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Store.ListProducts(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *CatalogHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "product not found")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Store.GetProduct(ctx, id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type updateProductReq struct {
	Name        *string `json:"product_name"`
	Description *string `json:"description"`
	Stock       *int    `json:"stock"`
}

func (req updateProductReq) validate() map[string]string {
	fields := map[string]string{}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		fields["product_name"] = "must not be empty"
	}
	if req.Description != nil && strings.TrimSpace(*req.Description) == "" {
		fields["description"] = "must not be empty"
	}
	if req.Stock != nil && *req.Stock < 0 {
		fields["stock"] = "must not be negative"
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func (h *CatalogHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "product not found")
	if !ok {
		return
	}
	var req updateProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if fields := req.validate(); fields != nil {
		writeValidation(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Store.UpdateProduct(ctx, id, catalog.UpdateProductInput{
		Name:        req.Name,
		Description: req.Description,
		Stock:       req.Stock,
	})
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *CatalogHandler) removeProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "product not found")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Store.DeleteProduct(ctx, id); err != nil {
		h.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createReviewReq struct {
	ReviewerName string `json:"reviewerName"`
	Rating       *int   `json:"rating"`
	Comment      string `json:"comment"`
}

func (req createReviewReq) validate() map[string]string {
	fields := map[string]string{}
	if strings.TrimSpace(req.ReviewerName) == "" {
		fields["reviewerName"] = "must not be empty"
	}
	if strings.TrimSpace(req.Comment) == "" {
		fields["comment"] = "must not be empty"
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		fields["rating"] = "must be between 1 and 5"
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func (h *CatalogHandler) createReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "product not found")
	if !ok {
		return
	}
	var req createReviewReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if fields := req.validate(); fields != nil {
		writeValidation(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rv, err := h.Store.CreateReview(ctx, id, catalog.CreateReviewInput{
		ReviewerName: req.ReviewerName,
		Rating:       req.Rating,
		Comment:      req.Comment,
	})
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rv)
}

func (h *CatalogHandler) listReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "product not found")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Store.ListReviews(ctx, id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *CatalogHandler) getReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "review not found")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	rv, err := h.Store.GetReview(ctx, id)
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rv)
}

type updateReviewReq struct {
	ReviewerName *string `json:"reviewerName"`
	Rating       *int    `json:"rating"`
	Comment      *string `json:"comment"`
}

func (req updateReviewReq) validate() map[string]string {
	fields := map[string]string{}
	if req.ReviewerName != nil && strings.TrimSpace(*req.ReviewerName) == "" {
		fields["reviewerName"] = "must not be empty"
	}
	if req.Comment != nil && strings.TrimSpace(*req.Comment) == "" {
		fields["comment"] = "must not be empty"
	}
	if req.Rating != nil && (*req.Rating < 1 || *req.Rating > 5) {
		fields["rating"] = "must be between 1 and 5"
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func (h *CatalogHandler) updateReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "review not found")
	if !ok {
		return
	}
	var req updateReviewReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if fields := req.validate(); fields != nil {
		writeValidation(w, fields)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rv, err := h.Store.UpdateReview(ctx, id, catalog.UpdateReviewInput{
		ReviewerName: req.ReviewerName,
		Rating:       req.Rating,
		Comment:      req.Comment,
	})
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rv)
}

func (h *CatalogHandler) removeReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "review not found")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Store.DeleteReview(ctx, id); err != nil {
		h.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		writeError(w, http.StatusNotFound, "product not found")
	case errors.Is(err, catalog.ErrReviewNotFound):
		writeError(w, http.StatusNotFound, "review not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func pathID(w http.ResponseWriter, r *http.Request, notFound string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, notFound)
		return 0, false
	}
	return id, true
}
