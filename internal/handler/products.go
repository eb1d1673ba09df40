package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/dapoer-pos/api/internal/database"
)

// ProductStore defines the database methods needed by product handlers.
type ProductStore interface {
	CreateProduct(ctx context.Context, arg database.CreateProductParams) (database.Product, error)
	GetProduct(ctx context.Context, arg database.GetProductParams) (database.Product, error)
	ListProducts(ctx context.Context, storeID uuid.UUID) ([]database.Product, error)
	UpdateProduct(ctx context.Context, arg database.UpdateProductParams) (database.Product, error)
	DeleteProduct(ctx context.Context, arg database.DeleteProductParams) error
}

type ProductHandler struct {
	store ProductStore
}

func NewProductHandler(store ProductStore) *ProductHandler {
	return &ProductHandler{store: store}
}

// RegisterPublicRoutes mounts the read-only menu endpoints. Mounted under
// /stores/{sid}/products so customers can browse without authenticating.
func (h *ProductHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
}

// RegisterStaffRoutes mounts the catalog management endpoints.
func (h *ProductHandler) RegisterStaffRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

type productRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Price       string  `json:"price"`
	PrepTime    *int32  `json:"prep_time"`
	ImageURL    *string `json:"image_url"`
	IsAvailable *bool   `json:"is_available"`
}

type productResponse struct {
	ID          uuid.UUID `json:"id"`
	StoreID     uuid.UUID `json:"store_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Price       string    `json:"price"`
	PrepTime    *int32    `json:"prep_time,omitempty"`
	ImageURL    *string   `json:"image_url,omitempty"`
	IsAvailable bool      `json:"is_available"`
}

func (r productRequest) validate() (pgtype.Numeric, string) {
	if r.Name == "" {
		return pgtype.Numeric{}, "name is required"
	}
	price, err := decimal.NewFromString(r.Price)
	if err != nil || price.IsNegative() {
		return pgtype.Numeric{}, "price must be a non-negative decimal"
	}
	if r.PrepTime != nil && *r.PrepTime < 0 {
		return pgtype.Numeric{}, "prep_time must not be negative"
	}
	var num pgtype.Numeric
	if err := num.Scan(price.String()); err != nil {
		return pgtype.Numeric{}, "invalid price"
	}
	return num, ""
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	price, msg := req.validate()
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	product, err := h.store.CreateProduct(r.Context(), database.CreateProductParams{
		StoreID:     storeID,
		Name:        req.Name,
		Description: textOrNull(req.Description),
		Category:    textOrNull(req.Category),
		Price:       price,
		PrepTime:    int4OrNull(req.PrepTime),
		ImageURL:    textOrNull(req.ImageURL),
	})
	if err != nil {
		log.Printf("ERROR: create product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, dbProductToResponse(product))
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	products, err := h.store.ListProducts(r.Context(), storeID)
	if err != nil {
		log.Printf("ERROR: list products: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, dbProductToResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	product, err := h.store.GetProduct(r.Context(), database.GetProductParams{ID: id, StoreID: storeID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: get product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, dbProductToResponse(product))
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	price, msg := req.validate()
	if msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}

	product, err := h.store.UpdateProduct(r.Context(), database.UpdateProductParams{
		ID:          id,
		StoreID:     storeID,
		Name:        req.Name,
		Description: textOrNull(req.Description),
		Category:    textOrNull(req.Category),
		Price:       price,
		PrepTime:    int4OrNull(req.PrepTime),
		ImageURL:    textOrNull(req.ImageURL),
		IsAvailable: available,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: update product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, dbProductToResponse(product))
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product ID"})
		return
	}

	if err := h.store.DeleteProduct(r.Context(), database.DeleteProductParams{ID: id, StoreID: storeID}); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
			return
		}
		log.Printf("ERROR: delete product: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func dbProductToResponse(p database.Product) productResponse {
	resp := productResponse{
		ID:          p.ID,
		StoreID:     p.StoreID,
		Name:        p.Name,
		Price:       numericToString(p.Price),
		IsAvailable: p.IsAvailable,
	}
	if p.Description.Valid {
		resp.Description = &p.Description.String
	}
	if p.Category.Valid {
		resp.Category = &p.Category.String
	}
	if p.PrepTime.Valid {
		resp.PrepTime = &p.PrepTime.Int32
	}
	if p.ImageURL.Valid {
		resp.ImageURL = &p.ImageURL.String
	}
	return resp
}

func textOrNull(s *string) pgtype.Text {
	if s == nil || *s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func int4OrNull(n *int32) pgtype.Int4 {
	if n == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: *n, Valid: true}
}
