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

	"github.com/dapoer-pos/api/internal/database"
)

// TableStore defines the database methods needed by table handlers.
type TableStore interface {
	CreateTable(ctx context.Context, arg database.CreateTableParams) (database.Table, error)
	GetTable(ctx context.Context, arg database.GetTableParams) (database.Table, error)
	GetTableByQRCode(ctx context.Context, arg database.GetTableByQRCodeParams) (database.Table, error)
	ListTables(ctx context.Context, storeID uuid.UUID) ([]database.Table, error)
}

type TableHandler struct {
	store TableStore
}

func NewTableHandler(store TableStore) *TableHandler {
	return &TableHandler{store: store}
}

// RegisterPublicRoutes mounts the QR resolution endpoint. A customer scanning
// a table QR code hits this before creating an order.
func (h *TableHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/qr/{code}", h.GetByQRCode)
}

func (h *TableHandler) RegisterStaffRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
}

type createTableRequest struct {
	Number   string  `json:"number"`
	QRCode   string  `json:"qr_code"`
	Location *string `json:"location"`
}

type tableResponse struct {
	ID       uuid.UUID `json:"id"`
	StoreID  uuid.UUID `json:"store_id"`
	Number   string    `json:"number"`
	QRCode   string    `json:"qr_code"`
	Location *string   `json:"location,omitempty"`
	IsActive bool      `json:"is_active"`
}

func (h *TableHandler) Create(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	var req createTableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Number == "" || req.QRCode == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "number and qr_code are required"})
		return
	}

	table, err := h.store.CreateTable(r.Context(), database.CreateTableParams{
		StoreID:  storeID,
		Number:   req.Number,
		QRCode:   req.QRCode,
		Location: textOrNull(req.Location),
	})
	if err != nil {
		log.Printf("ERROR: create table: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusCreated, dbTableToResponse(table))
}

func (h *TableHandler) List(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	tables, err := h.store.ListTables(r.Context(), storeID)
	if err != nil {
		log.Printf("ERROR: list tables: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]tableResponse, 0, len(tables))
	for _, t := range tables {
		resp = append(resp, dbTableToResponse(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *TableHandler) Get(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid table ID"})
		return
	}

	table, err := h.store.GetTable(r.Context(), database.GetTableParams{ID: id, StoreID: storeID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "table not found"})
			return
		}
		log.Printf("ERROR: get table: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, dbTableToResponse(table))
}

func (h *TableHandler) GetByQRCode(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	code := chi.URLParam(r, "code")
	table, err := h.store.GetTableByQRCode(r.Context(), database.GetTableByQRCodeParams{
		QRCode:  code,
		StoreID: storeID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "table not found"})
			return
		}
		log.Printf("ERROR: get table by qr code: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if !table.IsActive {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "table not found"})
		return
	}

	writeJSON(w, http.StatusOK, dbTableToResponse(table))
}

func dbTableToResponse(t database.Table) tableResponse {
	resp := tableResponse{
		ID:       t.ID,
		StoreID:  t.StoreID,
		Number:   t.Number,
		QRCode:   t.QRCode,
		IsActive: t.IsActive,
	}
	if t.Location.Valid {
		resp.Location = &t.Location.String
	}
	return resp
}
