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

// StoreStore defines the database methods needed by store handlers.
type StoreStore interface {
	GetStore(ctx context.Context, id uuid.UUID) (database.Store, error)
	UpdateStore(ctx context.Context, arg database.UpdateStoreParams) (database.Store, error)
}

type StoreHandler struct {
	store StoreStore
}

func NewStoreHandler(store StoreStore) *StoreHandler {
	return &StoreHandler{store: store}
}

// RegisterPublicRoutes mounts the store profile read endpoint.
func (h *StoreHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/", h.Get)
}

func (h *StoreHandler) RegisterStaffRoutes(r chi.Router) {
	r.Put("/", h.Update)
}

type updateStoreRequest struct {
	Name    string  `json:"name"`
	Address *string `json:"address"`
	Phone   *string `json:"phone"`
}

type storeResponse struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Address *string   `json:"address,omitempty"`
	Phone   *string   `json:"phone,omitempty"`
}

func (h *StoreHandler) Get(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	store, err := h.store.GetStore(r.Context(), storeID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "store not found"})
			return
		}
		log.Printf("ERROR: get store: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, dbStoreToResponse(store))
}

func (h *StoreHandler) Update(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	var req updateStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}

	store, err := h.store.UpdateStore(r.Context(), database.UpdateStoreParams{
		ID:      storeID,
		Name:    req.Name,
		Address: textOrNull(req.Address),
		Phone:   textOrNull(req.Phone),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "store not found"})
			return
		}
		log.Printf("ERROR: update store: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, dbStoreToResponse(store))
}

func dbStoreToResponse(s database.Store) storeResponse {
	resp := storeResponse{ID: s.ID, Name: s.Name}
	if s.Address.Valid {
		resp.Address = &s.Address.String
	}
	if s.Phone.Valid {
		resp.Phone = &s.Phone.String
	}
	return resp
}
