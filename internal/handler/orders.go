package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/dapoer-pos/api/internal/database"
	"github.com/dapoer-pos/api/internal/enum"
	"github.com/dapoer-pos/api/internal/service"
	"github.com/dapoer-pos/api/internal/ws"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
	UpdateStatus(ctx context.Context, req service.UpdateStatusRequest) (database.Order, error)
	RequestCancel(ctx context.Context, storeID uuid.UUID, code, reason string) (database.Order, error)
	ApproveCancel(ctx context.Context, storeID, orderID uuid.UUID) (database.Order, error)
	RejectCancel(ctx context.Context, storeID, orderID uuid.UUID, reason string) (database.Order, error)
	VerifyRefund(ctx context.Context, storeID uuid.UUID, code string) (*service.RefundResult, error)
	Track(ctx context.Context, storeID uuid.UUID, code string) (*service.TrackResult, error)
}

// OrderStore defines the database methods needed by the order read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

// OrderNotifier pushes order events to subscribed POS terminals.
// Satisfied by *ws.Hub; fire-and-forget.
type OrderNotifier interface {
	Publish(storeID uuid.UUID, eventType string, payload any)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc      OrderServicer
	store    OrderStore
	notifier OrderNotifier
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, store OrderStore, notifier OrderNotifier) *OrderHandler {
	return &OrderHandler{svc: svc, store: store, notifier: notifier}
}

// RegisterPublicRoutes registers the customer-facing order endpoints.
// Expected to be mounted inside a store-scoped subrouter: /stores/{sid}/orders
func (h *OrderHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/code/{code}", h.TrackByCode)
	r.Post("/code/{code}/cancel", h.RequestCancel)
}

// RegisterStaffRoutes registers the cashier/admin order endpoints.
func (h *OrderHandler) RegisterStaffRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Post("/{id}/cancel/approve", h.ApproveCancel)
	r.Post("/{id}/cancel/reject", h.RejectCancel)
	r.Post("/code/{code}/refund/verify", h.VerifyRefund)
}

// --- Request / Response types ---

type createOrderRequest struct {
	CustomerName    string                   `json:"customer_name"`
	OrderType       string                   `json:"order_type"`
	TableID         string                   `json:"table_id"`
	Note            string                   `json:"note"`
	DeliveryAddress string                   `json:"delivery_address"`
	PaymentMethod   string                   `json:"payment_method"`
	PaymentStatus   string                   `json:"payment_status"`
	Items           []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type updateStatusRequest struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type orderResponse struct {
	ID                 uuid.UUID           `json:"id"`
	StoreID            uuid.UUID           `json:"store_id"`
	TransactionCode    string              `json:"transaction_code"`
	QueueNumber        int32               `json:"queue_number"`
	CustomerName       string              `json:"customer_name"`
	OrderType          string              `json:"order_type"`
	TableID            *string             `json:"table_id"`
	Note               *string             `json:"note"`
	DeliveryAddress    *string             `json:"delivery_address"`
	TotalAmount        string              `json:"total_amount"`
	Status             string              `json:"status"`
	PaymentMethod      *string             `json:"payment_method"`
	PaymentStatus      string              `json:"payment_status"`
	EstimatedTime      string              `json:"estimated_time"`
	TargetTime         *time.Time          `json:"target_time"`
	CancellationStatus *string             `json:"cancellation_status"`
	CancellationReason *string             `json:"cancellation_reason"`
	RefundStatus       *string             `json:"refund_status"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
	Items              []orderItemResponse `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID            uuid.UUID `json:"id"`
	ProductID     uuid.UUID `json:"product_id"`
	Quantity      int32     `json:"quantity"`
	PriceSnapshot string    `json:"price_snapshot"`
}

// trackResponse extends orderResponse with the live queue view.
type trackResponse struct {
	orderResponse
	QueuePosition        int    `json:"queue_position"`
	OrdersAhead          int    `json:"orders_ahead"`
	PredictedServiceTime string `json:"predicted_service_time"`
}

type refundResponse struct {
	Order          orderResponse `json:"order"`
	RefundedAmount string        `json:"refunded_amount"`
}

// orderListResponse wraps a list of orders with pagination metadata.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// --- Handlers ---

// Create handles POST /stores/{sid}/orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.CustomerName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "customer_name is required"})
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "items are required"})
		return
	}
	for i, item := range req.Items {
		if item.ProductID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": formatItemError(i, "product_id is required")})
			return
		}
		if item.Quantity <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": formatItemError(i, "quantity must be > 0")})
			return
		}
	}

	svcItems := make([]service.CreateOrderItemRequest, len(req.Items))
	for i, item := range req.Items {
		svcItems[i] = service.CreateOrderItemRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		}
	}

	result, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		StoreID:         storeID,
		CustomerName:    req.CustomerName,
		OrderType:       req.OrderType,
		TableID:         req.TableID,
		Note:            req.Note,
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   req.PaymentStatus,
		Items:           svcItems,
	})
	if err != nil {
		writeOrderError(w, err, "create order")
		return
	}

	resp := dbOrderToResponse(result.Order)
	resp.Items = itemsToResponse(result.Items)
	h.notifier.Publish(storeID, ws.EventNewOrder, resp)
	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /stores/{sid}/orders.
// The status filter accepts a comma-separated set, e.g. ?status=PENDING,PROCESSING.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	var statuses []string
	if s := r.URL.Query().Get("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			if !isKnownStatus(part) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status filter: " + part})
				return
			}
			statuses = append(statuses, part)
		}
	}

	orders, err := h.store.ListOrders(r.Context(), database.ListOrdersParams{
		StoreID:  storeID,
		Statuses: statuses,
		Limit:    int32(limit),
		Offset:   int32(offset),
	})
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = dbOrderToResponse(o)
	}

	writeJSON(w, http.StatusOK, orderListResponse{Orders: resp, Limit: limit, Offset: offset})
}

// Get handles GET /stores/{sid}/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), database.GetOrderParams{ID: orderID, StoreID: storeID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListOrderItems(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := dbOrderToResponse(order)
	resp.Items = itemsToResponse(items)
	writeJSON(w, http.StatusOK, resp)
}

// TrackByCode handles GET /stores/{sid}/orders/code/{code}.
// Returns the order with its live queue position and predicted service time.
func (h *OrderHandler) TrackByCode(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Track(r.Context(), storeID, chi.URLParam(r, "code"))
	if err != nil {
		writeOrderError(w, err, "track order")
		return
	}

	resp := trackResponse{
		orderResponse:        dbOrderToResponse(result.Order),
		QueuePosition:        result.QueuePosition,
		OrdersAhead:          result.OrdersAhead,
		PredictedServiceTime: result.PredictedServiceTime,
	}
	resp.Items = itemsToResponse(result.Items)
	writeJSON(w, http.StatusOK, resp)
}

// UpdateStatus handles PATCH /stores/{sid}/orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == "" && req.PaymentStatus == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status or payment_status is required"})
		return
	}

	updated, err := h.svc.UpdateStatus(r.Context(), service.UpdateStatusRequest{
		StoreID:       storeID,
		OrderID:       orderID,
		Status:        strings.ToUpper(req.Status),
		PaymentStatus: strings.ToUpper(req.PaymentStatus),
	})
	if err != nil {
		writeOrderError(w, err, "update order status")
		return
	}

	resp := dbOrderToResponse(updated)
	h.notifier.Publish(storeID, ws.EventOrderStatusUpdated, resp)
	writeJSON(w, http.StatusOK, resp)
}

// RequestCancel handles POST /stores/{sid}/orders/code/{code}/cancel.
func (h *OrderHandler) RequestCancel(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	updated, err := h.svc.RequestCancel(r.Context(), storeID, chi.URLParam(r, "code"), req.Reason)
	if err != nil {
		writeOrderError(w, err, "request cancel")
		return
	}

	resp := dbOrderToResponse(updated)
	h.notifier.Publish(storeID, ws.EventOrderStatusUpdated, resp)
	writeJSON(w, http.StatusOK, resp)
}

// ApproveCancel handles POST /stores/{sid}/orders/{id}/cancel/approve.
func (h *OrderHandler) ApproveCancel(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	updated, err := h.svc.ApproveCancel(r.Context(), storeID, orderID)
	if err != nil {
		writeOrderError(w, err, "approve cancel")
		return
	}

	resp := dbOrderToResponse(updated)
	h.notifier.Publish(storeID, ws.EventOrderStatusUpdated, resp)
	writeJSON(w, http.StatusOK, resp)
}

// RejectCancel handles POST /stores/{sid}/orders/{id}/cancel/reject.
// A reason in the body turns the rejection into a cashier force-cancel.
func (h *OrderHandler) RejectCancel(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	updated, err := h.svc.RejectCancel(r.Context(), storeID, orderID, req.Reason)
	if err != nil {
		writeOrderError(w, err, "reject cancel")
		return
	}

	resp := dbOrderToResponse(updated)
	h.notifier.Publish(storeID, ws.EventOrderStatusUpdated, resp)
	writeJSON(w, http.StatusOK, resp)
}

// VerifyRefund handles POST /stores/{sid}/orders/code/{code}/refund/verify.
func (h *OrderHandler) VerifyRefund(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeIDParam(w, r)
	if !ok {
		return
	}

	result, err := h.svc.VerifyRefund(r.Context(), storeID, chi.URLParam(r, "code"))
	if err != nil {
		writeOrderError(w, err, "verify refund")
		return
	}

	resp := refundResponse{
		Order:          dbOrderToResponse(result.Order),
		RefundedAmount: result.Amount.StringFixed(2),
	}
	h.notifier.Publish(storeID, ws.EventOrderStatusUpdated, resp.Order)
	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

func storeIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	storeID, err := uuid.Parse(chi.URLParam(r, "sid"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid store ID"})
		return uuid.UUID{}, false
	}
	return storeID, true
}

func formatItemError(idx int, msg string) string {
	return "items[" + strconv.Itoa(idx) + "]: " + msg
}

// isValidationError checks if the error is a known validation error
// from the service layer that should result in 400 Bad Request.
func isValidationError(err error) bool {
	return errors.Is(err, service.ErrCustomerNameRequired) ||
		errors.Is(err, service.ErrEmptyItems) ||
		errors.Is(err, service.ErrInvalidOrderType) ||
		errors.Is(err, service.ErrInvalidQuantity) ||
		errors.Is(err, service.ErrInvalidProductID) ||
		errors.Is(err, service.ErrInvalidTableID) ||
		errors.Is(err, service.ErrInvalidPayMethod) ||
		errors.Is(err, service.ErrInvalidPayStatus) ||
		errors.Is(err, service.ErrInvalidStatus) ||
		errors.Is(err, service.ErrProductNotFound) ||
		errors.Is(err, service.ErrProductUnavailable)
}

// isDomainConflict checks for state-machine guard failures that should
// result in 409 Conflict.
func isDomainConflict(err error) bool {
	return errors.Is(err, service.ErrInvalidTransition) ||
		errors.Is(err, service.ErrStatusConflict) ||
		errors.Is(err, service.ErrCancelNotRequested) ||
		errors.Is(err, service.ErrAlreadyRefunded) ||
		errors.Is(err, service.ErrInvalidRefundState)
}

// writeOrderError maps service errors to HTTP responses. Infrastructure
// errors are logged and returned generically.
func writeOrderError(w http.ResponseWriter, err error, op string) {
	switch {
	case isValidationError(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case isDomainConflict(err):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func isKnownStatus(s string) bool {
	switch s {
	case enum.OrderStatusPending, enum.OrderStatusProcessing,
		enum.OrderStatusCompleted, enum.OrderStatusCancelled:
		return true
	}
	return false
}

// dbOrderToResponse converts a database.Order to an orderResponse.
func dbOrderToResponse(o database.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		StoreID:         o.StoreID,
		TransactionCode: o.TransactionCode,
		QueueNumber:     o.QueueNumber,
		CustomerName:    o.CustomerName,
		OrderType:       o.OrderType,
		TotalAmount:     numericToString(o.TotalAmount),
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		EstimatedTime:   o.EstimatedTime,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}

	if o.TableID.Valid {
		s := uuid.UUID(o.TableID.Bytes).String()
		resp.TableID = &s
	}
	if o.Note.Valid {
		resp.Note = &o.Note.String
	}
	if o.DeliveryAddress.Valid {
		resp.DeliveryAddress = &o.DeliveryAddress.String
	}
	if o.PaymentMethod.Valid {
		resp.PaymentMethod = &o.PaymentMethod.String
	}
	if o.TargetTime.Valid {
		resp.TargetTime = &o.TargetTime.Time
	}
	if o.CancellationStatus.Valid {
		resp.CancellationStatus = &o.CancellationStatus.String
	}
	if o.CancellationReason.Valid {
		resp.CancellationReason = &o.CancellationReason.String
	}
	if o.RefundStatus.Valid {
		resp.RefundStatus = &o.RefundStatus.String
	}

	return resp
}

func itemsToResponse(items []database.OrderItem) []orderItemResponse {
	resp := make([]orderItemResponse, len(items))
	for i, item := range items {
		resp[i] = orderItemResponse{
			ID:            item.ID,
			ProductID:     item.ProductID,
			Quantity:      item.Quantity,
			PriceSnapshot: numericToString(item.PriceSnapshot),
		}
	}
	return resp
}

func numericToString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0.00"
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return "0.00"
	}
	return d.StringFixed(2)
}
