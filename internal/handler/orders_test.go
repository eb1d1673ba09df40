package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/dapoer-pos/api/internal/database"
	"github.com/dapoer-pos/api/internal/handler"
	"github.com/dapoer-pos/api/internal/service"
)

// --- Mock OrderServicer ---

type mockOrderService struct {
	createFn        func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
	updateStatusFn  func(ctx context.Context, req service.UpdateStatusRequest) (database.Order, error)
	requestCancelFn func(ctx context.Context, storeID uuid.UUID, code, reason string) (database.Order, error)
	approveCancelFn func(ctx context.Context, storeID, orderID uuid.UUID) (database.Order, error)
	rejectCancelFn  func(ctx context.Context, storeID, orderID uuid.UUID, reason string) (database.Order, error)
	verifyRefundFn  func(ctx context.Context, storeID uuid.UUID, code string) (*service.RefundResult, error)
	trackFn         func(ctx context.Context, storeID uuid.UUID, code string) (*service.TrackResult, error)
}

func (m *mockOrderService) CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
	return m.createFn(ctx, req)
}
func (m *mockOrderService) UpdateStatus(ctx context.Context, req service.UpdateStatusRequest) (database.Order, error) {
	return m.updateStatusFn(ctx, req)
}
func (m *mockOrderService) RequestCancel(ctx context.Context, storeID uuid.UUID, code, reason string) (database.Order, error) {
	return m.requestCancelFn(ctx, storeID, code, reason)
}
func (m *mockOrderService) ApproveCancel(ctx context.Context, storeID, orderID uuid.UUID) (database.Order, error) {
	return m.approveCancelFn(ctx, storeID, orderID)
}
func (m *mockOrderService) RejectCancel(ctx context.Context, storeID, orderID uuid.UUID, reason string) (database.Order, error) {
	return m.rejectCancelFn(ctx, storeID, orderID, reason)
}
func (m *mockOrderService) VerifyRefund(ctx context.Context, storeID uuid.UUID, code string) (*service.RefundResult, error) {
	return m.verifyRefundFn(ctx, storeID, code)
}
func (m *mockOrderService) Track(ctx context.Context, storeID uuid.UUID, code string) (*service.TrackResult, error) {
	return m.trackFn(ctx, storeID, code)
}

// --- Mock OrderStore ---

type mockOrderStore struct {
	getOrderFn       func(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	listOrdersFn     func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	listOrderItemsFn func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

func (m *mockOrderStore) GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error) {
	if m.getOrderFn != nil {
		return m.getOrderFn(ctx, arg)
	}
	return database.Order{}, pgx.ErrNoRows
}
func (m *mockOrderStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	if m.listOrdersFn != nil {
		return m.listOrdersFn(ctx, arg)
	}
	return []database.Order{}, nil
}
func (m *mockOrderStore) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	if m.listOrderItemsFn != nil {
		return m.listOrderItemsFn(ctx, orderID)
	}
	return []database.OrderItem{}, nil
}

// --- Mock notifier ---

type publishedEvent struct {
	storeID   uuid.UUID
	eventType string
}

type mockNotifier struct {
	events []publishedEvent
}

func (m *mockNotifier) Publish(storeID uuid.UUID, eventType string, payload any) {
	m.events = append(m.events, publishedEvent{storeID: storeID, eventType: eventType})
}

// --- Helpers ---

func newOrderRouter(svc *mockOrderService, store *mockOrderStore, notifier *mockNotifier) chi.Router {
	h := handler.NewOrderHandler(svc, store, notifier)
	r := chi.NewRouter()
	r.Route("/stores/{sid}/orders", h.RegisterPublicRoutes)
	r.Route("/staff/stores/{sid}/orders", h.RegisterStaffRoutes)
	return r
}

func sampleOrder(storeID uuid.UUID) database.Order {
	return database.Order{
		ID:              uuid.New(),
		StoreID:         storeID,
		TransactionCode: "TRX-20260301-AB12",
		QueueNumber:     7,
		CustomerName:    "Budi",
		OrderType:       "DINE_IN",
		Status:          "PENDING",
		PaymentStatus:   "UNPAID",
		EstimatedTime:   "15-20 Menit",
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

// --- Tests ---

func TestCreateOrderHandler_Success(t *testing.T) {
	storeID := uuid.New()
	order := sampleOrder(storeID)
	notifier := &mockNotifier{}

	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
			if req.StoreID != storeID {
				t.Errorf("expected store %s, got: %s", storeID, req.StoreID)
			}
			if req.CustomerName != "Budi" {
				t.Errorf("expected customer Budi, got: %s", req.CustomerName)
			}
			return &service.CreateOrderResult{Order: order}, nil
		},
	}
	r := newOrderRouter(svc, &mockOrderStore{}, notifier)

	rec := doJSON(t, r, http.MethodPost, "/stores/"+storeID.String()+"/orders", map[string]any{
		"customer_name": "Budi",
		"order_type":    "DINE_IN",
		"items": []map[string]any{
			{"product_id": uuid.New().String(), "quantity": 2},
		},
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["transaction_code"] != order.TransactionCode {
		t.Errorf("expected code %s, got: %v", order.TransactionCode, resp["transaction_code"])
	}

	if len(notifier.events) != 1 || notifier.events[0].eventType != "new_order" {
		t.Errorf("expected a new_order event, got: %+v", notifier.events)
	}
}

func TestCreateOrderHandler_MissingCustomerName(t *testing.T) {
	storeID := uuid.New()
	r := newOrderRouter(&mockOrderService{}, &mockOrderStore{}, &mockNotifier{})

	rec := doJSON(t, r, http.MethodPost, "/stores/"+storeID.String()+"/orders", map[string]any{
		"order_type": "DINE_IN",
		"items": []map[string]any{
			{"product_id": uuid.New().String(), "quantity": 1},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateOrderHandler_InvalidStoreID(t *testing.T) {
	r := newOrderRouter(&mockOrderService{}, &mockOrderStore{}, &mockNotifier{})

	rec := doJSON(t, r, http.MethodPost, "/stores/not-a-uuid/orders", map[string]any{
		"customer_name": "Budi",
		"items": []map[string]any{
			{"product_id": uuid.New().String(), "quantity": 1},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateOrderHandler_ServiceValidationMapsTo400(t *testing.T) {
	storeID := uuid.New()
	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
			return nil, service.ErrProductNotFound
		},
	}
	r := newOrderRouter(svc, &mockOrderStore{}, &mockNotifier{})

	rec := doJSON(t, r, http.MethodPost, "/stores/"+storeID.String()+"/orders", map[string]any{
		"customer_name": "Budi",
		"order_type":    "DINE_IN",
		"items": []map[string]any{
			{"product_id": uuid.New().String(), "quantity": 1},
		},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTrackHandler_Success(t *testing.T) {
	storeID := uuid.New()
	order := sampleOrder(storeID)

	svc := &mockOrderService{
		trackFn: func(ctx context.Context, sid uuid.UUID, code string) (*service.TrackResult, error) {
			if code != order.TransactionCode {
				t.Errorf("expected code %s, got: %s", order.TransactionCode, code)
			}
			return &service.TrackResult{
				Order:                order,
				QueuePosition:        3,
				OrdersAhead:          2,
				PredictedServiceTime: "10:45",
			}, nil
		},
	}
	r := newOrderRouter(svc, &mockOrderStore{}, &mockNotifier{})

	rec := doJSON(t, r, http.MethodGet, "/stores/"+storeID.String()+"/orders/code/"+order.TransactionCode, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		QueuePosition        int    `json:"queue_position"`
		OrdersAhead          int    `json:"orders_ahead"`
		PredictedServiceTime string `json:"predicted_service_time"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.QueuePosition != 3 || resp.OrdersAhead != 2 || resp.PredictedServiceTime != "10:45" {
		t.Errorf("unexpected queue view: %+v", resp)
	}
}

func TestTrackHandler_NotFound(t *testing.T) {
	storeID := uuid.New()
	svc := &mockOrderService{
		trackFn: func(ctx context.Context, sid uuid.UUID, code string) (*service.TrackResult, error) {
			return nil, service.ErrOrderNotFound
		},
	}
	r := newOrderRouter(svc, &mockOrderStore{}, &mockNotifier{})

	rec := doJSON(t, r, http.MethodGet, "/stores/"+storeID.String()+"/orders/code/TRX-20260301-ZZZZ", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListOrdersHandler_StatusFilter(t *testing.T) {
	storeID := uuid.New()
	store := &mockOrderStore{
		listOrdersFn: func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
			if len(arg.Statuses) != 2 || arg.Statuses[0] != "PENDING" || arg.Statuses[1] != "PROCESSING" {
				t.Errorf("unexpected statuses: %v", arg.Statuses)
			}
			return []database.Order{sampleOrder(storeID)}, nil
		},
	}
	r := newOrderRouter(&mockOrderService{}, store, &mockNotifier{})

	rec := doJSON(t, r, http.MethodGet, "/staff/stores/"+storeID.String()+"/orders?status=pending,processing", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Orders []json.RawMessage `json:"orders"`
		Limit  int               `json:"limit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Orders) != 1 {
		t.Errorf("expected 1 order, got: %d", len(resp.Orders))
	}
	if resp.Limit != 20 {
		t.Errorf("expected default limit 20, got: %d", resp.Limit)
	}
}

func TestListOrdersHandler_InvalidStatusFilter(t *testing.T) {
	storeID := uuid.New()
	r := newOrderRouter(&mockOrderService{}, &mockOrderStore{}, &mockNotifier{})

	rec := doJSON(t, r, http.MethodGet, "/staff/stores/"+storeID.String()+"/orders?status=SHIPPED", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpdateStatusHandler_Success(t *testing.T) {
	storeID := uuid.New()
	order := sampleOrder(storeID)
	notifier := &mockNotifier{}

	svc := &mockOrderService{
		updateStatusFn: func(ctx context.Context, req service.UpdateStatusRequest) (database.Order, error) {
			if req.Status != "PROCESSING" {
				t.Errorf("expected PROCESSING (uppercased), got: %s", req.Status)
			}
			updated := order
			updated.Status = req.Status
			return updated, nil
		},
	}
	r := newOrderRouter(svc, &mockOrderStore{}, notifier)

	rec := doJSON(t, r, http.MethodPatch,
		"/staff/stores/"+storeID.String()+"/orders/"+order.ID.String()+"/status",
		map[string]string{"status": "processing"},
	)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(notifier.events) != 1 || notifier.events[0].eventType != "order_status_updated" {
		t.Errorf("expected an order_status_updated event, got: %+v", notifier.events)
	}
}

func TestUpdateStatusHandler_EmptyBody(t *testing.T) {
	storeID := uuid.New()
	r := newOrderRouter(&mockOrderService{}, &mockOrderStore{}, &mockNotifier{})

	rec := doJSON(t, r, http.MethodPatch,
		"/staff/stores/"+storeID.String()+"/orders/"+uuid.New().String()+"/status",
		map[string]string{},
	)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpdateStatusHandler_ConflictMapsTo409(t *testing.T) {
	storeID := uuid.New()
	svc := &mockOrderService{
		updateStatusFn: func(ctx context.Context, req service.UpdateStatusRequest) (database.Order, error) {
			return database.Order{}, service.ErrInvalidTransition
		},
	}
	r := newOrderRouter(svc, &mockOrderStore{}, &mockNotifier{})

	rec := doJSON(t, r, http.MethodPatch,
		"/staff/stores/"+storeID.String()+"/orders/"+uuid.New().String()+"/status",
		map[string]string{"status": "COMPLETED"},
	)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestRequestCancelHandler_Success(t *testing.T) {
	storeID := uuid.New()
	order := sampleOrder(storeID)
	order.Status = "CANCELLED"

	svc := &mockOrderService{
		requestCancelFn: func(ctx context.Context, sid uuid.UUID, code, reason string) (database.Order, error) {
			if reason != "changed my mind" {
				t.Errorf("unexpected reason: %q", reason)
			}
			return order, nil
		},
	}
	r := newOrderRouter(svc, &mockOrderStore{}, &mockNotifier{})

	rec := doJSON(t, r, http.MethodPost,
		"/stores/"+storeID.String()+"/orders/code/"+order.TransactionCode+"/cancel",
		map[string]string{"reason": "changed my mind"},
	)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestApproveCancelHandler_NotRequestedMapsTo409(t *testing.T) {
	storeID := uuid.New()
	svc := &mockOrderService{
		approveCancelFn: func(ctx context.Context, sid, orderID uuid.UUID) (database.Order, error) {
			return database.Order{}, service.ErrCancelNotRequested
		},
	}
	r := newOrderRouter(svc, &mockOrderStore{}, &mockNotifier{})

	rec := doJSON(t, r, http.MethodPost,
		"/staff/stores/"+storeID.String()+"/orders/"+uuid.New().String()+"/cancel/approve", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestVerifyRefundHandler_Success(t *testing.T) {
	storeID := uuid.New()
	order := sampleOrder(storeID)
	order.Status = "CANCELLED"
	order.PaymentStatus = "PAID"

	svc := &mockOrderService{
		verifyRefundFn: func(ctx context.Context, sid uuid.UUID, code string) (*service.RefundResult, error) {
			return &service.RefundResult{Order: order, Amount: decimal.RequireFromString("74000")}, nil
		},
	}
	r := newOrderRouter(svc, &mockOrderStore{}, &mockNotifier{})

	rec := doJSON(t, r, http.MethodPost,
		"/staff/stores/"+storeID.String()+"/orders/code/"+order.TransactionCode+"/refund/verify", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		RefundedAmount string `json:"refunded_amount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RefundedAmount != "74000.00" {
		t.Errorf("expected 74000.00, got: %s", resp.RefundedAmount)
	}
}

func TestVerifyRefundHandler_AlreadyRefundedMapsTo409(t *testing.T) {
	storeID := uuid.New()
	svc := &mockOrderService{
		verifyRefundFn: func(ctx context.Context, sid uuid.UUID, code string) (*service.RefundResult, error) {
			return nil, service.ErrAlreadyRefunded
		},
	}
	r := newOrderRouter(svc, &mockOrderStore{}, &mockNotifier{})

	rec := doJSON(t, r, http.MethodPost,
		"/staff/stores/"+storeID.String()+"/orders/code/TRX-20260301-AB12/refund/verify", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestGetOrderHandler_NotFound(t *testing.T) {
	storeID := uuid.New()
	r := newOrderRouter(&mockOrderService{}, &mockOrderStore{}, &mockNotifier{})

	rec := doJSON(t, r, http.MethodGet,
		"/staff/stores/"+storeID.String()+"/orders/"+uuid.New().String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
