package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/dapoer-pos/api/internal/database"
	"github.com/dapoer-pos/api/internal/enum"
)

const maxCreateRetries = 3

// defaultPrepMinutes is assumed for products without a prep time.
const defaultPrepMinutes = 5

// pickupTableQRCode is the virtual counter table assigned to takeaway and
// delivery orders that arrive without a table.
const pickupTableQRCode = "COUNTER-PICKUP"

// Errors returned by the order service.
var (
	ErrCustomerNameRequired = errors.New("customer_name is required")
	ErrEmptyItems           = errors.New("items are required")
	ErrInvalidOrderType     = errors.New("invalid order_type")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrInvalidProductID     = errors.New("invalid product_id")
	ErrInvalidTableID       = errors.New("invalid table_id")
	ErrInvalidPayMethod     = errors.New("invalid payment_method")
	ErrInvalidPayStatus     = errors.New("invalid payment_status")
	ErrProductNotFound      = errors.New("product not found in store")
	ErrProductUnavailable   = errors.New("product is not available")

	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStatusConflict    = errors.New("order changed concurrently, please retry")

	ErrCancelNotRequested = errors.New("order has no pending cancellation request")
	ErrAlreadyRefunded    = errors.New("order has already been refunded")
	ErrInvalidRefundState = errors.New("order is not eligible for a refund")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// CreateStore defines the DB methods needed inside the order creation
// transaction. Satisfied by *database.Queries (and its WithTx variant).
type CreateStore interface {
	NextQueueNumber(ctx context.Context, arg database.NextQueueNumberParams) (int32, error)
	GetProductsForOrder(ctx context.Context, arg database.GetProductsForOrderParams) ([]database.GetProductsForOrderRow, error)
	GetTableByQRCode(ctx context.Context, arg database.GetTableByQRCodeParams) (database.Table, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
}

// NewCreateStore creates a CreateStore from a DBTX (pool or tx).
type NewCreateStore func(db database.DBTX) CreateStore

// LifecycleStore defines the DB methods needed by status, cancellation,
// refund and queue-tracking operations. Satisfied by *database.Queries.
type LifecycleStore interface {
	GetOrder(ctx context.Context, arg database.GetOrderParams) (database.Order, error)
	GetOrderByCode(ctx context.Context, arg database.GetOrderByCodeParams) (database.Order, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	MaxPrepTimeForOrder(ctx context.Context, orderID uuid.UUID) (int32, error)
	ListPendingQueue(ctx context.Context, arg database.ListPendingQueueParams) ([]database.PendingQueueRow, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	SetPaymentStatus(ctx context.Context, arg database.SetPaymentStatusParams) (database.Order, error)
	CancelOrder(ctx context.Context, arg database.CancelOrderParams) (database.Order, error)
	RequestCancellation(ctx context.Context, arg database.RequestCancellationParams) (database.Order, error)
	DecideCancellation(ctx context.Context, arg database.DecideCancellationParams) (database.Order, error)
	MarkRefunded(ctx context.Context, arg database.MarkRefundedParams) (database.Order, error)
}

// OrderService owns the order lifecycle: creation with queue numbering,
// status transitions, the cancellation/refund workflow and the live queue
// estimation.
type OrderService struct {
	pool     TxBeginner
	newStore NewCreateStore
	store    LifecycleStore
	loc      *time.Location
	now      func() time.Time
}

// NewOrderService creates a new OrderService. loc is the store-local
// timezone used for day boundaries and clock formatting.
func NewOrderService(pool TxBeginner, newStore NewCreateStore, store LifecycleStore, loc *time.Location) *OrderService {
	return &OrderService{
		pool:     pool,
		newStore: newStore,
		store:    store,
		loc:      loc,
		now:      time.Now,
	}
}

// --- Sequence generator ---

const codeCharset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// newTransactionCode produces TRX-<YYYYMMDD>-<4 random base36 chars>.
// Collisions are possible and handled by the creation retry loop.
func newTransactionCode(now time.Time) string {
	suffix := make([]byte, 4)
	for i := range suffix {
		suffix[i] = codeCharset[rand.IntN(len(codeCharset))]
	}
	return fmt.Sprintf("TRX-%s-%s", now.Format("20060102"), suffix)
}

// isUniquenessConflict reports whether err is a unique constraint violation
// on the transaction code or the per-day queue number (pg error 23505).
func isUniquenessConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "orders_transaction_code_key", "orders_store_id_queue_date_queue_number_key":
			return true
		}
	}
	return false
}

// --- Create order ---

// CreateOrderRequest is the validated input for creating an order.
type CreateOrderRequest struct {
	StoreID         uuid.UUID
	CustomerName    string
	OrderType       string
	TableID         string
	Note            string
	DeliveryAddress string
	PaymentMethod   string
	PaymentStatus   string
	Items           []CreateOrderItemRequest
}

// CreateOrderItemRequest is a single item in the order.
type CreateOrderItemRequest struct {
	ProductID string
	Quantity  int32
}

// CreateOrderResult is the full created order with items.
type CreateOrderResult struct {
	Order database.Order
	Items []database.OrderItem
}

// CreateOrder validates, snapshots prices, classifies the queue lane and
// persists the order atomically. Retries up to maxCreateRetries times on
// transaction-code or queue-number unique violations, regenerating the code
// each attempt.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if req.CustomerName == "" {
		return nil, ErrCustomerNameRequired
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if !isValidOrderType(req.OrderType) {
		return nil, ErrInvalidOrderType
	}
	if req.PaymentMethod != "" && !isValidPaymentMethod(req.PaymentMethod) {
		return nil, ErrInvalidPayMethod
	}
	if req.PaymentStatus != "" && !isValidPaymentStatus(req.PaymentStatus) {
		return nil, ErrInvalidPayStatus
	}

	productIDs := make([]uuid.UUID, 0, len(req.Items))
	seen := make(map[uuid.UUID]bool, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
		pid, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrInvalidProductID)
		}
		if !seen[pid] {
			seen[pid] = true
			productIDs = append(productIDs, pid)
		}
	}

	tableID := pgtype.UUID{}
	if req.TableID != "" {
		tid, err := uuid.Parse(req.TableID)
		if err != nil {
			return nil, ErrInvalidTableID
		}
		tableID = pgtype.UUID{Bytes: tid, Valid: true}
	}

	var lastErr error
	for attempt := 0; attempt < maxCreateRetries; attempt++ {
		result, err := s.createOrderTx(ctx, req, productIDs, tableID)
		if err == nil {
			return result, nil
		}
		if isUniquenessConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// createOrderTx executes the full order creation in a single transaction:
// catalog lookup, total calculation, lane classification, queue numbering
// and the order + item inserts succeed or fail as a unit.
func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest, productIDs []uuid.UUID, tableID pgtype.UUID) (*CreateOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// --- Resolve catalog: price snapshots + prep times ---
	products, err := store.GetProductsForOrder(ctx, database.GetProductsForOrderParams{
		IDs:     productIDs,
		StoreID: req.StoreID,
	})
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	byID := make(map[uuid.UUID]database.GetProductsForOrderRow, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	total := decimal.Zero
	maxPrep := int32(0)
	fastLane := true
	itemParams := make([]database.CreateOrderItemParams, 0, len(req.Items))
	for i, item := range req.Items {
		pid := uuid.MustParse(item.ProductID)
		product, ok := byID[pid]
		if !ok {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrProductNotFound)
		}
		if !product.IsAvailable {
			return nil, fmt.Errorf("items[%d]: %w", i, ErrProductUnavailable)
		}

		price := numericToDecimal(product.Price)
		total = total.Add(price.Mul(decimal.NewFromInt32(item.Quantity)))

		if product.PrepTime > maxPrep {
			maxPrep = product.PrepTime
		}
		if product.PrepTime > defaultPrepMinutes {
			fastLane = false
		}

		itemParams = append(itemParams, database.CreateOrderItemParams{
			ProductID:     pid,
			Quantity:      item.Quantity,
			PriceSnapshot: decimalToNumeric(price),
		})
	}

	// --- Counter-pickup fallback for takeaway/delivery without a table ---
	if !tableID.Valid && (req.OrderType == enum.OrderTypeTakeaway || req.OrderType == enum.OrderTypeDelivery) {
		pickup, err := store.GetTableByQRCode(ctx, database.GetTableByQRCodeParams{
			QRCode:  pickupTableQRCode,
			StoreID: req.StoreID,
		})
		switch {
		case err == nil:
			tableID = pgtype.UUID{Bytes: pickup.ID, Valid: true}
		case errors.Is(err, pgx.ErrNoRows):
			// No counter table configured; the order simply has no table.
		default:
			return nil, fmt.Errorf("get pickup table: %w", err)
		}
	}

	now := s.now().In(s.loc)
	queueDate := pgtype.Date{Time: dayStart(now), Valid: true}

	queueNumber, err := store.NextQueueNumber(ctx, database.NextQueueNumberParams{
		StoreID:   req.StoreID,
		QueueDate: queueDate,
	})
	if err != nil {
		return nil, fmt.Errorf("next queue number: %w", err)
	}

	paymentStatus := req.PaymentStatus
	if paymentStatus == "" {
		paymentStatus = enum.PaymentStatusUnpaid
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		StoreID:         req.StoreID,
		TransactionCode: newTransactionCode(now),
		QueueNumber:     queueNumber,
		QueueDate:       queueDate,
		CustomerName:    req.CustomerName,
		OrderType:       req.OrderType,
		TableID:         tableID,
		Note:            textOrNull(req.Note),
		DeliveryAddress: textOrNull(req.DeliveryAddress),
		TotalAmount:     decimalToNumeric(total),
		PaymentMethod:   textOrNull(req.PaymentMethod),
		PaymentStatus:   paymentStatus,
		EstimatedTime:   estimateBucket(fastLane, maxPrep),
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	items := make([]database.OrderItem, 0, len(itemParams))
	for _, p := range itemParams {
		p.OrderID = order.ID
		item, err := store.CreateOrderItem(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &CreateOrderResult{Order: order, Items: items}, nil
}

// estimateBucket maps the lane classification to the customer-facing
// estimate shown at checkout. Fast lane means every item preps in at most 5
// minutes.
func estimateBucket(fastLane bool, maxPrep int32) string {
	switch {
	case fastLane:
		return enum.EstimateFast
	case maxPrep >= 20:
		return enum.EstimateSlow
	default:
		return enum.EstimateRegular
	}
}

// --- Status state machine ---

// allowedTransitions defines valid status transitions. COMPLETED and
// CANCELLED are terminal.
var allowedTransitions = map[string][]string{
	enum.OrderStatusPending:    {enum.OrderStatusProcessing, enum.OrderStatusCancelled},
	enum.OrderStatusProcessing: {enum.OrderStatusCompleted, enum.OrderStatusCancelled},
}

func transitionAllowed(current, next string) bool {
	for _, s := range allowedTransitions[current] {
		if s == next {
			return true
		}
	}
	return false
}

// UpdateStatusRequest carries a status transition and/or an explicit payment
// status. A request with only PaymentStatus marks the order paid (or unpaid)
// without touching the lifecycle state.
type UpdateStatusRequest struct {
	StoreID       uuid.UUID
	OrderID       uuid.UUID
	Status        string
	PaymentStatus string
}

// UpdateStatus validates and applies a status transition. First entry into
// PROCESSING computes the target completion time from the slowest item; a
// cancel without an explicit payment status marks the payment CANCELLED.
func (s *OrderService) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (database.Order, error) {
	if req.PaymentStatus != "" && !isValidPaymentStatus(req.PaymentStatus) {
		return database.Order{}, ErrInvalidPayStatus
	}

	// Payment-status-only update: no lifecycle transition involved.
	if req.Status == "" {
		if req.PaymentStatus == "" {
			return database.Order{}, ErrInvalidStatus
		}
		order, err := s.store.SetPaymentStatus(ctx, database.SetPaymentStatusParams{
			ID:            req.OrderID,
			StoreID:       req.StoreID,
			PaymentStatus: req.PaymentStatus,
		})
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return order, err
	}

	if !isValidOrderStatus(req.Status) {
		return database.Order{}, ErrInvalidStatus
	}

	current, err := s.store.GetOrder(ctx, database.GetOrderParams{ID: req.OrderID, StoreID: req.StoreID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}

	if !transitionAllowed(current.Status, req.Status) {
		return database.Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, req.Status)
	}

	targetTime := pgtype.Timestamptz{}
	if req.Status == enum.OrderStatusProcessing && !current.TargetTime.Valid {
		maxPrep, err := s.store.MaxPrepTimeForOrder(ctx, current.ID)
		if err != nil {
			return database.Order{}, fmt.Errorf("max prep time: %w", err)
		}
		targetTime = pgtype.Timestamptz{
			Time:  s.now().In(s.loc).Add(time.Duration(processingMinutes(maxPrep)) * time.Minute),
			Valid: true,
		}
	}

	paymentStatus := textOrNull(req.PaymentStatus)
	if req.Status == enum.OrderStatusCancelled && req.PaymentStatus == "" {
		paymentStatus = textOrNull(enum.PaymentStatusCancelled)
	}

	updated, err := s.store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:            req.OrderID,
		StoreID:       req.StoreID,
		Status:        req.Status,
		FromStatus:    current.Status,
		TargetTime:    targetTime,
		PaymentStatus: paymentStatus,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Status changed between our read and the conditional update.
			return database.Order{}, ErrStatusConflict
		}
		return database.Order{}, fmt.Errorf("update order status: %w", err)
	}
	return updated, nil
}

// processingMinutes converts the slowest item's prep time into the promised
// completion window: fast orders get a flat 5 minutes, everything else gets
// a 5 minute buffer on top of the prep time.
func processingMinutes(maxPrep int32) int32 {
	if maxPrep <= defaultPrepMinutes {
		return defaultPrepMinutes
	}
	return maxPrep + 5
}

// --- Cancellation & refund workflow ---

// cashierOverridePrefix marks force-cancel reasons entered on the reject
// endpoint so the customer can see the cancellation came from the counter.
const cashierOverridePrefix = "Dibatalkan kasir: "

// RequestCancel handles a customer's cancellation request, looked up by
// transaction code. PENDING orders are cancelled on the spot; PROCESSING
// orders are only flagged for cashier review; terminal orders reject the
// request.
func (s *OrderService) RequestCancel(ctx context.Context, storeID uuid.UUID, code, reason string) (database.Order, error) {
	current, err := s.store.GetOrderByCode(ctx, database.GetOrderByCodeParams{
		TransactionCode: code,
		StoreID:         storeID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order by code: %w", err)
	}

	switch current.Status {
	case enum.OrderStatusPending:
		paymentStatus, refundStatus := cancellationEffects(current.PaymentStatus)
		cancelled, err := s.store.CancelOrder(ctx, database.CancelOrderParams{
			ID:                 current.ID,
			StoreID:            storeID,
			FromStatus:         enum.OrderStatusPending,
			CancellationStatus: enum.CancellationAutoCancelled,
			CancellationReason: textOrNull(reason),
			PaymentStatus:      paymentStatus,
			RefundStatus:       refundStatus,
		})
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrStatusConflict
		}
		return cancelled, err

	case enum.OrderStatusProcessing:
		requested, err := s.store.RequestCancellation(ctx, database.RequestCancellationParams{
			ID:                 current.ID,
			StoreID:            storeID,
			CancellationReason: textOrNull(reason),
		})
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrStatusConflict
		}
		return requested, err

	default:
		return database.Order{}, fmt.Errorf("%w: cannot cancel a %s order", ErrInvalidTransition, current.Status)
	}
}

// ApproveCancel grants a REQUESTED cancellation: the order is cancelled and,
// if paid, queued for a refund.
func (s *OrderService) ApproveCancel(ctx context.Context, storeID, orderID uuid.UUID) (database.Order, error) {
	current, err := s.getForDecision(ctx, storeID, orderID)
	if err != nil {
		return database.Order{}, err
	}

	paymentStatus, refundStatus := cancellationEffects(current.PaymentStatus)
	approved, err := s.store.DecideCancellation(ctx, database.DecideCancellationParams{
		ID:                 orderID,
		StoreID:            storeID,
		CancellationStatus: enum.CancellationApproved,
		Cancel:             true,
		PaymentStatus:      paymentStatus,
		RefundStatus:       refundStatus,
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return database.Order{}, ErrCancelNotRequested
	}
	return approved, err
}

// RejectCancel denies a REQUESTED cancellation and the order resumes normal
// processing. A non-empty reason flips the call into a cashier force-cancel:
// the order is cancelled anyway with the reason marked as a counter override.
func (s *OrderService) RejectCancel(ctx context.Context, storeID, orderID uuid.UUID, reason string) (database.Order, error) {
	current, err := s.getForDecision(ctx, storeID, orderID)
	if err != nil {
		return database.Order{}, err
	}

	params := database.DecideCancellationParams{
		ID:                 orderID,
		StoreID:            storeID,
		CancellationStatus: enum.CancellationRejected,
	}
	if reason != "" {
		params.CancellationStatus = enum.CancellationRejectedByAdmin
		params.CancellationReason = textOrNull(cashierOverridePrefix + reason)
		params.Cancel = true
		params.PaymentStatus, params.RefundStatus = cancellationEffects(current.PaymentStatus)
	}

	decided, err := s.store.DecideCancellation(ctx, params)
	if errors.Is(err, pgx.ErrNoRows) {
		return database.Order{}, ErrCancelNotRequested
	}
	return decided, err
}

func (s *OrderService) getForDecision(ctx context.Context, storeID, orderID uuid.UUID) (database.Order, error) {
	current, err := s.store.GetOrder(ctx, database.GetOrderParams{ID: orderID, StoreID: storeID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}
	if !current.CancellationStatus.Valid || current.CancellationStatus.String != enum.CancellationRequested {
		return database.Order{}, ErrCancelNotRequested
	}
	return current, nil
}

// cancellationEffects derives the payment/refund bookkeeping for an order
// entering CANCELLED: paid orders keep their payment and get a pending
// refund, unpaid orders get their payment marked CANCELLED.
func cancellationEffects(paymentStatus string) (pgtype.Text, pgtype.Text) {
	if paymentStatus == enum.PaymentStatusPaid {
		return pgtype.Text{}, textOrNull(enum.RefundPending)
	}
	return textOrNull(enum.PaymentStatusCancelled), pgtype.Text{}
}

// RefundResult reports a confirmed refund.
type RefundResult struct {
	Order  database.Order
	Amount decimal.Decimal
}

// VerifyRefund confirms the refund of a paid, cancelled order. The amount is
// the order's frozen total. Idempotence is explicit: a second verification
// fails with ErrAlreadyRefunded.
func (s *OrderService) VerifyRefund(ctx context.Context, storeID uuid.UUID, code string) (*RefundResult, error) {
	current, err := s.store.GetOrderByCode(ctx, database.GetOrderByCodeParams{
		TransactionCode: code,
		StoreID:         storeID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by code: %w", err)
	}

	if current.RefundStatus.Valid && current.RefundStatus.String == enum.RefundRefunded {
		return nil, ErrAlreadyRefunded
	}
	// A cancelled paid order is refundable even when no refund was queued at
	// cancellation time (a staff cancel can mark the payment PAID explicitly,
	// which leaves refund_status unset).
	if current.Status != enum.OrderStatusCancelled ||
		current.PaymentStatus != enum.PaymentStatusPaid {
		return nil, ErrInvalidRefundState
	}

	refunded, err := s.store.MarkRefunded(ctx, database.MarkRefundedParams{
		ID:      current.ID,
		StoreID: storeID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost a race with a concurrent verification.
			return nil, ErrAlreadyRefunded
		}
		return nil, fmt.Errorf("mark refunded: %w", err)
	}

	return &RefundResult{
		Order:  refunded,
		Amount: numericToDecimal(refunded.TotalAmount),
	}, nil
}

// --- Live queue estimation ---

// TrackResult is an order with its derived queue view. Position and
// predicted time are recomputed on every call and never stored; they shift
// as other orders are created or leave PENDING.
type TrackResult struct {
	Order                database.Order
	Items                []database.OrderItem
	QueuePosition        int
	OrdersAhead          int
	PredictedServiceTime string
}

// Track looks up an order by transaction code and derives its live queue
// position and predicted service time. Only same-day PENDING orders created
// earlier count as ahead; orders already PROCESSING do not block the queue.
func (s *OrderService) Track(ctx context.Context, storeID uuid.UUID, code string) (*TrackResult, error) {
	order, err := s.store.GetOrderByCode(ctx, database.GetOrderByCodeParams{
		TransactionCode: code,
		StoreID:         storeID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by code: %w", err)
	}

	items, err := s.store.ListOrderItems(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	now := s.now().In(s.loc)
	queue, err := s.store.ListPendingQueue(ctx, database.ListPendingQueueParams{
		StoreID:  storeID,
		DayStart: dayStart(now),
	})
	if err != nil {
		return nil, fmt.Errorf("list pending queue: %w", err)
	}

	ordersAhead := 0
	waitMinutes := int32(0)
	ownPrep := int32(0)
	for _, entry := range queue {
		if entry.ID == order.ID {
			ownPrep = entry.MaxPrepTime
			continue
		}
		if entry.CreatedAt.Before(order.CreatedAt) {
			ordersAhead++
			waitMinutes += entry.MaxPrepTime
		}
	}
	if ownPrep == 0 {
		// Order is not in today's pending queue (already picked up by the
		// kitchen, or from a previous day); its own duration still counts.
		ownPrep, err = s.store.MaxPrepTimeForOrder(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("max prep time: %w", err)
		}
	}

	predicted := now.Add(time.Duration(waitMinutes+ownPrep) * time.Minute)

	return &TrackResult{
		Order:                order,
		Items:                items,
		QueuePosition:        ordersAhead + 1,
		OrdersAhead:          ordersAhead,
		PredictedServiceTime: predicted.Format("15:04"),
	}, nil
}

// --- Helpers ---

// dayStart returns midnight of t's day in t's location.
func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func isValidOrderType(s string) bool {
	switch s {
	case enum.OrderTypeDineIn, enum.OrderTypeTakeaway, enum.OrderTypeDelivery:
		return true
	}
	return false
}

func isValidOrderStatus(s string) bool {
	switch s {
	case enum.OrderStatusPending, enum.OrderStatusProcessing,
		enum.OrderStatusCompleted, enum.OrderStatusCancelled:
		return true
	}
	return false
}

func isValidPaymentStatus(s string) bool {
	switch s {
	case enum.PaymentStatusUnpaid, enum.PaymentStatusPaid, enum.PaymentStatusCancelled:
		return true
	}
	return false
}

func isValidPaymentMethod(s string) bool {
	switch s {
	case enum.PaymentMethodCash, enum.PaymentMethodQRIS, enum.PaymentMethodTransfer:
		return true
	}
	return false
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
