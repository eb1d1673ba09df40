package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, store_id, transaction_code, queue_number, queue_date, customer_name,
	order_type, table_id, note, delivery_address, total_amount, status, payment_method,
	payment_status, estimated_time, target_time, cancellation_status, cancellation_reason,
	refund_status, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.StoreID, &o.TransactionCode, &o.QueueNumber, &o.QueueDate, &o.CustomerName,
		&o.OrderType, &o.TableID, &o.Note, &o.DeliveryAddress, &o.TotalAmount, &o.Status,
		&o.PaymentMethod, &o.PaymentStatus, &o.EstimatedTime, &o.TargetTime,
		&o.CancellationStatus, &o.CancellationReason, &o.RefundStatus, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

// NextQueueNumberParams identifies the per-day counter to increment.
type NextQueueNumberParams struct {
	StoreID   uuid.UUID
	QueueDate pgtype.Date
}

// NextQueueNumber atomically increments and returns the store's queue counter
// for the given calendar day. The upsert makes concurrent creations serialize
// on the counter row instead of racing a count-then-insert.
func (q *Queries) NextQueueNumber(ctx context.Context, arg NextQueueNumberParams) (int32, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO queue_counters (store_id, queue_date, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (store_id, queue_date)
		DO UPDATE SET last_value = queue_counters.last_value + 1
		RETURNING last_value`,
		arg.StoreID, arg.QueueDate,
	)
	var n int32
	err := row.Scan(&n)
	return n, err
}

type CreateOrderParams struct {
	StoreID         uuid.UUID
	TransactionCode string
	QueueNumber     int32
	QueueDate       pgtype.Date
	CustomerName    string
	OrderType       string
	TableID         pgtype.UUID
	Note            pgtype.Text
	DeliveryAddress pgtype.Text
	TotalAmount     pgtype.Numeric
	PaymentMethod   pgtype.Text
	PaymentStatus   string
	EstimatedTime   string
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO orders (
			store_id, transaction_code, queue_number, queue_date, customer_name, order_type,
			table_id, note, delivery_address, total_amount, payment_method, payment_status,
			estimated_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+orderColumns,
		arg.StoreID, arg.TransactionCode, arg.QueueNumber, arg.QueueDate, arg.CustomerName,
		arg.OrderType, arg.TableID, arg.Note, arg.DeliveryAddress, arg.TotalAmount,
		arg.PaymentMethod, arg.PaymentStatus, arg.EstimatedTime,
	)
	return scanOrder(row)
}

type CreateOrderItemParams struct {
	OrderID       uuid.UUID
	ProductID     uuid.UUID
	Quantity      int32
	PriceSnapshot pgtype.Numeric
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO order_items (order_id, product_id, quantity, price_snapshot)
		VALUES ($1, $2, $3, $4)
		RETURNING id, order_id, product_id, quantity, price_snapshot, created_at`,
		arg.OrderID, arg.ProductID, arg.Quantity, arg.PriceSnapshot,
	)
	var i OrderItem
	err := row.Scan(&i.ID, &i.OrderID, &i.ProductID, &i.Quantity, &i.PriceSnapshot, &i.CreatedAt)
	return i, err
}

type GetOrderParams struct {
	ID      uuid.UUID
	StoreID uuid.UUID
}

func (q *Queries) GetOrder(ctx context.Context, arg GetOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND store_id = $2`,
		arg.ID, arg.StoreID,
	)
	return scanOrder(row)
}

type GetOrderByCodeParams struct {
	TransactionCode string
	StoreID         uuid.UUID
}

func (q *Queries) GetOrderByCode(ctx context.Context, arg GetOrderByCodeParams) (Order, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE transaction_code = $1 AND store_id = $2`,
		arg.TransactionCode, arg.StoreID,
	)
	return scanOrder(row)
}

type ListOrdersParams struct {
	StoreID  uuid.UUID
	Statuses []string
	Limit    int32
	Offset   int32
}

// ListOrders returns the store's orders newest first, optionally filtered to a
// set of statuses.
func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE store_id = $1
		  AND ($2::text[] IS NULL OR cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`,
		arg.StoreID, arg.Statuses, arg.Limit, arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (q *Queries) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, order_id, product_id, quantity, price_snapshot, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at`,
		orderID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var i OrderItem
		if err := rows.Scan(&i.ID, &i.OrderID, &i.ProductID, &i.Quantity, &i.PriceSnapshot, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// MaxPrepTimeForOrder returns the slowest preparation time (minutes) over the
// order's items. Items within one order are prepared in parallel, so the max
// is the order's duration. Unknown products default to 5 minutes.
func (q *Queries) MaxPrepTimeForOrder(ctx context.Context, orderID uuid.UUID) (int32, error) {
	row := q.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(COALESCE(p.prep_time, 5)), 5)::int
		FROM order_items oi
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE oi.order_id = $1`,
		orderID,
	)
	var n int32
	err := row.Scan(&n)
	return n, err
}

type ListPendingQueueParams struct {
	StoreID  uuid.UUID
	DayStart time.Time
}

// PendingQueueRow is one PENDING order in today's queue with its duration.
type PendingQueueRow struct {
	ID          uuid.UUID
	CreatedAt   time.Time
	MaxPrepTime int32
}

// ListPendingQueue returns today's PENDING orders oldest first, each with the
// max prep time over its items. This is the input for the live queue
// position/ETA computation; it is a plain snapshot read with no locking.
func (q *Queries) ListPendingQueue(ctx context.Context, arg ListPendingQueueParams) ([]PendingQueueRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT o.id, o.created_at, COALESCE(MAX(COALESCE(p.prep_time, 5)), 5)::int
		FROM orders o
		JOIN order_items oi ON oi.order_id = o.id
		LEFT JOIN products p ON p.id = oi.product_id
		WHERE o.store_id = $1 AND o.status = 'PENDING' AND o.created_at >= $2
		GROUP BY o.id, o.created_at
		ORDER BY o.created_at`,
		arg.StoreID, arg.DayStart,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var queue []PendingQueueRow
	for rows.Next() {
		var r PendingQueueRow
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.MaxPrepTime); err != nil {
			return nil, err
		}
		queue = append(queue, r)
	}
	return queue, rows.Err()
}

type UpdateOrderStatusParams struct {
	ID         uuid.UUID
	StoreID    uuid.UUID
	Status     string
	FromStatus string
	// TargetTime is only written if the order has no target time yet.
	TargetTime pgtype.Timestamptz
	// PaymentStatus, when valid, overrides the stored payment status.
	PaymentStatus pgtype.Text
}

// UpdateOrderStatus applies a status transition as a compare-and-swap against
// the status the caller read. Returns pgx.ErrNoRows when the order changed
// underneath the caller. target_time is COALESCEd so it is set at most once.
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders
		SET status = $3,
		    target_time = COALESCE(target_time, $4),
		    payment_status = COALESCE($5, payment_status),
		    updated_at = now()
		WHERE id = $1 AND store_id = $2 AND status = $6
		RETURNING `+orderColumns,
		arg.ID, arg.StoreID, arg.Status, arg.TargetTime, arg.PaymentStatus, arg.FromStatus,
	)
	return scanOrder(row)
}

type SetPaymentStatusParams struct {
	ID            uuid.UUID
	StoreID       uuid.UUID
	PaymentStatus string
}

func (q *Queries) SetPaymentStatus(ctx context.Context, arg SetPaymentStatusParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders
		SET payment_status = $3, updated_at = now()
		WHERE id = $1 AND store_id = $2
		RETURNING `+orderColumns,
		arg.ID, arg.StoreID, arg.PaymentStatus,
	)
	return scanOrder(row)
}

type CancelOrderParams struct {
	ID                 uuid.UUID
	StoreID            uuid.UUID
	FromStatus         string
	CancellationStatus string
	CancellationReason pgtype.Text
	// PaymentStatus, when valid, overrides the stored payment status
	// (unpaid orders get their payment marked CANCELLED).
	PaymentStatus pgtype.Text
	// RefundStatus is set to PENDING for paid orders, left invalid otherwise.
	RefundStatus pgtype.Text
}

// CancelOrder moves an order to CANCELLED with its cancellation bookkeeping,
// keyed on the status the caller read so concurrent transitions cannot
// double-apply refund eligibility.
func (q *Queries) CancelOrder(ctx context.Context, arg CancelOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders
		SET status = 'CANCELLED',
		    cancellation_status = $3,
		    cancellation_reason = COALESCE($4, cancellation_reason),
		    payment_status = COALESCE($5, payment_status),
		    refund_status = COALESCE($6, refund_status),
		    updated_at = now()
		WHERE id = $1 AND store_id = $2 AND status = $7
		RETURNING `+orderColumns,
		arg.ID, arg.StoreID, arg.CancellationStatus, arg.CancellationReason,
		arg.PaymentStatus, arg.RefundStatus, arg.FromStatus,
	)
	return scanOrder(row)
}

type RequestCancellationParams struct {
	ID                 uuid.UUID
	StoreID            uuid.UUID
	CancellationReason pgtype.Text
}

// RequestCancellation flags a PROCESSING order for cashier review. The order's
// primary status is untouched until the cashier decides.
func (q *Queries) RequestCancellation(ctx context.Context, arg RequestCancellationParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders
		SET cancellation_status = 'REQUESTED',
		    cancellation_reason = $3,
		    updated_at = now()
		WHERE id = $1 AND store_id = $2 AND status = 'PROCESSING'
		RETURNING `+orderColumns,
		arg.ID, arg.StoreID, arg.CancellationReason,
	)
	return scanOrder(row)
}

type DecideCancellationParams struct {
	ID                 uuid.UUID
	StoreID            uuid.UUID
	CancellationStatus string
	CancellationReason pgtype.Text
	Cancel             bool
	PaymentStatus      pgtype.Text
	RefundStatus       pgtype.Text
}

// DecideCancellation resolves a REQUESTED cancellation. When Cancel is true
// the order moves to CANCELLED (approve / force-cancel); otherwise only the
// cancellation status changes and the order resumes processing.
func (q *Queries) DecideCancellation(ctx context.Context, arg DecideCancellationParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders
		SET status = CASE WHEN $5 THEN 'CANCELLED' ELSE status END,
		    cancellation_status = $3,
		    cancellation_reason = COALESCE($4, cancellation_reason),
		    payment_status = COALESCE($6, payment_status),
		    refund_status = COALESCE($7, refund_status),
		    updated_at = now()
		WHERE id = $1 AND store_id = $2
		  AND cancellation_status = 'REQUESTED' AND status = 'PROCESSING'
		RETURNING `+orderColumns,
		arg.ID, arg.StoreID, arg.CancellationStatus, arg.CancellationReason,
		arg.Cancel, arg.PaymentStatus, arg.RefundStatus,
	)
	return scanOrder(row)
}

type MarkRefundedParams struct {
	ID      uuid.UUID
	StoreID uuid.UUID
}

// MarkRefunded confirms the refund of a paid, cancelled order. The WHERE
// clause re-checks the full precondition so a concurrent verification cannot
// refund twice. A NULL refund_status is eligible; only an already confirmed
// refund is excluded.
func (q *Queries) MarkRefunded(ctx context.Context, arg MarkRefundedParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders
		SET refund_status = 'REFUNDED', updated_at = now()
		WHERE id = $1 AND store_id = $2
		  AND status = 'CANCELLED'
		  AND payment_status = 'PAID'
		  AND refund_status IS DISTINCT FROM 'REFUNDED'
		RETURNING `+orderColumns,
		arg.ID, arg.StoreID,
	)
	return scanOrder(row)
}
