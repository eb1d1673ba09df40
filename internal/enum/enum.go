package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusPending    = "PENDING"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusCompleted  = "COMPLETED"
	OrderStatusCancelled  = "CANCELLED"
)

const (
	PaymentStatusUnpaid    = "UNPAID"
	PaymentStatusPaid      = "PAID"
	PaymentStatusCancelled = "CANCELLED"
)

// Secondary workflow state for the customer/cashier cancellation negotiation.
// NULL in the DB means no cancellation activity on the order.
const (
	CancellationAutoCancelled   = "AUTO_CANCELLED"
	CancellationRequested       = "REQUESTED"
	CancellationApproved        = "APPROVED"
	CancellationRejected        = "REJECTED"
	CancellationRejectedByAdmin = "REJECTED_BY_ADMIN"
)

// Present only on paid orders that ended up cancelled.
const (
	RefundPending  = "PENDING"
	RefundRefunded = "REFUNDED"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	UserRoleAdmin   = "ADMIN"
	UserRoleCashier = "CASHIER"
)

const (
	OrderTypeDineIn   = "DINE_IN"
	OrderTypeTakeaway = "TAKEAWAY"
	OrderTypeDelivery = "DELIVERY"
)

// ── Group B: Configurable labels (no DB constraint) ──

const (
	PaymentMethodCash     = "CASH"
	PaymentMethodQRIS     = "QRIS"
	PaymentMethodTransfer = "TRANSFER"
)

// Customer-facing estimate buckets fixed at checkout.
const (
	EstimateFast    = "5-10 Menit"
	EstimateRegular = "15-20 Menit"
	EstimateSlow    = "25-30 Menit"
)
