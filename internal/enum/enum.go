package enum

// ── Group A: State machines (CHECK constrained in DB) ──

const (
	OrderStatusNew               = "NEW"
	OrderStatusCompleted         = "COMPLETED"
	OrderStatusPartiallyRefunded = "PARTIALLY_REFUNDED"
	OrderStatusRefunded          = "REFUNDED"
	OrderStatusCancelled         = "CANCELLED"
)

const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
)

// ── Group C: Borderline (CHECK constrained in DB) ──

const (
	UserRoleOwner   = "OWNER"
	UserRoleManager = "MANAGER"
	UserRoleCashier = "CASHIER"
)

const (
	PaymentMethodCash     = "CASH"
	PaymentMethodCard     = "CARD"
	PaymentMethodTransfer = "TRANSFER"
	PaymentMethodPaystack = "PAYSTACK"
)

// ── Group B: Event names (no DB constraint) ──

const (
	EventOrderCreated   = "order.created"
	EventOrderCancelled = "order.cancelled"
	EventOrderCompleted = "order.completed"
	EventOrderRefunded  = "order.refunded"
	EventPaymentAdded   = "payment.added"
	EventRefundIssued   = "refund.issued"
)
