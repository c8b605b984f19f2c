// Package erp exports order status changes to the external ERP ("1C"). A
// background worker polls orders whose current status has not been exported
// yet, publishes one event per order and marks it synced. Sync state is
// bookkeeping only; it never feeds back into order status decisions.
package erp

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/storeops/order-engine/internal/models"
)

// OrderStatusEvent is the wire payload for one order status export.
type OrderStatusEvent struct {
	EventID    string             `json:"event_id"`
	OrderID    int64              `json:"order_id"`
	Number     string             `json:"number"`
	UserID     int64              `json:"user_id"`
	Status     models.OrderStatus `json:"status"`
	Total      decimal.Decimal    `json:"total"`
	OccurredAt time.Time          `json:"occurred_at"`
}
