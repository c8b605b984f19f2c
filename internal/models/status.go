package models

// OrderStatus is the lifecycle state of an order.
//
// pending ──> paid ──> shipped ──> delivered
//    │          │          │
//    └──────────┴──────────┴────> cancelled
//
// delivered and cancelled are terminal.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusDelivered, StatusCancelled:
		return true
	case StatusPending, StatusPaid, StatusShipped:
		return false
	}
	return false
}

// CanTransitionTo reports whether the edge s -> next is allowed. The switch
// covers every state explicitly so that adding a status forces every
// transition decision to be revisited.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusPaid || next == StatusCancelled
	case StatusPaid:
		return next == StatusShipped || next == StatusCancelled
	case StatusShipped:
		return next == StatusDelivered || next == StatusCancelled
	case StatusDelivered, StatusCancelled:
		return false
	}
	return false
}

func (s OrderStatus) String() string {
	return string(s)
}
