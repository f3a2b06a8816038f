package domain

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	// OrderStatusPending is the initial state of every new order.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed means the restaurant accepted the order.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPreparing means the kitchen is working on the order.
	OrderStatusPreparing OrderStatus = "preparing"
	// OrderStatusDelivering means the order left for delivery.
	OrderStatusDelivering OrderStatus = "delivering"
	// OrderStatusCompleted is terminal: the customer received the order.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled is terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusDelivering,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

var orderStatusTransitions = map[OrderStatus]map[OrderStatus]struct{}{
	OrderStatusPending: {
		OrderStatusConfirmed: {},
		OrderStatusCancelled: {},
	},
	OrderStatusConfirmed: {
		OrderStatusPreparing: {},
		OrderStatusCancelled: {},
	},
	OrderStatusPreparing: {
		OrderStatusDelivering: {},
		OrderStatusCompleted:  {},
		OrderStatusCancelled:  {},
	},
	OrderStatusDelivering: {
		OrderStatusCompleted: {},
		OrderStatusCancelled: {},
	},
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing,
		OrderStatusDelivering, OrderStatusCompleted, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	return s.Valid() && len(orderStatusTransitions[s]) == 0
}

// CanTransitionTo reports whether moving from s to next is allowed. Same-status moves are not.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	allowed, ok := orderStatusTransitions[s]
	if !ok {
		return false
	}
	_, ok = allowed[next]
	return ok
}

// NextStatuses returns the statuses reachable from s in lifecycle order.
func (s OrderStatus) NextStatuses() []OrderStatus {
	allowed := orderStatusTransitions[s]
	out := make([]OrderStatus, 0, len(allowed))
	for _, candidate := range OrderStatuses {
		if _, ok := allowed[candidate]; ok {
			out = append(out, candidate)
		}
	}
	return out
}

// ApplyStatusChange moves the order to change.To and stamps the matching lifecycle timestamp.
// Callers validate the transition first.
func (o *Order) ApplyStatusChange(change StatusChange) {
	at := change.At
	o.Status = change.To
	o.UpdatedAt = at
	o.StatusHistory = append(o.StatusHistory, change)
	switch change.To {
	case OrderStatusConfirmed:
		o.ConfirmedAt = &at
	case OrderStatusCompleted:
		o.CompletedAt = &at
	case OrderStatusCancelled:
		o.CancelledAt = &at
	}
}
