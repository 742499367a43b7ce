package model

import "strings"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
	StatusCompleted OrderStatus = "completed"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	StatusPending:   {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:   {StatusDelivered: true},
	StatusDelivered: {},
	StatusCancelled: {},
	StatusCompleted: {},
}

var statusMessages = map[OrderStatus]string{
	StatusPending:   "Your order is being processed",
	StatusConfirmed: "Your order has been confirmed and is being prepared",
	StatusShipped:   "Your order has been shipped and is on its way",
	StatusDelivered: "Your order has been delivered successfully",
	StatusCancelled: "Your order has been cancelled",
	StatusCompleted: "Your order has been completed successfully",
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s OrderStatus) IsTerminal() bool {
	next, ok := validNext[s]
	return ok && len(next) == 0
}

// Title is the capitalised status used in notification titles.
func (s OrderStatus) Title() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// Message returns the customer-facing text for s.
func (s OrderStatus) Message() string {
	if msg, ok := statusMessages[s]; ok {
		return msg
	}
	return "Status changed to " + string(s)
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

// rank orders the fulfilment path so webhook handling only moves forward.
var rank = map[OrderStatus]int{
	StatusPending:   0,
	StatusConfirmed: 1,
	StatusShipped:   2,
	StatusDelivered: 3,
}

// ReachedOrPassed reports whether s is target or further along the
// fulfilment path. Terminal statuses always count as passed.
func (s OrderStatus) ReachedOrPassed(target OrderStatus) bool {
	if s.IsTerminal() {
		return true
	}
	cur, ok1 := rank[s]
	want, ok2 := rank[target]
	return ok1 && ok2 && cur >= want
}
