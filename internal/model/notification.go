package model

import (
	"time"

	"github.com/google/uuid"
)

// Notification is a fire-and-forget message to a customer.
type Notification struct {
	ID        uuid.UUID   `json:"id" db:"id"`
	UserID    string      `json:"userId" db:"user_id"`
	Title     string      `json:"title" db:"title"`
	Message   string      `json:"message" db:"message"`
	OrderID   uuid.UUID   `json:"orderId,omitempty" db:"-"`
	Status    OrderStatus `json:"status,omitempty" db:"-"`
	CreatedAt time.Time   `json:"createdAt" db:"created_at"`
}
