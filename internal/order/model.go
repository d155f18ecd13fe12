package order

import (
	"time"

	"github.com/MikeMC777/afrimarket/internal/cart"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// CanTransition reports whether an order may move from one status to another.
// Only pending orders settle.
func CanTransition(from, to Status) bool {
	return from == StatusPending && (to == StatusCompleted || to == StatusCancelled)
}

// Fulfillment says how the order gets paid, so fulfillment never has to
// guess from the status alone.
type Fulfillment string

const (
	FulfillmentOnline   Fulfillment = "online"
	FulfillmentDelivery Fulfillment = "delivery"
)

type PaymentMethod string

const (
	MethodCard     PaymentMethod = "card"
	MethodPhone    PaymentMethod = "phone"
	MethodDelivery PaymentMethod = "delivery"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodPhone, MethodDelivery:
		return true
	}
	return false
}

func (m PaymentMethod) Fulfillment() Fulfillment {
	if m == MethodDelivery {
		return FulfillmentDelivery
	}
	return FulfillmentOnline
}

// Order is written once by the payment service. Items is the cart as it was
// at submission and is never updated afterwards.
// swagger:model Order
type Order struct {
	ID                string        `json:"id"`
	UserID            string        `json:"userId"`
	Amount            int64         `json:"amount" example:"10000"`
	Currency          string        `json:"currency" example:"XAF"`
	Status            Status        `json:"status" example:"pending"`
	FulfillmentMethod Fulfillment   `json:"fulfillmentMethod" example:"online"`
	PaymentMethod     PaymentMethod `json:"paymentMethod" example:"phone"`
	PaymentReference  string        `json:"paymentReference"`
	PaymentURL        string        `json:"paymentUrl,omitempty"`
	IdempotencyKey    string        `json:"-"`
	Items             []cart.Item   `json:"items"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}
