package order

import "github.com/MikeMC777/afrimarket/internal/cart"

// CreatePaymentRequest payload of POST /payments.
// swagger:model CreatePaymentRequest
type CreatePaymentRequest struct {
	Items []cart.Item `json:"items"`
	// Whole XAF. Optional: when set it must match the sum of the items.
	TotalAmount    int64         `json:"totalAmount" example:"10000"`
	Currency       string        `json:"currency" example:"XAF"`
	PaymentMethod  PaymentMethod `json:"paymentMethod" example:"phone"`
	PaymentDetails string        `json:"paymentDetails,omitempty" example:"670000000"`
}

// CreatePaymentResponse is returned for both branches. URL is empty for pay on delivery.
// swagger:model CreatePaymentResponse
type CreatePaymentResponse struct {
	URL               string      `json:"url,omitempty" example:"https://campay.net/pay/cp-123"`
	Reference         string      `json:"reference" example:"order_b2f5ff47_1718000000000"`
	OrderID           string      `json:"orderId,omitempty"`
	Status            Status      `json:"status,omitempty" example:"pending"`
	FulfillmentMethod Fulfillment `json:"fulfillmentMethod,omitempty" example:"delivery"`
	Amount            int64       `json:"amount,omitempty" example:"10000"`
	Currency          string      `json:"currency,omitempty" example:"XAF"`

	// Replayed is set when the response comes from an earlier identical submission.
	Replayed bool `json:"-"`
}

// ListResponse represents the paginated orders of the caller.
// swagger:model OrderListResponse
type ListResponse struct {
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
	Items  []Order `json:"items"`
}
