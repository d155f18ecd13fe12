// Package events announces order lifecycle changes to downstream fulfillment.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/MikeMC777/afrimarket/internal/cart"
	"github.com/MikeMC777/afrimarket/internal/order"
)

const (
	OrderCreatedQueue = "order.created"
	OrderSettledQueue = "order.settled"
)

type Publisher interface {
	OrderCreated(ctx context.Context, o *order.Order) error
	OrderSettled(ctx context.Context, o *order.Order) error
}

// OrderEvent is the body of both queues. Delivery agents pick up
// FulfillmentMethod=delivery orders from order.created.
type OrderEvent struct {
	EventID           string            `json:"eventId"`
	EventType         string            `json:"eventType"`
	OrderID           string            `json:"orderId"`
	UserID            string            `json:"userId"`
	Amount            int64             `json:"amount"`
	Currency          string            `json:"currency"`
	Status            order.Status      `json:"status"`
	FulfillmentMethod order.Fulfillment `json:"fulfillmentMethod"`
	PaymentReference  string            `json:"paymentReference,omitempty"`
	Items             []cart.Item       `json:"items,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
}

func newOrderEvent(eventType string, o *order.Order) OrderEvent {
	return OrderEvent{
		EventID:           uuid.NewString(),
		EventType:         eventType,
		OrderID:           o.ID,
		UserID:            o.UserID,
		Amount:            o.Amount,
		Currency:          o.Currency,
		Status:            o.Status,
		FulfillmentMethod: o.FulfillmentMethod,
		PaymentReference:  o.PaymentReference,
		Items:             o.Items,
		Timestamp:         time.Now().UTC(),
	}
}

type RabbitPublisher struct {
	mu sync.Mutex // amqp channels are not safe for concurrent publishing
	ch *amqp.Channel
}

func NewRabbitPublisher(conn *amqp.Connection) (*RabbitPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	for _, q := range []string{OrderCreatedQueue, OrderSettledQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			ch.Close()
			return nil, fmt.Errorf("declare %s: %w", q, err)
		}
	}
	return &RabbitPublisher{ch: ch}, nil
}

func (p *RabbitPublisher) Close() error { return p.ch.Close() }

func (p *RabbitPublisher) OrderCreated(ctx context.Context, o *order.Order) error {
	return p.publish(ctx, OrderCreatedQueue, newOrderEvent("OrderCreated", o))
}

func (p *RabbitPublisher) OrderSettled(ctx context.Context, o *order.Order) error {
	ev := newOrderEvent("OrderSettled", o)
	ev.Items = nil
	return p.publish(ctx, OrderSettledQueue, ev)
}

func (p *RabbitPublisher) publish(ctx context.Context, queue string, ev OrderEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.EventType, err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Timestamp:    ev.Timestamp,
		Type:         ev.EventType,
		Body:         body,
	})
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) OrderCreated(context.Context, *order.Order) error { return nil }
func (Nop) OrderSettled(context.Context, *order.Order) error { return nil }
