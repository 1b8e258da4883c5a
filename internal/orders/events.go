package orders

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventOrderConfirmed     = "OrderConfirmed"
	EventOrderCancelled     = "OrderCancelled"
	EventOrderStatusChanged = "OrderStatusChanged"
)

const (
	TopicOrderCreated       = "order.created"
	TopicOrderConfirmed     = "order.confirmed"
	TopicOrderCancelled     = "order.cancelled"
	TopicOrderStatusChanged = "order.status.changed"
)

// Partition key = order_id, so every event of one order keeps its order
// on the same partition.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // one of the consts above
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g. "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps a payload struct into a versioned event envelope.
func NewEnvelope(eventType, producer, correlationID string, payload any) Envelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		// payload types are plain structs, marshal cannot fail at runtime
		panic(fmt.Sprintf("marshal %s payload: %v", eventType, err))
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       raw,
	}
}

// UnwrapPayload decodes the envelope payload into T.
func UnwrapPayload[T any](env Envelope) (T, error) {
	var p T
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		return p, fmt.Errorf("unwrap %s payload: %w", env.EventType, err)
	}
	return p, nil
}

// ---- Payload types per event ----

type EventItem struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type OrderCreatedPayload struct {
	OrderID       string      `json:"order_id"`
	OrderNumber   string      `json:"order_number"`
	CustomerID    string      `json:"customer_id"`
	Items         []EventItem `json:"items"`
	TotalAmount   float64     `json:"total_amount"`
	PaymentMethod string      `json:"payment_method"`
}

type OrderConfirmedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	CustomerID  string `json:"customer_id"`
}

type OrderCancelledPayload struct {
	OrderID string      `json:"order_id"`
	Reason  string      `json:"reason,omitempty"`
	Items   []EventItem `json:"items"` // restocked quantities
}

type StatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	Note    string `json:"note,omitempty"`
	Actor   string `json:"actor,omitempty"`
}
