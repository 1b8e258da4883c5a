package orders

import "time"

type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentCIB            PaymentMethod = "cib"
	PaymentEdahabia       PaymentMethod = "edahabia"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

type DeliveryMethod string

const (
	DeliveryHome           DeliveryMethod = "home_delivery"
	DeliveryExpress        DeliveryMethod = "express"
	DeliveryPickupPoint    DeliveryMethod = "pickup_point"
	DeliveryBoutiquePickup DeliveryMethod = "boutique_pickup"
)

func ValidDeliveryMethod(m DeliveryMethod) bool {
	switch m {
	case DeliveryHome, DeliveryExpress, DeliveryPickupPoint, DeliveryBoutiquePickup:
		return true
	}
	return false
}

// OrderItem is a full snapshot of the product line at checkout time.
// Later catalog edits never alter a historical order.
type OrderItem struct {
	ProductID    string  `json:"product_id"`
	ProductName  string  `json:"product_name"`
	ProductImage string  `json:"product_image,omitempty"`
	BoutiqueID   string  `json:"boutique_id"`
	BoutiqueName string  `json:"boutique_name"`
	Color        string  `json:"color,omitempty"`
	Size         string  `json:"size,omitempty"`
	SKU          string  `json:"sku,omitempty"`
	UnitPrice    float64 `json:"unit_price"`
	Quantity     int     `json:"quantity"`
	TotalPrice   float64 `json:"total_price"`
}

type ShippingAddress struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Phone          string `json:"phone"`
	Email          string `json:"email,omitempty"`
	Street         string `json:"street"`
	City           string `json:"city"`
	State          string `json:"state"`
	PostalCode     string `json:"postal_code"`
	Country        string `json:"country"`
	AdditionalInfo string `json:"additional_info,omitempty"`
}

type PaymentInfo struct {
	Method        PaymentMethod `json:"method"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transaction_id,omitempty"`
	PaymentDate   *time.Time    `json:"payment_date,omitempty"`
	Amount        float64       `json:"amount"`
}

type TrackingInfo struct {
	TrackingNumber    string     `json:"tracking_number,omitempty"`
	Carrier           string     `json:"carrier,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
}

// StatusHistory is one entry of the append-only audit trail. Entries are
// only ever added, never rewritten.
type StatusHistory struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
	Actor     string    `json:"actor,omitempty"`
}

type Order struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`

	CustomerID    string `json:"customer_id"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`

	Items []OrderItem `json:"items"`

	Subtotal     float64 `json:"subtotal"`
	ShippingCost float64 `json:"shipping_cost"`
	Tax          float64 `json:"tax"`
	Discount     float64 `json:"discount"`
	TotalAmount  float64 `json:"total_amount"`

	ShippingAddress ShippingAddress `json:"shipping_address"`
	DeliveryMethod  DeliveryMethod  `json:"delivery_method"`
	DeliveryNotes   string          `json:"delivery_notes,omitempty"`

	PaymentInfo PaymentInfo `json:"payment_info"`

	Status        Status          `json:"status"`
	StatusHistory []StatusHistory `json:"status_history,omitempty"`
	TrackingInfo  *TrackingInfo   `json:"tracking_info,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// Page is one page of a customer's order listing.
type Page struct {
	Orders     []Order `json:"orders"`
	Total      int     `json:"total"`
	Page       int     `json:"page"`
	Size       int     `json:"size"`
	TotalPages int     `json:"total_pages"`
}
