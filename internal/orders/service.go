package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/modadz/marketplace/internal/catalog"
	"github.com/modadz/marketplace/internal/inventory"
	"github.com/modadz/marketplace/internal/pricing"
)

// SystemActor marks lifecycle entries written by the platform itself
// rather than a customer or staff member.
const SystemActor = "system"

type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Color     string `json:"color,omitempty"`
	Size      string `json:"size,omitempty"`
	SKU       string `json:"sku,omitempty"`
}

type CreateOrderInput struct {
	CustomerID      string          `json:"-"`
	Items           []ItemInput     `json:"items"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	DeliveryMethod  DeliveryMethod  `json:"delivery_method"`
	DeliveryNotes   string          `json:"delivery_notes,omitempty"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`

	// Discount is applied by the platform (coupon handling), it is never
	// taken from the request body.
	Discount float64 `json:"-"`
}

type Customer struct {
	ID    string
	Email string
	Phone string
}

type CatalogStore interface {
	Get(ctx context.Context, id string) (*catalog.Product, error)
}

type CustomerDirectory interface {
	GetCustomer(ctx context.Context, id string) (Customer, error)
}

type Inventory interface {
	Reserve(ctx context.Context, productID string, qty int) error
	Release(ctx context.Context, productID string, qty int) error
}

type PaymentOutcome struct {
	Success bool
	Reason  string
}

type PaymentProcessor interface {
	Supported(m PaymentMethod) bool
	// Process fills o.PaymentInfo and reports the outcome. Gateway
	// declines come back as a failed outcome, not an error.
	Process(ctx context.Context, o *Order) (PaymentOutcome, error)
}

type Repository interface {
	Insert(ctx context.Context, o *Order) error
	Get(ctx context.Context, orderID string) (*Order, error)
	List(ctx context.Context, f ListFilter) ([]Order, int, error)
	Transition(ctx context.Context, orderID string, to Status, note, actor string) (*Order, error)
	SavePaymentInfo(ctx context.Context, orderID string, p PaymentInfo) error
}

type Publisher interface {
	Publish(ctx context.Context, topic string, env Envelope) error
}

type Service struct {
	Catalog   CatalogStore
	Customers CustomerDirectory
	Inventory Inventory
	Payments  PaymentProcessor
	Repo      Repository
	Events    Publisher // optional; nil disables event publishing
	Pricing   pricing.Config
	Producer  string // envelope producer name, e.g. "order-api"
}

// CreateOrder runs the whole checkout: validate, snapshot, reserve,
// persist, charge. On any failure after reservation the reserved stock
// is put back before the error is returned.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}
	if !s.Payments.Supported(in.PaymentMethod) {
		return nil, fmt.Errorf("%s: %w", in.PaymentMethod, ErrUnsupportedPayment)
	}

	cust, err := s.Customers.GetCustomer(ctx, in.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("customer %s: %w", in.CustomerID, err)
	}

	items, subtotal, err := s.priceLines(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	reserved, err := s.reserveItems(ctx, items)
	if err != nil {
		s.releaseItems(ctx, reserved)
		return nil, err
	}

	now := time.Now().UTC()
	shipping := s.Pricing.ShippingCost(subtotal, string(in.DeliveryMethod))
	tax := s.Pricing.Tax(subtotal)

	o := &Order{
		ID:            uuid.NewString(),
		OrderNumber:   NewOrderNumber(now),
		CustomerID:    cust.ID,
		CustomerEmail: cust.Email,
		CustomerPhone: cust.Phone,
		Items:         items,
		Subtotal:      subtotal,
		ShippingCost:  shipping,
		Tax:           tax,
		Discount:      in.Discount,
		TotalAmount:   subtotal + shipping + tax - in.Discount,

		ShippingAddress: in.ShippingAddress,
		DeliveryMethod:  in.DeliveryMethod,
		DeliveryNotes:   in.DeliveryNotes,

		PaymentInfo: PaymentInfo{
			Method: in.PaymentMethod,
			Status: PaymentStatusPending,
		},

		Status: StatusPending,
		StatusHistory: []StatusHistory{{
			Status:    StatusPending,
			Timestamp: now,
			Note:      "order placed",
			Actor:     cust.ID,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.PaymentInfo.Amount = o.TotalAmount

	if err := s.Repo.Insert(ctx, o); err != nil {
		s.releaseItems(ctx, items)
		return nil, err
	}

	s.publish(ctx, TopicOrderCreated, NewEnvelope(EventOrderCreated, s.Producer, o.ID, OrderCreatedPayload{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerID:    o.CustomerID,
		Items:         eventItems(o.Items),
		TotalAmount:   o.TotalAmount,
		PaymentMethod: string(o.PaymentInfo.Method),
	}))

	outcome, err := s.Payments.Process(ctx, o)
	if err != nil {
		outcome = PaymentOutcome{Success: false, Reason: err.Error()}
	}
	if !outcome.Success {
		return nil, s.failCheckout(ctx, o, outcome.Reason)
	}

	if err := s.Repo.SavePaymentInfo(ctx, o.ID, o.PaymentInfo); err != nil {
		return nil, s.failCheckout(ctx, o, "payment record not persisted")
	}

	// Cash on delivery is collected later, the order waits in PENDING
	// for manual confirmation.
	if o.PaymentInfo.Method == PaymentCashOnDelivery {
		return o, nil
	}

	confirmed, err := s.applyTransition(ctx, o, StatusConfirmed, "payment completed", SystemActor)
	if err != nil {
		return nil, err
	}
	return confirmed, nil
}

func validateCreate(in CreateOrderInput) error {
	if in.CustomerID == "" {
		return fmt.Errorf("customer id required: %w", ErrValidation)
	}
	if len(in.Items) == 0 {
		return fmt.Errorf("order has no items: %w", ErrValidation)
	}
	for _, it := range in.Items {
		if it.ProductID == "" {
			return fmt.Errorf("item without product id: %w", ErrValidation)
		}
		if it.Quantity < 1 {
			return fmt.Errorf("product %s: quantity must be at least 1: %w", it.ProductID, ErrValidation)
		}
	}
	if !ValidDeliveryMethod(in.DeliveryMethod) {
		return fmt.Errorf("delivery method %q: %w", in.DeliveryMethod, ErrValidation)
	}
	return nil
}

// priceLines resolves each input line against the catalog and builds the
// immutable item snapshots. Unknown products fail the whole checkout.
func (s *Service) priceLines(ctx context.Context, items []ItemInput) ([]OrderItem, float64, error) {
	out := make([]OrderItem, 0, len(items))
	var subtotal float64
	for _, it := range items {
		p, err := s.Catalog.Get(ctx, it.ProductID)
		if err != nil {
			return nil, 0, fmt.Errorf("product %s: %w", it.ProductID, err)
		}
		unit := pricing.UnitPrice(p, it.Color, it.Size)
		line := OrderItem{
			ProductID:    p.ID,
			ProductName:  p.Name,
			ProductImage: p.MainImage,
			BoutiqueID:   p.BoutiqueID,
			BoutiqueName: p.BoutiqueName,
			Color:        it.Color,
			Size:         it.Size,
			SKU:          it.SKU,
			UnitPrice:    unit,
			Quantity:     it.Quantity,
			TotalPrice:   unit * float64(it.Quantity),
		}
		out = append(out, line)
		subtotal += line.TotalPrice
	}
	return out, subtotal, nil
}

// reserveItems decrements stock line by line and returns what was already
// reserved when a line fails, so the caller can compensate.
func (s *Service) reserveItems(ctx context.Context, items []OrderItem) ([]OrderItem, error) {
	var done []OrderItem
	for _, it := range items {
		if err := s.Inventory.Reserve(ctx, it.ProductID, it.Quantity); err != nil {
			return done, err
		}
		done = append(done, it)
	}
	return done, nil
}

func (s *Service) releaseItems(ctx context.Context, items []OrderItem) {
	for _, it := range items {
		if err := s.Inventory.Release(ctx, it.ProductID, it.Quantity); err != nil {
			log.Error().Err(err).Str("product_id", it.ProductID).Int("qty", it.Quantity).
				Msg("stock release failed")
		}
	}
}

// failCheckout records the failed payment, cancels the order (which also
// restocks) and returns the checkout error.
func (s *Service) failCheckout(ctx context.Context, o *Order, reason string) error {
	o.PaymentInfo.Status = PaymentStatusFailed
	if err := s.Repo.SavePaymentInfo(ctx, o.ID, o.PaymentInfo); err != nil {
		log.Error().Err(err).Str("order_id", o.ID).Msg("failed payment not persisted")
	}
	if _, err := s.applyTransition(ctx, o, StatusCancelled, "payment failed: "+reason, SystemActor); err != nil {
		// The order is stuck pending with reserved stock; the caller has
		// to know the compensation did not run.
		log.Error().Err(err).Str("order_id", o.ID).Msg("cancel after failed payment")
		return fmt.Errorf("order %s: %s: cancel failed: %v: %w", o.OrderNumber, reason, err, ErrPaymentFailed)
	}
	return fmt.Errorf("order %s: %s: %w", o.OrderNumber, reason, ErrPaymentFailed)
}

// applyTransition persists the status change and fans out the matching
// event. Cancellation restocks every line exactly once, the repository
// rejects a second cancel before any release happens.
func (s *Service) applyTransition(ctx context.Context, o *Order, to Status, note, actor string) (*Order, error) {
	from := o.Status
	updated, err := s.Repo.Transition(ctx, o.ID, to, note, actor)
	if err != nil {
		return nil, err
	}

	switch to {
	case StatusCancelled:
		s.releaseItems(ctx, updated.Items)
		s.publish(ctx, TopicOrderCancelled, NewEnvelope(EventOrderCancelled, s.Producer, o.ID, OrderCancelledPayload{
			OrderID: o.ID,
			Reason:  note,
			Items:   eventItems(updated.Items),
		}))
	case StatusConfirmed:
		s.publish(ctx, TopicOrderConfirmed, NewEnvelope(EventOrderConfirmed, s.Producer, o.ID, OrderConfirmedPayload{
			OrderID:     o.ID,
			OrderNumber: updated.OrderNumber,
			CustomerID:  updated.CustomerID,
		}))
	default:
		s.publish(ctx, TopicOrderStatusChanged, NewEnvelope(EventOrderStatusChanged, s.Producer, o.ID, StatusChangedPayload{
			OrderID: o.ID,
			From:    from,
			To:      to,
			Note:    note,
			Actor:   actor,
		}))
	}
	return updated, nil
}

func (s *Service) publish(ctx context.Context, topic string, env Envelope) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, topic, env); err != nil {
		log.Error().Err(err).Str("topic", topic).Str("event_id", env.EventID).
			Msg("event publish failed")
	}
}

func eventItems(items []OrderItem) []EventItem {
	out := make([]EventItem, 0, len(items))
	for _, it := range items {
		out = append(out, EventItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return out
}

// GetOrder returns the order only to its owner. A mismatch reads the
// same as a missing order so existence is not leaked.
func (s *Service) GetOrder(ctx context.Context, orderID, customerID string) (*Order, error) {
	o, err := s.Repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.CustomerID != customerID {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return o, nil
}

func (s *Service) ListOrders(ctx context.Context, customerID string, page, size int, status Status) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	if status != "" && !ValidStatus(status) {
		return nil, fmt.Errorf("status %q: %w", status, ErrValidation)
	}

	list, total, err := s.Repo.List(ctx, ListFilter{
		CustomerID: customerID,
		Status:     status,
		Limit:      size,
		Offset:     (page - 1) * size,
	})
	if err != nil {
		return nil, err
	}
	totalPages := (total + size - 1) / size
	return &Page{Orders: list, Total: total, Page: page, Size: size, TotalPages: totalPages}, nil
}

// UpdateStatus applies a staff or internal transition. Only the lifecycle
// graph limits it.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, to Status, note, actor string) (*Order, error) {
	if !ValidStatus(to) {
		return nil, fmt.Errorf("status %q: %w", to, ErrValidation)
	}
	o, err := s.Repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.applyTransition(ctx, o, to, note, actor)
}

// CustomerUpdateStatus lets the order's owner change its status. Only the
// cancel of a not-yet-processed order is allowed.
func (s *Service) CustomerUpdateStatus(ctx context.Context, orderID, customerID string, to Status, note string) (*Order, error) {
	if !ValidStatus(to) {
		return nil, fmt.Errorf("status %q: %w", to, ErrValidation)
	}
	o, err := s.GetOrder(ctx, orderID, customerID)
	if err != nil {
		return nil, err
	}
	if to != StatusCancelled {
		return nil, fmt.Errorf("%s -> %s: %w", o.Status, to, ErrForbiddenTransition)
	}
	if !CanTransition(o.Status, to) {
		return nil, fmt.Errorf("%s -> %s: %w", o.Status, to, ErrInvalidTransition)
	}
	if !CustomerCanTransition(o.Status, to) {
		return nil, fmt.Errorf("%s -> %s: %w", o.Status, to, ErrForbiddenTransition)
	}
	return s.applyTransition(ctx, o, to, note, customerID)
}

// CancelOrder is the customer cancellation shorthand.
func (s *Service) CancelOrder(ctx context.Context, orderID, customerID, reason string) (*Order, error) {
	if reason == "" {
		reason = "cancelled by customer"
	}
	return s.CustomerUpdateStatus(ctx, orderID, customerID, StatusCancelled, reason)
}

type TrackingView struct {
	OrderNumber string          `json:"order_number"`
	Status      Status          `json:"status"`
	History     []StatusHistory `json:"history"`
	Tracking    *TrackingInfo   `json:"tracking,omitempty"`
	ShippedAt   *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty"`
}

// TrackOrder exposes the delivery-facing slice of the order.
func (s *Service) TrackOrder(ctx context.Context, orderID, customerID string) (*TrackingView, error) {
	o, err := s.GetOrder(ctx, orderID, customerID)
	if err != nil {
		return nil, err
	}
	return &TrackingView{
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		History:     o.StatusHistory,
		Tracking:    o.TrackingInfo,
		ShippedAt:   o.ShippedAt,
		DeliveredAt: o.DeliveredAt,
	}, nil
}

type CartLine struct {
	ProductID      string  `json:"product_id"`
	ProductName    string  `json:"product_name"`
	Color          string  `json:"color,omitempty"`
	Size           string  `json:"size,omitempty"`
	UnitPrice      float64 `json:"unit_price"`
	Quantity       int     `json:"quantity"`
	TotalPrice     float64 `json:"total_price"`
	InStock        bool    `json:"in_stock"`
	AvailableStock int     `json:"available_stock"`
}

type CartTotals struct {
	Items        []CartLine `json:"items"`
	TotalItems   int        `json:"total_items"`
	Subtotal     float64    `json:"subtotal"`
	ShippingCost float64    `json:"shipping_cost"`
	Tax          float64    `json:"tax"`
	TotalAmount  float64    `json:"total_amount"`
}

// CalculateCart is a read-only preview of the checkout totals. Products
// that vanished since they were added to the cart are skipped rather than
// failing the whole preview.
func (s *Service) CalculateCart(ctx context.Context, items []ItemInput, delivery DeliveryMethod) (*CartTotals, error) {
	if delivery == "" {
		delivery = DeliveryHome
	}
	if !ValidDeliveryMethod(delivery) {
		return nil, fmt.Errorf("delivery method %q: %w", delivery, ErrValidation)
	}

	out := &CartTotals{Items: []CartLine{}}
	for _, it := range items {
		if it.Quantity < 1 {
			return nil, fmt.Errorf("product %s: quantity must be at least 1: %w", it.ProductID, ErrValidation)
		}
		p, err := s.Catalog.Get(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				continue
			}
			return nil, err
		}
		unit := pricing.UnitPrice(p, it.Color, it.Size)
		line := CartLine{
			ProductID:      p.ID,
			ProductName:    p.Name,
			Color:          it.Color,
			Size:           it.Size,
			UnitPrice:      unit,
			Quantity:       it.Quantity,
			TotalPrice:     unit * float64(it.Quantity),
			InStock:        p.InStock(),
			AvailableStock: p.TotalStock,
		}
		out.Items = append(out.Items, line)
		out.TotalItems += line.Quantity
		out.Subtotal += line.TotalPrice
	}
	out.ShippingCost = s.Pricing.ShippingCost(out.Subtotal, string(delivery))
	out.Tax = s.Pricing.Tax(out.Subtotal)
	out.TotalAmount = out.Subtotal + out.ShippingCost + out.Tax
	return out, nil
}

var (
	_ Inventory    = (*inventory.Repo)(nil)
	_ CatalogStore = (*catalog.Repo)(nil)
)
