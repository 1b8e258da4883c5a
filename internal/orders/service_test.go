package orders_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/modadz/marketplace/internal/catalog"
	"github.com/modadz/marketplace/internal/inventory"
	"github.com/modadz/marketplace/internal/orders"
	"github.com/modadz/marketplace/internal/payments"
	"github.com/modadz/marketplace/internal/pricing"
)

// memStore backs both the catalog lookups and the stock reservation so
// the suite can watch stock move through a checkout.
type memStore struct {
	mu       sync.Mutex
	products map[string]*catalog.Product
}

func (m *memStore) Get(_ context.Context, id string) (*catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, catalog.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) Reserve(_ context.Context, productID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok || p.TotalStock < qty {
		return fmt.Errorf("product %s: %w", productID, inventory.ErrOutOfStock)
	}
	p.TotalStock -= qty
	p.SalesCount += qty
	return nil
}

func (m *memStore) Release(_ context.Context, productID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return fmt.Errorf("release: product %s not found", productID)
	}
	p.TotalStock += qty
	p.SalesCount -= qty
	return nil
}

func (m *memStore) stock(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].TotalStock
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]*orders.Order
}

func (m *memOrders) Insert(_ context.Context, o *orders.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrders) Get(_ context.Context, orderID string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, orders.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) List(_ context.Context, f orders.ListFilter) ([]orders.Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []orders.Order
	for _, o := range m.orders {
		if o.CustomerID != f.CustomerID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		all = append(all, *o)
	}
	// newest first, like the SQL implementation
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[j].CreatedAt.After(all[i].CreatedAt) {
				all[i], all[j] = all[j], all[i]
			}
		}
	}
	total := len(all)
	if f.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[f.Offset:]
	if f.Limit < len(all) {
		all = all[:f.Limit]
	}
	return all, total, nil
}

func (m *memOrders) Transition(_ context.Context, orderID string, to orders.Status, note, actor string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, orders.ErrNotFound)
	}
	if !orders.CanTransition(o.Status, to) {
		return nil, fmt.Errorf("%s -> %s: %w", o.Status, to, orders.ErrInvalidTransition)
	}
	now := time.Now().UTC()
	o.Status = to
	o.UpdatedAt = now
	switch to {
	case orders.StatusConfirmed:
		o.ConfirmedAt = &now
	case orders.StatusShipped:
		o.ShippedAt = &now
	case orders.StatusDelivered:
		o.DeliveredAt = &now
	}
	o.StatusHistory = append(o.StatusHistory, orders.StatusHistory{
		Status: to, Timestamp: now, Note: note, Actor: actor,
	})
	cp := *o
	return &cp, nil
}

func (m *memOrders) SavePaymentInfo(_ context.Context, orderID string, p orders.PaymentInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("order %s: %w", orderID, orders.ErrNotFound)
	}
	o.PaymentInfo = p
	return nil
}

// downRepo accepts writes but fails every status transition, simulating
// a database outage between the payment attempt and the compensation.
type downRepo struct {
	*memOrders
}

func (r *downRepo) Transition(context.Context, string, orders.Status, string, string) (*orders.Order, error) {
	return nil, fmt.Errorf("connection reset")
}

type memDirectory struct{ known map[string]orders.Customer }

func (d *memDirectory) GetCustomer(_ context.Context, id string) (orders.Customer, error) {
	c, ok := d.known[id]
	if !ok {
		return orders.Customer{}, fmt.Errorf("customer %s: %w", id, orders.ErrNotFound)
	}
	return c, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	topics []string
	events []orders.Envelope
}

func (p *capturePublisher) Publish(_ context.Context, topic string, env orders.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, env)
	return nil
}

func (p *capturePublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...)
}

const gatewayLimit = 10000

type CheckoutSuite struct {
	suite.Suite
	store  *memStore
	repo   *memOrders
	events *capturePublisher
	svc    *orders.Service
}

func TestCheckoutSuite(t *testing.T) {
	suite.Run(t, new(CheckoutSuite))
}

func (s *CheckoutSuite) SetupTest() {
	s.store = &memStore{products: map[string]*catalog.Product{
		"p-dress": {
			ID: "p-dress", Name: "Karakou dress", BoutiqueID: "b-1", BoutiqueName: "Dar Lebsa",
			BasePrice: 4000, TotalStock: 10, Status: catalog.StatusActive,
			Colors: []catalog.Color{{
				Name:  "green",
				Sizes: []catalog.Size{{Size: "M", Stock: 5, PriceAdjustment: 300}},
			}},
		},
		"p-scarf": {
			ID: "p-scarf", Name: "Silk scarf", BoutiqueID: "b-1", BoutiqueName: "Dar Lebsa",
			BasePrice: 1000, SalePrice: 800, TotalStock: 2, Status: catalog.StatusActive,
		},
	}}
	s.repo = &memOrders{orders: map[string]*orders.Order{}}
	s.events = &capturePublisher{}

	s.svc = &orders.Service{
		Catalog:   s.store,
		Customers: &memDirectory{known: map[string]orders.Customer{
			"cust-1": {ID: "cust-1", Email: "amina@example.dz", Phone: "+213550000001"},
			"cust-2": {ID: "cust-2", Email: "yacine@example.dz", Phone: "+213550000002"},
		}},
		Inventory: s.store,
		Payments: &payments.Dispatcher{Gateways: map[orders.PaymentMethod]payments.Gateway{
			orders.PaymentCIB:      &payments.SandboxGateway{Prefix: "CIB", Limit: gatewayLimit},
			orders.PaymentEdahabia: &payments.SandboxGateway{Prefix: "EDH", Limit: gatewayLimit},
		}},
		Repo:     s.repo,
		Events:   s.events,
		Pricing:  pricing.DefaultConfig(),
		Producer: "order-api-test",
	}
}

func (s *CheckoutSuite) input(method orders.PaymentMethod, items ...orders.ItemInput) orders.CreateOrderInput {
	return orders.CreateOrderInput{
		CustomerID: "cust-1",
		Items:      items,
		ShippingAddress: orders.ShippingAddress{
			FirstName: "Amina", LastName: "B", Phone: "+213550000001",
			Street: "12 rue Didouche", City: "Algiers", State: "Alger",
			PostalCode: "16000", Country: "DZ",
		},
		DeliveryMethod: orders.DeliveryHome,
		PaymentMethod:  method,
	}
}

func (s *CheckoutSuite) TestCashOnDeliveryStaysPending() {
	in := s.input(orders.PaymentCashOnDelivery, orders.ItemInput{ProductID: "p-scarf", Quantity: 1})

	o, err := s.svc.CreateOrder(context.Background(), in)
	s.Require().NoError(err)

	s.Equal(orders.StatusPending, o.Status)
	s.Equal(orders.PaymentStatusPending, o.PaymentInfo.Status)
	s.Empty(o.PaymentInfo.TransactionID)
	s.Len(o.StatusHistory, 1)
	s.Equal(1, s.store.stock("p-scarf"))
	s.Equal([]string{orders.TopicOrderCreated}, s.events.published())
}

func (s *CheckoutSuite) TestPrepaidConfirmed() {
	in := s.input(orders.PaymentCIB, orders.ItemInput{ProductID: "p-dress", Quantity: 1})

	o, err := s.svc.CreateOrder(context.Background(), in)
	s.Require().NoError(err)

	s.Equal(orders.StatusConfirmed, o.Status)
	s.Require().NotNil(o.ConfirmedAt)
	s.Equal(orders.PaymentStatusCompleted, o.PaymentInfo.Status)
	s.Regexp(`^CIB_[0-9a-f]{16}$`, o.PaymentInfo.TransactionID)
	s.Len(o.StatusHistory, 2)
	s.Equal(orders.StatusConfirmed, o.StatusHistory[1].Status)
	s.Equal(9, s.store.stock("p-dress"))
	s.Equal([]string{orders.TopicOrderCreated, orders.TopicOrderConfirmed}, s.events.published())
}

func (s *CheckoutSuite) TestPrepaidTotals() {
	// 1 dress green/M: 4000 + 300 surcharge = 4300
	in := s.input(orders.PaymentCIB,
		orders.ItemInput{ProductID: "p-dress", Quantity: 1, Color: "green", Size: "M"})

	o, err := s.svc.CreateOrder(context.Background(), in)
	s.Require().NoError(err)

	s.InDelta(4300.0, o.Subtotal, 0.001)
	s.InDelta(500.0, o.ShippingCost, 0.001)
	s.InDelta(4300.0*0.19, o.Tax, 0.001)
	s.InDelta(4300.0+500.0+4300.0*0.19, o.TotalAmount, 0.001)
	s.InDelta(o.TotalAmount, o.PaymentInfo.Amount, 0.001)
}

func (s *CheckoutSuite) TestDeclinedPaymentCancelsAndRestocks() {
	// 3 dresses blow past the sandbox gateway limit
	in := s.input(orders.PaymentEdahabia, orders.ItemInput{ProductID: "p-dress", Quantity: 3})

	_, err := s.svc.CreateOrder(context.Background(), in)
	s.Require().ErrorIs(err, orders.ErrPaymentFailed)

	s.Equal(10, s.store.stock("p-dress"))
	s.Equal([]string{orders.TopicOrderCreated, orders.TopicOrderCancelled}, s.events.published())

	// the order stays on file, cancelled with a failed payment
	s.Require().Len(s.repo.orders, 1)
	for _, o := range s.repo.orders {
		s.Equal(orders.StatusCancelled, o.Status)
		s.Equal(orders.PaymentStatusFailed, o.PaymentInfo.Status)
		s.Len(o.StatusHistory, 2)
	}
}

func (s *CheckoutSuite) TestCompensationFailureSurfaces() {
	// the cancel after a declined payment cannot reach the database; the
	// caller must see that the compensation did not run
	s.svc.Repo = &downRepo{memOrders: s.repo}

	in := s.input(orders.PaymentEdahabia, orders.ItemInput{ProductID: "p-dress", Quantity: 3})
	_, err := s.svc.CreateOrder(context.Background(), in)

	s.Require().ErrorIs(err, orders.ErrPaymentFailed)
	s.Contains(err.Error(), "cancel failed")
	for _, o := range s.repo.orders {
		s.Equal(orders.StatusPending, o.Status)
	}
}

func (s *CheckoutSuite) TestOutOfStock() {
	in := s.input(orders.PaymentCashOnDelivery, orders.ItemInput{ProductID: "p-scarf", Quantity: 5})

	_, err := s.svc.CreateOrder(context.Background(), in)
	s.Require().ErrorIs(err, inventory.ErrOutOfStock)

	s.Empty(s.repo.orders)
	s.Empty(s.events.published())
	s.Equal(2, s.store.stock("p-scarf"))
}

func (s *CheckoutSuite) TestPartialReservationRollsBack() {
	in := s.input(orders.PaymentCashOnDelivery,
		orders.ItemInput{ProductID: "p-dress", Quantity: 2},
		orders.ItemInput{ProductID: "p-scarf", Quantity: 5},
	)

	_, err := s.svc.CreateOrder(context.Background(), in)
	s.Require().ErrorIs(err, inventory.ErrOutOfStock)

	// the dress reservation was compensated
	s.Equal(10, s.store.stock("p-dress"))
	s.Equal(2, s.store.stock("p-scarf"))
	s.Empty(s.repo.orders)
}

func (s *CheckoutSuite) TestUnknownProductFailsCheckout() {
	in := s.input(orders.PaymentCashOnDelivery, orders.ItemInput{ProductID: "p-ghost", Quantity: 1})

	_, err := s.svc.CreateOrder(context.Background(), in)
	s.Require().ErrorIs(err, catalog.ErrNotFound)
	s.Empty(s.repo.orders)
}

func (s *CheckoutSuite) TestUnsupportedPaymentMethod() {
	in := s.input("paypal", orders.ItemInput{ProductID: "p-scarf", Quantity: 1})

	_, err := s.svc.CreateOrder(context.Background(), in)
	s.Require().ErrorIs(err, orders.ErrUnsupportedPayment)
	s.Equal(2, s.store.stock("p-scarf"))
}

func (s *CheckoutSuite) TestValidation() {
	cases := []orders.CreateOrderInput{
		s.input(orders.PaymentCashOnDelivery), // no items
		s.input(orders.PaymentCashOnDelivery, orders.ItemInput{ProductID: "p-scarf", Quantity: 0}),
		s.input(orders.PaymentCashOnDelivery, orders.ItemInput{Quantity: 1}),
	}
	bad := s.input(orders.PaymentCashOnDelivery, orders.ItemInput{ProductID: "p-scarf", Quantity: 1})
	bad.DeliveryMethod = "drone"
	cases = append(cases, bad)

	for i, in := range cases {
		_, err := s.svc.CreateOrder(context.Background(), in)
		s.ErrorIs(err, orders.ErrValidation, "case %d", i)
	}
}

func (s *CheckoutSuite) TestClientDiscountIgnored() {
	// a discount smuggled into the request body must not move the total
	body := []byte(`{
		"items": [{"product_id": "p-scarf", "quantity": 1}],
		"shipping_address": {"first_name": "Amina", "street": "12 rue Didouche", "city": "Algiers"},
		"delivery_method": "home_delivery",
		"payment_method": "cash_on_delivery",
		"discount": 100000
	}`)
	var in orders.CreateOrderInput
	s.Require().NoError(json.Unmarshal(body, &in))
	s.Zero(in.Discount)

	in.CustomerID = "cust-1"
	o, err := s.svc.CreateOrder(context.Background(), in)
	s.Require().NoError(err)

	s.Zero(o.Discount)
	s.InDelta(o.Subtotal+o.ShippingCost+o.Tax, o.TotalAmount, 0.001)
	s.Greater(o.TotalAmount, 0.0)
	s.InDelta(o.TotalAmount, o.PaymentInfo.Amount, 0.001)
}

func (s *CheckoutSuite) TestDoubleCancelReleasesOnce() {
	in := s.input(orders.PaymentCashOnDelivery, orders.ItemInput{ProductID: "p-scarf", Quantity: 1})
	o, err := s.svc.CreateOrder(context.Background(), in)
	s.Require().NoError(err)
	s.Equal(1, s.store.stock("p-scarf"))

	_, err = s.svc.CancelOrder(context.Background(), o.ID, "cust-1", "changed my mind")
	s.Require().NoError(err)
	s.Equal(2, s.store.stock("p-scarf"))

	_, err = s.svc.CancelOrder(context.Background(), o.ID, "cust-1", "again")
	s.Require().ErrorIs(err, orders.ErrInvalidTransition)
	// stock was not released a second time
	s.Equal(2, s.store.stock("p-scarf"))
}

func (s *CheckoutSuite) TestCancelConfirmedRestocks() {
	in := s.input(orders.PaymentCIB, orders.ItemInput{ProductID: "p-dress", Quantity: 2})
	o, err := s.svc.CreateOrder(context.Background(), in)
	s.Require().NoError(err)
	s.Require().Equal(orders.StatusConfirmed, o.Status)
	s.Equal(8, s.store.stock("p-dress"))

	cancelled, err := s.svc.CancelOrder(context.Background(), o.ID, "cust-1", "found it cheaper")
	s.Require().NoError(err)
	s.Equal(orders.StatusCancelled, cancelled.Status)
	s.Equal(10, s.store.stock("p-dress"))
	s.Equal("found it cheaper", cancelled.StatusHistory[len(cancelled.StatusHistory)-1].Note)
}

func (s *CheckoutSuite) TestCustomerCannotCancelProcessing() {
	in := s.input(orders.PaymentCIB, orders.ItemInput{ProductID: "p-dress", Quantity: 1})
	o, err := s.svc.CreateOrder(context.Background(), in)
	s.Require().NoError(err)

	_, err = s.svc.UpdateStatus(context.Background(), o.ID, orders.StatusProcessing, "", "warehouse")
	s.Require().NoError(err)

	_, err = s.svc.CancelOrder(context.Background(), o.ID, "cust-1", "too late")
	s.ErrorIs(err, orders.ErrForbiddenTransition)
}

func (s *CheckoutSuite) TestCustomerCannotSkipToDelivered() {
	in := s.input(orders.PaymentCashOnDelivery, orders.ItemInput{ProductID: "p-scarf", Quantity: 1})
	o, err := s.svc.CreateOrder(context.Background(), in)
	s.Require().NoError(err)

	_, err = s.svc.CustomerUpdateStatus(context.Background(), o.ID, "cust-1", orders.StatusDelivered, "")
	s.ErrorIs(err, orders.ErrForbiddenTransition)
}

func (s *CheckoutSuite) TestOwnershipHidesOrders() {
	in := s.input(orders.PaymentCashOnDelivery, orders.ItemInput{ProductID: "p-scarf", Quantity: 1})
	o, err := s.svc.CreateOrder(context.Background(), in)
	s.Require().NoError(err)

	_, err = s.svc.GetOrder(context.Background(), o.ID, "cust-2")
	s.ErrorIs(err, orders.ErrNotFound)

	_, err = s.svc.CancelOrder(context.Background(), o.ID, "cust-2", "not mine")
	s.ErrorIs(err, orders.ErrNotFound)
	s.Equal(1, s.store.stock("p-scarf"))
}

func (s *CheckoutSuite) TestStaffLifecycleToDelivered() {
	in := s.input(orders.PaymentCIB, orders.ItemInput{ProductID: "p-dress", Quantity: 1})
	o, err := s.svc.CreateOrder(context.Background(), in)
	s.Require().NoError(err)

	for _, st := range []orders.Status{orders.StatusProcessing, orders.StatusShipped, orders.StatusDelivered} {
		o, err = s.svc.UpdateStatus(context.Background(), o.ID, st, "", "warehouse")
		s.Require().NoError(err)
		s.Equal(st, o.Status)
	}
	s.NotNil(o.ConfirmedAt)
	s.NotNil(o.ShippedAt)
	s.NotNil(o.DeliveredAt)
	s.Len(o.StatusHistory, 5)
}

func (s *CheckoutSuite) TestListOrders() {
	for i := 0; i < 5; i++ {
		in := s.input(orders.PaymentCashOnDelivery, orders.ItemInput{ProductID: "p-dress", Quantity: 1})
		_, err := s.svc.CreateOrder(context.Background(), in)
		s.Require().NoError(err)
	}
	in := s.input(orders.PaymentCashOnDelivery, orders.ItemInput{ProductID: "p-scarf", Quantity: 1})
	in.CustomerID = "cust-2"
	other, err := s.svc.CreateOrder(context.Background(), in)
	s.Require().NoError(err)
	_, err = s.svc.CancelOrder(context.Background(), other.ID, "cust-2", "")
	s.Require().NoError(err)

	p, err := s.svc.ListOrders(context.Background(), "cust-1", 1, 2, "")
	s.Require().NoError(err)
	s.Equal(5, p.Total)
	s.Equal(3, p.TotalPages)
	s.Len(p.Orders, 2)
	for _, o := range p.Orders {
		s.Equal("cust-1", o.CustomerID)
	}

	p, err = s.svc.ListOrders(context.Background(), "cust-1", 3, 2, "")
	s.Require().NoError(err)
	s.Len(p.Orders, 1)

	// status filter only sees the other customer's cancelled order for cust-2
	p, err = s.svc.ListOrders(context.Background(), "cust-2", 1, 20, orders.StatusCancelled)
	s.Require().NoError(err)
	s.Equal(1, p.Total)

	p, err = s.svc.ListOrders(context.Background(), "cust-1", 1, 20, orders.StatusCancelled)
	s.Require().NoError(err)
	s.Equal(0, p.Total)

	_, err = s.svc.ListOrders(context.Background(), "cust-1", 1, 20, "BOGUS")
	s.ErrorIs(err, orders.ErrValidation)
}

func (s *CheckoutSuite) TestCalculateCartSkipsMissingProducts() {
	totals, err := s.svc.CalculateCart(context.Background(), []orders.ItemInput{
		{ProductID: "p-scarf", Quantity: 2},
		{ProductID: "p-ghost", Quantity: 1},
	}, orders.DeliveryHome)
	s.Require().NoError(err)

	s.Len(totals.Items, 1)
	s.Equal(2, totals.TotalItems)
	s.InDelta(1600.0, totals.Subtotal, 0.001) // sale price 800 each
	s.InDelta(500.0, totals.ShippingCost, 0.001)
	s.True(totals.Items[0].InStock)
	s.Equal(2, totals.Items[0].AvailableStock)
}

func (s *CheckoutSuite) TestCalculateCartFreeShipping() {
	totals, err := s.svc.CalculateCart(context.Background(), []orders.ItemInput{
		{ProductID: "p-dress", Quantity: 2},
	}, orders.DeliveryHome)
	s.Require().NoError(err)

	s.InDelta(8000.0, totals.Subtotal, 0.001)
	s.InDelta(0.0, totals.ShippingCost, 0.001)
}

func (s *CheckoutSuite) TestTrackOrder() {
	in := s.input(orders.PaymentCIB, orders.ItemInput{ProductID: "p-dress", Quantity: 1})
	o, err := s.svc.CreateOrder(context.Background(), in)
	s.Require().NoError(err)

	v, err := s.svc.TrackOrder(context.Background(), o.ID, "cust-1")
	s.Require().NoError(err)
	s.Equal(o.OrderNumber, v.OrderNumber)
	s.Equal(orders.StatusConfirmed, v.Status)
	s.Len(v.History, 2)

	_, err = s.svc.TrackOrder(context.Background(), o.ID, "cust-2")
	s.ErrorIs(err, orders.ErrNotFound)
}

func (s *CheckoutSuite) TestConcurrentLastUnit() {
	s.store.products["p-scarf"].TotalStock = 1

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := s.input(orders.PaymentCashOnDelivery, orders.ItemInput{ProductID: "p-scarf", Quantity: 1})
			_, err := s.svc.CreateOrder(context.Background(), in)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var won, lost int
	for err := range results {
		if err == nil {
			won++
		} else {
			s.ErrorIs(err, inventory.ErrOutOfStock)
			lost++
		}
	}
	s.Equal(1, won)
	s.Equal(1, lost)
	s.Equal(0, s.store.stock("p-scarf"))
}
