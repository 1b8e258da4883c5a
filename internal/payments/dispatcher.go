package payments

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/modadz/marketplace/internal/orders"
)

// Gateway charges one order against a single provider.
type Gateway interface {
	Charge(ctx context.Context, o *orders.Order) (ChargeResult, error)
}

type ChargeResult struct {
	Success       bool
	TransactionID string
	Reason        string
}

// Dispatcher routes an order to the gateway of its payment method.
// Cash on delivery needs no gateway, it stays pending until the courier
// collects.
type Dispatcher struct {
	Gateways map[orders.PaymentMethod]Gateway
}

func (d *Dispatcher) Supported(m orders.PaymentMethod) bool {
	if m == orders.PaymentCashOnDelivery {
		return true
	}
	_, ok := d.Gateways[m]
	return ok
}

// Process charges the order and writes the result into o.PaymentInfo.
// A gateway error is converted to a failed outcome here so callers only
// ever see success or a declined payment, never a raw provider error.
func (d *Dispatcher) Process(ctx context.Context, o *orders.Order) (orders.PaymentOutcome, error) {
	if o.PaymentInfo.Method == orders.PaymentCashOnDelivery {
		o.PaymentInfo.Status = orders.PaymentStatusPending
		return orders.PaymentOutcome{Success: true}, nil
	}

	gw, ok := d.Gateways[o.PaymentInfo.Method]
	if !ok {
		return orders.PaymentOutcome{}, orders.ErrUnsupportedPayment
	}

	res, err := gw.Charge(ctx, o)
	if err != nil {
		log.Error().Err(err).Str("order_id", o.ID).Str("method", string(o.PaymentInfo.Method)).
			Msg("payment gateway error")
		o.PaymentInfo.Status = orders.PaymentStatusFailed
		return orders.PaymentOutcome{Success: false, Reason: "gateway unavailable"}, nil
	}
	if !res.Success {
		o.PaymentInfo.Status = orders.PaymentStatusFailed
		return orders.PaymentOutcome{Success: false, Reason: res.Reason}, nil
	}

	now := time.Now().UTC()
	o.PaymentInfo.Status = orders.PaymentStatusCompleted
	o.PaymentInfo.TransactionID = res.TransactionID
	o.PaymentInfo.PaymentDate = &now
	return orders.PaymentOutcome{Success: true}, nil
}
