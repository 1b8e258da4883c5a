package payments

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/modadz/marketplace/internal/orders"
)

// SandboxGateway simulates a card provider. It approves every charge up
// to Limit and declines above it, which is enough to exercise both
// checkout outcomes end to end.
type SandboxGateway struct {
	Prefix string  // transaction id prefix, e.g. "CIB" or "EDH"
	Limit  float64 // amounts above this are declined
}

func (g *SandboxGateway) Charge(_ context.Context, o *orders.Order) (ChargeResult, error) {
	if g.Limit > 0 && o.PaymentInfo.Amount > g.Limit {
		return ChargeResult{
			Success: false,
			Reason:  fmt.Sprintf("amount %.2f exceeds limit %.2f", o.PaymentInfo.Amount, g.Limit),
		}, nil
	}
	return ChargeResult{Success: true, TransactionID: newTransactionID(g.Prefix)}, nil
}

func newTransactionID(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("transaction id: %v", err))
	}
	return prefix + "_" + hex.EncodeToString(buf)
}
