package orders

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

var numberSpace = big.NewInt(1_000_000)

// NewOrderNumber builds a human readable order reference of the form
// MD + yyyymmdd + six random digits, e.g. MD20260831042917.
func NewOrderNumber(now time.Time) string {
	n, err := rand.Int(rand.Reader, numberSpace)
	if err != nil {
		// crypto/rand only fails when the platform entropy source is broken.
		panic(fmt.Sprintf("order number: %v", err))
	}
	return fmt.Sprintf("MD%s%06d", now.Format("20060102"), n.Int64())
}
