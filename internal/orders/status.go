package orders

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
)

// validNext encodes the full lifecycle graph. DELIVERED, CANCELLED and
// REFUNDED are terminal.
var validNext = map[Status]map[Status]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusProcessing: true,
		StatusCancelled:  true,
	},
	StatusProcessing: {
		StatusShipped:   true,
		StatusCancelled: true,
		StatusRefunded:  true,
	},
	StatusShipped: {
		StatusDelivered: true,
		StatusRefunded:  true,
	},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// customerNext restricts what a customer may do on their own order.
// Everything else goes through staff or automated flows.
var customerNext = map[Status]map[Status]bool{
	StatusPending:   {StatusCancelled: true},
	StatusConfirmed: {StatusCancelled: true},
}

func CustomerCanTransition(from, to Status) bool {
	return customerNext[from][to]
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}
