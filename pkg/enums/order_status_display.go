package enums

// OrderStatusDisplay carries presentation metadata for an order status.
// Kept apart from transition legality, which lives with the state machine.
type OrderStatusDisplay struct {
	Label string
	Color string
}

var orderStatusDisplays = map[OrderStatus]OrderStatusDisplay{
	OrderStatusPendingPayment: {Label: "Awaiting Payment", Color: "amber"},
	OrderStatusPending:        {Label: "Pending", Color: "amber"},
	OrderStatusAccepted:       {Label: "Accepted", Color: "blue"},
	OrderStatusRejected:       {Label: "Rejected", Color: "red"},
	OrderStatusPaid:           {Label: "Paid", Color: "green"},
	OrderStatusFailed:         {Label: "Payment Failed", Color: "red"},
	OrderStatusExpired:        {Label: "Expired", Color: "gray"},
	OrderStatusShipped:        {Label: "Shipped", Color: "blue"},
	OrderStatusDelivered:      {Label: "Delivered", Color: "green"},
	OrderStatusCancelled:      {Label: "Cancelled", Color: "gray"},
}

// Display returns the presentation metadata for the status.
func (o OrderStatus) Display() OrderStatusDisplay {
	if display, ok := orderStatusDisplays[o]; ok {
		return display
	}
	return OrderStatusDisplay{Label: string(o), Color: "gray"}
}
