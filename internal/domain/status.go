package domain

// AggregateStatus derives an order's status from its suborders' statuses.
// A single suborder passes through verbatim. Otherwise rules apply in order:
// any processing, all delivered, all cancelled, any shipped or a partial
// delivery, and processing as the fallback.
func AggregateStatus(statuses []OrderStatus) OrderStatus {
	if len(statuses) == 0 {
		return OrderStatusPending
	}
	if len(statuses) == 1 {
		return statuses[0]
	}

	var processing, shipped, delivered, cancelled int
	for _, s := range statuses {
		switch s {
		case OrderStatusProcessing:
			processing++
		case OrderStatusShipped:
			shipped++
		case OrderStatusDelivered:
			delivered++
		case OrderStatusCancelled:
			cancelled++
		}
	}

	switch {
	case processing > 0:
		return OrderStatusProcessing
	case delivered == len(statuses):
		return OrderStatusDelivered
	case cancelled == len(statuses):
		return OrderStatusCancelled
	case shipped > 0, delivered > 0:
		// delivered < len here, so any delivery is a partial one.
		return OrderStatusShipped
	default:
		return OrderStatusProcessing
	}
}
