package orders

const (
	TopicOrderPlaced        = "order.placed"
	TopicOrderStatusChanged = "order.status.changed"
)

// Partition key = order number, so every event of one order stays ordered.
func PartitionKey(orderNumber string) []byte { return []byte(orderNumber) }
