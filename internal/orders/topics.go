package orders

const (
	TopicNotifications = "order.notifications"
)

// Partition key = order number, so every message of one order keeps its order.
func PartitionKey(orderNumber string) []byte { return []byte(orderNumber) }
