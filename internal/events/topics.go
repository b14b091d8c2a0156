package events

// Topic constants for domain events emitted by the service.
const (
	TopicSaleCreated   = "sale.created"
	TopicStockExpiring = "stock.expiring"
	TopicStockLow      = "stock.low"
)

// DefaultTopics returns the canonical list of topics.
func DefaultTopics() []string {
	return []string{
		TopicSaleCreated,
		TopicStockExpiring,
		TopicStockLow,
	}
}

// KnownTopic reports whether topic is one of DefaultTopics.
func KnownTopic(topic string) bool {
	for _, t := range DefaultTopics() {
		if t == topic {
			return true
		}
	}
	return false
}
