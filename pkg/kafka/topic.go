package kafka

import "fmt"

// TopicPrefix prefixes every topic the service writes to.
const TopicPrefix = "gomarketplace"

// Topic returns the topic name for a domain action, e.g. "gomarketplace.cart.updated".
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}
