package signal

// Subscriber is the slice of the MQTT client the feed needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
}

// SubscribeFeed stores every message on topic as the latest feed text.
func SubscribeFeed(client Subscriber, topic string, qos byte, feed *Feed) error {
	return client.Subscribe(topic, qos, func(_ string, payload []byte) error {
		return feed.Set(string(payload))
	})
}
