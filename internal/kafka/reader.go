package kafka

import "github.com/segmentio/kafka-go"

// NewReader builds a consumer-group reader. Offsets are committed
// explicitly by the caller via CommitMessages, never automatically.
func NewReader(brokers []string, groupID, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
}
