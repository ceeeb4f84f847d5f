package kafka

import "errors"

// Sentinel errors for Kafka operations.
var (
	// ErrDisabled indicates Kafka integration is disabled in config.
	ErrDisabled = errors.New("kafka: disabled in configuration")

	// ErrClosed is returned when publishing on a closed producer.
	ErrClosed = errors.New("kafka: producer closed")

	// ErrPublishFailed wraps errors from the underlying writer.
	ErrPublishFailed = errors.New("kafka: publish failed")
)
