// Package kafka mirrors closed energy intervals to a Kafka topic.
//
// Each reading becomes one message keyed by meter name, so a consumer that
// partitions by key sees every meter's intervals in order. Values are JSON.
//
//	producer, err := kafka.Connect(cfg.Kafka)
//	if err != nil {
//	    return err
//	}
//	defer producer.Close()
//
//	err = producer.Publish(ctx, kafka.Message{Key: "kitchen", Value: reading, Time: start})
package kafka
