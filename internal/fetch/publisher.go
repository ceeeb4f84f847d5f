package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Nussi649/ShellyManager/internal/infrastructure/kafka"
	"github.com/Nussi649/ShellyManager/internal/infrastructure/mqtt"
	"github.com/Nussi649/ShellyManager/internal/meter"
)

// Publisher mirrors the readings of a cycle to an external system.
type Publisher interface {
	// Name identifies the mirror in logs.
	Name() string

	// PublishCycle sends the cycle's readings. Called only for cycles
	// that produced at least one reading.
	PublishCycle(ctx context.Context, res CycleResult) error
}

// PointWriter is implemented by the InfluxDB and VictoriaMetrics clients.
type PointWriter interface {
	WriteCycle(ctx context.Context, cycleID string, at time.Time, readings []meter.Reading, absent int) error
}

// PointPublisher writes one energy point per reading and one cycle point.
type PointPublisher struct {
	name   string
	writer PointWriter
}

// NewPointPublisher wraps a time-series client as a mirror.
func NewPointPublisher(name string, w PointWriter) *PointPublisher {
	return &PointPublisher{name: name, writer: w}
}

// Name returns the mirror name.
func (p *PointPublisher) Name() string { return p.name }

// PublishCycle writes the cycle in one request, stamped with its finish time.
func (p *PointPublisher) PublishCycle(ctx context.Context, res CycleResult) error {
	return p.writer.WriteCycle(ctx, res.ID, res.FinishedAt, res.Readings, len(res.Absent))
}

// JSONPublisher is the part of the MQTT client the MQTT mirror uses.
type JSONPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// cycleMessage is the payload of the cycle summary topic.
type cycleMessage struct {
	CycleID    string    `json:"cycle_id"`
	FinishedAt time.Time `json:"finished_at"`
	Devices    int       `json:"devices"`
	Readings   int       `json:"readings"`
	Absent     []Absence `json:"absent,omitempty"`
	Summary    string    `json:"summary"`
	TotalWh    float64   `json:"total_wh"`
	Stored     bool      `json:"stored"`
}

// MQTTPublisher publishes each reading retained on its meter topic and a
// summary on the cycle topic.
type MQTTPublisher struct {
	client JSONPublisher
}

// NewMQTTPublisher creates the MQTT mirror.
func NewMQTTPublisher(client JSONPublisher) *MQTTPublisher {
	return &MQTTPublisher{client: client}
}

// Name returns the mirror name.
func (p *MQTTPublisher) Name() string { return "mqtt" }

// PublishCycle publishes every reading, then the summary. All readings are
// attempted even if some fail.
func (p *MQTTPublisher) PublishCycle(_ context.Context, res CycleResult) error {
	var errs []error
	for _, r := range res.Readings {
		if err := p.client.PublishJSON(mqtt.Topics{}.Reading(r.MeterName), r, true); err != nil {
			errs = append(errs, fmt.Errorf("reading %s: %w", r.MeterName, err))
		}
	}

	msg := cycleMessage{
		CycleID:    res.ID,
		FinishedAt: res.FinishedAt,
		Devices:    res.Devices,
		Readings:   len(res.Readings),
		Absent:     res.Absent,
		Summary:    res.Summary,
		TotalWh:    res.TotalWh,
		Stored:     res.Stored,
	}
	if err := p.client.PublishJSON(mqtt.Topics{}.Cycle(), msg, false); err != nil {
		errs = append(errs, fmt.Errorf("cycle summary: %w", err))
	}
	return errors.Join(errs...)
}

// MessagePublisher is the part of the Kafka producer the Kafka mirror uses.
type MessagePublisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher sends one message per reading keyed by meter name, so
// all readings of a meter land in the same partition.
type KafkaPublisher struct {
	producer MessagePublisher
}

// NewKafkaPublisher creates the Kafka mirror.
func NewKafkaPublisher(producer MessagePublisher) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

// Name returns the mirror name.
func (p *KafkaPublisher) Name() string { return "kafka" }

// kafkaReading is the Kafka message value.
type kafkaReading struct {
	CycleID        string  `json:"cycle_id"`
	MeterID        int64   `json:"meter_id"`
	MeterName      string  `json:"meter_name"`
	IntervalStart  string  `json:"interval_start"`
	StartUnix      int64   `json:"start_unix"`
	IntervalLength int64   `json:"interval_length"`
	ConsumptionWh  float64 `json:"consumption_wh"`
}

// PublishCycle writes the cycle's readings in one batch.
func (p *KafkaPublisher) PublishCycle(ctx context.Context, res CycleResult) error {
	msgs := make([]kafka.Message, 0, len(res.Readings))
	for _, r := range res.Readings {
		msgs = append(msgs, kafka.Message{
			Key: r.MeterName,
			Value: kafkaReading{
				CycleID:        res.ID,
				MeterID:        r.MeterID,
				MeterName:      r.MeterName,
				IntervalStart:  r.IntervalStart,
				StartUnix:      r.Start.Unix(),
				IntervalLength: r.IntervalLength,
				ConsumptionWh:  r.ConsumptionWh,
			},
			Time: r.Start,
		})
	}
	return p.producer.Publish(ctx, msgs...)
}
