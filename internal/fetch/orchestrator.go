package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Nussi649/ShellyManager/internal/infrastructure/logging"
	"github.com/Nussi649/ShellyManager/internal/meter"
)

const (
	defaultDeviceTimeout = 10 * time.Second
	defaultMirrorTimeout = 10 * time.Second
)

// Sink stores the results of a cycle.
type Sink interface {
	// InsertReadings stores all readings in one statement.
	InsertReadings(ctx context.Context, readings []meter.Reading) error

	// MarkFetched sets the meter's last-fetched time to the sink's now.
	MarkFetched(ctx context.Context, meterID int64) error
}

// Absence records a meter that produced no reading in a cycle.
type Absence struct {
	MeterID   int64  `json:"meter_id"`
	MeterName string `json:"meter_name"`
	Reason    string `json:"reason"`
}

// CycleResult describes one completed fetch cycle.
type CycleResult struct {
	ID         string          `json:"cycle_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Devices    int             `json:"devices"`
	Readings   []meter.Reading `json:"readings"`
	Absent     []Absence       `json:"absent,omitempty"`

	// Summary is "name=12.34Wh;" per reading, empty when nothing was read.
	Summary string  `json:"summary,omitempty"`
	TotalWh float64 `json:"total_wh"`

	// Stored reports whether InsertReadings succeeded.
	Stored bool `json:"stored"`
}

// Options configures an Orchestrator.
type Options struct {
	// Sink is where readings are stored. Required.
	Sink Sink

	// Location for interval_start. Defaults to UTC.
	Location *time.Location

	// DeviceTimeout bounds each CloseInterval call.
	DeviceTimeout time.Duration

	// MaxConcurrency limits parallel CloseInterval calls; 0 means unlimited.
	MaxConcurrency int

	// Publishers receive every cycle that produced readings.
	Publishers []Publisher

	// MirrorTimeout bounds each publisher. Mirrors run concurrently, so
	// this is also the longest a cycle waits on them.
	MirrorTimeout time.Duration

	Logger *logging.Logger

	// Now overrides the clock used for cycle timestamps.
	Now func() time.Time
}

// Orchestrator runs fetch cycles. It holds no per-cycle state and is safe
// for concurrent use, although the scheduler never runs two cycles at once.
type Orchestrator struct {
	opts   Options
	logger *logging.Logger
	now    func() time.Time
}

// NewOrchestrator creates an orchestrator from opts.
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.DeviceTimeout <= 0 {
		opts.DeviceTimeout = defaultDeviceTimeout
	}
	if opts.MirrorTimeout <= 0 {
		opts.MirrorTimeout = defaultMirrorTimeout
	}
	o := &Orchestrator{opts: opts, logger: opts.Logger, now: opts.Now}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

type outcome struct {
	reading *meter.IntervalReading
	err     error
}

// RunCycle closes the interval of every adapter, stores the readings,
// marks the meters fetched and publishes the cycle to the mirrors.
//
// Outcomes are matched to adapters by position. RunCycle never fails;
// everything that goes wrong is logged and reflected in the result.
func (o *Orchestrator) RunCycle(ctx context.Context, adapters []meter.Adapter) CycleResult {
	res := CycleResult{
		ID:        uuid.NewString(),
		StartedAt: o.now(),
		Devices:   len(adapters),
	}
	log := o.logger.ForCycle(res.ID)
	log.Info("closing intervals", "devices", len(adapters))

	if len(adapters) == 0 {
		res.FinishedAt = o.now()
		return res
	}

	outcomes := o.closeAll(ctx, adapters)

	var (
		fetched []int64
		summary strings.Builder
	)
	for i, a := range adapters {
		m := a.Meter()
		out := outcomes[i]

		if out.err != nil || out.reading == nil {
			reason := "no reading"
			if out.err != nil {
				reason = out.err.Error()
			}
			log.Warn("meter absent from cycle", "meter", m.Name, "reason", reason)
			res.Absent = append(res.Absent, Absence{MeterID: m.ID, MeterName: m.Name, Reason: reason})
			continue
		}

		r := out.reading
		res.Readings = append(res.Readings, meter.Reading{
			MeterID:        m.ID,
			MeterName:      m.Name,
			IntervalStart:  FormatIntervalStart(r.Timestamp, o.opts.Location),
			IntervalLength: r.Duration,
			ConsumptionWh:  r.Consumption,
			Start:          r.Start(),
		})
		fetched = append(fetched, m.ID)
		res.TotalWh += r.Consumption
		fmt.Fprintf(&summary, "%s=%.2fWh;", m.Name, r.Consumption)
	}

	if len(res.Readings) > 0 {
		if err := o.opts.Sink.InsertReadings(ctx, res.Readings); err != nil {
			log.Warn("storing readings failed", "meter_ids", fetched, "error", err)
		} else {
			res.Stored = true
			log.Info("readings stored", "count", len(res.Readings))
		}
	}

	for _, id := range fetched {
		if err := o.opts.Sink.MarkFetched(ctx, id); err != nil {
			log.Warn("marking meter fetched failed", "meter_id", id, "error", err)
		}
	}

	if summary.Len() > 0 {
		res.Summary = summary.String()
		log.Info("cycle summary", "summary", res.Summary, "total_wh", res.TotalWh)
	}
	res.FinishedAt = o.now()

	if len(res.Readings) > 0 {
		o.publish(ctx, log, res)
	}
	return res
}

// closeAll fans CloseInterval out to every adapter and waits for all of them.
func (o *Orchestrator) closeAll(ctx context.Context, adapters []meter.Adapter) []outcome {
	outcomes := make([]outcome, len(adapters))

	var g errgroup.Group
	if o.opts.MaxConcurrency > 0 {
		g.SetLimit(o.opts.MaxConcurrency)
	}
	for i, a := range adapters {
		i, a := i, a
		g.Go(func() error {
			outcomes[i] = o.closeOne(ctx, a)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers report through outcomes

	return outcomes
}

func (o *Orchestrator) closeOne(ctx context.Context, a meter.Adapter) (out outcome) {
	dctx, cancel := context.WithTimeout(ctx, o.opts.DeviceTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			out = outcome{err: fmt.Errorf("adapter panicked: %v", p)}
		}
	}()

	r, err := a.CloseInterval(dctx)
	return outcome{reading: r, err: err}
}

// publish hands the cycle to every mirror, each under its own deadline.
// A slow or unreachable mirror never delays the next boundary by more than
// MirrorTimeout.
func (o *Orchestrator) publish(ctx context.Context, log *logging.Logger, res CycleResult) {
	var g errgroup.Group
	for _, p := range o.opts.Publishers {
		p := p
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, o.opts.MirrorTimeout)
			defer cancel()

			defer func() {
				if r := recover(); r != nil {
					log.Error("mirror panicked", "mirror", p.Name(), "panic", r)
				}
			}()

			if err := p.PublishCycle(pctx, res); err != nil {
				log.Warn("mirror publish failed", "mirror", p.Name(), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // failures are logged per mirror
}
