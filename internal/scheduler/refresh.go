package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Nussi649/ShellyManager/internal/infrastructure/logging"
	"github.com/Nussi649/ShellyManager/internal/meter"
)

const defaultRefreshTimeout = 30 * time.Second

// RegistryRefresher is the part of *meter.Registry the Refresher drives.
type RegistryRefresher interface {
	Refresh(ctx context.Context, source meter.Source) error
}

// Refresher reloads the registry from its source on a cron schedule.
type Refresher struct {
	c        *cron.Cron
	registry RegistryRefresher
	source   meter.Source
	logger   *logging.Logger
	timeout  time.Duration
}

// NewRefresher schedules registry refreshes. spec is a standard 5-field
// cron expression or a descriptor such as "@every 5m".
//
// Overlapping runs are skipped rather than queued.
func NewRefresher(spec string, loc *time.Location, registry RegistryRefresher, source meter.Source, logger *logging.Logger) (*Refresher, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if loc == nil {
		loc = time.Local
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cl := cronLogger{logger}
	r := &Refresher{
		c: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		registry: registry,
		source:   source,
		logger:   logger,
		timeout:  defaultRefreshTimeout,
	}

	if _, err := r.c.AddFunc(spec, r.RunOnce); err != nil {
		return nil, fmt.Errorf("scheduling registry refresh %q: %w", spec, err)
	}
	return r, nil
}

// Start begins the cron schedule in its own goroutine.
func (r *Refresher) Start() {
	r.c.Start()
}

// Stop halts the schedule and waits for a running refresh, bounded by ctx.
func (r *Refresher) Stop(ctx context.Context) {
	select {
	case <-r.c.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce performs one refresh. Failures are logged by the registry.
func (r *Refresher) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.registry.Refresh(ctx, r.source); err != nil {
		r.logger.Warn("registry refresh skipped", "error", err)
	}
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	l *logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
