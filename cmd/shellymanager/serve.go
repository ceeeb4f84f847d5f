package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Nussi649/ShellyManager/internal/fetch"
	"github.com/Nussi649/ShellyManager/internal/infrastructure/mqtt"
	"github.com/Nussi649/ShellyManager/internal/scheduler"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the quarter-hour scheduler until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), flags.configPath)
		},
	}
}

// serve runs the scheduler until ctx is cancelled, then stops it with a
// final flush and shuts everything down.
func serve(ctx context.Context, configPath string) error {
	a, err := newApp(ctx, configPath, appOptions{mirrors: true})
	if err != nil {
		return err
	}
	defer a.Close()

	a.log.Info("starting ShellyManager",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	if err := a.healthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	sched := scheduler.New(scheduler.Options{
		Cycle: func(ctx context.Context) fetch.CycleResult {
			return a.runCycle(ctx)
		},
		Logger:   a.log.ForComponent("scheduler"),
		OnStatus: a.publishSchedulerStatus,
	})

	if a.mqtt != nil {
		if err := a.mqtt.Subscribe(mqtt.Topics{}.SchedulerCommand(), byte(a.cfg.MQTT.QoS), schedulerCommandHandler(ctx, a, sched)); err != nil {
			return fmt.Errorf("subscribing to scheduler commands: %w", err)
		}
		a.publishSchedulerStatus(sched.Status())
	}

	if spec := strings.TrimSpace(a.cfg.Registry.RefreshSchedule); spec != "" {
		refresher, err := scheduler.NewRefresher(spec, a.cfg.Location(), a.registry, a.repo, a.log.ForComponent("refresh"))
		if err != nil {
			return fmt.Errorf("creating registry refresher: %w", err)
		}
		refresher.Start()
		defer refresher.Stop(context.WithoutCancel(ctx))
		a.log.Info("registry refresh scheduled", "schedule", spec)
	}

	if a.cfg.Scheduler.Autostart {
		sched.Start(context.WithoutCancel(ctx))
	} else {
		a.log.Info("scheduler idle until started")
	}

	a.log.Info("ShellyManager started successfully")

	<-ctx.Done()
	a.log.Info("shutdown signal received")

	if sched.Stop(context.WithoutCancel(ctx)) {
		if res, ok := sched.LastCycle(); ok {
			a.log.Info("final cycle flushed", "readings", len(res.Readings), "absent", len(res.Absent))
		}
	}

	a.log.Info("ShellyManager stopped")
	return nil
}

// schedulerCommandHandler accepts "start" and "stop" on the scheduler command
// topic. Commands run off the MQTT router goroutine since Stop runs a full
// cycle and MQTT-fed meters need their status messages meanwhile.
func schedulerCommandHandler(ctx context.Context, a *app, sched *scheduler.Scheduler) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		cmd := strings.ToLower(strings.TrimSpace(string(payload)))
		var run func()
		switch cmd {
		case "start":
			run = func() {
				if _, changed := sched.Start(context.WithoutCancel(ctx)); !changed {
					a.log.Debug("scheduler already armed")
				}
			}
		case "stop":
			run = func() {
				if !sched.Stop(context.WithoutCancel(ctx)) {
					a.log.Debug("scheduler already idle")
				}
			}
		default:
			return fmt.Errorf("unknown scheduler command %q", cmd)
		}
		a.log.Info("scheduler command received", "command", cmd)
		go run()
		return nil
	}
}

// publishSchedulerStatus mirrors the scheduler state to its retained topic.
func (a *app) publishSchedulerStatus(st scheduler.Status) {
	if a.mqtt == nil {
		return
	}
	if err := a.mqtt.PublishJSON(mqtt.Topics{}.Scheduler(), st, true); err != nil {
		a.log.Warn("publishing scheduler status failed", "error", err)
	}
}
