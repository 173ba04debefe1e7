package engine

import (
	"context"
	"time"

	"github.com/zjrosen/warden/internal/fleet"
	"github.com/zjrosen/warden/internal/log"
	"github.com/zjrosen/warden/internal/tracing"
)

// runScheduler evaluates every schedule once per tick until ctx ends.
func (e *Engine) runScheduler(ctx context.Context) {
	ticker := time.NewTicker(e.timings.ScheduleTick)
	defer ticker.Stop()

	log.Debug(log.CatScheduler, "schedule evaluator started", "tick", e.timings.ScheduleTick.String())
	for {
		select {
		case <-ctx.Done():
			log.Debug(log.CatScheduler, "schedule evaluator stopped")
			return
		case <-ticker.C:
			e.evaluateSchedules(ctx)
		}
	}
}

// evaluateSchedules applies the schedule policy once: start stopped
// profiles inside their window, stop running ones outside it. Profiles
// in Starting, Stopping, or Error are left to settle.
func (e *Engine) evaluateSchedules(ctx context.Context) {
	ctx, finish := tracing.StartOp(ctx, e.tracer, tracing.SpanScheduleTick)
	var err error
	defer func() { finish(err) }()

	var profiles []fleet.Profile
	profiles, err = e.profiles.List()
	if err != nil {
		log.ErrorErr(log.CatScheduler, "list profiles", err)
		return
	}
	var schedules []fleet.Schedule
	schedules, err = e.schedules.List()
	if err != nil {
		log.ErrorErr(log.CatScheduler, "list schedules", err)
		return
	}
	byName := make(map[string]*fleet.Schedule, len(schedules))
	for i := range schedules {
		byName[schedules[i].Name] = &schedules[i]
	}

	now := e.clock.LocalNow()
	for _, p := range profiles {
		if !p.ScheduleEnabled || p.Schedule == "" {
			continue
		}
		sched, ok := byName[p.Schedule]
		if !ok {
			log.Warn(log.CatScheduler, "schedule not found", "profile", p.Name, "schedule", p.Schedule)
			continue
		}
		rs, ok := e.store.Snapshot(p.Name)
		if !ok {
			continue
		}

		in := sched.Contains(now)
		switch {
		case in && rs.State == fleet.StateStopped:
			log.Info(log.CatScheduler, "window open, starting profile", "profile", p.Name, "schedule", p.Schedule)
			if serr := e.Start(ctx, p.Name); serr != nil {
				log.ErrorErr(log.CatScheduler, "scheduled start failed", serr, "profile", p.Name)
			}
		case !in && rs.State == fleet.StateRunning:
			log.Info(log.CatScheduler, "window closed, stopping profile", "profile", p.Name, "schedule", p.Schedule)
			if serr := e.Stop(ctx, p.Name, StopOptions{Reason: "outside schedule window"}); serr != nil {
				log.ErrorErr(log.CatScheduler, "scheduled stop failed", serr, "profile", p.Name)
			}
		}
	}
}
