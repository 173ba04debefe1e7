package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/warden/internal/cachemanager"
	"github.com/zjrosen/warden/internal/events"
	"github.com/zjrosen/warden/internal/fleet"
	"github.com/zjrosen/warden/internal/launch"
	"github.com/zjrosen/warden/internal/log"
	"github.com/zjrosen/warden/internal/pubsub"
	"github.com/zjrosen/warden/internal/tracing"
)

// Sentinel errors returned by facade operations. Precondition failures
// are refusals: no state changes before the error returns.
var (
	// ErrInvalidTransition marks an operation that needs a state edge
	// the machine does not allow.
	ErrInvalidTransition = errors.New("engine: invalid state transition")

	// ErrNotRunning marks an operation that needs a live process.
	ErrNotRunning = errors.New("engine: profile not running")

	// ErrNoKeysAvailable marks a rotation with no assignable credential.
	ErrNoKeysAvailable = errors.New("engine: no available keys")

	// ErrRemoteCaller marks a window operation from a non-local caller.
	ErrRemoteCaller = errors.New("engine: window operations are restricted to local callers")

	// ErrProfileActive marks a mutation that needs the profile inactive.
	ErrProfileActive = errors.New("engine: profile is active")

	// ErrNoKeyPool marks a key operation on a profile without a pool.
	ErrNoKeyPool = errors.New("engine: profile has no key pool")
)

// StopOptions tunes one stop request.
type StopOptions struct {
	// Force skips the transition precondition and the graceful grace:
	// the process is killed outright and the profile lands in Stopped
	// no matter what state it was in.
	Force bool

	// Reason is surfaced in the profile status while stopping, in logs,
	// and on the trace span.
	Reason string
}

// Config assembles an Engine. Repositories and the launcher are
// required; everything else has a production default.
type Config struct {
	Profiles  fleet.ProfileRepository
	KeyPools  fleet.KeyPoolRepository
	Schedules fleet.ScheduleRepository
	Settings  fleet.SettingsRepository

	Launcher launch.Launcher

	// Clock defaults to the system clock.
	Clock Clock

	// Timings defaults to the production constants; tests shrink them.
	Timings Timings

	// Tracer is optional; nil disables span creation.
	Tracer trace.Tracer

	// LocalCallerCheck gates window-visibility commands. Nil permits
	// every caller.
	LocalCallerCheck func() bool
}

// Engine is the orchestrator facade: the one public contract the
// daemon, the transport dispatcher, and event subscribers consume.
type Engine struct {
	profiles  fleet.ProfileRepository
	keyPools  fleet.KeyPoolRepository
	schedules fleet.ScheduleRepository
	settings  fleet.SettingsRepository

	store    *Store
	alloc    *Allocator
	bus      *pubsub.Broker[events.Event]
	launcher launch.Launcher
	clock    Clock
	timings  Timings
	tracer   trace.Tracer
	cache    *cachemanager.InMemoryCacheManager[string, string]
	tokens   *tokenIndex
	ring     *Ring[events.Event]

	// keyMu serializes credential selection and assignment so two
	// preflights can never claim the same key.
	keyMu sync.Mutex

	localCaller func() bool
	runOnce     sync.Once
}

// NewEngine validates cfg, loads the persisted profiles into the
// runtime store, and returns a ready engine. Run starts the background
// tasks.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Profiles == nil || cfg.KeyPools == nil || cfg.Schedules == nil || cfg.Settings == nil {
		return nil, errors.New("engine: all repositories are required")
	}
	if cfg.Launcher == nil {
		return nil, errors.New("engine: launcher is required")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = RealClock{}
	}

	e := &Engine{
		profiles:    cfg.Profiles,
		keyPools:    cfg.KeyPools,
		schedules:   cfg.Schedules,
		settings:    cfg.Settings,
		store:       NewStore(),
		alloc:       NewAllocator(),
		bus:         pubsub.NewBroker[events.Event](),
		launcher:    cfg.Launcher,
		clock:       clock,
		timings:     cfg.Timings.withDefaults(),
		tracer:      cfg.Tracer,
		cache:       cachemanager.NewInMemoryCacheManager[string, string]("runtime-kv", cachemanager.NoExpiration, cachemanager.DefaultCleanupInterval),
		tokens:      newTokenIndex(),
		ring:        NewRing[events.Event](LogRingCapacity),
		localCaller: cfg.LocalCallerCheck,
	}

	list, err := cfg.Profiles.List()
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	for _, p := range list {
		e.store.Register(p.Name)
	}
	return e, nil
}

// Run starts the schedule evaluator and the log-line forwarder. It
// returns immediately; the tasks stop when ctx is cancelled. Calling
// Run more than once is a no-op.
func (e *Engine) Run(ctx context.Context) {
	e.runOnce.Do(func() {
		log.SafeGo("engine-scheduler", func() { e.runScheduler(ctx) })
		log.SafeGo("engine-log-forward", func() { e.forwardLogLines(ctx) })
	})
}

// Shutdown stops every profile and closes the event bus. Subscribers
// see their streams end cleanly.
func (e *Engine) Shutdown(ctx context.Context) error {
	err := e.StopAll(ctx)
	e.bus.Close()
	return err
}

// Start moves a stopped or errored profile to Starting and spawns its
// supervision task.
func (e *Engine) Start(ctx context.Context, name string) error {
	ctx, finish := tracing.StartOp(ctx, e.tracer, tracing.SpanEngineStart,
		attribute.String(tracing.AttrProfileName, name))
	var err error
	defer func() { finish(err) }()

	if _, err = e.profiles.GetByName(name); err != nil {
		return err
	}
	e.store.Register(name)

	if !e.store.TryTransition(name, fleet.StateStarting) {
		rs, _ := e.store.Snapshot(name)
		err = fmt.Errorf("start %q from %s: %w", name, rs.State, ErrInvalidTransition)
		return err
	}
	e.store.Update(name, func(rs *fleet.RuntimeState) {
		rs.Status = ""
		rs.Pid = 0
		rs.StartedAt = time.Time{}
		rs.LastHeartbeat = time.Time{}
		rs.MissedHeartbeats = 0
	})
	e.publishStateChanged(name, nil)
	log.Info(log.CatEngine, "profile starting", "profile", name)

	runCtx, cancel := context.WithCancel(context.Background())
	e.store.Arm(name, cancel)
	log.SafeGo("supervise-"+name, func() {
		defer cancel()
		e.superviseRun(runCtx, name)
	})
	return nil
}

// Stop ends a profile's run and performs the full cleanup: cancel the
// supervision task, terminate the process, release the credential,
// clear the record. Stopping an already-stopped profile succeeds.
func (e *Engine) Stop(ctx context.Context, name string, opts StopOptions) error {
	ctx, finish := tracing.StartOp(ctx, e.tracer, tracing.SpanEngineStop,
		attribute.String(tracing.AttrProfileName, name),
		attribute.Bool(tracing.AttrStopForce, opts.Force),
		attribute.String(tracing.AttrStopReason, opts.Reason))
	var err error
	defer func() { finish(err) }()

	rs, ok := e.store.Snapshot(name)
	if !ok {
		err = &fleet.ProfileNotFoundError{Name: name}
		return err
	}
	if rs.State == fleet.StateStopped || rs.State == fleet.StateStopping {
		return nil
	}

	if opts.Force {
		e.store.ForceState(name, fleet.StateStopping)
	} else if !e.store.TryTransition(name, fleet.StateStopping) {
		rs, _ = e.store.Snapshot(name)
		err = fmt.Errorf("stop %q from %s: %w", name, rs.State, ErrInvalidTransition)
		return err
	}
	if opts.Reason != "" {
		e.store.Update(name, func(rs *fleet.RuntimeState) { rs.Status = opts.Reason })
	}
	e.publishStateChanged(name, nil)
	log.Info(log.CatEngine, "profile stopping", "profile", name, "force", opts.Force, "reason", opts.Reason)

	e.store.CancelRun(name)

	if handle, ok := e.store.Handle(name); ok {
		grace := e.timings.GracefulStopTimeout
		if opts.Force {
			grace = 0
		}
		// Cleanup must finish even if the caller gives up waiting.
		termCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace+e.timings.GracefulStopTimeout)
		if terr := e.launcher.Terminate(termCtx, handle, grace); terr != nil {
			log.ErrorErr(log.CatEngine, "terminate failed", terr, "profile", name)
		}
		cancel()
	}

	e.settle(name)
	log.Info(log.CatEngine, "profile stopped", "profile", name)
	return nil
}

// Restart stops a profile and starts it again. The fresh run
// re-acquires a credential, so the pool cursor naturally rotates.
func (e *Engine) Restart(ctx context.Context, name string) error {
	if err := e.Stop(ctx, name, StopOptions{Reason: "restart"}); err != nil {
		return err
	}
	return e.Start(ctx, name)
}

// StartAll starts every startable profile in display order, waiting
// the configured stagger between launches. Failures are aggregated.
func (e *Engine) StartAll(ctx context.Context) error {
	ctx, finish := tracing.StartOp(ctx, e.tracer, tracing.SpanEngineStartAll)
	var err error
	defer func() { finish(err) }()

	list, lerr := e.profiles.List()
	if lerr != nil {
		err = lerr
		return err
	}

	stagger := time.Duration(0)
	if s, serr := e.settings.Get(); serr == nil {
		stagger = time.Duration(s.LaunchStaggerSeconds) * time.Second
	}

	var errs []error
	started := false
	for _, p := range list {
		rs, ok := e.store.Snapshot(p.Name)
		if !ok || rs.State.IsActive() {
			continue
		}
		if started && stagger > 0 {
			select {
			case <-ctx.Done():
				errs = append(errs, ctx.Err())
				err = errors.Join(errs...)
				return err
			case <-time.After(stagger):
			}
		}
		if serr := e.Start(ctx, p.Name); serr != nil {
			errs = append(errs, fmt.Errorf("start %q: %w", p.Name, serr))
			continue
		}
		started = true
	}
	err = errors.Join(errs...)
	return err
}

// StopAll stops every profile that is not already stopped, in
// parallel. Failures are aggregated per profile.
func (e *Engine) StopAll(ctx context.Context) error {
	ctx, finish := tracing.StartOp(ctx, e.tracer, tracing.SpanEngineStopAll)
	var err error
	defer func() { finish(err) }()

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for name, rs := range e.store.SnapshotAll() {
		if rs.State == fleet.StateStopped {
			continue
		}
		wg.Add(1)
		log.SafeGo("stop-"+name, func() {
			defer wg.Done()
			if serr := e.Stop(ctx, name, StopOptions{Reason: "stop all"}); serr != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("stop %q: %w", name, serr))
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	err = errors.Join(errs...)
	return err
}

// RotateKey swaps a running profile's credential for the next free one
// in its pool. When no other credential is free the current assignment
// is kept and the rotation refused.
func (e *Engine) RotateKey(ctx context.Context, name string) error {
	ctx, finish := tracing.StartOp(ctx, e.tracer, tracing.SpanRotateKey,
		attribute.String(tracing.AttrProfileName, name))
	var err error
	defer func() { finish(err) }()

	p, perr := e.profiles.GetByName(name)
	if perr != nil {
		err = perr
		return err
	}
	if p.KeyPool == "" {
		err = fmt.Errorf("rotate %q: %w", name, ErrNoKeyPool)
		return err
	}
	rs, ok := e.store.Snapshot(name)
	if !ok || rs.State != fleet.StateRunning {
		err = fmt.Errorf("rotate %q: %w", name, ErrNotRunning)
		return err
	}
	pool, perr := e.keyPools.GetByName(p.KeyPool)
	if perr != nil {
		err = perr
		return err
	}

	// The current key stays in the in-use set during selection, so the
	// rotation can only land on a different credential. On refusal the
	// current assignment is untouched.
	key, acquired, assigned := e.acquireKey(*pool, name, fleet.StateRunning)
	if !acquired {
		err = fmt.Errorf("rotate %q: %w", name, ErrNoKeysAvailable)
		return err
	}
	if !assigned {
		err = fmt.Errorf("rotate %q: %w", name, ErrNotRunning)
		return err
	}
	e.publishStateChanged(name, nil)
	e.publishKeyPools()
	log.Info(log.CatKeyPool, "credential rotated", "profile", name, "pool", pool.Name, "key", key.Name)
	return nil
}

// ReleaseKey clears a profile's credential assignment. It succeeds
// whether or not a credential was assigned.
func (e *Engine) ReleaseKey(ctx context.Context, name string) error {
	if _, ok := e.store.Snapshot(name); !ok {
		return &fleet.ProfileNotFoundError{Name: name}
	}
	released := false
	e.store.Update(name, func(rs *fleet.RuntimeState) {
		released = rs.KeyName != ""
		rs.KeyName = ""
	})
	if released {
		e.publishStateChanged(name, nil)
		e.publishKeyPools()
		log.Info(log.CatKeyPool, "credential released", "profile", name)
	}
	return nil
}

// ResetStats zeroes a profile's persisted counters.
func (e *Engine) ResetStats(ctx context.Context, name string) error {
	p, err := e.profiles.GetByName(name)
	if err != nil {
		return err
	}
	p.Counters = fleet.Counters{}
	if err := e.profiles.Update(p); err != nil {
		return err
	}
	e.publishStateChanged(name, p)
	log.Info(log.CatEngine, "stats reset", "profile", name)
	return nil
}

// ShowWindow makes a running profile's window visible at its stored
// placement and persists the preference.
func (e *Engine) ShowWindow(ctx context.Context, name string) error {
	return e.setWindowVisible(ctx, name, true)
}

// HideWindow hides a running profile's window and persists the
// preference. Only local callers may hide windows.
func (e *Engine) HideWindow(ctx context.Context, name string) error {
	if e.localCaller != nil && !e.localCaller() {
		return ErrRemoteCaller
	}
	return e.setWindowVisible(ctx, name, false)
}

func (e *Engine) setWindowVisible(ctx context.Context, name string, visible bool) error {
	p, err := e.profiles.GetByName(name)
	if err != nil {
		return err
	}
	handle, ok := e.store.Handle(name)
	if !ok {
		return fmt.Errorf("window %q: %w", name, ErrNotRunning)
	}
	if visible {
		err = e.launcher.ShowWindow(handle, p.Window)
	} else {
		err = e.launcher.HideWindow(handle)
	}
	if err != nil {
		return err
	}
	e.store.Update(name, func(rs *fleet.RuntimeState) { rs.WindowVisible = visible })

	p.Visible = visible
	if uerr := e.profiles.Update(p); uerr != nil {
		log.ErrorErr(log.CatEngine, "persist window visibility", uerr, "profile", name)
	}
	e.publishStateChanged(name, p)
	return nil
}

// SetScheduleEnabled persists the schedule flag and publishes the full
// profile so observers see the change immediately.
func (e *Engine) SetScheduleEnabled(ctx context.Context, name string, enabled bool) error {
	p, err := e.profiles.GetByName(name)
	if err != nil {
		return err
	}
	if p.ScheduleEnabled == enabled {
		return nil
	}
	p.ScheduleEnabled = enabled
	if err := e.profiles.Update(p); err != nil {
		return err
	}
	e.publishStateChanged(name, p)
	log.Info(log.CatEngine, "schedule flag changed", "profile", name, "enabled", enabled)
	return nil
}

// Reorder moves a profile to a new index in the display ordering,
// optionally assigning a new group in the same write.
func (e *Engine) Reorder(ctx context.Context, name string, index int, group string) error {
	if err := e.profiles.MoveToIndex(name, index, group); err != nil {
		return err
	}
	e.publishProfiles()
	return nil
}

// BroadcastMessage sends one operator payload to every running
// profile. Per-profile failures are logged, not returned.
func (e *Engine) BroadcastMessage(ctx context.Context, payload string) error {
	for name, rs := range e.store.SnapshotAll() {
		if rs.State != fleet.StateRunning {
			continue
		}
		handle, ok := e.store.Handle(name)
		if !ok {
			continue
		}
		if err := e.launcher.SendMessage(handle, launch.MsgOperator, payload); err != nil {
			log.ErrorErr(log.CatEngine, "broadcast send failed", err, "profile", name)
		}
	}
	return nil
}

// SendMessage sends one operator payload to a single running profile.
func (e *Engine) SendMessage(ctx context.Context, name, payload string) error {
	handle, ok := e.store.Handle(name)
	if !ok {
		return fmt.Errorf("send %q: %w", name, ErrNotRunning)
	}
	return e.launcher.SendMessage(handle, launch.MsgOperator, payload)
}

// SubscribeEvents opens an event stream. The first four events are the
// profiles, key-pools, schedules, and settings snapshots taken at the
// subscription point; every later event follows in publish order.
func (e *Engine) SubscribeEvents(ctx context.Context) *pubsub.Subscription[events.Event] {
	return e.bus.SubscribeSeeded(ctx, func() []events.Event {
		return []events.Event{
			e.profilesSnapshotEvent(),
			e.keyPoolsSnapshotEvent(),
			e.schedulesSnapshotEvent(),
			e.settingsSnapshotEvent(),
		}
	})
}

// RecentLogs returns up to n of the most recent log events, oldest
// first.
func (e *Engine) RecentLogs(n int) []events.Event {
	return e.ring.LastN(n)
}

// RuntimeState returns a copy of one profile's live supervision record.
func (e *Engine) RuntimeState(name string) (fleet.RuntimeState, bool) {
	return e.store.Snapshot(name)
}

// ListProfiles returns the persisted profiles in display order.
func (e *Engine) ListProfiles() ([]fleet.Profile, error) {
	return e.profiles.List()
}

// Reload syncs the runtime store with persistence and republishes all
// snapshots. The file watcher calls this when the database or config
// changes outside the engine.
func (e *Engine) Reload(ctx context.Context, kind string) error {
	list, err := e.profiles.List()
	if err != nil {
		return fmt.Errorf("reload profiles: %w", err)
	}
	names := make(map[string]struct{}, len(list))
	for _, p := range list {
		names[p.Name] = struct{}{}
		e.store.Register(p.Name)
	}
	for name, rs := range e.store.SnapshotAll() {
		if _, ok := names[name]; ok {
			continue
		}
		if rs.State.IsActive() {
			continue
		}
		e.store.Deregister(name)
	}

	e.publish(events.New(events.EventEntitiesChanged, events.EntitiesChangedPayload{Kind: kind}))
	e.publishProfiles()
	e.publishKeyPools()
	e.publishSchedules()
	e.publishSettings()
	log.Info(log.CatEngine, "entities reloaded", "kind", kind)
	return nil
}

// acquireKey atomically selects a credential and records the
// assignment, provided the profile is still in mustBe when the
// assignment lands. acquired reports whether a free credential
// existed; assigned reports whether it was bound to the profile.
// RotateKey relies on the old assignment staying visible in the
// in-use set during selection.
func (e *Engine) acquireKey(pool fleet.KeyPool, profile string, mustBe fleet.State) (key fleet.Credential, acquired, assigned bool) {
	e.keyMu.Lock()
	defer e.keyMu.Unlock()

	key, acquired = e.alloc.Acquire(pool, e.store.KeysInUse())
	if !acquired {
		return fleet.Credential{}, false, false
	}
	e.store.Update(profile, func(rs *fleet.RuntimeState) {
		if rs.State == mustBe {
			rs.KeyName = key.Name
			assigned = true
		}
	})
	return key, acquired, assigned
}

// settle clears the runtime record once the process is gone and lands
// the profile in Stopped, publishing the final events.
func (e *Engine) settle(name string) {
	hadKey := false
	e.store.Update(name, func(rs *fleet.RuntimeState) {
		hadKey = rs.KeyName != ""
		rs.Status = ""
		rs.Pid = 0
		rs.StartedAt = time.Time{}
		rs.LastHeartbeat = time.Time{}
		rs.CrashCount = 0
		rs.MissedHeartbeats = 0
		rs.KeyName = ""
		rs.WindowVisible = false
	})
	e.store.ClearHandle(name)
	e.tokens.unbindProfile(name)
	e.store.TryTransition(name, fleet.StateStopped)
	e.publishStateChanged(name, nil)
	if hadKey {
		e.publishKeyPools()
	}
}

// forwardLogLines republishes the process-wide log stream as events so
// subscribers can render a console.
func (e *Engine) forwardLogLines(ctx context.Context) {
	sub := log.Lines(ctx)
	if sub == nil {
		return
	}
	defer sub.Close()
	for line := range sub.C {
		e.publish(events.New(events.EventLogLine, events.LogLinePayload{Source: "warden", Content: line}))
	}
}

// publish sends one event to the bus, retaining log lines in the ring
// for RecentLogs backfill.
func (e *Engine) publish(ev events.Event) {
	if ev.Type == events.EventLogLine {
		e.ring.Append(ev)
	}
	e.bus.Publish(ev)
}

// publishStateChanged snapshots the profile's runtime record and
// publishes it, attaching the full profile when the change was a
// profile mutation.
func (e *Engine) publishStateChanged(name string, profile *fleet.Profile) {
	rs, ok := e.store.Snapshot(name)
	if !ok {
		return
	}
	ev := events.New(events.EventProfileStateChanged, events.StateChangedPayload{Runtime: rs, Profile: profile})
	e.publish(ev.WithProfile(name, rs.State))
}

func (e *Engine) profilesSnapshotEvent() events.Event {
	list, err := e.profiles.List()
	if err != nil {
		log.ErrorErr(log.CatEngine, "list profiles for snapshot", err)
	}
	statuses := make([]events.ProfileStatus, 0, len(list))
	for _, p := range list {
		rs, _ := e.store.Snapshot(p.Name)
		statuses = append(statuses, events.ProfileStatus{Profile: p, Runtime: rs})
	}
	return events.New(events.EventProfilesSnapshot, events.ProfilesSnapshotPayload{Profiles: statuses})
}

func (e *Engine) keyPoolsSnapshotEvent() events.Event {
	pools, err := e.keyPools.List()
	if err != nil {
		log.ErrorErr(log.CatEngine, "list key pools for snapshot", err)
	}
	return events.New(events.EventKeyPoolsSnapshot, events.KeyPoolsSnapshotPayload{
		Pools: pools,
		InUse: e.store.KeysInUse(),
	})
}

func (e *Engine) schedulesSnapshotEvent() events.Event {
	schedules, err := e.schedules.List()
	if err != nil {
		log.ErrorErr(log.CatEngine, "list schedules for snapshot", err)
	}
	return events.New(events.EventSchedulesSnapshot, events.SchedulesSnapshotPayload{Schedules: schedules})
}

func (e *Engine) settingsSnapshotEvent() events.Event {
	settings, err := e.settings.Get()
	if err != nil {
		log.ErrorErr(log.CatEngine, "load settings for snapshot", err)
	}
	return events.New(events.EventSettingsSnapshot, events.SettingsSnapshotPayload{Settings: settings})
}

func (e *Engine) publishProfiles()  { e.publish(e.profilesSnapshotEvent()) }
func (e *Engine) publishKeyPools()  { e.publish(e.keyPoolsSnapshotEvent()) }
func (e *Engine) publishSchedules() { e.publish(e.schedulesSnapshotEvent()) }
func (e *Engine) publishSettings()  { e.publish(e.settingsSnapshotEvent()) }
