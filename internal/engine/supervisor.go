package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/warden/internal/fleet"
	"github.com/zjrosen/warden/internal/launch"
	"github.com/zjrosen/warden/internal/log"
	"github.com/zjrosen/warden/internal/tracing"
)

// tokenIndex maps reply tokens to profile names and back. Frames carry
// only the token; ingestion resolves the sender here. The lock is held
// only across map access.
type tokenIndex struct {
	mu        sync.Mutex
	byToken   map[string]string
	byProfile map[string]string
}

func newTokenIndex() *tokenIndex {
	return &tokenIndex{
		byToken:   make(map[string]string),
		byProfile: make(map[string]string),
	}
}

func (t *tokenIndex) bind(token, profile string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.byProfile[profile]; ok {
		delete(t.byToken, old)
	}
	t.byToken[token] = profile
	t.byProfile[profile] = token
}

func (t *tokenIndex) profileFor(token string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	profile, ok := t.byToken[token]
	return profile, ok
}

func (t *tokenIndex) tokenFor(profile string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	token, ok := t.byProfile[profile]
	return token, ok
}

func (t *tokenIndex) unbindProfile(profile string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if token, ok := t.byProfile[profile]; ok {
		delete(t.byToken, token)
		delete(t.byProfile, profile)
	}
}

// superviseRun is one profile's supervision task: preflight, launch,
// monitor, and crash recovery, looping until the run ends or the task
// is cancelled. It starts with the profile already in Starting.
func (e *Engine) superviseRun(ctx context.Context, name string) {
	defer func() {
		if r := recover(); r != nil {
			e.store.ForceState(name, fleet.StateError)
			e.store.Update(name, func(rs *fleet.RuntimeState) {
				rs.Status = fmt.Sprintf("supervision panic: %v", r)
			})
			e.publishStateChanged(name, nil)
			log.Error(log.CatSupervisor, "supervision panicked", "profile", name, "panic", fmt.Sprintf("%v", r))
		}
	}()

	for {
		crashed, detail := e.runAttempt(ctx, name)
		if !crashed {
			return
		}
		if !e.recoverCrash(ctx, name, detail) {
			return
		}
	}
}

// runAttempt performs one launch-and-monitor cycle. It returns crashed
// when the run failed and the retry policy should decide; otherwise
// the run ended for good (clean exit, terminal preflight failure, or
// an out-of-band stop that owns the cleanup).
func (e *Engine) runAttempt(ctx context.Context, name string) (crashed bool, detail string) {
	p, cred, ok := e.preflight(ctx, name)
	if !ok {
		return false, ""
	}

	handle, token, err := e.launchProcess(ctx, name, p, cred)
	if err != nil {
		if ctx.Err() != nil {
			return false, ""
		}
		return true, "launch failed: " + err.Error()
	}

	e.store.Update(name, func(rs *fleet.RuntimeState) {
		rs.Pid = handle.Pid()
		rs.StartedAt = e.clock.Now()
		rs.LastHeartbeat = time.Time{}
		rs.MissedHeartbeats = 0
	})

	// A process that dies before reaching Running does not earn the
	// crash-count reset, so immediate crashers exhaust their retries.
	if handle.Exited() {
		e.tokens.unbindProfile(name)
		return true, fmt.Sprintf("crashed (exit %d)", handle.ExitCode())
	}

	if !e.store.TryTransition(name, fleet.StateRunning) {
		// A stop raced the launch and is settling the record; the
		// process is ours to reap.
		termCtx, cancel := context.WithTimeout(context.Background(), 2*e.timings.GracefulStopTimeout)
		if terr := e.launcher.Terminate(termCtx, handle, 0); terr != nil {
			log.ErrorErr(log.CatSupervisor, "reap raced launch", terr, "profile", name)
		}
		cancel()
		e.tokens.unbindProfile(name)
		return false, ""
	}
	e.store.BindHandle(name, handle)
	e.store.Update(name, func(rs *fleet.RuntimeState) {
		rs.CrashCount = 0
		rs.Status = ""
	})
	e.publishStateChanged(name, nil)
	log.Info(log.CatSupervisor, "profile running", "profile", name, "pid", handle.Pid())

	return e.monitor(ctx, name, handle, token)
}

// preflight re-reads the profile and acquires a credential when the
// profile is bound to a pool. A missing pool or an exhausted pool is a
// terminal failure for this start: the profile lands in Error and the
// task ends without retries.
func (e *Engine) preflight(ctx context.Context, name string) (*fleet.Profile, *fleet.Credential, bool) {
	_, finish := tracing.StartOp(ctx, e.tracer, tracing.SpanSupervisePreflight,
		attribute.String(tracing.AttrProfileName, name))
	var err error
	defer func() { finish(err) }()

	p, err := e.profiles.GetByName(name)
	if err != nil {
		e.failStart(name, "profile missing from store")
		return nil, nil, false
	}
	if p.KeyPool == "" {
		return p, nil, true
	}

	pool, perr := e.keyPools.GetByName(p.KeyPool)
	if perr != nil {
		// A dangling pool reference counts as no credential.
		err = perr
		e.failStart(name, "no available keys")
		return nil, nil, false
	}
	key, acquired, assigned := e.acquireKey(*pool, name, fleet.StateStarting)
	if !acquired {
		err = fmt.Errorf("pool %q exhausted", pool.Name)
		e.failStart(name, "no available keys")
		return nil, nil, false
	}
	if !assigned {
		// The profile left Starting while we were selecting; whoever
		// moved it owns the record.
		return nil, nil, false
	}
	e.publishKeyPools()
	log.Info(log.CatKeyPool, "credential assigned", "profile", name, "pool", pool.Name, "key", key.Name)
	return p, &key, true
}

// launchProcess starts the external process with a fresh reply token.
func (e *Engine) launchProcess(ctx context.Context, name string, p *fleet.Profile, cred *fleet.Credential) (launch.Handle, string, error) {
	attrs := []attribute.KeyValue{attribute.String(tracing.AttrProfileName, name)}
	if cred != nil {
		attrs = append(attrs,
			attribute.String(tracing.AttrKeyPool, p.KeyPool),
			attribute.String(tracing.AttrKeyName, cred.Name))
	}
	ctx, finish := tracing.StartOp(ctx, e.tracer, tracing.SpanSuperviseLaunch, attrs...)
	var err error
	defer func() { finish(err) }()

	token := uuid.NewString()
	e.tokens.bind(token, name)

	launchCtx, cancel := context.WithTimeout(ctx, e.timings.LaunchReadyTimeout)
	defer cancel()

	handle, err := e.launcher.Launch(launchCtx, launch.Config{
		Profile:    name,
		Executable: p.Executable,
		Args:       p.Args,
		GamePath:   e.gamePath(p),
		Key:        cred,
		ReplyToken: token,
		Window:     p.Window,
		Visible:    p.Visible,
	})
	if err != nil {
		e.tokens.unbindProfile(name)
		return nil, "", err
	}
	log.Info(log.CatLaunch, "process launched", "profile", name, "pid", handle.Pid())
	return handle, token, nil
}

// monitor watches a running process: exit detection every poll, and
// heartbeat surveillance at the coarser cadence. It returns crashed
// for a non-zero exit; clean exits and forced stops settle here.
func (e *Engine) monitor(ctx context.Context, name string, handle launch.Handle, token string) (bool, string) {
	_, finish := tracing.StartOp(ctx, e.tracer, tracing.SpanSuperviseMonitor,
		attribute.String(tracing.AttrProfileName, name),
		attribute.Int(tracing.AttrPid, handle.Pid()))
	defer finish(nil)

	ticker := time.NewTicker(e.timings.MonitorPollInterval)
	defer ticker.Stop()

	lastSurveillance := e.clock.Now()
	for {
		select {
		case <-ctx.Done():
			return false, ""
		case <-ticker.C:
		}

		if handle.Exited() {
			code := handle.ExitCode()
			if code == 0 {
				e.finishRun(name)
				return false, ""
			}
			return true, fmt.Sprintf("crashed (exit %d)", code)
		}

		now := e.clock.Now()
		if now.Sub(lastSurveillance) < e.timings.HeartbeatPollInterval {
			continue
		}
		lastSurveillance = now

		if e.surveil(name, handle, token, now) {
			if err := e.Stop(ctx, name, StopOptions{Force: true, Reason: "missed heartbeats"}); err != nil {
				log.ErrorErr(log.CatSupervisor, "surveillance stop failed", err, "profile", name)
			}
			return false, ""
		}
	}
}

// surveil runs one heartbeat check. A runtime that has never beaten
// gets nudged with the reply token; a stale one gets nudged and a miss
// counted. True means the miss budget is spent and the run must stop.
func (e *Engine) surveil(name string, handle launch.Handle, token string, now time.Time) bool {
	nudge := false
	missed := 0
	counted := false
	e.store.Update(name, func(rs *fleet.RuntimeState) {
		nudge = rs.LastHeartbeat.IsZero()
		base := rs.StartedAt
		if rs.LastHeartbeat.After(base) {
			base = rs.LastHeartbeat
		}
		if now.Sub(base) > e.timings.HeartbeatTimeout {
			nudge = true
			counted = true
			rs.MissedHeartbeats++
			missed = rs.MissedHeartbeats
		}
	})

	if nudge {
		if err := e.launcher.SendMessage(handle, launch.MsgAnnounce, token); err != nil {
			log.Debug(log.CatSupervisor, "nudge failed", "profile", name, "error", err.Error())
		}
	}
	if !counted {
		return false
	}
	e.publishStateChanged(name, nil)
	log.Warn(log.CatSupervisor, "heartbeat missed", "profile", name, "missed", missed)
	return missed >= MaxMissedHeartbeats
}

// finishRun settles a voluntary zero exit. Nobody is stopping the
// profile, so the task clears its own record.
func (e *Engine) finishRun(name string) {
	if !e.store.TryTransition(name, fleet.StateStopping) {
		// A stop raced the exit and owns the cleanup.
		return
	}
	e.publishStateChanged(name, nil)
	e.store.CancelRun(name)
	e.settle(name)
	log.Info(log.CatSupervisor, "profile finished", "profile", name)
}

// failStart records a terminal start failure: Error state, explanatory
// status, no retries.
func (e *Engine) failStart(name, status string) {
	e.store.Update(name, func(rs *fleet.RuntimeState) { rs.Status = status })
	e.store.TryTransition(name, fleet.StateError)
	e.publishStateChanged(name, nil)
	log.Warn(log.CatSupervisor, "start failed", "profile", name, "status", status)
}

// recoverCrash applies the retry policy after a failed run: bump the
// persistent crash counter, release the credential, and either back
// off and relaunch or exhaust into Error with the schedule disabled.
// True means relaunch.
func (e *Engine) recoverCrash(ctx context.Context, name, detail string) bool {
	if ctx.Err() != nil {
		// The exit was a stop's kill, not a crash.
		return false
	}

	_, finish := tracing.StartOp(ctx, e.tracer, tracing.SpanSuperviseRecover,
		attribute.String(tracing.AttrProfileName, name))
	defer finish(nil)

	if p, err := e.profiles.GetByName(name); err == nil {
		p.Counters.Crashes++
		if uerr := e.profiles.Update(p); uerr != nil {
			log.ErrorErr(log.CatSupervisor, "persist crash counter", uerr, "profile", name)
		}
	}

	hadKey := false
	crashCount := 0
	e.store.Update(name, func(rs *fleet.RuntimeState) {
		hadKey = rs.KeyName != ""
		rs.KeyName = ""
		rs.Pid = 0
		rs.LastHeartbeat = time.Time{}
		rs.MissedHeartbeats = 0
		rs.CrashCount++
		crashCount = rs.CrashCount
		rs.Status = detail
	})
	e.store.ClearHandle(name)
	e.tokens.unbindProfile(name)
	e.store.TryTransition(name, fleet.StateError)
	e.publishStateChanged(name, nil)
	if hadKey {
		e.publishKeyPools()
	}
	log.Warn(log.CatSupervisor, "profile crashed", "profile", name, "detail", detail, "crash_count", crashCount)

	if crashCount >= MaxCrashRetries {
		e.exhaustRetries(ctx, name)
		return false
	}

	select {
	case <-ctx.Done():
		return false
	case <-time.After(e.timings.CrashBackoff):
	}

	if !e.store.TryTransition(name, fleet.StateStarting) {
		// Stopped by the operator during the backoff.
		return false
	}
	e.store.Update(name, func(rs *fleet.RuntimeState) { rs.Status = "" })
	e.publishStateChanged(name, nil)
	log.Info(log.CatSupervisor, "relaunching after crash", "profile", name, "attempt", crashCount+1)
	return true
}

// exhaustRetries finalizes a profile whose crash budget is spent: it
// stays in Error and its schedule is durably disabled so the evaluator
// cannot re-arm it.
func (e *Engine) exhaustRetries(ctx context.Context, name string) {
	e.store.Update(name, func(rs *fleet.RuntimeState) { rs.Status = "max retries exceeded" })

	var changed *fleet.Profile
	p, err := e.profiles.GetByName(name)
	if err == nil && p.ScheduleEnabled {
		p.ScheduleEnabled = false
		if uerr := e.profiles.Update(p); uerr != nil {
			log.ErrorErr(log.CatSupervisor, "disable schedule after exhaustion", uerr, "profile", name)
		} else {
			changed = p
		}
	}
	e.publishStateChanged(name, changed)
	log.Error(log.CatSupervisor, "crash retries exhausted", "profile", name, "retries", MaxCrashRetries)
}

// gamePath resolves the child working directory: the profile's own
// path wins, then the fleet-wide setting.
func (e *Engine) gamePath(p *fleet.Profile) string {
	if p.GamePath != "" {
		return p.GamePath
	}
	s, err := e.settings.Get()
	if err != nil {
		return ""
	}
	return s.GamePath
}
