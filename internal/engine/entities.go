package engine

import (
	"context"
	"fmt"

	"github.com/zjrosen/warden/internal/fleet"
	"github.com/zjrosen/warden/internal/log"
)

// CreateProfile persists a new profile and registers it with the
// runtime store.
func (e *Engine) CreateProfile(ctx context.Context, p *fleet.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := e.profiles.Create(p); err != nil {
		return err
	}
	e.store.Register(p.Name)
	e.publishProfiles()
	log.Info(log.CatEngine, "profile created", "profile", p.Name)
	return nil
}

// UpdateProfile rewrites a profile's mutable fields.
func (e *Engine) UpdateProfile(ctx context.Context, p *fleet.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	old, err := e.profiles.GetByName(p.Name)
	if err != nil {
		return err
	}
	if err := e.profiles.Update(p); err != nil {
		return err
	}
	if changes := changeSummary(renderProfile(old), renderProfile(p)); changes != "" {
		log.Info(log.CatEngine, "profile updated", "profile", p.Name, "changes", changes)
	}
	e.publishStateChanged(p.Name, p)
	return nil
}

// RenameProfile renames an inactive profile, carrying its runtime
// record to the new name. Cached runtime KV entries under the old name
// are dropped.
func (e *Engine) RenameProfile(ctx context.Context, oldName, newName string) error {
	if rs, ok := e.store.Snapshot(oldName); ok && rs.State.IsActive() {
		return fmt.Errorf("rename %q: %w", oldName, ErrProfileActive)
	}
	if err := e.profiles.Rename(oldName, newName); err != nil {
		return err
	}
	e.store.Rename(oldName, newName)
	_ = e.cache.DeletePrefix(ctx, oldName+"/")
	e.publishProfiles()
	log.Info(log.CatEngine, "profile renamed", "from", oldName, "to", newName)
	return nil
}

// DeleteProfile destroys a profile. An active one is force-stopped
// first; then the persisted row, the runtime record, and the cached
// runtime KV entries all go.
func (e *Engine) DeleteProfile(ctx context.Context, name string) error {
	if rs, ok := e.store.Snapshot(name); ok && rs.State.IsActive() {
		if err := e.Stop(ctx, name, StopOptions{Force: true, Reason: "profile deleted"}); err != nil {
			return fmt.Errorf("delete %q: %w", name, err)
		}
	}
	if err := e.profiles.Delete(name); err != nil {
		return err
	}
	e.store.Deregister(name)
	_ = e.cache.DeletePrefix(ctx, name+"/")
	e.publishProfiles()
	log.Info(log.CatEngine, "profile deleted", "profile", name)
	return nil
}

// GetProfile retrieves one persisted profile.
func (e *Engine) GetProfile(name string) (*fleet.Profile, error) {
	return e.profiles.GetByName(name)
}

// CreateKeyPool persists a new, empty pool.
func (e *Engine) CreateKeyPool(ctx context.Context, name string) error {
	if err := e.keyPools.Create(name); err != nil {
		return err
	}
	e.publishKeyPools()
	log.Info(log.CatKeyPool, "pool created", "pool", name)
	return nil
}

// DeleteKeyPool removes a pool and its allocation cursor. Profiles
// referencing the pool fail preflight with "no available keys" until
// repointed.
func (e *Engine) DeleteKeyPool(ctx context.Context, name string) error {
	if err := e.keyPools.Delete(name); err != nil {
		return err
	}
	e.alloc.Forget(name)
	e.publishKeyPools()
	log.Info(log.CatKeyPool, "pool deleted", "pool", name)
	return nil
}

// AddKey appends a credential to a pool.
func (e *Engine) AddKey(ctx context.Context, pool string, key fleet.Credential) error {
	if err := e.keyPools.AddKey(pool, key); err != nil {
		return err
	}
	e.publishKeyPools()
	log.Info(log.CatKeyPool, "credential added", "pool", pool, "key", key.Name)
	return nil
}

// RemoveKey removes a credential from a pool. A profile already
// running on the credential keeps it until its run ends.
func (e *Engine) RemoveKey(ctx context.Context, pool, name string) error {
	if err := e.keyPools.RemoveKey(pool, name); err != nil {
		return err
	}
	e.publishKeyPools()
	log.Info(log.CatKeyPool, "credential removed", "pool", pool, "key", name)
	return nil
}

// SetKeyHeld toggles the persistent held flag on a credential. Held
// credentials are skipped by allocation.
func (e *Engine) SetKeyHeld(ctx context.Context, pool, name string, held bool) error {
	if err := e.keyPools.SetHeld(pool, name, held); err != nil {
		return err
	}
	e.publishKeyPools()
	log.Info(log.CatKeyPool, "credential hold changed", "pool", pool, "key", name, "held", held)
	return nil
}

// ListKeyPools returns the persisted pools with their credentials.
func (e *Engine) ListKeyPools() ([]fleet.KeyPool, error) {
	return e.keyPools.List()
}

// CreateSchedule persists a new schedule.
func (e *Engine) CreateSchedule(ctx context.Context, s *fleet.Schedule) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := e.schedules.Create(s); err != nil {
		return err
	}
	e.publishSchedules()
	log.Info(log.CatScheduler, "schedule created", "schedule", s.Name)
	return nil
}

// UpdateSchedule replaces a schedule's periods.
func (e *Engine) UpdateSchedule(ctx context.Context, s *fleet.Schedule) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := e.schedules.Update(s); err != nil {
		return err
	}
	e.publishSchedules()
	log.Info(log.CatScheduler, "schedule updated", "schedule", s.Name)
	return nil
}

// DeleteSchedule removes a schedule. Profiles still referencing it are
// skipped by the evaluator until repointed.
func (e *Engine) DeleteSchedule(ctx context.Context, name string) error {
	if err := e.schedules.Delete(name); err != nil {
		return err
	}
	e.publishSchedules()
	log.Info(log.CatScheduler, "schedule deleted", "schedule", name)
	return nil
}

// ListSchedules returns the persisted schedules.
func (e *Engine) ListSchedules() ([]fleet.Schedule, error) {
	return e.schedules.List()
}

// Settings returns the fleet-wide settings document.
func (e *Engine) Settings() (fleet.Settings, error) {
	return e.settings.Get()
}

// UpdateSettings rewrites the settings document.
func (e *Engine) UpdateSettings(ctx context.Context, s fleet.Settings) error {
	old, _ := e.settings.Get()
	if err := e.settings.Save(s); err != nil {
		return err
	}
	if changes := changeSummary(renderSettings(old), renderSettings(s)); changes != "" {
		log.Info(log.CatConfig, "settings updated", "changes", changes)
	}
	e.publishSettings()
	return nil
}
