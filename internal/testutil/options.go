package testutil

import "github.com/zjrosen/warden/internal/fleet"

// defaultProfile returns a profile with sensible defaults.
func defaultProfile(name string) fleet.Profile {
	return fleet.Profile{
		Name:       name,
		Executable: "/opt/d2/game.exe",
		Visible:    true,
	}
}

// ProfileOption configures a profile during builder setup.
type ProfileOption func(*fleet.Profile)

// Executable sets the profile's executable path.
func Executable(path string) ProfileOption {
	return func(p *fleet.Profile) { p.Executable = path }
}

// Args sets the profile's launch arguments.
func Args(args ...string) ProfileOption {
	return func(p *fleet.Profile) { p.Args = args }
}

// Group sets the profile's group.
func Group(name string) ProfileOption {
	return func(p *fleet.Profile) { p.Group = name }
}

// Pool binds the profile to a key pool.
func Pool(name string) ProfileOption {
	return func(p *fleet.Profile) { p.KeyPool = name }
}

// Schedule binds the profile to a schedule and arms it.
func Schedule(name string) ProfileOption {
	return func(p *fleet.Profile) {
		p.Schedule = name
		p.ScheduleEnabled = true
	}
}

// ScheduleDisabled disarms the schedule while keeping the binding.
func ScheduleDisabled() ProfileOption {
	return func(p *fleet.Profile) { p.ScheduleEnabled = false }
}

// Account sets the profile's account credentials.
func Account(account, password string) ProfileOption {
	return func(p *fleet.Profile) {
		p.Account = account
		p.Password = password
	}
}

// Character sets the profile's character and realm.
func Character(name, realm string) ProfileOption {
	return func(p *fleet.Profile) {
		p.Character = name
		p.Realm = realm
	}
}

// Window sets the profile's window placement.
func Window(x, y, w, h int) ProfileOption {
	return func(p *fleet.Profile) {
		p.Window = &fleet.WindowRect{X: x, Y: y, W: w, H: h}
	}
}

// Hidden launches the profile with a hidden window.
func Hidden() ProfileOption {
	return func(p *fleet.Profile) { p.Visible = false }
}

// Stats sets the profile's accumulated counters.
func Stats(runs, chickens, deaths int) ProfileOption {
	return func(p *fleet.Profile) {
		p.Counters.Runs = runs
		p.Counters.Chickens = chickens
		p.Counters.Deaths = deaths
	}
}

// Key creates a pool credential.
func Key(name, classic, expansion string) fleet.Credential {
	return fleet.Credential{Name: name, Classic: classic, Expansion: expansion}
}

// HeldKey creates a pool credential that is administratively held.
func HeldKey(name, classic, expansion string) fleet.Credential {
	return fleet.Credential{Name: name, Classic: classic, Expansion: expansion, Held: true}
}

// Span creates a schedule period.
func Span(startHour, startMinute, endHour, endMinute int) fleet.Period {
	return fleet.Period{
		StartHour:   startHour,
		StartMinute: startMinute,
		EndHour:     endHour,
		EndMinute:   endMinute,
	}
}
