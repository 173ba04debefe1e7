package launch

import "context"

// HostDefaults are launch fields filled in from host configuration when
// a profile omits them. Args are prepended so profile arguments can
// override host ones positionally.
type HostDefaults struct {
	Executable string
	Args       []string
	GamePath   string
}

type defaultingLauncher struct {
	Launcher
	d HostDefaults
}

// WithDefaults wraps inner so every launch inherits d where the profile
// left gaps. With a zero HostDefaults it returns inner unchanged.
func WithDefaults(inner Launcher, d HostDefaults) Launcher {
	if d.Executable == "" && len(d.Args) == 0 && d.GamePath == "" {
		return inner
	}
	return &defaultingLauncher{Launcher: inner, d: d}
}

func (l *defaultingLauncher) Launch(ctx context.Context, cfg Config) (Handle, error) {
	if cfg.Executable == "" {
		cfg.Executable = l.d.Executable
	}
	if len(l.d.Args) > 0 {
		cfg.Args = append(append([]string(nil), l.d.Args...), cfg.Args...)
	}
	if cfg.GamePath == "" {
		cfg.GamePath = l.d.GamePath
	}
	return l.Launcher.Launch(ctx, cfg)
}
