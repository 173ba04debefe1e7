package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/warden/internal/fleet"
)

func TestChangeSummary(t *testing.T) {
	require.Empty(t, changeSummary("account=foo", "account=foo"))

	got := changeSummary("account=old realm=useast", "account=new realm=useast")
	require.Contains(t, got, "-old")
	require.Contains(t, got, "+new")
	require.NotContains(t, got, "useast", "unchanged text must not appear in the summary")

	got = changeSummary("enabled=false", "enabled=true")
	require.Contains(t, got, "+")
	require.Contains(t, got, "-")
}

func TestRenderProfile(t *testing.T) {
	require.Empty(t, renderProfile(nil))

	p := &fleet.Profile{
		Name:       "sorc",
		Executable: "bot.exe",
		Args:       []string{"-w", "-ns"},
		Account:    "acct1",
		Password:   "hunter2",
		Realm:      "useast",
	}
	got := renderProfile(p)
	require.Contains(t, got, "exe=bot.exe")
	require.Contains(t, got, "args=-w -ns")
	require.Contains(t, got, "account=acct1")
	require.Contains(t, got, "realm=useast")
	require.Contains(t, got, "password:len=7")
	require.NotContains(t, got, "hunter2", "the password must never be rendered")
}

func TestRenderSettings(t *testing.T) {
	got := renderSettings(fleet.Settings{
		GamePath:             "/games/d2",
		LaunchStaggerSeconds: 15,
		AutoStart:            true,
	})
	require.Equal(t, "path=/games/d2 stagger=15 autostart=true updates=false", got)
}
