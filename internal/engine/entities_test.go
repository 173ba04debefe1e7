package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/warden/internal/fleet"
	"github.com/zjrosen/warden/internal/launch"
	"github.com/zjrosen/warden/internal/transport"
)

func TestEntities_ProfileCRUD(t *testing.T) {
	fl := newFakeLauncher(alive())
	env := newTestEngine(t, fl, quietTimings(), nil)
	e := env.engine
	ctx := context.Background()

	require.Error(t, e.CreateProfile(ctx, &fleet.Profile{Name: "noexe"}))
	require.Error(t, e.CreateProfile(ctx, &fleet.Profile{Executable: "bot.exe"}))

	p := &fleet.Profile{Name: "sorc", Executable: "bot.exe"}
	require.NoError(t, e.CreateProfile(ctx, p))

	// Creation registers a runtime record, so the profile is startable.
	rs, ok := e.RuntimeState("sorc")
	require.True(t, ok)
	require.Equal(t, fleet.StateStopped, rs.State)

	p.Account = "acct1"
	require.NoError(t, e.UpdateProfile(ctx, p))
	got, err := e.GetProfile("sorc")
	require.NoError(t, err)
	require.Equal(t, "acct1", got.Account)

	ghost := &fleet.Profile{Name: "ghost", Executable: "bot.exe"}
	var nf *fleet.ProfileNotFoundError
	require.ErrorAs(t, e.UpdateProfile(ctx, ghost), &nf)

	require.NoError(t, e.DeleteProfile(ctx, "sorc"))
	_, ok = e.RuntimeState("sorc")
	require.False(t, ok)
	_, err = e.GetProfile("sorc")
	require.ErrorAs(t, err, &nf)
}

func TestEntities_RenameRefusedWhileActive(t *testing.T) {
	fl := newFakeLauncher(alive())
	env := newTestEngine(t, fl, quietTimings(), func(s *memState) {
		s.profiles = append(s.profiles, fleet.Profile{Name: "sorc", Executable: "bot.exe"})
	})
	e := env.engine
	ctx := context.Background()

	startRunning(t, env, "sorc")

	require.ErrorIs(t, e.RenameProfile(ctx, "sorc", "sorc2"), ErrProfileActive)

	require.NoError(t, e.Stop(ctx, "sorc", StopOptions{}))
	require.NoError(t, e.RenameProfile(ctx, "sorc", "sorc2"))
	_, err := e.GetProfile("sorc2")
	require.NoError(t, err)
}

func TestEntities_DeleteForceStopsActiveProfile(t *testing.T) {
	fl := newFakeLauncher(alive())
	env := newTestEngine(t, fl, quietTimings(), func(s *memState) {
		s.profiles = append(s.profiles, fleet.Profile{Name: "sorc", Executable: "bot.exe"})
	})
	e := env.engine
	ctx := context.Background()

	startRunning(t, env, "sorc")

	require.NoError(t, e.DeleteProfile(ctx, "sorc"))

	proc, ok := fl.procFor("sorc")
	require.True(t, ok)
	require.True(t, proc.Exited(), "deleting a running profile terminates its process")

	var notFound *fleet.ProfileNotFoundError
	_, err := e.GetProfile("sorc")
	require.ErrorAs(t, err, &notFound)
	_, registered := e.RuntimeState("sorc")
	require.False(t, registered, "the runtime record goes with the profile")
}

func TestEntities_RenameDropsRuntimeKV(t *testing.T) {
	fl := newFakeLauncher(alive())
	env := newTestEngine(t, fl, quietTimings(), func(s *memState) {
		s.profiles = append(s.profiles, fleet.Profile{Name: "sorc", Executable: "bot.exe"})
	})
	e := env.engine
	ctx := context.Background()

	token := startRunning(t, env, "sorc")
	e.HandleFrame(ctx, transport.NewFrame(token, transport.FuncStore, "waypoints", "act3"))
	require.NoError(t, e.Stop(ctx, "sorc", StopOptions{}))

	require.NoError(t, e.RenameProfile(ctx, "sorc", "sorc2"))

	// The renamed profile starts with an empty keyspace.
	fresh := startRunning(t, env, "sorc2")
	e.HandleFrame(ctx, transport.NewFrame(fresh, transport.FuncRetrieve, "waypoints"))
	proc, _ := fl.procFor("sorc2")
	replies := proc.sentOf(launch.MsgRetrieve)
	require.Len(t, replies, 1)
	var reply retrieveReply
	require.NoError(t, json.Unmarshal([]byte(replies[0]), &reply))
	require.Empty(t, reply.Value)
}

func TestEntities_KeyPoolCRUD(t *testing.T) {
	fl := newFakeLauncher(alive())
	env := newTestEngine(t, fl, quietTimings(), nil)
	e := env.engine
	ctx := context.Background()

	require.NoError(t, e.CreateKeyPool(ctx, "mains"))
	require.NoError(t, e.AddKey(ctx, "mains", fleet.Credential{Name: "k1", Classic: "c1"}))
	require.NoError(t, e.AddKey(ctx, "mains", fleet.Credential{Name: "k2", Classic: "c2"}))
	require.NoError(t, e.SetKeyHeld(ctx, "mains", "k1", true))

	pools, err := e.ListKeyPools()
	require.NoError(t, err)
	require.Len(t, pools, 1)
	require.Len(t, pools[0].Keys, 2)
	require.True(t, pools[0].Keys[0].Held)

	require.NoError(t, e.RemoveKey(ctx, "mains", "k1"))
	pools, err = e.ListKeyPools()
	require.NoError(t, err)
	require.Len(t, pools[0].Keys, 1)
	require.Equal(t, "k2", pools[0].Keys[0].Name)

	var knf *fleet.KeyNotFoundError
	require.ErrorAs(t, e.RemoveKey(ctx, "mains", "k1"), &knf)

	require.NoError(t, e.DeleteKeyPool(ctx, "mains"))
	var pnf *fleet.KeyPoolNotFoundError
	require.ErrorAs(t, e.AddKey(ctx, "mains", fleet.Credential{Name: "k3"}), &pnf)
}

func TestEntities_ScheduleCRUD(t *testing.T) {
	fl := newFakeLauncher(alive())
	env := newTestEngine(t, fl, quietTimings(), nil)
	e := env.engine
	ctx := context.Background()

	bad := &fleet.Schedule{Name: "broken", Periods: []fleet.Period{{StartHour: 25}}}
	require.Error(t, e.CreateSchedule(ctx, bad))

	night := nightSchedule()
	require.NoError(t, e.CreateSchedule(ctx, &night))

	night.Periods = []fleet.Period{{StartHour: 20, EndHour: 4}}
	require.NoError(t, e.UpdateSchedule(ctx, &night))

	list, err := e.ListSchedules()
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 20, list[0].Periods[0].StartHour)

	require.NoError(t, e.DeleteSchedule(ctx, "night"))
	list, err = e.ListSchedules()
	require.NoError(t, err)
	require.Empty(t, list)

	var snf *fleet.ScheduleNotFoundError
	require.ErrorAs(t, e.DeleteSchedule(ctx, "night"), &snf)
}

func TestEntities_SettingsRoundTrip(t *testing.T) {
	fl := newFakeLauncher(alive())
	env := newTestEngine(t, fl, quietTimings(), nil)
	e := env.engine

	require.NoError(t, e.UpdateSettings(context.Background(), fleet.Settings{
		GamePath:             "/games/d2",
		LaunchStaggerSeconds: 15,
		AutoStart:            true,
	}))

	s, err := e.Settings()
	require.NoError(t, err)
	require.Equal(t, "/games/d2", s.GamePath)
	require.Equal(t, 15, s.LaunchStaggerSeconds)
	require.True(t, s.AutoStart)
}
