package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithStandardFleet(t *testing.T) {
	db := NewTestDB(t)
	NewBuilder(t, db).WithStandardFleet().Build()

	profiles, err := db.ProfileRepository().List()
	require.NoError(t, err)
	require.Len(t, profiles, 3)

	sorc, err := db.ProfileRepository().GetByName("sorc-east")
	require.NoError(t, err)
	require.Equal(t, "east-keys", sorc.KeyPool)
	require.Equal(t, "nights", sorc.Schedule)
	require.True(t, sorc.ScheduleEnabled)

	pala, err := db.ProfileRepository().GetByName("pala-east")
	require.NoError(t, err)
	require.False(t, pala.ScheduleEnabled, "pala-east should have its schedule disarmed")

	solo, err := db.ProfileRepository().GetByName("barb-solo")
	require.NoError(t, err)
	require.Empty(t, solo.KeyPool)
	require.Empty(t, solo.Schedule)

	pool, err := db.KeyPoolRepository().GetByName("east-keys")
	require.NoError(t, err)
	require.Len(t, pool.Keys, 3)
	require.True(t, pool.Keys[2].Held, "key-3 should be held")

	schedule, err := db.ScheduleRepository().GetByName("nights")
	require.NoError(t, err)
	require.Len(t, schedule.Periods, 1)
	require.Equal(t, 22, schedule.Periods[0].StartHour)
}

func TestWithDaytimeFleet(t *testing.T) {
	db := NewTestDB(t)
	NewBuilder(t, db).WithDaytimeFleet().Build()

	profile, err := db.ProfileRepository().GetByName("day-runner")
	require.NoError(t, err)
	require.Equal(t, "days", profile.Schedule)
	require.True(t, profile.ScheduleEnabled)

	schedule, err := db.ScheduleRepository().GetByName("days")
	require.NoError(t, err)
	require.Equal(t, 9, schedule.Periods[0].StartHour)
	require.Equal(t, 17, schedule.Periods[0].EndHour)
	require.Equal(t, 30, schedule.Periods[0].EndMinute)
}
