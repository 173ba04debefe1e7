package fleet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// === Period Tests ===

func TestPeriod_ContainsMinute_Daytime(t *testing.T) {
	// 09:00-17:30, half-open
	p := Period{StartHour: 9, StartMinute: 0, EndHour: 17, EndMinute: 30}

	tests := []struct {
		name   string
		hour   int
		minute int
		in     bool
	}{
		{"before start", 8, 59, false},
		{"start minute is included", 9, 0, true},
		{"mid window", 12, 0, true},
		{"last minute inside", 17, 29, true},
		{"end minute is excluded", 17, 30, false},
		{"after end", 20, 0, false},
		{"midnight", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.in, p.ContainsMinute(tt.hour*60+tt.minute))
		})
	}
}

func TestPeriod_ContainsMinute_Overnight(t *testing.T) {
	// 22:00-06:00 wraps midnight
	p := Period{StartHour: 22, StartMinute: 0, EndHour: 6, EndMinute: 0}

	tests := []struct {
		name   string
		hour   int
		minute int
		in     bool
	}{
		{"start minute is included", 22, 0, true},
		{"before midnight", 23, 59, true},
		{"midnight", 0, 0, true},
		{"last minute inside", 5, 59, true},
		{"end minute is excluded", 6, 0, false},
		{"noon", 12, 0, false},
		{"just before start", 21, 59, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.in, p.ContainsMinute(tt.hour*60+tt.minute))
		})
	}
}

func TestPeriod_ContainsMinute_EqualEndpointsIsEmpty(t *testing.T) {
	p := Period{StartHour: 8, StartMinute: 0, EndHour: 8, EndMinute: 0}

	for minute := 0; minute < 24*60; minute++ {
		require.False(t, p.ContainsMinute(minute),
			"empty period should not contain minute %d", minute)
	}
}

func TestPeriod_Validate(t *testing.T) {
	tests := []struct {
		name    string
		period  Period
		wantErr bool
	}{
		{"valid daytime", Period{StartHour: 9, EndHour: 17}, false},
		{"valid overnight", Period{StartHour: 22, EndHour: 6}, false},
		{"hour too large", Period{StartHour: 24, EndHour: 6}, true},
		{"negative hour", Period{StartHour: -1, EndHour: 6}, true},
		{"minute too large", Period{StartHour: 9, StartMinute: 60, EndHour: 17}, true},
		{"negative minute", Period{StartHour: 9, EndHour: 17, EndMinute: -5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.period.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestPeriod_String(t *testing.T) {
	p := Period{StartHour: 22, StartMinute: 5, EndHour: 6, EndMinute: 30}
	require.Equal(t, "22:05-06:30", p.String())
}

// === Schedule Tests ===

func TestSchedule_Contains(t *testing.T) {
	s := &Schedule{
		Name: "night",
		Periods: []Period{
			{StartHour: 22, StartMinute: 0, EndHour: 6, EndMinute: 0},
		},
	}

	at := func(hour, minute int) time.Time {
		return time.Date(2025, 3, 14, hour, minute, 30, 0, time.Local)
	}

	require.True(t, s.Contains(at(23, 59)))
	require.True(t, s.Contains(at(0, 0)))
	require.False(t, s.Contains(at(6, 0)))
	require.False(t, s.Contains(at(12, 0)))
}

func TestSchedule_Contains_MultiplePeriods(t *testing.T) {
	s := &Schedule{
		Name: "split",
		Periods: []Period{
			{StartHour: 8, EndHour: 12},
			{StartHour: 14, EndHour: 18},
		},
	}

	at := func(hour, minute int) time.Time {
		return time.Date(2025, 3, 14, hour, minute, 0, 0, time.Local)
	}

	require.True(t, s.Contains(at(9, 0)))
	require.False(t, s.Contains(at(13, 0)), "gap between periods should be outside")
	require.True(t, s.Contains(at(15, 30)))
	require.False(t, s.Contains(at(19, 0)))
}

func TestSchedule_Contains_NoPeriods(t *testing.T) {
	s := &Schedule{Name: "empty"}
	require.False(t, s.Contains(time.Now()))
}

func TestSchedule_Validate(t *testing.T) {
	tests := []struct {
		name     string
		schedule *Schedule
		wantErr  string
	}{
		{
			name:     "valid",
			schedule: &Schedule{Name: "night", Periods: []Period{{StartHour: 22, EndHour: 6}}},
		},
		{
			name:     "missing name",
			schedule: &Schedule{Periods: []Period{{StartHour: 22, EndHour: 6}}},
			wantErr:  "name is required",
		},
		{
			name:     "bad period",
			schedule: &Schedule{Name: "broken", Periods: []Period{{StartHour: 25, EndHour: 6}}},
			wantErr:  "hour out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schedule.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
