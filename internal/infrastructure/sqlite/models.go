package sqlite

import (
	"encoding/json"
	"time"

	"github.com/zjrosen/warden/internal/fleet"
	"github.com/zjrosen/warden/internal/log"
)

// profileColumns is the list of columns to select for profile queries.
const profileColumns = `id, name, group_name, executable, args, game_path,
	account, password, character, realm, difficulty, info_tag,
	key_pool, schedule, schedule_enabled,
	window_x, window_y, window_w, window_h, visible,
	runs, chickens, deaths, crashes, restarts,
	position, created_at, updated_at`

// ProfileModel represents the database model for a profile.
// Nullable columns map to pointers; timestamps are Unix seconds.
type ProfileModel struct {
	ID              int64
	Name            string
	GroupName       string
	Executable      string
	Args            *string
	GamePath        *string
	Account         *string
	Password        *string
	Character       *string
	Realm           *string
	Difficulty      *string
	InfoTag         *string
	KeyPool         *string
	Schedule        *string
	ScheduleEnabled bool
	WindowX         *int64
	WindowY         *int64
	WindowW         *int64
	WindowH         *int64
	Visible         bool
	Runs            int64
	Chickens        int64
	Deaths          int64
	Crashes         int64
	Restarts        int64
	Position        int64
	CreatedAt       int64
	UpdatedAt       int64
}

// scanProfile scans a row into a ProfileModel.
func scanProfile(scanner interface{ Scan(...any) error }) (*ProfileModel, error) {
	var model ProfileModel
	err := scanner.Scan(
		&model.ID, &model.Name, &model.GroupName, &model.Executable, &model.Args, &model.GamePath,
		&model.Account, &model.Password, &model.Character, &model.Realm, &model.Difficulty, &model.InfoTag,
		&model.KeyPool, &model.Schedule, &model.ScheduleEnabled,
		&model.WindowX, &model.WindowY, &model.WindowW, &model.WindowH, &model.Visible,
		&model.Runs, &model.Chickens, &model.Deaths, &model.Crashes, &model.Restarts,
		&model.Position, &model.CreatedAt, &model.UpdatedAt,
	)
	return &model, err
}

// toProfileModel converts a domain Profile to its database model.
func toProfileModel(p *fleet.Profile) *ProfileModel {
	model := &ProfileModel{
		Name:            p.Name,
		GroupName:       p.Group,
		Executable:      p.Executable,
		ScheduleEnabled: p.ScheduleEnabled,
		Visible:         p.Visible,
		Runs:            int64(p.Counters.Runs),
		Chickens:        int64(p.Counters.Chickens),
		Deaths:          int64(p.Counters.Deaths),
		Crashes:         int64(p.Counters.Crashes),
		Restarts:        int64(p.Counters.Restarts),
		Position:        int64(p.Position),
		CreatedAt:       unixSeconds(p.CreatedAt),
		UpdatedAt:       unixSeconds(p.UpdatedAt),
	}

	if len(p.Args) > 0 {
		if encoded, err := json.Marshal(p.Args); err == nil {
			args := string(encoded)
			model.Args = &args
		}
	}
	if p.GamePath != "" {
		model.GamePath = &p.GamePath
	}
	if p.Account != "" {
		model.Account = &p.Account
	}
	if p.Password != "" {
		model.Password = &p.Password
	}
	if p.Character != "" {
		model.Character = &p.Character
	}
	if p.Realm != "" {
		model.Realm = &p.Realm
	}
	if p.Difficulty != "" {
		model.Difficulty = &p.Difficulty
	}
	if p.InfoTag != "" {
		model.InfoTag = &p.InfoTag
	}
	if p.KeyPool != "" {
		model.KeyPool = &p.KeyPool
	}
	if p.Schedule != "" {
		model.Schedule = &p.Schedule
	}
	if p.Window != nil {
		x, y := int64(p.Window.X), int64(p.Window.Y)
		w, h := int64(p.Window.W), int64(p.Window.H)
		model.WindowX, model.WindowY = &x, &y
		model.WindowW, model.WindowH = &w, &h
	}

	return model
}

// toDomain converts a database model back to a domain Profile.
func (m *ProfileModel) toDomain() *fleet.Profile {
	p := &fleet.Profile{
		Name:            m.Name,
		Group:           m.GroupName,
		Executable:      m.Executable,
		ScheduleEnabled: m.ScheduleEnabled,
		Visible:         m.Visible,
		Counters: fleet.Counters{
			Runs:     int(m.Runs),
			Chickens: int(m.Chickens),
			Deaths:   int(m.Deaths),
			Crashes:  int(m.Crashes),
			Restarts: int(m.Restarts),
		},
		Position:  int(m.Position),
		CreatedAt: unixTime(m.CreatedAt),
		UpdatedAt: unixTime(m.UpdatedAt),
	}

	if m.Args != nil {
		var args []string
		if err := json.Unmarshal([]byte(*m.Args), &args); err != nil {
			log.ErrorErr(log.CatDB, "failed to decode profile args", err, "profile", m.Name)
		} else {
			p.Args = args
		}
	}
	if m.GamePath != nil {
		p.GamePath = *m.GamePath
	}
	if m.Account != nil {
		p.Account = *m.Account
	}
	if m.Password != nil {
		p.Password = *m.Password
	}
	if m.Character != nil {
		p.Character = *m.Character
	}
	if m.Realm != nil {
		p.Realm = *m.Realm
	}
	if m.Difficulty != nil {
		p.Difficulty = *m.Difficulty
	}
	if m.InfoTag != nil {
		p.InfoTag = *m.InfoTag
	}
	if m.KeyPool != nil {
		p.KeyPool = *m.KeyPool
	}
	if m.Schedule != nil {
		p.Schedule = *m.Schedule
	}
	if m.WindowX != nil && m.WindowY != nil && m.WindowW != nil && m.WindowH != nil {
		p.Window = &fleet.WindowRect{
			X: int(*m.WindowX), Y: int(*m.WindowY),
			W: int(*m.WindowW), H: int(*m.WindowH),
		}
	}

	return p
}

// unixSeconds converts a time.Time to Unix seconds, mapping the zero
// time to 0.
func unixSeconds(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// unixTime converts Unix seconds to a time.Time, mapping 0 back to the
// zero time.
func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
