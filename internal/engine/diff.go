package engine

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/zjrosen/warden/internal/fleet"
)

// changeSummary renders a compact +added/-removed description of how
// an entity's flattened form changed, for audit logging.
func changeSummary(before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		text := strings.TrimSpace(d.Text)
		if text == "" {
			continue
		}
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			b.WriteString("-")
			b.WriteString(text)
			b.WriteString(" ")
		case diffmatchpatch.DiffInsert:
			b.WriteString("+")
			b.WriteString(text)
			b.WriteString(" ")
		}
	}
	return strings.TrimSpace(b.String())
}

// renderProfile flattens the mutable profile fields to one line for
// change summaries. The password itself never appears; only a length
// change is visible.
func renderProfile(p *fleet.Profile) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf(
		"group=%s exe=%s args=%s path=%s account=%s password:len=%d character=%s realm=%s difficulty=%s info=%s pool=%s schedule=%s enabled=%t",
		p.Group, p.Executable, strings.Join(p.Args, " "), p.GamePath,
		p.Account, len(p.Password), p.Character, p.Realm, p.Difficulty,
		p.InfoTag, p.KeyPool, p.Schedule, p.ScheduleEnabled,
	)
}

// renderSettings flattens the settings document for change summaries.
func renderSettings(s fleet.Settings) string {
	return fmt.Sprintf("path=%s stagger=%d autostart=%t updates=%t",
		s.GamePath, s.LaunchStaggerSeconds, s.AutoStart, s.CheckForUpdates)
}
