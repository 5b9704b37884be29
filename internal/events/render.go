package events

import (
	"strconv"
	"strings"

	"telenotify/internal/config"
)

var markdownEscaper = strings.NewReplacer(
	"_", `\_`,
	"*", `\*`,
	"[", `\[`,
	"`", "\\`",
)

// EscapeMarkdown prefixes each Markdown V1 special character (underscore,
// asterisk, opening bracket, backtick) with a single backslash.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// Render fills the template for ev.Kind. It returns false when the snapshot
// is invalid or the kind is disabled.
//
// Substitution is single-pass, so placeholder-looking text inside a player
// name or death message is never expanded.
func Render(snap *config.Snapshot, ev Event) (string, bool) {
	if !snap.IsValid() || !snap.Enabled(string(ev.Kind)) {
		return "", false
	}
	tmpl := snap.Template(string(ev.Kind))
	if ev.Kind == KindServerStart {
		return tmpl, true
	}

	esc := func(s string) string { return s }
	if snap.Policy.EscapeMarkdown {
		esc = EscapeMarkdown
	}

	player := esc(strings.TrimSpace(ev.Player))
	death := strings.TrimSpace(ev.DeathMessage)
	if death == "" {
		death = player + " died"
	} else {
		death = esc(death)
	}
	x, y, z := strconv.Itoa(ev.X), strconv.Itoa(ev.Y), strconv.Itoa(ev.Z)

	r := strings.NewReplacer(
		"{player}", player,
		"{death_message}", death,
		"{location}", x+", "+y+", "+z,
		"{world}", esc(ev.World),
		"{x}", x,
		"{y}", y,
		"{z}", z,
	)
	return r.Replace(tmpl), true
}
