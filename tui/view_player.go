package tui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/njyeung/netplay/player"
)

const statusFixedWidth = 32

func (m Model) viewPlayer() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	ns := m.player.Stream()
	var b strings.Builder

	// empty rows where kitty graphics render
	b.WriteString(strings.Repeat("\n", max(m.height-ReservedRows, 0)))

	// status line: play state icon, position, state, mute
	icon := "▶ "
	switch ns.State() {
	case player.StatePaused:
		icon = "❚❚"
	case player.StateBuffering:
		icon = m.spinner.View()
	case player.StateStopped:
		icon = "■ "
	}

	muteIcon := "  "
	if m.player.IsMuted() {
		muteIcon = "M"
	}

	// the fixed fields take at most statusFixedWidth columns
	status := runewidth.Truncate(m.status, max(m.width-statusFixedWidth, 0), "…")
	statusContent := icon + " " + timeStyle.Render(formatClock(ns.Time())) + "  " +
		stateStyle.Render(ns.State().String()) + "  " + muteIcon + "  " + statusStyle.Render(status)
	b.WriteString(" " + statusContent + "\n")

	// download progress
	ratio := 0.0
	if total := ns.BytesTotal(); total > 0 {
		ratio = float64(ns.BytesLoaded()) / float64(total)
	}
	b.WriteString(" " + m.progress.ViewAs(ratio) + " " + statusStyle.Render(formatBytes(ns.BytesLoaded())) + "\n")

	// navbar
	nav := "space: pause  ←/→: seek  0: restart  m: mute  q: quit"
	if m.screen == screenFinished {
		nav = "r: replay  q: quit"
	}
	b.WriteString(" " + navStyle.Render(nav))

	return b.String()
}

// formatClock formats seconds as mm:ss, or h:mm:ss past an hour.
func formatClock(seconds float64) string {
	total := int(max(seconds, 0))
	h, mnt, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mnt, s)
	}
	return fmt.Sprintf("%02d:%02d", mnt, s)
}

// formatBytes formats a byte count with K/M suffixes
func formatBytes(n int64) string {
	if n >= 1<<20 {
		return fmt.Sprintf("%.1fM", float64(n)/(1<<20))
	}
	if n >= 1<<10 {
		return fmt.Sprintf("%.1fK", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%dB", n)
}
