package tui

import "fmt"

func (m Model) viewError() string {
	msg := "playback failed"
	if m.err != nil {
		msg = m.err.Error()
	}
	return fmt.Sprintf("\n\n   %s\n\n   %s\n", errorStyle.Render(msg), navStyle.Render("Press q to quit."))
}
