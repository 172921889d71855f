package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

var logo = []string{
	` _   _ _____ _____ ____  _        _ __   __`,
	`| \ | | ____|_   _|  _ \| |      / \\ \ / /`,
	`|  \| |  _|   | | | |_) | |     / _ \\ V / `,
	`| |\  | |___  | | |  __/| |___ / ___ \| |  `,
	`|_| \_|_____| |_| |_|   |_____/_/   \_\_|  `,
}

func (m Model) viewLoading() string {
	if m.width == 0 || m.height == 0 {
		return fmt.Sprintf("\n\n   %s %s\n\n", m.spinner.View(), m.status)
	}

	return renderLoadingScreen(m.width, m.height, m.spinner.View()+" "+m.status)
}

func renderLoadingScreen(width, height int, status string) string {
	blockHeight := len(logo) + 2
	startRow := (height - blockHeight) / 2

	var b strings.Builder
	for y := range height {
		var line string
		switch {
		case y >= startRow && y < startRow+len(logo):
			line = centerLine(logo[y-startRow], width, titleStyle.Render)
		case y == startRow+len(logo)+1:
			line = centerLine(status, width, statusStyle.Render)
		default:
			line = strings.Repeat(" ", width)
		}
		b.WriteString(line)
		if y < height-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func centerLine(text string, width int, render func(...string) string) string {
	pad := width - lipgloss.Width(text)
	if pad < 0 {
		pad = 0
		text = runewidth.Truncate(text, width, "")
	}
	left := pad / 2
	right := pad - left
	return strings.Repeat(" ", left) + render(text) + strings.Repeat(" ", right)
}
