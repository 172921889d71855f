package cli

import (
	"log/slog"

	"github.com/njyeung/netplay/internal/config"
	"github.com/njyeung/netplay/player"
)

// streamOptions builds the engine options from cfg. width and height bound
// decoded frames; met may be nil.
func streamOptions(cfg *config.Config, width, height int, log *slog.Logger, met player.Metrics) player.Options {
	// Validate has already rejected unknown modes
	layout, _ := player.ParsePixelLayout(cfg.Player.RenderMode)

	return player.Options{
		BufferTime:     cfg.Player.BufferTime,
		VideoQueueSize: cfg.Player.VideoQueueSize,
		AudioQueueSize: cfg.Player.AudioQueueSize,
		SeekScanLimit:  cfg.Player.SeekScanLimit,
		NoAudio:        !cfg.Audio.Enabled,
		Width:          width,
		Height:         height,
		RenderMode:     func() player.PixelLayout { return layout },
		Logger:         log,
		Metrics:        met,
	}
}

// videoBox resolves the frame bound, filling unset sides from the terminal.
func videoBox(cfg config.DisplayConfig, reservedRows int) (int, int) {
	width, height := cfg.Width, cfg.Height
	if width > 0 && height > 0 {
		return width, height
	}
	w, h := player.VideoBox(reservedRows)
	if width <= 0 {
		width = w
	}
	if height <= 0 {
		height = h
	}
	return width, height
}
