package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	return &Config{
		Player: PlayerConfig{
			BufferTime:     100 * time.Millisecond,
			VideoQueueSize: 30,
			AudioQueueSize: 64,
			RenderMode:     "rgb",
			SeekScanLimit:  512,
		},
		Audio:   AudioConfig{Enabled: true, Volume: 1},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 100*time.Millisecond, cfg.Player.BufferTime)
	assert.Equal(t, 30, cfg.Player.VideoQueueSize)
	assert.Equal(t, 64, cfg.Player.AudioQueueSize)
	assert.Equal(t, "rgb", cfg.Player.RenderMode)
	assert.Equal(t, 512, cfg.Player.SeekScanLimit)

	assert.True(t, cfg.Audio.Enabled)
	assert.Equal(t, 1.0, cfg.Audio.Volume)
	assert.False(t, cfg.Audio.Muted)

	assert.Zero(t, cfg.Display.Width)
	assert.True(t, cfg.Display.Shm)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Empty(t, cfg.Logging.File)

	assert.False(t, cfg.Metrics.MetricsEnabled())
}

func TestLoad_FromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "netplay.yaml")

	configContent := `
player:
  buffer_time: 2s
  video_queue_size: 60
  render_mode: yuv

audio:
  enabled: false
  volume: 0.5

logging:
  level: debug
  format: json
  file: /tmp/netplay.log

metrics:
  addr: "127.0.0.1:9090"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o600))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Player.BufferTime)
	assert.Equal(t, 60, cfg.Player.VideoQueueSize)
	assert.Equal(t, 64, cfg.Player.AudioQueueSize)
	assert.Equal(t, "yuv", cfg.Player.RenderMode)
	assert.False(t, cfg.Audio.Enabled)
	assert.Equal(t, 0.5, cfg.Audio.Volume)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/tmp/netplay.log", cfg.Logging.File)
	assert.True(t, cfg.Metrics.MetricsEnabled())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("NETPLAY_PLAYER_BUFFER_TIME", "1500ms")
	t.Setenv("NETPLAY_PLAYER_SEEK_SCAN_LIMIT", "64")
	t.Setenv("NETPLAY_AUDIO_MUTED", "true")
	t.Setenv("NETPLAY_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 1500*time.Millisecond, cfg.Player.BufferTime)
	assert.Equal(t, 64, cfg.Player.SeekScanLimit)
	assert.True(t, cfg.Audio.Muted)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "netplay.yaml")
	configContent := `
player:
  video_queue_size: 10
  audio_queue_size: 20
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0o600))

	t.Setenv("NETPLAY_PLAYER_VIDEO_QUEUE_SIZE", "15")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Player.VideoQueueSize)
	assert.Equal(t, 20, cfg.Player.AudioQueueSize)
}

func TestLoadWith_ExplicitValuesWin(t *testing.T) {
	t.Setenv("NETPLAY_PLAYER_RENDER_MODE", "yuv")

	v := viper.New()
	v.Set("player.render_mode", "rgb")

	cfg, err := LoadWith(v, "")
	require.NoError(t, err)
	assert.Equal(t, "rgb", cfg.Player.RenderMode)
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "netplay.yaml")
	invalidContent := `
player:
  buffer_time: [1, 2
`
	require.NoError(t, os.WriteFile(configPath, []byte(invalidContent), 0o600))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/netplay.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("NETPLAY_PLAYER_RENDER_MODE", "cmyk")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "player.render_mode")
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validTestConfig().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"negative buffer time", func(c *Config) { c.Player.BufferTime = -time.Second }, "player.buffer_time"},
		{"zero video queue", func(c *Config) { c.Player.VideoQueueSize = 0 }, "player.video_queue_size"},
		{"huge audio queue", func(c *Config) { c.Player.AudioQueueSize = maxQueueSize + 1 }, "player.audio_queue_size"},
		{"bad render mode", func(c *Config) { c.Player.RenderMode = "bgr" }, "player.render_mode"},
		{"zero seek scan", func(c *Config) { c.Player.SeekScanLimit = 0 }, "player.seek_scan_limit"},
		{"volume above one", func(c *Config) { c.Audio.Volume = 1.5 }, "audio.volume"},
		{"negative width", func(c *Config) { c.Display.Width = -1 }, "display.width"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
