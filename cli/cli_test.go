package cli

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njyeung/netplay/internal/config"
	"github.com/njyeung/netplay/player"
)

func playFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	f := newPlayCmd(&app{}).Flags()
	require.NoError(t, f.Parse(args))
	return f
}

func loadWithFlags(t *testing.T, args ...string) *config.Config {
	t.Helper()
	v := viper.New()
	applyFlags(v, playFlags(t, args...))
	cfg, err := config.LoadWith(v, "")
	require.NoError(t, err)
	return cfg
}

func TestApplyFlags_ChangedFlagsOverride(t *testing.T) {
	cfg := loadWithFlags(t,
		"--buffer-time=2s",
		"--render-mode=yuv",
		"--volume=0.25",
		"--no-audio",
		"--no-shm",
		"--width=640",
		"--metrics-addr=:9090",
	)

	assert.Equal(t, 2*time.Second, cfg.Player.BufferTime)
	assert.Equal(t, "yuv", cfg.Player.RenderMode)
	assert.InDelta(t, 0.25, cfg.Audio.Volume, 1e-9)
	assert.False(t, cfg.Audio.Enabled)
	assert.False(t, cfg.Display.Shm)
	assert.Equal(t, 640, cfg.Display.Width)
	assert.True(t, cfg.Metrics.MetricsEnabled())
}

func TestApplyFlags_DefaultsDoNotMaskEnv(t *testing.T) {
	t.Setenv("NETPLAY_PLAYER_BUFFER_TIME", "3s")
	t.Setenv("NETPLAY_AUDIO_ENABLED", "false")

	cfg := loadWithFlags(t)
	assert.Equal(t, 3*time.Second, cfg.Player.BufferTime)
	assert.False(t, cfg.Audio.Enabled)

	cfg = loadWithFlags(t, "--buffer-time=500ms")
	assert.Equal(t, 500*time.Millisecond, cfg.Player.BufferTime)
}

func TestStreamOptions(t *testing.T) {
	cfg := loadWithFlags(t, "--render-mode=yuv", "--no-audio", "--video-queue=12")

	opts := streamOptions(cfg, 320, 240, nil, nil)
	assert.Equal(t, player.DefaultBufferTime, opts.BufferTime)
	assert.Equal(t, 12, opts.VideoQueueSize)
	assert.Equal(t, player.DefaultSeekScanLimit, opts.SeekScanLimit)
	assert.True(t, opts.NoAudio)
	assert.Equal(t, 320, opts.Width)
	assert.Equal(t, 240, opts.Height)
	assert.Equal(t, player.LayoutYUV, opts.RenderMode())
	assert.Nil(t, opts.Metrics)
}

func TestVideoBox_ExplicitSize(t *testing.T) {
	w, h := videoBox(config.DisplayConfig{Width: 800, Height: 600}, 4)
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)
}

func TestWriteProbe(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeProbe(&out, player.ProbeInfo{
		URL:          "clip.flv",
		Format:       "flv",
		FrameDelay:   0.04,
		VideoPackets: 25,
		AudioPackets: 43,
		LastDTS:      0.96,
	}))

	s := out.String()
	assert.Contains(t, s, "clip.flv")
	assert.Contains(t, s, "25.000 fps")
	assert.Contains(t, s, "25 video, 43 audio")
	assert.Contains(t, s, "0.960s")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("NETPLAY_LOGGING_FILE", filepath.Join(t.TempDir(), "netplay.log"))

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "netplay version")

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"go_version"`)
}

func TestPlayCommand_InvalidConfig(t *testing.T) {
	_, err := execute(t, "play", "clip.flv", "--render-mode=bogus")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "player.render_mode")
}

func TestProbeCommand_MissingFile(t *testing.T) {
	_, err := execute(t, "probe", filepath.Join(t.TempDir(), "missing.flv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open source")
}

func TestRootCommand_BadConfigFile(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "probe", "clip.flv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}
