package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/njyeung/netplay/internal/metrics"
	"github.com/njyeung/netplay/player"
	"github.com/njyeung/netplay/tui"
)

func newPlayCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play <url>",
		Short: "Play a stream in the terminal",
		Long: `Play a stream from an http(s) URL or a local path. FLV is parsed directly;
other containers go through FFmpeg. A "mp3:" prefix on the URL is ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPlay(cmd.Context(), args[0])
		},
	}

	f := cmd.Flags()
	f.Duration("buffer-time", player.DefaultBufferTime, "media buffered before playback starts")
	f.String("render-mode", "rgb", "pixel layout frames are decoded to (rgb, yuv)")
	f.Int("video-queue", player.DefaultVideoQueueSize, "decoded video frames held ahead of the clock")
	f.Int("audio-queue", player.DefaultAudioQueueSize, "decoded audio units held ahead of the sink")
	f.Int("seek-scan-limit", player.DefaultSeekScanLimit, "packets read forward while looking for a seek target")
	f.Bool("no-audio", false, "skip audio decoding and output")
	f.Float64("volume", 1, "output volume (0..1)")
	f.Bool("muted", false, "start muted")
	f.Int("width", 0, "max frame width in pixels (0 fits the terminal)")
	f.Int("height", 0, "max frame height in pixels (0 fits the terminal)")
	f.Bool("no-shm", false, "always send pixels inline instead of through shared memory")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	return cmd
}

func (a *app) runPlay(ctx context.Context, url string) error {
	// the UI owns the terminal, so logs go nowhere unless a file is set
	log, closer, err := a.logger(io.Discard)
	if err != nil {
		return err
	}
	defer closer.Close()

	cfg := a.cfg

	// the probe reads the terminal's reply from stdin and must finish
	// before bubbletea starts reading it
	useShm := cfg.Display.Shm && player.ShmSupported()
	width, height := videoBox(cfg.Display, tui.ReservedRows)

	var (
		met *metrics.Metrics
		pm  player.Metrics
	)
	if cfg.Metrics.MetricsEnabled() {
		met = metrics.New()
		pm = met
	}

	p, err := player.New(player.Config{
		Stream: streamOptions(cfg, width, height, log, pm),
		Audio:  cfg.Audio.Enabled,
		Volume: cfg.Audio.Volume,
		Muted:  cfg.Audio.Muted,
		UseShm: useShm,
	})
	if err != nil {
		return err
	}
	defer p.Close()

	log.Info("starting playback", "url", url, "width", width, "height", height, "shm", useShm, "metrics", cfg.Metrics.Addr)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	prog := tea.NewProgram(tui.NewModel(p, url, log), tea.WithAltScreen(), tea.WithContext(ctx))
	g.Go(func() error {
		// leaving the UI ends the metrics server too
		defer stop()
		_, err := prog.Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})
	if met != nil {
		g.Go(func() error {
			return met.Serve(ctx, cfg.Metrics.Addr, log)
		})
	}

	return g.Wait()
}
