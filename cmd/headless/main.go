// Command headless plays a stream without a terminal UI or audio and logs
// every status until playback stops. It is used to check streams and the
// decode engine on machines without a Kitty terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/njyeung/netplay/internal/config"
	"github.com/njyeung/netplay/internal/metrics"
	"github.com/njyeung/netplay/internal/observability"
	"github.com/njyeung/netplay/player"
)

const advanceInterval = 10 * time.Millisecond

var errPlaybackFailed = errors.New("playback failed")

func main() {
	var (
		configPath  = pflag.String("config", "", "config file")
		maxDuration = pflag.Duration("duration", 0, "stop after this much wall time (0 plays to the end)")
		snapshot    = pflag.String("snapshot", "", "write the first presented frame to this PNG file")
		metricsAddr = pflag.String("metrics-addr", "", "serve Prometheus metrics on this address")
	)
	pflag.Parse()

	if pflag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: headless [flags] <url>")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	log := observability.NewLogger(cfg.Logging)
	slog.SetDefault(log)

	if err := run(pflag.Arg(0), cfg, *maxDuration, *snapshot, log); err != nil {
		log.Error("headless run failed", "error", err)
		os.Exit(1)
	}
}

func run(url string, cfg *config.Config, maxDuration time.Duration, snapshot string, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if maxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxDuration)
		defer cancel()
	}

	layout, _ := player.ParsePixelLayout(cfg.Player.RenderMode)
	opts := player.Options{
		BufferTime:     cfg.Player.BufferTime,
		VideoQueueSize: cfg.Player.VideoQueueSize,
		AudioQueueSize: cfg.Player.AudioQueueSize,
		SeekScanLimit:  cfg.Player.SeekScanLimit,
		NoAudio:        true,
		Width:          cfg.Display.Width,
		Height:         cfg.Display.Height,
		RenderMode:     func() player.PixelLayout { return layout },
		Logger:         log,
	}

	var met *metrics.Metrics
	if cfg.Metrics.MetricsEnabled() {
		met = metrics.New()
		opts.Metrics = met
	}

	ns := player.NewNetStream(opts)
	defer ns.Close()

	ns.SetStatusHandler(func(st player.Status) {
		if st.Level == player.LevelError {
			log.Error("status", "code", st.Code, "time", ns.Time())
			return
		}
		log.Info("status", "code", st.Code, "time", ns.Time())
	})

	if err := ns.Play(url); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		return drive(ctx, ns, snapshot, log)
	})
	if met != nil {
		g.Go(func() error {
			// the server lives as long as playback
			sctx, cancel := context.WithCancel(ctx)
			defer cancel()
			go func() {
				<-done
				cancel()
			}()
			return met.Serve(sctx, cfg.Metrics.Addr, log)
		})
	}
	return g.Wait()
}

// drive advances ns until it stops, fails or ctx is done.
func drive(ctx context.Context, ns *player.NetStream, snapshot string, log *slog.Logger) error {
	ticker := time.NewTicker(advanceInterval)
	defer ticker.Stop()

	frames := 0
	for {
		select {
		case <-ctx.Done():
			log.Info("stopping", "reason", context.Cause(ctx), "frames", frames, "time", ns.Time())
			return nil
		case <-ticker.C:
		}

		ns.Advance()
		if ns.NewFrameReady() {
			frames++
			if frames == 1 && snapshot != "" {
				if err := writeSnapshot(snapshot, ns.VideoFrame()); err != nil {
					log.Warn("snapshot failed", "error", err)
				} else {
					log.Info("snapshot written", "path", snapshot)
				}
			}
		}

		switch ns.State() {
		case player.StateStopped:
			log.Info("playback finished", "frames", frames, "time", ns.Time(),
				"bytes", ns.BytesLoaded())
			return nil
		case player.StateError:
			return errPlaybackFailed
		}
	}
}

func writeSnapshot(path string, f *player.VideoFrame) error {
	if f == nil {
		return errors.New("no frame")
	}
	img, err := player.ScaleFrame(f, f.Width, f.Height)
	if err != nil {
		return err
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
