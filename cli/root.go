// Package cli implements the netplay command line.
package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/njyeung/netplay/internal/config"
	"github.com/njyeung/netplay/internal/observability"
	"github.com/njyeung/netplay/internal/version"
)

// flagKeys maps command flags to the config keys they override. Flags are
// not bound to viper; a flag only wins when the user set it, so env and file
// values survive flag defaults.
var flagKeys = map[string]string{
	"log-level":       "logging.level",
	"log-format":      "logging.format",
	"log-file":        "logging.file",
	"buffer-time":     "player.buffer_time",
	"render-mode":     "player.render_mode",
	"video-queue":     "player.video_queue_size",
	"audio-queue":     "player.audio_queue_size",
	"seek-scan-limit": "player.seek_scan_limit",
	"volume":          "audio.volume",
	"muted":           "audio.muted",
	"width":           "display.width",
	"height":          "display.height",
	"metrics-addr":    "metrics.addr",
}

// negatedFlags are boolean flags that switch a config key off.
var negatedFlags = map[string]string{
	"no-audio": "audio.enabled",
	"no-shm":   "display.shm",
}

// app is the state shared by every command of one invocation.
type app struct {
	cfgFile string
	envFile string
	v       *viper.Viper
	cfg     *config.Config
}

// Execute runs the root command.
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	cmd := &cobra.Command{
		Use:     "netplay",
		Short:   "Stream video into a Kitty graphics terminal",
		Version: version.Short(),
		Long: `netplay downloads FLV and other media progressively, decodes it with FFmpeg,
and plays it in a terminal that speaks the Kitty graphics protocol, with
audio through the system speaker.

Configuration is read from netplay.yaml, NETPLAY_* environment variables
(optionally from a .env file) and command flags, in increasing priority.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.Flags())
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is ./netplay.yaml or $HOME/.config/netplay/netplay.yaml)")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	pf.String("log-level", "info", "log level (debug, info, warn, error)")
	pf.String("log-format", "text", "log format (text, json)")
	pf.String("log-file", "", "append logs to this file")

	cmd.AddCommand(newPlayCmd(a), newProbeCmd(a), newVersionCmd())
	return cmd
}

// load reads the dotenv file, applies changed flags and loads the config.
func (a *app) load(flags *pflag.FlagSet) error {
	if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", a.envFile, err)
	}

	applyFlags(a.v, flags)

	cfg, err := config.LoadWith(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

// applyFlags copies every flag the user set onto its config key.
func applyFlags(v *viper.Viper, flags *pflag.FlagSet) {
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil && f.Changed {
			v.Set(key, f.Value.String())
		}
	}
	for name, key := range negatedFlags {
		if f := flags.Lookup(name); f != nil && f.Changed {
			off, _ := flags.GetBool(name)
			v.Set(key, !off)
		}
	}
}

// logger opens the configured logger, writing to fallback when no log file
// is set, and makes it the process default.
func (a *app) logger(fallback io.Writer) (*slog.Logger, io.Closer, error) {
	log, closer, err := observability.OpenLogger(a.cfg.Logging, fallback)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(log)
	return log, closer, nil
}
