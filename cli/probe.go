package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/njyeung/netplay/player"
)

func newProbeCmd(a *app) *cobra.Command {
	var (
		asJSON  bool
		packets int
	)

	cmd := &cobra.Command{
		Use:   "probe <url>",
		Short: "Open a stream and report its format and first packets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runProbe(cmd.Context(), cmd.OutOrStdout(), args[0], packets, asJSON)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&asJSON, "json", false, "output as JSON")
	f.IntVar(&packets, "packets", 256, "packets to read from the start of the stream")
	f.Bool("no-audio", false, "skip opening the audio decoder")
	f.Int("seek-scan-limit", player.DefaultSeekScanLimit, "packets read forward while looking for a seek target")
	return cmd
}

func (a *app) runProbe(ctx context.Context, out io.Writer, url string, packets int, asJSON bool) error {
	log, closer, err := a.logger(os.Stderr)
	if err != nil {
		return err
	}
	defer closer.Close()

	info, err := player.Probe(ctx, url, player.ProbeOptions{
		MaxPackets:    packets,
		NoAudio:       !a.cfg.Audio.Enabled,
		SeekScanLimit: a.cfg.Player.SeekScanLimit,
		Logger:        log,
	})
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	return writeProbe(out, info)
}

func writeProbe(out io.Writer, info player.ProbeInfo) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "url\t%s\n", info.URL)
	fmt.Fprintf(w, "format\t%s\n", info.Format)
	fmt.Fprintf(w, "audio\t%t\n", info.HasAudio)
	fmt.Fprintf(w, "frame rate\t%.3f fps\n", info.FrameRate())
	fmt.Fprintf(w, "bytes\t%d\n", info.BytesTotal)
	fmt.Fprintf(w, "packets\t%d video, %d audio\n", info.VideoPackets, info.AudioPackets)
	fmt.Fprintf(w, "dts\t%.3fs .. %.3fs\n", info.FirstDTS, info.LastDTS)
	return w.Flush()
}
