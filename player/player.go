package player

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// Config configures a Player.
type Config struct {
	Stream Options

	// Output receives the Kitty image escapes; nil uses os.Stdout.
	Output io.Writer

	Audio  bool
	Volume float64
	Muted  bool
	UseShm bool
}

// Player connects a NetStream to the terminal renderer and the speaker.
type Player struct {
	ns       *NetStream
	renderer *KittyRenderer
	sink     *AudioSink
	log      *slog.Logger

	muted atomic.Bool

	// last frame size the renderer was placed for
	placeMu sync.Mutex
	placedW int
	placedH int
}

// New creates a player. With audio enabled it opens the speaker.
func New(cfg Config) (*Player, error) {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	log := cfg.Stream.Logger
	if log == nil {
		log = slog.Default()
	}

	if cfg.Audio {
		if err := InitSpeaker(); err != nil {
			return nil, fmt.Errorf("failed to init speaker: %w", err)
		}
	} else {
		cfg.Stream.NoAudio = true
	}

	p := &Player{
		ns:       NewNetStream(cfg.Stream),
		renderer: NewKittyRenderer(cfg.Output),
		log:      log.With("component", "player"),
	}
	p.renderer.SetUseShm(cfg.UseShm)
	p.muted.Store(cfg.Muted)

	if cfg.Audio {
		p.sink = NewAudioSink(p.ns.ReadAudio, cfg.Volume, cfg.Muted)
	}
	return p, nil
}

// Stream returns the underlying NetStream.
func (p *Player) Stream() *NetStream {
	return p.ns
}

// Play starts streaming url and attaches the audio sink.
func (p *Player) Play(url string) error {
	if err := p.ns.Play(url); err != nil {
		return err
	}
	if p.sink != nil {
		p.sink.Stop()
		p.sink.Start()
	}
	return nil
}

// Tick advances the stream and draws a newly presented frame. It reports
// whether a frame was drawn.
func (p *Player) Tick() (bool, error) {
	p.ns.Advance()
	if !p.ns.NewFrameReady() {
		return false, nil
	}

	f := p.ns.VideoFrame()
	if f == nil {
		return false, nil
	}

	p.placeMu.Lock()
	if f.Width != p.placedW || f.Height != p.placedH {
		PlaceRenderer(p.renderer, f.Width, f.Height)
		p.placedW, p.placedH = f.Width, f.Height
	}
	p.placeMu.Unlock()

	if err := p.renderer.RenderFrame(f); err != nil {
		return false, fmt.Errorf("render error: %w", err)
	}
	return true, nil
}

// TogglePause pauses or resumes playback
func (p *Player) TogglePause() error {
	return p.ns.Pause(PauseToggle)
}

// SeekBy seeks relative to the current position.
func (p *Player) SeekBy(delta float64) error {
	return p.ns.Seek(p.ns.Time() + delta)
}

// ToggleMute toggles mute state and returns the new value
func (p *Player) ToggleMute() bool {
	if p.sink == nil {
		return p.muted.Load()
	}
	muted := p.sink.ToggleMute()
	p.muted.Store(muted)
	return muted
}

// IsMuted returns current mute state
func (p *Player) IsMuted() bool {
	return p.muted.Load()
}

// SetOutput sets the writer for video frames
func (p *Player) SetOutput(w io.Writer) {
	p.renderer.SetOutput(w)
}

// Replace forces the renderer to be re-placed on the next frame, e.g. after
// a terminal resize.
func (p *Player) Replace() {
	p.placeMu.Lock()
	defer p.placeMu.Unlock()
	p.placedW, p.placedH = 0, 0
}

// Close releases all resources
func (p *Player) Close() {
	if p.sink != nil {
		p.sink.Stop()
	}
	p.ns.Close()
	if err := p.renderer.Clear(); err != nil {
		p.log.Debug("failed to clear renderer", "error", err)
	}
}
