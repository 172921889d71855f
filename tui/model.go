package tui

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/njyeung/netplay/player"
)

// Messages
type (
	tickMsg       time.Time
	startedMsg    struct{}
	startErrorMsg struct{ err error }
	seekDoneMsg   struct{ err error }
)

type screen int

const (
	screenLoading screen = iota
	screenPlaying
	screenFinished
	screenError
)

const (
	tickInterval = 10 * time.Millisecond
	seekStep     = 5.0

	// ReservedRows is how many text rows the player view keeps below the video.
	ReservedRows = 4
)

// Model is the Bubble Tea model
type Model struct {
	screen   screen
	player   *player.Player
	url      string
	statuses *statusInbox
	log      *slog.Logger

	width    int
	height   int
	spinner  spinner.Model
	progress progress.Model
	status   string
	err      error
}

// NewModel creates a model that plays url on p. It takes over p's status
// handler.
func NewModel(p *player.Player, url string, log *slog.Logger) Model {
	if log == nil {
		log = slog.Default()
	}

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	statuses := &statusInbox{}
	p.Stream().SetStatusHandler(statuses.push)

	return Model{
		screen:   screenLoading,
		player:   p,
		url:      url,
		statuses: statuses,
		log:      log.With("component", "tui"),
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		status:   "Connecting...",
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.start,
		tick(),
	)
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) start() tea.Msg {
	if err := m.player.Play(m.url); err != nil {
		return startErrorMsg{err}
	}
	return startedMsg{}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.player.Close()
			return m, tea.Quit
		}
		return m.updateKeys(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = max(min(msg.Width-4, 60), 10)
		m.player.Replace()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		if _, err := m.player.Tick(); err != nil {
			m.log.Debug("frame not drawn", "error", err)
		}
		m.drainStatuses()
		m.syncScreen()
		return m, tick()

	case startedMsg:
		return m, nil

	case startErrorMsg:
		m.screen = screenError
		m.err = msg.err
		return m, nil

	case seekDoneMsg:
		if msg.err != nil {
			m.log.Debug("seek failed", "error", msg.err)
		}
		return m, nil
	}

	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case " ":
		if err := m.player.TogglePause(); err != nil && !errors.Is(err, player.ErrNotPlaying) {
			m.log.Warn("pause failed", "error", err)
		}

	case "left", "h":
		return m, m.seekBy(-seekStep)

	case "right", "l":
		return m, m.seekBy(seekStep)

	case "0", "home":
		return m, func() tea.Msg {
			return seekDoneMsg{m.player.Stream().Seek(0)}
		}

	case "m":
		m.player.ToggleMute()

	case "r":
		if m.screen == screenFinished {
			m.screen = screenLoading
			m.status = "Connecting..."
			return m, m.start
		}
	}

	return m, nil
}

// seekBy seeks off the UI goroutine, since a seek waits for any packet
// read in flight.
func (m Model) seekBy(delta float64) tea.Cmd {
	return func() tea.Msg {
		return seekDoneMsg{m.player.SeekBy(delta)}
	}
}

// statusInbox collects statuses from the stream's handler until the next
// Update drains them.
type statusInbox struct {
	mu    sync.Mutex
	items []player.Status
}

func (b *statusInbox) push(st player.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, st)
}

func (b *statusInbox) drain() []player.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	return items
}

// drainStatuses consumes the statuses dispatched by the last Tick.
func (m *Model) drainStatuses() {
	for _, st := range m.statuses.drain() {
		m.status = st.Code
		if st.Level == player.LevelError {
			m.err = fmt.Errorf("%s", st.Code)
		}
	}
}

func (m *Model) syncScreen() {
	switch m.player.Stream().State() {
	case player.StateBuffering, player.StatePlaying, player.StatePaused:
		m.screen = screenPlaying
	case player.StateStopped:
		if m.screen != screenLoading {
			m.screen = screenFinished
		}
	case player.StateError:
		m.screen = screenError
		if m.err == nil {
			m.err = errors.New("playback failed")
		}
	}
}

// View renders the UI
func (m Model) View() string {
	switch m.screen {
	case screenLoading:
		return m.viewLoading()
	case screenError:
		return m.viewError()
	default:
		return m.viewPlayer()
	}
}
