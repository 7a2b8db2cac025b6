// Package ui provides the live status view: a small bubbletea program that
// mirrors the daemon's state and drives it with single keystrokes.
package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/atk/internal/client"
	"github.com/dgnsrekt/atk/internal/protocol"
)

const ellipsis = "…"

// Config contains TUI-specific configuration.
type Config struct {
	RuntimeDir string

	// How often the view refreshes between pushed events.
	RefreshInterval time.Duration
}

// NewProgram returns a new Tea program connected to the daemon.
func NewProgram(cfg Config) *tea.Program {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Second
	}
	log.Debug("starting status view", "runtime_dir", cfg.RuntimeDir)
	return tea.NewProgram(newModel(cfg), tea.WithAltScreen())
}

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

type (
	statusMsg  map[string]interface{}
	queueMsg   map[string]interface{}
	eventMsg   protocol.Event
	refreshMsg struct{}
	eventsDone struct{}
)

// status is the parsed form of the daemon's status payload.
type status struct {
	State    string
	Title    string
	Position float64
	Duration float64
	Volume   float64
	Rate     float64
	Pitch    float64
	Mode     string
	Repeat   string
	Shuffle  bool
	QueuePos int
	QueueLen int
}

func statusFromData(data map[string]interface{}) status {
	var st status
	st.State, _ = data["state"].(string)
	st.Position, _ = data["position"].(float64)
	st.Duration, _ = data["duration"].(float64)
	st.Volume, _ = data["volume"].(float64)
	st.Rate, _ = data["rate"].(float64)
	st.Pitch, _ = data["pitch"].(float64)
	st.Mode, _ = data["mode"].(string)
	st.Repeat, _ = data["repeat"].(string)
	st.Shuffle, _ = data["shuffle"].(bool)
	if v, ok := data["queue_position"].(float64); ok {
		st.QueuePos = int(v)
	}
	if v, ok := data["queue_length"].(float64); ok {
		st.QueueLen = int(v)
	}
	if tr, ok := data["track"].(map[string]interface{}); ok {
		st.Title, _ = tr["title"].(string)
		if st.Title == "" {
			if uri, ok := tr["uri"].(string); ok {
				st.Title = filepath.Base(uri)
			}
		}
	}
	return st
}

// row is one queue entry in the listing.
type row struct {
	Label    string
	Duration float64
}

func rowsFromData(data map[string]interface{}) ([]row, int) {
	raw, _ := data["tracks"].([]interface{})
	rows := make([]row, 0, len(raw))
	for _, r := range raw {
		tr, _ := r.(map[string]interface{})
		label, _ := tr["title"].(string)
		if label == "" {
			if uri, ok := tr["uri"].(string); ok {
				label = filepath.Base(uri)
			}
		}
		dur, _ := tr["duration"].(float64)
		rows = append(rows, row{Label: label, Duration: dur})
	}
	current := -1
	if v, ok := data["current_index"].(float64); ok {
		current = int(v)
	}
	return rows, current
}

type keyMap struct {
	PlayPause key.Binding
	Next      key.Binding
	Prev      key.Binding
	SeekFwd   key.Binding
	SeekBack  key.Binding
	VolUp     key.Binding
	VolDown   key.Binding
	Shuffle   key.Binding
	Repeat    key.Binding
	Quit      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		PlayPause: key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "play/pause")),
		Next:      key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next")),
		Prev:      key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "prev")),
		SeekFwd:   key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→", "seek +5s")),
		SeekBack:  key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←", "seek -5s")),
		VolUp:     key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "louder")),
		VolDown:   key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "quieter")),
		Shuffle:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "shuffle")),
		Repeat:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "repeat")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.PlayPause, k.Next, k.Prev, k.SeekFwd, k.VolUp, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.PlayPause, k.Next, k.Prev},
		{k.SeekFwd, k.SeekBack, k.VolUp, k.VolDown},
		{k.Shuffle, k.Repeat, k.Quit},
	}
}

type model struct {
	cfg    Config
	cli    *client.Client
	keys   keyMap
	help   help.Model
	bar    progress.Model
	cancel context.CancelFunc
	events chan protocol.Event

	status  status
	rows    []row
	current int
	width   int
	height  int
	err     error
}

func newModel(cfg Config) *model {
	m := &model{
		cfg:     cfg,
		cli:     client.New(cfg.RuntimeDir),
		keys:    defaultKeyMap(),
		help:    help.New(),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		events:  make(chan protocol.Event, 32),
		current: -1,
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go func() {
		defer close(m.events)
		err := m.cli.Subscribe(ctx, func(ev protocol.Event) {
			select {
			case m.events <- ev:
			default:
			}
		})
		if err != nil && ctx.Err() == nil {
			log.Debug("event stream ended", "err", err)
		}
	}()
	return m
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.fetchStatus(), m.fetchQueue(), m.waitForEvent(), m.refreshLater())
}

// command sends one daemon command and folds the fresh status back into the
// model.
func (m *model) command(cmd string, args map[string]interface{}) tea.Cmd {
	return func() tea.Msg {
		if _, err := m.cli.Command(cmd, args); err != nil {
			return errMsg{err}
		}
		return m.fetchStatus()()
	}
}

func (m *model) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		resp, err := m.cli.Command("status", nil)
		if err != nil {
			return errMsg{err}
		}
		return statusMsg(resp.Data)
	}
}

func (m *model) fetchQueue() tea.Cmd {
	return func() tea.Msg {
		resp, err := m.cli.Command("queue", nil)
		if err != nil {
			return errMsg{err}
		}
		return queueMsg(resp.Data)
	}
}

func (m *model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return eventsDone{}
		}
		return eventMsg(ev)
	}
}

func (m *model) refreshLater() tea.Cmd {
	return tea.Tick(m.cfg.RefreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.bar.Width = msg.Width - 4
		if m.bar.Width > 60 {
			m.bar.Width = 60
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case statusMsg:
		m.err = nil
		m.status = statusFromData(msg)
		return m, nil

	case queueMsg:
		m.rows, m.current = rowsFromData(msg)
		return m, nil

	case eventMsg:
		return m.handleEvent(protocol.Event(msg))

	case refreshMsg:
		cmds := []tea.Cmd{m.refreshLater()}
		if m.status.State == "playing" || m.err != nil {
			cmds = append(cmds, m.fetchStatus())
		}
		return m, tea.Batch(cmds...)

	case eventsDone:
		return m, nil

	case errMsg:
		m.err = msg.err
		return m, nil
	}
	return m, nil
}

func (m *model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit
	case key.Matches(msg, m.keys.PlayPause):
		if m.status.State == "playing" {
			return m, m.command("pause", nil)
		}
		return m, m.command("play", nil)
	case key.Matches(msg, m.keys.Next):
		return m, m.command("next", nil)
	case key.Matches(msg, m.keys.Prev):
		return m, m.command("prev", nil)
	case key.Matches(msg, m.keys.SeekFwd):
		return m, m.command("seek", map[string]interface{}{"pos": 5.0, "relative": true})
	case key.Matches(msg, m.keys.SeekBack):
		return m, m.command("seek", map[string]interface{}{"pos": -5.0, "relative": true})
	case key.Matches(msg, m.keys.VolUp):
		return m, m.command("volume", map[string]interface{}{"level": m.status.Volume + 0.05})
	case key.Matches(msg, m.keys.VolDown):
		return m, m.command("volume", map[string]interface{}{"level": m.status.Volume - 0.05})
	case key.Matches(msg, m.keys.Shuffle):
		return m, m.command("shuffle", map[string]interface{}{"enabled": !m.status.Shuffle})
	case key.Matches(msg, m.keys.Repeat):
		return m, m.command("repeat", map[string]interface{}{"mode": nextRepeat(m.status.Repeat)})
	}
	return m, nil
}

func nextRepeat(mode string) string {
	switch mode {
	case "none":
		return "queue"
	case "queue":
		return "track"
	default:
		return "none"
	}
}

// handleEvent folds one pushed event into the model. Position updates carry
// enough to move the bar; anything structural triggers a refetch.
func (m *model) handleEvent(ev protocol.Event) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{m.waitForEvent()}
	switch ev.Event {
	case "position_update":
		if pos, ok := ev.Data["position"].(float64); ok {
			m.status.Position = pos
		}
		if dur, ok := ev.Data["duration"].(float64); ok {
			m.status.Duration = dur
		}
	case "queue_changed":
		m.rows, m.current = rowsFromData(ev.Data)
		cmds = append(cmds, m.fetchStatus())
	case "track_changed", "playback_state_changed", "volume_changed", "queue_finished":
		cmds = append(cmds, m.fetchStatus())
	case "error":
		if text, ok := ev.Data["message"].(string); ok {
			m.err = fmt.Errorf("%s", text)
		}
	}
	return m, tea.Batch(cmds...)
}

func (m *model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("atk"))
	b.WriteString("  ")
	b.WriteString(stateStyle(m.status.State))
	b.WriteString("\n\n")

	title := m.status.Title
	if title == "" {
		title = "nothing loaded"
	}
	b.WriteString(trackStyle.Render(truncate(title, m.width-2)))
	b.WriteString("\n")

	if m.status.Duration > 0 {
		pct := m.status.Position / m.status.Duration
		b.WriteString(m.bar.ViewAs(pct))
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %s / %s",
			clock(m.status.Position), clock(m.status.Duration))))
	}
	b.WriteString("\n")

	b.WriteString(dimStyle.Render(fmt.Sprintf(
		"vol %.0f%%  rate %.2fx (%s)  pitch %+.1f  shuffle %v  repeat %s",
		m.status.Volume*100, m.status.Rate, m.status.Mode,
		m.status.Pitch, m.status.Shuffle, m.status.Repeat)))
	b.WriteString("\n\n")

	b.WriteString(m.viewQueue())

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errStyle.Render(truncate(m.err.Error(), m.width-2)))
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *model) viewQueue() string {
	if len(m.rows) == 0 {
		return dimStyle.Render("queue is empty") + "\n"
	}

	visible := len(m.rows)
	if max := m.height - 12; max > 0 && visible > max {
		visible = max
	}

	var b strings.Builder
	for i := 0; i < visible; i++ {
		r := m.rows[i]
		line := fmt.Sprintf("%2d  %s", i, r.Label)
		if r.Duration > 0 {
			line += "  " + clock(r.Duration)
		}
		line = truncate(line, m.width-4)
		if i == m.current {
			b.WriteString(currentStyle.Render("▸ " + line))
		} else {
			b.WriteString("  " + dimStyle.Render(line))
		}
		b.WriteString("\n")
	}
	if visible < len(m.rows) {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %s %d more", ellipsis, len(m.rows)-visible)))
		b.WriteString("\n")
	}
	return b.String()
}

func clock(secs float64) string {
	if secs < 0 {
		secs = 0
	}
	total := int(secs)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + ellipsis
}
