package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/leafrun/internal/config"
	"github.com/five82/leafrun/internal/controller"
	"github.com/five82/leafrun/internal/prefs"
	"github.com/five82/leafrun/internal/state"
	"github.com/five82/leafrun/internal/syncer"
)

// View represents the current view mode.
type View int

const (
	ViewPoints View = iota
	ViewLogs
)

const flashTTL = 6 * time.Second

// Options configures the UI.
type Options struct {
	Context    context.Context
	Controller *controller.Controller
	Store      *state.Store
	Config     *config.Config
	Prefs      prefs.Prefs
	PrefsPath  string
	PollTick   time.Duration
}

// Model is the main Bubble Tea model.
type Model struct {
	ctx       context.Context
	ctrl      *controller.Controller
	store     *state.Store
	cfg       *config.Config
	prefs     prefs.Prefs
	prefsPath string
	pollTick  time.Duration

	theme       Theme
	keys        keyMap
	currentView View
	snapshot    state.Snapshot

	cursor   int
	dialog   Modal
	showHelp bool
	logs     logState

	inflight int
	busy     bool
	flash    string
	flashErr bool
	flashAt  time.Time

	width  int
	height int
	ready  bool
}

// New creates a new UI model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	poll := opts.PollTick
	if poll <= 0 {
		poll = DefaultUIInterval
	}
	logPath := ""
	if opts.Config != nil {
		logPath = opts.Config.LogPath()
	}
	return Model{
		ctx:       ctx,
		ctrl:      opts.Controller,
		store:     opts.Store,
		cfg:       opts.Config,
		prefs:     opts.Prefs,
		prefsPath: opts.PrefsPath,
		pollTick:  poll,
		theme:     GetTheme(opts.Prefs.Theme),
		keys:      DefaultKeyMap(),
		logs:      newLogState(logPath),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tea.EnterAltScreen,
		tickCmd(m.pollTick),
	}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.logs.path != "" {
		cmds = append(cmds, m.logs.fetchCmd())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resizeLogs(msg.Width, m.contentHeight())
		return m, nil

	case tickMsg:
		return m.handleTick(time.Time(msg))

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		m.moveCursor(0)
		return m, nil

	case logsMsg:
		m.applyLogs(msg)
		return m, nil

	case completeRequest:
		req := msg
		ctrl := m.ctrl
		return m.startAction(func(ctx context.Context) (string, error) {
			_, err := ctrl.CompletePoint(ctx, req.PointID, req.Leaflets, req.Photo)
			return "", err
		})

	case actionDoneMsg:
		m.inflight = max(m.inflight-1, 0)
		m.busy = m.inflight > 0
		switch {
		case msg.err != nil:
			m.setFlash(msg.err.Error(), true)
		case msg.text != "":
			m.setFlash(msg.text, false)
		default:
			m.flash = ""
		}
		if m.store != nil {
			return m, fetchSnapshotCmd(m.store)
		}
		return m, nil
	}

	if m.dialog != nil {
		var cmd tea.Cmd
		var closed bool
		m.dialog, cmd, closed = m.dialog.Update(msg, m.keys)
		if closed {
			m.dialog = nil
		}
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	if m.dialog != nil {
		return m.dialog.View(m.theme, m.width, m.height)
	}
	return m.renderMain()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.dialog != nil {
		var cmd tea.Cmd
		var closed bool
		m.dialog, cmd, closed = m.dialog.Update(msg, m.keys)
		if closed {
			m.dialog = nil
		}
		return m, cmd
	}

	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.prefs.Theme = NextTheme(m.theme.Name)
		m.theme = GetTheme(m.prefs.Theme)
		m.refreshLogViewport()
		m.savePrefs()
		return m, nil

	case key.Matches(msg, m.keys.Tab):
		if m.currentView == ViewPoints {
			return m.switchView(ViewLogs)
		}
		return m.switchView(ViewPoints)

	case key.Matches(msg, m.keys.ViewPoints), key.Matches(msg, m.keys.Escape):
		return m.switchView(ViewPoints)

	case key.Matches(msg, m.keys.ViewLogs):
		return m.switchView(ViewLogs)

	case key.Matches(msg, m.keys.Sync):
		return m.startAction(m.syncAction)

	case key.Matches(msg, m.keys.Reload):
		ctrl := m.ctrl
		return m.startAction(func(ctx context.Context) (string, error) {
			return "", ctrl.Load(ctx)
		})
	}

	if m.currentView == ViewLogs {
		return m.handleLogKey(msg)
	}
	return m.handlePointsKey(msg)
}

func (m Model) handlePointsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)
	case key.Matches(msg, m.keys.Top):
		m.cursor = 0
	case key.Matches(msg, m.keys.Bottom):
		m.cursor = len(visiblePoints(m.snapshot.Route.Points, m.prefs.HideCompleted)) - 1
		m.moveCursor(0)

	case key.Matches(msg, m.keys.HideComplete):
		m.prefs.HideCompleted = !m.prefs.HideCompleted
		m.moveCursor(0)
		m.savePrefs()

	case key.Matches(msg, m.keys.Complete):
		p, ok := m.selectedPoint()
		if !ok {
			return m, nil
		}
		if p.Completed {
			m.setFlash(fmt.Sprintf("Point %d is already completed", p.ID), true)
			return m, nil
		}
		m.dialog = newCompleteDialog(p)
		return m, textinput.Blink

	case key.Matches(msg, m.keys.Report):
		ctrl := m.ctrl
		return m.startAction(func(ctx context.Context) (string, error) {
			_, err := ctrl.SendReport(ctx)
			return "", err
		})

	case key.Matches(msg, m.keys.Optimize):
		ctrl := m.ctrl
		return m.startAction(func(ctx context.Context) (string, error) {
			return "", ctrl.Optimize(ctx)
		})
	}
	return m, nil
}

func (m Model) handleLogKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ToggleFollow):
		m.logs.follow = !m.logs.follow
		if m.logs.follow {
			m.logs.viewport.GotoBottom()
			return m, m.logs.fetchCmd()
		}
		return m, nil
	case key.Matches(msg, m.keys.Top):
		m.logs.follow = false
		m.logs.viewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.logs.viewport.GotoBottom()
		return m, nil
	}
	if key.Matches(msg, m.keys.Up) {
		m.logs.follow = false
	}
	var cmd tea.Cmd
	m.logs.viewport, cmd = m.logs.viewport.Update(msg)
	return m, cmd
}

func (m Model) switchView(v View) (tea.Model, tea.Cmd) {
	m.currentView = v
	if v == ViewLogs && m.logs.path != "" {
		return m, m.logs.fetchCmd()
	}
	return m, nil
}

func (m Model) syncAction(ctx context.Context) (string, error) {
	res, err := m.ctrl.Sync(ctx)
	switch {
	case errors.Is(err, syncer.ErrOffline):
		return "Offline: queued actions will sync when the connection returns", nil
	case errors.Is(err, syncer.ErrDrainInProgress):
		return "A sync is already running", nil
	case err != nil:
		return "", err
	}
	if res.Synced == 0 && res.Failed == 0 {
		return "Nothing to sync", nil
	}
	return fmt.Sprintf("Synced %d, failed %d", res.Synced, res.Failed), nil
}

// startAction runs fn off the UI goroutine with a bounded context.
func (m Model) startAction(fn func(context.Context) (string, error)) (tea.Model, tea.Cmd) {
	if m.ctrl == nil {
		return m, nil
	}
	m.inflight++
	m.busy = true
	parent := m.ctx
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, ActionTimeout)
		defer cancel()
		text, err := fn(ctx)
		return actionDoneMsg{text: text, err: err}
	}
}

func (m *Model) savePrefs() {
	if strings.TrimSpace(m.prefsPath) == "" {
		return
	}
	if err := prefs.Save(m.prefsPath, m.prefs); err != nil {
		m.setFlash("Saving preferences failed: "+err.Error(), true)
	}
}

func (m *Model) setFlash(text string, isErr bool) {
	m.flash = text
	m.flashErr = isErr
	m.flashAt = time.Now()
}

func (m Model) handleTick(now time.Time) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.currentView == ViewLogs && m.logs.follow && m.logs.path != "" {
		cmds = append(cmds, m.logs.fetchCmd())
	}
	if m.flash != "" && now.Sub(m.flashAt) > flashTTL {
		m.flash = ""
	}
	cmds = append(cmds, tickCmd(m.pollTick))
	return m, tea.Batch(cmds...)
}

// contentHeight is the terminal height minus the two header lines and the
// status line.
func (m Model) contentHeight() int {
	return max(m.height-3, 1)
}

func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")

	content := m.renderContent()
	b.WriteString(content)
	if pad := m.contentHeight() - strings.Count(content, "\n") - 1; pad > 0 {
		b.WriteString(strings.Repeat("\n", pad))
	}
	b.WriteString("\n")
	b.WriteString(m.renderStatusLine())
	return b.String()
}

func (m Model) renderContent() string {
	if m.currentView == ViewLogs {
		return m.renderLogs()
	}
	return m.renderPoints(m.contentHeight())
}

type tickMsg time.Time

type snapshotMsg state.Snapshot

type actionDoneMsg struct {
	text string
	err  error
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

// Run starts the Bubble Tea program and blocks until the user quits or the
// context is cancelled.
func Run(opts Options) error {
	if opts.Controller == nil || opts.Store == nil {
		return errors.New("ui: controller and store are required")
	}
	m := New(opts)
	programOpts := []tea.ProgramOption{tea.WithAltScreen()}
	if opts.Context != nil {
		programOpts = append(programOpts, tea.WithContext(opts.Context))
	}
	p := tea.NewProgram(m, programOpts...)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && opts.Context != nil && opts.Context.Err() != nil {
		return nil
	}
	return err
}
