// Package tui provides a terminal dashboard over the incident store.
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/user/pingwatch/internal/daemon"
	"github.com/user/pingwatch/internal/model"
	"github.com/user/pingwatch/internal/util"
)

const (
	refreshInterval = 5 * time.Second
	recentLimit     = 5
)

// Source is the read side of the incident store.
type Source interface {
	GetStatistics(ctx context.Context) model.Statistics
	GetUnresolvedIncidents(ctx context.Context) []model.Incident
	GetRecentIncidents(ctx context.Context, limit int) []model.Incident
}

// App is the main TUI application.
type App struct {
	store  Source
	config *util.Config
}

// NewApp creates a new TUI application.
func NewApp(store Source, cfg *util.Config) *App {
	return &App{
		store:  store,
		config: cfg,
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(newModel(a.store, a.config), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

type keyMap struct {
	Refresh key.Binding
	Quit    key.Binding
}

var keys = keyMap{
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

// appModel is the main bubbletea model.
type appModel struct {
	store     Source
	config    *util.Config
	dashboard *Dashboard
	spinner   spinner.Model
	ready     bool
	width     int
	height    int
}

func newModel(store Source, cfg *util.Config) appModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(Primary)

	return appModel{
		store:   store,
		config:  cfg,
		spinner: s,
	}
}

// Init initializes the model.
func (m appModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		loadData(m.store, m.config),
		scheduleRefresh(),
	)
}

// Update handles messages.
func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Refresh):
			return m, loadData(m.store, m.config)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.dashboard != nil {
			m.dashboard.SetSize(msg.Width, msg.Height)
		}

	case refreshMsg:
		return m, tea.Batch(loadData(m.store, m.config), scheduleRefresh())

	case dataMsg:
		m.ready = true
		m.dashboard = NewDashboard(msg.Data, m.width, m.height)

	case spinner.TickMsg:
		if m.ready {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the UI.
func (m appModel) View() string {
	if !m.ready {
		return LoadingStyle.Render(m.spinner.View() + " Loading...")
	}

	return m.dashboard.View()
}

// Messages
type dataMsg struct {
	Data *DashboardData
}

type refreshMsg struct{}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return refreshMsg{}
	})
}

func loadData(store Source, cfg *util.Config) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return dataMsg{Data: fetchDashboardData(ctx, store, cfg)}
	}
}

// fetchDashboardData never fails: the store degrades to empty results and
// a missing status file just means the daemon is not running.
func fetchDashboardData(ctx context.Context, store Source, cfg *util.Config) *DashboardData {
	data := &DashboardData{
		Stats:     store.GetStatistics(ctx),
		Open:      store.GetUnresolvedIncidents(ctx),
		Recent:    store.GetRecentIncidents(ctx, recentLimit),
		FetchedAt: time.Now(),
	}

	openByHost := make(map[string]model.Incident)
	// Open is newest first, so the last write per host is its oldest open incident
	for _, inc := range data.Open {
		openByHost[inc.Host] = inc
	}
	for _, host := range cfg.Hosts {
		hs := HostState{Host: host}
		if inc, ok := openByHost[host]; ok {
			hs.Down = true
			hs.Since = inc.Timestamp
			hs.Error = inc.PingResult.Error
		}
		data.Hosts = append(data.Hosts, hs)
	}

	data.DaemonRunning, data.DaemonPID = daemon.CheckRunning(cfg.DataDir)
	if data.DaemonRunning {
		if sf, err := daemon.ReadStatusFile(cfg.DataDir); err == nil {
			data.Status = sf
		}
	}

	return data
}
