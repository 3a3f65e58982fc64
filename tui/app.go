// Package tui is the operator dashboard: run history, persisted deals and a
// live tail of the daemon log. Commands are queued through the store for the
// running daemon to pick up.
package tui

import (
	"context"
	"fmt"
	"time"

	"deal_watcher/models"
	"deal_watcher/tui/styles"
	"deal_watcher/tui/views"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type tab int

const (
	tabDashboard tab = iota
	tabDeals
	tabCount
)

var tabNames = []string{"Dashboard", "Deals"}

type tickMsg time.Time
type logTickMsg time.Time

type commandSentMsg struct {
	cmd models.CommandType
	id  int64
	err error
}

type Model struct {
	src           views.Source
	activeTab     tab
	width, height int
	notification  string
	notifyUntil   time.Time

	dashboard views.Dashboard
	deals     views.Deals
}

func New(src views.Source, logPath string) Model {
	return Model{
		src:       src,
		dashboard: views.NewDashboard(src, logPath),
		deals:     views.NewDeals(src),
	}
}

// Run blocks until the user quits or ctx is cancelled.
func Run(ctx context.Context, src views.Source, logPath string) error {
	p := tea.NewProgram(New(src, logPath), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.dashboard.Init(), m.deals.Init(), tickCmd(), logTickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(30*time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func logTickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg { return logTickMsg(t) })
}

func (m Model) sendCommand(c models.CommandType) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		id, err := m.src.InsertCommand(ctx, c)
		return commandSentMsg{cmd: c, id: id, err: err}
	}
}

func (m Model) notify(text string) Model {
	m.notification = text
	m.notifyUntil = time.Now().Add(3 * time.Second)
	return m
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "d":
			m.activeTab = tabDashboard
			return m, nil
		case "l":
			m.activeTab = tabDeals
			return m, nil
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
			return m, nil
		case "r":
			m = m.notify("Refreshed")
			return m, m.refreshActive()
		case "s":
			return m, m.sendCommand(models.CmdSyncNow)
		case "p":
			return m, m.sendCommand(models.CmdPause)
		case "u":
			return m, m.sendCommand(models.CmdResume)
		}

		// remaining keys belong to the active tab
		var cmd tea.Cmd
		switch m.activeTab {
		case tabDashboard:
			m.dashboard, cmd = m.dashboard.Update(msg)
		case tabDeals:
			m.deals, cmd = m.deals.Update(msg)
		}
		return m, cmd

	case commandSentMsg:
		if msg.err != nil {
			m = m.notify(fmt.Sprintf("%s failed: %v", msg.cmd, msg.err))
		} else {
			m = m.notify(fmt.Sprintf("Queued %s (#%d)", msg.cmd, msg.id))
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.dashboard = m.dashboard.SetSize(msg.Width, msg.Height-4)
		m.deals = m.deals.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tickMsg:
		cmds = append(cmds, m.dashboard.Refresh(), m.deals.Refresh(), tickCmd())

	case logTickMsg:
		cmds = append(cmds, m.dashboard.RefreshLog(), logTickCmd())
	}

	// data messages go to every view
	var cmd tea.Cmd
	m.dashboard, cmd = m.dashboard.Update(msg)
	cmds = append(cmds, cmd)
	m.deals, cmd = m.deals.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) refreshActive() tea.Cmd {
	if m.activeTab == tabDeals {
		return m.deals.Refresh()
	}
	return tea.Batch(m.dashboard.Refresh(), m.dashboard.RefreshLog())
}

func (m Model) View() string {
	return lipgloss.JoinVertical(lipgloss.Left, m.renderTabs(), m.renderContent(), m.renderStatusBar())
}

func (m Model) renderTabs() string {
	var rendered []string
	for i, name := range tabNames {
		if tab(i) == m.activeTab {
			rendered = append(rendered, styles.TabActive.Render(name))
		} else {
			rendered = append(rendered, styles.TabInactive.Render(name))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...) + "\n"
}

func (m Model) renderContent() string {
	if m.activeTab == tabDeals {
		return m.deals.View()
	}
	return m.dashboard.View()
}

func (m Model) renderStatusBar() string {
	left := "d Dash  l Deals  r Refresh  s Sync  p Pause  u Resume  q Quit"
	right := ""
	if time.Now().Before(m.notifyUntil) {
		right = styles.Notification.Render(m.notification)
	}

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 0)
	return styles.StatusBar.Render(left) + lipgloss.NewStyle().Width(gap).Render("") + right
}
