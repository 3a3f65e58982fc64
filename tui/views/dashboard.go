package views

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"deal_watcher/models"
	"deal_watcher/tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// quietAfter marks the log as idle when the daemon has not written for this long.
const quietAfter = time.Hour

type dashboardDataMsg struct {
	last         *models.SyncLogEntry
	runs         []models.SyncRun
	apartments   int
	storageRooms int
	err          error
}

type logTailMsg struct {
	lines   []string
	modTime time.Time
}

type Dashboard struct {
	src           Source
	width, height int
	now           func() time.Time

	last         *models.SyncLogEntry
	runs         []models.SyncRun
	apartments   int
	storageRooms int
	err          error

	logPath     string
	logLines    []string
	logModTime  time.Time
	logScroll   int // 0 = newest
	logViewport int
	logBuffer   int
}

func NewDashboard(src Source, logPath string) Dashboard {
	if logPath == "" {
		logPath = "deal_watcher.log"
	}
	return Dashboard{
		src:         src,
		now:         time.Now,
		logPath:     logPath,
		logViewport: 20,
		logBuffer:   200,
	}
}

func (d Dashboard) Init() tea.Cmd {
	return tea.Batch(d.Refresh(), d.RefreshLog())
}

func (d Dashboard) Refresh() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()

		var msg dashboardDataMsg
		msg.last, msg.err = d.src.LastSyncLog(ctx)
		if msg.err != nil {
			return msg
		}
		if msg.runs, msg.err = d.src.RecentSyncRuns(ctx, 10); msg.err != nil {
			return msg
		}
		apartments, err := d.src.ListDeals(ctx, models.ObjectApartment)
		if err != nil {
			msg.err = err
			return msg
		}
		rooms, err := d.src.ListDeals(ctx, models.ObjectStorageRoom)
		if err != nil {
			msg.err = err
			return msg
		}
		msg.apartments, msg.storageRooms = len(apartments), len(rooms)
		return msg
	}
}

func (d Dashboard) RefreshLog() tea.Cmd {
	return func() tea.Msg {
		lines, modTime := readLastLines(d.logPath, d.logBuffer)
		return logTailMsg{lines, modTime}
	}
}

func readLastLines(path string, n int) ([]string, time.Time) {
	f, err := os.Open(path)
	if err != nil {
		return []string{"(no log file)"}, time.Time{}
	}
	defer f.Close()

	var modTime time.Time
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	if len(lines) == 0 {
		return []string{"(empty log)"}, modTime
	}
	return lines, modTime
}

func (d Dashboard) SetSize(w, h int) Dashboard {
	d.width, d.height = w, h
	if h > 30 {
		d.logViewport = h - 22
	}
	return d
}

func (d Dashboard) Update(msg tea.Msg) (Dashboard, tea.Cmd) {
	switch msg := msg.(type) {
	case dashboardDataMsg:
		d.err = msg.err
		if msg.err == nil {
			d.last = msg.last
			d.runs = msg.runs
			d.apartments = msg.apartments
			d.storageRooms = msg.storageRooms
		}
	case logTailMsg:
		d.logLines = msg.lines
		d.logModTime = msg.modTime
	case tea.KeyMsg:
		maxScroll := max(len(d.logLines)-d.logViewport, 0)
		switch msg.String() {
		case "up", "k":
			d.logScroll = min(d.logScroll+1, maxScroll)
		case "down", "j":
			d.logScroll = max(d.logScroll-1, 0)
		case "pgup":
			d.logScroll = min(d.logScroll+10, maxScroll)
		case "pgdown":
			d.logScroll = max(d.logScroll-10, 0)
		case "home":
			d.logScroll = maxScroll
		case "end":
			d.logScroll = 0
		}
	}
	return d, nil
}

func (d Dashboard) View() string {
	parts := []string{styles.Title.Render("Dashboard")}
	if d.err != nil {
		parts = append(parts, styles.Failed.Render("store error: "+d.err.Error()))
	}
	parts = append(parts,
		d.renderStatCards(),
		"",
		styles.Title.Render("Recent Runs"),
		d.renderRunsTable(),
		"",
		d.renderLogTail(),
	)
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (d Dashboard) renderStatCards() string {
	watermark := "-"
	lastRun := "never"
	lastCount := "-"
	if d.last != nil {
		watermark = time.Unix(d.last.LastCheckedDate, 0).Format("02.01 15:04")
		lastRun = relativeTime(d.last.CreatedAt, d.now())
		lastCount = fmt.Sprintf("%d", d.last.RowCount)
	}

	cards := []string{
		statCard("Квартиры", fmt.Sprintf("%d", d.apartments)),
		statCard("Кладовки", fmt.Sprintf("%d", d.storageRooms)),
		statCard("Watermark", watermark),
		statCard("Last sync", lastRun),
		statCard("Last new", lastCount),
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func statCard(label, value string) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		styles.StatValue.Render(value),
		styles.StatLabel.Render(label),
	)
	return styles.Card.Width(16).Render(content)
}

func (d Dashboard) renderRunsTable() string {
	if len(d.runs) == 0 {
		return styles.Muted.Render("No runs yet")
	}

	header := fmt.Sprintf("%-9s %-10s %-9s %6s %6s %6s %6s  %s",
		"Trigger", "Status", "Started", "Leads", "Match", "New", "Errors", "Error")
	rows := []string{styles.TableHeader.Render(header)}

	for _, r := range d.runs {
		status := styles.RunStatus(string(r.Status)).Render(fmt.Sprintf("%-10s", r.Status))
		row := fmt.Sprintf("%-9s %s %-9s %6d %6d %6d %6d  %s",
			truncate(r.Trigger, 9),
			status,
			r.StartedAt.Local().Format("15:04:05"),
			r.LeadsFetched,
			r.LeadsQualifying,
			r.DealsNew,
			r.EnrichmentErrors,
			truncate(r.Error, max(d.width-70, 10)),
		)
		rows = append(rows, row)
	}
	return strings.Join(rows, "\n")
}

func (d Dashboard) renderLogTail() string {
	width := max(d.width-4, 20)
	if len(d.logLines) == 0 {
		return styles.LogBox.Width(width).Render(styles.Muted.Render("(waiting for logs...)"))
	}

	total := len(d.logLines)
	end := total - min(d.logScroll, total)
	start := max(end-d.logViewport, 0)

	var lines []string
	for _, line := range d.logLines[start:end] {
		lines = append(lines, styleLogLine(truncate(line, width-4)))
	}

	var indicator string
	switch {
	case d.logModTime.IsZero() || d.now().Sub(d.logModTime) > quietAfter:
		indicator = styles.Pending.Render(" ● QUIET ")
	case d.logScroll > 0:
		indicator = styles.Pending.Render(fmt.Sprintf(" ↑%d ", d.logScroll))
	default:
		indicator = styles.Ok.Render(" ● LIVE ")
	}

	header := styles.Title.Render("Log") + indicator +
		styles.Muted.Render(fmt.Sprintf("[%d-%d/%d]", start+1, end, total))
	return styles.LogBox.Width(width).Render(header + "\n" + strings.Join(lines, "\n"))
}

// styleLogLine colours a standard-logger line ("2006/01/02 15:04:05 file.go:12: msg").
func styleLogLine(line string) string {
	ts, rest := "", line
	if len(line) > 19 && line[4] == '/' && line[10] == ' ' {
		ts, rest = line[:19], line[19:]
	}

	lower := strings.ToLower(rest)
	switch {
	case strings.Contains(lower, "error") || strings.Contains(lower, "failed"):
		rest = styles.Failed.Render(rest)
	case strings.Contains(lower, "warning") || strings.Contains(lower, "skipping"):
		rest = styles.Pending.Render(rest)
	}

	if ts == "" {
		return rest
	}
	return styles.LogTimestamp.Render(ts) + rest
}
