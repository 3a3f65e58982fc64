package styles

import "github.com/charmbracelet/lipgloss"

var (
	Accent  = lipgloss.Color("#2563EB")
	Teal    = lipgloss.Color("#14B8A6")
	Green   = lipgloss.Color("#22C55E")
	Amber   = lipgloss.Color("#F59E0B")
	Red     = lipgloss.Color("#EF4444")
	Grey    = lipgloss.Color("#6B7280")
	Surface = lipgloss.Color("#111827")
	Text    = lipgloss.Color("#F9FAFB")

	Muted = lipgloss.NewStyle().Foreground(Grey)

	TabActive   = lipgloss.NewStyle().Bold(true).Foreground(Accent).Padding(0, 2)
	TabInactive = lipgloss.NewStyle().Foreground(Grey).Padding(0, 2)

	Title     = lipgloss.NewStyle().Bold(true).Foreground(Accent).Padding(0, 1)
	StatusBar = lipgloss.NewStyle().Foreground(Grey).Padding(0, 1)

	Card    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(Accent).Padding(0, 1)
	RunCard = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(Teal).Padding(0, 1)
	LogBox  = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(Grey).Padding(0, 1)

	StatValue = lipgloss.NewStyle().Bold(true).Foreground(Text)
	StatLabel = lipgloss.NewStyle().Foreground(Grey)

	Ok      = lipgloss.NewStyle().Foreground(Green)
	Failed  = lipgloss.NewStyle().Foreground(Red)
	Pending = lipgloss.NewStyle().Foreground(Amber)

	TableHeader   = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	TableSelected = lipgloss.NewStyle().Background(Accent).Foreground(Text)

	LogTimestamp = lipgloss.NewStyle().Foreground(Grey)

	Notification = lipgloss.NewStyle().Foreground(Green).Padding(0, 1)
)

// RunStatus picks the style for a sync run status.
func RunStatus(status string) lipgloss.Style {
	switch status {
	case "completed":
		return Ok
	case "failed":
		return Failed
	}
	return Pending
}
