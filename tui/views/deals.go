package views

import (
	"context"
	"fmt"
	"strings"

	"deal_watcher/models"
	"deal_watcher/services"
	"deal_watcher/tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type dealsMsg struct {
	objectType models.ObjectType
	deals      []models.Deal
	err        error
}

// Deals lists persisted deals of one object type with a card for the selected row.
type Deals struct {
	src           Source
	width, height int
	objectType    models.ObjectType
	deals         []models.Deal
	selected      int
	err           error
}

func NewDeals(src Source) Deals {
	return Deals{src: src, objectType: models.ObjectApartment}
}

func (d Deals) Init() tea.Cmd {
	return d.Refresh()
}

func (d Deals) Refresh() tea.Cmd {
	objectType := d.objectType
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		defer cancel()
		deals, err := d.src.ListDeals(ctx, objectType)
		return dealsMsg{objectType: objectType, deals: deals, err: err}
	}
}

func (d Deals) SetSize(w, h int) Deals {
	d.width, d.height = w, h
	return d
}

// Selected returns the highlighted deal, or nil when the list is empty.
func (d Deals) Selected() *models.Deal {
	if d.selected < 0 || d.selected >= len(d.deals) {
		return nil
	}
	return &d.deals[d.selected]
}

func (d Deals) ObjectType() models.ObjectType { return d.objectType }

func (d Deals) Update(msg tea.Msg) (Deals, tea.Cmd) {
	switch msg := msg.(type) {
	case dealsMsg:
		if msg.objectType != d.objectType {
			return d, nil
		}
		d.err = msg.err
		if msg.err == nil {
			d.deals = msg.deals
		}
		if d.selected >= len(d.deals) {
			d.selected = max(len(d.deals)-1, 0)
		}
	case tea.KeyMsg:
		last := max(len(d.deals)-1, 0)
		switch msg.String() {
		case "up", "k":
			d.selected = max(d.selected-1, 0)
		case "down", "j":
			d.selected = min(d.selected+1, last)
		case "pgup", "ctrl+u":
			d.selected = max(d.selected-10, 0)
		case "pgdown", "ctrl+d":
			d.selected = min(d.selected+10, last)
		case "home", "g":
			d.selected = 0
		case "end", "G":
			d.selected = last
		case "t":
			if d.objectType == models.ObjectApartment {
				d.objectType = models.ObjectStorageRoom
			} else {
				d.objectType = models.ObjectApartment
			}
			d.deals = nil
			d.selected = 0
			return d, d.Refresh()
		}
	}
	return d, nil
}

func (d Deals) visibleRows() int {
	if d.height <= 0 {
		return 20
	}
	return max(d.height*55/100, 8)
}

func (d Deals) View() string {
	header := styles.Title.Render(d.objectType.Label()) +
		styles.StatValue.Render(fmt.Sprintf("  %d", len(d.deals))) +
		"  " + styles.Muted.Render("[t] Type  [j/k] Move")

	parts := []string{header}
	if d.err != nil {
		parts = append(parts, styles.Failed.Render("store error: "+d.err.Error()))
	}
	parts = append(parts, d.renderTable(), "", d.renderCard())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (d Deals) renderTable() string {
	if len(d.deals) == 0 {
		return styles.Muted.Render(services.NoData)
	}

	header := fmt.Sprintf("%-20s %6s %7s %-11s %-11s %10s", "Проект", "Дом", "№", "Продано", "Передача", "Сделка")
	rows := []string{styles.TableHeader.Render(header)}

	visible := d.visibleRows()
	offset := 0
	if d.selected >= visible {
		offset = d.selected - visible + 1
	}
	end := min(offset+visible, len(d.deals))

	for i := offset; i < end; i++ {
		deal := d.deals[i]
		sold, deadline := "-", "-"
		if !deal.CreatedOn.IsZero() {
			sold = deal.CreatedOn.Format("02.01.2006")
			deadline = deal.TransferDeadline().Format("02.01.2006")
		}
		row := fmt.Sprintf("%-20s %6d %7d %-11s %-11s %10d",
			truncate(deal.Project, 20), deal.House, deal.Object, sold, deadline, deal.DealID)
		if i == d.selected {
			row = styles.TableSelected.Render(row)
		}
		rows = append(rows, row)
	}

	if len(d.deals) > visible {
		rows = append(rows, styles.Muted.Render(fmt.Sprintf("  [%d-%d of %d]", offset+1, end, len(d.deals))))
	}
	return strings.Join(rows, "\n")
}

func (d Deals) renderCard() string {
	width := max(d.width/2-2, 30)
	body := styles.Muted.Render("Select a deal")
	if sel := d.Selected(); sel != nil {
		body = strings.TrimRight(services.DealCard(sel), "\n")
	}
	return styles.RunCard.Width(width).Render(styles.Title.Render("Сделка") + "\n" + body)
}
