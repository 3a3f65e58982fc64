package views

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"deal_watcher/models"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	deals map[models.ObjectType][]models.Deal
	runs  []models.SyncRun
	last  *models.SyncLogEntry
	cmds  []models.CommandType
}

func (f *fakeSource) ListDeals(ctx context.Context, t models.ObjectType) ([]models.Deal, error) {
	return f.deals[t], nil
}

func (f *fakeSource) RecentSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	return f.runs, nil
}

func (f *fakeSource) LastSyncLog(ctx context.Context) (*models.SyncLogEntry, error) {
	return f.last, nil
}

func (f *fakeSource) InsertCommand(ctx context.Context, c models.CommandType) (int64, error) {
	f.cmds = append(f.cmds, c)
	return int64(len(f.cmds)), nil
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		deals: map[models.ObjectType][]models.Deal{
			models.ObjectApartment: {
				{DealID: 42, Project: "Sunrise", House: 7, ObjectType: models.ObjectApartment, Object: 12,
					CreatedOn: time.Date(2025, 3, 12, 4, 38, 0, 0, time.UTC)},
				{DealID: 43, Project: "Sunrise", House: 7, ObjectType: models.ObjectApartment, Object: 14},
			},
			models.ObjectStorageRoom: {
				{DealID: 50, Project: "Sunrise", House: 4, ObjectType: models.ObjectStorageRoom, Object: 3},
			},
		},
		runs: []models.SyncRun{
			{RunID: uuid.New(), Trigger: models.TriggerSchedule, Status: models.RunStatusCompleted,
				StartedAt: time.Now(), LeadsFetched: 10, LeadsQualifying: 2, DealsNew: 2},
		},
		last: &models.SyncLogEntry{LastCheckedDate: 1700000000, RowCount: 2, CreatedAt: time.Now()},
	}
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestDealsViewSelectionAndToggle(t *testing.T) {
	src := newFakeSource()
	d := NewDeals(src)

	d, _ = d.Update(d.Refresh()())
	require.NotNil(t, d.Selected())
	assert.Equal(t, int64(42), d.Selected().DealID)
	assert.Contains(t, d.View(), "Срок передачи: 11.04.2025")

	d, _ = d.Update(key("j"))
	assert.Equal(t, int64(43), d.Selected().DealID)
	d, _ = d.Update(key("j"))
	assert.Equal(t, int64(43), d.Selected().DealID)

	d, cmd := d.Update(key("t"))
	require.NotNil(t, cmd)
	assert.Equal(t, models.ObjectStorageRoom, d.ObjectType())
	assert.Nil(t, d.Selected())

	d, _ = d.Update(cmd())
	require.NotNil(t, d.Selected())
	assert.Equal(t, int64(50), d.Selected().DealID)
	assert.Contains(t, d.View(), "Кладовка")
}

func TestDealsViewIgnoresStaleType(t *testing.T) {
	d := NewDeals(newFakeSource())
	d, _ = d.Update(dealsMsg{objectType: models.ObjectStorageRoom, deals: []models.Deal{{DealID: 1}}})
	assert.Nil(t, d.Selected())
	assert.Contains(t, d.View(), "Нет данных")
}

func TestDashboardRefresh(t *testing.T) {
	d := NewDashboard(newFakeSource(), filepath.Join(t.TempDir(), "missing.log"))
	d = d.SetSize(120, 40)

	d, _ = d.Update(d.Refresh()())
	view := d.View()
	assert.Contains(t, view, "Квартиры")
	assert.Contains(t, view, "schedule")
	assert.Contains(t, view, "completed")

	d, _ = d.Update(d.RefreshLog()())
	assert.Contains(t, d.View(), "(no log file)")
}

func TestReadLastLinesKeepsTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deal_watcher.log")
	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString("line\n")
	}
	b.WriteString("last line\n")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	lines, modTime := readLastLines(path, 10)
	assert.Len(t, lines, 10)
	assert.Equal(t, "last line", lines[9])
	assert.False(t, modTime.IsZero())
}

func TestTruncateCountsRunes(t *testing.T) {
	assert.Equal(t, "Кварт…", truncate("Квартира", 6))
	assert.Equal(t, "Дом", truncate("Дом", 6))
	assert.Equal(t, "", truncate("x", 0))
}
