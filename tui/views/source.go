package views

import (
	"context"
	"fmt"
	"time"

	"deal_watcher/models"
)

// Source is the part of the record store the dashboard reads and writes.
type Source interface {
	ListDeals(ctx context.Context, objectType models.ObjectType) ([]models.Deal, error)
	RecentSyncRuns(ctx context.Context, limit int) ([]models.SyncRun, error)
	LastSyncLog(ctx context.Context) (*models.SyncLogEntry, error)
	InsertCommand(ctx context.Context, cmd models.CommandType) (int64, error)
}

const queryTimeout = 5 * time.Second

func relativeTime(t time.Time, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}
