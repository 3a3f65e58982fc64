package models

import "time"

type CommandType string

const (
	CmdSyncNow CommandType = "sync_now"
	CmdPause   CommandType = "pause"
	CmdResume  CommandType = "resume"
)

// Command is a row of the commands table; external tools insert them and the scheduler consumes them.
type Command struct {
	ID          int64       `json:"id" db:"id"`
	Command     CommandType `json:"command" db:"command"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time  `json:"processed_at" db:"processed_at"`
}

func (c CommandType) Valid() bool {
	switch c {
	case CmdSyncNow, CmdPause, CmdResume:
		return true
	}
	return false
}
