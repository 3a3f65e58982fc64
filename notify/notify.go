// Package notify delivers run outcomes to the chat bot and to operators.
package notify

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

type Audience string

const (
	// AudienceGroup is the chat group that receives new-deal announcements.
	AudienceGroup Audience = "group"
	// AudienceOperator receives failures.
	AudienceOperator Audience = "operator"
)

type Message struct {
	Audience Audience  `json:"audience"`
	Text     string    `json:"text"`
	RunID    uuid.UUID `json:"run_id"`
	SentAt   time.Time `json:"sent_at"`
}

type Sink interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// LogSink writes every message to the process log.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Send(ctx context.Context, msg Message) error {
	log.Printf("Notify[%s]: %s", msg.Audience, msg.Text)
	return nil
}
