package workers

import (
	"context"
	"log"
	"time"

	"deal_watcher/metrics"
	"deal_watcher/models"
	"deal_watcher/notify"
)

// Notifier consumes run reports and fans the resulting message out to every sink.
type Notifier struct {
	sinks   []notify.Sink
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewNotifier(m *metrics.Metrics, sinks ...notify.Sink) *Notifier {
	return &Notifier{sinks: sinks, metrics: m, now: time.Now}
}

// Run blocks until ctx is cancelled or reports is closed.
func (n *Notifier) Run(ctx context.Context, reports <-chan models.RunReport) {
	log.Printf("Notifier: started with %d sinks", len(n.sinks))
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-reports:
			if !ok {
				return
			}
			n.Handle(ctx, r)
		}
	}
}

func (n *Notifier) Handle(ctx context.Context, r models.RunReport) {
	msg, ok := Route(r)
	if !ok {
		log.Printf("Notifier: %s run finished, no new deals", r.Trigger)
		return
	}
	msg.SentAt = n.now().UTC()

	for _, s := range n.sinks {
		err := s.Send(ctx, msg)
		if err != nil {
			log.Printf("Notifier: sink %s failed: %v", s.Name(), err)
		}
		n.metrics.RecordNotification(s.Name(), err)
	}
}

// Route decides who hears about a run. Runs without new deals produce no message.
func Route(r models.RunReport) (notify.Message, bool) {
	if r.Err != nil {
		msg := notify.Message{
			Audience: notify.AudienceOperator,
			Text:     "Ошибка синхронизации (" + r.Trigger + "): " + r.Err.Error(),
		}
		if r.Result != nil {
			msg.RunID = r.Result.RunID
		}
		return msg, true
	}

	if r.Result == nil || !r.Result.Found {
		return notify.Message{}, false
	}

	return notify.Message{
		Audience: notify.AudienceGroup,
		Text:     r.Result.Summary,
		RunID:    r.Result.RunID,
	}, true
}
