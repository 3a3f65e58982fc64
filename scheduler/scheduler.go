package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"deal_watcher/models"

	"github.com/robfig/cron/v3"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultRunTimeout   = 10 * time.Minute
	reportTimeout       = 5 * time.Second
)

// Runner is satisfied by the sync orchestrator.
type Runner interface {
	SyncOnce(ctx context.Context, trigger string) (*models.RunResult, error)
}

// CommandStore is the commands table written by external tools.
type CommandStore interface {
	GetPendingCommands(ctx context.Context) ([]models.Command, error)
	MarkCommandProcessed(ctx context.Context, id int64) error
}

type Scheduler struct {
	expr         string
	schedule     cron.Schedule
	runner       Runner
	commands     CommandStore
	reports      chan<- models.RunReport
	paused       atomic.Bool
	pollInterval time.Duration
	runTimeout   time.Duration
	now          func() time.Time
}

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New parses the cron expression once. Both 5-field and 6-field (with seconds)
// forms are accepted, as are descriptors like "@hourly". commands and reports may be nil.
func New(expr string, runner Runner, commands CommandStore, reports chan<- models.RunReport) (*Scheduler, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid schedule %q: %w", models.ErrConfig, expr, err)
	}

	return &Scheduler{
		expr:         expr,
		schedule:     schedule,
		runner:       runner,
		commands:     commands,
		reports:      reports,
		pollInterval: defaultPollInterval,
		runTimeout:   defaultRunTimeout,
		now:          time.Now,
	}, nil
}

// Upcoming returns the next n fire times after now.
func (s *Scheduler) Upcoming(n int) []time.Time {
	out := make([]time.Time, 0, n)
	t := s.now()
	for i := 0; i < n; i++ {
		t = s.schedule.Next(t)
		out = append(out, t)
	}
	return out
}

// Run sleeps until each fire time and runs a sync, until ctx is cancelled.
// The next fire is computed after the run finishes, so a run longer than the
// interval skips fires rather than queueing them.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("Starting scheduler with cron: %s", s.expr)
	for _, t := range s.Upcoming(5) {
		log.Printf("Scheduler: upcoming fire at %s", t.Format(time.RFC3339))
	}

	for {
		next := s.schedule.Next(s.now())
		timer := time.NewTimer(next.Sub(s.now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			log.Println("Scheduler stopped")
			return
		case <-timer.C:
		}

		s.onFire(ctx)
	}
}

func (s *Scheduler) onFire(ctx context.Context) {
	if s.paused.Load() {
		log.Println("Scheduler is paused, skipping run")
		return
	}
	s.fire(ctx, models.TriggerSchedule)
}

func (s *Scheduler) fire(ctx context.Context, trigger string) {
	log.Printf("Scheduler: sync started (%s)", trigger)
	result, err := s.runner.SyncOnce(ctx, trigger)
	if err != nil {
		log.Printf("Scheduled run error: %v", err)
	}
	s.report(ctx, models.RunReport{Trigger: trigger, Result: result, Err: err, At: s.now()})
}

// SetRunTimeout bounds on-demand runs. Non-positive values are ignored.
func (s *Scheduler) SetRunTimeout(d time.Duration) {
	if d > 0 {
		s.runTimeout = d
	}
}

// RunNow runs a sync for an on-demand caller. The caller gets the result;
// failures are additionally reported to operators. The run is detached from
// ctx cancellation: a caller that goes away does not abort it.
func (s *Scheduler) RunNow(ctx context.Context, trigger string) (*models.RunResult, error) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.runTimeout)
	defer cancel()

	result, err := s.runner.SyncOnce(runCtx, trigger)
	if err != nil {
		s.report(ctx, models.RunReport{Trigger: trigger, Err: err, At: s.now()})
	}
	return result, err
}

// report hands r to the notifier. It waits up to reportTimeout for buffer
// space even if ctx is already cancelled.
func (s *Scheduler) report(ctx context.Context, r models.RunReport) {
	if s.reports == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	select {
	case s.reports <- r:
	case <-ctx.Done():
		log.Printf("Scheduler: dropped %s run report, notifier not keeping up", r.Trigger)
	}
}

func (s *Scheduler) Pause()       { s.paused.Store(true) }
func (s *Scheduler) Resume()      { s.paused.Store(false) }
func (s *Scheduler) Paused() bool { return s.paused.Load() }
func (s *Scheduler) Expr() string { return s.expr }

// PollCommands consumes the commands table every poll interval until ctx is cancelled.
func (s *Scheduler) PollCommands(ctx context.Context) {
	if s.commands == nil {
		return
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cmds, err := s.commands.GetPendingCommands(ctx)
			if err != nil {
				log.Printf("Error getting commands: %v", err)
				continue
			}

			for _, cmd := range cmds {
				log.Printf("Processing command: %s", cmd.Command)
				if err := s.handleCommand(ctx, &cmd); err != nil {
					log.Printf("Command error: %v", err)
				}
				if err := s.commands.MarkCommandProcessed(ctx, cmd.ID); err != nil {
					log.Printf("Error marking command processed: %v", err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdSyncNow:
		s.fire(ctx, models.TriggerCommand)
	case models.CmdPause:
		s.Pause()
		log.Println("Scheduler paused via command")
	case models.CmdResume:
		s.Resume()
		log.Println("Scheduler resumed via command")
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
	return nil
}
