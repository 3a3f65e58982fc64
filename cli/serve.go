package cli

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"deal_watcher/api"
	"deal_watcher/config"
	"deal_watcher/logging"
	"deal_watcher/models"
	"deal_watcher/scheduler"
	"deal_watcher/workers"

	"github.com/spf13/cobra"
)

func NewServeCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, command poller, notifier and HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), root)
		},
	}
}

func loadConfig(root *RootOptions) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if root.Database != "" {
		cfg.DBURL = root.Database
	}
	return cfg, nil
}

func runServe(ctx context.Context, root *RootOptions) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	logFile, err := logging.Setup(cfg.LogFile, logging.DefaultMaxSize)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}
	logging.SetLevel(cfg.LogLevel)

	log.Println("Starting deal_watcher...")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	reports := make(chan models.RunReport, 16)
	sched, err := scheduler.New(cfg.Scheduler.Cron, a.orch, a.store, reports)
	if err != nil {
		return err
	}
	sched.SetRunTimeout(cfg.Scheduler.RunTimeout)

	sinks, closeSinks := a.sinks()
	defer closeSinks()
	notifier := workers.NewNotifier(a.metrics, sinks...)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); notifier.Run(ctx, reports) }()
	go func() { defer wg.Done(); sched.Run(ctx) }()
	go func() { defer wg.Done(); sched.PollCommands(ctx) }()

	if cfg.HTTP.Addr != "" {
		err = api.NewServer(a.store, sched, a.metrics).ListenAndServe(ctx, cfg.HTTP.Addr)
		if err != nil {
			log.Printf("API server error: %v", err)
			stop()
		}
	} else {
		log.Println("Daemon running. Press Ctrl+C to stop.")
		<-ctx.Done()
	}

	log.Println("Shutting down...")
	wg.Wait()
	log.Println("Goodbye!")
	return err
}
