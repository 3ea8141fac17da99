package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-permits/app/service"
	"github.com/vibast-solutions/ms-go-permits/config"
)

var (
	workerMode bool
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile unsettled applications against the payment gateway",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"reconcile",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.ReconcileInterval },
			func(s *services, ctx context.Context) error {
				_, err := s.reconcile.Run(ctx)
				if errors.Is(err, service.ErrReconcileAlreadyActive) {
					return nil
				}
				return err
			},
		)
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Run document generation queue commands",
}

var queueSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Re-admit stuck document generation jobs",
	Run: func(_ *cobra.Command, _ []string) {
		runCommand(
			"queue_sweep",
			func(cfg *config.Config) time.Duration { return cfg.Jobs.SweepInterval },
			func(s *services, ctx context.Context) error {
				_, err := s.queue.SweepStuck(ctx)
				return err
			},
		)
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueSweepCmd)

	rootCmd.PersistentFlags().BoolVar(&workerMode, "worker", false, "Run continuously using configured interval")
}

func runCommand(
	name string,
	intervalResolver func(cfg *config.Config) time.Duration,
	fn func(s *services, ctx context.Context) error,
) {
	cfg, svcs, cleanup := mustCreateServices()
	defer cleanup()

	if workerMode {
		runWorker(name, intervalResolver(cfg), svcs, fn)
		return
	}

	ctx := context.Background()
	runJob(name, func() error { return fn(svcs, ctx) })
}

func runWorker(
	name string,
	interval time.Duration,
	svcs *services,
	fn func(s *services, ctx context.Context) error,
) {
	if interval <= 0 {
		logrus.WithField("job", name).Fatal("invalid worker interval")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cronLogger := cron.PrintfLogger(logrus.StandardLogger())
	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	spec := fmt.Sprintf("@every %s", interval)
	if _, err := scheduler.AddFunc(spec, func() {
		runJob(name, func() error { return fn(svcs, ctx) })
	}); err != nil {
		logrus.WithError(err).WithField("job", name).Fatal("Failed to schedule job")
	}

	runJob(name, func() error { return fn(svcs, ctx) })
	scheduler.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.WithField("job", name).Info("Worker shutdown requested")

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
}

func runJob(name string, fn func() error) {
	start := time.Now()
	err := fn()
	latency := time.Since(start)
	if err != nil {
		logrus.WithError(err).WithField("job", name).WithField("latency", latency.String()).Error("job_failed")
		return
	}
	logrus.WithField("job", name).WithField("latency", latency.String()).Info("job_completed")
}
