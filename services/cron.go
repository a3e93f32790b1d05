package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// ReconcileScheduler runs the consistency reconciler on a fixed
// interval in the background.
type ReconcileScheduler struct {
	scheduler  *gocron.Scheduler
	reconciler *Reconciler
	interval   time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	log        *slog.Logger
}

func NewReconcileScheduler(reconciler *Reconciler, interval time.Duration, log *slog.Logger) *ReconcileScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	if log == nil {
		log = slog.Default()
	}
	return &ReconcileScheduler{
		scheduler:  s,
		reconciler: reconciler,
		interval:   interval,
		ctx:        ctx,
		cancel:     cancel,
		log:        log,
	}
}

// Start registers the reconcile job and starts the scheduler in the
// background.
func (s *ReconcileScheduler) Start() error {
	_, err := s.scheduler.Every(s.interval).Tag("reconcile").Do(func() {
		ctx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
		defer cancel()
		if _, err := s.reconciler.Reconcile(ctx); err != nil {
			s.log.Error("scheduled reconcile failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.log.Info("reconcile scheduler started", "interval", s.interval)
	return nil
}

// Stop halts the scheduler and cancels any in-flight pass.
func (s *ReconcileScheduler) Stop() {
	s.scheduler.Stop()
	if s.cancel != nil {
		s.cancel()
	}
}
